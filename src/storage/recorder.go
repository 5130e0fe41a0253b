package storage

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"market-feed/src/helpers"
	"market-feed/src/interfaces"
	"market-feed/src/logger"
	"market-feed/src/models"
)

const recordTimeout = 5 * time.Second

// -----------------------------------------------------------------------------

// Recorder moves tick records off the broadcast path and into the sinks.
// Enqueue never blocks: when the queue is full the record is dropped.
type Recorder struct {
	sinks    []interfaces.ISnapshotSink
	queue    chan models.MTickRecord
	handlers map[string]*helpers.ErrorHandler
	Logger   *logger.Logger

	dropped  atomic.Int64
	recorded atomic.Int64
}

// -----------------------------------------------------------------------------

func NewRecorder(sinks []interfaces.ISnapshotSink, queueSize int, log *logger.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = 64
	}
	r := &Recorder{
		sinks:    sinks,
		queue:    make(chan models.MTickRecord, queueSize),
		handlers: make(map[string]*helpers.ErrorHandler, len(sinks)),
		Logger:   log,
	}
	for _, s := range sinks {
		r.handlers[s.Name()] = helpers.NewErrorHandler(log)
	}
	return r
}

// -----------------------------------------------------------------------------

// Enqueue hands a record to the recorder goroutine.
func (r *Recorder) Enqueue(record models.MTickRecord) bool {
	select {
	case r.queue <- record:
		return true
	default:
		if r.dropped.Add(1)%100 == 1 {
			r.Logger.Warning("Recorder queue full, dropped %d records so far", r.dropped.Load())
		}
		return false
	}
}

// -----------------------------------------------------------------------------

// Run writes queued records until ctx is cancelled, then flushes what is left
// and closes the sinks.
func (r *Recorder) Run(ctx context.Context) {
	defer r.closeSinks()

	for {
		select {
		case record := <-r.queue:
			r.write(record)
		case <-ctx.Done():
			for {
				select {
				case record := <-r.queue:
					r.write(record)
				default:
					return
				}
			}
		}
	}
}

// -----------------------------------------------------------------------------

func (r *Recorder) write(record models.MTickRecord) {
	for _, sink := range r.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		err := sink.Record(ctx, record)
		cancel()

		if err != nil {
			err = helpers.NewStorageError(fmt.Sprintf("%s record tick %d", sink.Name(), record.Tick), err)
		}
		r.handlers[sink.Name()].Handle(err, sink.Name())
	}
	r.recorded.Add(1)
}

// -----------------------------------------------------------------------------

func (r *Recorder) closeSinks() {
	for _, sink := range r.sinks {
		if err := sink.Close(); err != nil {
			r.Logger.Error("Failed to close %s sink: %v", sink.Name(), err)
		}
	}
}

// -----------------------------------------------------------------------------

func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

func (r *Recorder) Recorded() int64 {
	return r.recorded.Load()
}

// -----------------------------------------------------------------------------

// NewSinksFromConfig builds and initializes the configured sinks. A sink that
// fails to initialize is an error: the operator asked for it explicitly.
func NewSinksFromConfig(ctx context.Context, cfg *models.MConfig, log *logger.Logger) ([]interfaces.ISnapshotSink, error) {
	var sinks []interfaces.ISnapshotSink

	switch cfg.Storage.DBType {
	case "sqlite":
		sinks = append(sinks, NewSQLiteArchive(cfg.Storage.DBPath, log))
	case "postgres":
		sinks = append(sinks, NewPostgresArchive(cfg.Storage.DBConnectionString, cfg.Name, log))
	}

	if cfg.Storage.RedisAddr != "" {
		sinks = append(sinks, NewRedisMirror(cfg.Storage.RedisAddr, cfg.Storage.RedisKey, cfg.Storage.RedisChannel, log))
	}

	for i, sink := range sinks {
		if err := sink.Initialize(ctx); err != nil {
			for _, opened := range sinks[:i] {
				opened.Close()
			}
			return nil, helpers.NewStorageError(fmt.Sprintf("failed to initialize %s sink", sink.Name()), err)
		}
		log.Info("Snapshot sink %s ready", sink.Name())
	}

	return sinks, nil
}
