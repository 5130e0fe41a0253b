package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"market-feed/src/helpers"
	"market-feed/src/logger"
	"market-feed/src/models"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	closeWait        = time.Second
)

// ErrReconnectsExhausted is returned by Run when max_reconnect_attempts is hit.
var ErrReconnectsExhausted = errors.New("reconnect attempts exhausted")

// -----------------------------------------------------------------------------
// Subscriber
// -----------------------------------------------------------------------------

// Subscriber holds one logical subscription to a market feed and the latest
// snapshot it delivered. Each message replaces the snapshot wholesale.
type Subscriber struct {
	Config models.MSubscriberConfig
	Logger *logger.Logger
	dialer *websocket.Dialer

	mu       sync.RWMutex
	status   Status
	lastErr  error
	snapshot *models.MMarketState
	received int64
	conn     *websocket.Conn

	changes   chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// -----------------------------------------------------------------------------

func NewSubscriber(cfg models.MSubscriberConfig, log *logger.Logger) *Subscriber {
	return &Subscriber{
		Config: cfg,
		Logger: log,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		status:  StatusConnecting,
		changes: make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------
// Consumer View
// -----------------------------------------------------------------------------

// Status returns the current connection indicator.
func (s *Subscriber) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Err returns the error behind the last Error status, if any.
func (s *Subscriber) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Snapshot returns the latest snapshot, or nil before the first message.
// The value is replaced, never mutated, so callers may keep it.
func (s *Subscriber) Snapshot() *models.MMarketState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Received counts snapshots applied so far.
func (s *Subscriber) Received() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.received
}

// Changes signals (coalesced) after every status or snapshot change.
func (s *Subscriber) Changes() <-chan struct{} {
	return s.changes
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run connects and reads until Close, ctx cancellation, or a terminal failure.
// Without reconnect a single connection is made; a graceful server close
// returns nil and any other failure returns it.
func (s *Subscriber) Run(ctx context.Context) error {
	base := time.Duration(s.Config.ReconnectBaseDelayMs) * time.Millisecond
	maxDelay := time.Duration(s.Config.ReconnectMaxDelayMs) * time.Millisecond
	attempt := 0

	for {
		connected, err := s.session(ctx)
		if s.isClosed() || ctx.Err() != nil {
			s.setStatus(StatusDisconnected, nil)
			return nil
		}
		if !s.Config.Reconnect {
			return err
		}

		if connected {
			attempt = 0
		}
		if s.Config.MaxReconnectAttempts > 0 && attempt >= s.Config.MaxReconnectAttempts {
			s.Logger.Error("Giving up on %s after %d reconnect attempts", s.Config.URL, attempt)
			if err == nil {
				return ErrReconnectsExhausted
			}
			return fmt.Errorf("%w: %v", ErrReconnectsExhausted, err)
		}

		delay := helpers.BackoffDelay(attempt, base, maxDelay)
		attempt++
		s.Logger.Info("Reconnecting to %s in %v (attempt %d)", s.Config.URL, delay, attempt)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			s.setStatus(StatusDisconnected, nil)
			return nil
		case <-s.closed:
			timer.Stop()
			s.setStatus(StatusDisconnected, nil)
			return nil
		}
	}
}

// -----------------------------------------------------------------------------

// Close sends a close frame and releases the socket. Safe to call repeatedly
// and from any goroutine; Run returns shortly after.
func (s *Subscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)

		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.mu.Unlock()

		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(closeWait))
			err = conn.Close()
		}
		s.setStatus(StatusDisconnected, nil)
	})
	return err
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

// session runs one connection instance. connected reports whether the
// handshake succeeded.
func (s *Subscriber) session(ctx context.Context) (connected bool, err error) {
	s.setStatus(StatusConnecting, nil)

	conn, _, err := s.dialer.DialContext(ctx, s.Config.URL, nil)
	if err != nil {
		err = helpers.NewTransportError(fmt.Sprintf("failed to connect to %s", s.Config.URL), err)
		s.setStatus(StatusError, err)
		s.Logger.Warning("%v", err)
		return false, err
	}

	if !s.attach(conn) {
		conn.Close()
		return true, nil
	}
	defer s.detach(conn)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s.setStatus(StatusConnected, nil)
	s.Logger.Info("Connected to %s", s.Config.URL)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, s.readFailed(ctx, err)
		}
		s.apply(data)
	}
}

// -----------------------------------------------------------------------------

func (s *Subscriber) readFailed(ctx context.Context, err error) error {
	if s.isClosed() || ctx.Err() != nil {
		return nil
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.setStatus(StatusDisconnected, nil)
		s.Logger.Info("Feed %s closed the connection", s.Config.URL)
		return nil
	}

	err = helpers.NewTransportError("connection lost", err)
	s.setStatus(StatusError, err)
	s.Logger.Warning("%v", err)
	return err
}

// -----------------------------------------------------------------------------

// apply decodes one full snapshot. A bad payload flips the status to Error and
// leaves the previous snapshot in place; the connection keeps reading.
func (s *Subscriber) apply(data []byte) {
	var state models.MMarketState
	if err := json.Unmarshal(data, &state); err != nil {
		err = helpers.NewSerializationError("failed to decode market snapshot", err)
		s.setStatus(StatusError, err)
		s.Logger.Warning("%v", err)
		return
	}

	s.mu.Lock()
	if s.isClosed() {
		s.mu.Unlock()
		return
	}
	s.snapshot = &state
	s.received++
	s.status = StatusConnected
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()
}

// -----------------------------------------------------------------------------
// Helper Methods
// -----------------------------------------------------------------------------

func (s *Subscriber) attach(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed() {
		return false
	}
	s.conn = conn
	return true
}

func (s *Subscriber) detach(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	conn.Close()
}

func (s *Subscriber) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Subscriber) setStatus(status Status, err error) {
	s.mu.Lock()
	// Disconnected after Close is final
	if s.isClosed() && status != StatusDisconnected {
		s.mu.Unlock()
		return
	}
	changed := s.status != status
	s.status = status
	s.lastErr = err
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

func (s *Subscriber) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
