package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"market-feed/src/helpers"
	"market-feed/src/interfaces"
	"market-feed/src/logger"
	"market-feed/src/market"
	"market-feed/src/models"

	"github.com/gin-gonic/gin"
)

// ErrStopped is returned by TickNow once the hub has exited.
var ErrStopped = errors.New("broadcast hub stopped")

const shutdownTimeout = 5 * time.Second

var _ interfaces.IDataExchanger = (*BroadcastServer)(nil)

// TickRecorder receives a copy of every tick. *storage.Recorder satisfies it.
type TickRecorder interface {
	Enqueue(record models.MTickRecord) bool
}

// -----------------------------------------------------------------------------
// BroadcastServer
// -----------------------------------------------------------------------------

// BroadcastServer owns the subscriber set and the tick scheduler. Both, and the
// market state, are only touched by the hub goroutine started by Run.
type BroadcastServer struct {
	Config *models.MConfig
	Logger *logger.Logger
	engine *gin.Engine

	// Market
	state    *models.MMarketState
	updater  *market.UpdateEngine
	interval time.Duration
	recorder TickRecorder
	metrics  *feedMetrics

	// WebSocket clients (hub goroutine only)
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	tickNow    chan chan error
	tickCount  int64

	// Read side for REST views
	latestPayload []byte
	latestTick    int64
	latestAt      time.Time
	stateMutex    sync.RWMutex
	connections   atomic.Int64

	running atomic.Bool
	done    chan struct{}
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

// NewBroadcastServer wires the shared state handle and the engine that mutates
// it. The initial snapshot is serialized here so the first subscriber never
// sees an empty state.
func NewBroadcastServer(cfg *models.MConfig, log *logger.Logger, state *models.MMarketState, updater *market.UpdateEngine) (*BroadcastServer, error) {
	if strings.ToUpper(cfg.LogLevel) != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	payload, err := market.Serialize(state)
	if err != nil {
		return nil, err
	}

	interval := time.Duration(cfg.Feed.TickIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 5 * time.Second
	}

	s := &BroadcastServer{
		Config:        cfg,
		Logger:        log,
		engine:        gin.New(),
		state:         state,
		updater:       updater,
		interval:      interval,
		metrics:       newFeedMetrics(),
		clients:       make(map[*Client]struct{}),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		tickNow:       make(chan chan error),
		latestPayload: payload,
		latestAt:      time.Now(),
		done:          make(chan struct{}),
	}
	s.metrics.observeSnapshot(state, len(payload))

	s.engine.Use(gin.Recovery())
	s.engine.Use(corsMiddleware)

	s.setupRoutes()
	return s, nil
}

// -----------------------------------------------------------------------------

// SetRecorder installs the sink recorder. Call before Run.
func (s *BroadcastServer) SetRecorder(r TickRecorder) {
	s.recorder = r
}

// -----------------------------------------------------------------------------

// Handler exposes the HTTP routes (WebSocket, REST, metrics).
func (s *BroadcastServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------

// Local dashboard dev servers only
func corsMiddleware(c *gin.Context) {
	origin := c.Request.Header.Get("Origin")
	if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
	}
	c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
	c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
	c.Writer.Header().Set("Access-Control-Allow-Methods", "OPTIONS, GET")

	if c.Request.Method == "OPTIONS" {
		c.AbortWithStatus(204)
		return
	}

	c.Next()
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *BroadcastServer) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/snapshot", s.getSnapshot)
	s.engine.GET("/api/config", s.getConfig)
	s.engine.GET("/metrics", gin.WrapH(s.metrics.handler()))

	// WebSocket endpoints; "/" matches what the dashboard dials
	s.engine.GET("/", s.handleWebSocket)
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Listen binds addr. A failure here is the one fatal startup error.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, helpers.NewTransportError(fmt.Sprintf("failed to bind %s", addr), err)
	}
	return ln, nil
}

// -----------------------------------------------------------------------------

// Serve runs HTTP on ln and the hub until ctx is cancelled.
func (s *BroadcastServer) Serve(ctx context.Context, ln net.Listener) error {
	s.Logger.Info("Starting server on %s (tick every %v)", ln.Addr(), s.interval)

	httpServer := &http.Server{Handler: s.engine}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()

	hubDone := make(chan error, 1)
	go func() { hubDone <- s.Run(hubCtx) }()

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		<-hubDone
		s.Logger.Info("Server stopped")
		return err

	case err := <-serveErr:
		stopHub()
		<-hubDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return helpers.NewTransportError("http server failed", err)
	}
}

// -----------------------------------------------------------------------------

// Done is closed once the hub has exited.
func (s *BroadcastServer) Done() <-chan struct{} {
	return s.done
}

// -----------------------------------------------------------------------------

// ConnectionCount returns the number of registered subscribers.
func (s *BroadcastServer) ConnectionCount() int {
	return int(s.connections.Load())
}

// -----------------------------------------------------------------------------

// LatestPayload returns the last broadcast snapshot bytes.
func (s *BroadcastServer) LatestPayload() []byte {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.latestPayload
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *BroadcastServer) getHealth(c *gin.Context) {
	s.stateMutex.RLock()
	tick := s.latestTick
	at := s.latestAt
	s.stateMutex.RUnlock()

	status := "ok"
	select {
	case <-s.done:
		status = "stopped"
	default:
	}

	c.JSON(http.StatusOK, models.MHealth{
		Status:       status,
		Connections:  s.ConnectionCount(),
		Ticks:        tick,
		LatestUpdate: at.UnixMilli(),
	})
}

// -----------------------------------------------------------------------------

func (s *BroadcastServer) getSnapshot(c *gin.Context) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", s.LatestPayload())
}

// -----------------------------------------------------------------------------

func (s *BroadcastServer) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, models.MFeedSettings{
		TickIntervalMs: s.interval.Milliseconds(),
		HistoryLength:  s.Config.Feed.HistoryLength,
		MaxDelta:       s.Config.Feed.MaxDelta,
		SessionMIC:     s.Config.Feed.SessionMIC,
	})
}
