package server

import (
	"context"
	"net/http"
	"time"

	"market-feed/src/market"
	"market-feed/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// Run is the hub loop. Ticks, registrations and removals are handled one at a
// time, so a tick never overlaps another tick or a change to the client set.
// It returns nil once ctx is cancelled.
func (s *BroadcastServer) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrStopped
	}
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return nil

		case client := <-s.register:
			s.addClient(client)

		case client := <-s.unregister:
			s.removeClient(client)

		case <-ticker.C:
			s.runTick()

		case reply := <-s.tickNow:
			reply <- s.runTick()
		}
	}
}

// -----------------------------------------------------------------------------

// TickNow runs one tick on the hub goroutine outside the ticker schedule and
// waits for it to finish broadcasting.
func (s *BroadcastServer) TickNow(ctx context.Context) error {
	reply := make(chan error, 1)

	select {
	case s.tickNow <- reply:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// -----------------------------------------------------------------------------

func (s *BroadcastServer) runTick() error {
	moved := s.updater.Tick()

	payload, err := market.Serialize(s.state)
	if err != nil {
		// Nothing is sent for this tick; the next one retries.
		s.Logger.Error("Tick skipped: %v", err)
		s.metrics.serializeErrors.Inc()
		return err
	}

	s.tickCount++
	now := time.Now()

	s.stateMutex.Lock()
	s.latestPayload = payload
	s.latestTick = s.tickCount
	s.latestAt = now
	s.stateMutex.Unlock()

	sent, skipped := s.fanOut(payload)

	s.metrics.observeTick(moved, sent, skipped)
	s.metrics.observeSnapshot(s.state, len(payload))

	if !moved {
		s.Logger.Debug("Tick %d: session closed, prices held", s.tickCount)
	}
	s.Logger.Debug("Tick %d broadcast to %d clients (%d skipped)", s.tickCount, sent, skipped)

	if s.recorder != nil {
		commodities := make([]models.MCommodity, len(s.state.Commodities))
		copy(commodities, s.state.Commodities)
		s.recorder.Enqueue(models.MTickRecord{
			Tick:        s.tickCount,
			Timestamp:   now,
			Commodities: commodities,
			Payload:     payload,
		})
	}
	return nil
}

// -----------------------------------------------------------------------------

// fanOut hands the same bytes to every ready client without blocking. A client
// that is not ready or whose buffer is full misses this tick and stays
// registered; its read pump removes it when the connection actually dies.
func (s *BroadcastServer) fanOut(payload []byte) (sent, skipped int) {
	for client := range s.clients {
		if !client.isReady() || !client.enqueue(payload) {
			skipped++
			continue
		}
		sent++
	}
	return sent, skipped
}

// -----------------------------------------------------------------------------

func (s *BroadcastServer) addClient(client *Client) {
	s.clients[client] = struct{}{}
	n := s.connections.Add(1)
	s.metrics.connections.Set(float64(n))

	client.ready.Store(true)

	// Initial snapshot; the hub is the only writer of latestPayload
	client.enqueue(s.latestPayload)

	s.Logger.Info("Client %s connected from %s (%d active)", client.id, client.remote, n)
}

// -----------------------------------------------------------------------------

// removeClient is idempotent; the send channel is closed exactly once.
func (s *BroadcastServer) removeClient(client *Client) {
	if _, ok := s.clients[client]; !ok {
		return
	}
	delete(s.clients, client)
	client.ready.Store(false)
	close(client.send)

	n := s.connections.Add(-1)
	s.metrics.connections.Set(float64(n))
	s.Logger.Info("Client %s disconnected (%d active)", client.id, n)
}

// -----------------------------------------------------------------------------

func (s *BroadcastServer) closeAll() {
	for client := range s.clients {
		s.removeClient(client)
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *BroadcastServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Warning("Failed to upgrade websocket from %s: %v", c.ClientIP(), err)
		return
	}

	client := newClient(s, conn, c.ClientIP())

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}
