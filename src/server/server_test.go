package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"market-feed/src/config"
	"market-feed/src/helpers"
	"market-feed/src/logger"
	"market-feed/src/market"
	"market-feed/src/models"

	"github.com/gorilla/websocket"
)

// fixedSource always returns the same draw.
type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

type testFeed struct {
	server *BroadcastServer
	http   *httptest.Server
	cancel context.CancelFunc
}

// newTestFeed starts a hub with a schedule long enough that only TickNow
// produces ticks. Every draw moves prices by +0.25.
func newTestFeed(t *testing.T) *testFeed {
	t.Helper()

	cfg := config.Default()
	cfg.Feed.TickIntervalMs = int(time.Hour / time.Millisecond)
	cfg.LogLevel = "ERROR"

	state := market.NewMarketState(market.DefaultSeed(), cfg.Feed.HistoryLength)
	updater := market.NewUpdateEngine(state, fixedSource(0.75), market.DefaultMaxDelta)

	s, err := NewBroadcastServer(cfg.MConfig, logger.NewLogger("ERROR", "test"), state, updater)
	if err != nil {
		t.Fatalf("NewBroadcastServer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	ts := httptest.NewServer(s.Handler())
	f := &testFeed{server: s, http: ts, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		<-s.Done()
		ts.Close()
	})
	return f
}

func wsURL(httpURL, path string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + path
}

func (f *testFeed) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(f.http.URL, path), nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.TextMessage {
		t.Fatalf("frame type = %d, want text", kind)
	}
	return data
}

func decodeSnapshot(t *testing.T, data []byte) models.MMarketState {
	t.Helper()
	var state models.MMarketState
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return state
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// -----------------------------------------------------------------------------
// WebSocket behaviour
// -----------------------------------------------------------------------------

func TestConnect_ReceivesInitialSnapshot(t *testing.T) {
	f := newTestFeed(t)

	for _, path := range []string{"/", "/ws"} {
		conn := f.dial(t, path)
		state := decodeSnapshot(t, readFrame(t, conn))

		if len(state.Commodities) != 5 {
			t.Fatalf("%s: commodities = %d, want 5", path, len(state.Commodities))
		}
		if state.Commodities[0].Name != "Wheat" || state.Commodities[0].Price != 8.25 {
			t.Errorf("%s: first commodity = %+v", path, state.Commodities[0])
		}
		if len(state.Insights) != 3 {
			t.Errorf("%s: insights = %d, want 3", path, len(state.Insights))
		}
		if got := state.PriceHistory["wheat"].Values(); len(got) != 7 || got[6] != 8.25 {
			t.Errorf("%s: wheat history = %v", path, got)
		}
	}

	waitFor(t, "two connections", func() bool { return f.server.ConnectionCount() == 2 })
}

func TestTickNow_BroadcastsUpdatedState(t *testing.T) {
	f := newTestFeed(t)
	conn := f.dial(t, "/ws")
	readFrame(t, conn)

	if err := f.server.TickNow(context.Background()); err != nil {
		t.Fatalf("TickNow: %v", err)
	}

	state := decodeSnapshot(t, readFrame(t, conn))
	wheat := state.Commodities[0]
	if wheat.Price != 8.5 || wheat.Change != 0.25 || wheat.Trend != models.TrendUp {
		t.Errorf("wheat = %+v, want price 8.5 change 0.25 up", wheat)
	}

	history := state.PriceHistory["wheat"].Values()
	want := []float64{7.9, 8.0, 8.1, 7.9, 8.0, 8.25, 8.5}
	if len(history) != len(want) {
		t.Fatalf("history = %v", history)
	}
	for i := range want {
		if history[i] != want[i] {
			t.Errorf("history = %v, want %v", history, want)
			break
		}
	}
}

func TestFanOut_IdenticalPayloads(t *testing.T) {
	f := newTestFeed(t)
	a := f.dial(t, "/ws")
	b := f.dial(t, "/")
	readFrame(t, a)
	readFrame(t, b)

	if err := f.server.TickNow(context.Background()); err != nil {
		t.Fatalf("TickNow: %v", err)
	}

	fromA := readFrame(t, a)
	fromB := readFrame(t, b)
	if !bytes.Equal(fromA, fromB) {
		t.Error("subscribers received different payloads for the same tick")
	}
	if !bytes.Equal(fromA, f.server.LatestPayload()) {
		t.Error("broadcast payload differs from latest snapshot")
	}
}

func TestDisconnect_OthersKeepReceiving(t *testing.T) {
	f := newTestFeed(t)
	leaving := f.dial(t, "/ws")
	staying := f.dial(t, "/ws")
	readFrame(t, leaving)
	readFrame(t, staying)
	waitFor(t, "two connections", func() bool { return f.server.ConnectionCount() == 2 })

	leaving.Close()
	waitFor(t, "one connection", func() bool { return f.server.ConnectionCount() == 1 })

	if err := f.server.TickNow(context.Background()); err != nil {
		t.Fatalf("TickNow: %v", err)
	}
	state := decodeSnapshot(t, readFrame(t, staying))
	if state.Commodities[0].Price != 8.5 {
		t.Errorf("wheat price = %v, want 8.5", state.Commodities[0].Price)
	}
}

func TestTickNow_NoSubscribers(t *testing.T) {
	f := newTestFeed(t)

	for i := 0; i < 3; i++ {
		if err := f.server.TickNow(context.Background()); err != nil {
			t.Fatalf("TickNow %d: %v", i, err)
		}
	}

	state := decodeSnapshot(t, f.server.LatestPayload())
	if state.Commodities[0].Price != 9.0 {
		t.Errorf("wheat price after 3 ticks = %v, want 9", state.Commodities[0].Price)
	}
}

func TestTickNow_AfterStop(t *testing.T) {
	f := newTestFeed(t)
	f.cancel()
	<-f.server.Done()

	if err := f.server.TickNow(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("TickNow after stop = %v, want ErrStopped", err)
	}
}

// -----------------------------------------------------------------------------
// Hub internals
// -----------------------------------------------------------------------------

func newHubOnly(t *testing.T) *BroadcastServer {
	t.Helper()
	cfg := config.Default()
	state := market.NewMarketState(market.DefaultSeed(), cfg.Feed.HistoryLength)
	updater := market.NewUpdateEngine(state, fixedSource(0.5), market.DefaultMaxDelta)
	s, err := NewBroadcastServer(cfg.MConfig, logger.NewLogger("ERROR", "test"), state, updater)
	if err != nil {
		t.Fatalf("NewBroadcastServer: %v", err)
	}
	return s
}

func TestRemoveClient_Idempotent(t *testing.T) {
	s := newHubOnly(t)
	c := newClient(s, nil, "test")

	s.addClient(c)
	if s.ConnectionCount() != 1 {
		t.Fatalf("ConnectionCount = %d, want 1", s.ConnectionCount())
	}

	s.removeClient(c)
	s.removeClient(c)

	if s.ConnectionCount() != 0 {
		t.Errorf("ConnectionCount = %d after double remove, want 0", s.ConnectionCount())
	}
	if c.isReady() {
		t.Error("removed client still ready")
	}
}

func TestFanOut_SkipsWithoutRemoving(t *testing.T) {
	s := newHubOnly(t)

	full := newClient(s, nil, "full")
	s.addClient(full)
	for len(full.send) < cap(full.send) {
		full.send <- []byte("x")
	}

	pending := newClient(s, nil, "pending")
	s.addClient(pending)
	<-pending.send
	pending.ready.Store(false)

	healthy := newClient(s, nil, "healthy")
	s.addClient(healthy)
	<-healthy.send

	sent, skipped := s.fanOut([]byte("tick"))
	if sent != 1 || skipped != 2 {
		t.Errorf("sent/skipped = %d/%d, want 1/2", sent, skipped)
	}
	if s.ConnectionCount() != 3 {
		t.Errorf("ConnectionCount = %d, skipped clients must stay registered", s.ConnectionCount())
	}
	if got := <-healthy.send; string(got) != "tick" {
		t.Errorf("healthy got %q", got)
	}
}

func TestAddClient_QueuesInitialSnapshot(t *testing.T) {
	s := newHubOnly(t)
	c := newClient(s, nil, "test")
	s.addClient(c)

	select {
	case got := <-c.send:
		if !bytes.Equal(got, s.LatestPayload()) {
			t.Error("initial payload differs from latest snapshot")
		}
	default:
		t.Fatal("no initial snapshot queued")
	}
}

type captureRecorder struct {
	records []models.MTickRecord
}

func (r *captureRecorder) Enqueue(rec models.MTickRecord) bool {
	r.records = append(r.records, rec)
	return true
}

func TestRunTick_Records(t *testing.T) {
	s := newHubOnly(t)
	rec := &captureRecorder{}
	s.SetRecorder(rec)

	if err := s.runTick(); err != nil {
		t.Fatalf("runTick: %v", err)
	}
	if err := s.runTick(); err != nil {
		t.Fatalf("runTick: %v", err)
	}

	if len(rec.records) != 2 {
		t.Fatalf("records = %d, want 2", len(rec.records))
	}
	if rec.records[1].Tick != 2 || len(rec.records[1].Commodities) != 5 {
		t.Errorf("record = %+v", rec.records[1])
	}
	// Records are copies; later ticks must not rewrite them
	rec.records[0].Commodities[0].Price = -1
	if s.state.Commodities[0].Price == -1 {
		t.Error("record shares commodity storage with live state")
	}
}

// -----------------------------------------------------------------------------
// REST + lifecycle
// -----------------------------------------------------------------------------

func TestRESTEndpoints(t *testing.T) {
	f := newTestFeed(t)
	if err := f.server.TickNow(context.Background()); err != nil {
		t.Fatalf("TickNow: %v", err)
	}

	resp, err := http.Get(f.http.URL + "/api/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	var health struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Ticks       int64  `json:"ticks"`
	}
	json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if health.Status != "ok" || health.Ticks != 1 {
		t.Errorf("health = %+v", health)
	}

	resp, err = http.Get(f.http.URL + "/api/snapshot")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.Equal(body, f.server.LatestPayload()) {
		t.Error("snapshot endpoint differs from latest payload")
	}

	resp, err = http.Get(f.http.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "market_feed_ticks_total 1") {
		t.Error("metrics missing tick counter")
	}
	if !strings.Contains(string(body), `market_feed_commodity_price{commodity="Wheat"} 8.5`) {
		t.Error("metrics missing wheat price")
	}
}

func TestListen_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	_, err = Listen(ln.Addr().String())
	var te *helpers.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Listen on busy port = %v, want TransportError", err)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := newHubOnly(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "ws://" + ln.Addr().String() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readFrame(t, conn)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	// The hub closes the subscriber with a normal close frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("read after shutdown = %v, want normal close", err)
	}
}
