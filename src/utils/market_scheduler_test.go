package utils

import (
	"testing"
	"time"

	"market-feed/src/logger"
)

func TestSessionGate_NoCalendarAlwaysOpen(t *testing.T) {
	g := NewSessionGate("", logger.NewLogger("ERROR", "test"))
	if !g.IsOpen() {
		t.Error("gate without calendar should be open")
	}

	var nilGate *SessionGate
	if !nilGate.IsOpen() {
		t.Error("nil gate should be open")
	}
}

func TestSessionGate_FallbackCalendar(t *testing.T) {
	g := NewSessionGate("not-a-mic", logger.NewLogger("ERROR", "test"))
	if !g.Calendar.Fallback {
		t.Fatal("expected fallback calendar for unknown MIC")
	}

	chicago := g.Calendar.Timezone

	// Wednesday 10:00 local
	g.now = func() time.Time { return time.Date(2025, 3, 5, 10, 0, 0, 0, chicago) }
	if !g.IsOpen() {
		t.Error("expected open on a weekday morning")
	}

	// Saturday
	g.now = func() time.Time { return time.Date(2025, 3, 8, 10, 0, 0, 0, chicago) }
	if g.IsOpen() {
		t.Error("expected closed on Saturday")
	}

	// Weekday after the close
	g.now = func() time.Time { return time.Date(2025, 3, 5, 15, 0, 0, 0, chicago) }
	if g.IsOpen() {
		t.Error("expected closed after 14:15")
	}
}
