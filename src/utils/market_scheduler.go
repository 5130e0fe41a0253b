package utils

import (
	"sync"
	"time"

	"market-feed/src/logger"
)

// SessionGate reports whether the simulated market is in session.
// A gate without calendar is always open.
type SessionGate struct {
	Calendar *TradingCalendar
	Logger   *logger.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastOpen *bool
}

// -----------------------------------------------------------------------------

func NewSessionGate(mic string, l *logger.Logger) *SessionGate {
	g := &SessionGate{Logger: l, now: time.Now}
	if mic != "" {
		g.Calendar = GetCalendar(mic)
		l.Info("SessionGate: ticks follow the %s trading calendar", g.Calendar.MIC)
	}
	return g
}

// -----------------------------------------------------------------------------

// IsOpen is called once per tick. Session transitions are logged.
func (g *SessionGate) IsOpen() bool {
	if g == nil || g.Calendar == nil {
		return true
	}

	open := g.Calendar.IsOpenOnMinute(g.now().UTC())

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastOpen == nil || *g.lastOpen != open {
		if open {
			g.Logger.Info("SessionGate: %s session open, prices resume", g.Calendar.MIC)
		} else {
			g.Logger.Info("SessionGate: %s session closed, prices frozen", g.Calendar.MIC)
		}
		g.lastOpen = &open
	}
	return open
}
