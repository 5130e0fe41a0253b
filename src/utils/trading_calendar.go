package utils

import (
	"log"
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers "is the exchange open" using scmhub/calendar.
type TradingCalendar struct {
	MIC      string
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// -----------------------------------------------------------------------------

// GetCalendar loads the calendar for a MIC code (ISO 10383, e.g. "xnys", "xcbt").
// Unknown MICs fall back to a Mon-Fri 09:30-14:15 Chicago session, the CBOT grain day session.
func GetCalendar(mic string) *TradingCalendar {
	mic = strings.ToLower(strings.TrimSpace(mic))

	cal := calendar.GetCalendar(mic)
	if cal == nil {
		log.Printf("WARNING: No calendar for MIC '%s'. Using simple fallback (Mon-Fri 09:30-14:15 America/Chicago).", mic)
		loc, _ := time.LoadLocation("America/Chicago")
		if loc == nil {
			loc = time.UTC
		}
		return &TradingCalendar{MIC: mic, Fallback: true, Timezone: loc}
	}

	return &TradingCalendar{MIC: mic, Calendar: cal, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenOnMinute checks if the market is open at a specific minute.
func (tc *TradingCalendar) IsOpenOnMinute(t time.Time) bool {
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}

	if tc.Fallback {
		if !tc.IsTradingDay(t) {
			return false
		}
		minutes := t.Hour()*60 + t.Minute()
		return minutes >= 9*60+30 && minutes < 14*60+15
	}

	return tc.Calendar.IsOpen(t)
}
