package models

import "time"

// MTickRecord is what the snapshot sinks receive after each tick.
type MTickRecord struct {
	Tick        int64
	Timestamp   time.Time
	Commodities []MCommodity
	Payload     []byte
}
