package interfaces

import "context"

// -----------------------------------------------------------------------------
// IDataExchanger is the push side of the feed: it owns subscribers and publishes
// snapshots to them.
// -----------------------------------------------------------------------------

type IDataExchanger interface {
	// -----------------------------------------------------------------------------
	// Run drives the tick scheduler and fan-out until ctx is cancelled.
	Run(ctx context.Context) error

	// -----------------------------------------------------------------------------
	// TickNow runs one tick + broadcast immediately and waits for it.
	TickNow(ctx context.Context) error

	// -----------------------------------------------------------------------------
	// ConnectionCount returns the number of registered subscribers.
	ConnectionCount() int
}
