package interfaces

import (
	"context"

	"market-feed/src/models"
)

// -----------------------------------------------------------------------------
// ISnapshotSink receives a copy of every tick. Sinks are write-only: the market
// state is never restored from them.
// -----------------------------------------------------------------------------

type ISnapshotSink interface {

	// Name identifies the sink in logs.
	Name() string

	// -----------------------------------------------------------------------------

	// Initialize sets up schema / connections.
	Initialize(ctx context.Context) error

	// -----------------------------------------------------------------------------

	// Record stores one tick.
	Record(ctx context.Context, record models.MTickRecord) error

	// -----------------------------------------------------------------------------

	// Close releases the underlying connection.
	Close() error
}
