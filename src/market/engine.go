package market

import (
	"encoding/json"
	"math"

	"market-feed/src/helpers"
	"market-feed/src/models"

	"github.com/shopspring/decimal"
)

// DefaultMaxDelta bounds the per-tick random walk step.
const DefaultMaxDelta = 0.5

// Gate decides whether a tick moves prices. *utils.SessionGate satisfies it.
type Gate interface {
	IsOpen() bool
}

// -----------------------------------------------------------------------------
// UpdateEngine
// -----------------------------------------------------------------------------

// UpdateEngine advances a MarketState by one simulated step per Tick.
// It is not safe for concurrent use; the broadcast hub is its only caller.
type UpdateEngine struct {
	state    *models.MMarketState
	rng      RandomSource
	maxDelta float64
	gate     Gate
	ticks    int64
}

// -----------------------------------------------------------------------------

func NewUpdateEngine(state *models.MMarketState, rng RandomSource, maxDelta float64) *UpdateEngine {
	if maxDelta < 0 {
		maxDelta = DefaultMaxDelta
	}
	return &UpdateEngine{
		state:    state,
		rng:      rng,
		maxDelta: maxDelta,
	}
}

// -----------------------------------------------------------------------------

// SetGate installs a session gate. A nil gate means always open.
func (e *UpdateEngine) SetGate(g Gate) {
	e.gate = g
}

// -----------------------------------------------------------------------------

// State returns the state handle the engine mutates.
func (e *UpdateEngine) State() *models.MMarketState {
	return e.state
}

// -----------------------------------------------------------------------------

// Ticks returns how many ticks have moved prices.
func (e *UpdateEngine) Ticks() int64 {
	return e.ticks
}

// -----------------------------------------------------------------------------

// Tick applies one random-walk step to every commodity and slides the price
// history windows. It returns false when the session gate held prices.
func (e *UpdateEngine) Tick() bool {
	if e.gate != nil && !e.gate.IsOpen() {
		return false
	}

	for i := range e.state.Commodities {
		applyDelta(&e.state.Commodities[i], e.drawDelta())
	}

	// History keys without a matching commodity are left alone
	for key, window := range e.state.PriceHistory {
		if window == nil {
			continue
		}
		if c, ok := e.state.FindCommodity(key); ok {
			window.Push(c.Price)
		}
	}

	e.ticks++
	return true
}

// -----------------------------------------------------------------------------

// drawDelta returns a uniform value in [-maxDelta, +maxDelta).
func (e *UpdateEngine) drawDelta() float64 {
	return (e.rng.Float64()*2 - 1) * e.maxDelta
}

// -----------------------------------------------------------------------------

func applyDelta(c *models.MCommodity, delta float64) {
	newPrice := math.Max(0, c.Price+delta)

	c.Price = Round2(newPrice)
	c.Change = Round2(delta)
	c.Trend = models.TrendFor(c.Change)
}

// -----------------------------------------------------------------------------

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// -----------------------------------------------------------------------------

// Serialize encodes the full snapshot for the wire.
func Serialize(state *models.MMarketState) ([]byte, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, helpers.NewSerializationError("failed to encode market snapshot", err)
	}
	return payload, nil
}
