package models

import (
	"strings"

	"market-feed/src/utils"
)

// -----------------------------------------------------------------------------
// Enumerations (wire values)
// -----------------------------------------------------------------------------

const (
	TrendUp   = "up"
	TrendDown = "down"

	ImpactPositive = "positive"
	ImpactNegative = "negative"

	OutlookIncrease = "increase"
	OutlookDecrease = "decrease"
	OutlookStable   = "stable"

	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// -----------------------------------------------------------------------------
// Snapshot Structure
// -----------------------------------------------------------------------------

// MCommodity is one quoted commodity. Name is the unique key.
type MCommodity struct {
	Name   string  `json:"name" yaml:"name"`
	Price  float64 `json:"price" yaml:"price"`
	Change float64 `json:"change" yaml:"change"`
	Trend  string  `json:"trend" yaml:"trend"`
}

// MInsight is editorial content, never mutated after startup.
type MInsight struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Impact      string `json:"impact" yaml:"impact"`
	Source      string `json:"source" yaml:"source"`
}

type MForecast struct {
	ShortTerm  string `json:"shortTerm" yaml:"shortTerm"`
	LongTerm   string `json:"longTerm" yaml:"longTerm"`
	Confidence string `json:"confidence" yaml:"confidence"`
}

// MPriceHistory maps a lower-cased commodity key to its sliding window of prices.
type MPriceHistory map[string]*utils.RingBuffer

// MMarketState is the full snapshot sent on every broadcast.
type MMarketState struct {
	Commodities  []MCommodity         `json:"commodities"`
	Insights     []MInsight           `json:"insights"`
	PriceHistory MPriceHistory        `json:"priceHistory"`
	Forecast     map[string]MForecast `json:"forecast"`
}

// -----------------------------------------------------------------------------

// TrendFor derives the trend from a change value.
func TrendFor(change float64) string {
	if change >= 0 {
		return TrendUp
	}
	return TrendDown
}

// -----------------------------------------------------------------------------

// FindCommodity returns the commodity whose name case-insensitively equals key.
func (s *MMarketState) FindCommodity(key string) (*MCommodity, bool) {
	for i := range s.Commodities {
		if strings.EqualFold(s.Commodities[i].Name, key) {
			return &s.Commodities[i], true
		}
	}
	return nil, false
}
