package market

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"market-feed/src/models"
	"market-feed/src/utils"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------
// Seed data
// -----------------------------------------------------------------------------

// Seed is the startup content of a MarketState, as read from a YAML seed file.
type Seed struct {
	Commodities  []models.MCommodity         `yaml:"commodities"`
	Insights     []models.MInsight           `yaml:"insights"`
	PriceHistory map[string][]float64        `yaml:"priceHistory"`
	Forecast     map[string]models.MForecast `yaml:"forecast"`
}

// -----------------------------------------------------------------------------

// DefaultSeed returns the built-in grain market.
func DefaultSeed() Seed {
	return Seed{
		Commodities: []models.MCommodity{
			{Name: "Wheat", Price: 8.25, Change: 1.85, Trend: models.TrendUp},
			{Name: "Corn", Price: 5.77, Change: -0.23, Trend: models.TrendDown},
			{Name: "Soybeans", Price: 14.20, Change: 2.97, Trend: models.TrendUp},
			{Name: "Rice", Price: 17.50, Change: 0.85, Trend: models.TrendUp},
			{Name: "Barley", Price: 6.40, Change: -0.15, Trend: models.TrendDown},
		},
		Insights: []models.MInsight{
			{
				Title:       "Wheat prices rising due to drought concerns",
				Description: "Prolonged dry conditions in major wheat producing regions are driving up prices. Consider timing your sales carefully.",
				Impact:      models.ImpactPositive,
				Source:      "USDA Weekly Report",
			},
			{
				Title:       "Corn futures trending down after bumper crop predictions",
				Description: "Updated forecasts suggest a larger than expected corn harvest this season, pushing prices lower.",
				Impact:      models.ImpactNegative,
				Source:      "Commodity Futures Trading Commission",
			},
			{
				Title:       "Potential trade agreement to boost soybean exports",
				Description: "Upcoming trade negotiations could reduce tariffs on soybeans, potentially opening new markets.",
				Impact:      models.ImpactPositive,
				Source:      "International Trade Commission",
			},
		},
		PriceHistory: map[string][]float64{
			"wheat":    {7.8, 7.9, 8.0, 8.1, 7.9, 8.0, 8.25},
			"corn":     {6.1, 6.0, 5.9, 5.85, 5.8, 5.75, 5.77},
			"soybeans": {13.2, 13.4, 13.5, 13.7, 13.9, 14.1, 14.2},
		},
		Forecast: map[string]models.MForecast{
			"wheat":    {ShortTerm: models.OutlookIncrease, LongTerm: models.OutlookStable, Confidence: models.ConfidenceHigh},
			"corn":     {ShortTerm: models.OutlookDecrease, LongTerm: models.OutlookIncrease, Confidence: models.ConfidenceMedium},
			"soybeans": {ShortTerm: models.OutlookIncrease, LongTerm: models.OutlookIncrease, Confidence: models.ConfidenceHigh},
		},
	}
}

// -----------------------------------------------------------------------------

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("failed to read seed file '%s': %w", path, err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("failed to parse seed file '%s': %w", path, err)
	}

	if err := seed.Validate(); err != nil {
		return Seed{}, fmt.Errorf("invalid seed file '%s': %w", path, err)
	}
	return seed, nil
}

// -----------------------------------------------------------------------------

// Validate checks the invariants a seed must already satisfy.
func (s Seed) Validate() error {
	seen := make(map[string]struct{}, len(s.Commodities))
	for _, c := range s.Commodities {
		if c.Name == "" {
			return fmt.Errorf("commodity name cannot be empty")
		}
		key := strings.ToLower(c.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate commodity %q", c.Name)
		}
		seen[key] = struct{}{}
		if c.Price < 0 {
			return fmt.Errorf("commodity %q has negative price", c.Name)
		}
	}

	if err := uniqueFold("priceHistory", keysOf(s.PriceHistory)); err != nil {
		return err
	}
	return uniqueFold("forecast", keysOf(s.Forecast))
}

// uniqueFold rejects keys that collide once lower-cased.
func uniqueFold(section string, keys []string) error {
	sort.Strings(keys)
	seen := make(map[string]string, len(keys))
	for _, k := range keys {
		lower := strings.ToLower(k)
		if prev, dup := seen[lower]; dup {
			return fmt.Errorf("%s keys %q and %q collide", section, prev, k)
		}
		seen[lower] = k
	}
	return nil
}

func keysOf[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// -----------------------------------------------------------------------------

// NewMarketState builds the single MarketState from a seed. Each history series
// keeps at most historyLength of its newest points and is never padded; the
// resulting length is then fixed for the life of the state. Trends are re-derived from the seeded change.
func NewMarketState(seed Seed, historyLength int) *models.MMarketState {
	state := &models.MMarketState{
		Commodities:  make([]models.MCommodity, len(seed.Commodities)),
		Insights:     make([]models.MInsight, len(seed.Insights)),
		PriceHistory: make(models.MPriceHistory, len(seed.PriceHistory)),
		Forecast:     make(map[string]models.MForecast, len(seed.Forecast)),
	}

	copy(state.Commodities, seed.Commodities)
	for i := range state.Commodities {
		state.Commodities[i].Trend = models.TrendFor(state.Commodities[i].Change)
	}
	copy(state.Insights, seed.Insights)

	for key, series := range seed.PriceHistory {
		window := utils.NewRingBufferFrom(series)
		// Trim only; a short series keeps its own length
		if historyLength > 0 && historyLength < window.Size() {
			window.Resize(historyLength)
		}
		state.PriceHistory[strings.ToLower(key)] = window
	}

	for key, f := range seed.Forecast {
		state.Forecast[strings.ToLower(key)] = f
	}

	return state
}
