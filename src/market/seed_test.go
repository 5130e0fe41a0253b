package market

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	content := `
commodities:
  - name: Sorghum
    price: 4.10
    change: -0.05
insights:
  - title: Sorghum demand steady
    description: Export bookings unchanged week over week.
    impact: positive
    source: Local co-op
priceHistory:
  sorghum: [4.0, 4.05, 4.1]
forecast:
  sorghum:
    shortTerm: stable
    longTerm: increase
    confidence: low
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	seed, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if len(seed.Commodities) != 1 || seed.Commodities[0].Name != "Sorghum" {
		t.Fatalf("commodities = %+v", seed.Commodities)
	}
	if seed.Forecast["sorghum"].LongTerm != "increase" {
		t.Errorf("forecast = %+v", seed.Forecast["sorghum"])
	}

	state := NewMarketState(seed, 7)
	if state.Commodities[0].Trend != "down" {
		t.Errorf("trend = %q, want down", state.Commodities[0].Trend)
	}
	if state.PriceHistory["sorghum"].Size() != 3 {
		t.Errorf("history size = %d, want 3", state.PriceHistory["sorghum"].Size())
	}
}

func TestLoadSeed_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	content := `
commodities:
  - name: Corn
    price: 5
  - name: corn
    price: 6
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSeed(path); err == nil {
		t.Error("expected duplicate commodity error")
	}

	if _, err := LoadSeed(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefaultSeed_Valid(t *testing.T) {
	if err := DefaultSeed().Validate(); err != nil {
		t.Errorf("DefaultSeed invalid: %v", err)
	}
}

func TestSeedValidate_KeyCollisions(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Seed)
		wantErr bool
	}{
		{"distinct keys", func(s *Seed) {}, false},
		{"history case collision", func(s *Seed) {
			s.PriceHistory["Wheat"] = []float64{1, 2}
		}, true},
		{"forecast case collision", func(s *Seed) {
			s.Forecast["CORN"] = s.Forecast["corn"]
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seed := DefaultSeed()
			tt.mutate(&seed)
			err := seed.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
