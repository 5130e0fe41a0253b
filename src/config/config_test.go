package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"market-feed/src/helpers"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig("")
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Feed.TickIntervalMs != 5000 {
		t.Errorf("TickIntervalMs = %d, want 5000", cfg.Feed.TickIntervalMs)
	}
	if cfg.Feed.HistoryLength != 7 {
		t.Errorf("HistoryLength = %d, want 7", cfg.Feed.HistoryLength)
	}
	if cfg.Feed.MaxDelta != 0.5 {
		t.Errorf("MaxDelta = %v, want 0.5", cfg.Feed.MaxDelta)
	}
	if cfg.Subscriber.Reconnect {
		t.Error("reconnect should be off by default")
	}
}

func TestNewConfig_FromFile(t *testing.T) {
	path := writeConfig(t, `
name: farm-feed
port: 9090
feed:
  tick_interval_ms: 250
  session_mic: xnys
storage:
  db_type: sqlite
  db_path: /tmp/feed.db
`)

	cfg, err := NewConfig(path)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}

	if cfg.Name != "farm-feed" || cfg.Port != 9090 {
		t.Errorf("name/port = %s/%d", cfg.Name, cfg.Port)
	}
	if cfg.TickInterval().Milliseconds() != 250 {
		t.Errorf("TickInterval = %v", cfg.TickInterval())
	}
	if cfg.Feed.SessionMIC != "xnys" {
		t.Errorf("SessionMIC = %q", cfg.Feed.SessionMIC)
	}
	// Unset keys keep their defaults
	if cfg.Feed.HistoryLength != 7 {
		t.Errorf("HistoryLength = %d, want default 7", cfg.Feed.HistoryLength)
	}
}

func TestNewConfig_EnvOverride(t *testing.T) {
	t.Setenv("MARKET_FEED_PORT", "9191")
	t.Setenv("MARKET_FEED_FEED_TICK_INTERVAL_MS", "1000")

	cfg, err := NewConfig("")
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.Port != 9191 {
		t.Errorf("Port = %d, want 9191", cfg.Port)
	}
	if cfg.Feed.TickIntervalMs != 1000 {
		t.Errorf("TickIntervalMs = %d, want 1000", cfg.Feed.TickIntervalMs)
	}
}

func TestNewConfig_MissingFile(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	var ce *helpers.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero port", func(c *Config) { c.Port = 0 }, true},
		{"zero tick", func(c *Config) { c.Feed.TickIntervalMs = 0 }, true},
		{"zero history", func(c *Config) { c.Feed.HistoryLength = 0 }, true},
		{"negative delta", func(c *Config) { c.Feed.MaxDelta = -1 }, true},
		{"unknown db", func(c *Config) { c.Storage.DBType = "mongo" }, true},
		{"postgres without dsn", func(c *Config) { c.Storage.DBType = "postgres" }, true},
		{"http subscriber url", func(c *Config) { c.Subscriber.URL = "http://localhost:8080" }, true},
		{"grpc equals http", func(c *Config) { c.GrpcPort = c.Port }, true},
		{"max below base", func(c *Config) { c.Subscriber.ReconnectMaxDelayMs = 1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	c := Default()
	c.Port = 9393
	path := filepath.Join(t.TempDir(), "saved.yaml")

	if err := c.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := NewConfig(path)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if loaded.Port != 9393 {
		t.Errorf("Port = %d, want 9393", loaded.Port)
	}
}
