package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"market-feed/src/helpers"
	"market-feed/src/models"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. MARKET_FEED_PORT or
// MARKET_FEED_FEED_TICK_INTERVAL_MS.
const EnvPrefix = "MARKET_FEED"

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig builds the configuration from defaults, an optional YAML file and
// the environment (a .env file in the working directory is loaded first).
func NewConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, helpers.NewConfigurationError(fmt.Sprintf("failed to read config file '%s'", configPath), err)
		}
	}

	var modelConfig models.MConfig
	if err := v.Unmarshal(&modelConfig); err != nil {
		return nil, helpers.NewConfigurationError("failed to parse config", err)
	}

	config := &Config{MConfig: &modelConfig}

	if err := config.Validate(); err != nil {
		return nil, helpers.NewConfigurationError("config validation failed", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Default returns the built-in configuration without reading file or environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var modelConfig models.MConfig
	_ = v.Unmarshal(&modelConfig)
	return &Config{MConfig: &modelConfig}
}

// -----------------------------------------------------------------------------

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "market-feed")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "INFO")
	v.SetDefault("grpc_host", "0.0.0.0")
	v.SetDefault("grpc_port", 0)

	v.SetDefault("feed.tick_interval_ms", 5000)
	v.SetDefault("feed.history_length", 7)
	v.SetDefault("feed.max_delta", 0.5)
	v.SetDefault("feed.random_seed", 0)
	v.SetDefault("feed.seed_file", "")
	v.SetDefault("feed.session_mic", "")

	v.SetDefault("storage.db_type", "none")
	v.SetDefault("storage.db_path", "./data/market-feed.db")
	v.SetDefault("storage.db_connection_string", "")
	v.SetDefault("storage.redis_addr", "")
	v.SetDefault("storage.redis_channel", "market-feed:snapshots")
	v.SetDefault("storage.redis_key", "market-feed:latest")
	v.SetDefault("storage.queue_size", 64)

	v.SetDefault("subscriber.url", "ws://localhost:8080/ws")
	v.SetDefault("subscriber.reconnect", false)
	v.SetDefault("subscriber.reconnect_base_delay_ms", 1000)
	v.SetDefault("subscriber.reconnect_max_delay_ms", 30000)
	v.SetDefault("subscriber.max_reconnect_attempts", 0)
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1 and 65535)", c.Port)
	}
	if c.GrpcPort < 0 || c.GrpcPort > 65535 {
		return fmt.Errorf("invalid grpc port number: %d", c.GrpcPort)
	}
	if c.GrpcPort != 0 && c.GrpcPort == c.Port {
		return fmt.Errorf("grpc port must differ from server port")
	}

	// Feed
	if c.Feed.TickIntervalMs <= 0 {
		return fmt.Errorf("tick interval must be greater than 0")
	}
	if c.Feed.HistoryLength <= 0 {
		return fmt.Errorf("history length must be greater than 0")
	}
	if c.Feed.MaxDelta < 0 {
		return fmt.Errorf("max delta cannot be negative")
	}

	// Storage
	switch c.Storage.DBType {
	case "", "none":
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("database connection string cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Storage.DBType)
	}
	if c.Storage.QueueSize <= 0 {
		return fmt.Errorf("storage queue size must be greater than 0")
	}

	// Subscriber
	if c.Subscriber.URL != "" {
		u, err := url.Parse(c.Subscriber.URL)
		if err != nil {
			return fmt.Errorf("invalid subscriber url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("subscriber url must use ws or wss, got %q", u.Scheme)
		}
	}
	if c.Subscriber.ReconnectBaseDelayMs <= 0 {
		return fmt.Errorf("reconnect base delay must be greater than 0")
	}
	if c.Subscriber.ReconnectMaxDelayMs < c.Subscriber.ReconnectBaseDelayMs {
		return fmt.Errorf("reconnect max delay must be >= base delay")
	}
	if c.Subscriber.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max reconnect attempts cannot be negative")
	}

	return nil
}

// -----------------------------------------------------------------------------

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Feed.TickIntervalMs) * time.Millisecond
}

// -----------------------------------------------------------------------------

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// -----------------------------------------------------------------------------

// YAML renders the resolved configuration.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to YAML: %w", err)
	}
	return data, nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	data, err := c.YAML()
	if err != nil {
		return err
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
