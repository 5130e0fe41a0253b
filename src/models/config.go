package models

// MConfig Structure
type MConfig struct {
	Name       string            `yaml:"name" mapstructure:"name"`
	Host       string            `yaml:"host" mapstructure:"host"`
	Port       int               `yaml:"port" mapstructure:"port"`
	LogLevel   string            `yaml:"log_level" mapstructure:"log_level"`
	GrpcHost   string            `yaml:"grpc_host" mapstructure:"grpc_host"`
	GrpcPort   int               `yaml:"grpc_port" mapstructure:"grpc_port"`
	Feed       MFeedConfig       `yaml:"feed" mapstructure:"feed"`
	Storage    MStorageConfig    `yaml:"storage" mapstructure:"storage"`
	Subscriber MSubscriberConfig `yaml:"subscriber" mapstructure:"subscriber"`
}

type MFeedConfig struct {
	TickIntervalMs int     `yaml:"tick_interval_ms" mapstructure:"tick_interval_ms"`
	HistoryLength  int     `yaml:"history_length" mapstructure:"history_length"`
	MaxDelta       float64 `yaml:"max_delta" mapstructure:"max_delta"`
	RandomSeed     int64   `yaml:"random_seed" mapstructure:"random_seed"` // 0 = seeded from clock
	SeedFile       string  `yaml:"seed_file" mapstructure:"seed_file"`
	SessionMIC     string  `yaml:"session_mic" mapstructure:"session_mic"` // empty = always open
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type" mapstructure:"db_type"` // none, sqlite, postgres
	DBPath             string `yaml:"db_path" mapstructure:"db_path"`
	DBConnectionString string `yaml:"db_connection_string" mapstructure:"db_connection_string"`
	RedisAddr          string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisChannel       string `yaml:"redis_channel" mapstructure:"redis_channel"`
	RedisKey           string `yaml:"redis_key" mapstructure:"redis_key"`
	QueueSize          int    `yaml:"queue_size" mapstructure:"queue_size"`
}

type MSubscriberConfig struct {
	URL                  string `yaml:"url" mapstructure:"url"`
	Reconnect            bool   `yaml:"reconnect" mapstructure:"reconnect"`
	ReconnectBaseDelayMs int    `yaml:"reconnect_base_delay_ms" mapstructure:"reconnect_base_delay_ms"`
	ReconnectMaxDelayMs  int    `yaml:"reconnect_max_delay_ms" mapstructure:"reconnect_max_delay_ms"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts" mapstructure:"max_reconnect_attempts"` // 0 = unlimited
}
