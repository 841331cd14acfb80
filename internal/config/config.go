package config

import "time"

// ClientConfig is the root configuration for an enhancer client instance.
type ClientConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Server    ServerConfig    `yaml:"server"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Database  DatabaseConfig  `yaml:"database"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// InstanceConfig identifies this client.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig holds the enhancement service WebSocket settings.
type ServerConfig struct {
	URL              string        `yaml:"url"`
	AuthToken        string        `yaml:"auth_token"` // Sent as a Bearer token on the upgrade request
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	MaxPayloadBytes  int64         `yaml:"max_payload_bytes"`
}

// ReconnectConfig holds the reconnect backoff policy.
type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Disabled     bool          `yaml:"disabled"`
	MaxAttempts  int           `yaml:"max_attempts"` // 0 = retry forever
}

// JobsConfig holds request/response correlation settings.
type JobsConfig struct {
	ResendAfter  time.Duration `yaml:"resend_after"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxResends   int           `yaml:"max_resends"`
	TickInterval time.Duration `yaml:"tick_interval"`
	Concurrency  int           `yaml:"concurrency"`
	OutputDir    string        `yaml:"output_dir"`
}

// DatabaseConfig holds the optional Postgres job journal.
type DatabaseConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Name          string        `yaml:"name"`
	User          string        `yaml:"user"`
	Password      string        `yaml:"password"`
	SSLMode       string        `yaml:"ssl_mode"`
	MaxConns      int           `yaml:"max_conns"`
	MinConns      int           `yaml:"min_conns"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// MetricsConfig holds Prometheus and health endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"` // 0 disables the server
	Path string `yaml:"path"`
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
