package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID       = "enhancer"
	DefaultServerURL        = "ws://localhost:5000/ws"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultPingTimeout      = 90 * time.Second
	DefaultMaxPayloadBytes  = 32 << 20
	DefaultReconnectInitial = 1 * time.Second
	DefaultReconnectMax     = 5 * time.Second
	DefaultReconnectFactor  = 2.0
	DefaultResendAfter      = 30 * time.Second
	DefaultJobTimeout       = 2 * time.Minute
	DefaultMaxResends       = 2
	DefaultJobTick          = 1 * time.Second
	DefaultJobConcurrency   = 4
	DefaultOutputDir        = "enhanced"
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultBatchSize        = 100
	DefaultFlushInterval    = 1 * time.Second
	DefaultMetricsPath      = "/metrics"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// ApplyDefaults fills unset optional fields.
func (c *ClientConfig) ApplyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Server defaults
	if c.Server.URL == "" {
		c.Server.URL = DefaultServerURL
	}
	if c.Server.HandshakeTimeout == 0 {
		c.Server.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = DefaultPingInterval
	}
	if c.Server.PingTimeout == 0 {
		c.Server.PingTimeout = DefaultPingTimeout
	}
	if c.Server.MaxPayloadBytes == 0 {
		c.Server.MaxPayloadBytes = DefaultMaxPayloadBytes
	}

	// Reconnect defaults
	if c.Reconnect.InitialDelay == 0 {
		c.Reconnect.InitialDelay = DefaultReconnectInitial
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultReconnectMax
	}
	if c.Reconnect.Multiplier == 0 {
		c.Reconnect.Multiplier = DefaultReconnectFactor
	}

	// Jobs defaults
	if c.Jobs.ResendAfter == 0 {
		c.Jobs.ResendAfter = DefaultResendAfter
	}
	if c.Jobs.Timeout == 0 {
		c.Jobs.Timeout = DefaultJobTimeout
	}
	if c.Jobs.MaxResends == 0 {
		c.Jobs.MaxResends = DefaultMaxResends
	}
	if c.Jobs.TickInterval == 0 {
		c.Jobs.TickInterval = DefaultJobTick
	}
	if c.Jobs.Concurrency == 0 {
		c.Jobs.Concurrency = DefaultJobConcurrency
	}
	if c.Jobs.OutputDir == "" {
		c.Jobs.OutputDir = DefaultOutputDir
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}
	if c.Database.BatchSize == 0 {
		c.Database.BatchSize = DefaultBatchSize
	}
	if c.Database.FlushInterval == 0 {
		c.Database.FlushInterval = DefaultFlushInterval
	}

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}
