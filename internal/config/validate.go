package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *ClientConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Server.validate(); err != nil {
		return err
	}

	if c.Reconnect.InitialDelay <= 0 {
		return errors.New("reconnect.initial_delay must be > 0")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		return fmt.Errorf("reconnect.max_delay (%s) cannot be less than initial_delay (%s)",
			c.Reconnect.MaxDelay, c.Reconnect.InitialDelay)
	}
	if c.Reconnect.Multiplier < 1 {
		return fmt.Errorf("reconnect.multiplier must be >= 1, got %g", c.Reconnect.Multiplier)
	}
	if c.Reconnect.MaxAttempts < 0 {
		return errors.New("reconnect.max_attempts must be >= 0")
	}

	if c.Jobs.Timeout <= 0 {
		return errors.New("jobs.timeout must be > 0")
	}
	if c.Jobs.ResendAfter <= 0 {
		return errors.New("jobs.resend_after must be > 0")
	}
	if c.Jobs.MaxResends < 0 {
		return errors.New("jobs.max_resends must be >= 0")
	}
	if c.Jobs.Concurrency < 1 {
		return errors.New("jobs.concurrency must be >= 1")
	}

	if c.Database.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 0 and 65535, got %d", c.Metrics.Port)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

func (s *ServerConfig) validate() error {
	if s.URL == "" {
		return errors.New("server.url is required")
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("server.url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server.url scheme must be ws or wss, got %q", u.Scheme)
	}
	if s.MaxPayloadBytes < 0 {
		return errors.New("server.max_payload_bytes must be >= 0")
	}
	return nil
}

func (db *DatabaseConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	if db.BatchSize < 1 {
		return fmt.Errorf("%s.batch_size must be >= 1", prefix)
	}
	return nil
}
