package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("database_url is required\nHint: set DATABASE_URL or use --database-url")
	}
	if c.Pool.MaxConns <= 0 {
		return fmt.Errorf("pool.max_conns must be positive, got %d", c.Pool.MaxConns)
	}
	if c.Pool.IdleTimeout <= 0 {
		return fmt.Errorf("pool.idle_timeout must be positive, got %s", c.Pool.IdleTimeout)
	}
	if c.Pool.AcquireTimeout <= 0 {
		return fmt.Errorf("pool.acquire_timeout must be positive, got %s", c.Pool.AcquireTimeout)
	}
	if c.Pool.ReapInterval < 0 {
		return fmt.Errorf("pool.reap_interval must not be negative, got %s", c.Pool.ReapInterval)
	}
	if c.Shutdown.GracePeriod < 0 {
		return fmt.Errorf("shutdown.grace_period must not be negative, got %s", c.Shutdown.GracePeriod)
	}
	if _, err := c.TLS(); err != nil {
		return err
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q (expected json or text)", c.Log.Format)
	}
	switch c.Output {
	case "", "auto", "text", "markdown", "json":
	default:
		return fmt.Errorf("unknown output format %q (expected auto, text, markdown or json)", c.Output)
	}
	return nil
}

// ParseLogLevel parses debug, info, warn or error.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
