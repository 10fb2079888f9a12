// Package config loads pgboot configuration from defaults, a YAML file,
// environment variables, and command-line flags.
package config

import (
	"time"

	"github.com/leapstack-labs/pgboot/internal/store"
)

// Config holds all pgboot configuration options.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string (URL or key=value).
	DatabaseURL string `koanf:"database_url" yaml:"database_url"`

	// Environment is the deployment mode. "production" turns on relaxed TLS.
	Environment string `koanf:"environment" yaml:"environment"`

	// TLSMode overrides the environment-derived transport mode (off|relaxed).
	TLSMode string `koanf:"tls_mode" yaml:"tls_mode,omitempty"`

	Pool     PoolConfig     `koanf:"pool" yaml:"pool"`
	Shutdown ShutdownConfig `koanf:"shutdown" yaml:"shutdown"`

	// Extensions are the optional capabilities to provision at startup.
	Extensions []string `koanf:"extensions" yaml:"extensions"`

	Log  LogConfig  `koanf:"log" yaml:"log"`
	HTTP HTTPConfig `koanf:"http" yaml:"http"`

	// Output selects report rendering: auto, text, markdown, json.
	Output string `koanf:"output" yaml:"output,omitempty"`

	// File is the config file that was loaded, if any.
	File string `koanf:"-" yaml:"-"`
}

// PoolConfig holds connection pool limits.
type PoolConfig struct {
	MaxConns       int           `koanf:"max_conns" yaml:"max_conns"`
	IdleTimeout    time.Duration `koanf:"idle_timeout" yaml:"idle_timeout"`
	AcquireTimeout time.Duration `koanf:"acquire_timeout" yaml:"acquire_timeout"`
	ReapInterval   time.Duration `koanf:"reap_interval" yaml:"reap_interval,omitempty"`
}

// ShutdownConfig holds shutdown behavior.
type ShutdownConfig struct {
	GracePeriod time.Duration `koanf:"grace_period" yaml:"grace_period"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// HTTPConfig holds the health server settings used by serve.
type HTTPConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// TLS resolves the transport mode from TLSMode and Environment.
func (c *Config) TLS() (store.TLSMode, error) {
	return store.TLSModeFor(c.Environment, c.TLSMode)
}
