package config

import (
	"time"

	"github.com/leapstack-labs/pgboot/internal/bootstrap"
	"github.com/leapstack-labs/pgboot/internal/pool"
)

// Default configuration values.
const (
	DefaultEnvironment = "development"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "json"
	DefaultHTTPAddr    = ":8080"
	DefaultOutput      = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)

// DefaultExtensions are provisioned when no list is configured.
var DefaultExtensions = []string{"postgis", "vector"}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Environment: DefaultEnvironment,
		Pool: PoolConfig{
			MaxConns:       pool.DefaultMaxConns,
			IdleTimeout:    pool.DefaultIdleTimeout,
			AcquireTimeout: pool.DefaultAcquireTimeout,
		},
		Shutdown: ShutdownConfig{
			GracePeriod: bootstrap.DefaultGracePeriod,
		},
		Extensions: append([]string(nil), DefaultExtensions...),
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		HTTP:   HTTPConfig{Addr: DefaultHTTPAddr},
		Output: DefaultOutput,
	}
}

// defaultMap is Default flattened to koanf keys.
func defaultMap() map[string]interface{} {
	d := Default()
	return map[string]interface{}{
		"environment":           d.Environment,
		"pool.max_conns":        d.Pool.MaxConns,
		"pool.idle_timeout":     d.Pool.IdleTimeout,
		"pool.acquire_timeout":  d.Pool.AcquireTimeout,
		"pool.reap_interval":    time.Duration(0),
		"shutdown.grace_period": d.Shutdown.GracePeriod,
		"extensions":            d.Extensions,
		"log.level":             d.Log.Level,
		"log.format":            d.Log.Format,
		"http.addr":             d.HTTP.Addr,
		"output":                d.Output,
	}
}
