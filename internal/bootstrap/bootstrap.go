// Package bootstrap prepares the database environment at process start:
// it verifies connectivity, makes sure optional extensions are enabled, and
// ties pool shutdown to process termination.
package bootstrap

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/leapstack-labs/pgboot/internal/pool"
)

// DefaultGracePeriod is how long shutdown waits for leased handles.
const DefaultGracePeriod = 10 * time.Second

const probeQuery = "SELECT NOW()"

// Pool is the part of *pool.Pool the bootstrapper needs.
type Pool interface {
	Acquire(ctx context.Context) (*pool.Handle, error)
	Release(h *pool.Handle) error
	Shutdown(grace time.Duration)
}

// Options configures a Bootstrapper.
type Options struct {
	// GracePeriod bounds the wait for leased handles on shutdown.
	// Zero means DefaultGracePeriod.
	GracePeriod time.Duration

	// Logger receives lifecycle records. Nil discards them.
	Logger *slog.Logger
}

// Bootstrapper runs the startup and shutdown sequence around a pool.
type Bootstrapper struct {
	pool   Pool
	grace  time.Duration
	logger *slog.Logger

	shutdownOnce sync.Once
}

// New creates a Bootstrapper for p.
func New(p Pool, opts Options) *Bootstrapper {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Bootstrapper{
		pool:   p,
		grace:  opts.GracePeriod,
		logger: opts.Logger,
	}
}

// Verify leases one handle, runs a liveness probe, and hands it back.
// Any failure is wrapped in a *ConnectivityError and is not retried.
func (b *Bootstrapper) Verify(ctx context.Context) error {
	h, err := b.pool.Acquire(ctx)
	if err != nil {
		b.logger.Error("database connection failed", slog.String("error", err.Error()))
		return &ConnectivityError{Err: err}
	}

	var now time.Time
	if err := h.Conn().QueryRow(ctx, probeQuery).Scan(&now); err != nil {
		_ = h.Discard()
		b.logger.Error("database connection failed", slog.String("error", err.Error()))
		return &ConnectivityError{Err: err}
	}

	if err := b.pool.Release(h); err != nil {
		return &ConnectivityError{Err: err}
	}
	b.logger.Info("database connected", slog.Time("current_time", now))
	return nil
}

// Run verifies connectivity and then provisions capabilities. Only a
// connectivity failure is returned as an error.
func (b *Bootstrapper) Run(ctx context.Context, capabilities []string) (Report, error) {
	if err := b.Verify(ctx); err != nil {
		return Report{}, err
	}
	return b.EnsureCapabilities(ctx, capabilities), nil
}

// Shutdown closes the pool with the configured grace period. Only the first
// call does anything.
func (b *Bootstrapper) Shutdown() {
	b.shutdownOnce.Do(func() {
		b.logger.Info("shutting down database pool", slog.Duration("grace_period", b.grace))
		b.pool.Shutdown(b.grace)
	})
}

// RegisterShutdownHooks runs Shutdown once stop is done and closes the
// returned channel when it has finished. The entry point owns stop and
// cancels it on SIGINT or SIGTERM (see SignalContext); signals that arrive
// after that are absorbed.
func (b *Bootstrapper) RegisterShutdownHooks(stop context.Context) <-chan struct{} {
	done := make(chan struct{})
	context.AfterFunc(stop, func() {
		defer close(done)
		b.Shutdown()
	})
	return done
}
