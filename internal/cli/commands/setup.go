package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/leapstack-labs/pgboot/internal/bootstrap"
	"github.com/leapstack-labs/pgboot/internal/cli/output"
	"github.com/leapstack-labs/pgboot/internal/config"
	"github.com/leapstack-labs/pgboot/internal/pool"
	"github.com/leapstack-labs/pgboot/internal/store"
	"github.com/spf13/cobra"
)

// errConfigNotLoaded is returned when a command runs without the root
// command's pre-run hook.
var errConfigNotLoaded = errors.New("configuration not loaded")

type dialerKey struct{}

// WithDialer returns a context whose commands dial through d instead of
// building a PostgreSQL dialer from the configured URL.
func WithDialer(ctx context.Context, d store.Dialer) context.Context {
	return context.WithValue(ctx, dialerKey{}, d)
}

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer

	dialer store.Dialer
}

// NewCommandContext collects the config, logger and renderer stored by the
// root command.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	ctx := cmd.Context()
	cfg, ok := config.FromContext(ctx)
	if !ok {
		return nil, errConfigNotLoaded
	}

	d, _ := ctx.Value(dialerKey{}).(store.Dialer)
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(ctx),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output)),
		dialer:   d,
	}, nil
}

// Open builds the pool and its bootstrapper from the configuration.
// Callers own shutdown through the returned Bootstrapper.
func (c *CommandContext) Open() (*pool.Pool, *bootstrap.Bootstrapper, error) {
	d, err := c.storeDialer()
	if err != nil {
		return nil, nil, err
	}

	p, err := pool.New(pool.Config{
		Dialer:         d,
		MaxConns:       c.Cfg.Pool.MaxConns,
		IdleTimeout:    c.Cfg.Pool.IdleTimeout,
		AcquireTimeout: c.Cfg.Pool.AcquireTimeout,
		ReapInterval:   c.Cfg.Pool.ReapInterval,
		Logger:         c.Logger,
	})
	if err != nil {
		return nil, nil, err
	}

	b := bootstrap.New(p, bootstrap.Options{
		GracePeriod: c.Cfg.Shutdown.GracePeriod,
		Logger:      c.Logger,
	})
	return p, b, nil
}

func (c *CommandContext) storeDialer() (store.Dialer, error) {
	if c.dialer != nil {
		return c.dialer, nil
	}

	mode, err := c.Cfg.TLS()
	if err != nil {
		return nil, err
	}
	d, err := store.NewPgxDialer(c.Cfg.DatabaseURL, mode, c.Logger)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("using database", slog.String("target", d.Target()), slog.String("tls", string(mode)))
	return d, nil
}
