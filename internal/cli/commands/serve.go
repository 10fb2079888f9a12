package commands

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/pgboot/internal/bootstrap"
	"github.com/leapstack-labs/pgboot/internal/health"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Bootstrap the database and serve health endpoints",
		Long: `Run the startup sequence, then serve pool health over HTTP until the
process receives SIGINT or SIGTERM. On termination the pool stops accepting
acquisitions, waits up to the grace period for leased connections, and closes
everything.

Endpoints:
  /healthz       liveness
  /readyz        acquires a connection and pings the database
  /stats         pool counters as JSON
  /capabilities  the startup capability report`,
		Example: `  pgboot serve --http-addr :9090
  DATABASE_URL=postgres://localhost/app pgboot serve --grace-period 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}

			ctx, stop := bootstrap.SignalContext(cmd.Context())
			defer stop()
			return runServe(ctx, cc)
		},
	}

	cmd.Flags().String("http-addr", "", "Health server listen address (default :8080)")
	cmd.Flags().StringSlice("extensions", nil, "Extensions to provision (default: configured list)")

	return cmd
}

// runServe blocks until ctx is cancelled or the server fails. The pool is
// shut down exactly once before it returns.
func runServe(ctx context.Context, cc *CommandContext) error {
	p, b, err := cc.Open()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	hooksDone := b.RegisterShutdownHooks(ctx)

	report, err := b.Run(ctx, cc.Cfg.Extensions)
	if err != nil {
		cancel()
		<-hooksDone
		return err
	}

	srv := health.NewServer(health.Config{
		Addr:   cc.Cfg.HTTP.Addr,
		Pool:   p,
		Report: report,
		Logger: cc.Logger,
	})

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return srv.Serve(egctx)
	})
	eg.Go(func() error {
		<-egctx.Done()
		cc.Logger.Info("stopping", slog.String("reason", context.Cause(egctx).Error()))
		return nil
	})
	err = eg.Wait()

	cancel()
	<-hooksDone
	cc.Logger.Info("shutdown complete", slog.Any("stats", p.Stats()))
	return err
}
