package commands

import (
	"context"

	"github.com/leapstack-labs/pgboot/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewVerifyCommand creates the verify command.
func NewVerifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check database connectivity and provision extensions",
		Long: `Open the pool, run a probe query, and make sure every configured
extension is enabled. The pool is shut down before the command exits.

A connectivity failure exits non-zero. Extensions that cannot be enabled are
reported but do not fail the command.`,
		Example: `  # Verify using the configured extension list
  pgboot verify

  # Verify a specific set of extensions
  pgboot verify --extensions postgis,pg_trgm

  # Machine-readable report
  pgboot verify -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			return runVerify(cmd.Context(), cc)
		},
	}

	cmd.Flags().StringSlice("extensions", nil, "Extensions to provision (default: configured list)")

	return cmd
}

func runVerify(ctx context.Context, cc *CommandContext) error {
	_, b, err := cc.Open()
	if err != nil {
		return err
	}
	defer b.Shutdown()

	report, err := b.Run(ctx, cc.Cfg.Extensions)
	if err != nil {
		if cc.Renderer.EffectiveMode() != output.ModeJSON {
			cc.Renderer.Error("Database connection failed")
		}
		return err
	}

	if cc.Renderer.EffectiveMode() != output.ModeJSON {
		cc.Renderer.Success("Database connection verified")
	}
	return renderReport(cc.Renderer, report)
}
