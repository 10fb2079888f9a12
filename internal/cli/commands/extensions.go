package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// ExtensionsOptions holds options for the extensions command.
type ExtensionsOptions struct {
	List   bool
	Strict bool
}

// NewExtensionsCommand creates the extensions command.
func NewExtensionsCommand() *cobra.Command {
	opts := &ExtensionsOptions{}

	cmd := &cobra.Command{
		Use:   "extensions [name...]",
		Short: "Enable database extensions",
		Long: `Enable the named extensions, or the configured list when no names are
given. Extensions that are already present are left alone, so the command
is safe to run repeatedly.`,
		Example: `  # Enable the configured extensions
  pgboot extensions

  # Enable specific extensions, failing if any cannot be enabled
  pgboot extensions postgis vector --strict

  # Show what is installed
  pgboot extensions --list`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			return runExtensions(cmd.Context(), cc, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.List, "list", false, "List installed extensions instead of enabling")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "Exit non-zero if any extension is unavailable")

	return cmd
}

func runExtensions(ctx context.Context, cc *CommandContext, names []string, opts *ExtensionsOptions) error {
	_, b, err := cc.Open()
	if err != nil {
		return err
	}
	defer b.Shutdown()

	if opts.List {
		installed, err := b.ListCapabilities(ctx)
		if err != nil {
			return err
		}
		return renderInstalled(cc.Renderer, installed)
	}

	if len(names) == 0 {
		names = cc.Cfg.Extensions
	}
	report := b.EnsureCapabilities(ctx, names)
	if err := renderReport(cc.Renderer, report); err != nil {
		return err
	}

	if opts.Strict {
		if err := report.Err(); err != nil {
			return fmt.Errorf("extensions unavailable: %w", err)
		}
	}
	return nil
}
