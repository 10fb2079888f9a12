package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/pgboot/internal/cli/output"
	"github.com/leapstack-labs/pgboot/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const configFileName = "pgboot.yaml"

// starterConfig is the shape of the generated config file. Durations are
// written as strings so the file stays readable.
type starterConfig struct {
	DatabaseURL string `yaml:"database_url"`
	Environment string `yaml:"environment"`
	Pool        struct {
		MaxConns       int    `yaml:"max_conns"`
		IdleTimeout    string `yaml:"idle_timeout"`
		AcquireTimeout string `yaml:"acquire_timeout"`
	} `yaml:"pool"`
	Shutdown struct {
		GracePeriod string `yaml:"grace_period"`
	} `yaml:"shutdown"`
	Extensions []string `yaml:"extensions"`
	Log        struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
}

func newStarterConfig() starterConfig {
	d := config.Default()

	var s starterConfig
	s.DatabaseURL = "${DATABASE_URL}"
	s.Environment = d.Environment
	s.Pool.MaxConns = d.Pool.MaxConns
	s.Pool.IdleTimeout = d.Pool.IdleTimeout.String()
	s.Pool.AcquireTimeout = d.Pool.AcquireTimeout.String()
	s.Shutdown.GracePeriod = d.Shutdown.GracePeriod.String()
	s.Extensions = d.Extensions
	s.Log.Level = d.Log.Level
	s.Log.Format = d.Log.Format
	s.HTTP.Addr = d.HTTP.Addr
	return s
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a starter pgboot.yaml",
		Long: `Write a pgboot.yaml populated with the default settings.

The generated database_url reads DATABASE_URL from the environment when the
file is loaded, so the file can be committed without credentials.`,
		Example: `  # Initialize in current directory
  pgboot init

  # Initialize in another directory
  pgboot init deploy/

  # Force overwrite existing config
  pgboot init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			mode, _ := cmd.Flags().GetString("output")
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(mode))
			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, configFileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", configFileName)
	}

	data, err := marshalStarterConfig()
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}

	r.Success("Created " + configPath)
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Export DATABASE_URL or edit database_url")
	r.Println("  2. Run 'pgboot verify' to check connectivity and extensions")
	return nil
}

func marshalStarterConfig() ([]byte, error) {
	var root yaml.Node
	if err := root.Encode(newStarterConfig()); err != nil {
		return nil, err
	}
	root.HeadComment = "pgboot configuration.\nEnvironment variables (DATABASE_URL, APP_ENV, PGBOOT_*) and flags override these values."

	for i := 0; i+1 < len(root.Content); i += 2 {
		switch root.Content[i].Value {
		case "database_url":
			root.Content[i].HeadComment = "${VAR} references are expanded when the file is loaded."
		case "extensions":
			root.Content[i].HeadComment = "Enabled at startup with CREATE EXTENSION IF NOT EXISTS."
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
