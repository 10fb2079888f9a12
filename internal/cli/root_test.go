package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/pgboot/internal/cli/commands"
	clitestutil "github.com/leapstack-labs/pgboot/internal/cli/testutil"
	"github.com/leapstack-labs/pgboot/internal/config"
	"github.com/leapstack-labs/pgboot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory with no database settings
// inherited from the environment.
func isolate(t *testing.T) string {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "APP_ENV", "NODE_ENV"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func execute(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd()
	assert.Equal(t, "pgboot", root.Use)

	want := []string{"verify", "extensions", "serve", "init", "version", "completion"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, "command %q should exist", name)
		assert.Equal(t, name, cmd.Name())
	}

	flags := []string{"config", "database-url", "env", "tls-mode", "max-conns", "idle-timeout",
		"acquire-timeout", "grace-period", "log-level", "log-format", "output"}
	for _, flag := range flags {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestRoot_MissingDatabaseURL(t *testing.T) {
	isolate(t)

	_, _, err := execute(t, context.Background(), "verify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url is required")
}

func TestRoot_InvalidFlagValue(t *testing.T) {
	isolate(t)

	_, _, err := execute(t, context.Background(), "verify", "--database-url", "postgres://localhost/app", "--tls-mode", "strict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict")
}

func TestRoot_ConfigFileFlag(t *testing.T) {
	dir := isolate(t)
	path := clitestutil.WriteConfig(t, dir, "database_url: postgres://localhost/app\npool:\n  max_conns: -1\n")

	_, _, err := execute(t, context.Background(), "verify", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool.max_conns must be positive")

	_, _, err = execute(t, context.Background(), "verify", "--config", path, "--max-conns", "0")
	require.Error(t, err, "zero from a flag is still invalid")
}

func TestRoot_VerifyEndToEnd(t *testing.T) {
	isolate(t)
	t.Setenv("DATABASE_URL", "postgres://app@localhost/app")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery(regexp.QuoteMeta("SELECT NOW()")).
		WillReturnRows(sqlmock.NewRows([]string{"now"}).AddRow(time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = $1)")).
		WithArgs("pg_trgm").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ctx := commands.WithDialer(context.Background(), store.NewSQLDialer(db))
	out, logs, err := execute(t, ctx, "verify", "-o", "json", "--extensions", "pg_trgm", "--log-level", "debug")
	require.NoError(t, err)

	var report commands.ReportJSON
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Capabilities, 1)
	assert.Equal(t, "pg_trgm", report.Capabilities[0].Name)
	assert.Equal(t, "present", report.Capabilities[0].Outcome)

	assert.Contains(t, logs, `"msg":"database connected"`)
	assert.Contains(t, logs, `"msg":"pool closed"`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoot_InitWritesLoadableConfig(t *testing.T) {
	dir := isolate(t)

	out, _, err := execute(t, context.Background(), "init", "-o", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "Created pgboot.yaml")

	path := filepath.Join(dir, "pgboot.yaml")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "${DATABASE_URL}")

	_, _, err = execute(t, context.Background(), "init")
	require.Error(t, err, "existing file is not overwritten")
	assert.Contains(t, err.Error(), "--force")

	_, _, err = execute(t, context.Background(), "init", "--force")
	require.NoError(t, err)

	t.Setenv("DATABASE_URL", "postgres://app@db/app")
	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://app@db/app", cfg.DatabaseURL)
	assert.Equal(t, config.Default().Pool, cfg.Pool)
	assert.Equal(t, config.DefaultExtensions, cfg.Extensions)
}

func TestRoot_Version(t *testing.T) {
	isolate(t)

	out, _, err := execute(t, context.Background(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "pgboot v"+Version)
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		wantErr bool
		check   func(t *testing.T, out string)
	}{
		{
			name: "json",
			cfg:  config.LogConfig{Level: "info", Format: "json"},
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, `"msg":"hello"`)
				assert.NotContains(t, out, "hidden")
			},
		},
		{
			name: "text debug",
			cfg:  config.LogConfig{Level: "debug", Format: "text"},
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "msg=hello")
				assert.Contains(t, out, "msg=hidden")
			},
		},
		{
			name:    "bad level",
			cfg:     config.LogConfig{Level: "loud", Format: "json"},
			wantErr: true,
		},
		{
			name:    "bad format",
			cfg:     config.LogConfig{Level: "info", Format: "xml"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewLogger(&buf, tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			logger.Info("hello")
			logger.Debug("hidden")
			logger.Log(context.Background(), slog.LevelDebug-1, "never")
			tt.check(t, buf.String())
		})
	}
}
