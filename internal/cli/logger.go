package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/pgboot/internal/config"
)

// NewLogger builds the process logger from the log settings. JSON records
// are the default; "text" selects slog's key=value handler.
func NewLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	level, err := config.ParseLogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}
