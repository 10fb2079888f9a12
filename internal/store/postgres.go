package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

// PgxDialer dials PostgreSQL with pgx using a parsed connection string.
type PgxDialer struct {
	config *pgx.ConnConfig
	logger *slog.Logger
}

// NewPgxDialer parses connString (URL or key=value form) and applies mode.
// If logger is nil, a discard logger is used.
func NewPgxDialer(connString string, mode TLSMode, logger *slog.Logger) (*PgxDialer, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg, err := parseConnConfig(connString, mode)
	if err != nil {
		return nil, err
	}
	return &PgxDialer{config: cfg, logger: logger}, nil
}

func parseConnConfig(connString string, mode TLSMode) (*pgx.ConnConfig, error) {
	if connString == "" {
		return nil, fmt.Errorf("connection string is empty")
	}
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if err := applyTLS(&cfg.Config, mode); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Target describes the dial target without credentials, for logs.
func (d *PgxDialer) Target() string {
	return fmt.Sprintf("%s:%d/%s", d.config.Host, d.config.Port, d.config.Database)
}

// Dial opens a new connection. The context deadline bounds the whole
// connect handshake; on failure pgx has already closed the socket.
func (d *PgxDialer) Dial(ctx context.Context) (Conn, error) {
	conn, err := pgx.ConnectConfig(ctx, d.config.Copy())
	if err != nil {
		d.logger.Debug("dial failed", slog.String("target", d.Target()), slog.String("error", err.Error()))
		return nil, err
	}
	d.logger.Debug("dialed postgres", slog.String("target", d.Target()))
	return &pgxConn{conn: conn}, nil
}

type pgxConn struct {
	conn *pgx.Conn
}

func (c *pgxConn) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return c.conn.Query(ctx, sql, args...)
}

func (c *pgxConn) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return c.conn.QueryRow(ctx, sql, args...)
}

func (c *pgxConn) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := c.conn.Exec(ctx, sql, args...)
	return err
}

func (c *pgxConn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *pgxConn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// Ensure PgxDialer implements Dialer
var _ Dialer = (*PgxDialer)(nil)
