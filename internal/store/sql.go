package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
)

// OpenSQL opens a *sql.DB backed by the pgx stdlib driver with the given
// TLS mode applied. No connection is made until first use.
func OpenSQL(connString string, mode TLSMode) (*sql.DB, error) {
	cfg, err := parseConnConfig(connString, mode)
	if err != nil {
		return nil, err
	}
	return stdlib.OpenDB(*cfg), nil
}

// SQLDialer leases dedicated connections from an existing *sql.DB. Closing a
// Conn returned by Dial hands it back to the *sql.DB.
type SQLDialer struct {
	db *sql.DB
}

// NewSQLDialer wraps db.
func NewSQLDialer(db *sql.DB) *SQLDialer {
	return &SQLDialer{db: db}
}

// Dial checks out a dedicated connection.
func (d *SQLDialer) Dial(ctx context.Context) (Conn, error) {
	if d.db == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqlConn{conn: conn}, nil
}

type sqlConn struct {
	conn *sql.Conn
}

func (c *sqlConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (c *sqlConn) QueryRow(ctx context.Context, query string, args ...any) Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

func (c *sqlConn) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.conn.ExecContext(ctx, query, args...)
	return err
}

func (c *sqlConn) Ping(ctx context.Context) error {
	return c.conn.PingContext(ctx)
}

func (c *sqlConn) Close(_ context.Context) error {
	return c.conn.Close()
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	_ = r.Rows.Close()
}

// Ensure SQLDialer implements Dialer
var _ Dialer = (*SQLDialer)(nil)
