// Package store defines the query/command protocol spoken over a single
// PostgreSQL connection, with implementations backed by pgx and by
// database/sql.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Row is a single result row. Scan reports pgx.ErrNoRows or sql.ErrNoRows
// when the query returned nothing.
type Row interface {
	Scan(dest ...any) error
}

// Rows iterates a multi-row result. Callers must call Close and check Err.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Conn is one live link to the store. A Conn is not safe for concurrent use;
// the pool hands it to exactly one borrower at a time.
type Conn interface {
	// Query issues a query and returns its rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// QueryRow issues a query expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) Row

	// Exec issues a command and waits for its acknowledgement.
	Exec(ctx context.Context, sql string, args ...any) error

	// Ping performs an empty round trip.
	Ping(ctx context.Context) error

	// Close terminates the connection.
	Close(ctx context.Context) error
}

// Dialer opens new connections. Dial must honor the context deadline and must
// not leave a half-open connection behind when it returns an error.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// QuoteIdent quotes name as a PostgreSQL identifier.
func QuoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// IsServerError reports whether err is a statement error raised by the
// server, after which the session is still usable. FATAL and PANIC errors
// end the session and do not count.
func IsServerError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Severity != "FATAL" && pgErr.Severity != "PANIC"
}
