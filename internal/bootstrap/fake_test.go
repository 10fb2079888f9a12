package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leapstack-labs/pgboot/internal/pool"
	"github.com/leapstack-labs/pgboot/internal/store"
	"github.com/stretchr/testify/require"
)

// fakeServer is an in-memory stand-in for a PostgreSQL server that only
// understands the statements the bootstrapper sends.
type fakeServer struct {
	mu          sync.Mutex
	now         time.Time
	dialErr     error
	probeErr    error
	extensions  map[string]string
	enableErrs  map[string]error
	enableCalls map[string]int
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		now:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		extensions:  map[string]string{"plpgsql": "1.0"},
		enableErrs:  map[string]error{},
		enableCalls: map[string]int{},
	}
}

func (s *fakeServer) Dial(context.Context) (store.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dialErr != nil {
		return nil, s.dialErr
	}
	return &fakeConn{srv: s}, nil
}

func (s *fakeServer) enabled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.extensions[name]
	return ok
}

func (s *fakeServer) calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enableCalls[name]
}

type fakeConn struct {
	srv *fakeServer
}

func (c *fakeConn) QueryRow(_ context.Context, sql string, args ...any) store.Row {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()

	switch sql {
	case probeQuery:
		if s.probeErr != nil {
			return fakeRow{err: s.probeErr}
		}
		return fakeRow{vals: []any{s.now}}
	case capabilityQuery:
		_, ok := s.extensions[args[0].(string)]
		return fakeRow{vals: []any{ok}}
	}
	return fakeRow{err: fmt.Errorf("unexpected query %q", sql)}
}

func (c *fakeConn) Query(_ context.Context, sql string, _ ...any) (store.Rows, error) {
	if sql != listCapabilityQuery {
		return nil, fmt.Errorf("unexpected query %q", sql)
	}
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.extensions))
	for n := range s.extensions {
		names = append(names, n)
	}
	sort.Strings(names)
	rows := &fakeRows{}
	for _, n := range names {
		rows.data = append(rows.data, []any{n, s.extensions[n]})
	}
	return rows, nil
}

func (c *fakeConn) Exec(_ context.Context, sql string, _ ...any) error {
	const prefix = "CREATE EXTENSION IF NOT EXISTS "
	if !strings.HasPrefix(sql, prefix) {
		return fmt.Errorf("unexpected command %q", sql)
	}
	name := strings.Trim(strings.TrimPrefix(sql, prefix), `"`)

	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enableCalls[name]++
	if err := s.enableErrs[name]; err != nil {
		return err
	}
	s.extensions[name] = "1.0"
	return nil
}

func (c *fakeConn) Ping(context.Context) error  { return nil }
func (c *fakeConn) Close(context.Context) error { return nil }

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.vals, dest)
}

type fakeRows struct {
	data [][]any
	pos  int
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error { return assign(r.data[r.pos-1], dest) }
func (r *fakeRows) Err() error             { return nil }
func (r *fakeRows) Close()                 {}

func assign(vals []any, dest []any) error {
	if len(vals) != len(dest) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *bool:
			*p = vals[i].(bool)
		case *string:
			*p = vals[i].(string)
		case *time.Time:
			*p = vals[i].(time.Time)
		default:
			return fmt.Errorf("unsupported scan target %T", d)
		}
	}
	return nil
}

func newTestPool(t *testing.T, dialer store.Dialer) *pool.Pool {
	t.Helper()
	p, err := pool.New(pool.Config{
		Dialer:         dialer,
		MaxConns:       2,
		AcquireTimeout: time.Second,
		ReapInterval:   time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { p.Shutdown(0) })
	return p
}

// countingPool records Shutdown calls and refuses to lease.
type countingPool struct {
	mu        sync.Mutex
	shutdowns int
	graces    []time.Duration
}

func (p *countingPool) Acquire(context.Context) (*pool.Handle, error) {
	return nil, pool.ErrPoolClosed
}

func (p *countingPool) Release(*pool.Handle) error { return pool.ErrInvalidHandle }

func (p *countingPool) Shutdown(grace time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdowns++
	p.graces = append(p.graces, grace)
}

func (p *countingPool) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shutdowns
}
