package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leapstack-labs/pgboot/internal/store"
	"github.com/leapstack-labs/pgboot/internal/testutil"
	"github.com/stretchr/testify/require"
)

var errUnsupported = errors.New("fake conn: unsupported")

type fakeConn struct {
	id     int
	closes atomic.Int32
}

func (c *fakeConn) Query(context.Context, string, ...any) (store.Rows, error) {
	return nil, errUnsupported
}

func (c *fakeConn) QueryRow(context.Context, string, ...any) store.Row {
	return nil
}

func (c *fakeConn) Exec(context.Context, string, ...any) error { return errUnsupported }

func (c *fakeConn) Ping(context.Context) error { return nil }

func (c *fakeConn) Close(context.Context) error {
	c.closes.Add(1)
	return nil
}

func (c *fakeConn) closed() bool { return c.closes.Load() > 0 }

// fakeDialer hands out fakeConns. When gate is set, Dial blocks until the
// gate channel yields, ignoring the context if ignoreCtx is true.
type fakeDialer struct {
	mu        sync.Mutex
	conns     []*fakeConn
	err       error
	delay     time.Duration
	gate      chan struct{}
	ignoreCtx bool
	started   chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context) (store.Conn, error) {
	if d.started != nil {
		d.started <- struct{}{}
	}
	if d.gate != nil {
		if d.ignoreCtx {
			<-d.gate
		} else {
			select {
			case <-d.gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := &fakeConn{id: len(d.conns) + 1}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestPool builds a pool that is shut down when the test ends.
func newTestPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testutil.NewTestLogger(t)
	}
	if cfg.ReapInterval == 0 {
		cfg.ReapInterval = time.Hour
	}
	p, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Shutdown(0) })
	return p
}
