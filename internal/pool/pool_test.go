package pool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/leapstack-labs/pgboot/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "missing dialer", cfg: Config{}, wantErr: "dialer is required"},
		{name: "negative max", cfg: Config{Dialer: &fakeDialer{}, MaxConns: -1}, wantErr: "negative"},
		{name: "negative timeout", cfg: Config{Dialer: &fakeDialer{}, AcquireTimeout: -time.Second}, wantErr: "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	p := newTestPool(t, Config{Dialer: &fakeDialer{}, ReapInterval: time.Hour})
	cfg := p.Config()
	assert.Equal(t, DefaultMaxConns, cfg.MaxConns)
	assert.Equal(t, DefaultIdleTimeout, cfg.IdleTimeout)
	assert.Equal(t, DefaultAcquireTimeout, cfg.AcquireTimeout)
	assert.Equal(t, Stats{Max: DefaultMaxConns}, p.Stats())
}

func TestAcquireRelease_ReusesConnection(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, Config{Dialer: d, MaxConns: 1})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		h, err := p.Acquire(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateLeased, h.State())
		assert.Equal(t, 1, p.Stats().Leased)

		require.NoError(t, h.Release())
		assert.Equal(t, StateIdle, h.State())
		assert.Equal(t, 1, p.Stats().Idle)
	}

	assert.Equal(t, 1, d.dials(), "second acquire should reuse the idle connection")
	assert.EqualValues(t, 1, p.Stats().Opened)
}

func TestAcquire_LIFOReuse(t *testing.T) {
	p := newTestPool(t, Config{Dialer: &fakeDialer{}, MaxConns: 2})
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	require.NoError(t, err)
	b, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Release())
	require.NoError(t, b.Release())

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID(), c.ID())
	require.NoError(t, c.Release())
}

func TestAcquire_BoundInvariant(t *testing.T) {
	const maxConns = 3
	p := newTestPool(t, Config{Dialer: &fakeDialer{}, MaxConns: maxConns, AcquireTimeout: 5 * time.Second})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				h, err := p.Acquire(ctx)
				if err != nil {
					errs <- err
					return
				}
				if s := p.Stats(); s.Idle+s.Leased > maxConns || s.Leased < 0 || s.Idle < 0 {
					errs <- errors.New("bound violated")
				}
				if err := h.Release(); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	s := p.Stats()
	assert.Equal(t, 0, s.Leased)
	assert.LessOrEqual(t, s.Idle, maxConns)
	assert.LessOrEqual(t, s.Opened, int64(maxConns))
}

func TestAcquire_TimeoutWhenSaturated(t *testing.T) {
	timeout := 100 * time.Millisecond
	p := newTestPool(t, Config{Dialer: &fakeDialer{}, MaxConns: 1, AcquireTimeout: timeout})
	ctx := context.Background()

	held, err := p.Acquire(ctx)
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Acquire(ctx)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrAcquisitionTimeout)
	assert.GreaterOrEqual(t, elapsed, timeout-10*time.Millisecond)
	assert.Less(t, elapsed, timeout+500*time.Millisecond)

	s := p.Stats()
	assert.Equal(t, 1, s.Leased)
	assert.Equal(t, 0, s.Pending)

	// No phantom reservation: the slot is usable once released.
	require.NoError(t, held.Release())
	h, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, h.Release())
}

func TestAcquire_WaiterGetsReleasedHandle(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, Config{Dialer: d, MaxConns: 1, AcquireTimeout: 5 * time.Second})
	ctx := context.Background()

	held, err := p.Acquire(ctx)
	require.NoError(t, err)

	got := make(chan *Handle, 1)
	go func() {
		h, err := p.Acquire(ctx)
		if err == nil {
			got <- h
		}
		close(got)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, held.Release())

	h, ok := <-got
	require.True(t, ok)
	assert.Equal(t, held.ID(), h.ID())
	require.NoError(t, h.Release())
	assert.Equal(t, 1, d.dials())
}

func TestAcquire_CallerCancellation(t *testing.T) {
	p := newTestPool(t, Config{Dialer: &fakeDialer{}, MaxConns: 1, AcquireTimeout: 5 * time.Second})

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer func() { _ = held.Release() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, p.Stats().Pending)
}

func TestAcquire_DialTimeout(t *testing.T) {
	d := &fakeDialer{delay: time.Second}
	p := newTestPool(t, Config{Dialer: d, MaxConns: 1, AcquireTimeout: 50 * time.Millisecond})

	_, err := p.Acquire(context.Background())
	require.ErrorIs(t, err, ErrAcquisitionTimeout)

	s := p.Stats()
	assert.Equal(t, 0, s.Idle+s.Leased+s.Pending)
	assert.EqualValues(t, 0, s.Opened)
}

func TestAcquire_LateDialIsDiscarded(t *testing.T) {
	d := &fakeDialer{gate: make(chan struct{}), ignoreCtx: true}
	p := newTestPool(t, Config{Dialer: d, MaxConns: 1, AcquireTimeout: 30 * time.Millisecond})

	_, err := p.Acquire(context.Background())
	require.ErrorIs(t, err, ErrAcquisitionTimeout)

	// Let the stuck dial finish; its connection must be closed, not pooled.
	close(d.gate)
	require.Eventually(t, func() bool {
		return d.dials() == 1 && d.conn(0).closed()
	}, time.Second, 5*time.Millisecond)

	s := p.Stats()
	assert.Equal(t, 0, s.Idle+s.Leased)
	assert.EqualValues(t, 0, s.Opened)
}

func TestAcquire_DialErrorFreesSlot(t *testing.T) {
	dialErr := errors.New("connection refused")
	d := &fakeDialer{err: dialErr}
	p := newTestPool(t, Config{Dialer: d, MaxConns: 1})
	ctx := context.Background()

	_, err := p.Acquire(ctx)
	require.ErrorIs(t, err, dialErr)
	assert.NotErrorIs(t, err, ErrAcquisitionTimeout)

	d.setErr(nil)
	h, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, h.Release())
}

func TestRelease_InvalidHandle(t *testing.T) {
	p := newTestPool(t, Config{Dialer: &fakeDialer{}, MaxConns: 2})
	other := newTestPool(t, Config{Dialer: &fakeDialer{}, MaxConns: 2})
	ctx := context.Background()

	foreign, err := other.Acquire(ctx)
	require.NoError(t, err)
	defer func() { _ = foreign.Release() }()

	h, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Release(h))

	tests := []struct {
		name   string
		handle *Handle
	}{
		{name: "nil handle", handle: nil},
		{name: "foreign pool", handle: foreign},
		{name: "already idle", handle: h},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, p.Release(tt.handle), ErrInvalidHandle)
		})
	}

	var nilHandle *Handle
	assert.ErrorIs(t, nilHandle.Release(), ErrInvalidHandle)
	assert.Equal(t, Stats{Max: 2, Idle: 1, Opened: 1}, p.Stats())
}

func TestHandle_ZeroValue(t *testing.T) {
	p := newTestPool(t, Config{Dialer: &fakeDialer{}, MaxConns: 1})
	zero := &Handle{}

	assert.ErrorIs(t, zero.Release(), ErrInvalidHandle)
	assert.ErrorIs(t, zero.Discard(), ErrInvalidHandle)
	assert.Equal(t, StateClosed, zero.State())
	assert.ErrorIs(t, p.Release(zero), ErrInvalidHandle)
	assert.ErrorIs(t, p.Discard(zero), ErrInvalidHandle)
	assert.Equal(t, Stats{Max: 1}, p.Stats())
}

func TestDiscard(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, Config{Dialer: d, MaxConns: 1})
	ctx := context.Background()

	h, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, h.Discard())
	assert.Equal(t, StateClosed, h.State())
	assert.True(t, d.conn(0).closed())
	assert.ErrorIs(t, h.Release(), ErrInvalidHandle)

	h2, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, h2.Release())
	assert.Equal(t, 2, d.dials())
}

func TestEvictIdle(t *testing.T) {
	clock := newFakeClock()
	d := &fakeDialer{}
	p := newTestPool(t, Config{Dialer: d, MaxConns: 3, IdleTimeout: 30 * time.Second, clock: clock.Now})
	ctx := context.Background()

	var handles []*Handle
	for i := 0; i < 3; i++ {
		h, err := p.Acquire(ctx)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	require.NoError(t, handles[0].Release())
	require.NoError(t, handles[1].Release())

	clock.Advance(10 * time.Second)
	assert.Equal(t, 0, p.EvictIdle(), "nothing is idle long enough yet")

	clock.Advance(21 * time.Second)
	assert.Equal(t, 2, p.EvictIdle())

	s := p.Stats()
	assert.Equal(t, 0, s.Idle)
	assert.Equal(t, 1, s.Leased)
	assert.EqualValues(t, 2, s.Closed)
	assert.True(t, d.conn(0).closed())
	assert.True(t, d.conn(1).closed())
	assert.Equal(t, StateClosed, handles[0].State())

	// The leased handle survives regardless of age.
	clock.Advance(time.Hour)
	assert.Equal(t, 0, p.EvictIdle())
	assert.Equal(t, StateLeased, handles[2].State())
	assert.False(t, d.conn(2).closed())

	// Its idle clock starts at release, not at creation.
	require.NoError(t, handles[2].Release())
	assert.Equal(t, 0, p.EvictIdle())
	assert.Equal(t, 1, p.Stats().Idle)
}

func TestEvictIdle_LogsAge(t *testing.T) {
	clock := newFakeClock()
	logger, logs := testutil.NewCaptureLogger()
	p := newTestPool(t, Config{Dialer: &fakeDialer{}, MaxConns: 1, IdleTimeout: 30 * time.Second, Logger: logger, clock: clock.Now})

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	clock.Advance(5 * time.Second)
	require.NoError(t, h.Release())
	clock.Advance(31 * time.Second)
	require.Equal(t, 1, p.EvictIdle())

	recs := logs.Find(slog.LevelDebug, "evicted idle connection")
	require.Len(t, recs, 1)
	assert.Equal(t, h.ID(), recs[0]["handle"])
	assert.Equal(t, float64(31*time.Second), recs[0]["idle"])
	assert.Equal(t, float64(36*time.Second), recs[0]["age"])
}

func TestReaperEvictsInBackground(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, Config{
		Dialer:       d,
		MaxConns:     1,
		IdleTimeout:  20 * time.Millisecond,
		ReapInterval: 10 * time.Millisecond,
	})

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Release())

	require.Eventually(t, func() bool {
		return p.Stats().Idle == 0 && d.conn(0).closed()
	}, 2*time.Second, 5*time.Millisecond)
}
