// Package pool provides a bounded pool of store connections with idle
// eviction, acquisition timeouts, and grace-period shutdown.
//
// Slot accounting uses a weighted semaphore of size MaxConns: a caller holds
// one unit from the moment it is granted a slot until its handle is released,
// discarded, or force-closed. Idle handles hold no unit, so
// idle+leased <= MaxConns always holds: a new connection is only dialed when
// the idle set is empty.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/pgboot/internal/store"
	"golang.org/x/sync/semaphore"
)

// Default configuration values.
const (
	DefaultMaxConns       = 20
	DefaultIdleTimeout    = 30 * time.Second
	DefaultAcquireTimeout = 2 * time.Second
)

const (
	minReapInterval = 10 * time.Millisecond
	closeTimeout    = 5 * time.Second
)

// Config holds the pool settings. It is copied by New and never mutated
// afterwards.
type Config struct {
	// Dialer opens new connections. Address, credentials and TLS mode are
	// the dialer's concern.
	Dialer store.Dialer

	// MaxConns bounds idle+leased handles. Zero means DefaultMaxConns.
	MaxConns int

	// IdleTimeout is how long a handle may sit idle before eviction.
	// Zero means DefaultIdleTimeout.
	IdleTimeout time.Duration

	// AcquireTimeout bounds Acquire, including any dial it performs.
	// Zero means DefaultAcquireTimeout.
	AcquireTimeout time.Duration

	// ReapInterval is the eviction tick. Zero means IdleTimeout/2.
	ReapInterval time.Duration

	// Logger receives lifecycle records. Nil discards them.
	Logger *slog.Logger

	clock func() time.Time
}

func (c Config) withDefaults() (Config, error) {
	if c.Dialer == nil {
		return c, fmt.Errorf("pool: dialer is required")
	}
	if c.MaxConns < 0 || c.IdleTimeout < 0 || c.AcquireTimeout < 0 || c.ReapInterval < 0 {
		return c, fmt.Errorf("pool: limits must not be negative")
	}
	if c.MaxConns == 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.AcquireTimeout == 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.ReapInterval == 0 {
		c.ReapInterval = c.IdleTimeout / 2
	}
	if c.ReapInterval < minReapInterval {
		c.ReapInterval = minReapInterval
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	return c, nil
}

// Stats is a point-in-time snapshot of pool bookkeeping.
type Stats struct {
	Max     int   `json:"max"`
	Idle    int   `json:"idle"`
	Leased  int   `json:"leased"`
	Pending int   `json:"pending"` // slots reserved by dials in progress
	Opened  int64 `json:"opened"`  // connections ever dialed
	Closed  int64 `json:"closed"`  // connections ever closed
	Closing bool  `json:"closing"`
}

// Pool is a bounded set of reusable connections. It is safe for concurrent
// use. Construct one per process and share it.
type Pool struct {
	cfg    Config
	logger *slog.Logger
	sem    *semaphore.Weighted

	mu          sync.Mutex
	idle        []*Handle // LIFO: surplus handles age out at the bottom
	leased      map[*Handle]struct{}
	pending     int
	opened      int64
	closedConns int64
	draining    bool
	closed      bool
	drained     chan struct{}
	drainSent   bool

	// dials counts dials in flight and background closers of late
	// connections; Shutdown waits for it.
	dials sync.WaitGroup

	closing       context.Context
	cancelClosing context.CancelFunc
	reaperDone    chan struct{}
	shutdownOnce  sync.Once
}

// New creates a pool. No connection is opened until the first Acquire.
func New(cfg Config) (*Pool, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	closing, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:           cfg,
		logger:        cfg.Logger,
		sem:           semaphore.NewWeighted(int64(cfg.MaxConns)),
		leased:        make(map[*Handle]struct{}),
		drained:       make(chan struct{}),
		closing:       closing,
		cancelClosing: cancel,
		reaperDone:    make(chan struct{}),
	}
	go p.reap()
	return p, nil
}

// Config returns the effective configuration.
func (p *Pool) Config() Config {
	return p.cfg
}

// Acquire leases a handle, reusing an idle one when possible and dialing
// otherwise. It waits for a free slot when the pool is saturated. The whole
// call is bounded by AcquireTimeout; on expiry it returns
// ErrAcquisitionTimeout and leaves no reservation behind.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	if p.closing.Err() != nil {
		return nil, ErrPoolClosed
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	// Shutdown wakes slot waiters. Once a slot is granted the hook is
	// detached so an in-flight dial runs to completion.
	stop := context.AfterFunc(p.closing, cancel)
	if err := p.sem.Acquire(ctx, 1); err != nil {
		stop()
		return nil, p.waitErr(ctx, err)
	}
	if !stop() {
		p.sem.Release(1)
		return nil, ErrPoolClosed
	}

	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, ErrPoolClosed
	}
	if h := p.popIdleLocked(); h != nil {
		h.state = StateLeased
		h.leasedAt = p.cfg.clock()
		p.leased[h] = struct{}{}
		p.mu.Unlock()
		return h, nil
	}
	p.pending++
	p.dials.Add(1)
	p.mu.Unlock()
	defer p.dials.Done()

	conn, err := p.dial(ctx)

	p.mu.Lock()
	p.pending--
	if err != nil {
		p.signalDrainedLocked()
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, p.dialErr(ctx, err)
	}
	if p.closed {
		p.mu.Unlock()
		p.closeConn(conn)
		p.sem.Release(1)
		return nil, ErrPoolClosed
	}
	now := p.cfg.clock()
	h := &Handle{
		id:        uuid.New(),
		pool:      p,
		conn:      conn,
		createdAt: now,
		state:     StateLeased,
		leasedAt:  now,
	}
	p.opened++
	p.leased[h] = struct{}{}
	p.mu.Unlock()

	p.logger.Debug("opened connection", slog.String("handle", h.ID()))
	return h, nil
}

// dial runs the dialer but never waits past ctx. A connection that arrives
// after the deadline is closed in the background.
func (p *Pool) dial(ctx context.Context) (store.Conn, error) {
	type result struct {
		conn store.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := p.cfg.Dialer.Dial(ctx)
		ch <- result{conn: conn, err: err}
	}()

	select {
	case r := <-ch:
		if r.err == nil && ctx.Err() != nil {
			p.closeConn(r.conn)
			return nil, ctx.Err()
		}
		return r.conn, r.err
	case <-ctx.Done():
		p.dials.Add(1)
		go func() {
			defer p.dials.Done()
			if r := <-ch; r.err == nil {
				p.closeConn(r.conn)
			}
		}()
		return nil, ctx.Err()
	}
}

func (p *Pool) waitErr(ctx context.Context, err error) error {
	if p.closing.Err() != nil {
		return ErrPoolClosed
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrAcquisitionTimeout
	}
	return err
}

func (p *Pool) dialErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrAcquisitionTimeout, err)
	}
	return fmt.Errorf("pool: dial: %w", err)
}

func (p *Pool) popIdleLocked() *Handle {
	n := len(p.idle)
	if n == 0 {
		return nil
	}
	h := p.idle[n-1]
	p.idle[n-1] = nil
	p.idle = p.idle[:n-1]
	return h
}

// Release returns a leased handle to the idle set. While the pool is
// shutting down the handle is closed instead.
func (p *Pool) Release(h *Handle) error {
	return p.giveBack(h, false)
}

// Discard closes a leased handle and frees its slot.
func (p *Pool) Discard(h *Handle) error {
	return p.giveBack(h, true)
}

func (p *Pool) giveBack(h *Handle, discard bool) error {
	if p == nil || h == nil || h.pool != p {
		return ErrInvalidHandle
	}

	p.mu.Lock()
	if h.state != StateLeased {
		p.mu.Unlock()
		return ErrInvalidHandle
	}
	delete(p.leased, h)

	if discard || p.draining {
		h.state = StateClosed
		p.closedConns++
		p.signalDrainedLocked()
		p.mu.Unlock()
		p.sem.Release(1)
		p.closeConn(h.conn)
		return nil
	}

	h.state = StateIdle
	h.idleSince = p.cfg.clock()
	p.idle = append(p.idle, h)
	p.mu.Unlock()
	p.sem.Release(1)
	return nil
}

// EvictIdle closes every handle idle for longer than IdleTimeout and returns
// how many were closed. Leased handles are never touched.
func (p *Pool) EvictIdle() int {
	now := p.cfg.clock()

	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return 0
	}
	var evicted []*Handle
	kept := p.idle[:0]
	for _, h := range p.idle {
		if now.Sub(h.idleSince) > p.cfg.IdleTimeout {
			h.state = StateClosed
			p.closedConns++
			evicted = append(evicted, h)
			continue
		}
		kept = append(kept, h)
	}
	for i := len(kept); i < len(p.idle); i++ {
		p.idle[i] = nil
	}
	p.idle = kept
	p.mu.Unlock()

	for _, h := range evicted {
		p.logger.Debug("evicted idle connection",
			slog.String("handle", h.ID()),
			slog.Duration("idle", now.Sub(h.idleSince)),
			slog.Duration("age", now.Sub(h.createdAt)))
		p.closeConn(h.conn)
	}
	return len(evicted)
}

func (p *Pool) reap() {
	defer close(p.reaperDone)

	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.closing.Done():
			return
		case <-ticker.C:
			p.EvictIdle()
		}
	}
}

// Shutdown stops the pool. New Acquire calls fail with ErrPoolClosed and
// callers waiting for a slot are woken with it. Leased handles get up to
// grace to come back; after that they are force-closed. Idle handles are
// closed immediately. Shutdown returns once every handle is closed, including
// connections from dials still in flight when grace ran out; those are
// bounded by AcquireTimeout. Calling it again is a no-op; concurrent callers
// block until the first finishes.
func (p *Pool) Shutdown(grace time.Duration) {
	p.shutdownOnce.Do(func() {
		p.shutdown(grace)
	})
}

func (p *Pool) shutdown(grace time.Duration) {
	p.mu.Lock()
	p.draining = true
	idle := p.idle
	p.idle = nil
	for _, h := range idle {
		h.state = StateClosed
		p.closedConns++
	}
	leased := len(p.leased)
	p.signalDrainedLocked()
	p.mu.Unlock()

	p.cancelClosing()
	p.logger.Info("closing pool",
		slog.Int("idle", len(idle)),
		slog.Int("leased", leased),
		slog.Duration("grace_period", grace))

	for _, h := range idle {
		p.closeConn(h.conn)
	}

	if grace > 0 {
		timer := time.NewTimer(grace)
		select {
		case <-p.drained:
		case <-timer.C:
		}
		timer.Stop()
	}

	p.mu.Lock()
	p.closed = true
	forced := make([]*Handle, 0, len(p.leased))
	for h := range p.leased {
		h.state = StateClosed
		p.closedConns++
		forced = append(forced, h)
		delete(p.leased, h)
	}
	now := p.cfg.clock()
	p.mu.Unlock()

	for _, h := range forced {
		p.logger.Warn("force-closing leased connection after grace period",
			slog.String("handle", h.ID()),
			slog.Duration("leased_for", now.Sub(h.leasedAt)),
			slog.Duration("age", now.Sub(h.createdAt)))
		p.sem.Release(1)
		p.closeConn(h.conn)
	}

	p.dials.Wait()
	<-p.reaperDone

	stats := p.Stats()
	p.logger.Info("pool closed",
		slog.Int64("opened", stats.Opened),
		slog.Int64("closed", stats.Closed),
		slog.Int("forced", len(forced)))
}

// signalDrainedLocked closes drained once a draining pool has nothing
// leased and no dial in progress.
func (p *Pool) signalDrainedLocked() {
	if p.draining && !p.drainSent && len(p.leased) == 0 && p.pending == 0 {
		close(p.drained)
		p.drainSent = true
	}
}

func (p *Pool) closeConn(conn store.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := conn.Close(ctx); err != nil {
		p.logger.Warn("error closing connection", slog.String("error", err.Error()))
	}
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Max:     p.cfg.MaxConns,
		Idle:    len(p.idle),
		Leased:  len(p.leased),
		Pending: p.pending,
		Opened:  p.opened,
		Closed:  p.closedConns,
		Closing: p.draining,
	}
}
