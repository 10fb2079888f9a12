package pool

import (
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/pgboot/internal/store"
)

// HandleState is the lifecycle state of a Handle.
type HandleState int

const (
	StateIdle HandleState = iota
	StateLeased
	StateClosed
)

func (s HandleState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLeased:
		return "leased"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handle is a pooled connection. The pool owns it; a caller holding a leased
// Handle borrows it until Release or Discard.
type Handle struct {
	id        uuid.UUID
	pool      *Pool
	conn      store.Conn
	createdAt time.Time

	// guarded by pool.mu
	state     HandleState
	idleSince time.Time
	leasedAt  time.Time
}

// ID identifies the handle in logs.
func (h *Handle) ID() string {
	return h.id.String()
}

// Conn returns the underlying connection. It must not be used after the
// handle is released.
func (h *Handle) Conn() store.Conn {
	return h.conn
}

// State returns the current state. A handle no pool issued is closed.
func (h *Handle) State() HandleState {
	if h == nil || h.pool == nil {
		return StateClosed
	}
	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()
	return h.state
}

// Release returns the handle to its pool.
func (h *Handle) Release() error {
	if h == nil || h.pool == nil {
		return ErrInvalidHandle
	}
	return h.pool.Release(h)
}

// Discard closes a leased handle instead of returning it, for connections
// the borrower knows are broken.
func (h *Handle) Discard() error {
	if h == nil || h.pool == nil {
		return ErrInvalidHandle
	}
	return h.pool.Discard(h)
}
