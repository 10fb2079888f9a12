package pool

import "errors"

var (
	// ErrAcquisitionTimeout is returned when no handle could be leased or
	// dialed within the acquire timeout. Callers decide whether to retry.
	ErrAcquisitionTimeout = errors.New("pool: acquisition timed out")

	// ErrPoolClosed is returned by Acquire once Shutdown has begun.
	ErrPoolClosed = errors.New("pool: closed")

	// ErrInvalidHandle is returned when releasing a handle that is not
	// currently leased from this pool.
	ErrInvalidHandle = errors.New("pool: invalid handle")
)
