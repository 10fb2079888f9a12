package bootstrap

import "fmt"

// ConnectivityError reports that the store could not be reached at startup.
// Nothing downstream can run without it, so callers should abort.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("database connectivity check failed: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// CapabilityError reports that one optional capability could not be checked
// or enabled. It is informational; startup continues.
type CapabilityError struct {
	Name string
	Err  error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability %q: %v", e.Name, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}
