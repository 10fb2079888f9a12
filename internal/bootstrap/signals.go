package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// ShutdownSignals are the process signals that trigger pool shutdown.
var ShutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// SignalContext returns a context cancelled on the first shutdown signal.
// The signals stay captured until stop is called, so a second signal during
// shutdown does not kill the process.
func SignalContext(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	return signal.NotifyContext(parent, ShutdownSignals...)
}
