package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/pgboot/internal/pool"
	"github.com/leapstack-labs/pgboot/internal/store"
)

const (
	capabilityQuery     = "SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = $1)"
	listCapabilityQuery = "SELECT extname, extversion FROM pg_extension ORDER BY extname"
)

// Outcome is what happened to one requested capability.
type Outcome string

const (
	OutcomePresent Outcome = "present"
	OutcomeEnabled Outcome = "enabled"
	OutcomeFailed  Outcome = "failed"
)

// CapabilityResult is the outcome for one capability name.
type CapabilityResult struct {
	Name    string  `json:"name"`
	Outcome Outcome `json:"outcome"`
	Err     error   `json:"-"`
}

// Available reports whether the capability can be used.
func (r CapabilityResult) Available() bool {
	return r.Outcome == OutcomePresent || r.Outcome == OutcomeEnabled
}

// Report lists per-capability results in request order.
type Report struct {
	Results []CapabilityResult `json:"results"`
}

// Available reports whether name was requested and is usable.
func (r Report) Available(name string) bool {
	for _, res := range r.Results {
		if res.Name == name {
			return res.Available()
		}
	}
	return false
}

// Failed returns the results that did not succeed.
func (r Report) Failed() []CapabilityResult {
	var out []CapabilityResult
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			out = append(out, res)
		}
	}
	return out
}

// Err joins the failures, or returns nil when everything is available.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, res.Err)
	}
	return errors.Join(errs...)
}

// EnsureCapabilities makes sure each named extension is enabled, issuing
// CREATE EXTENSION only for those not already present. Each name is handled
// on its own; a failure is logged as a warning and the rest still run.
func (b *Bootstrapper) EnsureCapabilities(ctx context.Context, names []string) Report {
	var report Report
	for _, name := range normalizeNames(names) {
		outcome, err := b.ensureCapability(ctx, name)
		res := CapabilityResult{Name: name, Outcome: outcome}

		switch outcome {
		case OutcomePresent:
			b.logger.Info("capability already present", slog.String("capability", name))
		case OutcomeEnabled:
			b.logger.Info("capability enabled", slog.String("capability", name))
		case OutcomeFailed:
			res.Err = &CapabilityError{Name: name, Err: err}
			b.logger.Warn("capability check failed (may need manual installation)",
				slog.String("capability", name),
				slog.String("error", err.Error()))
		}
		report.Results = append(report.Results, res)
	}

	if failed := len(report.Failed()); failed > 0 {
		b.logger.Warn("some capabilities are unavailable",
			slog.Int("failed", failed),
			slog.Int("requested", len(report.Results)))
	} else if len(report.Results) > 0 {
		b.logger.Info("all required capabilities are available", slog.Int("count", len(report.Results)))
	}
	return report
}

func (b *Bootstrapper) ensureCapability(ctx context.Context, name string) (Outcome, error) {
	h, err := b.pool.Acquire(ctx)
	if err != nil {
		return OutcomeFailed, err
	}

	outcome, err := b.provision(ctx, h.Conn(), name)
	b.giveBack(h, err)
	return outcome, err
}

// giveBack returns h to the pool unless err may have broken its
// connection, in which case h is discarded.
func (b *Bootstrapper) giveBack(h *pool.Handle, err error) {
	if err != nil && !store.IsServerError(err) {
		_ = h.Discard()
		return
	}
	_ = b.pool.Release(h)
}

func (b *Bootstrapper) provision(ctx context.Context, conn store.Conn, name string) (Outcome, error) {
	var exists bool
	if err := conn.QueryRow(ctx, capabilityQuery, name).Scan(&exists); err != nil {
		return OutcomeFailed, fmt.Errorf("failed to query pg_extension: %w", err)
	}
	if exists {
		return OutcomePresent, nil
	}

	b.logger.Info("enabling capability", slog.String("capability", name))
	if err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS "+store.QuoteIdent(name)); err != nil {
		return OutcomeFailed, fmt.Errorf("failed to create extension: %w", err)
	}
	return OutcomeEnabled, nil
}

// InstalledCapability is one row of pg_extension.
type InstalledCapability struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ListCapabilities returns every extension currently enabled in the database.
func (b *Bootstrapper) ListCapabilities(ctx context.Context) ([]InstalledCapability, error) {
	h, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	out, err := listCapabilities(ctx, h.Conn())
	b.giveBack(h, err)
	return out, err
}

func listCapabilities(ctx context.Context, conn store.Conn) ([]InstalledCapability, error) {
	rows, err := conn.Query(ctx, listCapabilityQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list extensions: %w", err)
	}
	defer rows.Close()

	var out []InstalledCapability
	for rows.Next() {
		var c InstalledCapability
		if err := rows.Scan(&c.Name, &c.Version); err != nil {
			return nil, fmt.Errorf("failed to scan extension: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating extensions: %w", err)
	}
	return out, nil
}

// normalizeNames trims, drops blanks, and removes duplicates while keeping
// the first occurrence order.
func normalizeNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
