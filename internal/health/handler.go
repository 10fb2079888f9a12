// Package health exposes pool liveness, readiness and statistics over HTTP
// for collaborators and orchestrators.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/leapstack-labs/pgboot/internal/bootstrap"
	"github.com/leapstack-labs/pgboot/internal/pool"
)

// Pool is the part of *pool.Pool the handlers use.
type Pool interface {
	Acquire(ctx context.Context) (*pool.Handle, error)
	Release(h *pool.Handle) error
	Discard(h *pool.Handle) error
	Stats() pool.Stats
}

// StatusResponse is the body of /healthz and /readyz.
type StatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// CapabilitiesResponse is the body of /capabilities.
type CapabilitiesResponse struct {
	Results []CapabilityStatus `json:"results"`
}

// CapabilityStatus is one capability in CapabilitiesResponse.
type CapabilityStatus struct {
	Name      string `json:"name"`
	Outcome   string `json:"outcome"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// Handler serves the health endpoints.
type Handler struct {
	pool   Pool
	logger *slog.Logger

	mu     sync.RWMutex
	report bootstrap.Report
}

// NewHandler creates a Handler for p.
func NewHandler(p Pool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{pool: p, logger: logger}
}

// SetReport records the capability report served by /capabilities.
func (h *Handler) SetReport(report bootstrap.Report) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.report = report
}

// RegisterRoutes mounts the endpoints on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Get("/stats", h.Stats)
	r.Get("/capabilities", h.Capabilities)
}

// Healthz reports that the process is up.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// Readyz acquires a handle and pings the database through it.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	handle, err := h.pool.Acquire(ctx)
	if err != nil {
		h.unavailable(w, err)
		return
	}

	if err := handle.Conn().Ping(ctx); err != nil {
		_ = h.pool.Discard(handle)
		h.unavailable(w, err)
		return
	}
	_ = h.pool.Release(handle)

	writeJSON(w, http.StatusOK, StatusResponse{Status: "ready"})
}

func (h *Handler) unavailable(w http.ResponseWriter, err error) {
	status := "unavailable"
	if errors.Is(err, pool.ErrPoolClosed) {
		status = "shutting down"
	}
	h.logger.Warn("readiness check failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusServiceUnavailable, StatusResponse{Status: status, Error: err.Error()})
}

// Stats returns the pool counters.
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.pool.Stats())
}

// Capabilities returns the last capability report.
func (h *Handler) Capabilities(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	report := h.report
	h.mu.RUnlock()

	resp := CapabilitiesResponse{Results: make([]CapabilityStatus, 0, len(report.Results))}
	for _, res := range report.Results {
		c := CapabilityStatus{
			Name:      res.Name,
			Outcome:   string(res.Outcome),
			Available: res.Available(),
		}
		if res.Err != nil {
			c.Error = res.Err.Error()
		}
		resp.Results = append(resp.Results, c)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
