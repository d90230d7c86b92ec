package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/lathermill/api/internal/platform/httpx"
)

// ReadinessChecker verifies connectivity to the service's dependencies.
type ReadinessChecker func(ctx context.Context) error

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	version     string
	environment string
	startedAt   time.Time
	clock       func() time.Time
	readiness   ReadinessChecker
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthVersion records the build version reported by the probes.
func WithHealthVersion(version, environment string) HealthOption {
	return func(h *HealthHandlers) {
		h.version = version
		h.environment = environment
	}
}

// WithHealthClock overrides the clock, primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithReadinessChecker wires the datastore connectivity check into /readyz.
func WithReadinessChecker(checker ReadinessChecker) HealthOption {
	return func(h *HealthHandlers) {
		h.readiness = checker
	}
}

// NewHealthHandlers constructs health handlers with sensible defaults.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.startedAt = h.clock()
	return h
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	payload := map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.startedAt).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if h.version != "" {
		payload["version"] = h.version
	}
	if h.environment != "" {
		payload["environment"] = h.environment
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz reports whether the service can reach its datastore.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.readiness != nil {
		if err := h.readiness(ctx); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("not_ready", "dependency check failed", http.StatusServiceUnavailable))
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"timestamp": h.clock().UTC().Format(time.RFC3339),
	})
}
