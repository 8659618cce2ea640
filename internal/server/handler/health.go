package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
)

// ReadinessGate reports whether the backend is reachable.
type ReadinessGate interface {
	Ready() bool
	Status() domain.ConnectionStatus
}

// HealthHandler serves the liveness and readiness endpoints.
type HealthHandler struct {
	gate   ReadinessGate
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. gate may be nil, in which case
// readiness always reports blocked.
func NewHealthHandler(gate ReadinessGate, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{gate: gate, logger: logger}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready reports the readiness gate: 200 while the backend is online, 503
// otherwise.
// GET /api/ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := domain.ConnectionConnecting
	ready := false
	if h.gate != nil {
		status = h.gate.Status()
		ready = h.gate.Ready()
	}
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"ready":      ready,
		"connection": status,
	})
}
