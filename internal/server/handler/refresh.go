package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Refresher runs or schedules a snapshot cycle.
type Refresher interface {
	Refresh(ctx context.Context) error
	Trigger()
}

// RefreshHandler serves the manual refresh endpoint.
type RefreshHandler struct {
	refresher Refresher
	logger    *slog.Logger
}

// NewRefreshHandler creates a RefreshHandler.
func NewRefreshHandler(refresher Refresher, logger *slog.Logger) *RefreshHandler {
	return &RefreshHandler{refresher: refresher, logger: logHandler(logger, "refresh")}
}

// Refresh schedules a snapshot cycle. With ?wait=true it runs the cycle
// inline and reports whether any portion succeeded.
// POST /api/refresh
func (h *RefreshHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") != "true" {
		h.refresher.Trigger()
		h.logger.InfoContext(r.Context(), "refresh enqueued")
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":       "accepted",
			"requested_at": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	if err := h.refresher.Refresh(r.Context()); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		h.logger.WarnContext(r.Context(), "refresh failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "refreshed",
		"completed_at": time.Now().UTC().Format(time.RFC3339),
	})
}
