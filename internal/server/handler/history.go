package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
)

// HistoryReader exposes the rolling history buffers.
type HistoryReader interface {
	History(series string) []domain.Sample
	HistorySeries() []string
}

// HistoryHandler serves chart history.
type HistoryHandler struct {
	history HistoryReader
	logger  *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(history HistoryReader, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, logger: logHandler(logger, "history")}
}

// ListSeries returns the known series names.
// GET /api/history
func (h *HistoryHandler) ListSeries(w http.ResponseWriter, r *http.Request) {
	series := h.history.HistorySeries()
	if series == nil {
		series = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"series": series})
}

// GetSeries returns the samples of one series, oldest first. Series names may
// contain slashes, e.g. "pool:XRP/USD".
// GET /api/history/{series...}
func (h *HistoryHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("series")
	if name == "" {
		writeError(w, http.StatusBadRequest, "series name is required")
		return
	}
	samples := h.history.History(name)
	if len(samples) == 0 {
		writeError(w, http.StatusNotFound, "unknown series "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"series":  name,
		"samples": samples,
	})
}
