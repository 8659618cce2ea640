package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
)

// SwapLog reads mirrored swap entries after a stream id.
type SwapLog interface {
	ReadSwaps(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error)
}

// SwapStreamHandler pages through the mirrored swap stream.
type SwapStreamHandler struct {
	log    SwapLog
	logger *slog.Logger
}

// NewSwapStreamHandler creates a SwapStreamHandler.
func NewSwapStreamHandler(log SwapLog, logger *slog.Logger) *SwapStreamHandler {
	return &SwapStreamHandler{log: log, logger: logHandler(logger, "swap_stream")}
}

type swapEntry struct {
	ID   string           `json:"id"`
	Swap domain.SwapEvent `json:"swap"`
}

// ListSwaps returns stream entries after the "after" id (default: start).
// GET /api/swaps/stream
func (h *SwapStreamHandler) ListSwaps(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	limit := parseLimit(r, 100, 1000)

	msgs, err := h.log.ReadSwaps(r.Context(), after, limit)
	if err != nil {
		h.logger.WarnContext(r.Context(), "read swap stream failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "swap stream unavailable")
		return
	}

	entries := make([]swapEntry, 0, len(msgs))
	for _, m := range msgs {
		var s domain.SwapEvent
		if err := json.Unmarshal(m.Payload, &s); err != nil {
			continue
		}
		entries = append(entries, swapEntry{ID: m.ID, Swap: s})
	}
	next := after
	if len(msgs) > 0 {
		next = msgs[len(msgs)-1].ID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"next":    next,
	})
}
