package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
)

// Unavailable is reported in place of a display timestamp when no record
// carries one.
const Unavailable = "unavailable"

// ViewReader returns the current committed view.
type ViewReader interface {
	View() domain.View
}

// State is the JSON body of /api/state and of hub frames.
type State struct {
	domain.View
	DisplayTimestamp string `json:"displayTimestamp"`
}

// NewState pairs a view with its formatted display timestamp.
func NewState(v domain.View) State {
	s := State{View: v, DisplayTimestamp: Unavailable}
	if !v.DisplayAt.IsZero() {
		s.DisplayTimestamp = v.DisplayAt.UTC().Format(time.RFC3339)
	}
	return s
}

// StateHandler serves the current view.
type StateHandler struct {
	views  ViewReader
	logger *slog.Logger
}

// NewStateHandler creates a StateHandler.
func NewStateHandler(views ViewReader, logger *slog.Logger) *StateHandler {
	return &StateHandler{views: views, logger: logHandler(logger, "state")}
}

// GetState returns the latest committed view.
// GET /api/state
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewState(h.views.View()))
}
