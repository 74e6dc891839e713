package handler

import (
	"net/http"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

// StatusFunc produces the current bot status.
type StatusFunc func() domain.BotStatus

// StatusHandler serves mode, lead, stream state and uptime.
type StatusHandler struct {
	status StatusFunc
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(status StatusFunc) *StatusHandler {
	return &StatusHandler{status: status}
}

// GetStatus responds with the current BotStatus.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.status())
}
