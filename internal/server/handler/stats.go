package handler

import (
	"net/http"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

// StatsSource exposes the live counters.
type StatsSource interface {
	Snapshot() domain.StatsSnapshot
}

// StatsHandler serves the mirror counters.
type StatsHandler struct {
	stats StatsSource
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(stats StatsSource) *StatsHandler {
	return &StatsHandler{stats: stats}
}

type statsResponse struct {
	domain.StatsSnapshot
	SuccessRate float64 `json:"success_rate"`
}

// GetStats responds with the current snapshot plus the success rate.
// GET /api/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, _ *http.Request) {
	snap := h.stats.Snapshot()
	writeJSON(w, http.StatusOK, statsResponse{StatsSnapshot: snap, SuccessRate: snap.SuccessRate()})
}
