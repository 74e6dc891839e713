package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

// PositionSource is the read side of the position ledger.
type PositionSource interface {
	Positions() []domain.FollowerPosition
	RealizedPnL() decimal.Decimal
}

// PositionHandler serves the follower's mirrored positions.
type PositionHandler struct {
	ledger PositionSource
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(ledger PositionSource) *PositionHandler {
	return &PositionHandler{ledger: ledger}
}

type listPositionsResponse struct {
	Positions   []domain.FollowerPosition `json:"positions"`
	RealizedPnL decimal.Decimal           `json:"realized_pnl"`
}

// ListPositions returns open positions sorted by market.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, _ *http.Request) {
	positions := h.ledger.Positions()
	if positions == nil {
		positions = []domain.FollowerPosition{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{
		Positions:   positions,
		RealizedPnL: h.ledger.RealizedPnL(),
	})
}
