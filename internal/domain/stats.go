package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatsSnapshot is a point-in-time copy of the mirror counters.
type StatsSnapshot struct {
	Detected         int64           `json:"detected"`
	Duplicates       int64           `json:"duplicates"`
	Malformed        int64           `json:"malformed"`
	Skipped          int64           `json:"skipped"`
	Ignored          int64           `json:"ignored"`
	TradesCopied     int64           `json:"trades_copied"`
	OrdersAttempted  int64           `json:"orders_attempted"`
	SuccessfulTrades int64           `json:"successful_trades"`
	FailedTrades     int64           `json:"failed_trades"`
	AlreadyInFlight  int64           `json:"already_in_flight"`
	PositionsClosed  int64           `json:"positions_closed"`
	ReconcileRemoved int64           `json:"reconcile_removed"`
	ReconcileAdopted int64           `json:"reconcile_adopted"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	LastTradeTime    *time.Time      `json:"last_trade_time,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	StreamState      string          `json:"stream_state"`
	PolygonBlock     uint64          `json:"polygon_block,omitempty"`
}

// SuccessRate is the share of submitted orders, opens and closes alike, that
// the venue accepted, in percent.
func (s StatsSnapshot) SuccessRate() float64 {
	if s.OrdersAttempted == 0 {
		return 0
	}
	return float64(s.SuccessfulTrades) / float64(s.OrdersAttempted) * 100
}
