package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FollowerPosition is an open mirrored position in one market.
type FollowerPosition struct {
	Market     string          `json:"market"`
	Asset      string          `json:"asset,omitempty"`
	Outcome    string          `json:"outcome,omitempty"`
	Side       Side            `json:"side"`
	Shares     decimal.Decimal `json:"shares"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	OrderID    string          `json:"order_id,omitempty"`
	OpenedAt   time.Time       `json:"opened_at"`
}

// LeadHolding is the lead trader's holding in one market.
type LeadHolding struct {
	Side     Side
	Size     decimal.Decimal
	Asset    string
	Outcome  string
	AvgPrice decimal.Decimal
}

// LeadSnapshot is one fetch of the lead trader's positions.
type LeadSnapshot struct {
	Seq      uint64
	Holdings map[string]LeadHolding
	TakenAt  time.Time
}

// AccountState is the follower's balance and positions as reported by the
// data API. It is replaced wholesale on every refresh.
type AccountState struct {
	Balance   decimal.Decimal
	Positions map[string]FollowerPosition
	FetchedAt time.Time
	// Periodic marks snapshots taken by the fixed cadence rather than a
	// post-order refresh. Only periodic snapshots drive reconciliation.
	Periodic bool
}

// CloseResult describes the outcome of a mirrored close.
type CloseResult struct {
	Closed    bool
	Position  FollowerPosition
	ExitPrice decimal.Decimal
	PnL       decimal.Decimal
	Estimated bool
	OrderID   string
}

// ReconcileReport lists the corrections applied by a reconciliation pass.
type ReconcileReport struct {
	Removed []string
	Adopted []string
}
