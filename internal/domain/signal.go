package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OutcomeKind classifies what happened to one processed event.
type OutcomeKind string

const (
	OutcomeDetected        OutcomeKind = "detected"
	OutcomeDuplicate       OutcomeKind = "duplicate"
	OutcomeMalformed       OutcomeKind = "malformed"
	OutcomeIgnored         OutcomeKind = "ignored"
	OutcomeSkipped         OutcomeKind = "skipped"
	OutcomeOpened          OutcomeKind = "opened"
	OutcomeClosed          OutcomeKind = "closed"
	OutcomeFailed          OutcomeKind = "failed"
	OutcomeInFlight        OutcomeKind = "in_flight"
	OutcomeReconcileRemove OutcomeKind = "reconcile_removed"
	OutcomeReconcileAdopt  OutcomeKind = "reconcile_adopted"
)

// MirrorOutcome is reported by the coordinator for every step worth counting.
type MirrorOutcome struct {
	Kind     OutcomeKind     `json:"kind"`
	Identity string          `json:"identity,omitempty"`
	Market   string          `json:"market,omitempty"`
	Side     Side            `json:"side,omitempty"`
	Shares   decimal.Decimal `json:"shares"`
	Price    decimal.Decimal `json:"price"`
	PnL      decimal.Decimal `json:"pnl"`
	OrderID  string          `json:"order_id,omitempty"`
	Detail   string          `json:"detail,omitempty"`
	At       time.Time       `json:"at"`
}

// BotStatus is a summary of the bot's current operational state.
type BotStatus struct {
	Mode          string `json:"mode"`
	Lead          string `json:"lead"`
	StreamState   string `json:"stream_state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	OpenPositions int    `json:"open_positions"`
}
