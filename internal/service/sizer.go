package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

// Sizing modes.
const (
	SizingFixedFraction = "fixed_fraction"
	SizingFixedAmount   = "fixed_amount"
)

// Skip reasons reported by the sizer.
const (
	SkipBelowMinShares      = "below_min_shares"
	SkipInsufficientBalance = "insufficient_balance"
)

// shareDecimals is the exchange lot precision for share quantities.
const shareDecimals = 2

// SizingPolicy is the follower's risk budget.
type SizingPolicy struct {
	Mode         string
	CopyFraction decimal.Decimal
	FixedAmount  decimal.Decimal
	MinShares    decimal.Decimal
}

// SizeDecision is the sizer's answer for one open event. When Skip is set,
// Shares is zero and Reason says why.
type SizeDecision struct {
	Shares   decimal.Decimal
	Notional decimal.Decimal
	Skip     bool
	Reason   string
}

// Size converts a lead open into a follower share quantity. It is pure: the
// same inputs always produce the same decision.
func Size(ev domain.TradeEvent, account domain.AccountState, policy SizingPolicy) (SizeDecision, error) {
	if !ev.Price.IsPositive() {
		return SizeDecision{}, fmt.Errorf("sizer: %w: price %s", domain.ErrMalformedEvent, ev.Price)
	}

	var notional decimal.Decimal
	switch policy.Mode {
	case SizingFixedFraction:
		notional = account.Balance.Mul(policy.CopyFraction)
	case SizingFixedAmount, "":
		notional = policy.FixedAmount
	default:
		return SizeDecision{}, fmt.Errorf("sizer: unknown mode %q", policy.Mode)
	}

	if ev.Side == domain.SideBuy && notional.GreaterThan(account.Balance) {
		return SizeDecision{Notional: notional, Skip: true, Reason: SkipInsufficientBalance}, nil
	}

	shares := notional.DivRound(ev.Price, 8).Truncate(shareDecimals)
	if shares.LessThanOrEqual(policy.MinShares) {
		return SizeDecision{Notional: notional, Skip: true, Reason: SkipBelowMinShares}, nil
	}
	return SizeDecision{Shares: shares, Notional: notional}, nil
}
