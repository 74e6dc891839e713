package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

// OrderSubmitter places a single order. The executor's dispatcher satisfies it.
type OrderSubmitter interface {
	Submit(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
}

// closedRetention bounds how long a close time is remembered past the grace
// window. Snapshots older than this are not expected to still be queued.
const closedRetention = 10 * time.Minute

// Ledger tracks the follower's mirrored positions, at most one per market.
// A market is either Flat (absent) or Open (present); closing removes the
// entry before the market can be opened again.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]domain.FollowerPosition
	closedAt  map[string]time.Time
	realized  decimal.Decimal
	grace     time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewLedger creates an empty ledger. grace protects positions opened within
// that long before an account snapshot from being dropped by reconciliation,
// and positions closed within that long before it from being adopted again.
func NewLedger(grace time.Duration, logger *slog.Logger) *Ledger {
	return &Ledger{
		positions: make(map[string]domain.FollowerPosition),
		closedAt:  make(map[string]time.Time),
		grace:     grace,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "ledger")),
	}
}

// Open records a new position. It fails with domain.ErrPositionExists when
// the market is already open.
func (l *Ledger) Open(pos domain.FollowerPosition) error {
	if pos.Market == "" || !pos.Shares.IsPositive() || !pos.EntryPrice.IsPositive() {
		return fmt.Errorf("ledger: open %q: %w", pos.Market, domain.ErrInvalidOrder)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.positions[pos.Market]; ok {
		return fmt.Errorf("ledger: open %q: %w", pos.Market, domain.ErrPositionExists)
	}
	l.positions[pos.Market] = pos
	delete(l.closedAt, pos.Market)
	return nil
}

// Has reports whether market is open.
func (l *Ledger) Has(market string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.positions[market]
	return ok
}

// Get returns the open position for market.
func (l *Ledger) Get(market string) (domain.FollowerPosition, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[market]
	return pos, ok
}

// Positions returns a copy of every open position sorted by market.
func (l *Ledger) Positions() []domain.FollowerPosition {
	l.mu.RLock()
	out := make([]domain.FollowerPosition, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, pos)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Market < out[j].Market })
	return out
}

// Len returns the number of open positions.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// RealizedPnL is the sum of P&L over every close since startup.
func (l *Ledger) RealizedPnL() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.realized
}

// Close mirrors a lead close. With no open position for the event's market it
// is a no-op. Otherwise it submits the opposite side for the recorded share
// count and, once the order succeeds, removes the position and books the
// P&L. A failed order leaves the position open.
func (l *Ledger) Close(ctx context.Context, ev domain.TradeEvent, submitter OrderSubmitter) (domain.CloseResult, error) {
	pos, ok := l.Get(ev.Market)
	if !ok {
		return domain.CloseResult{}, nil
	}

	req := domain.OrderRequest{
		Market:         pos.Market,
		Asset:          pos.Asset,
		Side:           pos.Side.Opposite(),
		Size:           pos.Shares,
		Type:           domain.OrderTypeMarket,
		IdempotencyKey: domain.IdempotencyKey(ev.Identity),
	}
	res, err := submitter.Submit(ctx, req)
	if err != nil {
		return domain.CloseResult{Position: pos}, err
	}

	exit, estimated := exitPrice(res, ev, pos)
	pnl := exit.Sub(pos.EntryPrice).Mul(pos.Shares).Mul(pos.Side.Sign())

	l.mu.Lock()
	delete(l.positions, pos.Market)
	l.closedAt[pos.Market] = l.now()
	l.realized = l.realized.Add(pnl)
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "position closed",
		slog.String("market", pos.Market),
		slog.String("side", string(pos.Side)),
		slog.String("shares", pos.Shares.String()),
		slog.String("entry", pos.EntryPrice.String()),
		slog.String("exit", exit.String()),
		slog.String("pnl", pnl.StringFixed(4)),
		slog.Bool("estimated", estimated),
	)
	return domain.CloseResult{
		Closed:    true,
		Position:  pos,
		ExitPrice: exit,
		PnL:       pnl,
		Estimated: estimated,
		OrderID:   res.OrderID,
	}, nil
}

// exitPrice prefers the venue's fill price, then the lead's close price, and
// finally falls back to the entry price with the P&L marked as estimated.
func exitPrice(res domain.OrderResult, ev domain.TradeEvent, pos domain.FollowerPosition) (decimal.Decimal, bool) {
	switch {
	case res.AvgPrice.IsPositive():
		return res.AvgPrice, false
	case ev.Price.IsPositive():
		return ev.Price, false
	default:
		return pos.EntryPrice, true
	}
}

// Reconcile aligns the ledger with an authoritative account snapshot. Markets
// missing from the snapshot are dropped without placing orders, unless they
// were opened within the grace window before the snapshot was fetched.
// Markets held on the account but unknown locally are adopted when they carry
// a usable price and were not closed here within the grace window before the
// fetch or at any point after it. Snapshots are processed after they are
// fetched, so one can still show a market the ledger has since closed.
func (l *Ledger) Reconcile(ctx context.Context, account domain.AccountState) domain.ReconcileReport {
	var report domain.ReconcileReport
	cutoff := account.FetchedAt.Add(-l.grace)

	l.mu.Lock()
	for market, pos := range l.positions {
		if _, ok := account.Positions[market]; ok {
			continue
		}
		if pos.OpenedAt.After(cutoff) {
			continue
		}
		delete(l.positions, market)
		report.Removed = append(report.Removed, market)
	}

	var unpriced, recentlyClosed []string
	for market, pos := range account.Positions {
		if _, ok := l.positions[market]; ok {
			continue
		}
		if closed, ok := l.closedAt[market]; ok && closed.After(cutoff) {
			recentlyClosed = append(recentlyClosed, market)
			continue
		}
		if !pos.EntryPrice.IsPositive() || !pos.Shares.IsPositive() {
			unpriced = append(unpriced, market)
			continue
		}
		pos.Market = market
		l.positions[market] = pos
		report.Adopted = append(report.Adopted, market)
	}
	expired := l.now().Add(-l.grace - closedRetention)
	for market, closed := range l.closedAt {
		if closed.Before(expired) {
			delete(l.closedAt, market)
		}
	}
	l.mu.Unlock()

	sort.Strings(report.Removed)
	sort.Strings(report.Adopted)

	for _, market := range report.Removed {
		l.logger.WarnContext(ctx, "reconcile: position no longer held, removed",
			slog.String("market", market),
		)
	}
	for _, market := range report.Adopted {
		l.logger.InfoContext(ctx, "reconcile: adopted untracked position",
			slog.String("market", market),
		)
	}
	for _, market := range recentlyClosed {
		l.logger.InfoContext(ctx, "reconcile: snapshot predates close, not adopted",
			slog.String("market", market),
		)
	}
	for _, market := range unpriced {
		l.logger.WarnContext(ctx, "reconcile: untracked position without price, skipped",
			slog.String("market", market),
		)
	}
	return report
}
