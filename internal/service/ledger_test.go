package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polymirror/internal/domain"
	"github.com/alanyoungcy/polymirror/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSubmitter struct {
	reqs []domain.OrderRequest
	res  domain.OrderResult
	err  error
}

func (f *fakeSubmitter) Submit(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return domain.OrderResult{}, f.err
	}
	res := f.res
	if res.OrderID == "" {
		res.OrderID = "close-1"
	}
	return res, nil
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func longPosition(market string, openedAt time.Time) domain.FollowerPosition {
	return domain.FollowerPosition{
		Market:     market,
		Side:       domain.SideBuy,
		Shares:     num("25"),
		EntryPrice: num("0.40"),
		OrderID:    "open-1",
		OpenedAt:   openedAt,
	}
}

func closeEvent(market, price string) domain.TradeEvent {
	ev := domain.TradeEvent{
		Kind:     domain.EventPositionClosed,
		Market:   market,
		Identity: "close:0xtx-2",
	}
	if price != "" {
		ev.Price = num(price)
	}
	return ev
}

func TestLedger_OpenRejectsSecondPosition(t *testing.T) {
	l := service.NewLedger(15*time.Second, testLogger())
	require.NoError(t, l.Open(longPosition("m1", t0)))

	err := l.Open(longPosition("m1", t0))
	assert.ErrorIs(t, err, domain.ErrPositionExists)
	assert.Equal(t, 1, l.Len())
}

func TestLedger_CloseBooksPnLAndReturnsToFlat(t *testing.T) {
	l := service.NewLedger(15*time.Second, testLogger())
	require.NoError(t, l.Open(longPosition("m1", t0)))

	sub := &fakeSubmitter{}
	res, err := l.Close(context.Background(), closeEvent("m1", "0.55"), sub)
	require.NoError(t, err)

	assert.True(t, res.Closed)
	assert.False(t, res.Estimated)
	assert.True(t, num("3.75").Equal(res.PnL), "pnl=%s", res.PnL)
	assert.True(t, num("3.75").Equal(l.RealizedPnL()))
	assert.False(t, l.Has("m1"))

	require.Len(t, sub.reqs, 1)
	req := sub.reqs[0]
	assert.Equal(t, domain.SideSell, req.Side)
	assert.True(t, num("25").Equal(req.Size))
	assert.Equal(t, domain.OrderTypeMarket, req.Type)
	assert.Equal(t, domain.IdempotencyKey("close:0xtx-2"), req.IdempotencyKey)

	// Flat again, so a new open is accepted.
	require.NoError(t, l.Open(longPosition("m1", t0)))
}

func TestLedger_CloseShortPositionSign(t *testing.T) {
	l := service.NewLedger(0, testLogger())
	pos := longPosition("m1", t0)
	pos.Side = domain.SideSell
	require.NoError(t, l.Open(pos))

	sub := &fakeSubmitter{}
	res, err := l.Close(context.Background(), closeEvent("m1", "0.30"), sub)
	require.NoError(t, err)
	assert.True(t, num("2.5").Equal(res.PnL), "pnl=%s", res.PnL)
	assert.Equal(t, domain.SideBuy, sub.reqs[0].Side)
}

func TestLedger_ClosePrefersFillPrice(t *testing.T) {
	l := service.NewLedger(0, testLogger())
	require.NoError(t, l.Open(longPosition("m1", t0)))

	res, err := l.Close(context.Background(), closeEvent("m1", "0.55"),
		&fakeSubmitter{res: domain.OrderResult{AvgPrice: num("0.50")}})
	require.NoError(t, err)
	assert.True(t, num("0.50").Equal(res.ExitPrice))
	assert.True(t, num("2.5").Equal(res.PnL))
}

func TestLedger_CloseWithoutPriceIsEstimated(t *testing.T) {
	l := service.NewLedger(0, testLogger())
	require.NoError(t, l.Open(longPosition("m1", t0)))

	res, err := l.Close(context.Background(), closeEvent("m1", ""), &fakeSubmitter{})
	require.NoError(t, err)
	assert.True(t, res.Estimated)
	assert.True(t, res.PnL.IsZero())
}

func TestLedger_CloseAbsentIsNoop(t *testing.T) {
	l := service.NewLedger(0, testLogger())
	sub := &fakeSubmitter{}

	res, err := l.Close(context.Background(), closeEvent("m9", "0.5"), sub)
	require.NoError(t, err)
	assert.False(t, res.Closed)
	assert.Empty(t, sub.reqs)
}

func TestLedger_CloseFailureKeepsPosition(t *testing.T) {
	l := service.NewLedger(0, testLogger())
	require.NoError(t, l.Open(longPosition("m1", t0)))

	dispatchErr := &domain.DispatchError{Kind: domain.FailureRejected, Err: errors.New("no liquidity")}
	res, err := l.Close(context.Background(), closeEvent("m1", "0.5"), &fakeSubmitter{err: dispatchErr})
	require.Error(t, err)
	assert.False(t, res.Closed)
	assert.True(t, l.Has("m1"))
	assert.True(t, l.RealizedPnL().IsZero())
}

func TestLedger_ReconcileRemovesWithoutOrder(t *testing.T) {
	l := service.NewLedger(15*time.Second, testLogger())
	require.NoError(t, l.Open(longPosition("m1", t0)))
	require.NoError(t, l.Open(longPosition("m2", t0)))

	report := l.Reconcile(context.Background(), domain.AccountState{
		Balance:   num("100"),
		Positions: map[string]domain.FollowerPosition{"m2": longPosition("m2", t0)},
		FetchedAt: t0.Add(time.Minute),
		Periodic:  true,
	})
	assert.Equal(t, []string{"m1"}, report.Removed)
	assert.Empty(t, report.Adopted)
	assert.False(t, l.Has("m1"))
	assert.True(t, l.Has("m2"))
	assert.True(t, l.RealizedPnL().IsZero())
}

func TestLedger_ReconcileGraceKeepsFreshFill(t *testing.T) {
	l := service.NewLedger(15*time.Second, testLogger())
	require.NoError(t, l.Open(longPosition("m1", t0)))

	// Snapshot fetched 5s after the fill does not see it yet.
	report := l.Reconcile(context.Background(), domain.AccountState{
		Positions: map[string]domain.FollowerPosition{},
		FetchedAt: t0.Add(5 * time.Second),
	})
	assert.Empty(t, report.Removed)
	assert.True(t, l.Has("m1"))
}

func TestLedger_ReconcileAdoptsPricedPositions(t *testing.T) {
	l := service.NewLedger(15*time.Second, testLogger())

	unpriced := longPosition("m3", t0)
	unpriced.EntryPrice = decimal.Zero
	report := l.Reconcile(context.Background(), domain.AccountState{
		Positions: map[string]domain.FollowerPosition{
			"m2": longPosition("m2", t0),
			"m3": unpriced,
		},
		FetchedAt: t0,
	})
	assert.Equal(t, []string{"m2"}, report.Adopted)
	assert.True(t, l.Has("m2"))
	assert.False(t, l.Has("m3"))

	positions := l.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, "m2", positions[0].Market)
}

func TestLedger_ReconcileDoesNotAdoptClosedMarketFromEarlierSnapshot(t *testing.T) {
	l := service.NewLedger(15*time.Second, testLogger())
	require.NoError(t, l.Open(longPosition("m1", time.Now())))

	// Fetched while m1 was still held, processed after the close.
	stale := domain.AccountState{
		Positions: map[string]domain.FollowerPosition{"m1": longPosition("m1", time.Now())},
		FetchedAt: time.Now().Add(-time.Second),
		Periodic:  true,
	}
	res, err := l.Close(context.Background(), closeEvent("m1", "0.55"), &fakeSubmitter{})
	require.NoError(t, err)
	require.True(t, res.Closed)

	report := l.Reconcile(context.Background(), stale)
	assert.Empty(t, report.Adopted)
	assert.False(t, l.Has("m1"))
	assert.True(t, num("3.75").Equal(l.RealizedPnL()))

	// A snapshot fetched well after the close reflects a genuine holding.
	fresh := stale
	fresh.FetchedAt = time.Now().Add(time.Minute)
	report = l.Reconcile(context.Background(), fresh)
	assert.Equal(t, []string{"m1"}, report.Adopted)
	assert.True(t, l.Has("m1"))
}
