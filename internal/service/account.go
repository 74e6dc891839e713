package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

// AccountSource fetches the follower's authoritative account state.
type AccountSource interface {
	FetchAccount(ctx context.Context) (domain.AccountState, error)
}

// AccountTracker refreshes the follower's balance and positions on a fixed
// cadence and on demand. Each snapshot replaces the previous one wholesale.
type AccountTracker struct {
	source   AccountSource
	interval time.Duration
	logger   *slog.Logger

	latest  atomic.Pointer[domain.AccountState]
	trigger chan struct{}
	updates chan domain.AccountState
}

// NewAccountTracker creates a tracker that polls source every interval.
func NewAccountTracker(source AccountSource, interval time.Duration, logger *slog.Logger) *AccountTracker {
	return &AccountTracker{
		source:   source,
		interval: interval,
		logger:   logger.With(slog.String("component", "account")),
		trigger:  make(chan struct{}, 1),
		updates:  make(chan domain.AccountState, 4),
	}
}

// Updates delivers every successful snapshot. Periodic snapshots have
// Periodic set.
func (t *AccountTracker) Updates() <-chan domain.AccountState {
	return t.updates
}

// Latest returns the most recent snapshot, or false before the first
// successful fetch.
func (t *AccountTracker) Latest() (domain.AccountState, bool) {
	s := t.latest.Load()
	if s == nil {
		return domain.AccountState{}, false
	}
	return *s, true
}

// Trigger requests an out-of-band refresh. Requests made while one is
// already pending are coalesced.
func (t *AccountTracker) Trigger() {
	select {
	case t.trigger <- struct{}{}:
	default:
	}
}

// Refresh fetches once and publishes the result. A failed fetch keeps the
// previous snapshot current.
func (t *AccountTracker) Refresh(ctx context.Context, periodic bool) error {
	state, err := t.source.FetchAccount(ctx)
	if err != nil {
		t.logger.WarnContext(ctx, "account refresh failed",
			slog.String("error", err.Error()),
		)
		return err
	}
	state.Periodic = periodic
	t.latest.Store(&state)

	t.logger.DebugContext(ctx, "account refreshed",
		slog.String("balance", state.Balance.String()),
		slog.Int("positions", len(state.Positions)),
		slog.Bool("periodic", periodic),
	)

	select {
	case t.updates <- state:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Run refreshes immediately and then on every tick or trigger until ctx is
// cancelled.
func (t *AccountTracker) Run(ctx context.Context) error {
	_ = t.Refresh(ctx, true)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = t.Refresh(ctx, true)
		case <-t.trigger:
			_ = t.Refresh(ctx, false)
		}
	}
}
