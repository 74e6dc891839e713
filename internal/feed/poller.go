package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/polymirror/internal/domain"
	"github.com/alanyoungcy/polymirror/internal/platform/polymarket"
)

// LeadSource reads the lead trader's public activity and holdings.
type LeadSource interface {
	Activity(ctx context.Context, user string, limit int) ([]polymarket.APIActivity, error)
	Positions(ctx context.Context, address string) ([]polymarket.APIPosition, error)
}

// PollerConfig controls both polling modes.
type PollerConfig struct {
	Lead              string
	ActivityInterval  time.Duration
	ActivityWindow    time.Duration
	ActivityLimit     int
	PositionsInterval time.Duration
	// PositionDiffOpens emits opens for markets that newly appear in the
	// lead's holdings, in addition to closes.
	PositionDiffOpens bool
}

// Poller detects lead activity by polling the data API. New-trade mode
// emits recent fills from the activity endpoint; position-diff mode compares
// successive holdings snapshots. Both run on one goroutine so events from this
// source keep their order.
type Poller struct {
	src    LeadSource
	cfg    PollerConfig
	logger *slog.Logger
	now    func() time.Time

	prev *domain.LeadSnapshot
	seq  uint64
}

// NewPoller creates a Poller.
func NewPoller(src LeadSource, cfg PollerConfig, logger *slog.Logger) *Poller {
	return &Poller{
		src:    src,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "poller")),
		now:    time.Now,
	}
}

// Run polls until ctx is cancelled. Fetch failures skip the tick.
func (p *Poller) Run(ctx context.Context, out chan<- domain.TradeEvent) error {
	p.logger.InfoContext(ctx, "poller started",
		slog.String("lead", p.cfg.Lead),
		slog.Duration("activity_interval", p.cfg.ActivityInterval),
		slog.Duration("positions_interval", p.cfg.PositionsInterval),
	)

	activity := time.NewTicker(p.cfg.ActivityInterval)
	defer activity.Stop()
	positions := time.NewTicker(p.cfg.PositionsInterval)
	defer positions.Stop()

	if !p.emitAll(ctx, out, p.pollActivity) || !p.emitAll(ctx, out, p.pollPositions) {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-activity.C:
			if !p.emitAll(ctx, out, p.pollActivity) {
				return nil
			}
		case <-positions.C:
			if !p.emitAll(ctx, out, p.pollPositions) {
				return nil
			}
		}
	}
}

// emitAll runs poll and forwards its events. It returns false once ctx is
// done.
func (p *Poller) emitAll(ctx context.Context, out chan<- domain.TradeEvent, poll func(context.Context) ([]domain.TradeEvent, error)) bool {
	events, err := poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.WarnContext(ctx, "poll failed, skipping tick", slog.String("error", err.Error()))
		return true
	}
	for _, ev := range events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// pollActivity returns lead fills whose age is within the activity window,
// oldest first. Re-emission across ticks is expected; the deduplicator
// filters it.
func (p *Poller) pollActivity(ctx context.Context) ([]domain.TradeEvent, error) {
	records, err := p.src.Activity(ctx, p.cfg.Lead, p.cfg.ActivityLimit)
	if err != nil {
		return nil, fmt.Errorf("feed: activity: %w", err)
	}

	now := p.now()
	var events []domain.TradeEvent
	for i := len(records) - 1; i >= 0; i-- {
		rec := &records[i]
		age := now.Sub(rec.Time())
		if age < 0 || age >= p.cfg.ActivityWindow {
			continue
		}
		ev, err := rec.ToTradeEvent()
		if err != nil {
			p.logger.DebugContext(ctx, "activity record dropped",
				slog.String("tx", rec.TransactionHash),
				slog.String("error", err.Error()),
			)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// pollPositions diffs the lead's holdings against the previous snapshot. The
// first successful snapshot is only a baseline.
func (p *Poller) pollPositions(ctx context.Context) ([]domain.TradeEvent, error) {
	records, err := p.src.Positions(ctx, p.cfg.Lead)
	if err != nil {
		return nil, fmt.Errorf("feed: positions: %w", err)
	}

	p.seq++
	now := p.now()
	snap := &domain.LeadSnapshot{
		Seq:      p.seq,
		Holdings: make(map[string]domain.LeadHolding, len(records)),
		TakenAt:  now,
	}
	for i := range records {
		rec := &records[i]
		if rec.ConditionID == "" || !rec.Size.IsPositive() {
			continue
		}
		snap.Holdings[rec.ConditionID] = rec.ToLeadHolding()
	}

	prev := p.prev
	p.prev = snap
	if prev == nil {
		p.logger.InfoContext(ctx, "lead positions baseline",
			slog.Int("markets", len(snap.Holdings)),
		)
		return nil, nil
	}

	var events []domain.TradeEvent
	for _, market := range sortedMarkets(prev.Holdings) {
		if _, still := snap.Holdings[market]; still {
			continue
		}
		h := prev.Holdings[market]
		events = append(events, domain.TradeEvent{
			Source:    "positions",
			Kind:      domain.EventPositionClosed,
			Market:    market,
			Asset:     h.Asset,
			Side:      h.Side,
			Size:      h.Size,
			Outcome:   h.Outcome,
			Timestamp: now,
			Identity:  fmt.Sprintf("positions:%s:close:%d", market, snap.Seq),
		})
	}
	if p.cfg.PositionDiffOpens {
		for _, market := range sortedMarkets(snap.Holdings) {
			if _, had := prev.Holdings[market]; had {
				continue
			}
			h := snap.Holdings[market]
			events = append(events, domain.TradeEvent{
				Source:    "positions",
				Kind:      domain.EventOrderFilled,
				Market:    market,
				Asset:     h.Asset,
				Side:      h.Side,
				Price:     h.AvgPrice,
				Size:      h.Size,
				Outcome:   h.Outcome,
				Timestamp: now,
				Identity:  fmt.Sprintf("positions:%s:open:%d", market, snap.Seq),
			})
		}
	}
	return events, nil
}

func sortedMarkets(h map[string]domain.LeadHolding) []string {
	out := make([]string, 0, len(h))
	for m := range h {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
