package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polymirror/internal/domain"
	"github.com/alanyoungcy/polymirror/internal/service"
)

// AccountView exposes the latest follower account snapshot and lets the
// mirror request a refresh after it trades.
type AccountView interface {
	Latest() (domain.AccountState, bool)
	Trigger()
}

// OutcomeRecorder receives one report per processing step.
type OutcomeRecorder interface {
	Record(o domain.MirrorOutcome)
}

// Skip details reported alongside OutcomeSkipped and OutcomeIgnored.
const (
	skipAlreadyOpen    = "already_open"
	skipAccountUnknown = "account_unknown"
	ignoreNotOpen      = "not_open"
	ignoreKind         = "ignored_kind"
)

// MirrorConfig holds the Mirror's tunables.
type MirrorConfig struct {
	Sizing service.SizingPolicy
	// Reconcile enables ledger reconciliation on periodic account snapshots.
	Reconcile bool
}

// Mirror is the single consumer of lead events. It owns the processing
// pipeline: validate, deduplicate, then open or close the follower's mirror
// position. All business state changes happen on the goroutine running Run.
type Mirror struct {
	events   <-chan domain.TradeEvent
	accounts <-chan domain.AccountState

	dedup     *Deduplicator
	submitter service.OrderSubmitter
	ledger    *service.Ledger
	account   AccountView
	recorder  OutcomeRecorder
	cfg       MirrorConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewMirror wires a Mirror. accounts may be nil when no reconciliation source
// exists.
func NewMirror(
	events <-chan domain.TradeEvent,
	accounts <-chan domain.AccountState,
	dedup *Deduplicator,
	submitter service.OrderSubmitter,
	ledger *service.Ledger,
	account AccountView,
	recorder OutcomeRecorder,
	cfg MirrorConfig,
	logger *slog.Logger,
) *Mirror {
	return &Mirror{
		events:    events,
		accounts:  accounts,
		dedup:     dedup,
		submitter: submitter,
		ledger:    ledger,
		account:   account,
		recorder:  recorder,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "mirror")),
		now:       time.Now,
	}
}

// Run processes events and account snapshots until ctx is cancelled or both
// input channels are closed.
func (m *Mirror) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "mirror started",
		slog.String("sizing", m.cfg.Sizing.Mode),
		slog.Bool("reconcile", m.cfg.Reconcile),
	)
	events, accounts := m.events, m.accounts
	for events != nil || accounts != nil {
		select {
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "mirror stopping")
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			m.HandleEvent(ctx, ev)
		case state, ok := <-accounts:
			if !ok {
				accounts = nil
				continue
			}
			m.HandleAccount(ctx, state)
		}
	}
	return nil
}

// HandleEvent runs one lead event through the pipeline.
func (m *Mirror) HandleEvent(ctx context.Context, ev domain.TradeEvent) {
	if err := ev.Validate(); err != nil {
		m.logger.WarnContext(ctx, "malformed event dropped",
			slog.String("source", ev.Source),
			slog.String("identity", ev.Identity),
			slog.String("error", err.Error()),
		)
		m.report(m.outcome(domain.OutcomeMalformed, ev, err.Error()))
		return
	}
	if !m.dedup.Admit(ev.Identity) {
		m.logger.DebugContext(ctx, "duplicate event",
			slog.String("source", ev.Source),
			slog.String("identity", ev.Identity),
		)
		m.report(m.outcome(domain.OutcomeDuplicate, ev, ""))
		return
	}

	action := ev.Kind.Action()
	m.logger.InfoContext(ctx, "lead activity detected",
		slog.String("source", ev.Source),
		slog.String("kind", string(ev.Kind)),
		slog.String("action", action.String()),
		slog.String("market", ev.Market),
		slog.String("side", string(ev.Side)),
		slog.String("price", ev.Price.String()),
		slog.String("identity", ev.Identity),
	)
	m.report(m.outcome(domain.OutcomeDetected, ev, ""))

	switch action {
	case domain.ActionOpen:
		m.open(ctx, ev)
	case domain.ActionClose:
		m.close(ctx, ev)
	default:
		m.report(m.outcome(domain.OutcomeIgnored, ev, ignoreKind))
	}
}

func (m *Mirror) open(ctx context.Context, ev domain.TradeEvent) {
	if m.ledger.Has(ev.Market) {
		m.report(m.outcome(domain.OutcomeSkipped, ev, skipAlreadyOpen))
		return
	}
	state, ok := m.account.Latest()
	if !ok {
		m.logger.WarnContext(ctx, "no account snapshot yet, open skipped",
			slog.String("market", ev.Market),
		)
		m.report(m.outcome(domain.OutcomeSkipped, ev, skipAccountUnknown))
		return
	}

	decision, err := service.Size(ev, state, m.cfg.Sizing)
	if err != nil {
		m.logger.WarnContext(ctx, "sizing rejected event",
			slog.String("identity", ev.Identity),
			slog.String("error", err.Error()),
		)
		m.report(m.outcome(domain.OutcomeMalformed, ev, err.Error()))
		return
	}
	if decision.Skip {
		m.logger.InfoContext(ctx, "open skipped",
			slog.String("market", ev.Market),
			slog.String("reason", decision.Reason),
			slog.String("notional", decision.Notional.String()),
			slog.String("balance", state.Balance.String()),
		)
		m.report(m.outcome(domain.OutcomeSkipped, ev, decision.Reason))
		return
	}

	req := domain.OrderRequest{
		Market:         ev.Market,
		Asset:          ev.Asset,
		Side:           ev.Side,
		Size:           decision.Shares,
		Type:           domain.OrderTypeMarket,
		IdempotencyKey: domain.IdempotencyKey(ev.Identity),
	}
	res, err := m.submitter.Submit(ctx, req)
	if err != nil {
		m.reportDispatchFailure(ev, err)
		return
	}

	entry := ev.Price
	if res.AvgPrice.IsPositive() {
		entry = res.AvgPrice
	}
	pos := domain.FollowerPosition{
		Market:     ev.Market,
		Asset:      ev.Asset,
		Outcome:    ev.Outcome,
		Side:       ev.Side,
		Shares:     decision.Shares,
		EntryPrice: entry,
		OrderID:    res.OrderID,
		OpenedAt:   m.now().UTC(),
	}
	if err := m.ledger.Open(pos); err != nil {
		m.logger.ErrorContext(ctx, "ledger rejected filled order",
			slog.String("market", ev.Market),
			slog.String("order_id", res.OrderID),
			slog.String("error", err.Error()),
		)
	}

	o := m.outcome(domain.OutcomeOpened, ev, "")
	o.Shares = decision.Shares
	o.Price = entry
	o.OrderID = res.OrderID
	m.report(o)
	m.account.Trigger()
}

func (m *Mirror) close(ctx context.Context, ev domain.TradeEvent) {
	res, err := m.ledger.Close(ctx, ev, m.submitter)
	if err != nil {
		m.reportDispatchFailure(ev, err)
		return
	}
	if !res.Closed {
		m.logger.DebugContext(ctx, "close for market without mirror position",
			slog.String("market", ev.Market),
		)
		m.report(m.outcome(domain.OutcomeIgnored, ev, ignoreNotOpen))
		return
	}

	o := m.outcome(domain.OutcomeClosed, ev, "")
	o.Side = res.Position.Side.Opposite()
	o.Shares = res.Position.Shares
	o.Price = res.ExitPrice
	o.PnL = res.PnL
	o.OrderID = res.OrderID
	if res.Estimated {
		o.Detail = "estimated_exit"
	}
	m.report(o)
	m.account.Trigger()
}

func (m *Mirror) reportDispatchFailure(ev domain.TradeEvent, err error) {
	var derr *domain.DispatchError
	if errors.As(err, &derr) && derr.Kind == domain.FailureAlreadyInFlight {
		m.report(m.outcome(domain.OutcomeInFlight, ev, derr.Detail))
		return
	}
	m.report(m.outcome(domain.OutcomeFailed, ev, err.Error()))
}

// HandleAccount reconciles the ledger against periodic snapshots.
func (m *Mirror) HandleAccount(ctx context.Context, state domain.AccountState) {
	if !m.cfg.Reconcile || !state.Periodic {
		return
	}
	report := m.ledger.Reconcile(ctx, state)
	for _, market := range report.Removed {
		m.report(domain.MirrorOutcome{Kind: domain.OutcomeReconcileRemove, Market: market, At: m.now().UTC()})
	}
	for _, market := range report.Adopted {
		m.report(domain.MirrorOutcome{Kind: domain.OutcomeReconcileAdopt, Market: market, At: m.now().UTC()})
	}
}

func (m *Mirror) outcome(kind domain.OutcomeKind, ev domain.TradeEvent, detail string) domain.MirrorOutcome {
	return domain.MirrorOutcome{
		Kind:     kind,
		Identity: ev.Identity,
		Market:   ev.Market,
		Side:     ev.Side,
		Price:    ev.Price,
		Detail:   detail,
		At:       m.now().UTC(),
	}
}

func (m *Mirror) report(o domain.MirrorOutcome) {
	if m.recorder != nil {
		m.recorder.Record(o)
	}
}
