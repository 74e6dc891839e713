package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

// OutcomeNotifier forwards notable outcomes to operators.
type OutcomeNotifier interface {
	NotifyOutcome(ctx context.Context, o domain.MirrorOutcome) error
	Notify(ctx context.Context, event, title, message string) error
}

// BlockSource reports the current chain height.
type BlockSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// StatsSinks groups the optional outputs of the collector. Nil fields are
// skipped.
type StatsSinks struct {
	Bus          domain.SignalBus
	BusChannel   string
	Journal      domain.MirrorStore
	Audit        domain.AuditStore
	Notifier     OutcomeNotifier
	Blob         domain.BlobWriter
	ExportPrefix string
	Blocks       BlockSource
}

// StatsCollector keeps the mirror counters and periodically reports them.
// Record never blocks the caller: notable outcomes are queued and delivered
// to the sinks from Run.
type StatsCollector struct {
	interval    time.Duration
	sinks       StatsSinks
	streamState func() string
	logger      *slog.Logger
	now         func() time.Time

	mu   sync.Mutex
	snap domain.StatsSnapshot

	queue chan domain.MirrorOutcome
}

// NewStatsCollector creates a collector that reports every interval.
// streamState may be nil.
func NewStatsCollector(interval time.Duration, sinks StatsSinks, streamState func() string, logger *slog.Logger) *StatsCollector {
	c := &StatsCollector{
		interval:    interval,
		sinks:       sinks,
		streamState: streamState,
		logger:      logger.With(slog.String("component", "stats")),
		now:         time.Now,
		queue:       make(chan domain.MirrorOutcome, 256),
	}
	c.snap.StartedAt = c.now().UTC()
	return c
}

// OrderSucceeded counts a placed order.
func (c *StatsCollector) OrderSucceeded(domain.OrderRequest, domain.OrderResult) {
	now := c.now().UTC()
	c.mu.Lock()
	c.snap.OrdersAttempted++
	c.snap.SuccessfulTrades++
	c.snap.LastTradeTime = &now
	c.mu.Unlock()
}

// OrderFailed counts an order that was rejected, invalid or lost to the
// network.
func (c *StatsCollector) OrderFailed(domain.OrderRequest, *domain.DispatchError) {
	c.mu.Lock()
	c.snap.OrdersAttempted++
	c.snap.FailedTrades++
	c.mu.Unlock()
}

// Record counts one processing outcome and queues notable ones for the sinks.
func (c *StatsCollector) Record(o domain.MirrorOutcome) {
	if o.At.IsZero() {
		o.At = c.now().UTC()
	}

	c.mu.Lock()
	switch o.Kind {
	case domain.OutcomeDetected:
		c.snap.Detected++
	case domain.OutcomeDuplicate:
		c.snap.Duplicates++
	case domain.OutcomeMalformed:
		c.snap.Malformed++
	case domain.OutcomeIgnored:
		c.snap.Ignored++
	case domain.OutcomeSkipped:
		c.snap.Skipped++
	case domain.OutcomeInFlight:
		c.snap.AlreadyInFlight++
	case domain.OutcomeOpened:
		c.snap.TradesCopied++
	case domain.OutcomeClosed:
		c.snap.PositionsClosed++
		c.snap.RealizedPnL = c.snap.RealizedPnL.Add(o.PnL)
	case domain.OutcomeReconcileRemove:
		c.snap.ReconcileRemoved++
	case domain.OutcomeReconcileAdopt:
		c.snap.ReconcileAdopted++
	}
	c.mu.Unlock()

	if !notable(o.Kind) {
		return
	}
	select {
	case c.queue <- o:
	default:
		c.logger.Warn("outcome queue full, dropping sink delivery",
			slog.String("kind", string(o.Kind)),
			slog.String("identity", o.Identity),
		)
	}
}

func notable(k domain.OutcomeKind) bool {
	switch k {
	case domain.OutcomeOpened, domain.OutcomeClosed, domain.OutcomeFailed,
		domain.OutcomeReconcileRemove, domain.OutcomeReconcileAdopt:
		return true
	default:
		return false
	}
}

// StreamExhausted reports that the push stream gave up and the feed is
// running on polling alone.
func (c *StatsCollector) StreamExhausted(ctx context.Context, err error) {
	if c.sinks.Notifier != nil {
		_ = c.sinks.Notifier.Notify(ctx, "stream_exhausted", "Stream reconnect exhausted",
			"Continuing in polling-only mode: "+err.Error())
	}
	if c.sinks.Audit != nil {
		if aerr := c.sinks.Audit.Log(ctx, "stream_exhausted", map[string]any{"error": err.Error()}); aerr != nil {
			c.logger.WarnContext(ctx, "audit log failed", slog.String("error", aerr.Error()))
		}
	}
}

// Snapshot returns a copy of the current counters.
func (c *StatsCollector) Snapshot() domain.StatsSnapshot {
	c.mu.Lock()
	snap := c.snap
	c.mu.Unlock()
	if c.streamState != nil {
		snap.StreamState = c.streamState()
	}
	return snap
}

// Run delivers queued outcomes and reports on every interval until ctx is
// cancelled. A last report is written on shutdown.
func (c *StatsCollector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			c.drain(final)
			c.Report(final)
			cancel()
			return nil
		case o := <-c.queue:
			c.deliver(ctx, o)
		case <-ticker.C:
			c.Report(ctx)
		}
	}
}

func (c *StatsCollector) drain(ctx context.Context) {
	for {
		select {
		case o := <-c.queue:
			c.deliver(ctx, o)
		default:
			return
		}
	}
}

// deliver writes one outcome to the journal, the bus and the notifier. Sink
// errors are logged and never propagate.
func (c *StatsCollector) deliver(ctx context.Context, o domain.MirrorOutcome) {
	if c.sinks.Journal != nil {
		if err := c.sinks.Journal.Record(ctx, o); err != nil {
			c.logger.WarnContext(ctx, "journal write failed",
				slog.String("identity", o.Identity),
				slog.String("error", err.Error()),
			)
		}
	}
	if c.sinks.Bus != nil {
		c.publish(ctx, c.sinks.BusChannel, o)
	}
	if c.sinks.Notifier != nil {
		_ = c.sinks.Notifier.NotifyOutcome(ctx, o)
	}
}

func (c *StatsCollector) publish(ctx context.Context, channel string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.WarnContext(ctx, "marshal bus payload failed", slog.String("error", err.Error()))
		return
	}
	if err := c.sinks.Bus.Publish(ctx, channel, payload); err != nil {
		c.logger.WarnContext(ctx, "bus publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// Report refreshes the chain height, logs the stats line and pushes the
// snapshot to the bus and object storage.
func (c *StatsCollector) Report(ctx context.Context) domain.StatsSnapshot {
	if c.sinks.Blocks != nil {
		if n, err := c.sinks.Blocks.BlockNumber(ctx); err != nil {
			c.logger.DebugContext(ctx, "block height refresh failed", slog.String("error", err.Error()))
		} else {
			c.mu.Lock()
			c.snap.PolygonBlock = n
			c.mu.Unlock()
		}
	}

	snap := c.Snapshot()
	attrs := []any{
		slog.Int64("detected", snap.Detected),
		slog.Int64("duplicates", snap.Duplicates),
		slog.Int64("malformed", snap.Malformed),
		slog.Int64("skipped", snap.Skipped),
		slog.Int64("ignored", snap.Ignored),
		slog.Int64("trades_copied", snap.TradesCopied),
		slog.Int64("orders_attempted", snap.OrdersAttempted),
		slog.Int64("successful", snap.SuccessfulTrades),
		slog.Int64("failed", snap.FailedTrades),
		slog.Int64("already_in_flight", snap.AlreadyInFlight),
		slog.Int64("positions_closed", snap.PositionsClosed),
		slog.Int64("reconcile_removed", snap.ReconcileRemoved),
		slog.Int64("reconcile_adopted", snap.ReconcileAdopted),
		slog.String("realized_pnl", snap.RealizedPnL.StringFixed(2)),
		slog.String("success_rate", fmt.Sprintf("%.1f%%", snap.SuccessRate())),
		slog.String("stream", snap.StreamState),
		slog.Duration("uptime", c.now().Sub(snap.StartedAt).Truncate(time.Second)),
	}
	if snap.LastTradeTime != nil {
		attrs = append(attrs, slog.Time("last_trade", *snap.LastTradeTime))
	}
	if snap.PolygonBlock > 0 {
		attrs = append(attrs, slog.Uint64("polygon_block", snap.PolygonBlock))
	}
	c.logger.InfoContext(ctx, "mirror stats", attrs...)

	if c.sinks.Bus != nil {
		c.publish(ctx, c.sinks.BusChannel+":stats", snap)
	}
	if c.sinks.Blob != nil {
		c.export(ctx, snap)
	}
	return snap
}

func (c *StatsCollector) export(ctx context.Context, snap domain.StatsSnapshot) {
	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		c.logger.WarnContext(ctx, "marshal stats failed", slog.String("error", err.Error()))
		return
	}
	path := fmt.Sprintf("%s/%s.json", c.sinks.ExportPrefix, c.now().UTC().Format("2006/01/02/150405"))
	if err := c.sinks.Blob.Put(ctx, path, bytes.NewReader(body), "application/json"); err != nil {
		c.logger.WarnContext(ctx, "stats export failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
