package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polymirror/internal/crypto"
	"github.com/alanyoungcy/polymirror/internal/domain"
	"github.com/alanyoungcy/polymirror/internal/executor"
	"github.com/alanyoungcy/polymirror/internal/feed"
	"github.com/alanyoungcy/polymirror/internal/platform/polymarket"
	"github.com/alanyoungcy/polymirror/internal/server"
	"github.com/alanyoungcy/polymirror/internal/server/handler"
	"github.com/alanyoungcy/polymirror/internal/server/ws"
	"github.com/alanyoungcy/polymirror/internal/service"
)

// venue is what differs between live and paper mode.
type venue struct {
	placer     executor.OrderPlacer
	canceller  handler.OrderCanceller
	streamAuth *polymarket.StreamAuth
	reconcile  bool
}

// liveVenue signs real CLOB orders. Reconciliation runs against the real
// account.
func (a *App) liveVenue() (*venue, error) {
	secret, err := crypto.LoadSecret(crypto.SecretSource{
		Raw:      a.cfg.API.Secret,
		Path:     a.cfg.API.SecretFile,
		Password: a.cfg.API.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("live venue: %w", err)
	}
	auth, err := crypto.NewHMACAuth(a.cfg.Wallet.Address, a.cfg.API.Key, secret, a.cfg.API.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("live venue: %w", err)
	}
	clob := polymarket.NewClobClient(a.cfg.Polymarket.ClobHost, auth, a.cfg.Polymarket.RequestTimeout.Duration)
	return &venue{
		placer:    clob,
		canceller: clob,
		streamAuth: &polymarket.StreamAuth{
			APIKey:     a.cfg.API.Key,
			Secret:     secret,
			Passphrase: a.cfg.API.Passphrase,
		},
		reconcile: true,
	}, nil
}

// paperVenue simulates fills. The real account never holds paper positions
// so reconciliation stays off.
func (a *App) paperVenue() *venue {
	v := &venue{placer: executor.NewPaperPlacer(a.logger)}
	if a.cfg.API.Key != "" && a.cfg.API.Secret != "" {
		v.streamAuth = &polymarket.StreamAuth{
			APIKey:     a.cfg.API.Key,
			Secret:     a.cfg.API.Secret,
			Passphrase: a.cfg.API.Passphrase,
		}
	}
	return v
}

// runMirror builds the pipeline and runs every long-lived goroutine under
// one errgroup until ctx is cancelled.
func (a *App) runMirror(ctx context.Context, deps *Dependencies, v *venue) error {
	cfg := a.cfg
	startedAt := time.Now().UTC()
	g, ctx := errgroup.WithContext(ctx)

	data := polymarket.NewDataClient(
		cfg.Polymarket.DataHost,
		cfg.Polymarket.RequestsPerSecond,
		cfg.Polymarket.Burst,
		cfg.Polymarket.RequestTimeout.Duration,
	)

	tracker := service.NewAccountTracker(
		polymarket.NewAccountReader(data, cfg.Wallet.Address),
		cfg.Account.RefreshInterval.Duration,
		a.logger,
	)

	poller := feed.NewPoller(data, feed.PollerConfig{
		Lead:              cfg.Lead.Address,
		ActivityInterval:  cfg.Feed.ActivityInterval.Duration,
		ActivityWindow:    cfg.Feed.ActivityWindow.Duration,
		ActivityLimit:     cfg.Feed.ActivityLimit,
		PositionsInterval: cfg.Feed.PositionsInterval.Duration,
		PositionDiffOpens: cfg.Feed.PositionDiffOpens,
	}, a.logger)

	var (
		streamer    feed.Producer
		streamState = func() string { return "disabled" }
	)
	if cfg.Stream.Enabled {
		s := feed.NewStreamer(
			polymarket.NewUserStream(cfg.Polymarket.WsHost, cfg.Stream.Channel, v.streamAuth),
			feed.NewSupervisor(feed.SupervisorConfig{
				MaxAttempts: cfg.Stream.MaxReconnectAttempts,
				Delay:       cfg.Stream.ReconnectDelay.Duration,
				MaxDelay:    cfg.Stream.MaxReconnectDelay.Duration,
				Backoff:     cfg.Stream.Backoff,
			}, a.logger),
			cfg.Lead.Address,
			a.logger,
		)
		streamer = s
		streamState = s.State
	}
	activity := feed.NewActivityFeed(poller, streamer, cfg.Feed.BufferSize, a.logger)

	ledger := service.NewLedger(cfg.Ledger.ReconcileGrace.Duration, a.logger)

	status := func() domain.BotStatus {
		return domain.BotStatus{
			Mode:          cfg.Mode,
			Lead:          cfg.Lead.Address,
			StreamState:   streamState(),
			UptimeSeconds: int64(time.Since(startedAt).Seconds()),
			OpenPositions: ledger.Len(),
		}
	}

	var hub *ws.Hub
	var bus domain.SignalBus = deps.Bus
	if cfg.Server.Enabled {
		hub = ws.NewHub(status, a.logger)
		bus = joinBuses(deps.Bus, hub)
	}

	sinks := service.StatsSinks{
		Bus:          bus,
		BusChannel:   cfg.Redis.Channel,
		Journal:      deps.Journal,
		Audit:        deps.Audit,
		Notifier:     deps.Notifier,
		Blob:         deps.Blob,
		ExportPrefix: cfg.Stats.ExportPrefix,
	}
	if deps.Blocks != nil {
		sinks.Blocks = deps.Blocks
	}
	stats := service.NewStatsCollector(cfg.Stats.DisplayInterval.Duration, sinks, streamState, a.logger)
	activity.OnDegraded(stats.StreamExhausted)

	opts := []executor.DispatcherOption{executor.WithObserver(stats)}
	if deps.Locks != nil {
		opts = append(opts, executor.WithLockManager(deps.Locks))
	}
	dispatcher := executor.NewDispatcher(v.placer, cfg.Dispatch.Cooldown.Duration, a.logger, opts...)

	mirror := executor.NewMirror(
		activity.Events(),
		tracker.Updates(),
		executor.NewDeduplicator(cfg.Dedup.Capacity, cfg.Dedup.EvictBatch),
		dispatcher,
		ledger,
		tracker,
		stats,
		executor.MirrorConfig{
			Sizing: service.SizingPolicy{
				Mode:         cfg.Sizing.Mode,
				CopyFraction: decimal.NewFromFloat(cfg.Sizing.CopyFraction),
				FixedAmount:  decimal.NewFromFloat(cfg.Sizing.FixedAmount),
				MinShares:    decimal.NewFromFloat(cfg.Sizing.MinShares),
			},
			Reconcile: v.reconcile,
		},
		a.logger,
	)

	a.audit(ctx, deps, "startup", map[string]any{
		"mode":   cfg.Mode,
		"lead":   cfg.Lead.Address,
		"stream": cfg.Stream.Enabled,
	})

	g.Go(func() error { return tracker.Run(ctx) })
	g.Go(func() error { return activity.Run(ctx) })
	g.Go(func() error { return mirror.Run(ctx) })
	g.Go(func() error { return stats.Run(ctx) })

	if cfg.Server.Enabled {
		handlers := server.Handlers{
			Status:    handler.NewStatusHandler(status),
			Positions: handler.NewPositionHandler(ledger),
			Stats:     handler.NewStatsHandler(stats),
			Orders:    handler.NewOrderHandler(v.canceller, deps.Audit, a.logger),
		}
		srv := server.NewServer(server.Config{
			Port:        cfg.Server.Port,
			CORSOrigins: cfg.Server.CORSOrigins,
			APIKey:      cfg.Server.APIKey,
		}, handlers, hub, a.logger)
		g.Go(func() error { return hub.Run(ctx) })
		g.Go(func() error { return srv.Run(ctx) })
	}

	err := g.Wait()
	a.audit(context.WithoutCancel(ctx), deps, "shutdown", map[string]any{
		"positions":    ledger.Len(),
		"realized_pnl": ledger.RealizedPnL().String(),
	})
	return err
}

func (a *App) audit(ctx context.Context, deps *Dependencies, event string, detail map[string]any) {
	if deps.Audit == nil {
		return
	}
	if err := deps.Audit.Log(ctx, event, detail); err != nil {
		a.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
