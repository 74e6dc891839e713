// Package app owns the mirror bot's lifecycle: it wires the optional sinks,
// picks the live or paper venue and runs the pipeline until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polymirror/internal/config"
)

// App is the root application object. Cleanup functions run in reverse
// registration order on Close.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Run wires dependencies, selects the venue for the configured mode and
// blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	redacted := config.RedactedConfig(a.cfg)
	a.logger.InfoContext(ctx, "starting polymirror",
		slog.String("mode", a.cfg.Mode),
		slog.String("lead", a.cfg.Lead.Address),
		slog.String("wallet", a.cfg.Wallet.Address),
		slog.Any("config", redacted),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	var v *venue
	if a.cfg.IsLive() {
		if v, err = a.liveVenue(); err != nil {
			return fmt.Errorf("app: %w", err)
		}
	} else {
		a.logger.InfoContext(ctx, "paper mode: orders are simulated, reconciliation disabled")
		v = a.paperVenue()
	}
	return a.runMirror(ctx, deps, v)
}

// Close tears down resources. Subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
