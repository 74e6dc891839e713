// Package feed detects lead trader activity. A Poller and an optional
// Streamer run side by side and publish into one merged channel; losing the
// stream degrades the feed to polling only.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

// Producer publishes lead events into out until ctx is cancelled.
type Producer interface {
	Run(ctx context.Context, out chan<- domain.TradeEvent) error
}

// ActivityFeed merges the poller and the streamer. Events from one producer
// arrive in the order it sent them; there is no ordering across producers.
type ActivityFeed struct {
	poller   Producer
	streamer Producer
	events   chan domain.TradeEvent
	logger   *slog.Logger

	degraded   atomic.Bool
	onDegraded func(ctx context.Context, err error)
}

// NewActivityFeed creates a feed. streamer may be nil to run polling only.
func NewActivityFeed(poller, streamer Producer, bufferSize int, logger *slog.Logger) *ActivityFeed {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &ActivityFeed{
		poller:   poller,
		streamer: streamer,
		events:   make(chan domain.TradeEvent, bufferSize),
		logger:   logger.With(slog.String("component", "feed")),
	}
}

// OnDegraded registers a callback invoked once when the stream is exhausted.
func (f *ActivityFeed) OnDegraded(fn func(ctx context.Context, err error)) {
	f.onDegraded = fn
}

// Events is the merged event channel. It is closed when Run returns.
func (f *ActivityFeed) Events() <-chan domain.TradeEvent {
	return f.events
}

// Degraded reports whether the feed has fallen back to polling only.
func (f *ActivityFeed) Degraded() bool {
	return f.degraded.Load()
}

// Run starts every producer and blocks until ctx is cancelled or a producer
// fails with anything other than stream exhaustion.
func (f *ActivityFeed) Run(ctx context.Context) error {
	defer close(f.events)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return f.poller.Run(gctx, f.events)
	})
	if f.streamer != nil {
		g.Go(func() error {
			err := f.streamer.Run(gctx, f.events)
			if errors.Is(err, domain.ErrReconnectExhausted) {
				f.degraded.Store(true)
				f.logger.ErrorContext(gctx, "stream unavailable, continuing with polling only",
					slog.String("error", err.Error()),
				)
				if f.onDegraded != nil {
					f.onDegraded(gctx, err)
				}
				return nil
			}
			return err
		})
	} else {
		f.logger.InfoContext(ctx, "stream disabled, polling only")
	}
	return g.Wait()
}
