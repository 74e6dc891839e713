package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polymirror/internal/domain"
	"github.com/alanyoungcy/polymirror/internal/platform/polymarket"
)

// Streamer turns the user channel into lead trade events. It keeps only
// frames whose actor is the lead, and relies on its Supervisor for
// reconnection.
type Streamer struct {
	stream     *polymarket.UserStream
	supervisor *Supervisor
	lead       string
	logger     *slog.Logger
	now        func() time.Time
}

// NewStreamer creates a Streamer for lead.
func NewStreamer(stream *polymarket.UserStream, supervisor *Supervisor, lead string, logger *slog.Logger) *Streamer {
	return &Streamer{
		stream:     stream,
		supervisor: supervisor,
		lead:       lead,
		logger:     logger.With(slog.String("component", "streamer")),
		now:        time.Now,
	}
}

// State reports the connection state.
func (s *Streamer) State() string {
	return s.supervisor.State()
}

// Run streams until ctx is cancelled (nil) or reconnection is exhausted
// (domain.ErrReconnectExhausted).
func (s *Streamer) Run(ctx context.Context, out chan<- domain.TradeEvent) error {
	s.logger.InfoContext(ctx, "streamer started", slog.String("url", s.stream.URL()))
	return s.supervisor.Run(ctx, func(ctx context.Context, connected func()) error {
		return s.stream.Session(ctx, connected, func(raw []byte) {
			s.handleFrame(ctx, raw, out)
		})
	})
}

func (s *Streamer) handleFrame(ctx context.Context, raw []byte, out chan<- domain.TradeEvent) {
	frame, ok := polymarket.ParseStreamFrame(raw)
	if !ok {
		s.logger.DebugContext(ctx, "non-json frame ignored", slog.Int("bytes", len(raw)))
		return
	}
	if !frame.IsFrom(s.lead) {
		return
	}
	ev, err := frame.ToTradeEvent(s.now())
	if err != nil {
		s.logger.DebugContext(ctx, "malformed frame dropped", slog.String("error", err.Error()))
		return
	}
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
