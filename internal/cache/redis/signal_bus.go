package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

// streamMaxLen caps the durable event log via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// SignalBus fans mirror events out to external consumers. Each payload is
// published on the Pub/Sub channel for live listeners and appended to a
// capped stream so late consumers can catch up.
type SignalBus struct {
	c *Client
}

// NewSignalBus creates a SignalBus on c.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{c: c}
}

// Publish sends payload on channel and appends it to the channel's stream in
// one round trip.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	_, err := sb.c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Publish(ctx, channel, payload)
		p.XAdd(ctx, &redis.XAddArgs{
			Stream: sb.streamKey(channel),
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]any{"payload": payload},
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

func (sb *SignalBus) streamKey(channel string) string {
	return sb.c.key("stream", channel)
}

var _ domain.SignalBus = (*SignalBus)(nil)
