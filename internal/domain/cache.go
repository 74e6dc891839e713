package domain

import (
	"context"
	"time"
)

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus publishes mirror events for external consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}
