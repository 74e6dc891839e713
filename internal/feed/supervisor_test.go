package feed_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polymirror/internal/domain"
	"github.com/alanyoungcy/polymirror/internal/feed"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSupervisor_ExhaustsAfterMaxAttempts(t *testing.T) {
	s := feed.NewSupervisor(feed.SupervisorConfig{MaxAttempts: 3, Delay: time.Millisecond, Backoff: feed.BackoffFixed}, quietLogger())

	calls := 0
	err := s.Run(context.Background(), func(context.Context, func()) error {
		calls++
		return errors.New("dial refused")
	})

	require.ErrorIs(t, err, domain.ErrReconnectExhausted)
	assert.Equal(t, 3, calls)
	assert.Equal(t, feed.StateExhausted, s.State())
}

func TestSupervisor_ConnectedSessionResetsCount(t *testing.T) {
	s := feed.NewSupervisor(feed.SupervisorConfig{MaxAttempts: 2, Delay: time.Millisecond}, quietLogger())

	// fail, connect-then-drop, fail. Without the reset the second call
	// would already exhaust the budget.
	script := []bool{false, true, false}
	calls := 0
	err := s.Run(context.Background(), func(_ context.Context, connected func()) error {
		if script[calls] {
			connected()
		}
		calls++
		return errors.New("closed")
	})

	require.ErrorIs(t, err, domain.ErrReconnectExhausted)
	assert.Equal(t, 3, calls)
}

func TestSupervisor_Backoff(t *testing.T) {
	fixed := feed.NewSupervisor(feed.SupervisorConfig{MaxAttempts: 3, Delay: 10 * time.Second, Backoff: feed.BackoffFixed}, quietLogger())
	assert.Equal(t, 10*time.Second, fixed.Backoff(1))
	assert.Equal(t, 10*time.Second, fixed.Backoff(2))

	exp := feed.NewSupervisor(feed.SupervisorConfig{
		MaxAttempts: 6,
		Delay:       time.Second,
		MaxDelay:    5 * time.Second,
		Backoff:     feed.BackoffExponential,
	}, quietLogger())
	var waits []time.Duration
	for n := 1; n <= 5; n++ {
		waits = append(waits, exp.Backoff(n))
	}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second,
	}, waits)
}

func TestSupervisor_CancelDuringBackoff(t *testing.T) {
	s := feed.NewSupervisor(feed.SupervisorConfig{MaxAttempts: 10, Delay: time.Hour}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, func()) error {
			return errors.New("down")
		})
	}()

	require.Eventually(t, func() bool { return s.State() == feed.StateBackoff }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, feed.StateStopped, s.State())
}

func TestSupervisor_CancelStopsCleanly(t *testing.T) {
	s := feed.NewSupervisor(feed.SupervisorConfig{MaxAttempts: 10, Delay: time.Second}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())

	err := s.Run(ctx, func(ctx context.Context, connected func()) error {
		connected()
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	assert.Equal(t, feed.StateStopped, s.State())
}
