package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

// Supervisor states reported by State.
const (
	StateIdle       = "idle"
	StateConnecting = "connecting"
	StateConnected  = "connected"
	StateBackoff    = "backoff"
	StateExhausted  = "exhausted"
	StateStopped    = "stopped"
)

// Backoff modes.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// SupervisorConfig bounds reconnection.
type SupervisorConfig struct {
	MaxAttempts int
	Delay       time.Duration
	MaxDelay    time.Duration
	Backoff     string
}

// Session runs one connection until it fails. It must call connected once
// the connection is usable.
type Session func(ctx context.Context, connected func()) error

// Supervisor keeps a session alive with bounded retries. Consecutive failed
// attempts are counted; a session that got connected resets the count.
type Supervisor struct {
	cfg    SupervisorConfig
	logger *slog.Logger
	state  atomic.Value
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(cfg SupervisorConfig, logger *slog.Logger) *Supervisor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	s := &Supervisor{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "reconnect")),
		sleep:  sleepCtx,
	}
	s.state.Store(StateIdle)
	return s
}

// State returns the current connection state.
func (s *Supervisor) State() string {
	return s.state.Load().(string)
}

// Run calls session until ctx is cancelled, in which case it returns nil, or
// until MaxAttempts consecutive attempts fail, in which case it returns an
// error wrapping domain.ErrReconnectExhausted and schedules nothing further.
func (s *Supervisor) Run(ctx context.Context, session Session) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			s.state.Store(StateStopped)
			return nil
		}

		s.state.Store(StateConnecting)
		var connected atomic.Bool
		err := session(ctx, func() {
			connected.Store(true)
			s.state.Store(StateConnected)
			s.logger.InfoContext(ctx, "stream connected")
		})
		if ctx.Err() != nil {
			s.state.Store(StateStopped)
			return nil
		}

		if connected.Load() {
			failures = 0
		}
		failures++
		if err == nil {
			err = errors.New("session ended by peer")
		}

		if failures >= s.cfg.MaxAttempts {
			s.state.Store(StateExhausted)
			s.logger.ErrorContext(ctx, "stream reconnect attempts exhausted",
				slog.Int("attempts", failures),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("feed: %w after %d attempts: %w", domain.ErrReconnectExhausted, failures, err)
		}

		delay := s.Backoff(failures)
		s.state.Store(StateBackoff)
		s.logger.WarnContext(ctx, "stream disconnected, reconnecting",
			slog.Int("attempt", failures),
			slog.Int("max_attempts", s.cfg.MaxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if err := s.sleep(ctx, delay); err != nil {
			s.state.Store(StateStopped)
			return nil
		}
	}
}

// Backoff returns the wait after the n-th consecutive failure.
func (s *Supervisor) Backoff(n int) time.Duration {
	if s.cfg.Backoff != BackoffExponential {
		return s.cfg.Delay
	}
	d := s.cfg.Delay
	for i := 1; i < n; i++ {
		d *= 2
		if s.cfg.MaxDelay > 0 && d >= s.cfg.MaxDelay {
			return s.cfg.MaxDelay
		}
	}
	if s.cfg.MaxDelay > 0 && d > s.cfg.MaxDelay {
		return s.cfg.MaxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
