package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

// OrderPlacer is the interface through which the dispatcher submits orders
// to the exchange. The live CLOB client and the paper placer implement it.
type OrderPlacer interface {
	PostOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
}

// DispatchObserver is told about every submission except those turned away
// by the in-flight guard.
type DispatchObserver interface {
	OrderSucceeded(req domain.OrderRequest, res domain.OrderResult)
	OrderFailed(req domain.OrderRequest, err *domain.DispatchError)
}

// Dispatcher submits mirror orders with an in-flight guard keyed by
// market|side. A key is registered before the placer is called and released
// only after a cooldown following completion, so the same signal arriving
// from both feed sources cannot produce two orders. Failed orders are never
// retried. It is safe for concurrent use.
type Dispatcher struct {
	placer   OrderPlacer
	locks    domain.LockManager
	observer DispatchObserver
	cooldown time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}

	afterFunc func(time.Duration, func())
}

// DispatcherOption configures optional Dispatcher collaborators.
type DispatcherOption func(*Dispatcher)

// WithLockManager adds a distributed guard on top of the in-process one so
// that two bot instances following the same lead do not double-submit.
func WithLockManager(lm domain.LockManager) DispatcherOption {
	return func(d *Dispatcher) { d.locks = lm }
}

// WithObserver reports outcomes to o.
func WithObserver(o DispatchObserver) DispatcherOption {
	return func(d *Dispatcher) { d.observer = o }
}

// NewDispatcher creates a Dispatcher that places orders through placer.
func NewDispatcher(placer OrderPlacer, cooldown time.Duration, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		placer:   placer,
		cooldown: cooldown,
		logger:   logger.With(slog.String("component", "dispatcher")),
		inFlight: make(map[string]struct{}),
		afterFunc: func(delay time.Duration, f func()) {
			time.AfterFunc(delay, f)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit validates req, claims its guard key and places the order. Every
// failure is a *domain.DispatchError.
func (d *Dispatcher) Submit(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if err := validateRequest(req); err != nil {
		if d.observer != nil {
			d.observer.OrderFailed(req, err)
		}
		return domain.OrderResult{}, err
	}

	key := req.GuardKey()
	if !d.claim(key) {
		return domain.OrderResult{}, &domain.DispatchError{
			Kind:   domain.FailureAlreadyInFlight,
			Detail: key,
		}
	}
	defer d.releaseAfterCooldown(key)

	if d.locks != nil {
		// The distributed lock is left to expire on its own after the
		// cooldown, matching the local release.
		if _, err := d.locks.Acquire(ctx, "mirror:inflight:"+key, d.cooldown); err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return domain.OrderResult{}, &domain.DispatchError{
					Kind:   domain.FailureAlreadyInFlight,
					Detail: key + " (held by another instance)",
				}
			}
			d.logger.WarnContext(ctx, "distributed lock unavailable, continuing with local guard",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	res, err := d.placer.PostOrder(ctx, req)
	if err != nil {
		derr := classify(err)
		d.logger.WarnContext(ctx, "order failed",
			slog.String("market", req.Market),
			slog.String("side", string(req.Side)),
			slog.String("size", req.Size.String()),
			slog.String("kind", string(derr.Kind)),
			slog.String("error", err.Error()),
		)
		if d.observer != nil {
			d.observer.OrderFailed(req, derr)
		}
		return domain.OrderResult{}, derr
	}

	d.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", res.OrderID),
		slog.String("market", req.Market),
		slog.String("side", string(req.Side)),
		slog.String("size", req.Size.String()),
		slog.String("type", string(req.Type)),
	)
	if d.observer != nil {
		d.observer.OrderSucceeded(req, res)
	}
	return res, nil
}

// InFlight reports whether key is currently guarded.
func (d *Dispatcher) InFlight(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inFlight[key]
	return ok
}

func (d *Dispatcher) claim(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inFlight[key]; ok {
		return false
	}
	d.inFlight[key] = struct{}{}
	return true
}

func (d *Dispatcher) release(key string) {
	d.mu.Lock()
	delete(d.inFlight, key)
	d.mu.Unlock()
}

func (d *Dispatcher) releaseAfterCooldown(key string) {
	if d.cooldown <= 0 {
		d.release(key)
		return
	}
	d.afterFunc(d.cooldown, func() { d.release(key) })
}

// validateRequest rejects requests with missing fields before any network
// call is made.
func validateRequest(req domain.OrderRequest) *domain.DispatchError {
	invalid := func(detail string) *domain.DispatchError {
		return &domain.DispatchError{Kind: domain.FailureInvalidRequest, Detail: detail, Err: domain.ErrInvalidOrder}
	}
	switch {
	case req.Market == "":
		return invalid("missing market")
	case !req.Side.Valid():
		return invalid(fmt.Sprintf("invalid side %q", req.Side))
	case !req.Size.IsPositive():
		return invalid("size must be positive")
	case req.IdempotencyKey == "":
		return invalid("missing idempotency key")
	}
	switch req.Type {
	case domain.OrderTypeMarket:
	case domain.OrderTypeLimit:
		if !req.Price.IsPositive() {
			return invalid("limit order without price")
		}
	default:
		return invalid(fmt.Sprintf("unknown order type %q", req.Type))
	}
	return nil
}

// classify maps placer errors onto failure kinds. Anything not explicitly
// rejected by the venue or by local validation is treated as a network
// failure.
func classify(err error) *domain.DispatchError {
	var derr *domain.DispatchError
	if errors.As(err, &derr) {
		return derr
	}
	switch {
	case errors.Is(err, domain.ErrOrderRejected):
		return &domain.DispatchError{Kind: domain.FailureRejected, Err: err}
	case errors.Is(err, domain.ErrInvalidOrder), errors.Is(err, domain.ErrSigningFailed):
		return &domain.DispatchError{Kind: domain.FailureInvalidRequest, Err: err}
	default:
		return &domain.DispatchError{Kind: domain.FailureNetwork, Err: err}
	}
}
