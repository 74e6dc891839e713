package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePlacer counts calls and optionally blocks until release is closed.
type fakePlacer struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
	err     error
	result  domain.OrderResult
}

func (f *fakePlacer) PostOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return domain.OrderResult{}, ctx.Err()
		}
	}
	if f.err != nil {
		return domain.OrderResult{}, f.err
	}
	res := f.result
	if res.OrderID == "" {
		res.OrderID = "ord-1"
	}
	return res, nil
}

// manualTimers captures cooldown callbacks so tests can fire them.
type manualTimers struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
}

func (m *manualTimers) afterFunc(d time.Duration, f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays = append(m.delays, d)
	m.fns = append(m.fns, f)
}

func (m *manualTimers) fireAll() {
	m.mu.Lock()
	fns := m.fns
	m.fns = nil
	m.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

type recordingObserver struct {
	mu        sync.Mutex
	succeeded int
	failed    []domain.FailureKind
}

func (o *recordingObserver) OrderSucceeded(domain.OrderRequest, domain.OrderResult) {
	o.mu.Lock()
	o.succeeded++
	o.mu.Unlock()
}

func (o *recordingObserver) OrderFailed(_ domain.OrderRequest, err *domain.DispatchError) {
	o.mu.Lock()
	o.failed = append(o.failed, err.Kind)
	o.mu.Unlock()
}

type fakeLocks struct {
	err error
}

func (f fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	return func() {}, nil
}

func buyRequest() domain.OrderRequest {
	return domain.OrderRequest{
		Market:         "0xmarket",
		Side:           domain.SideBuy,
		Size:           decimal.RequireFromString("250"),
		Type:           domain.OrderTypeMarket,
		IdempotencyKey: "key-1",
	}
}

func dispatchKind(t *testing.T, err error) domain.FailureKind {
	t.Helper()
	var derr *domain.DispatchError
	require.ErrorAs(t, err, &derr)
	return derr.Kind
}

func TestDispatcher_SubmitSuccess(t *testing.T) {
	placer := &fakePlacer{}
	obs := &recordingObserver{}
	timers := &manualTimers{}
	d := NewDispatcher(placer, 5*time.Second, discardLogger(), WithObserver(obs))
	d.afterFunc = timers.afterFunc

	res, err := d.Submit(context.Background(), buyRequest())
	require.NoError(t, err)
	assert.Equal(t, "ord-1", res.OrderID)
	assert.Equal(t, 1, obs.succeeded)

	// Guard stays held until the cooldown fires.
	assert.True(t, d.InFlight("0xmarket|BUY"))
	require.Len(t, timers.delays, 1)
	assert.Equal(t, 5*time.Second, timers.delays[0])

	timers.fireAll()
	assert.False(t, d.InFlight("0xmarket|BUY"))
}

func TestDispatcher_ConcurrentSameKeyPlacesOnce(t *testing.T) {
	placer := &fakePlacer{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	timers := &manualTimers{}
	d := NewDispatcher(placer, 5*time.Second, discardLogger())
	d.afterFunc = timers.afterFunc

	firstErr := make(chan error, 1)
	go func() {
		_, err := d.Submit(context.Background(), buyRequest())
		firstErr <- err
	}()
	<-placer.entered

	// Second submission for the same market and side while the first is
	// still at the venue.
	_, err := d.Submit(context.Background(), buyRequest())
	assert.Equal(t, domain.FailureAlreadyInFlight, dispatchKind(t, err))

	close(placer.release)
	require.NoError(t, <-firstErr)
	assert.Equal(t, int32(1), placer.calls.Load())

	// Still guarded during the cooldown window.
	_, err = d.Submit(context.Background(), buyRequest())
	assert.Equal(t, domain.FailureAlreadyInFlight, dispatchKind(t, err))

	timers.fireAll()
	_, err = d.Submit(context.Background(), buyRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(2), placer.calls.Load())
}

func TestDispatcher_OppositeSideIsIndependent(t *testing.T) {
	placer := &fakePlacer{}
	d := NewDispatcher(placer, time.Minute, discardLogger())
	d.afterFunc = (&manualTimers{}).afterFunc

	_, err := d.Submit(context.Background(), buyRequest())
	require.NoError(t, err)

	sell := buyRequest()
	sell.Side = domain.SideSell
	_, err = d.Submit(context.Background(), sell)
	require.NoError(t, err)
	assert.Equal(t, int32(2), placer.calls.Load())
}

func TestDispatcher_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.FailureKind
	}{
		{"rejected", errors.Join(domain.ErrOrderRejected, errors.New("insufficient liquidity")), domain.FailureRejected},
		{"network", errors.Join(domain.ErrNetwork, errors.New("connection refused")), domain.FailureNetwork},
		{"unknown defaults to network", errors.New("boom"), domain.FailureNetwork},
		{"signing", domain.ErrSigningFailed, domain.FailureInvalidRequest},
		{"invalid", domain.ErrInvalidOrder, domain.FailureInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			placer := &fakePlacer{err: tt.err}
			obs := &recordingObserver{}
			d := NewDispatcher(placer, 0, discardLogger(), WithObserver(obs))

			_, err := d.Submit(context.Background(), buyRequest())
			assert.Equal(t, tt.want, dispatchKind(t, err))
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, []domain.FailureKind{tt.want}, obs.failed)
			// No retries.
			assert.Equal(t, int32(1), placer.calls.Load())
			// Zero cooldown releases immediately.
			assert.False(t, d.InFlight("0xmarket|BUY"))
		})
	}
}

func TestDispatcher_InvalidRequestSkipsPlacer(t *testing.T) {
	placer := &fakePlacer{}
	d := NewDispatcher(placer, 0, discardLogger())

	cases := map[string]func(*domain.OrderRequest){
		"missing market":   func(r *domain.OrderRequest) { r.Market = "" },
		"bad side":         func(r *domain.OrderRequest) { r.Side = "HOLD" },
		"zero size":        func(r *domain.OrderRequest) { r.Size = decimal.Zero },
		"no key":           func(r *domain.OrderRequest) { r.IdempotencyKey = "" },
		"limit sans price": func(r *domain.OrderRequest) { r.Type = domain.OrderTypeLimit },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := buyRequest()
			mutate(&req)
			_, err := d.Submit(context.Background(), req)
			assert.Equal(t, domain.FailureInvalidRequest, dispatchKind(t, err))
		})
	}
	assert.Equal(t, int32(0), placer.calls.Load())
}

func TestDispatcher_DistributedLockHeld(t *testing.T) {
	placer := &fakePlacer{}
	d := NewDispatcher(placer, 0, discardLogger(), WithLockManager(fakeLocks{err: domain.ErrLockHeld}))

	_, err := d.Submit(context.Background(), buyRequest())
	assert.Equal(t, domain.FailureAlreadyInFlight, dispatchKind(t, err))
	assert.Equal(t, int32(0), placer.calls.Load())
}

func TestDispatcher_DistributedLockErrorFallsBackToLocal(t *testing.T) {
	placer := &fakePlacer{}
	d := NewDispatcher(placer, 0, discardLogger(), WithLockManager(fakeLocks{err: errors.New("redis down")}))

	_, err := d.Submit(context.Background(), buyRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(1), placer.calls.Load())
}
