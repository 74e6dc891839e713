package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func num(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memBus struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.messages == nil {
		b.messages = make(map[string][][]byte)
	}
	b.messages[channel] = append(b.messages[channel], payload)
	return nil
}

type memJournal struct {
	mu   sync.Mutex
	rows []domain.MirrorOutcome
}

func (j *memJournal) Record(_ context.Context, o domain.MirrorOutcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rows = append(j.rows, o)
	return nil
}

type memBlob struct {
	paths  []string
	bodies [][]byte
}

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.paths = append(m.paths, path)
	m.bodies = append(m.bodies, b)
	return nil
}

type fixedBlocks uint64

func (f fixedBlocks) BlockNumber(context.Context) (uint64, error) { return uint64(f), nil }

type failingJournal struct{}

func (failingJournal) Record(context.Context, domain.MirrorOutcome) error {
	return errors.New("db down")
}

func TestStatsCollector_Counters(t *testing.T) {
	c := NewStatsCollector(time.Minute, StatsSinks{}, func() string { return "connected" }, testLogger())

	c.Record(domain.MirrorOutcome{Kind: domain.OutcomeDetected})
	c.Record(domain.MirrorOutcome{Kind: domain.OutcomeDetected})
	c.Record(domain.MirrorOutcome{Kind: domain.OutcomeDuplicate})
	c.Record(domain.MirrorOutcome{Kind: domain.OutcomeSkipped})
	c.Record(domain.MirrorOutcome{Kind: domain.OutcomeInFlight})
	c.Record(domain.MirrorOutcome{Kind: domain.OutcomeOpened})
	c.Record(domain.MirrorOutcome{Kind: domain.OutcomeOpened})
	c.Record(domain.MirrorOutcome{Kind: domain.OutcomeClosed, PnL: num("3.75")})
	c.Record(domain.MirrorOutcome{Kind: domain.OutcomeReconcileRemove})
	// Two opens and one close succeeded, one order failed.
	c.OrderSucceeded(domain.OrderRequest{}, domain.OrderResult{})
	c.OrderSucceeded(domain.OrderRequest{}, domain.OrderResult{})
	c.OrderSucceeded(domain.OrderRequest{}, domain.OrderResult{})
	c.OrderFailed(domain.OrderRequest{}, &domain.DispatchError{Kind: domain.FailureNetwork})

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.Detected)
	assert.Equal(t, int64(1), snap.Duplicates)
	assert.Equal(t, int64(1), snap.Skipped)
	assert.Equal(t, int64(1), snap.AlreadyInFlight)
	assert.Equal(t, int64(1), snap.PositionsClosed)
	assert.Equal(t, int64(1), snap.ReconcileRemoved)
	assert.Equal(t, int64(2), snap.TradesCopied)
	assert.Equal(t, int64(4), snap.OrdersAttempted)
	assert.Equal(t, int64(3), snap.SuccessfulTrades)
	assert.Equal(t, int64(1), snap.FailedTrades)
	assert.InDelta(t, 75.0, snap.SuccessRate(), 1e-9)
	assert.True(t, num("3.75").Equal(snap.RealizedPnL))
	assert.NotNil(t, snap.LastTradeTime)
	assert.Equal(t, "connected", snap.StreamState)
}

func TestStatsCollector_ReportExportsAndPublishes(t *testing.T) {
	bus := &memBus{}
	blob := &memBlob{}
	c := NewStatsCollector(time.Minute, StatsSinks{
		Bus:          bus,
		BusChannel:   "polymirror:events",
		Blob:         blob,
		ExportPrefix: "stats",
		Blocks:       fixedBlocks(62500000),
	}, nil, testLogger())
	c.now = func() time.Time { return t0 }

	snap := c.Report(context.Background())
	assert.Equal(t, uint64(62500000), snap.PolygonBlock)

	require.Len(t, blob.paths, 1)
	assert.Equal(t, "stats/2026/03/01/120000.json", blob.paths[0])
	var exported domain.StatsSnapshot
	require.NoError(t, json.Unmarshal(blob.bodies[0], &exported))
	assert.Equal(t, uint64(62500000), exported.PolygonBlock)

	assert.Len(t, bus.messages["polymirror:events:stats"], 1)
}

func TestStatsCollector_RunDeliversNotableOutcomes(t *testing.T) {
	bus := &memBus{}
	journal := &memJournal{}
	c := NewStatsCollector(time.Hour, StatsSinks{
		Bus:        bus,
		BusChannel: "polymirror:events",
		Journal:    journal,
	}, nil, testLogger())

	c.Record(domain.MirrorOutcome{Kind: domain.OutcomeDetected, Identity: "a"})
	c.Record(domain.MirrorOutcome{Kind: domain.OutcomeOpened, Identity: "a", OrderID: "ord-1"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		journal.mu.Lock()
		defer journal.mu.Unlock()
		return len(journal.rows) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, domain.OutcomeOpened, journal.rows[0].Kind)
	bus.mu.Lock()
	defer bus.mu.Unlock()
	require.Len(t, bus.messages["polymirror:events"], 1)
	var o domain.MirrorOutcome
	require.NoError(t, json.Unmarshal(bus.messages["polymirror:events"][0], &o))
	assert.Equal(t, "ord-1", o.OrderID)
}

func TestStatsCollector_SinkErrorsAreSwallowed(t *testing.T) {
	c := NewStatsCollector(time.Hour, StatsSinks{Journal: failingJournal{}}, nil, testLogger())
	assert.NotPanics(t, func() {
		c.deliver(context.Background(), domain.MirrorOutcome{Kind: domain.OutcomeFailed})
	})
}
