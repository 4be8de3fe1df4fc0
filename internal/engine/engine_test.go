package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"binance-grid-engine-go/internal/exchange"
	"binance-grid-engine-go/internal/metrics"
	"binance-grid-engine-go/internal/models"
	"binance-grid-engine-go/internal/persistence"
	"binance-grid-engine-go/internal/rules"
)

func newTestEngine(t *testing.T) (*Engine, *exchange.Sim) {
	t.Helper()

	sim := exchange.NewSim()
	sim.RegisterSymbol("TESTUSDT", "TEST", "USDT", &models.SymbolRules{
		Symbol:            "TESTUSDT",
		TickSize:          0.01,
		StepSize:          0.001,
		MinNotional:       10,
		PricePrecision:    2,
		QuantityPrecision: 3,
	})
	sim.SetBalance("USDT", 50000)
	sim.SetPrice("TESTUSDT", 100)

	repo, err := persistence.NewBadgerRepository("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	sink := &captureSink{}
	e := New(testConfig(), sim, rules.NewCache(sim, time.Hour, 3),
		metrics.NewTracker(), sink, repo, zap.NewNop().Sugar())
	t.Cleanup(func() { e.Shutdown(context.Background()) })
	return e, sim
}

func TestEngineStartAndStatus(t *testing.T) {
	e, _ := newTestEngine(t)

	result, err := e.StartGrid(context.Background(), "c1", "TESTUSDT", 2000)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.GridID)

	status, err := e.GetGridStatus("c1", "TESTUSDT")
	require.NoError(t, err)
	assert.Equal(t, "c1", status.ClientID)
	assert.Equal(t, 100.0, status.CenterPrice)
	assert.Equal(t, 3, status.ActiveOrders)
}

func TestEngineRejectsDuplicateGrid(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.StartGrid(context.Background(), "c1", "TESTUSDT", 2000)
	require.NoError(t, err)

	_, err = e.StartGrid(context.Background(), "c1", "TESTUSDT", 2000)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestEngineValidatesInput(t *testing.T) {
	e, _ := newTestEngine(t)
	var cfgErr *ConfigurationError

	_, err := e.StartGrid(context.Background(), "", "TESTUSDT", 2000)
	require.ErrorAs(t, err, &cfgErr)

	_, err = e.StartGrid(context.Background(), "c1", "TESTUSDT", 0)
	require.ErrorAs(t, err, &cfgErr)
}

func TestEngineStopGrid(t *testing.T) {
	e, sim := newTestEngine(t)

	_, err := e.StartGrid(context.Background(), "c1", "TESTUSDT", 2000)
	require.NoError(t, err)

	result, err := e.StopGrid(context.Background(), "c1", "TESTUSDT")
	require.NoError(t, err)
	assert.Equal(t, 3, result.CancelledOrders)
	assert.Equal(t, 0, sim.OpenOrderCount("TESTUSDT"))

	_, err = e.GetGridStatus("c1", "TESTUSDT")
	assert.ErrorIs(t, err, ErrGridNotFound)

	// stopping again is a quiet no-op
	again, err := e.StopGrid(context.Background(), "c1", "TESTUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0, again.CancelledOrders)
}

// gatedCancelExchange blocks CancelOrder until released, so tests can
// hold a grid mid-teardown.
type gatedCancelExchange struct {
	*exchange.Sim
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedCancelExchange) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.Sim.CancelOrder(ctx, symbol, orderID)
}

func TestStopGridBlocksRestartUntilCancelsFinish(t *testing.T) {
	sim := exchange.NewSim()
	sim.RegisterSymbol("TESTUSDT", "TEST", "USDT", &models.SymbolRules{
		Symbol:            "TESTUSDT",
		TickSize:          0.01,
		StepSize:          0.001,
		MinNotional:       10,
		PricePrecision:    2,
		QuantityPrecision: 3,
	})
	sim.SetBalance("USDT", 50000)
	sim.SetPrice("TESTUSDT", 100)
	gated := &gatedCancelExchange{
		Sim:     sim,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}

	repo, err := persistence.NewBadgerRepository("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	e := New(testConfig(), gated, rules.NewCache(sim, time.Hour, 3),
		metrics.NewTracker(), &captureSink{}, repo, zap.NewNop().Sugar())

	_, err = e.StartGrid(context.Background(), "c1", "TESTUSDT", 2000)
	require.NoError(t, err)

	done := make(chan models.StopResult, 1)
	go func() {
		result, serr := e.StopGrid(context.Background(), "c1", "TESTUSDT")
		assert.NoError(t, serr)
		done <- result
	}()
	<-gated.entered

	// Cancels are in flight: a restart for the same key must be refused.
	_, err = e.StartGrid(context.Background(), "c1", "TESTUSDT", 2000)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	close(gated.release)
	result := <-done
	assert.Equal(t, 3, result.CancelledOrders)

	_, err = e.StartGrid(context.Background(), "c1", "TESTUSDT", 2000)
	require.NoError(t, err)
	t.Cleanup(func() { e.Shutdown(context.Background()) })
}

func TestEngineMultipleClientsSameSymbol(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.StartGrid(context.Background(), "c1", "TESTUSDT", 2000)
	require.NoError(t, err)
	_, err = e.StartGrid(context.Background(), "c2", "TESTUSDT", 3000)
	require.NoError(t, err)

	statuses := e.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "c1", statuses[0].ClientID)
	assert.Equal(t, "c2", statuses[1].ClientID)
}
