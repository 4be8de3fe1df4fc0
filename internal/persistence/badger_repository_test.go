package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-grid-engine-go/internal/models"
)

func newTestRepo(t *testing.T) *BadgerRepository {
	t.Helper()
	repo, err := NewBadgerRepository("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestGridRoundTrip(t *testing.T) {
	repo := newTestRepo(t)

	grid := &models.GridConfig{
		ID:          "g-1",
		ClientID:    "c1",
		Symbol:      "BTCUSDT",
		CenterPrice: 100,
		GridSpacing: 0.025,
		Levels: []models.GridLevel{
			{Index: -1, Side: models.Buy, TargetPrice: 97.25, Quantity: 2.1},
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.SaveGrid(grid))

	loaded, err := repo.LoadGrid("c1", "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, grid.ID, loaded.ID)
	assert.Equal(t, grid.CenterPrice, loaded.CenterPrice)
	require.Len(t, loaded.Levels, 1)
	assert.Equal(t, -1, loaded.Levels[0].Index)
}

func TestLoadMissingGridReturnsNilNil(t *testing.T) {
	repo := newTestRepo(t)
	grid, err := repo.LoadGrid("nobody", "NOPEUSDT")
	require.NoError(t, err)
	assert.Nil(t, grid)
}

func TestDeleteGrid(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.SaveGrid(&models.GridConfig{ClientID: "c1", Symbol: "BTCUSDT"}))
	require.NoError(t, repo.DeleteGrid("c1", "BTCUSDT"))

	grid, err := repo.LoadGrid("c1", "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, grid)

	// deleting again is fine
	require.NoError(t, repo.DeleteGrid("c1", "BTCUSDT"))
}

func TestMetricsRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	m := &models.PerformanceMetrics{Trades: 12, RealizedProfit: 34.5}
	require.NoError(t, repo.SaveMetrics("c1", "BTCUSDT", m))

	loaded, err := repo.LoadMetrics("c1", "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, int64(12), loaded.Trades)
	assert.InDelta(t, 34.5, loaded.RealizedProfit, 1e-9)
}

func TestTradeLogOrderedPerGrid(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.AppendTrade(&models.TradeRecord{
			Event:     models.EventOrderFilled,
			ClientID:  "c1",
			Symbol:    "BTCUSDT",
			Price:     100 + float64(i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, repo.AppendTrade(&models.TradeRecord{
		Event: models.EventGridReset, ClientID: "c2", Symbol: "BTCUSDT", Timestamp: base,
	}))

	trades, err := repo.TradesFor("c1", "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, 100.0, trades[0].Price)
	assert.Equal(t, 102.0, trades[2].Price)
}
