package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"binance-grid-engine-go/internal/models"
)

func TestTrackerFills(t *testing.T) {
	tr := NewTracker()
	tr.RecordBuyFill("c1", "BTCUSDT")
	tr.RecordSellFill("c1", "BTCUSDT", 5.0)
	tr.RecordSellFill("c1", "BTCUSDT", -2.0)

	m := tr.Snapshot("c1", "BTCUSDT")
	assert.Equal(t, int64(3), m.Trades)
	assert.Equal(t, int64(1), m.BuyFills)
	assert.Equal(t, int64(2), m.SellFills)
	assert.Equal(t, int64(1), m.Wins)
	assert.Equal(t, int64(1), m.Losses)
	assert.InDelta(t, 3.0, m.RealizedProfit, 1e-9)
	assert.InDelta(t, 5.0, m.GrossWin, 1e-9)
	assert.InDelta(t, 2.0, m.GrossLoss, 1e-9)
	assert.InDelta(t, 0.5, m.WinRate(), 1e-9)
}

func TestTrackerGridsIsolated(t *testing.T) {
	tr := NewTracker()
	tr.RecordBuyFill("c1", "BTCUSDT")
	tr.RecordReset("c2", "ETHUSDT")

	assert.Equal(t, int64(1), tr.Snapshot("c1", "BTCUSDT").BuyFills)
	assert.Equal(t, int64(0), tr.Snapshot("c2", "ETHUSDT").BuyFills)
	assert.Equal(t, int64(1), tr.Snapshot("c2", "ETHUSDT").Resets)
}

func TestTrackerSnapshotIsCopy(t *testing.T) {
	tr := NewTracker()
	m := tr.Snapshot("c1", "BTCUSDT")
	m.Trades = 99
	assert.Equal(t, int64(0), tr.Snapshot("c1", "BTCUSDT").Trades)
}

func TestTrackerRestore(t *testing.T) {
	tr := NewTracker()
	tr.Restore("c1", "BTCUSDT", models.PerformanceMetrics{Trades: 7, RealizedProfit: 12.5})
	tr.RecordBuyFill("c1", "BTCUSDT")
	m := tr.Snapshot("c1", "BTCUSDT")
	assert.Equal(t, int64(8), m.Trades)
	assert.InDelta(t, 12.5, m.RealizedProfit, 1e-9)
}
