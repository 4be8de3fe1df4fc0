package reporter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"binance-grid-engine-go/internal/models"
)

func TestRenderStatuses(t *testing.T) {
	var buf bytes.Buffer
	RenderStatuses(&buf, []models.GridStatus{
		{
			ClientID:           "c1",
			Symbol:             "BTCUSDT",
			State:              models.StateActive,
			CenterPrice:        100,
			CurrentPrice:       101.5,
			GridSpacing:        0.025,
			ActiveOrders:       8,
			TotalLevels:        10,
			VolatilityRegime:   "moderate",
			CompoundMultiplier: 1.2,
		},
	})
	out := buf.String()
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "ACTIVE")
	assert.Contains(t, out, "2.50%")
	assert.Contains(t, out, "8/10")
}

func TestRenderMetrics(t *testing.T) {
	var buf bytes.Buffer
	RenderMetrics(&buf, map[string]models.PerformanceMetrics{
		"c1/BTCUSDT": {Trades: 10, Wins: 6, Losses: 4, RealizedProfit: 42.5},
	})
	out := buf.String()
	assert.Contains(t, out, "c1/BTCUSDT")
	assert.Contains(t, out, "60.0%")
	assert.Contains(t, out, "42.50")
}
