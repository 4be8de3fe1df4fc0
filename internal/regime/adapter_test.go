package regime

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-grid-engine-go/internal/models"
)

func newTestAdapter() (*Adapter, *time.Time) {
	a := New(models.RegimeConfig{}, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	return a, &now
}

func feedFlat(a *Adapter, base float64, n int) {
	for i := 0; i < n; i++ {
		a.Observe(base)
	}
}

func feedChoppy(a *Adapter, base float64, swing float64, n int) {
	for i := 0; i < n; i++ {
		p := base * (1 + swing)
		if i%2 == 0 {
			p = base * (1 - swing)
		}
		a.Observe(p)
	}
}

func TestClassifyNeedsSamples(t *testing.T) {
	a, _ := newTestAdapter()
	a.Observe(100)
	_, ok := a.Classify()
	assert.False(t, ok)
}

func TestClassifyLowVolatility(t *testing.T) {
	a, _ := newTestAdapter()
	feedFlat(a, 100, 30)
	cond, ok := a.Classify()
	require.True(t, ok)
	assert.Equal(t, RegimeLow, cond.Regime)
	assert.Equal(t, models.TrendFlat, cond.Trend)
	assert.Equal(t, 0.0, cond.Volatility)
}

func TestClassifyExtremeVolatility(t *testing.T) {
	a, _ := newTestAdapter()
	// +-2% swings every minute annualize far beyond the extreme threshold
	feedChoppy(a, 100, 0.02, 30)
	cond, ok := a.Classify()
	require.True(t, ok)
	assert.Equal(t, RegimeExtreme, cond.Regime)
	assert.Greater(t, cond.Volatility, 1.5)
}

func TestClassifyTrend(t *testing.T) {
	a, _ := newTestAdapter()
	for i := 0; i < 30; i++ {
		a.Observe(100 + float64(i)*0.05)
	}
	cond, ok := a.Classify()
	require.True(t, ok)
	assert.Equal(t, models.TrendUp, cond.Trend)
	assert.Greater(t, cond.Score, 0.5)
}

func TestProposeWidensSpacingOnHighVolatility(t *testing.T) {
	a, _ := newTestAdapter()
	feedChoppy(a, 100, 0.02, 30)
	prop, ok := a.Propose(0.025, 0.025, 0.02, 0.08)
	require.True(t, ok)
	assert.InDelta(t, 0.025*1.4, prop.Spacing, 1e-9)
	assert.Equal(t, 0.8, prop.SizeMultiplier)
	assert.Equal(t, RegimeExtreme, prop.Condition.Regime)
}

func TestProposeHysteresisBlocksSmallMoves(t *testing.T) {
	a, _ := newTestAdapter()
	feedFlat(a, 100, 30)
	// low regime: 0.025*0.9 = 0.0225, a 0.25pp move, under the 0.5pp band
	_, ok := a.Propose(0.025, 0.025, 0.02, 0.08)
	assert.False(t, ok)
}

func TestProposeCadenceGating(t *testing.T) {
	a, now := newTestAdapter()
	feedChoppy(a, 100, 0.02, 30)
	_, ok := a.Propose(0.025, 0.025, 0.02, 0.08)
	require.True(t, ok)

	// second call inside the 5 minute window is suppressed
	*now = now.Add(time.Minute)
	_, ok = a.Propose(0.025, 0.025, 0.02, 0.08)
	assert.False(t, ok)

	*now = now.Add(5 * time.Minute)
	_, ok = a.Propose(0.025, 0.025, 0.02, 0.08)
	assert.True(t, ok)
}

func TestProposeEvaluatesOnCadenceEvenWhenRejected(t *testing.T) {
	a, now := newTestAdapter()
	feedFlat(a, 100, 30)
	// low regime proposes 0.0225, a move the hysteresis band rejects,
	// which still consumes this interval's evaluation
	_, ok := a.Propose(0.025, 0.025, 0.02, 0.08)
	require.False(t, ok)

	// the window turns extreme, but the next evaluation is not due yet
	feedChoppy(a, 100, 0.02, 30)
	*now = now.Add(time.Minute)
	_, ok = a.Propose(0.025, 0.025, 0.02, 0.08)
	assert.False(t, ok)

	*now = now.Add(5 * time.Minute)
	prop, ok := a.Propose(0.025, 0.025, 0.02, 0.08)
	require.True(t, ok)
	assert.Equal(t, RegimeExtreme, prop.Condition.Regime)
}

func TestProposeClampsToBounds(t *testing.T) {
	a, _ := newTestAdapter()
	feedChoppy(a, 100, 0.02, 30)
	prop, ok := a.Propose(0.025, 0.06, 0.02, 0.08)
	require.True(t, ok)
	assert.Equal(t, 0.08, prop.Spacing) // 0.06*1.4=0.084 clamped
}

func TestNoopAdjusterNeverProposes(t *testing.T) {
	var adj RiskAdjuster = NoopAdjuster{}
	adj.Observe(100)
	_, ok := adj.Propose(0.025, 0.025, 0.02, 0.08)
	assert.False(t, ok)
}

func TestAnnualizedVolatilityScaling(t *testing.T) {
	prices := []float64{100, 101, 100, 101, 100, 101}
	hourly := annualizedVolatility(prices, time.Hour)
	minutely := annualizedVolatility(prices, time.Minute)
	assert.InDelta(t, math.Sqrt(60), minutely/hourly, 1e-9)
}
