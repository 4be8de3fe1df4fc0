package allocator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-grid-engine-go/internal/models"
)

func TestComputeOrderSizeBase(t *testing.T) {
	size, err := ComputeOrderSize(Sizing{TotalCapital: 1000, LevelCount: 5})
	require.NoError(t, err)
	assert.Equal(t, 100.0, size)
}

func TestComputeOrderSizeMultipliers(t *testing.T) {
	size, err := ComputeOrderSize(Sizing{
		TotalCapital: 1000,
		LevelCount:   5,
		Compound:     1.5,
		Volatility:   0.9,
		Timing:       1.2,
	})
	require.NoError(t, err)
	assert.InDelta(t, 100*1.5*0.9*1.2, size, 1e-9)
}

func TestComputeOrderSizeKellyClampsDownNeverUp(t *testing.T) {
	// Kelly cap 0.05*1000/5 = 10, well below the 100 base: clamps down.
	size, err := ComputeOrderSize(Sizing{
		TotalCapital:  1000,
		LevelCount:    5,
		KellyFraction: 0.05,
	})
	require.NoError(t, err)
	assert.Equal(t, 10.0, size)

	// Generous Kelly never inflates the size above the multiplier product.
	size, err = ComputeOrderSize(Sizing{
		TotalCapital:  1000,
		LevelCount:    5,
		KellyFraction: 0.25,
	})
	require.NoError(t, err)
	assert.Equal(t, 50.0, size) // 0.25*1000/5, still the min with the hard cap 250
}

func TestComputeOrderSizeHardCap(t *testing.T) {
	// With one level the raw kelly cap (0.25*1000/1=250) equals the hard
	// cap 0.25*capital; size 500 must clamp to 250.
	size, err := ComputeOrderSize(Sizing{
		TotalCapital:  1000,
		LevelCount:    1,
		KellyFraction: 0.25,
	})
	require.NoError(t, err)
	assert.Equal(t, 250.0, size)
}

func TestComputeOrderSizeInvalid(t *testing.T) {
	_, err := ComputeOrderSize(Sizing{TotalCapital: 0, LevelCount: 5})
	require.ErrorIs(t, err, ErrInvalidAllocation)
	_, err = ComputeOrderSize(Sizing{TotalCapital: 100, LevelCount: 0})
	require.ErrorIs(t, err, ErrInvalidAllocation)
}

func TestCompoundTrackerRatchet(t *testing.T) {
	c := NewCompoundTracker(models.CompoundConfig{})
	assert.Equal(t, 1.0, c.Multiplier())

	// +$50 profit at $25/step and +0.1/step -> 1.2
	assert.InDelta(t, 1.2, c.RecordProfit(50), 1e-9)

	// a loss lowers tracked profit but not the published multiplier
	assert.InDelta(t, 1.2, c.RecordProfit(-40), 1e-9)
	assert.InDelta(t, 10.0, c.Profit(), 1e-9)

	c.Reset()
	assert.Equal(t, 1.0, c.Multiplier())
	assert.Equal(t, 0.0, c.Profit())
}

func TestCompoundTrackerCap(t *testing.T) {
	c := NewCompoundTracker(models.CompoundConfig{})
	assert.Equal(t, 3.0, c.RecordProfit(10000))
}

func TestKellyFractionNeedsHistory(t *testing.T) {
	c := NewCompoundTracker(models.CompoundConfig{})
	m := &models.PerformanceMetrics{Wins: 5, Losses: 5, GrossWin: 50, GrossLoss: 25}
	assert.Equal(t, 0.0, c.KellyFraction(m)) // below 20 closed trades
}

func TestKellyFractionHalfKellyCapped(t *testing.T) {
	c := NewCompoundTracker(models.CompoundConfig{})
	// 60% win rate, avg win 2x avg loss: kelly = 0.6 - 0.4/2 = 0.4,
	// half-kelly 0.2, below the 0.25 cap.
	m := &models.PerformanceMetrics{
		Wins: 60, Losses: 40,
		GrossWin: 120, GrossLoss: 40,
	}
	assert.InDelta(t, 0.2, c.KellyFraction(m), 1e-9)
}

func TestKellyFractionNonPositiveEdge(t *testing.T) {
	c := NewCompoundTracker(models.CompoundConfig{})
	m := &models.PerformanceMetrics{
		Wins: 10, Losses: 30,
		GrossWin: 10, GrossLoss: 30,
	}
	assert.Equal(t, 0.0, c.KellyFraction(m))
}

func TestIntensityAtSessions(t *testing.T) {
	// Monday 2026-01-05
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1.2, IntensityAt(day.Add(3*time.Hour)))   // Asia
	assert.Equal(t, 1.0, IntensityAt(day.Add(10*time.Hour)))  // London
	assert.Equal(t, 1.5, IntensityAt(day.Add(14*time.Hour)))  // overlap
	assert.Equal(t, 1.3, IntensityAt(day.Add(18*time.Hour)))  // New York
	assert.Equal(t, 0.7, IntensityAt(day.Add(22*time.Hour)))  // quiet
}

func TestIntensityAtWeekend(t *testing.T) {
	// Saturday 2026-01-10, 14:00 UTC: no overlap boost, NY * weekend damping
	sat := time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC)
	assert.InDelta(t, 1.3*0.6, IntensityAt(sat), 1e-9)
}
