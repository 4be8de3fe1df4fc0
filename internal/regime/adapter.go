// Package regime classifies recent price action into a volatility
// regime and proposes spacing and size adjustments for a running grid.
package regime

import (
	"math"
	"sync"
	"time"

	"binance-grid-engine-go/internal/models"
)

const (
	RegimeLow      = "low"
	RegimeModerate = "moderate"
	RegimeHigh     = "high"
	RegimeExtreme  = "extreme"
)

const (
	DefaultAdaptInterval = 5 * time.Minute
	DefaultHysteresis    = 0.005 // 0.5 percentage points of spacing
	DefaultWindowSize    = 60

	// Spacing multipliers per regime; moderate interpolates.
	lowSpacingMult     = 0.9
	highSpacingMult    = 1.2
	extremeSpacingMult = 1.4

	lowSizeMult  = 1.1
	highSizeMult = 0.8

	secondsPerYear = 365 * 24 * 3600
	trendThreshold = 0.002
)

// Proposal is an accepted adaptation: the new spacing, the order size
// multiplier and the condition snapshot that produced them.
type Proposal struct {
	Spacing        float64
	SizeMultiplier float64
	Condition      models.MarketCondition
}

// RiskAdjuster is the capability a grid controller consumes. The
// production implementation is Adapter; NoopAdjuster disables
// adaptation without the controller knowing.
type RiskAdjuster interface {
	Observe(price float64)
	Propose(currentSpacing, baseSpacing, minSpacing, maxSpacing float64) (Proposal, bool)
}

// NoopAdjuster never proposes anything. Selected at construction when
// regime adaptation is disabled.
type NoopAdjuster struct{}

func (NoopAdjuster) Observe(float64) {}

func (NoopAdjuster) Propose(float64, float64, float64, float64) (Proposal, bool) {
	return Proposal{}, false
}

// Adapter accumulates price samples and, at a fixed cadence, proposes
// a spacing/size adjustment when the regime has moved enough to clear
// the hysteresis band. Safe for one writer (the grid monitor loop).
type Adapter struct {
	mu             sync.Mutex
	cfg            models.RegimeConfig
	sampleInterval time.Duration
	prices         []float64
	lastEval       time.Time

	now func() time.Time
}

func New(cfg models.RegimeConfig, sampleInterval time.Duration) *Adapter {
	if cfg.AdaptIntervalSec <= 0 {
		cfg.AdaptIntervalSec = int(DefaultAdaptInterval.Seconds())
	}
	if cfg.SpacingHysteresis <= 0 {
		cfg.SpacingHysteresis = DefaultHysteresis
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.LowVolSpacingMult <= 0 {
		cfg.LowVolSpacingMult = lowSpacingMult
	}
	if cfg.HighVolSpacingMult <= 0 {
		cfg.HighVolSpacingMult = highSpacingMult
	}
	if cfg.ExtremeVolSpacingMult <= 0 {
		cfg.ExtremeVolSpacingMult = extremeSpacingMult
	}
	if cfg.LowVolSizeMult <= 0 {
		cfg.LowVolSizeMult = lowSizeMult
	}
	if cfg.HighVolSizeMult <= 0 {
		cfg.HighVolSizeMult = highSizeMult
	}
	if cfg.LowVolThreshold <= 0 {
		cfg.LowVolThreshold = 0.30
	}
	if cfg.HighVolThreshold <= 0 {
		cfg.HighVolThreshold = 0.80
	}
	if cfg.ExtremeVolThreshold <= 0 {
		cfg.ExtremeVolThreshold = 1.50
	}
	if sampleInterval <= 0 {
		sampleInterval = time.Minute
	}
	return &Adapter{cfg: cfg, sampleInterval: sampleInterval, now: time.Now}
}

// Observe appends a price sample to the sliding window.
func (a *Adapter) Observe(price float64) {
	if price <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prices = append(a.prices, price)
	if len(a.prices) > a.cfg.WindowSize {
		a.prices = a.prices[len(a.prices)-a.cfg.WindowSize:]
	}
}

// Classify computes the current market condition from the window.
// Needs at least a handful of samples; returns ok=false otherwise.
func (a *Adapter) Classify() (models.MarketCondition, bool) {
	a.mu.Lock()
	prices := append([]float64(nil), a.prices...)
	a.mu.Unlock()
	if len(prices) < 5 {
		return models.MarketCondition{}, false
	}

	vol := annualizedVolatility(prices, a.sampleInterval)
	trendPct := (prices[len(prices)-1] - prices[0]) / prices[0]

	trend := models.TrendFlat
	if trendPct > trendThreshold {
		trend = models.TrendUp
	} else if trendPct < -trendThreshold {
		trend = models.TrendDown
	}

	regime := RegimeModerate
	switch {
	case vol >= a.cfg.ExtremeVolThreshold:
		regime = RegimeExtreme
	case vol >= a.cfg.HighVolThreshold:
		regime = RegimeHigh
	case vol < a.cfg.LowVolThreshold:
		regime = RegimeLow
	}

	// Heuristic 0..1 score: neutral 0.5, shifted by trend, damped by
	// volatility pressure.
	score := 0.5 + clamp(trendPct*10, -0.4, 0.4) - 0.1*math.Min(vol/a.cfg.ExtremeVolThreshold, 1)
	score = clamp(score, 0, 1)

	return models.MarketCondition{
		Score:      score,
		Volatility: vol,
		Trend:      trend,
		Regime:     regime,
	}, true
}

// Propose returns an adaptation when the cadence has elapsed, the
// window holds enough samples, and the resulting spacing differs from
// the current one by at least the hysteresis band. Classification
// itself runs on the cadence: a hysteresis-rejected evaluation still
// consumes the slot, so the window is only reassessed once per
// interval.
func (a *Adapter) Propose(currentSpacing, baseSpacing, minSpacing, maxSpacing float64) (Proposal, bool) {
	a.mu.Lock()
	interval := time.Duration(a.cfg.AdaptIntervalSec) * time.Second
	if !a.lastEval.IsZero() && a.now().Sub(a.lastEval) < interval {
		a.mu.Unlock()
		return Proposal{}, false
	}
	a.mu.Unlock()

	cond, ok := a.Classify()
	if !ok {
		return Proposal{}, false
	}
	a.mu.Lock()
	a.lastEval = a.now()
	a.mu.Unlock()

	spacing, sizeMult := a.adjust(baseSpacing, cond)
	spacing = clamp(spacing, minSpacing, maxSpacing)
	if math.Abs(spacing-currentSpacing) < a.cfg.SpacingHysteresis {
		return Proposal{}, false
	}
	return Proposal{Spacing: spacing, SizeMultiplier: sizeMult, Condition: cond}, true
}

func (a *Adapter) adjust(baseSpacing float64, cond models.MarketCondition) (float64, float64) {
	cfg := a.cfg
	switch cond.Regime {
	case RegimeExtreme:
		return baseSpacing * cfg.ExtremeVolSpacingMult, cfg.HighVolSizeMult
	case RegimeHigh:
		return baseSpacing * cfg.HighVolSpacingMult, cfg.HighVolSizeMult
	case RegimeLow:
		return baseSpacing * cfg.LowVolSpacingMult, cfg.LowVolSizeMult
	}
	// Moderate: interpolate between the low and high endpoints by where
	// volatility sits between the two thresholds.
	span := cfg.HighVolThreshold - cfg.LowVolThreshold
	frac := 0.5
	if span > 0 {
		frac = clamp((cond.Volatility-cfg.LowVolThreshold)/span, 0, 1)
	}
	spacingMult := cfg.LowVolSpacingMult + frac*(cfg.HighVolSpacingMult-cfg.LowVolSpacingMult)
	sizeMult := cfg.LowVolSizeMult + frac*(cfg.HighVolSizeMult-cfg.LowVolSizeMult)
	return baseSpacing * spacingMult, sizeMult
}

func annualizedVolatility(prices []float64, sampleInterval time.Duration) float64 {
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 {
			continue
		}
		returns = append(returns, prices[i]/prices[i-1]-1)
	}
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)

	samplesPerYear := secondsPerYear / sampleInterval.Seconds()
	return math.Sqrt(variance) * math.Sqrt(samplesPerYear)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
