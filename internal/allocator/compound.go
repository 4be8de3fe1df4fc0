package allocator

import (
	"math"
	"sync"

	"binance-grid-engine-go/internal/models"
)

const (
	DefaultProfitStep       = 25.0
	DefaultIncrement        = 0.1
	DefaultCompoundCap      = 3.0
	DefaultCompoundFloor    = 0.5
	DefaultKellyMinTrades   = 20
	DefaultKellySafety      = 0.5
	DefaultKellyMaxFraction = 0.25
)

// CompoundTracker converts accumulated realized profit into an order
// size multiplier. Every ProfitStep of profit adds Increment to the
// multiplier, clamped to [Floor, Cap]. Within a session the multiplier
// never decreases: losses reduce tracked profit but the published
// multiplier only ratchets up, until Reset.
type CompoundTracker struct {
	mu         sync.Mutex
	cfg        models.CompoundConfig
	profit     float64
	multiplier float64
}

func NewCompoundTracker(cfg models.CompoundConfig) *CompoundTracker {
	if cfg.ProfitStep <= 0 {
		cfg.ProfitStep = DefaultProfitStep
	}
	if cfg.Increment <= 0 {
		cfg.Increment = DefaultIncrement
	}
	if cfg.Cap <= 0 {
		cfg.Cap = DefaultCompoundCap
	}
	if cfg.Floor <= 0 {
		cfg.Floor = DefaultCompoundFloor
	}
	if cfg.KellyMinTrades <= 0 {
		cfg.KellyMinTrades = DefaultKellyMinTrades
	}
	if cfg.KellySafety <= 0 {
		cfg.KellySafety = DefaultKellySafety
	}
	if cfg.KellyMaxFraction <= 0 {
		cfg.KellyMaxFraction = DefaultKellyMaxFraction
	}
	return &CompoundTracker{cfg: cfg, multiplier: 1.0}
}

// RecordProfit adds realized profit (negative for losses) and returns
// the updated multiplier.
func (c *CompoundTracker) RecordProfit(delta float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profit += delta

	m := 1.0 + c.profit/c.cfg.ProfitStep*c.cfg.Increment
	m = math.Min(m, c.cfg.Cap)
	m = math.Max(m, c.cfg.Floor)
	// Ratchet: the published multiplier never drops within a session.
	if m > c.multiplier {
		c.multiplier = m
	}
	return c.multiplier
}

// Multiplier returns the current multiplier.
func (c *CompoundTracker) Multiplier() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.multiplier
}

// Profit returns the tracked realized profit.
func (c *CompoundTracker) Profit() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profit
}

// Reset clears accumulated profit and drops the multiplier back to 1.
// Used when a grid is torn down and rebuilt with fresh capital.
func (c *CompoundTracker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profit = 0
	c.multiplier = 1.0
}

// KellyFraction derives a capital fraction from trade statistics using
// fractional Kelly. Returns 0 (cap disabled) until enough trades have
// closed, when the edge is non-positive, or when the loss side is empty.
func (c *CompoundTracker) KellyFraction(m *models.PerformanceMetrics) float64 {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	closed := m.Wins + m.Losses
	if closed < int64(cfg.KellyMinTrades) {
		return 0
	}
	if m.Wins == 0 || m.Losses == 0 || m.GrossLoss <= 0 {
		return 0
	}
	avgWin := m.GrossWin / float64(m.Wins)
	avgLoss := m.GrossLoss / float64(m.Losses)
	if avgWin <= 0 || avgLoss <= 0 {
		return 0
	}
	b := avgWin / avgLoss
	p := m.WinRate()
	kelly := p - (1-p)/b
	if kelly <= 0 {
		return 0
	}
	kelly *= cfg.KellySafety
	if kelly > cfg.KellyMaxFraction {
		kelly = cfg.KellyMaxFraction
	}
	return kelly
}
