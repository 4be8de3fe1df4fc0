// Package allocator sizes grid orders from total capital, realized
// profit compounding, volatility and market timing, with a Kelly cap
// on top.
package allocator

import (
	"errors"
	"fmt"
)

var ErrInvalidAllocation = errors.New("invalid allocation input")

// Sizing is the input to one order-size computation. Multipliers
// default to 1 when zero so callers can leave features disabled.
type Sizing struct {
	TotalCapital  float64
	LevelCount    int // per side
	Compound      float64
	Volatility    float64
	Timing        float64
	KellyFraction float64 // 0 disables the Kelly cap
	KellyMax      float64 // hard ceiling fraction of capital, default 0.25
}

// ComputeOrderSize returns the per-level order size in quote currency.
// Base is totalCapital/(2×levelCount); the compound, volatility and
// timing multipliers scale it; the Kelly cap can only shrink the
// result, never grow it. Pure function.
func ComputeOrderSize(s Sizing) (float64, error) {
	if s.TotalCapital <= 0 || s.LevelCount <= 0 {
		return 0, fmt.Errorf("%w: capital=%v levels=%d", ErrInvalidAllocation, s.TotalCapital, s.LevelCount)
	}
	compound := orOne(s.Compound)
	volatility := orOne(s.Volatility)
	timing := orOne(s.Timing)

	size := s.TotalCapital / (2 * float64(s.LevelCount)) * compound * volatility * timing

	if s.KellyFraction > 0 {
		kellyMax := s.KellyMax
		if kellyMax <= 0 {
			kellyMax = DefaultKellyMaxFraction
		}
		cap := s.KellyFraction * s.TotalCapital / float64(s.LevelCount)
		if hard := kellyMax * s.TotalCapital; cap > hard {
			cap = hard
		}
		if size > cap {
			size = cap
		}
	}
	return size, nil
}

func orOne(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return v
}
