// Package reset decides when a grid has drifted far enough from its
// center price to be torn down and rebuilt.
package reset

import (
	"fmt"
	"math"
	"sync"
	"time"

	"binance-grid-engine-go/internal/models"
)

const (
	DefaultDeviationThreshold = 0.15
	DefaultCooldown           = time.Hour
	DefaultMaxPerDay          = 5
	DefaultEscalateAfter      = 3 // resets within 6h before the threshold tightens
	DefaultRelaxAfterHours    = 12

	escalateWindow  = 6 * time.Hour
	escalateFactor  = 1.5
	relaxFactor     = 0.8
	dailyCapWindow  = 24 * time.Hour
)

// Supervisor gates grid resets on price deviation, cooldown, a daily
// cap, and an adaptive threshold that tightens after reset bursts and
// relaxes after long quiet stretches. One supervisor per grid.
type Supervisor struct {
	mu      sync.Mutex
	cfg     models.ResetConfig
	history []time.Time

	now func() time.Time
}

func NewSupervisor(cfg models.ResetConfig) *Supervisor {
	if cfg.DeviationThreshold <= 0 {
		cfg.DeviationThreshold = DefaultDeviationThreshold
	}
	if cfg.CooldownSec <= 0 {
		cfg.CooldownSec = int(DefaultCooldown.Seconds())
	}
	if cfg.MaxPerDay <= 0 {
		cfg.MaxPerDay = DefaultMaxPerDay
	}
	if cfg.EscalateAfter <= 0 {
		cfg.EscalateAfter = DefaultEscalateAfter
	}
	if cfg.RelaxAfterHours <= 0 {
		cfg.RelaxAfterHours = DefaultRelaxAfterHours
	}
	return &Supervisor{cfg: cfg, now: time.Now}
}

// ShouldReset reports whether the grid should be rebuilt around the
// current price. The reason string explains the decision either way
// and is meant for the log line.
func (s *Supervisor) ShouldReset(currentPrice, centerPrice float64, lastResetAt time.Time) (bool, string) {
	if currentPrice <= 0 || centerPrice <= 0 {
		return false, "no usable price"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	deviation := math.Abs(currentPrice-centerPrice) / centerPrice
	threshold := s.effectiveThresholdLocked(now)
	if deviation < threshold {
		return false, fmt.Sprintf("deviation %.1f%% below threshold %.1f%%", deviation*100, threshold*100)
	}

	cooldown := time.Duration(s.cfg.CooldownSec) * time.Second
	if !lastResetAt.IsZero() && now.Sub(lastResetAt) < cooldown {
		return false, fmt.Sprintf("deviation %.1f%% but cooldown active (%s remaining)",
			deviation*100, (cooldown - now.Sub(lastResetAt)).Round(time.Second))
	}

	if s.countSinceLocked(now.Add(-dailyCapWindow)) >= s.cfg.MaxPerDay {
		return false, fmt.Sprintf("deviation %.1f%% but daily reset cap %d reached", deviation*100, s.cfg.MaxPerDay)
	}

	return true, fmt.Sprintf("deviation %.1f%% exceeds threshold %.1f%%", deviation*100, threshold*100)
}

// RecordReset marks a performed reset; called by the controller after
// the grid has actually been rebuilt.
func (s *Supervisor) RecordReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.history = append(s.history, now)
	// Drop entries older than the daily cap window.
	cutoff := now.Add(-dailyCapWindow)
	i := 0
	for i < len(s.history) && s.history[i].Before(cutoff) {
		i++
	}
	s.history = s.history[i:]
}

// EffectiveThreshold returns the deviation threshold currently in
// force, after burst escalation or quiet-period relaxation.
func (s *Supervisor) EffectiveThreshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effectiveThresholdLocked(s.now())
}

func (s *Supervisor) effectiveThresholdLocked(now time.Time) float64 {
	base := s.cfg.DeviationThreshold
	if s.countSinceLocked(now.Add(-escalateWindow)) >= s.cfg.EscalateAfter {
		return base * escalateFactor
	}
	quiet := time.Duration(s.cfg.RelaxAfterHours) * time.Hour
	if len(s.history) > 0 && now.Sub(s.history[len(s.history)-1]) >= quiet {
		return base * relaxFactor
	}
	return base
}

func (s *Supervisor) countSinceLocked(cutoff time.Time) int {
	n := 0
	for _, t := range s.history {
		if !t.Before(cutoff) {
			n++
		}
	}
	return n
}
