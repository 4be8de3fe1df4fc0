package exchange

import (
	"context"

	"golang.org/x/time/rate"
)

// Weights of the REST calls the engine makes, in exchange request
// weight units.
const (
	weightPrice      = 2
	weightRules      = 20
	weightAccount    = 20
	weightOrder      = 1
	weightOpenOrders = 6
)

// Limiter paces REST calls across all grids so one busy grid cannot
// rate-limit the rest. Shared by every Exchange call site.
type Limiter struct {
	rl *rate.Limiter
}

// NewLimiter builds a limiter allowing perSec weight units per second
// with the given burst. Zero or negative values fall back to a
// conservative default well under the exchange ceiling.
func NewLimiter(perSec float64, burst int) *Limiter {
	if perSec <= 0 {
		perSec = 50
	}
	if burst <= 0 {
		burst = 100
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(perSec), burst)}
}

// Wait blocks until n weight units are available or the context ends.
func (l *Limiter) Wait(ctx context.Context, n int) error {
	if l == nil || l.rl == nil {
		return nil
	}
	return l.rl.WaitN(ctx, n)
}
