package allocator

import "time"

// Session intensity multipliers by UTC hour. The London-NY overlap is
// the busiest window and only applies on weekdays.
const (
	asiaIntensity    = 1.2
	londonIntensity  = 1.0
	newYorkIntensity = 1.3
	overlapIntensity = 1.5
	quietIntensity   = 0.7

	weekendMultiplier = 0.6
)

// MarketTimer maps wall-clock time onto a trading-intensity multiplier.
// The zero value is usable; Now is overridable for tests.
type MarketTimer struct {
	Now func() time.Time
}

func NewMarketTimer() *MarketTimer {
	return &MarketTimer{Now: time.Now}
}

// Intensity returns the timing multiplier for the current UTC hour.
func (t *MarketTimer) Intensity() float64 {
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	return IntensityAt(now().UTC())
}

// IntensityAt returns the timing multiplier at the given UTC instant.
func IntensityAt(ts time.Time) float64 {
	ts = ts.UTC()
	hour := ts.Hour()
	weekend := ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday

	var session float64
	switch {
	case hour >= 13 && hour <= 16 && !weekend:
		session = overlapIntensity
	case hour < 8:
		session = asiaIntensity
	case hour < 13:
		session = londonIntensity
	case hour < 21:
		session = newYorkIntensity
	default:
		session = quietIntensity
	}
	if weekend {
		return session * weekendMultiplier
	}
	return session
}
