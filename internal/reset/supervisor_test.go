package reset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-grid-engine-go/internal/models"
)

func newTestSupervisor() (*Supervisor, *time.Time) {
	s := NewSupervisor(models.ResetConfig{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestShouldResetDeviationAndCooldown(t *testing.T) {
	s, now := newTestSupervisor()

	// 17% deviation with the cooldown long elapsed
	ok, reason := s.ShouldReset(117, 100, now.Add(-2*time.Hour))
	assert.True(t, ok)
	assert.Contains(t, reason, "exceeds threshold")

	// 20% deviation but only 59 minutes since the last reset
	ok, reason = s.ShouldReset(120, 100, now.Add(-59*time.Minute))
	assert.False(t, ok)
	assert.Contains(t, reason, "cooldown")
}

func TestShouldResetBelowThreshold(t *testing.T) {
	s, now := newTestSupervisor()
	ok, reason := s.ShouldReset(110, 100, now.Add(-2*time.Hour))
	assert.False(t, ok)
	assert.Contains(t, reason, "below threshold")
}

func TestShouldResetDownsideDeviation(t *testing.T) {
	s, now := newTestSupervisor()
	ok, _ := s.ShouldReset(83, 100, now.Add(-2*time.Hour))
	assert.True(t, ok)
}

func TestShouldResetNeverResetBefore(t *testing.T) {
	s, _ := newTestSupervisor()
	ok, _ := s.ShouldReset(117, 100, time.Time{})
	assert.True(t, ok)
}

func TestDailyCap(t *testing.T) {
	s, now := newTestSupervisor()
	for i := 0; i < 5; i++ {
		s.RecordReset()
		*now = now.Add(2 * time.Minute)
	}
	ok, reason := s.ShouldReset(150, 100, now.Add(-2*time.Hour))
	assert.False(t, ok)
	assert.Contains(t, reason, "daily reset cap")

	// the cap rolls off after 24 hours
	*now = now.Add(25 * time.Hour)
	ok, _ = s.ShouldReset(150, 100, now.Add(-2*time.Hour))
	assert.True(t, ok)
}

func TestAdaptiveThresholdEscalates(t *testing.T) {
	s, now := newTestSupervisor()
	require.InDelta(t, 0.15, s.EffectiveThreshold(), 1e-9)

	for i := 0; i < 3; i++ {
		s.RecordReset()
		*now = now.Add(time.Minute)
	}
	// three resets inside six hours: threshold tightens to 22.5%
	assert.InDelta(t, 0.15*1.5, s.EffectiveThreshold(), 1e-9)

	ok, _ := s.ShouldReset(120, 100, now.Add(-2*time.Hour))
	assert.False(t, ok) // 20% under the escalated 22.5%
	ok, _ = s.ShouldReset(125, 100, now.Add(-2*time.Hour))
	assert.True(t, ok)
}

func TestAdaptiveThresholdRelaxesAfterQuiet(t *testing.T) {
	s, now := newTestSupervisor()
	s.RecordReset()
	*now = now.Add(13 * time.Hour)
	assert.InDelta(t, 0.15*0.8, s.EffectiveThreshold(), 1e-9)

	// 13% clears the relaxed 12% threshold
	ok, _ := s.ShouldReset(113, 100, now.Add(-2*time.Hour))
	assert.True(t, ok)
}
