// Package metrics accumulates per-grid performance counters. Counters
// only ever grow; readers get copies, never live references.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"binance-grid-engine-go/internal/models"
)

// Key identifies one grid's counters.
func Key(clientID, symbol string) string {
	return fmt.Sprintf("%s/%s", clientID, symbol)
}

// Tracker holds the counters for every grid in the engine. Safe for
// concurrent use by all monitor loops.
type Tracker struct {
	mu     sync.Mutex
	byGrid map[string]*models.PerformanceMetrics

	now func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		byGrid: make(map[string]*models.PerformanceMetrics),
		now:    time.Now,
	}
}

func (t *Tracker) get(clientID, symbol string) *models.PerformanceMetrics {
	key := Key(clientID, symbol)
	m, ok := t.byGrid[key]
	if !ok {
		m = &models.PerformanceMetrics{}
		t.byGrid[key] = m
	}
	return m
}

// RecordBuyFill counts a filled buy level.
func (t *Tracker) RecordBuyFill(clientID, symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.get(clientID, symbol)
	m.Trades++
	m.BuyFills++
	m.UpdatedAt = t.now()
}

// RecordSellFill counts a filled sell level and closes a round trip
// with the given realized profit (negative for a loss).
func (t *Tracker) RecordSellFill(clientID, symbol string, profit float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.get(clientID, symbol)
	m.Trades++
	m.SellFills++
	m.RealizedProfit += profit
	if profit >= 0 {
		m.Wins++
		m.GrossWin += profit
	} else {
		m.Losses++
		m.GrossLoss += -profit
	}
	m.UpdatedAt = t.now()
}

func (t *Tracker) RecordAdaptation(clientID, symbol string) {
	t.bump(clientID, symbol, func(m *models.PerformanceMetrics) { m.Adaptations++ })
}

func (t *Tracker) RecordCompound(clientID, symbol string) {
	t.bump(clientID, symbol, func(m *models.PerformanceMetrics) { m.Compounds++ })
}

func (t *Tracker) RecordReset(clientID, symbol string) {
	t.bump(clientID, symbol, func(m *models.PerformanceMetrics) { m.Resets++ })
}

func (t *Tracker) bump(clientID, symbol string, f func(*models.PerformanceMetrics)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.get(clientID, symbol)
	f(m)
	m.UpdatedAt = t.now()
}

// Snapshot returns a copy of the grid's counters.
func (t *Tracker) Snapshot(clientID, symbol string) models.PerformanceMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.get(clientID, symbol)
}

// Restore seeds counters from persisted state, e.g. after a restart.
func (t *Tracker) Restore(clientID, symbol string, m models.PerformanceMetrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := m
	t.byGrid[Key(clientID, symbol)] = &cp
}

// All returns a copy of every grid's counters, keyed by Key.
func (t *Tracker) All() map[string]models.PerformanceMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]models.PerformanceMetrics, len(t.byGrid))
	for k, m := range t.byGrid {
		out[k] = *m
	}
	return out
}
