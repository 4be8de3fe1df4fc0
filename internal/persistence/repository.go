// Package persistence stores grid snapshots, performance counters and
// the trade audit trail so the engine can survive a restart.
package persistence

import "binance-grid-engine-go/internal/models"

// GridRepository is the storage contract the engine persists through.
// Load methods return (nil, nil) when nothing is stored yet; callers
// treat a missing snapshot as a fresh start, not an error.
type GridRepository interface {
	SaveGrid(grid *models.GridConfig) error
	LoadGrid(clientID, symbol string) (*models.GridConfig, error)
	DeleteGrid(clientID, symbol string) error

	SaveMetrics(clientID, symbol string, m *models.PerformanceMetrics) error
	LoadMetrics(clientID, symbol string) (*models.PerformanceMetrics, error)

	AppendTrade(rec *models.TradeRecord) error

	Close() error
}
