package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v3"

	"binance-grid-engine-go/internal/models"
)

// BadgerRepository implements GridRepository on an embedded BadgerDB.
// Values are JSON blobs; keys are namespaced per client and symbol so
// grids never collide.
type BadgerRepository struct {
	db  *badger.DB
	seq uint64
}

// NewBadgerRepository opens (or creates) the database at path. An
// empty path opens an in-memory database, used by tests and paper
// mode.
func NewBadgerRepository(path string) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db at %q: %w", path, err)
	}
	return &BadgerRepository{db: db}, nil
}

func gridKey(clientID, symbol string) []byte {
	return []byte(fmt.Sprintf("grid/%s/%s", clientID, symbol))
}

func metricsKey(clientID, symbol string) []byte {
	return []byte(fmt.Sprintf("metrics/%s/%s", clientID, symbol))
}

func (r *BadgerRepository) SaveGrid(grid *models.GridConfig) error {
	data, err := json.Marshal(grid)
	if err != nil {
		return fmt.Errorf("failed to marshal grid %s/%s: %w", grid.ClientID, grid.Symbol, err)
	}
	return r.set(gridKey(grid.ClientID, grid.Symbol), data)
}

func (r *BadgerRepository) LoadGrid(clientID, symbol string) (*models.GridConfig, error) {
	data, err := r.get(gridKey(clientID, symbol))
	if err != nil || data == nil {
		return nil, err
	}
	var grid models.GridConfig
	if err := json.Unmarshal(data, &grid); err != nil {
		return nil, fmt.Errorf("failed to unmarshal grid %s/%s: %w", clientID, symbol, err)
	}
	return &grid, nil
}

func (r *BadgerRepository) DeleteGrid(clientID, symbol string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(gridKey(clientID, symbol))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func (r *BadgerRepository) SaveMetrics(clientID, symbol string, m *models.PerformanceMetrics) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics %s/%s: %w", clientID, symbol, err)
	}
	return r.set(metricsKey(clientID, symbol), data)
}

func (r *BadgerRepository) LoadMetrics(clientID, symbol string) (*models.PerformanceMetrics, error) {
	data, err := r.get(metricsKey(clientID, symbol))
	if err != nil || data == nil {
		return nil, err
	}
	var m models.PerformanceMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics %s/%s: %w", clientID, symbol, err)
	}
	return &m, nil
}

func (r *BadgerRepository) AppendTrade(rec *models.TradeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal trade record: %w", err)
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	// Sequence suffix keeps keys unique when two fills land in the
	// same nanosecond.
	key := fmt.Sprintf("trade/%s/%s/%020d-%06d",
		rec.ClientID, rec.Symbol, ts.UnixNano(), atomic.AddUint64(&r.seq, 1)%1000000)
	return r.set([]byte(key), data)
}

// TradesFor returns the stored trade records for one grid, oldest
// first.
func (r *BadgerRepository) TradesFor(clientID, symbol string) ([]models.TradeRecord, error) {
	prefix := []byte(fmt.Sprintf("trade/%s/%s/", clientID, symbol))
	var out []models.TradeRecord
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec models.TradeRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				out = append(out, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read trades %s/%s: %w", clientID, symbol, err)
	}
	return out, nil
}

func (r *BadgerRepository) set(key, data []byte) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (r *BadgerRepository) get(key []byte) ([]byte, error) {
	var data []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Close flushes and closes the database.
func (r *BadgerRepository) Close() error {
	return r.db.Close()
}
