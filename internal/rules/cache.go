// Package rules caches per-symbol trading rules in front of the
// exchange, so grids do not hammer the exchange-info endpoint every
// cycle. The cache is an injected struct, never package state.
package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"binance-grid-engine-go/internal/logger"
	"binance-grid-engine-go/internal/models"
)

const (
	DefaultTTL            = time.Hour
	DefaultRejectionLimit = 3
)

// Source is the slice of the exchange contract the cache reads through.
type Source interface {
	GetTradingRules(ctx context.Context, symbol string) (*models.SymbolRules, error)
}

type entry struct {
	rules      *models.SymbolRules
	fetchedAt  time.Time
	rejections int
}

// Cache is a read-through per-symbol rules cache with TTL expiry and
// rejection-based invalidation: after RejectionLimit consecutive order
// rejections the cached entry is dropped, forcing a refetch in case
// the exchange changed its filters. Safe for concurrent use.
type Cache struct {
	src            Source
	ttl            time.Duration
	rejectionLimit int

	mu      sync.RWMutex
	entries map[string]*entry

	now func() time.Time
}

func NewCache(src Source, ttl time.Duration, rejectionLimit int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if rejectionLimit <= 0 {
		rejectionLimit = DefaultRejectionLimit
	}
	return &Cache{
		src:            src,
		ttl:            ttl,
		rejectionLimit: rejectionLimit,
		entries:        make(map[string]*entry),
		now:            time.Now,
	}
}

// Get returns the cached rules for symbol, fetching from the source
// when the entry is missing or expired.
func (c *Cache) Get(ctx context.Context, symbol string) (*models.SymbolRules, error) {
	c.mu.RLock()
	e, ok := c.entries[symbol]
	if ok && c.now().Sub(e.fetchedAt) < c.ttl {
		rules := e.rules
		c.mu.RUnlock()
		return rules, nil
	}
	c.mu.RUnlock()

	rules, err := c.src.GetTradingRules(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("rules fetch for %s: %w", symbol, err)
	}
	c.mu.Lock()
	c.entries[symbol] = &entry{rules: rules, fetchedAt: c.now()}
	c.mu.Unlock()
	return rules, nil
}

// RecordRejection counts a rejected order against the symbol; after
// rejectionLimit consecutive rejections the entry is invalidated.
func (c *Cache) RecordRejection(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[symbol]
	if !ok {
		return
	}
	e.rejections++
	if e.rejections >= c.rejectionLimit {
		logger.S().Warnw("invalidating cached trading rules after repeated rejections",
			"symbol", symbol, "rejections", e.rejections)
		delete(c.entries, symbol)
	}
}

// RecordAccepted resets the consecutive-rejection counter.
func (c *Cache) RecordAccepted(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[symbol]; ok {
		e.rejections = 0
	}
}

// Invalidate drops the cached entry for symbol.
func (c *Cache) Invalidate(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, symbol)
}
