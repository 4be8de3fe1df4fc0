package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-grid-engine-go/internal/models"
)

type fakeSource struct {
	calls int
	err   error
}

func (f *fakeSource) GetTradingRules(_ context.Context, symbol string) (*models.SymbolRules, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.SymbolRules{Symbol: symbol, TickSize: 0.01, StepSize: 0.001, MinNotional: 10}, nil
}

func newTestCache(src *fakeSource) (*Cache, *time.Time) {
	c := NewCache(src, time.Hour, 3)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestCacheReadThrough(t *testing.T) {
	src := &fakeSource{}
	c, _ := newTestCache(src)

	r1, err := c.Get(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	r2, err := c.Get(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assert.Same(t, r1, r2)
	assert.Equal(t, 1, src.calls)
}

func TestCacheTTLExpiry(t *testing.T) {
	src := &fakeSource{}
	c, now := newTestCache(src)

	_, err := c.Get(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	*now = now.Add(61 * time.Minute)
	_, err = c.Get(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCacheRejectionInvalidation(t *testing.T) {
	src := &fakeSource{}
	c, _ := newTestCache(src)

	_, err := c.Get(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	c.RecordRejection("BTCUSDT")
	c.RecordRejection("BTCUSDT")
	// an accepted order in between resets the streak
	c.RecordAccepted("BTCUSDT")
	c.RecordRejection("BTCUSDT")
	c.RecordRejection("BTCUSDT")

	_, err = c.Get(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "streak below limit must not invalidate")

	c.RecordRejection("BTCUSDT")
	c.RecordRejection("BTCUSDT")
	c.RecordRejection("BTCUSDT")
	_, err = c.Get(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls, "three consecutive rejections invalidate")
}

func TestCachePropagatesSourceError(t *testing.T) {
	boom := errors.New("boom")
	src := &fakeSource{err: boom}
	c, _ := newTestCache(src)
	_, err := c.Get(context.Background(), "BTCUSDT")
	require.ErrorIs(t, err, boom)
}
