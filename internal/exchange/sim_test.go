package exchange

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-grid-engine-go/internal/models"
)

func newSimWithSymbol() *Sim {
	s := NewSim()
	s.RegisterSymbol("BTCUSDT", "BTC", "USDT", &models.SymbolRules{
		Symbol: "BTCUSDT", TickSize: 0.01, StepSize: 0.00001, MinNotional: 10,
	})
	s.SetBalance("USDT", 10000)
	s.SetPrice("BTCUSDT", 100)
	return s
}

func TestSimPlaceAndFillBuy(t *testing.T) {
	s := newSimWithSymbol()
	ctx := context.Background()

	order, err := s.PlaceLimitOrder(ctx, "BTCUSDT", models.Buy, 95, 1, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 1, s.OpenOrderCount("BTCUSDT"))

	// quote reserved on placement
	balances, _ := s.GetBalances(ctx)
	assert.InDelta(t, 10000-95, balances["USDT"], 1e-9)

	// price crosses the limit: order fills and base is credited
	s.SetPrice("BTCUSDT", 94)
	assert.Equal(t, 0, s.OpenOrderCount("BTCUSDT"))
	balances, _ = s.GetBalances(ctx)
	assert.InDelta(t, 1, balances["BTC"], 1e-9)

	err = s.CancelOrder(ctx, "BTCUSDT", order.OrderID)
	require.ErrorIs(t, err, ErrOrderAlreadyFilled)
}

func TestSimSellRequiresBase(t *testing.T) {
	s := newSimWithSymbol()
	_, err := s.PlaceLimitOrder(context.Background(), "BTCUSDT", models.Sell, 105, 1, "t-2")
	require.ErrorIs(t, err, ErrInsufficientBalance)

	s.SetBalance("BTC", 2)
	order, err := s.PlaceLimitOrder(context.Background(), "BTCUSDT", models.Sell, 105, 1, "t-3")
	require.NoError(t, err)

	s.SetPrice("BTCUSDT", 106)
	balances, _ := s.GetBalances(context.Background())
	assert.InDelta(t, 10000+105, balances["USDT"], 1e-9)
	_ = order
}

func TestSimCancelReleasesFunds(t *testing.T) {
	s := newSimWithSymbol()
	ctx := context.Background()
	order, err := s.PlaceLimitOrder(ctx, "BTCUSDT", models.Buy, 95, 1, "t-4")
	require.NoError(t, err)
	require.NoError(t, s.CancelOrder(ctx, "BTCUSDT", order.OrderID))

	balances, _ := s.GetBalances(ctx)
	assert.InDelta(t, 10000, balances["USDT"], 1e-9)

	err = s.CancelOrder(ctx, "BTCUSDT", order.OrderID)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestSimUnknownSymbol(t *testing.T) {
	s := NewSim()
	_, err := s.GetTradingRules(context.Background(), "NOPEUSDT")
	require.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrRateLimited))
	assert.True(t, IsTransient(ErrClockSkew))
	assert.False(t, IsTransient(ErrInsufficientBalance))
	assert.False(t, IsTransient(nil))
}

func TestIsRejection(t *testing.T) {
	assert.True(t, IsRejection(ErrInsufficientBalance))
	assert.True(t, IsRejection(&RejectionError{Code: -1013, Reason: "filter failure"}))
	assert.False(t, IsRejection(ErrRateLimited))
}

func TestNewClientOrderID(t *testing.T) {
	id := NewClientOrderID("g1")
	assert.True(t, strings.HasPrefix(id, "g1-"))
	assert.LessOrEqual(t, len(id), 36)
	assert.NotEqual(t, id, NewClientOrderID("g1"))
}
