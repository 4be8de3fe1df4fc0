// Package exchange defines the collaborator contract the grid engine
// trades through, a Binance spot implementation, and a simulated
// implementation for tests and paper trading.
package exchange

import (
	"context"
	"time"

	"binance-grid-engine-go/internal/models"
)

// Order is the engine's view of an exchange order.
type Order struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          models.Side
	Price         float64
	Quantity      float64
	Status        string
	CreatedAt     time.Time
}

// Exchange is the contract every grid controller trades through.
// Implementations must be safe for concurrent use by multiple grids.
//
// Error contract:
//   - GetCurrentPrice fails with ErrMarketDataUnavailable.
//   - GetTradingRules fails with ErrUnknownSymbol.
//   - PlaceLimitOrder fails with ErrInsufficientBalance, ErrRateLimited,
//     ErrClockSkew or *RejectionError.
//   - CancelOrder fails with ErrOrderAlreadyFilled or ErrOrderNotFound.
type Exchange interface {
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	GetTradingRules(ctx context.Context, symbol string) (*models.SymbolRules, error)
	GetBalances(ctx context.Context) (map[string]float64, error)
	PlaceLimitOrder(ctx context.Context, symbol string, side models.Side, price, quantity float64, clientOrderID string) (*Order, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	ListOpenOrders(ctx context.Context, symbol string) ([]Order, error)
}
