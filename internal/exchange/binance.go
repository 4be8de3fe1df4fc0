package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"binance-grid-engine-go/internal/logger"
	"binance-grid-engine-go/internal/models"
	"binance-grid-engine-go/internal/quantizer"
)

// Expanded recv window used for the single retry after a clock-skew
// rejection, in milliseconds.
const expandedRecvWindow = 60000

const clockSkewRetryPause = 500 * time.Millisecond

// Binance implements Exchange against Binance spot via the official
// REST API. Safe for concurrent use; all calls go through the shared
// weight limiter.
type Binance struct {
	client  *binance.Client
	limiter *Limiter

	mu    sync.RWMutex
	rules map[string]*models.SymbolRules
}

// NewBinance builds the client and synchronizes local time with the
// exchange so signed requests do not start life skewed.
func NewBinance(apiKey, secretKey string, testnet bool, limiter *Limiter) *Binance {
	binance.UseTestnet = testnet
	b := &Binance{
		client:  binance.NewClient(apiKey, secretKey),
		limiter: limiter,
		rules:   make(map[string]*models.SymbolRules),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := b.client.NewSetServerTimeService().Do(ctx); err != nil {
		logger.S().Warnw("server time sync failed, signed requests may be skewed", "error", err)
	}
	return b
}

func (b *Binance) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if err := b.limiter.Wait(ctx, weightPrice); err != nil {
		return 0, err
	}
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMarketDataUnavailable, mapAPIError(err))
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("%w: empty ticker for %s", ErrMarketDataUnavailable, symbol)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("%w: unparseable ticker price %q", ErrMarketDataUnavailable, prices[0].Price)
	}
	return price, nil
}

func (b *Binance) GetTradingRules(ctx context.Context, symbol string) (*models.SymbolRules, error) {
	if err := b.limiter.Wait(ctx, weightRules); err != nil {
		return nil, err
	}
	info, err := b.client.NewExchangeInfoService().Symbols(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange info for %s: %w", symbol, mapAPIError(err))
	}
	for i := range info.Symbols {
		s := &info.Symbols[i]
		if s.Symbol != symbol {
			continue
		}
		rules := parseSymbolRules(s)
		b.mu.Lock()
		b.rules[symbol] = rules
		b.mu.Unlock()
		return rules, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
}

func parseSymbolRules(s *binance.Symbol) *models.SymbolRules {
	rules := &models.SymbolRules{
		Symbol:    s.Symbol,
		FetchedAt: time.Now(),
	}
	for _, f := range s.Filters {
		switch f["filterType"] {
		case "PRICE_FILTER":
			rules.TickSize = filterFloat(f, "tickSize")
			rules.MinPrice = filterFloat(f, "minPrice")
			rules.MaxPrice = filterFloat(f, "maxPrice")
		case "LOT_SIZE":
			rules.StepSize = filterFloat(f, "stepSize")
			rules.MinQty = filterFloat(f, "minQty")
		case "MIN_NOTIONAL":
			rules.MinNotional = filterFloat(f, "minNotional")
		case "NOTIONAL":
			rules.MinNotional = filterFloat(f, "minNotional")
		}
	}
	rules.PricePrecision = quantizer.StepPrecision(rules.TickSize)
	rules.QuantityPrecision = quantizer.StepPrecision(rules.StepSize)
	return rules
}

func filterFloat(f map[string]interface{}, key string) float64 {
	s, ok := f[key].(string)
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func (b *Binance) GetBalances(ctx context.Context) (map[string]float64, error) {
	if err := b.limiter.Wait(ctx, weightAccount); err != nil {
		return nil, err
	}
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("account fetch: %w", mapAPIError(err))
	}
	balances := make(map[string]float64, len(account.Balances))
	for _, bal := range account.Balances {
		free, err := strconv.ParseFloat(bal.Free, 64)
		if err != nil || free == 0 {
			continue
		}
		balances[bal.Asset] = free
	}
	return balances, nil
}

func (b *Binance) PlaceLimitOrder(ctx context.Context, symbol string, side models.Side, price, quantity float64, clientOrderID string) (*Order, error) {
	rules, err := b.cachedRules(ctx, symbol)
	if err != nil {
		return nil, err
	}
	priceStr := quantizer.FormatPrice(price, rules)
	qtyStr := quantizer.FormatQuantity(quantity, rules)

	order, err := b.createOrder(ctx, symbol, side, priceStr, qtyStr, clientOrderID)
	if errors.Is(err, ErrClockSkew) {
		// One retry with fresh server time and a wide recv window.
		logger.S().Warnw("clock skew on order placement, resyncing and retrying once",
			"symbol", symbol, "side", side)
		if _, serr := b.client.NewSetServerTimeService().Do(ctx); serr != nil {
			return nil, fmt.Errorf("server time resync after clock skew: %w", serr)
		}
		select {
		case <-time.After(clockSkewRetryPause):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		order, err = b.createOrder(ctx, symbol, side, priceStr, qtyStr, clientOrderID,
			binance.WithRecvWindow(expandedRecvWindow))
	}
	if err != nil {
		return nil, err
	}
	order.Price = price
	order.Quantity = quantity
	return order, nil
}

func (b *Binance) createOrder(ctx context.Context, symbol string, side models.Side, price, quantity, clientOrderID string, opts ...binance.RequestOption) (*Order, error) {
	if err := b.limiter.Wait(ctx, weightOrder); err != nil {
		return nil, err
	}
	svc := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideType(side)).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(quantity).
		Price(price)
	if clientOrderID != "" {
		svc = svc.NewClientOrderID(clientOrderID)
	}
	resp, err := svc.Do(ctx, opts...)
	if err != nil {
		return nil, mapAPIError(err)
	}
	return &Order{
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Symbol:        symbol,
		Side:          side,
		Status:        string(resp.Status),
		CreatedAt:     time.Now(),
	}, nil
}

func (b *Binance) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	if err := b.limiter.Wait(ctx, weightOrder); err != nil {
		return err
	}
	_, err := b.client.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && apiErr.Code == -2011 {
		// "Unknown order" covers both already-filled and never-existed;
		// one status query disambiguates.
		ord, qerr := b.client.NewGetOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
		if qerr == nil && ord.Status == binance.OrderStatusTypeFilled {
			return fmt.Errorf("%w: order %d", ErrOrderAlreadyFilled, orderID)
		}
		return fmt.Errorf("%w: order %d", ErrOrderNotFound, orderID)
	}
	return mapAPIError(err)
}

func (b *Binance) ListOpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	if err := b.limiter.Wait(ctx, weightOpenOrders); err != nil {
		return nil, err
	}
	raw, err := b.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("open orders for %s: %w", symbol, mapAPIError(err))
	}
	orders := make([]Order, 0, len(raw))
	for _, o := range raw {
		price, _ := strconv.ParseFloat(o.Price, 64)
		qty, _ := strconv.ParseFloat(o.OrigQuantity, 64)
		orders = append(orders, Order{
			OrderID:       o.OrderID,
			ClientOrderID: o.ClientOrderID,
			Symbol:        o.Symbol,
			Side:          models.Side(o.Side),
			Price:         price,
			Quantity:      qty,
			Status:        string(o.Status),
		})
	}
	return orders, nil
}

func (b *Binance) cachedRules(ctx context.Context, symbol string) (*models.SymbolRules, error) {
	b.mu.RLock()
	rules, ok := b.rules[symbol]
	b.mu.RUnlock()
	if ok {
		return rules, nil
	}
	return b.GetTradingRules(ctx, symbol)
}

// mapAPIError translates Binance API error codes into the engine's
// error taxonomy. Unknown codes pass through untouched.
func mapAPIError(err error) error {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case -1003, -1015:
		return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
	case -1021:
		return fmt.Errorf("%w: %s", ErrClockSkew, apiErr.Message)
	case -1121:
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, apiErr.Message)
	case -2010:
		if strings.Contains(strings.ToLower(apiErr.Message), "insufficient balance") {
			return fmt.Errorf("%w: %s", ErrInsufficientBalance, apiErr.Message)
		}
		return &RejectionError{Code: apiErr.Code, Reason: apiErr.Message}
	case -1013:
		return &RejectionError{Code: apiErr.Code, Reason: apiErr.Message}
	}
	return err
}
