package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"binance-grid-engine-go/internal/models"
)

// Sim is an in-memory Exchange for tests and paper trading. Limit
// orders rest until SetPrice crosses them: a buy fills when the market
// trades at or below its limit, a sell at or above. Balances move the
// way a spot exchange would move them.
type Sim struct {
	mu sync.Mutex

	prices   map[string]float64
	rules    map[string]*models.SymbolRules
	assets   map[string][2]string // symbol -> {base, quote}
	balances map[string]float64

	orders map[int64]*Order
	filled map[int64]*Order
	nextID int64

	// nextPlaceErr, when set, fails the next PlaceLimitOrder and clears.
	// placeErr fails every placement until cleared.
	nextPlaceErr error
	placeErr     error
	priceErr     error
	placeCalls   int
}

func NewSim() *Sim {
	return &Sim{
		prices:   make(map[string]float64),
		rules:    make(map[string]*models.SymbolRules),
		assets:   make(map[string][2]string),
		balances: make(map[string]float64),
		orders:   make(map[int64]*Order),
		filled:   make(map[int64]*Order),
	}
}

// RegisterSymbol wires a symbol with its trading rules and asset pair.
func (s *Sim) RegisterSymbol(symbol, baseAsset, quoteAsset string, rules *models.SymbolRules) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[symbol] = rules
	s.assets[symbol] = [2]string{baseAsset, quoteAsset}
}

// SetBalance sets the free balance of one asset.
func (s *Sim) SetBalance(asset string, amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[asset] = amount
}

// SetPrice moves the market and fills any orders the new price crosses.
func (s *Sim) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
	for id, o := range s.orders {
		if o.Symbol != symbol {
			continue
		}
		crossed := (o.Side == models.Buy && price <= o.Price) ||
			(o.Side == models.Sell && price >= o.Price)
		if !crossed {
			continue
		}
		s.settleLocked(o)
		o.Status = "FILLED"
		s.filled[id] = o
		delete(s.orders, id)
	}
}

func (s *Sim) settleLocked(o *Order) {
	assets := s.assets[o.Symbol]
	base, quote := assets[0], assets[1]
	if o.Side == models.Buy {
		s.balances[base] += o.Quantity
	} else {
		s.balances[quote] += o.Price * o.Quantity
	}
}

// FailNextPlace injects an error into the next PlaceLimitOrder call.
func (s *Sim) FailNextPlace(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPlaceErr = err
}

// FailPlaces makes every PlaceLimitOrder fail until cleared with nil.
func (s *Sim) FailPlaces(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placeErr = err
}

// FailPrices makes GetCurrentPrice fail until cleared with nil.
func (s *Sim) FailPrices(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priceErr = err
}

// PlaceCalls reports how many PlaceLimitOrder attempts the sim has
// seen, including rejected ones.
func (s *Sim) PlaceCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.placeCalls
}

func (s *Sim) GetCurrentPrice(_ context.Context, symbol string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.priceErr != nil {
		return 0, fmt.Errorf("%w: %w", ErrMarketDataUnavailable, s.priceErr)
	}
	price, ok := s.prices[symbol]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("%w: no price for %s", ErrMarketDataUnavailable, symbol)
	}
	return price, nil
}

func (s *Sim) GetTradingRules(_ context.Context, symbol string) (*models.SymbolRules, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rules, ok := s.rules[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	cp := *rules
	cp.FetchedAt = time.Now()
	return &cp, nil
}

func (s *Sim) GetBalances(_ context.Context) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.balances))
	for k, v := range s.balances {
		out[k] = v
	}
	return out, nil
}

func (s *Sim) PlaceLimitOrder(_ context.Context, symbol string, side models.Side, price, quantity float64, clientOrderID string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placeCalls++
	if s.nextPlaceErr != nil {
		err := s.nextPlaceErr
		s.nextPlaceErr = nil
		return nil, err
	}
	if s.placeErr != nil {
		return nil, s.placeErr
	}
	if _, ok := s.rules[symbol]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	assets := s.assets[symbol]
	base, quote := assets[0], assets[1]
	if side == models.Buy {
		cost := price * quantity
		if s.balances[quote] < cost {
			return nil, fmt.Errorf("%w: need %.8f %s, have %.8f", ErrInsufficientBalance, cost, quote, s.balances[quote])
		}
		s.balances[quote] -= cost
	} else {
		if s.balances[base] < quantity {
			return nil, fmt.Errorf("%w: need %.8f %s, have %.8f", ErrInsufficientBalance, quantity, base, s.balances[base])
		}
		s.balances[base] -= quantity
	}

	s.nextID++
	order := &Order{
		OrderID:       s.nextID,
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          side,
		Price:         price,
		Quantity:      quantity,
		Status:        "NEW",
		CreatedAt:     time.Now(),
	}
	s.orders[order.OrderID] = order
	return order, nil
}

func (s *Sim) CancelOrder(_ context.Context, symbol string, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[orderID]; ok {
		// Return the reserved funds.
		assets := s.assets[symbol]
		if o.Side == models.Buy {
			s.balances[assets[1]] += o.Price * o.Quantity
		} else {
			s.balances[assets[0]] += o.Quantity
		}
		delete(s.orders, orderID)
		return nil
	}
	if _, ok := s.filled[orderID]; ok {
		return fmt.Errorf("%w: order %d", ErrOrderAlreadyFilled, orderID)
	}
	return fmt.Errorf("%w: order %d", ErrOrderNotFound, orderID)
}

func (s *Sim) ListOpenOrders(_ context.Context, symbol string) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		if o.Symbol == symbol {
			out = append(out, *o)
		}
	}
	return out, nil
}

// OpenOrderCount reports resting orders for assertions in tests.
func (s *Sim) OpenOrderCount(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.orders {
		if o.Symbol == symbol {
			n++
		}
	}
	return n
}
