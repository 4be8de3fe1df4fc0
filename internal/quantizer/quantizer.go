// Package quantizer snaps raw prices and quantities onto the lattice a
// symbol's trading rules define, so every order the engine submits is
// accepted by the exchange filters.
package quantizer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"binance-grid-engine-go/internal/logger"
	"binance-grid-engine-go/internal/models"
)

var (
	ErrInvalidRules = errors.New("invalid trading rules")
	ErrInvalidInput = errors.New("price and quantity must be positive")
)

// DefaultNotionalBuffer is the safety margin applied on top of the
// exchange minimum notional, so that rounding can never dip below it.
const DefaultNotionalBuffer = 0.02

// StepPrecision returns the number of decimal places implied by a step
// such as 0.001. Steps that are whole numbers have precision 0.
func StepPrecision(step float64) int {
	s := strconv.FormatFloat(step, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

func roundTo(v float64, prec int) float64 {
	p := math.Pow10(prec)
	return math.Round(v*p) / p
}

// SnapToStep rounds value to the nearest multiple of step and strips
// float drift using the step's own precision.
func SnapToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	return roundTo(math.Round(value/step)*step, StepPrecision(step))
}

// SnapUpToStep rounds value up to the next multiple of step. Used when
// rounding down would violate a minimum.
func SnapUpToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	// Tolerate values that are already a multiple modulo float noise.
	n := value / step
	if diff := n - math.Round(n); math.Abs(diff) < 1e-9 {
		n = math.Round(n)
	} else {
		n = math.Ceil(n)
	}
	return roundTo(n*step, StepPrecision(step))
}

// Legalize converts a raw (price, quantity) pair into one the exchange
// will accept: price snapped to tickSize and clamped to the price band,
// quantity snapped to stepSize and raised until the order notional
// clears minNotional with the safety buffer. The function is pure and
// idempotent: feeding its output back in returns the same pair.
//
// When tickSize or stepSize is missing the corresponding precision
// field is used as a degraded fallback; if that is also unusable the
// call fails with ErrInvalidRules.
func Legalize(rawPrice, rawQty float64, rules *models.SymbolRules, buffer float64) (float64, float64, error) {
	if rawPrice <= 0 || rawQty <= 0 {
		return 0, 0, fmt.Errorf("%w: price=%v quantity=%v", ErrInvalidInput, rawPrice, rawQty)
	}
	if buffer < 0 {
		buffer = DefaultNotionalBuffer
	}

	price := rawPrice
	switch {
	case rules.TickSize > 0:
		price = SnapToStep(price, rules.TickSize)
	case rules.PricePrecision >= 0:
		logger.S().Warnw("tick size missing, falling back to price precision",
			"symbol", rules.Symbol, "precision", rules.PricePrecision)
		price = roundTo(price, rules.PricePrecision)
	default:
		return 0, 0, fmt.Errorf("%w: symbol %s has no tick size and no price precision", ErrInvalidRules, rules.Symbol)
	}
	if rules.MinPrice > 0 && price < rules.MinPrice {
		price = SnapUpToStep(rules.MinPrice, rules.TickSize)
	}
	if rules.MaxPrice > 0 && price > rules.MaxPrice {
		price = SnapToStep(rules.MaxPrice, rules.TickSize)
		if price > rules.MaxPrice {
			price = roundTo(price-rules.TickSize, StepPrecision(rules.TickSize))
		}
	}
	if price <= 0 {
		return 0, 0, fmt.Errorf("%w: price %v collapsed to zero after snapping", ErrInvalidRules, rawPrice)
	}

	qty := rawQty
	switch {
	case rules.StepSize > 0:
		qty = SnapToStep(qty, rules.StepSize)
	case rules.QuantityPrecision >= 0:
		logger.S().Warnw("step size missing, falling back to quantity precision",
			"symbol", rules.Symbol, "precision", rules.QuantityPrecision)
		qty = roundTo(qty, rules.QuantityPrecision)
	default:
		return 0, 0, fmt.Errorf("%w: symbol %s has no step size and no quantity precision", ErrInvalidRules, rules.Symbol)
	}
	if rules.MinQty > 0 && qty < rules.MinQty {
		qty = SnapUpToStep(rules.MinQty, rules.StepSize)
	}

	if rules.MinNotional > 0 {
		target := rules.MinNotional * (1 + buffer)
		if price*qty < target {
			qty = SnapUpToStep(target/price, rules.StepSize)
		}
	}
	if qty <= 0 {
		return 0, 0, fmt.Errorf("%w: quantity %v collapsed to zero after snapping", ErrInvalidRules, rawQty)
	}

	return price, qty, nil
}

// FormatPrice renders a price for the exchange API without stripping
// significant zeros the tick size requires.
func FormatPrice(price float64, rules *models.SymbolRules) string {
	prec := rules.PricePrecision
	if rules.TickSize > 0 {
		prec = StepPrecision(rules.TickSize)
	}
	if prec < 0 {
		prec = 8
	}
	return strconv.FormatFloat(price, 'f', prec, 64)
}

// FormatQuantity renders a quantity for the exchange API.
func FormatQuantity(qty float64, rules *models.SymbolRules) string {
	prec := rules.QuantityPrecision
	if rules.StepSize > 0 {
		prec = StepPrecision(rules.StepSize)
	}
	if prec < 0 {
		prec = 8
	}
	return strconv.FormatFloat(qty, 'f', prec, 64)
}
