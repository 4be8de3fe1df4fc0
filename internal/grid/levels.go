// Package grid computes the ladder of buy and sell levels around a
// center price, with progressive spacing and sizing.
package grid

import (
	"errors"
	"fmt"

	"binance-grid-engine-go/internal/logger"
	"binance-grid-engine-go/internal/models"
	"binance-grid-engine-go/internal/quantizer"
)

var (
	ErrInsufficientCapital = errors.New("capital per side cannot satisfy minimum notional")
	ErrSpacingTooNarrow    = errors.New("grid spacing collapses onto the center price after quantization")
)

// MinLevelsPerSide is the floor the level count is reduced to before
// giving up with ErrInsufficientCapital.
const MinLevelsPerSide = 3

const (
	DefaultSpacingGrowth = 0.1
	DefaultSizeGrowth    = 0.05
)

// Params describes one side-symmetric grid build.
type Params struct {
	CenterPrice    float64
	SpacingBase    float64 // fraction, e.g. 0.025 for 2.5%
	LevelCount     int     // per side
	CapitalPerSide float64 // quote currency
	SpacingGrowth  float64 // widening per level index, default 0.1
	SizeGrowth     float64 // size growth per level index, default 0.05
	NotionalBuffer float64
}

func (p *Params) withDefaults() Params {
	out := *p
	if out.SpacingGrowth == 0 {
		out.SpacingGrowth = DefaultSpacingGrowth
	}
	if out.SizeGrowth == 0 {
		out.SizeGrowth = DefaultSizeGrowth
	}
	return out
}

// LevelSpacing returns the spacing fraction of 1-indexed level i.
// Levels farther from center are progressively wider.
func LevelSpacing(base float64, i int, growth float64) float64 {
	return base * (1 + float64(i)*growth)
}

// BuildLevels produces levelCount quantized levels per side around the
// center price. Buy level -i sits at center×(1−spacing_i), sell level
// +i at center×(1+spacing_i); order size grows with distance from the
// center. When the per-level budget cannot clear the exchange minimum
// notional the level count shrinks, down to MinLevelsPerSide, before
// the build fails with ErrInsufficientCapital.
func BuildLevels(p Params, rules *models.SymbolRules) ([]models.GridLevel, error) {
	p = p.withDefaults()
	if p.CenterPrice <= 0 || p.SpacingBase <= 0 {
		return nil, fmt.Errorf("invalid grid geometry: center=%v spacing=%v", p.CenterPrice, p.SpacingBase)
	}
	if p.LevelCount <= 0 {
		return nil, fmt.Errorf("invalid level count %d", p.LevelCount)
	}

	count := p.LevelCount
	minNotional := rules.MinNotional * (1 + p.NotionalBuffer)
	for count > MinLevelsPerSide && baseOrderSize(p.CapitalPerSide, count) < minNotional {
		count--
	}
	base := baseOrderSize(p.CapitalPerSide, count)
	if base < minNotional {
		return nil, fmt.Errorf("%w: %.2f per level against minimum %.2f (%d levels)",
			ErrInsufficientCapital, base, minNotional, count)
	}
	if count < p.LevelCount {
		logger.S().Warnw("level count reduced to satisfy minimum notional",
			"symbol", rules.Symbol, "requested", p.LevelCount, "actual", count)
	}

	levels := make([]models.GridLevel, 0, 2*count)
	for i := 1; i <= count; i++ {
		spacing := LevelSpacing(p.SpacingBase, i, p.SpacingGrowth)
		size := base * (1 + float64(i)*p.SizeGrowth)

		buy, err := buildLevel(-i, models.Buy, p.CenterPrice*(1-spacing), size, rules, p.NotionalBuffer)
		if err != nil {
			return nil, err
		}
		sell, err := buildLevel(i, models.Sell, p.CenterPrice*(1+spacing), size, rules, p.NotionalBuffer)
		if err != nil {
			return nil, err
		}
		if buy.TargetPrice >= p.CenterPrice || sell.TargetPrice <= p.CenterPrice {
			return nil, fmt.Errorf("%w: level %d at spacing %.4f%%", ErrSpacingTooNarrow, i, spacing*100)
		}
		levels = append(levels, buy, sell)
	}
	return levels, nil
}

func buildLevel(index int, side models.Side, rawPrice, sizeQuote float64, rules *models.SymbolRules, buffer float64) (models.GridLevel, error) {
	price, qty, err := quantizer.Legalize(rawPrice, sizeQuote/rawPrice, rules, buffer)
	if err != nil {
		return models.GridLevel{}, fmt.Errorf("level %d: %w", index, err)
	}
	return models.GridLevel{
		Index:          index,
		Side:           side,
		TargetPrice:    price,
		Quantity:       qty,
		OrderSizeQuote: price * qty,
	}, nil
}

func baseOrderSize(capitalPerSide float64, count int) float64 {
	return capitalPerSide / float64(count)
}
