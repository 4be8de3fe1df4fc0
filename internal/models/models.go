package models

import "time"

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the side a replacement order is placed on after a fill.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// GridLevel 代表网格中的一个价格档位。
// Index 为负表示买入档位，为正表示卖出档位；档位由其所属的 GridConfig 独占，
// 只有该网格的监控循环可以修改它。
type GridLevel struct {
	Index           int     `json:"index"`
	Side            Side    `json:"side"`
	TargetPrice     float64 `json:"target_price"`
	Quantity        float64 `json:"quantity"`
	OrderSizeQuote  float64 `json:"order_size_quote"`
	ExchangeOrderID int64   `json:"exchange_order_id,omitempty"`
	ClientOrderID   string  `json:"client_order_id,omitempty"`
	Filled          bool    `json:"filled"`
	// PairedCost 是该卖出档位对应持仓的买入成本价，用于成交后计算已实现盈亏。
	PairedCost float64 `json:"paired_cost,omitempty"`
}

// Placed reports whether the level currently has an open order on the exchange.
func (l *GridLevel) Placed() bool {
	return l.ExchangeOrderID != 0 && !l.Filled
}

// GridConfig 是一个活跃网格(客户+交易对)的完整配置与档位状态。
// 不变量：所有买入档位价格 < CenterPrice < 所有卖出档位价格；
// 每个档位最多持有一个未结订单ID。
type GridConfig struct {
	ID                 string      `json:"id"`
	ClientID           string      `json:"client_id"`
	Symbol             string      `json:"symbol"`
	TotalCapital       float64     `json:"total_capital"`
	CenterPrice        float64     `json:"center_price"`
	GridSpacing        float64     `json:"grid_spacing"`
	Levels             []GridLevel `json:"levels"`
	CompoundMultiplier float64     `json:"compound_multiplier"`
	VolatilityRegime   string      `json:"volatility_regime"`
	SellsActive        bool        `json:"sells_active"`
	CreatedAt          time.Time   `json:"created_at"`
	LastResetAt        time.Time   `json:"last_reset_at"`
}

// BuyLevels returns the buy-side levels (Index < 0).
func (g *GridConfig) BuyLevels() []*GridLevel {
	return g.sideLevels(Buy)
}

// SellLevels returns the sell-side levels (Index > 0).
func (g *GridConfig) SellLevels() []*GridLevel {
	return g.sideLevels(Sell)
}

func (g *GridConfig) sideLevels(side Side) []*GridLevel {
	out := make([]*GridLevel, 0, len(g.Levels)/2)
	for i := range g.Levels {
		if g.Levels[i].Side == side {
			out = append(out, &g.Levels[i])
		}
	}
	return out
}

// SymbolRules 缓存了交易所针对某个交易对的下单约束。
// 获取后只读；由 rules 缓存按 TTL 或连续拒单进行失效。
type SymbolRules struct {
	Symbol            string    `json:"symbol"`
	TickSize          float64   `json:"tick_size"`
	StepSize          float64   `json:"step_size"`
	MinQty            float64   `json:"min_qty"`
	MinPrice          float64   `json:"min_price"`
	MaxPrice          float64   `json:"max_price"`
	MinNotional       float64   `json:"min_notional"`
	PricePrecision    int       `json:"price_precision"`
	QuantityPrecision int       `json:"quantity_precision"`
	FetchedAt         time.Time `json:"fetched_at"`
}

// PerformanceMetrics 按客户+交易对累计的只增计数器。
type PerformanceMetrics struct {
	Trades         int64     `json:"trades"`
	BuyFills       int64     `json:"buy_fills"`
	SellFills      int64     `json:"sell_fills"`
	Wins           int64     `json:"wins"`
	Losses         int64     `json:"losses"`
	RealizedProfit float64   `json:"realized_profit"`
	GrossWin       float64   `json:"gross_win"`
	GrossLoss      float64   `json:"gross_loss"`
	Adaptations    int64     `json:"adaptations"`
	Compounds      int64     `json:"compounds"`
	Resets         int64     `json:"resets"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// WinRate returns the fraction of closed trades that were profitable.
func (m *PerformanceMetrics) WinRate() float64 {
	closed := m.Wins + m.Losses
	if closed == 0 {
		return 0
	}
	return float64(m.Wins) / float64(closed)
}

// TrendDirection 标记短期趋势方向。
type TrendDirection int

const (
	TrendDown TrendDirection = -1
	TrendFlat TrendDirection = 0
	TrendUp   TrendDirection = 1
)

// MarketCondition 是 regime 适配器每个周期重新计算的临时市场快照，不做持久化。
type MarketCondition struct {
	Score      float64        `json:"score"` // 0(极弱) .. 1(极强)
	Volatility float64        `json:"volatility"`
	Trend      TrendDirection `json:"trend"`
	Regime     string         `json:"regime"` // low / moderate / high / extreme
}

// GridState 是网格控制器状态机的状态。
type GridState string

const (
	StateStarting  GridState = "STARTING"
	StateActive    GridState = "ACTIVE"
	StateAdapting  GridState = "ADAPTING"
	StateResetting GridState = "RESETTING"
	StateStopped   GridState = "STOPPED"
	StateError     GridState = "ERROR"
)

// GridStartResult 返回给上层(UI/仓储)的启动结果。
type GridStartResult struct {
	Success       bool    `json:"success"`
	GridID        string  `json:"grid_id"`
	Symbol        string  `json:"symbol"`
	LevelsPlanned int     `json:"levels_planned"`
	OrdersPlaced  int     `json:"orders_placed"`
	Allocation    float64 `json:"allocation"` // 单档下单金额(计价货币)
	SellsDeferred bool    `json:"sells_deferred"`
	Reason        string  `json:"reason,omitempty"`
}

// StopResult 返回给上层的停止结果。
type StopResult struct {
	CancelledOrders int                `json:"cancelled_orders"`
	FinalMetrics    PerformanceMetrics `json:"final_metrics"`
}

// GridStatus 是某个网格的只读状态快照，可安全轮询。
type GridStatus struct {
	ClientID           string             `json:"client_id"`
	Symbol             string             `json:"symbol"`
	State              GridState          `json:"state"`
	CenterPrice        float64            `json:"center_price"`
	CurrentPrice       float64            `json:"current_price"`
	GridSpacing        float64            `json:"grid_spacing"`
	CompoundMultiplier float64            `json:"compound_multiplier"`
	VolatilityRegime   string             `json:"volatility_regime"`
	ActiveOrders       int                `json:"active_orders"`
	FilledLevels       int                `json:"filled_levels"`
	TotalLevels        int                `json:"total_levels"`
	SellsActive        bool               `json:"sells_active"`
	CreatedAt          time.Time          `json:"created_at"`
	LastResetAt        time.Time          `json:"last_reset_at"`
	Metrics            PerformanceMetrics `json:"metrics"`
}

// TradeEventType 区分成交日志中的事件类别；网格重置单独记录，便于审计。
type TradeEventType string

const (
	EventOrderPlaced    TradeEventType = "ORDER_PLACED"
	EventOrderCancelled TradeEventType = "ORDER_CANCELLED"
	EventOrderFilled    TradeEventType = "ORDER_FILLED"
	EventGridReset      TradeEventType = "GRID_RESET"
)

// TradeRecord 是投递给成交日志 sink 的一条记录；持久化格式由仓储层决定。
type TradeRecord struct {
	Event      TradeEventType `json:"event"`
	ClientID   string         `json:"client_id"`
	Symbol     string         `json:"symbol"`
	Side       Side           `json:"side,omitempty"`
	Price      float64        `json:"price,omitempty"`
	Quantity   float64        `json:"quantity,omitempty"`
	LevelIndex int            `json:"level_index,omitempty"`
	OrderID    int64          `json:"order_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
