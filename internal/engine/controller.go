package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"binance-grid-engine-go/internal/allocator"
	"binance-grid-engine-go/internal/exchange"
	"binance-grid-engine-go/internal/grid"
	"binance-grid-engine-go/internal/metrics"
	"binance-grid-engine-go/internal/models"
	"binance-grid-engine-go/internal/persistence"
	"binance-grid-engine-go/internal/quantizer"
	"binance-grid-engine-go/internal/regime"
	"binance-grid-engine-go/internal/reset"
	"binance-grid-engine-go/internal/rules"
	"binance-grid-engine-go/internal/tradelog"
)

// Deps bundles the collaborators one grid controller works with. The
// exchange, rules cache, metrics tracker, sink and repository are
// shared across grids; adjuster, reset supervisor and compound
// tracker belong to this grid alone.
type Deps struct {
	Exchange exchange.Exchange
	Rules    *rules.Cache
	Adjuster regime.RiskAdjuster
	Reset    *reset.Supervisor
	Compound *allocator.CompoundTracker
	Timer    *allocator.MarketTimer
	Tracker  *metrics.Tracker
	Sink     tradelog.Sink
	Repo     persistence.GridRepository
	Feed     *exchange.PriceFeed
	Log      *zap.SugaredLogger
}

// Controller runs one grid: it owns the level state, the monitor loop
// and the state machine. All level mutation happens on the monitor
// goroutine; Status reads go through the mutex.
type Controller struct {
	cfg      models.EngineConfig
	clientID string
	symbol   string
	capital  float64

	baseAsset  string
	quoteAsset string
	idPrefix   string

	deps Deps

	mu        sync.RWMutex
	state     models.GridState
	grid      *models.GridConfig
	snap      gridSnapshot
	lastPrice float64
	sizeMult  float64

	stopCh    chan struct{}
	doneCh    chan struct{}
	startedCh chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	stopped   bool

	now func() time.Time
}

// gridSnapshot is the copy of grid state served to Status. Levels are
// only mutated by the goroutine that owns the grid, so it rebuilds the
// snapshot after each mutation batch and hands it over under the lock.
type gridSnapshot struct {
	valid            bool
	centerPrice      float64
	gridSpacing      float64
	volatilityRegime string
	sellsActive      bool
	createdAt        time.Time
	lastResetAt      time.Time
	totalLevels      int
	activeOrders     int
	filledLevels     int
}

func NewController(cfg models.EngineConfig, clientID, symbol string, capital float64, deps Deps) *Controller {
	base, quote := splitSymbol(symbol)
	return &Controller{
		cfg:        cfg,
		clientID:   clientID,
		symbol:     symbol,
		capital:    capital,
		baseAsset:  base,
		quoteAsset: quote,
		idPrefix:   "g" + shortID(),
		deps:       deps,
		state:      models.StateStarting,
		sizeMult:   1.0,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		startedCh:  make(chan struct{}),
		now:        time.Now,
	}
}

var quoteAssets = []string{"USDT", "FDUSD", "USDC", "TUSD", "BUSD", "BTC", "ETH", "BNB"}

func splitSymbol(symbol string) (base, quote string) {
	for _, q := range quoteAssets {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return symbol[:len(symbol)-len(q)], q
		}
	}
	return symbol, ""
}

func shortID() string {
	u := uuid.New()
	return fmt.Sprintf("%x", u[:4])
}

// Start builds the initial grid around the live price and submits the
// opening orders. Buys go in immediately; sells wait until the account
// holds enough base asset (accumulation first, expansion later).
func (c *Controller) Start(ctx context.Context) (models.GridStartResult, error) {
	if c.capital <= 0 {
		return failResult(c.symbol, "capital must be positive"), configErrorf("capital %.2f must be positive", c.capital)
	}
	if c.cfg.GridSpacing <= 0 {
		return failResult(c.symbol, "grid spacing must be positive"), configErrorf("grid spacing %.4f must be positive", c.cfg.GridSpacing)
	}

	price, err := c.currentPrice(ctx)
	if err != nil {
		c.setState(models.StateError)
		return failResult(c.symbol, "no market price"), fmt.Errorf("start %s/%s: %w", c.clientID, c.symbol, err)
	}
	symbolRules, err := c.deps.Rules.Get(ctx, c.symbol)
	if err != nil {
		c.setState(models.StateError)
		return failResult(c.symbol, "no trading rules"), fmt.Errorf("start %s/%s: %w", c.clientID, c.symbol, err)
	}

	levels, err := c.buildLevels(ctx, price, c.cfg.GridSpacing, symbolRules)
	if err != nil {
		c.setState(models.StateError)
		if errors.Is(err, grid.ErrInsufficientCapital) {
			return failResult(c.symbol, err.Error()), configErrorf("start %s/%s: %v", c.clientID, c.symbol, err)
		}
		return failResult(c.symbol, err.Error()), fmt.Errorf("start %s/%s: %w", c.clientID, c.symbol, err)
	}

	g := &models.GridConfig{
		ID:                 uuid.NewString(),
		ClientID:           c.clientID,
		Symbol:             c.symbol,
		TotalCapital:       c.capital,
		CenterPrice:        price,
		GridSpacing:        c.cfg.GridSpacing,
		Levels:             levels,
		CompoundMultiplier: c.deps.Compound.Multiplier(),
		VolatilityRegime:   regime.RegimeModerate,
		CreatedAt:          c.now().UTC(),
	}
	c.mu.Lock()
	c.grid = g
	c.lastPrice = price
	c.mu.Unlock()

	sellsActive := c.checkSellActivation(ctx, g)
	g.SellsActive = sellsActive

	placed := 0
	for i := range g.Levels {
		l := &g.Levels[i]
		if l.Side == models.Sell && !sellsActive {
			continue
		}
		if err := c.placeLevel(ctx, l); err != nil {
			c.deps.Log.Warnw("opening order not placed",
				"client", c.clientID, "symbol", c.symbol, "level", l.Index, "error", err)
			continue
		}
		placed++
	}
	if placed == 0 {
		c.setState(models.StateError)
		return failResult(c.symbol, "no orders could be placed"),
			fmt.Errorf("start %s/%s: %w", c.clientID, c.symbol, ErrNoOrders)
	}

	c.setState(models.StateActive)
	c.publishSnapshot(g)
	c.persist()
	c.deps.Log.Infow("grid started",
		"client", c.clientID, "symbol", c.symbol, "center", price,
		"levels", len(g.Levels), "orders", placed, "sells_active", sellsActive)

	return models.GridStartResult{
		Success:       true,
		GridID:        g.ID,
		Symbol:        c.symbol,
		LevelsPlanned: len(g.Levels),
		OrdersPlaced:  placed,
		Allocation:    c.capital / float64(len(g.Levels)),
		SellsDeferred: !sellsActive,
	}, nil
}

func failResult(symbol, reason string) models.GridStartResult {
	return models.GridStartResult{Symbol: symbol, Reason: reason}
}

// Run drives the monitor loop until Stop or context cancellation. One
// goroutine per grid; cycles never overlap because they all run here.
func (c *Controller) Run(ctx context.Context) {
	c.startOnce.Do(func() { close(c.startedCh) })
	defer close(c.doneCh)
	interval := time.Duration(c.cfg.MonitorIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.runCycle(ctx)
		}
	}
}

// runCycle executes one monitoring pass: fill detection, replacement,
// sell activation, adaptation, reset check, persistence. Strictly
// sequential.
func (c *Controller) runCycle(ctx context.Context) {
	if c.isStopRequested() {
		return
	}

	price, err := c.currentPrice(ctx)
	if err != nil {
		// No usable market data: skip the whole cycle, touch nothing.
		c.deps.Log.Warnw("cycle skipped, market data unavailable",
			"client", c.clientID, "symbol", c.symbol, "error", err)
		return
	}
	c.mu.Lock()
	c.lastPrice = price
	g := c.grid
	c.mu.Unlock()
	if g == nil {
		return
	}
	c.deps.Adjuster.Observe(price)

	open, err := c.deps.Exchange.ListOpenOrders(ctx, c.symbol)
	if err != nil {
		c.deps.Log.Warnw("cycle skipped, open orders unavailable",
			"client", c.clientID, "symbol", c.symbol, "error", err)
		return
	}
	openSet := make(map[int64]struct{}, len(open))
	for _, o := range open {
		openSet[o.OrderID] = struct{}{}
	}

	for i := range g.Levels {
		if c.isStopRequested() {
			return
		}
		l := &g.Levels[i]
		if !l.Placed() {
			continue
		}
		if _, stillOpen := openSet[l.ExchangeOrderID]; stillOpen {
			continue
		}
		c.handleFill(ctx, g, l, price)
	}

	c.activateSellsIfFunded(ctx, g)
	c.maintainLevels(ctx, g)
	c.maybeAdapt(ctx, g, price)
	c.maybeReset(ctx, g, price)
	c.publishSnapshot(g)
	c.persist()
}

// handleFill marks the level filled, records the trade, and converts
// the slot into a replacement order on the opposite side priced from
// the live market, not the stale fill price.
func (c *Controller) handleFill(ctx context.Context, g *models.GridConfig, l *models.GridLevel, marketPrice float64) {
	fillPrice := l.TargetPrice
	fillSide := l.Side
	l.Filled = true

	c.deps.Sink.Record(models.TradeRecord{
		Event:      models.EventOrderFilled,
		ClientID:   c.clientID,
		Symbol:     c.symbol,
		Side:       fillSide,
		Price:      fillPrice,
		Quantity:   l.Quantity,
		LevelIndex: l.Index,
		OrderID:    l.ExchangeOrderID,
		Timestamp:  c.now().UTC(),
	})

	if fillSide == models.Buy {
		c.deps.Tracker.RecordBuyFill(c.clientID, c.symbol)
	} else {
		cost := l.PairedCost
		if cost <= 0 {
			cost = g.CenterPrice
		}
		profit := (fillPrice - cost) * l.Quantity
		c.deps.Tracker.RecordSellFill(c.clientID, c.symbol, profit)
		c.recordCompound(g, profit)
	}

	c.deps.Log.Infow("level filled",
		"client", c.clientID, "symbol", c.symbol,
		"level", l.Index, "side", fillSide, "price", fillPrice, "qty", l.Quantity)

	c.placeReplacement(ctx, g, l, fillPrice, marketPrice)
}

func (c *Controller) recordCompound(g *models.GridConfig, profit float64) {
	before := c.deps.Compound.Multiplier()
	after := c.deps.Compound.RecordProfit(profit)
	if after > before {
		g.CompoundMultiplier = after
		c.deps.Tracker.RecordCompound(c.clientID, c.symbol)
		c.deps.Log.Infow("compound multiplier increased",
			"client", c.clientID, "symbol", c.symbol, "multiplier", after)
	}
}

// placeReplacement reuses the filled slot for the opposite side. The
// replacement price comes from the current market price with widened
// spacing, which keeps the grid tracking the live market instead of
// drifting to stale levels.
func (c *Controller) placeReplacement(ctx context.Context, g *models.GridConfig, l *models.GridLevel, fillPrice, marketPrice float64) {
	factor := c.cfg.ReplacementSpacingFactor
	if factor <= 0 {
		factor = 1.5
	}
	spacing := g.GridSpacing * factor

	var rawPrice float64
	var pairedCost float64
	side := l.Side.Opposite()
	if side == models.Sell {
		rawPrice = marketPrice * (1 + spacing)
		pairedCost = fillPrice
	} else {
		rawPrice = marketPrice * (1 - spacing)
	}

	symbolRules, err := c.deps.Rules.Get(ctx, c.symbol)
	if err != nil {
		c.deps.Log.Warnw("replacement skipped, no trading rules",
			"client", c.clientID, "symbol", c.symbol, "error", err)
		return
	}
	price, qty, err := quantizer.Legalize(rawPrice, l.OrderSizeQuote/rawPrice, symbolRules, c.cfg.NotionalBuffer)
	if err != nil {
		c.deps.Log.Warnw("replacement skipped, quantization failed",
			"client", c.clientID, "symbol", c.symbol, "error", err)
		return
	}

	l.Index = -l.Index
	l.Side = side
	l.TargetPrice = price
	l.Quantity = qty
	l.OrderSizeQuote = price * qty
	l.ExchangeOrderID = 0
	l.ClientOrderID = ""
	l.Filled = false
	l.PairedCost = pairedCost

	if err := c.placeLevel(ctx, l); err != nil {
		// Level stays unplaced; maintainLevels retries next cycle.
		c.deps.Log.Warnw("replacement order not placed",
			"client", c.clientID, "symbol", c.symbol, "level", l.Index, "error", err)
	}
}

// placeLevel submits one limit order for the level, retrying transient
// failures with exponential backoff. Rejections feed the rules cache's
// invalidation counter.
func (c *Controller) placeLevel(ctx context.Context, l *models.GridLevel) error {
	if l.Placed() {
		// Two orders on one slot would double the exposure.
		v := &InvariantViolation{Reason: fmt.Sprintf(
			"level %d already holds order %d", l.Index, l.ExchangeOrderID)}
		c.deps.Log.Errorw("level forcibly reset", "client", c.clientID, "symbol", c.symbol, "error", v)
		l.ExchangeOrderID = 0
		l.ClientOrderID = ""
	}

	clientOrderID := exchange.NewClientOrderID(c.idPrefix)
	var order *exchange.Order
	err := c.withRetry(ctx, func() error {
		var perr error
		order, perr = c.deps.Exchange.PlaceLimitOrder(ctx, c.symbol, l.Side, l.TargetPrice, l.Quantity, clientOrderID)
		return perr
	})
	if err != nil {
		if exchange.IsRejection(err) && !errors.Is(err, exchange.ErrInsufficientBalance) {
			c.deps.Rules.RecordRejection(c.symbol)
		}
		return err
	}
	c.deps.Rules.RecordAccepted(c.symbol)

	l.ExchangeOrderID = order.OrderID
	l.ClientOrderID = clientOrderID

	c.deps.Sink.Record(models.TradeRecord{
		Event:      models.EventOrderPlaced,
		ClientID:   c.clientID,
		Symbol:     c.symbol,
		Side:       l.Side,
		Price:      l.TargetPrice,
		Quantity:   l.Quantity,
		LevelIndex: l.Index,
		OrderID:    order.OrderID,
		Timestamp:  c.now().UTC(),
	})
	return nil
}

func (c *Controller) withRetry(ctx context.Context, f func() error) error {
	attempts := c.cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := time.Duration(c.cfg.RetryInitialDelayMs) * time.Millisecond
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = f()
		if err == nil || !exchange.IsTransient(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		c.deps.Log.Warnw("transient exchange failure, backing off",
			"client", c.clientID, "symbol", c.symbol,
			"attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return err
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

// activateSellsIfFunded flips the grid into full two-sided mode once
// the base asset balance covers the sell side. Checked every cycle
// while sells are deferred.
func (c *Controller) activateSellsIfFunded(ctx context.Context, g *models.GridConfig) {
	if g.SellsActive {
		return
	}
	if c.checkSellActivation(ctx, g) {
		g.SellsActive = true
		c.deps.Log.Infow("base balance threshold reached, activating sell levels",
			"client", c.clientID, "symbol", c.symbol)
	}
}

func (c *Controller) checkSellActivation(ctx context.Context, g *models.GridConfig) bool {
	var required float64
	for _, l := range g.Levels {
		if l.Side == models.Sell && !l.Filled {
			required += l.Quantity
		}
	}
	if required == 0 {
		return true
	}
	balances, err := c.deps.Exchange.GetBalances(ctx)
	if err != nil {
		c.deps.Log.Warnw("balance check failed, keeping sells deferred",
			"client", c.clientID, "symbol", c.symbol, "error", err)
		return false
	}
	ratio := c.cfg.BaseActivationRatio
	if ratio <= 0 {
		ratio = 1.0
	}
	return balances[c.baseAsset] >= required*ratio
}

// maintainLevels re-places levels that are neither filled nor resting
// on the exchange, e.g. after a skipped placement in an earlier cycle.
func (c *Controller) maintainLevels(ctx context.Context, g *models.GridConfig) {
	for i := range g.Levels {
		l := &g.Levels[i]
		if l.Filled || l.Placed() {
			continue
		}
		if l.Side == models.Sell && !g.SellsActive && l.PairedCost <= 0 {
			continue
		}
		if err := c.placeLevel(ctx, l); err != nil {
			c.deps.Log.Debugw("level still unplaced",
				"client", c.clientID, "symbol", c.symbol, "level", l.Index, "error", err)
		}
	}
}

// maybeAdapt asks the risk adjuster for a spacing proposal and, when
// one clears cadence and hysteresis, rebuilds the grid around the
// current price with the new geometry.
func (c *Controller) maybeAdapt(ctx context.Context, g *models.GridConfig, price float64) {
	minSp, maxSp := c.spacingBounds()
	prop, ok := c.deps.Adjuster.Propose(g.GridSpacing, c.cfg.GridSpacing, minSp, maxSp)
	if !ok {
		return
	}

	c.setState(models.StateAdapting)
	c.deps.Log.Infow("adapting grid to regime change",
		"client", c.clientID, "symbol", c.symbol,
		"regime", prop.Condition.Regime, "volatility", prop.Condition.Volatility,
		"old_spacing", g.GridSpacing, "new_spacing", prop.Spacing)

	c.mu.Lock()
	c.sizeMult = prop.SizeMultiplier
	c.mu.Unlock()
	g.VolatilityRegime = prop.Condition.Regime

	if err := c.rebuild(ctx, g, price, prop.Spacing); err != nil {
		c.deps.Log.Errorw("adaptation rebuild failed, keeping old grid",
			"client", c.clientID, "symbol", c.symbol, "error", err)
	} else {
		c.deps.Tracker.RecordAdaptation(c.clientID, c.symbol)
	}
	c.setState(models.StateActive)
}

// maybeReset rebuilds the grid around the live price when it has
// drifted past the supervisor's deviation threshold.
func (c *Controller) maybeReset(ctx context.Context, g *models.GridConfig, price float64) {
	shouldReset, reason := c.deps.Reset.ShouldReset(price, g.CenterPrice, g.LastResetAt)
	if !shouldReset {
		return
	}

	c.setState(models.StateResetting)
	c.deps.Log.Infow("auto-reset triggered",
		"client", c.clientID, "symbol", c.symbol,
		"center", g.CenterPrice, "price", price, "reason", reason)

	if err := c.rebuild(ctx, g, price, g.GridSpacing); err != nil {
		c.deps.Log.Errorw("reset rebuild failed, keeping old grid",
			"client", c.clientID, "symbol", c.symbol, "error", err)
		c.setState(models.StateActive)
		return
	}
	g.LastResetAt = c.now().UTC()
	c.deps.Reset.RecordReset()
	c.deps.Tracker.RecordReset(c.clientID, c.symbol)
	c.deps.Sink.Record(models.TradeRecord{
		Event:     models.EventGridReset,
		ClientID:  c.clientID,
		Symbol:    c.symbol,
		Price:     price,
		Reason:    reason,
		Timestamp: c.now().UTC(),
	})
	c.setState(models.StateActive)
}

// rebuild cancels every resting order and relays the grid around the
// given center with the given spacing. Used by both adaptation and
// reset.
func (c *Controller) rebuild(ctx context.Context, g *models.GridConfig, center, spacing float64) error {
	symbolRules, err := c.deps.Rules.Get(ctx, c.symbol)
	if err != nil {
		return err
	}
	levels, err := c.buildLevels(ctx, center, spacing, symbolRules)
	if err != nil {
		return err
	}

	c.cancelOpenLevels(ctx, g)

	g.CenterPrice = center
	g.GridSpacing = spacing
	g.Levels = levels
	g.SellsActive = c.checkSellActivation(ctx, g)

	placed := 0
	for i := range g.Levels {
		l := &g.Levels[i]
		if l.Side == models.Sell && !g.SellsActive {
			continue
		}
		if err := c.placeLevel(ctx, l); err != nil {
			c.deps.Log.Warnw("rebuild order not placed",
				"client", c.clientID, "symbol", c.symbol, "level", l.Index, "error", err)
			continue
		}
		placed++
	}
	if placed == 0 {
		return ErrNoOrders
	}
	return nil
}

func (c *Controller) cancelOpenLevels(ctx context.Context, g *models.GridConfig) int {
	cancelled := 0
	for i := range g.Levels {
		l := &g.Levels[i]
		if !l.Placed() {
			continue
		}
		err := c.deps.Exchange.CancelOrder(ctx, c.symbol, l.ExchangeOrderID)
		switch {
		case err == nil:
			cancelled++
			c.deps.Sink.Record(models.TradeRecord{
				Event:      models.EventOrderCancelled,
				ClientID:   c.clientID,
				Symbol:     c.symbol,
				Side:       l.Side,
				Price:      l.TargetPrice,
				Quantity:   l.Quantity,
				LevelIndex: l.Index,
				OrderID:    l.ExchangeOrderID,
				Timestamp:  c.now().UTC(),
			})
		case errors.Is(err, exchange.ErrOrderNotFound), errors.Is(err, exchange.ErrOrderAlreadyFilled):
			// Nothing left to cancel; treat as done.
		default:
			c.deps.Log.Warnw("cancel failed",
				"client", c.clientID, "symbol", c.symbol, "order", l.ExchangeOrderID, "error", err)
		}
		l.ExchangeOrderID = 0
		l.ClientOrderID = ""
	}
	return cancelled
}

// buildLevels sizes the grid with the allocator and lays the levels
// out around the center.
func (c *Controller) buildLevels(ctx context.Context, center, spacing float64, symbolRules *models.SymbolRules) ([]models.GridLevel, error) {
	levelCount := c.cfg.LevelsPerSide
	if levelCount <= 0 {
		levelCount = 5
	}

	timing := 1.0
	if c.cfg.MarketTimingEnabled && c.deps.Timer != nil {
		timing = c.deps.Timer.Intensity()
	}
	c.mu.RLock()
	volMult := c.sizeMult
	c.mu.RUnlock()

	snapshot := c.deps.Tracker.Snapshot(c.clientID, c.symbol)
	orderSize, err := allocator.ComputeOrderSize(allocator.Sizing{
		TotalCapital:  c.capital,
		LevelCount:    levelCount,
		Compound:      c.deps.Compound.Multiplier(),
		Volatility:    volMult,
		Timing:        timing,
		KellyFraction: c.deps.Compound.KellyFraction(&snapshot),
		KellyMax:      c.cfg.Compound.KellyMaxFraction,
	})
	if err != nil {
		return nil, err
	}

	return grid.BuildLevels(grid.Params{
		CenterPrice:    center,
		SpacingBase:    spacing,
		LevelCount:     levelCount,
		CapitalPerSide: orderSize * float64(levelCount),
		SpacingGrowth:  c.cfg.SpacingGrowth,
		SizeGrowth:     c.cfg.SizeGrowth,
		NotionalBuffer: c.cfg.NotionalBuffer,
	}, symbolRules)
}

func (c *Controller) spacingBounds() (float64, float64) {
	minSp, maxSp := c.cfg.MinSpacing, c.cfg.MaxSpacing
	if minSp <= 0 {
		minSp = 0.02
	}
	if maxSp <= 0 {
		maxSp = 0.08
	}
	return minSp, maxSp
}

// Stop cancels every resting order and retires the grid. Idempotent:
// a second call returns the final metrics again without touching the
// exchange.
func (c *Controller) Stop(ctx context.Context) (models.StopResult, error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return models.StopResult{
			FinalMetrics: c.deps.Tracker.Snapshot(c.clientID, c.symbol),
		}, nil
	}
	c.stopped = true
	c.mu.Unlock()

	c.stopOnce.Do(func() { close(c.stopCh) })
	select {
	case <-c.startedCh:
		// Monitor loop is (or was) live: wait for it to observe the
		// stop before touching orders, so a cycle never runs mid-stop.
		select {
		case <-c.doneCh:
		case <-ctx.Done():
			return models.StopResult{}, ctx.Err()
		}
	default:
	}

	cancelled := 0
	c.mu.Lock()
	g := c.grid
	c.mu.Unlock()
	if g != nil {
		cancelled = c.cancelOpenLevels(ctx, g)
		c.publishSnapshot(g)
	}
	c.setState(models.StateStopped)

	final := c.deps.Tracker.Snapshot(c.clientID, c.symbol)
	if err := c.deps.Repo.SaveMetrics(c.clientID, c.symbol, &final); err != nil {
		c.deps.Log.Errorw("final metrics persistence failed",
			"client", c.clientID, "symbol", c.symbol, "error", err)
	}
	if err := c.deps.Repo.DeleteGrid(c.clientID, c.symbol); err != nil {
		c.deps.Log.Errorw("grid snapshot cleanup failed",
			"client", c.clientID, "symbol", c.symbol, "error", err)
	}

	c.deps.Log.Infow("grid stopped",
		"client", c.clientID, "symbol", c.symbol, "cancelled", cancelled)
	return models.StopResult{CancelledOrders: cancelled, FinalMetrics: final}, nil
}

// publishSnapshot rebuilds the status snapshot from the grid. Must be
// called by the goroutine that owns the levels; the locked write is
// what makes the copy visible to Status readers.
func (c *Controller) publishSnapshot(g *models.GridConfig) {
	if g == nil {
		return
	}
	snap := gridSnapshot{
		valid:            true,
		centerPrice:      g.CenterPrice,
		gridSpacing:      g.GridSpacing,
		volatilityRegime: g.VolatilityRegime,
		sellsActive:      g.SellsActive,
		createdAt:        g.CreatedAt,
		lastResetAt:      g.LastResetAt,
		totalLevels:      len(g.Levels),
	}
	for i := range g.Levels {
		if g.Levels[i].Placed() {
			snap.activeOrders++
		}
		if g.Levels[i].Filled {
			snap.filledLevels++
		}
	}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
}

// Status returns a read-only snapshot, safe to poll from any
// goroutine. It never touches the live level slice: it reads the copy
// the monitor goroutine last published.
func (c *Controller) Status() models.GridStatus {
	c.mu.RLock()
	state := c.state
	price := c.lastPrice
	snap := c.snap
	c.mu.RUnlock()

	status := models.GridStatus{
		ClientID:     c.clientID,
		Symbol:       c.symbol,
		State:        state,
		CurrentPrice: price,
		Metrics:      c.deps.Tracker.Snapshot(c.clientID, c.symbol),
	}
	if snap.valid {
		status.CenterPrice = snap.centerPrice
		status.GridSpacing = snap.gridSpacing
		status.CompoundMultiplier = c.deps.Compound.Multiplier()
		status.VolatilityRegime = snap.volatilityRegime
		status.SellsActive = snap.sellsActive
		status.CreatedAt = snap.createdAt
		status.LastResetAt = snap.lastResetAt
		status.TotalLevels = snap.totalLevels
		status.ActiveOrders = snap.activeOrders
		status.FilledLevels = snap.filledLevels
	}
	return status
}

func (c *Controller) currentPrice(ctx context.Context) (float64, error) {
	if c.deps.Feed != nil {
		if price, ok := c.deps.Feed.Latest(); ok {
			return price, nil
		}
	}
	return c.deps.Exchange.GetCurrentPrice(ctx, c.symbol)
}

func (c *Controller) isStopRequested() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func (c *Controller) setState(s models.GridState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) persist() {
	c.mu.RLock()
	g := c.grid
	c.mu.RUnlock()
	if g == nil {
		return
	}
	if err := c.deps.Repo.SaveGrid(g); err != nil {
		c.deps.Log.Errorw("grid snapshot persistence failed",
			"client", c.clientID, "symbol", c.symbol, "error", err)
	}
	snapshot := c.deps.Tracker.Snapshot(c.clientID, c.symbol)
	if err := c.deps.Repo.SaveMetrics(c.clientID, c.symbol, &snapshot); err != nil {
		c.deps.Log.Errorw("metrics persistence failed",
			"client", c.clientID, "symbol", c.symbol, "error", err)
	}
}
