package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"binance-grid-engine-go/internal/allocator"
	"binance-grid-engine-go/internal/exchange"
	"binance-grid-engine-go/internal/metrics"
	"binance-grid-engine-go/internal/models"
	"binance-grid-engine-go/internal/persistence"
	"binance-grid-engine-go/internal/regime"
	"binance-grid-engine-go/internal/reset"
	"binance-grid-engine-go/internal/rules"
	"binance-grid-engine-go/internal/tradelog"
)

// Engine is the multi-grid facade the entrypoint and any UI layer talk
// to. It owns one Controller per (client, symbol) and the collaborators
// they share: exchange, rules cache, metrics tracker, trade sink and
// repository.
type Engine struct {
	cfg     models.EngineConfig
	ex      exchange.Exchange
	rules   *rules.Cache
	tracker *metrics.Tracker
	sink    tradelog.Sink
	repo    persistence.GridRepository
	log     *zap.SugaredLogger

	// Live price feeds are skipped in paper mode, where the simulated
	// exchange is the only price source.
	useFeeds bool

	mu    sync.Mutex
	grids map[string]*gridHandle
}

type gridHandle struct {
	ctrl   *Controller
	cancel context.CancelFunc
}

func New(cfg models.EngineConfig, ex exchange.Exchange, rulesCache *rules.Cache,
	tracker *metrics.Tracker, sink tradelog.Sink, repo persistence.GridRepository,
	log *zap.SugaredLogger) *Engine {
	return &Engine{
		cfg:      cfg,
		ex:       ex,
		rules:    rulesCache,
		tracker:  tracker,
		sink:     sink,
		repo:     repo,
		log:      log,
		useFeeds: !cfg.Paper,
		grids:    make(map[string]*gridHandle),
	}
}

// StartGrid builds and starts a grid for the client and symbol. Fails
// with a ConfigurationError on bad inputs or a duplicate grid, and
// loudly when not a single opening order could be placed.
func (e *Engine) StartGrid(ctx context.Context, clientID, symbol string, capital float64) (models.GridStartResult, error) {
	if clientID == "" || symbol == "" {
		return failResult(symbol, "client and symbol required"), configErrorf("client %q / symbol %q required", clientID, symbol)
	}
	if capital <= 0 {
		return failResult(symbol, "capital must be positive"), configErrorf("capital %.2f must be positive", capital)
	}

	key := metrics.Key(clientID, symbol)
	e.mu.Lock()
	if _, exists := e.grids[key]; exists {
		e.mu.Unlock()
		return failResult(symbol, "grid already running"), configErrorf("%s: %v", key, ErrGridExists)
	}
	e.mu.Unlock()

	// Counters survive restarts: seed the tracker from the repository.
	if persisted, err := e.repo.LoadMetrics(clientID, symbol); err != nil {
		e.log.Warnw("persisted metrics unavailable, starting fresh",
			"client", clientID, "symbol", symbol, "error", err)
	} else if persisted != nil {
		e.tracker.Restore(clientID, symbol, *persisted)
	}

	deps := Deps{
		Exchange: e.ex,
		Rules:    e.rules,
		Adjuster: e.newAdjuster(),
		Reset:    reset.NewSupervisor(e.cfg.Reset),
		Compound: allocator.NewCompoundTracker(e.cfg.Compound),
		Timer:    allocator.NewMarketTimer(),
		Tracker:  e.tracker,
		Sink:     e.sink,
		Repo:     e.repo,
		Log:      e.log,
	}

	gridCtx, cancel := context.WithCancel(context.Background())
	if e.useFeeds {
		feed := exchange.NewPriceFeed(symbol, e.cfg.IsTestnet)
		deps.Feed = feed
		go feed.Run(gridCtx)
	}

	ctrl := NewController(e.cfg, clientID, symbol, capital, deps)
	result, err := ctrl.Start(ctx)
	if err != nil {
		cancel()
		return result, err
	}

	e.mu.Lock()
	if _, exists := e.grids[key]; exists {
		// Lost a start race: roll our orders back.
		e.mu.Unlock()
		_, _ = ctrl.Stop(ctx)
		cancel()
		return failResult(symbol, "grid already running"), configErrorf("%s: %v", key, ErrGridExists)
	}
	e.grids[key] = &gridHandle{ctrl: ctrl, cancel: cancel}
	e.mu.Unlock()

	go ctrl.Run(gridCtx)
	return result, nil
}

func (e *Engine) newAdjuster() regime.RiskAdjuster {
	if e.cfg.Regime.AdaptIntervalSec < 0 {
		return regime.NoopAdjuster{}
	}
	interval := time.Duration(e.cfg.MonitorIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	return regime.New(e.cfg.Regime, interval)
}

// StopGrid stops the grid and returns its final metrics. Stopping a
// grid that is not running is a no-op that still reports whatever
// counters the tracker holds.
func (e *Engine) StopGrid(ctx context.Context, clientID, symbol string) (models.StopResult, error) {
	key := metrics.Key(clientID, symbol)
	e.mu.Lock()
	handle, ok := e.grids[key]
	e.mu.Unlock()
	if !ok {
		return models.StopResult{FinalMetrics: e.tracker.Snapshot(clientID, symbol)}, nil
	}

	// The handle stays registered until the cancels finish, so a
	// concurrent StartGrid for the same key is rejected instead of
	// placing orders while the old grid is still tearing down.
	result, err := handle.ctrl.Stop(ctx)
	handle.cancel()
	e.mu.Lock()
	delete(e.grids, key)
	e.mu.Unlock()
	return result, err
}

// GetGridStatus returns a read-only snapshot of one running grid.
func (e *Engine) GetGridStatus(clientID, symbol string) (models.GridStatus, error) {
	e.mu.Lock()
	handle, ok := e.grids[metrics.Key(clientID, symbol)]
	e.mu.Unlock()
	if !ok {
		return models.GridStatus{}, ErrGridNotFound
	}
	return handle.ctrl.Status(), nil
}

// Statuses snapshots every running grid, ordered by client and symbol.
func (e *Engine) Statuses() []models.GridStatus {
	e.mu.Lock()
	handles := make([]*gridHandle, 0, len(e.grids))
	for _, h := range e.grids {
		handles = append(handles, h)
	}
	e.mu.Unlock()

	out := make([]models.GridStatus, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.ctrl.Status())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClientID != out[j].ClientID {
			return out[i].ClientID < out[j].ClientID
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Shutdown stops every grid. Used on process exit.
func (e *Engine) Shutdown(ctx context.Context) {
	e.mu.Lock()
	keys := make([]string, 0, len(e.grids))
	handles := make(map[string]*gridHandle, len(e.grids))
	for k, h := range e.grids {
		keys = append(keys, k)
		handles[k] = h
	}
	e.grids = make(map[string]*gridHandle)
	e.mu.Unlock()

	sort.Strings(keys)
	for _, k := range keys {
		h := handles[k]
		if _, err := h.ctrl.Stop(ctx); err != nil {
			e.log.Errorw("grid stop failed during shutdown", "grid", k, "error", err)
		}
		h.cancel()
	}
}
