package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"binance-grid-engine-go/internal/config"
	"binance-grid-engine-go/internal/engine"
	"binance-grid-engine-go/internal/exchange"
	"binance-grid-engine-go/internal/logger"
	"binance-grid-engine-go/internal/metrics"
	"binance-grid-engine-go/internal/models"
	"binance-grid-engine-go/internal/persistence"
	"binance-grid-engine-go/internal/reporter"
	"binance-grid-engine-go/internal/rules"
	"binance-grid-engine-go/internal/tradelog"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	// Credentials come from .env or the process environment.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.S().Fatalw("config load failed", "path", *configPath, "error", err)
	}
	logger.InitLogger(cfg.Log)
	defer logger.Sync()

	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		logger.S().Fatalw("repository open failed", "path", cfg.DBPath, "error", err)
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ex exchange.Exchange
	if cfg.Paper {
		logger.S().Info("paper mode: trading against the simulated exchange")
		ex = buildPaperExchange(ctx, cfg)
	} else {
		apiKey := os.Getenv("BINANCE_API_KEY")
		secretKey := os.Getenv("BINANCE_SECRET_KEY")
		if apiKey == "" || secretKey == "" {
			logger.S().Fatal("BINANCE_API_KEY and BINANCE_SECRET_KEY must be set")
		}
		limiter := exchange.NewLimiter(cfg.RateLimitPerSec, cfg.RateBurst)
		ex = exchange.NewBinance(apiKey, secretKey, cfg.IsTestnet, limiter)
	}

	rulesCache := rules.NewCache(ex, time.Duration(cfg.RulesTTLMin)*time.Minute, cfg.RulesRejectionLimit)
	tracker := metrics.NewTracker()
	sink := tradelog.MultiSink{
		tradelog.NewZapSink(logger.S()),
		tradelog.NewRepoSink(repo, logger.S()),
	}
	eng := engine.New(*cfg, ex, rulesCache, tracker, sink, repo, logger.S())

	started := 0
	for _, seed := range cfg.Grids {
		result, err := eng.StartGrid(ctx, seed.ClientID, seed.Symbol, seed.Capital)
		if err != nil {
			logger.S().Errorw("grid start failed",
				"client", seed.ClientID, "symbol", seed.Symbol, "reason", result.Reason, "error", err)
			continue
		}
		logger.S().Infow("grid started",
			"client", seed.ClientID, "symbol", seed.Symbol,
			"orders", result.OrdersPlaced, "sells_deferred", result.SellsDeferred)
		started++
	}
	if started == 0 {
		logger.S().Fatal("no grid could be started, exiting")
	}

	go statusLoop(ctx, eng, tracker)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.S().Infow("shutting down", "signal", sig)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	eng.Shutdown(shutdownCtx)

	reporter.RenderMetrics(os.Stdout, tracker.All())
}

func statusLoop(ctx context.Context, eng *engine.Engine, tracker *metrics.Tracker) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reporter.RenderStatuses(os.Stdout, eng.Statuses())
		}
	}
}

// buildPaperExchange wires a simulated market for every configured
// seed and lets each price random-walk so fills actually happen.
func buildPaperExchange(ctx context.Context, cfg *models.EngineConfig) *exchange.Sim {
	sim := exchange.NewSim()
	quotes := make(map[string]float64)
	for _, seed := range cfg.Grids {
		base, quote := splitSymbol(seed.Symbol)
		sim.RegisterSymbol(seed.Symbol, base, quote, &models.SymbolRules{
			Symbol:            seed.Symbol,
			TickSize:          0.01,
			StepSize:          0.001,
			MinNotional:       10,
			PricePrecision:    2,
			QuantityPrecision: 3,
		})
		price := seed.PaperPrice
		if price <= 0 {
			price = 100
		}
		sim.SetPrice(seed.Symbol, price)
		quotes[quote] += seed.Capital * 2

		go walkPrice(ctx, sim, seed.Symbol, price)
	}
	for asset, amount := range quotes {
		sim.SetBalance(asset, amount)
	}
	return sim
}

func walkPrice(ctx context.Context, sim *exchange.Sim, symbol string, start float64) {
	price := start
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			price *= 1 + rand.NormFloat64()*0.002
			if price < start*0.1 {
				price = start * 0.1
			}
			sim.SetPrice(symbol, price)
		}
	}
}

func splitSymbol(symbol string) (base, quote string) {
	for _, q := range []string{"USDT", "FDUSD", "USDC", "TUSD", "BUSD", "BTC", "ETH", "BNB"} {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return symbol[:len(symbol)-len(q)], q
		}
	}
	return symbol, "USDT"
}
