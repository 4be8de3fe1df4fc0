package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"binance-grid-engine-go/internal/logger"
)

const (
	mainnetStreamBase = "wss://stream.binance.com:9443/ws"
	testnetStreamBase = "wss://stream.testnet.binance.vision/ws"

	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
	reconnectBackoff = 5 * time.Second

	// A feed price older than this is treated as stale and ignored in
	// favor of the REST ticker.
	maxPriceAge = 30 * time.Second
)

type miniTickerEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

// PriceFeed keeps a live last price for one symbol from the miniTicker
// stream, reconnecting with backoff when the connection drops. Latest
// falls back gracefully: callers use the REST ticker when the feed has
// no fresh price.
type PriceFeed struct {
	symbol string
	url    string

	mu     sync.RWMutex
	last   float64
	lastAt time.Time
}

func NewPriceFeed(symbol string, testnet bool) *PriceFeed {
	base := mainnetStreamBase
	if testnet {
		base = testnetStreamBase
	}
	return &PriceFeed{
		symbol: symbol,
		url:    fmt.Sprintf("%s/%s@miniTicker", base, strings.ToLower(symbol)),
	}
}

// Latest returns the most recent streamed price, or ok=false when no
// fresh price is available.
func (f *PriceFeed) Latest() (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.last <= 0 || time.Since(f.lastAt) > maxPriceAge {
		return 0, false
	}
	return f.last, true
}

// Run blocks, maintaining the stream until the context ends. Meant to
// be launched in its own goroutine next to the grid monitor loop.
func (f *PriceFeed) Run(ctx context.Context) {
	for {
		if err := f.streamOnce(ctx); err != nil && ctx.Err() == nil {
			logger.S().Warnw("price stream dropped, reconnecting",
				"symbol", f.symbol, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectBackoff):
		}
	}
}

func (f *PriceFeed) streamOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-ctx.Done():
				// Force ReadMessage to return so streamOnce can exit.
				_ = conn.Close()
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		var ev miniTickerEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			logger.S().Debugw("unparseable stream message", "symbol", f.symbol, "error", err)
			continue
		}
		price, err := strconv.ParseFloat(ev.Close, 64)
		if err != nil || price <= 0 {
			continue
		}
		f.mu.Lock()
		f.last = price
		f.lastAt = time.Now()
		f.mu.Unlock()
	}
}
