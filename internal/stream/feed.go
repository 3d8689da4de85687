// Package stream maintains last-traded prices from the exchange's
// miniTicker websocket stream. The feed is the reference-price source for
// MARKET-order notional checks.
package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// miniTicker is one element of the !miniTicker@arr stream payload.
type miniTicker struct {
	Event  string          `json:"e"`
	Symbol string          `json:"s"`
	Close  decimal.Decimal `json:"c"`
}

// PriceFeed holds the most recent close price per symbol.
type PriceFeed struct {
	url               string
	reconnectInterval time.Duration
	maxReconnectWait  time.Duration
	logger            zerolog.Logger

	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// Option configures the feed.
type Option func(*PriceFeed)

// WithReconnectInterval sets the base reconnect interval; the wait doubles
// per consecutive failure up to max.
func WithReconnectInterval(base, max time.Duration) Option {
	return func(f *PriceFeed) {
		f.reconnectInterval = base
		f.maxReconnectWait = max
	}
}

// NewPriceFeed creates a feed for the given stream URL.
func NewPriceFeed(url string, logger zerolog.Logger, opts ...Option) *PriceFeed {
	f := &PriceFeed{
		url:               url,
		reconnectInterval: time.Second,
		maxReconnectWait:  30 * time.Second,
		logger:            logger.With().Str("component", "price_feed").Logger(),
		prices:            make(map[string]decimal.Decimal),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// LastPrice returns the most recent close price for symbol, if seen.
func (f *PriceFeed) LastPrice(symbol string) (decimal.Decimal, bool) {
	f.mu.RLock()
	p, ok := f.prices[symbol]
	f.mu.RUnlock()
	return p, ok
}

// Symbols returns the number of symbols with a known price.
func (f *PriceFeed) Symbols() int {
	f.mu.RLock()
	n := len(f.prices)
	f.mu.RUnlock()
	return n
}

// Run connects and consumes the stream until ctx is done, reconnecting with
// capped exponential backoff on failure. Prices accumulated before a
// disconnect stay readable while reconnecting.
func (f *PriceFeed) Run(ctx context.Context) {
	wait := f.reconnectInterval

	for {
		if ctx.Err() != nil {
			return
		}

		err := f.consume(ctx)
		if ctx.Err() != nil {
			return
		}

		f.logger.Warn().Err(err).Dur("retry_in", wait).Msg("Stream disconnected")

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		wait *= 2
		if wait > f.maxReconnectWait {
			wait = f.maxReconnectWait
		}
	}
}

func (f *PriceFeed) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.logger.Info().Str("url", f.url).Msg("Stream connected")

	// Close the connection when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.handleMessage(msg)
	}
}

func (f *PriceFeed) handleMessage(msg []byte) {
	var tickers []miniTicker
	if err := json.Unmarshal(msg, &tickers); err != nil {
		// Single-ticker streams deliver an object, not an array.
		var one miniTicker
		if err := json.Unmarshal(msg, &one); err != nil {
			f.logger.Debug().Err(err).Msg("Unparseable stream message")
			return
		}
		tickers = append(tickers, one)
	}

	f.mu.Lock()
	for _, tk := range tickers {
		if tk.Symbol == "" || !tk.Close.IsPositive() {
			continue
		}
		f.prices[tk.Symbol] = tk.Close
	}
	f.mu.Unlock()
}
