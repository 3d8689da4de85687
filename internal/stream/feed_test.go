package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestPriceFeed_ConsumesTickerArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		payload := `[
			{"e": "24hrMiniTicker", "s": "BTCUSDT", "c": "50123.45"},
			{"e": "24hrMiniTicker", "s": "ETHUSDT", "c": "3001.20"}
		]`
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))

		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	feed := NewPriceFeed(wsURL(srv), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)

	require.Eventually(t, func() bool {
		_, ok := feed.LastPrice("BTCUSDT")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	price, ok := feed.LastPrice("BTCUSDT")
	require.True(t, ok)
	assert.True(t, decimal.NewFromFloat(50123.45).Equal(price))

	price, ok = feed.LastPrice("ETHUSDT")
	require.True(t, ok)
	assert.True(t, decimal.NewFromFloat(3001.20).Equal(price))

	_, ok = feed.LastPrice("DOGEUSDT")
	assert.False(t, ok)
	assert.Equal(t, 2, feed.Symbols())
}

func TestPriceFeed_SingleTickerObject(t *testing.T) {
	feed := NewPriceFeed("ws://unused", zerolog.Nop())

	feed.handleMessage([]byte(`{"e": "24hrMiniTicker", "s": "BTCUSDT", "c": "49999.99"}`))

	price, ok := feed.LastPrice("BTCUSDT")
	require.True(t, ok)
	assert.True(t, decimal.NewFromFloat(49999.99).Equal(price))
}

func TestPriceFeed_IgnoresBadMessages(t *testing.T) {
	feed := NewPriceFeed("ws://unused", zerolog.Nop())

	feed.handleMessage([]byte(`not json`))
	feed.handleMessage([]byte(`{"e": "24hrMiniTicker", "s": "", "c": "1"}`))
	feed.handleMessage([]byte(`[{"e": "24hrMiniTicker", "s": "BTCUSDT", "c": "0"}]`))

	assert.Equal(t, 0, feed.Symbols())
}

func TestPriceFeed_Reconnects(t *testing.T) {
	var mu sync.Mutex
	connections := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)

		mu.Lock()
		connections++
		n := connections
		mu.Unlock()

		if n == 1 {
			// Drop the first connection immediately to force a reconnect.
			conn.Close()
			return
		}

		defer conn.Close()
		require.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`[{"e": "24hrMiniTicker", "s": "BTCUSDT", "c": "50000"}]`)))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	feed := NewPriceFeed(wsURL(srv), zerolog.Nop(),
		WithReconnectInterval(10*time.Millisecond, 50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)

	require.Eventually(t, func() bool {
		_, ok := feed.LastPrice("BTCUSDT")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.GreaterOrEqual(t, connections, 2)
	mu.Unlock()
}

func TestPriceFeed_StopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	feed := NewPriceFeed(wsURL(srv), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		feed.Run(ctx)
		close(stopped)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop after context cancellation")
	}
}
