package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordergate/internal/exchange"
	"ordergate/internal/metrics"
	"ordergate/internal/models"
	"ordergate/internal/rules"
)

type fakePlacer struct {
	gotParams map[string]string
	ack       *exchange.OrderAck
	err       error
}

func (f *fakePlacer) PlaceOrder(_ context.Context, params map[string]string) (*exchange.OrderAck, error) {
	f.gotParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.ack, nil
}

type fakePrices map[string]decimal.Decimal

func (f fakePrices) LastPrice(symbol string) (decimal.Decimal, bool) {
	p, ok := f[symbol]
	return p, ok
}

type fakeAvgPrices struct {
	price decimal.Decimal
	err   error
	calls int
}

func (f *fakeAvgPrices) GetAvgPrice(_ context.Context, _ string) (*exchange.AvgPrice, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &exchange.AvgPrice{Mins: 5, Price: f.price}, nil
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if deps.Registry == nil {
		reg, err := rules.NewRegistry(testRuleSets())
		require.NoError(t, err)
		deps.Registry = reg
	}

	srv, err := NewServer(Config{Port: 8080, Version: "test"}, deps, zerolog.Nop())
	require.NoError(t, err)
	return srv
}

func doJSON(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, Deps{})

	w := doJSON(srv, "GET", "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, 2, resp.Symbols)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHandleValidate(t *testing.T) {
	srv := newTestServer(t, Deps{Collector: metrics.NewCollector()})

	t.Run("compliant order", func(t *testing.T) {
		w := doJSON(srv, "POST", "/api/orders/validate",
			`{"symbol": "BTCUSDT", "side": "BUY", "type": "LIMIT", "price": "50000.00", "quantity": "0.001"}`)

		require.Equal(t, http.StatusOK, w.Code)

		var resp models.ValidateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Valid)
	})

	t.Run("rule violation returns 422 with the rule", func(t *testing.T) {
		w := doJSON(srv, "POST", "/api/orders/validate",
			`{"symbol": "BTCUSDT", "side": "BUY", "type": "LIMIT", "price": "50000.123", "quantity": "0.001"}`)

		require.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var resp models.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "RULE_VIOLATION", resp.Error.Code)
		assert.Equal(t, rules.KindPrice, resp.Error.Rule)
		assert.Contains(t, resp.Error.Message, "price precision")
	})

	t.Run("unknown symbol returns 404", func(t *testing.T) {
		w := doJSON(srv, "POST", "/api/orders/validate",
			`{"symbol": "DOGEUSDT", "side": "BUY", "type": "LIMIT", "price": "1", "quantity": "100"}`)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed body returns 400", func(t *testing.T) {
		w := doJSON(srv, "POST", "/api/orders/validate", `{"symbol":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("semantically invalid order returns 400", func(t *testing.T) {
		w := doJSON(srv, "POST", "/api/orders/validate",
			`{"symbol": "BTCUSDT", "side": "BUY", "type": "LIMIT", "quantity": "0.001"}`)

		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp models.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "INVALID_ORDER", resp.Error.Code)
	})
}

func TestHandleValidate_MarketNotional(t *testing.T) {
	t.Run("feed price is the notional basis", func(t *testing.T) {
		srv := newTestServer(t, Deps{
			Prices: fakePrices{"BTCUSDT": decimal.NewFromInt(50000)},
		})

		// 0.0001 BTC at the 50000 feed price is 5 USDT, under the minimum.
		w := doJSON(srv, "POST", "/api/orders/validate",
			`{"symbol": "BTCUSDT", "side": "BUY", "type": "MARKET", "quantity": "0.0001"}`)

		require.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var resp models.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, rules.KindMinNotional, resp.Error.Rule)
	})

	t.Run("avg price fills in when the feed has no symbol yet", func(t *testing.T) {
		avg := &fakeAvgPrices{price: decimal.NewFromInt(50000)}
		srv := newTestServer(t, Deps{Prices: fakePrices{}, AvgPrices: avg})

		w := doJSON(srv, "POST", "/api/orders/validate",
			`{"symbol": "BTCUSDT", "side": "BUY", "type": "MARKET", "quantity": "0.0001"}`)

		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, 1, avg.calls)

		var resp models.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, rules.KindMinNotional, resp.Error.Rule)
	})

	t.Run("feed price wins over avg price", func(t *testing.T) {
		avg := &fakeAvgPrices{price: decimal.NewFromInt(1)}
		srv := newTestServer(t, Deps{
			Prices:    fakePrices{"BTCUSDT": decimal.NewFromInt(50000)},
			AvgPrices: avg,
		})

		w := doJSON(srv, "POST", "/api/orders/validate",
			`{"symbol": "BTCUSDT", "side": "BUY", "type": "MARKET", "quantity": "0.0001"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, 0, avg.calls)
	})

	t.Run("failed avg price lookup skips the notional check", func(t *testing.T) {
		avg := &fakeAvgPrices{err: errors.New("exchange unavailable")}
		srv := newTestServer(t, Deps{Prices: fakePrices{}, AvgPrices: avg})

		w := doJSON(srv, "POST", "/api/orders/validate",
			`{"symbol": "BTCUSDT", "side": "BUY", "type": "MARKET", "quantity": "0.0001"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, avg.calls)
	})

	t.Run("no price source skips the notional check", func(t *testing.T) {
		srv := newTestServer(t, Deps{Prices: fakePrices{}})

		w := doJSON(srv, "POST", "/api/orders/validate",
			`{"symbol": "BTCUSDT", "side": "BUY", "type": "MARKET", "quantity": "0.0001"}`)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestHandleRound(t *testing.T) {
	srv := newTestServer(t, Deps{})

	t.Run("rounds price and quantity", func(t *testing.T) {
		w := doJSON(srv, "POST", "/api/orders/round",
			`{"symbol": "BTCUSDT", "price": "50000.12345", "quantity": "0.12345678"}`)

		require.Equal(t, http.StatusOK, w.Code)

		var resp models.RoundResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "50000.12", resp.Price)
		assert.Equal(t, "0.12345", resp.Quantity)
	})

	t.Run("unknown symbol returns 404 instead of zero", func(t *testing.T) {
		w := doJSON(srv, "POST", "/api/orders/round",
			`{"symbol": "DOGEUSDT", "price": "1.23"}`)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("empty round request returns 400", func(t *testing.T) {
		w := doJSON(srv, "POST", "/api/orders/round", `{"symbol": "BTCUSDT"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleFilters(t *testing.T) {
	srv := newTestServer(t, Deps{})

	t.Run("lists filters in evaluation order", func(t *testing.T) {
		w := doJSON(srv, "GET", "/api/symbols/BTCUSDT/filters", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.FiltersResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Filters, 3)
		assert.Equal(t, rules.KindPrice, resp.Filters[0].Kind)
		assert.Equal(t, rules.KindLotSize, resp.Filters[1].Kind)
		assert.Equal(t, rules.KindMinNotional, resp.Filters[2].Kind)
	})

	t.Run("unknown symbol returns 404", func(t *testing.T) {
		w := doJSON(srv, "GET", "/api/symbols/DOGEUSDT/filters", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandlePlaceOrder(t *testing.T) {
	t.Run("without a placer the order is validated only", func(t *testing.T) {
		srv := newTestServer(t, Deps{})

		w := doJSON(srv, "POST", "/api/orders",
			`{"symbol": "BTCUSDT", "side": "BUY", "type": "LIMIT", "price": "50000.00", "quantity": "0.001"}`)

		require.Equal(t, http.StatusOK, w.Code)

		var resp models.OrderResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "VALIDATED", resp.Status)
	})

	t.Run("submits via the placer", func(t *testing.T) {
		placer := &fakePlacer{ack: &exchange.OrderAck{OrderID: 42, Status: "NEW"}}
		srv := newTestServer(t, Deps{Placer: placer, Collector: metrics.NewCollector()})

		w := doJSON(srv, "POST", "/api/orders",
			`{"symbol": "BTCUSDT", "side": "BUY", "type": "LIMIT", "price": "50000.00", "quantity": "0.001"}`)

		require.Equal(t, http.StatusCreated, w.Code)

		var resp models.OrderResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(42), resp.OrderID)
		assert.Equal(t, "NEW", resp.Status)

		assert.Equal(t, "BTCUSDT", placer.gotParams["symbol"])
		assert.Equal(t, "BUY", placer.gotParams["side"])
		assert.Equal(t, "50000", placer.gotParams["price"])
		assert.Equal(t, "GTC", placer.gotParams["timeInForce"])
	})

	t.Run("round=true truncates before validating", func(t *testing.T) {
		placer := &fakePlacer{ack: &exchange.OrderAck{OrderID: 7, Status: "NEW"}}
		srv := newTestServer(t, Deps{Placer: placer})

		w := doJSON(srv, "POST", "/api/orders",
			`{"symbol": "BTCUSDT", "side": "BUY", "type": "LIMIT", "price": "50000.12345", "quantity": "0.12345678", "round": true}`)

		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "50000.12", placer.gotParams["price"])
		assert.Equal(t, "0.12345", placer.gotParams["quantity"])
	})

	t.Run("off-grid order without rounding is rejected, not corrected", func(t *testing.T) {
		srv := newTestServer(t, Deps{})

		w := doJSON(srv, "POST", "/api/orders",
			`{"symbol": "BTCUSDT", "side": "BUY", "type": "LIMIT", "price": "50000.12345", "quantity": "0.001"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("exchange rejection maps to 502", func(t *testing.T) {
		placer := &fakePlacer{err: &exchange.APIError{HTTPStatus: 400, Code: -1013, Message: "Filter failure"}}
		srv := newTestServer(t, Deps{Placer: placer})

		w := doJSON(srv, "POST", "/api/orders",
			`{"symbol": "BTCUSDT", "side": "BUY", "type": "LIMIT", "price": "50000.00", "quantity": "0.001"}`)

		require.Equal(t, http.StatusBadGateway, w.Code)

		var resp models.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "EXCHANGE_REJECTED", resp.Error.Code)
	})
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	reg, err := rules.NewRegistry(testRuleSets())
	require.NoError(t, err)

	srv, err := NewServer(Config{Port: 8080, APIKey: "secret-key"}, Deps{Registry: reg}, zerolog.Nop())
	require.NoError(t, err)

	t.Run("missing key is rejected", func(t *testing.T) {
		w := doJSON(srv, "GET", "/api/symbols/BTCUSDT/filters", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong key is rejected", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/symbols/BTCUSDT/filters", nil)
		req.Header.Set("X-API-Key", "wrong")
		w := httptest.NewRecorder()
		srv.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("correct key passes", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/symbols/BTCUSDT/filters", nil)
		req.Header.Set("X-API-Key", "secret-key")
		w := httptest.NewRecorder()
		srv.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("health needs no key", func(t *testing.T) {
		w := doJSON(srv, "GET", "/health", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func testRuleSets() []rules.SymbolRules {
	return []rules.SymbolRules{
		{
			Symbol:     "BTCUSDT",
			BaseAsset:  "BTC",
			QuoteAsset: "USDT",
			Filters: []rules.Filter{
				&rules.PriceFilter{
					MinPrice: decimal.NewFromFloat(0.01),
					MaxPrice: decimal.NewFromInt(1000000),
					TickSize: decimal.NewFromFloat(0.01),
				},
				&rules.LotSizeFilter{
					MinQty:   decimal.NewFromFloat(0.0001),
					MaxQty:   decimal.NewFromInt(9000),
					StepSize: decimal.NewFromFloat(0.00001),
				},
				&rules.MinNotionalFilter{
					MinNotional:   decimal.NewFromInt(10),
					ApplyToMarket: true,
					AvgPriceMins:  5,
				},
			},
		},
		{
			Symbol:     "ETHUSDT",
			BaseAsset:  "ETH",
			QuoteAsset: "USDT",
			Filters: []rules.Filter{
				&rules.PriceFilter{
					MinPrice: decimal.NewFromFloat(0.01),
					MaxPrice: decimal.NewFromInt(100000),
					TickSize: decimal.NewFromFloat(0.01),
				},
				&rules.LotSizeFilter{
					MinQty:   decimal.NewFromFloat(0.001),
					MaxQty:   decimal.NewFromInt(10000),
					StepSize: decimal.NewFromFloat(0.001),
				},
			},
		},
	}
}
