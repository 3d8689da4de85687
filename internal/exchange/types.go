package exchange

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ExchangeInfo is the /api/v3/exchangeInfo payload, reduced to the fields
// the gateway consumes.
type ExchangeInfo struct {
	Timezone   string       `json:"timezone"`
	ServerTime int64        `json:"serverTime"`
	Symbols    []SymbolInfo `json:"symbols"`
}

// SymbolInfo describes one tradable symbol and its filter list.
type SymbolInfo struct {
	Symbol     string      `json:"symbol"`
	Status     string      `json:"status"`
	BaseAsset  string      `json:"baseAsset"`
	QuoteAsset string      `json:"quoteAsset"`
	Filters    []RawFilter `json:"filters"`
}

// RawFilter is the wire shape of a symbol filter. The exchange sends every
// numeric field as a string; decimal.Decimal decodes them exactly. Fields
// not applicable to a filterType are simply absent.
type RawFilter struct {
	FilterType    string          `json:"filterType"`
	MinPrice      decimal.Decimal `json:"minPrice"`
	MaxPrice      decimal.Decimal `json:"maxPrice"`
	TickSize      decimal.Decimal `json:"tickSize"`
	MinQty        decimal.Decimal `json:"minQty"`
	MaxQty        decimal.Decimal `json:"maxQty"`
	StepSize      decimal.Decimal `json:"stepSize"`
	MinNotional decimal.Decimal `json:"minNotional"`
	// MIN_NOTIONAL spells the market flag applyToMarket; its NOTIONAL
	// successor spells it applyMinToMarket. Both are decoded.
	ApplyToMarket    bool `json:"applyToMarket"`
	ApplyMinToMarket bool `json:"applyMinToMarket"`
	AvgPriceMins     int  `json:"avgPriceMins"`
}

// AvgPrice is the /api/v3/avgPrice payload.
type AvgPrice struct {
	Mins  int             `json:"mins"`
	Price decimal.Decimal `json:"price"`
}

// OrderAck is the exchange's acknowledgement of a placed order.
type OrderAck struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	TransactTime  int64  `json:"transactTime"`
	Status        string `json:"status"`
}

// APIError is a non-2xx reply from the exchange.
type APIError struct {
	HTTPStatus int
	Code       int64  `json:"code"`
	Message    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange API error %d (http %d): %s", e.Code, e.HTTPStatus, e.Message)
}
