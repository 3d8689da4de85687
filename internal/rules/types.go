package rules

import (
	"github.com/shopspring/decimal"
)

// Order sides and types as the exchange spells them.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	TypeMarket = "MARKET"
	TypeLimit  = "LIMIT"
)

// Filter kinds, matching the exchange's filterType identifiers.
const (
	KindPrice         = "PRICE_FILTER"
	KindLotSize       = "LOT_SIZE"
	KindMarketLotSize = "MARKET_LOT_SIZE"
	KindMinNotional   = "MIN_NOTIONAL"
)

// Order is a candidate order checked against a symbol's trading rules.
// RefPrice carries a reference price (e.g. a recent average) used only for
// the notional check on MARKET orders, which have no price of their own.
type Order struct {
	Symbol   string
	Side     string // BUY or SELL
	Type     string // MARKET or LIMIT
	Price    decimal.Decimal
	Quantity decimal.Decimal
	RefPrice decimal.Decimal
}

// Filter is a single exchange trading rule.
type Filter interface {
	Check(order Order) error
	Kind() string
}

// SymbolRules holds the ordered trading rules for one symbol.
type SymbolRules struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	Filters    []Filter
}

// PriceFilter bounds the order price and pins it to the tick grid.
type PriceFilter struct {
	MinPrice decimal.Decimal `json:"minPrice"`
	MaxPrice decimal.Decimal `json:"maxPrice"`
	TickSize decimal.Decimal `json:"tickSize"`
}

// LotSizeFilter bounds the quantity of LIMIT orders and pins it to the
// step grid.
type LotSizeFilter struct {
	MinQty   decimal.Decimal `json:"minQty"`
	MaxQty   decimal.Decimal `json:"maxQty"`
	StepSize decimal.Decimal `json:"stepSize"`
}

// MarketLotSizeFilter is the LotSizeFilter counterpart for MARKET orders.
type MarketLotSizeFilter struct {
	MinQty   decimal.Decimal `json:"minQty"`
	MaxQty   decimal.Decimal `json:"maxQty"`
	StepSize decimal.Decimal `json:"stepSize"`
}

// MinNotionalFilter requires price x quantity to reach a minimum value.
type MinNotionalFilter struct {
	MinNotional   decimal.Decimal `json:"minNotional"`
	ApplyToMarket bool            `json:"applyToMarket"`
	AvgPriceMins  int             `json:"avgPriceMins"`
}

var (
	_ Filter = (*PriceFilter)(nil)
	_ Filter = (*LotSizeFilter)(nil)
	_ Filter = (*MarketLotSizeFilter)(nil)
	_ Filter = (*MinNotionalFilter)(nil)
)
