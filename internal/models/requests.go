package models

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ordergate/internal/rules"
)

// OrderRequest is the inbound body for order validation and placement.
// Price and Quantity travel as strings to preserve exact decimal values.
type OrderRequest struct {
	Symbol   string `json:"symbol" binding:"required"`
	Side     string `json:"side" binding:"required"`
	Type     string `json:"type" binding:"required"`
	Price    string `json:"price,omitempty"`
	Quantity string `json:"quantity" binding:"required"`

	// Round requests truncation of price and quantity onto the symbol's
	// grids before validation.
	Round bool `json:"round,omitempty"`
}

// ToOrder parses and validates the request into a rules.Order.
func (r *OrderRequest) ToOrder() (rules.Order, error) {
	var order rules.Order

	if r.Side != rules.SideBuy && r.Side != rules.SideSell {
		return order, fmt.Errorf("invalid side: %s", r.Side)
	}
	if r.Type != rules.TypeMarket && r.Type != rules.TypeLimit {
		return order, fmt.Errorf("invalid order type: %s", r.Type)
	}

	quantity, err := decimal.NewFromString(r.Quantity)
	if err != nil {
		return order, fmt.Errorf("invalid quantity %q: %w", r.Quantity, err)
	}
	if !quantity.IsPositive() {
		return order, fmt.Errorf("quantity must be positive: %s", r.Quantity)
	}

	var price decimal.Decimal
	if r.Type == rules.TypeLimit {
		if r.Price == "" {
			return order, fmt.Errorf("price is required for LIMIT orders")
		}
		price, err = decimal.NewFromString(r.Price)
		if err != nil {
			return order, fmt.Errorf("invalid price %q: %w", r.Price, err)
		}
		if !price.IsPositive() {
			return order, fmt.Errorf("price must be positive: %s", r.Price)
		}
	}

	return rules.Order{
		Symbol:   r.Symbol,
		Side:     r.Side,
		Type:     r.Type,
		Price:    price,
		Quantity: quantity,
	}, nil
}

// RoundRequest asks for price and/or quantity rounding for a symbol.
type RoundRequest struct {
	Symbol   string `json:"symbol" binding:"required"`
	Type     string `json:"type,omitempty"`
	Price    string `json:"price,omitempty"`
	Quantity string `json:"quantity,omitempty"`
}

// Validate checks that the request names at least one value to round and
// that supplied values parse.
func (r *RoundRequest) Validate() error {
	if r.Price == "" && r.Quantity == "" {
		return fmt.Errorf("at least one of price or quantity is required")
	}
	if r.Type != "" && r.Type != rules.TypeMarket && r.Type != rules.TypeLimit {
		return fmt.Errorf("invalid order type: %s", r.Type)
	}
	if r.Price != "" {
		if _, err := decimal.NewFromString(r.Price); err != nil {
			return fmt.Errorf("invalid price %q: %w", r.Price, err)
		}
	}
	if r.Quantity != "" {
		if _, err := decimal.NewFromString(r.Quantity); err != nil {
			return fmt.Errorf("invalid quantity %q: %w", r.Quantity, err)
		}
	}
	return nil
}
