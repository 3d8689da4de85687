package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// filterRank fixes the evaluation order: price bounds and tick first, then
// quantity bounds and step, then the notional computation last. Keeping the
// order stable makes rejection messages reproducible for upstream retry
// logic and runs the cheap bounds checks before the multiplication.
var filterRank = map[string]int{
	KindPrice:         0,
	KindLotSize:       1,
	KindMarketLotSize: 1,
	KindMinNotional:   2,
}

// Registry answers compliance questions for registered symbols. Lookups take
// a read lock only around the map access; the filter sets themselves are
// immutable after registration, so validation and rounding run lock-free on
// already-fetched data. Reloads swap the whole map via Replace, never mutate
// a stored set in place.
type Registry struct {
	mu      sync.RWMutex
	symbols map[string]*SymbolRules
}

// NewRegistry builds a registry from per-symbol rule sets. It rejects sets
// whose bounds are inconsistent (min above max) rather than registering a
// partially usable symbol.
func NewRegistry(sets []SymbolRules) (*Registry, error) {
	r := &Registry{symbols: make(map[string]*SymbolRules)}
	if err := r.Replace(sets); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace swaps the entire symbol table. Concurrent readers keep whatever
// set they already looked up; they never observe a half-updated table.
func (r *Registry) Replace(sets []SymbolRules) error {
	next := make(map[string]*SymbolRules, len(sets))
	for i := range sets {
		s := sets[i]
		if err := checkConsistency(&s); err != nil {
			return fmt.Errorf("symbol %s: %w", s.Symbol, err)
		}
		s.Filters = append([]Filter(nil), s.Filters...)
		sort.SliceStable(s.Filters, func(a, b int) bool {
			return filterRank[s.Filters[a].Kind()] < filterRank[s.Filters[b].Kind()]
		})
		next[s.Symbol] = &s
	}

	r.mu.Lock()
	r.symbols = next
	r.mu.Unlock()
	return nil
}

func checkConsistency(s *SymbolRules) error {
	for _, f := range s.Filters {
		switch pf := f.(type) {
		case *PriceFilter:
			if pf.MinPrice.GreaterThan(pf.MaxPrice) {
				return fmt.Errorf("min price %s greater than max price %s",
					pf.MinPrice, pf.MaxPrice)
			}
		case *LotSizeFilter:
			if pf.MinQty.GreaterThan(pf.MaxQty) {
				return fmt.Errorf("min qty %s greater than max qty %s",
					pf.MinQty, pf.MaxQty)
			}
		case *MarketLotSizeFilter:
			if pf.MinQty.GreaterThan(pf.MaxQty) {
				return fmt.Errorf("min market qty %s greater than max market qty %s",
					pf.MinQty, pf.MaxQty)
			}
		}
	}
	return nil
}

func (r *Registry) lookup(symbol string) (*SymbolRules, bool) {
	r.mu.RLock()
	s, ok := r.symbols[symbol]
	r.mu.RUnlock()
	return s, ok
}

// Has reports whether rules are registered for symbol.
func (r *Registry) Has(symbol string) bool {
	_, ok := r.lookup(symbol)
	return ok
}

// Symbols returns the registered symbol names.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.symbols))
	for s := range r.symbols {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// GetSymbolFilters returns the full filter set for a symbol, in evaluation
// order, or ErrUnknownSymbol.
func (r *Registry) GetSymbolFilters(symbol string) ([]Filter, error) {
	s, ok := r.lookup(symbol)
	if !ok {
		return nil, fmt.Errorf("symbol not found: %s: %w", symbol, ErrUnknownSymbol)
	}
	return s.Filters, nil
}

// ValidateOrder checks an order against its symbol's filters in evaluation
// order and returns the first violation. It never adjusts the order; rounding
// is an explicit, separate request.
func (r *Registry) ValidateOrder(order Order) error {
	s, ok := r.lookup(order.Symbol)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, order.Symbol)
	}

	for _, f := range s.Filters {
		if err := f.Check(order); err != nil {
			return err
		}
	}
	return nil
}

// RoundPrice truncates price down to the symbol's tick grid, then clamps the
// truncated value into [MinPrice, MaxPrice]. Returns decimal.Zero for an
// unknown symbol; callers that need to tell "unknown" from "rounds to zero"
// check Has or GetSymbolFilters first.
func (r *Registry) RoundPrice(symbol string, price decimal.Decimal) decimal.Decimal {
	s, ok := r.lookup(symbol)
	if !ok {
		return decimal.Zero
	}

	for _, f := range s.Filters {
		if pf, ok := f.(*PriceFilter); ok {
			return truncateClamp(price, pf.TickSize, pf.MinPrice, pf.MaxPrice)
		}
	}
	return price
}

// RoundQuantity truncates quantity down to the symbol's LIMIT step grid and
// clamps into the lot bounds. Unknown symbols round to decimal.Zero.
func (r *Registry) RoundQuantity(symbol string, quantity decimal.Decimal) decimal.Decimal {
	return r.RoundQuantityForType(symbol, TypeLimit, quantity)
}

// RoundQuantityForType is RoundQuantity with the order type made explicit:
// MARKET orders use the MARKET_LOT_SIZE step when the symbol defines one,
// falling back to LOT_SIZE otherwise.
func (r *Registry) RoundQuantityForType(symbol, orderType string, quantity decimal.Decimal) decimal.Decimal {
	s, ok := r.lookup(symbol)
	if !ok {
		return decimal.Zero
	}

	var lot *LotSizeFilter
	for _, f := range s.Filters {
		switch lf := f.(type) {
		case *MarketLotSizeFilter:
			if orderType == TypeMarket {
				return truncateClamp(quantity, lf.StepSize, lf.MinQty, lf.MaxQty)
			}
		case *LotSizeFilter:
			lot = lf
		}
	}
	if lot != nil {
		return truncateClamp(quantity, lot.StepSize, lot.MinQty, lot.MaxQty)
	}
	return quantity
}

// truncateClamp truncates value toward zero onto a multiple of step and
// clamps the already-truncated result into [min, max]. Clamping after
// truncation avoids double rounding; min and max are exchange-supplied grid
// values.
func truncateClamp(value, step, min, max decimal.Decimal) decimal.Decimal {
	out := value
	if step.IsPositive() {
		out = value.Div(step).Truncate(0).Mul(step)
	}
	if out.LessThan(min) {
		return min
	}
	if out.GreaterThan(max) {
		return max
	}
	return out
}

// Check implements Filter for PriceFilter. MARKET orders carry no price and
// pass unchecked.
func (f *PriceFilter) Check(order Order) error {
	if order.Type == TypeMarket {
		return nil
	}

	if order.Price.LessThan(f.MinPrice) {
		return ruleErrorf(KindPrice, "price below minimum: %s < %s", order.Price, f.MinPrice)
	}
	if order.Price.GreaterThan(f.MaxPrice) {
		return ruleErrorf(KindPrice, "price above maximum: %s > %s", order.Price, f.MaxPrice)
	}

	if f.TickSize.IsPositive() && !order.Price.Mod(f.TickSize).IsZero() {
		return ruleErrorf(KindPrice, "price precision does not match tick size %s: %s",
			f.TickSize, order.Price)
	}
	return nil
}

func (f *PriceFilter) Kind() string { return KindPrice }

// Check implements Filter for LotSizeFilter; it governs LIMIT orders only.
func (f *LotSizeFilter) Check(order Order) error {
	if order.Type == TypeMarket {
		return nil
	}
	return checkLot(KindLotSize, order.Quantity, f.MinQty, f.MaxQty, f.StepSize)
}

func (f *LotSizeFilter) Kind() string { return KindLotSize }

// Check implements Filter for MarketLotSizeFilter; MARKET orders only.
func (f *MarketLotSizeFilter) Check(order Order) error {
	if order.Type != TypeMarket {
		return nil
	}
	return checkLot(KindMarketLotSize, order.Quantity, f.MinQty, f.MaxQty, f.StepSize)
}

func (f *MarketLotSizeFilter) Kind() string { return KindMarketLotSize }

func checkLot(kind string, qty, min, max, step decimal.Decimal) error {
	if qty.LessThan(min) {
		return ruleErrorf(kind, "quantity below minimum: %s < %s", qty, min)
	}
	if qty.GreaterThan(max) {
		return ruleErrorf(kind, "quantity above maximum: %s > %s", qty, max)
	}
	if step.IsPositive() && !qty.Mod(step).IsZero() {
		return ruleErrorf(kind, "quantity precision does not match step size %s: %s", step, qty)
	}
	return nil
}

// Check implements Filter for MinNotionalFilter. LIMIT orders use their own
// price; MARKET orders use the caller-supplied reference price when the
// filter applies to market orders, and are skipped when no reference price
// is available (there is no notional basis without one).
func (f *MinNotionalFilter) Check(order Order) error {
	price := order.Price
	if order.Type == TypeMarket {
		if !f.ApplyToMarket {
			return nil
		}
		price = order.RefPrice
		if !price.IsPositive() {
			return nil
		}
	}

	notional := price.Mul(order.Quantity)
	if notional.LessThan(f.MinNotional) {
		return ruleErrorf(KindMinNotional, "order value below minimum notional: %s < %s",
			notional, f.MinNotional)
	}
	return nil
}

func (f *MinNotionalFilter) Kind() string { return KindMinNotional }
