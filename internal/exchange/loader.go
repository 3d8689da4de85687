package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ordergate/internal/rules"
)

// Loader fetches exchange metadata and keeps the filter registry current.
// Each refresh rebuilds the full per-symbol rule list and swaps it into the
// registry in one Replace call.
type Loader struct {
	client   *Client
	registry *rules.Registry
	interval time.Duration
	logger   zerolog.Logger
}

// NewLoader creates a loader refreshing registry every interval.
func NewLoader(client *Client, registry *rules.Registry, interval time.Duration, logger zerolog.Logger) *Loader {
	return &Loader{
		client:   client,
		registry: registry,
		interval: interval,
		logger:   logger.With().Str("component", "filter_loader").Logger(),
	}
}

// Load fetches exchange info once and replaces the registry contents.
func (l *Loader) Load(ctx context.Context) error {
	info, err := l.client.GetExchangeInfo(ctx)
	if err != nil {
		return fmt.Errorf("load exchange info: %w", err)
	}

	sets := make([]rules.SymbolRules, 0, len(info.Symbols))
	for _, sym := range info.Symbols {
		if sym.Status != "TRADING" {
			continue
		}
		sets = append(sets, symbolRules(sym))
	}

	if err := l.registry.Replace(sets); err != nil {
		return fmt.Errorf("replace filter registry: %w", err)
	}

	l.logger.Info().Int("symbols", len(sets)).Msg("Filter registry refreshed")
	return nil
}

// Run refreshes the registry on the configured interval until ctx is done.
// Refresh failures are logged and the previous registry contents stay live.
func (l *Loader) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Load(ctx); err != nil {
				l.logger.Error().Err(err).Msg("Filter refresh failed")
			}
		}
	}
}

// symbolRules converts wire filters into the registry's filter types.
// Unrecognized filter types are ignored.
func symbolRules(sym SymbolInfo) rules.SymbolRules {
	s := rules.SymbolRules{
		Symbol:     sym.Symbol,
		BaseAsset:  sym.BaseAsset,
		QuoteAsset: sym.QuoteAsset,
	}

	for _, f := range sym.Filters {
		switch f.FilterType {
		case rules.KindPrice:
			s.Filters = append(s.Filters, &rules.PriceFilter{
				MinPrice: f.MinPrice,
				MaxPrice: f.MaxPrice,
				TickSize: f.TickSize,
			})
		case rules.KindLotSize:
			s.Filters = append(s.Filters, &rules.LotSizeFilter{
				MinQty:   f.MinQty,
				MaxQty:   f.MaxQty,
				StepSize: f.StepSize,
			})
		case rules.KindMarketLotSize:
			s.Filters = append(s.Filters, &rules.MarketLotSizeFilter{
				MinQty:   f.MinQty,
				MaxQty:   f.MaxQty,
				StepSize: f.StepSize,
			})
		case rules.KindMinNotional, "NOTIONAL":
			s.Filters = append(s.Filters, &rules.MinNotionalFilter{
				MinNotional:   f.MinNotional,
				ApplyToMarket: f.ApplyToMarket || f.ApplyMinToMarket,
				AvgPriceMins:  f.AvgPriceMins,
			})
		}
	}
	return s
}
