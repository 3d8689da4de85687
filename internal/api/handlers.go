package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ordergate/internal/exchange"
	"ordergate/internal/models"
	"ordergate/internal/rules"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:  "ok",
		Version: s.config.Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
		Symbols: len(s.deps.Registry.Symbols()),
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.Header("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	c.String(http.StatusOK, s.deps.Collector.Export())
}

// handleValidate checks an order against its symbol's trading rules and
// reports the violated rule, if any. It never adjusts the order.
func (s *Server) handleValidate(c *gin.Context) {
	var req models.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewErrorResponse(
			"INVALID_REQUEST", err.Error(), c.GetString(requestIDKey)))
		return
	}

	order, err := req.ToOrder()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewErrorResponse(
			"INVALID_ORDER", err.Error(), c.GetString(requestIDKey)))
		return
	}

	s.attachRefPrice(c, &order)

	if !s.validateOrder(c, order) {
		return
	}

	c.JSON(http.StatusOK, models.ValidateResponse{Valid: true, Symbol: order.Symbol})
}

// handlePlaceOrder validates, optionally rounds, signs, and submits an
// order. Without a configured placer the order is validated and acknowledged
// but not transmitted.
func (s *Server) handlePlaceOrder(c *gin.Context) {
	var req models.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewErrorResponse(
			"INVALID_REQUEST", err.Error(), c.GetString(requestIDKey)))
		return
	}

	order, err := req.ToOrder()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewErrorResponse(
			"INVALID_ORDER", err.Error(), c.GetString(requestIDKey)))
		return
	}

	if req.Round {
		if !s.deps.Registry.Has(order.Symbol) {
			s.unknownSymbol(c, order.Symbol)
			return
		}
		if order.Type == rules.TypeLimit {
			order.Price = s.deps.Registry.RoundPrice(order.Symbol, order.Price)
		}
		order.Quantity = s.deps.Registry.RoundQuantityForType(order.Symbol, order.Type, order.Quantity)
	}

	s.attachRefPrice(c, &order)

	if !s.validateOrder(c, order) {
		return
	}

	resp := models.OrderResponse{
		Symbol:   order.Symbol,
		Side:     order.Side,
		Type:     order.Type,
		Quantity: order.Quantity.String(),
	}
	if order.Type == rules.TypeLimit {
		resp.Price = order.Price.String()
	}

	if s.deps.Placer == nil {
		resp.Status = "VALIDATED"
		c.JSON(http.StatusOK, resp)
		return
	}

	ack, err := s.deps.Placer.PlaceOrder(c.Request.Context(), orderParams(order))
	if err != nil {
		var apiErr *exchange.APIError
		if errors.As(err, &apiErr) {
			s.recordOrderStatus("rejected")
			c.JSON(http.StatusBadGateway, models.NewErrorResponse(
				"EXCHANGE_REJECTED", apiErr.Message, c.GetString(requestIDKey)))
			return
		}
		s.recordOrderStatus("failed")
		c.JSON(http.StatusBadGateway, models.NewErrorResponse(
			"EXCHANGE_UNAVAILABLE", err.Error(), c.GetString(requestIDKey)))
		return
	}

	s.recordOrderStatus("submitted")
	resp.Status = ack.Status
	resp.OrderID = ack.OrderID
	c.JSON(http.StatusCreated, resp)
}

// handleRound returns the nearest compliant price and quantity for a
// symbol, truncating toward zero onto the exchange grids.
func (s *Server) handleRound(c *gin.Context) {
	var req models.RoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewErrorResponse(
			"INVALID_REQUEST", err.Error(), c.GetString(requestIDKey)))
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, models.NewErrorResponse(
			"INVALID_REQUEST", err.Error(), c.GetString(requestIDKey)))
		return
	}

	// Resolve the unknown-symbol ambiguity here: a zero result from the
	// registry below is always a genuine rounding result.
	if !s.deps.Registry.Has(req.Symbol) {
		s.unknownSymbol(c, req.Symbol)
		return
	}

	orderType := req.Type
	if orderType == "" {
		orderType = rules.TypeLimit
	}

	resp := models.RoundResponse{Symbol: req.Symbol}
	if req.Price != "" {
		price, _ := decimal.NewFromString(req.Price)
		resp.Price = s.deps.Registry.RoundPrice(req.Symbol, price).String()
	}
	if req.Quantity != "" {
		qty, _ := decimal.NewFromString(req.Quantity)
		resp.Quantity = s.deps.Registry.RoundQuantityForType(req.Symbol, orderType, qty).String()
	}

	c.JSON(http.StatusOK, resp)
}

// handleFilters lists a symbol's trading rules in evaluation order.
func (s *Server) handleFilters(c *gin.Context) {
	symbol := c.Param("symbol")

	filters, err := s.deps.Registry.GetSymbolFilters(symbol)
	if err != nil {
		s.unknownSymbol(c, symbol)
		return
	}

	resp := models.FiltersResponse{Symbol: symbol}
	for _, f := range filters {
		resp.Filters = append(resp.Filters, models.FilterInfo{Kind: f.Kind(), Detail: f})
	}
	c.JSON(http.StatusOK, resp)
}

// validateOrder runs the registry check and writes the error reply on
// failure. Returns true when the order is compliant.
func (s *Server) validateOrder(c *gin.Context, order rules.Order) bool {
	err := s.deps.Registry.ValidateOrder(order)
	if err == nil {
		s.recordValidation("")
		return true
	}

	if errors.Is(err, rules.ErrUnknownSymbol) {
		s.unknownSymbol(c, order.Symbol)
		return false
	}

	var ruleErr *rules.RuleError
	if errors.As(err, &ruleErr) {
		s.recordValidation(ruleErr.Rule)
		c.JSON(http.StatusUnprocessableEntity, models.NewRuleErrorResponse(
			ruleErr.Rule, ruleErr.Msg, c.GetString(requestIDKey)))
		return false
	}

	c.JSON(http.StatusInternalServerError, models.NewErrorResponse(
		"INTERNAL", err.Error(), c.GetString(requestIDKey)))
	return false
}

// attachRefPrice supplies the notional reference price for MARKET orders.
// The live feed is the primary source; when it has not seen the symbol yet
// the exchange's average-price endpoint fills in. A failed REST lookup
// leaves the reference price unset, which skips the notional check.
func (s *Server) attachRefPrice(c *gin.Context, order *rules.Order) {
	if order.Type != rules.TypeMarket {
		return
	}

	if s.deps.Prices != nil {
		if price, ok := s.deps.Prices.LastPrice(order.Symbol); ok {
			order.RefPrice = price
			return
		}
	}

	if s.deps.AvgPrices == nil {
		return
	}
	avg, err := s.deps.AvgPrices.GetAvgPrice(c.Request.Context(), order.Symbol)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", order.Symbol).Msg("Average price lookup failed")
		return
	}
	order.RefPrice = avg.Price
}

func (s *Server) unknownSymbol(c *gin.Context, symbol string) {
	c.JSON(http.StatusNotFound, models.NewErrorResponse(
		"UNKNOWN_SYMBOL", "unknown symbol: "+symbol, c.GetString(requestIDKey)))
}

func (s *Server) recordValidation(rule string) {
	if s.deps.Collector != nil {
		s.deps.Collector.RecordValidation(rule)
	}
}

func (s *Server) recordOrderStatus(status string) {
	if s.deps.Collector != nil {
		s.deps.Collector.RecordOrderStatus(status)
	}
}

// orderParams flattens a validated order into exchange request parameters.
// Stamping and signing happen in the exchange client immediately before
// transmission.
func orderParams(order rules.Order) map[string]string {
	params := map[string]string{
		"symbol":   order.Symbol,
		"side":     order.Side,
		"type":     order.Type,
		"quantity": order.Quantity.String(),
	}
	if order.Type == rules.TypeLimit {
		params["price"] = order.Price.String()
		params["timeInForce"] = "GTC"
	}
	return params
}
