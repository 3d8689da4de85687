package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ordergate/internal/exchange"
	"ordergate/internal/metrics"
	"ordergate/internal/rules"
)

// PriceSource supplies reference prices for MARKET-order notional checks.
type PriceSource interface {
	LastPrice(symbol string) (decimal.Decimal, bool)
}

// AvgPriceSource fetches a reference price over REST. It backs up the
// stream when the feed has not seen the symbol yet.
type AvgPriceSource interface {
	GetAvgPrice(ctx context.Context, symbol string) (*exchange.AvgPrice, error)
}

// OrderPlacer submits validated orders to the exchange.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, params map[string]string) (*exchange.OrderAck, error)
}

// Config contains API server configuration.
type Config struct {
	Port         int
	Host         string
	APIKey       string
	Version      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	LogLevel     string
}

// Deps are the server's collaborators. Only Registry is required: without a
// placer the order endpoint validates and acknowledges but does not submit;
// without any price source MARKET notional checks are skipped. AvgPrices is
// consulted only when Prices has no price for the symbol.
type Deps struct {
	Registry  *rules.Registry
	Placer    OrderPlacer
	Prices    PriceSource
	AvgPrices AvgPriceSource
	Collector *metrics.Collector
}

// Server is the gateway's HTTP surface.
type Server struct {
	config     Config
	deps       Deps
	router     *gin.Engine
	httpServer *http.Server
	logger     zerolog.Logger
	startTime  time.Time
}

// NewServer creates the API server and wires routes and middleware.
func NewServer(config Config, deps Deps, logger zerolog.Logger) (*Server, error) {
	if config.Port <= 0 || config.Port > 65535 {
		return nil, fmt.Errorf("invalid port number: %d", config.Port)
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("filter registry is required")
	}
	setConfigDefaults(&config)

	if config.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	s := &Server{
		config:    config,
		deps:      deps,
		router:    router,
		logger:    logger.With().Str("component", "api").Logger(),
		startTime: time.Now(),
	}

	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware(s.logger))
	router.Use(gin.Recovery())
	if deps.Collector != nil {
		router.Use(metrics.Middleware(deps.Collector))
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s, nil
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.httpServer.Addr).
		Str("version", s.config.Version).
		Msg("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown drains the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.deps.Collector != nil {
		s.router.GET("/metrics", s.handleMetrics)
	}

	api := s.router.Group("/api")
	if s.config.APIKey != "" {
		api.Use(AuthMiddleware(s.config.APIKey))
	}

	api.POST("/orders", s.handlePlaceOrder)
	api.POST("/orders/validate", s.handleValidate)
	api.POST("/orders/round", s.handleRound)
	api.GET("/symbols/:symbol/filters", s.handleFilters)
}

func setConfigDefaults(config *Config) {
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 30 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 30 * time.Second
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = 60 * time.Second
	}
	if config.Version == "" {
		config.Version = "dev"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
}
