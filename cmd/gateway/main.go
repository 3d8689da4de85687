package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"ordergate/internal/api"
	"ordergate/internal/config"
	"ordergate/internal/exchange"
	"ordergate/internal/metrics"
	"ordergate/internal/rules"
	"ordergate/internal/sign"
	"ordergate/internal/stream"
)

const version = "1.0.0"

func main() {
	// Optional .env for local runs; real deployments set the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Int("port", cfg.Server.Port).
		Str("exchange", cfg.Exchange.BaseURL).
		Bool("submit_orders", cfg.Exchange.SubmitOrders).
		Msg("Starting order gateway")

	collector := metrics.NewCollector()
	signer := sign.NewWithRecvWindow(cfg.Exchange.APIKey, cfg.Exchange.SecretKey, cfg.Exchange.RecvWindow)
	client := exchange.NewClient(cfg.Exchange.BaseURL, signer,
		exchange.WithTimeout(cfg.Exchange.Timeout),
		exchange.WithSignObserver(collector),
	)

	registry, err := rules.NewRegistry(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create filter registry")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loader := exchange.NewLoader(client, registry, cfg.Exchange.FilterRefresh, logger)
	if err := loader.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load exchange trading rules")
	}
	go loader.Run(ctx)

	var prices api.PriceSource
	if cfg.Stream.Enabled {
		feed := stream.NewPriceFeed(cfg.Stream.URL, logger,
			stream.WithReconnectInterval(cfg.Stream.ReconnectInterval, cfg.Stream.MaxReconnectWait))
		go feed.Run(ctx)
		prices = feed
	}

	var placer api.OrderPlacer
	if cfg.Exchange.SubmitOrders {
		placer = client
	}

	server, err := api.NewServer(api.Config{
		Port:         cfg.Server.Port,
		Host:         cfg.Server.Host,
		APIKey:       cfg.Server.APIKey,
		Version:      version,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		LogLevel:     cfg.Logging.Level,
	}, api.Deps{
		Registry:  registry,
		Placer:    placer,
		Prices:    prices,
		AvgPrices: client,
		Collector: collector,
	}, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create API server")
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			logger.Error().Err(err).Msg("Server error")
		}
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown server gracefully")
		}
		cancel()

		logger.Info().Msg("Shutdown complete")
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	switch cfg.Level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		}
	} else if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	return zerolog.New(out).With().Timestamp().Logger()
}
