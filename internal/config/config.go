package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the order gateway.
type Config struct {
	Server   ServerConfig
	Exchange ExchangeConfig
	Stream   StreamConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int
	Host            string
	APIKey          string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// ExchangeConfig holds exchange API configuration.
type ExchangeConfig struct {
	APIKey        string
	SecretKey     string
	BaseURL       string
	Timeout       time.Duration
	RecvWindow    int64
	FilterRefresh time.Duration
	SubmitOrders  bool
}

// StreamConfig holds market-data stream configuration.
type StreamConfig struct {
	URL               string
	Enabled           bool
	ReconnectInterval time.Duration
	MaxReconnectWait  time.Duration
}

// LoggingConfig holds logging configuration. File enables rotating file
// output via lumberjack; empty means stdout only.
type LoggingConfig struct {
	Level      string
	Format     string // json or console
	File       string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // days
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			APIKey:          getEnv("SERVER_API_KEY", ""),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", "30s"),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", "30s"),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", "60s"),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", "10s"),
		},
		Exchange: ExchangeConfig{
			APIKey:        getEnv("EXCHANGE_API_KEY", ""),
			SecretKey:     getEnv("EXCHANGE_SECRET_KEY", ""),
			BaseURL:       getEnv("EXCHANGE_BASE_URL", "https://api.binance.com"),
			Timeout:       getEnvAsDuration("EXCHANGE_TIMEOUT", "10s"),
			RecvWindow:    getEnvAsInt64("EXCHANGE_RECV_WINDOW", 5000),
			FilterRefresh: getEnvAsDuration("EXCHANGE_FILTER_REFRESH", "5m"),
			SubmitOrders:  getEnvAsBool("EXCHANGE_SUBMIT_ORDERS", false),
		},
		Stream: StreamConfig{
			URL:               getEnv("STREAM_URL", "wss://stream.binance.com:9443/ws/!miniTicker@arr"),
			Enabled:           getEnvAsBool("STREAM_ENABLED", true),
			ReconnectInterval: getEnvAsDuration("STREAM_RECONNECT_INTERVAL", "1s"),
			MaxReconnectWait:  getEnvAsDuration("STREAM_MAX_RECONNECT_WAIT", "30s"),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			File:       getEnv("LOG_FILE", ""),
			MaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
			MaxAge:     getEnvAsInt("LOG_MAX_AGE", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Exchange.APIKey == "" {
		return fmt.Errorf("EXCHANGE_API_KEY is required")
	}
	if c.Exchange.SecretKey == "" {
		return fmt.Errorf("EXCHANGE_SECRET_KEY is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Exchange.RecvWindow <= 0 {
		return fmt.Errorf("invalid recv window: %d", c.Exchange.RecvWindow)
	}
	if c.Exchange.FilterRefresh <= 0 {
		return fmt.Errorf("invalid filter refresh interval: %s", c.Exchange.FilterRefresh)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if int64Value, err := strconv.ParseInt(value, 10, 64); err == nil {
			return int64Value
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
