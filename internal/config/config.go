package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ServiceName    = "pos-core"
	ServiceVersion = "0.1.0"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string

	MySQLDSN       string
	MySQLMaxConns  int
	RedisAddr      string
	KafkaBrokers   []string
	KafkaTopic     string
	OtelEndpoint   string
	OtelAuthHeader string

	TaxRate         decimal.Decimal
	LockWait        time.Duration
	LockTTL         time.Duration
	MaxRetries      uint64
	RetryBackoff    time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
}

// Load reads the configuration from environment variables. Unset variables
// fall back to defaults that run the server fully in memory.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:       getEnv("GRPC_ADDR", ":50051"),
		MySQLDSN:       os.Getenv("MYSQL_DSN"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		KafkaBrokers:   splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "pos-events"),
		OtelEndpoint:   os.Getenv("OTEL_ENDPOINT"),
		OtelAuthHeader: os.Getenv("OTEL_AUTH_HEADER"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.MySQLMaxConns, err = strconv.Atoi(getEnv("MYSQL_MAX_CONNS", "50")); err != nil {
		return nil, fmt.Errorf("MYSQL_MAX_CONNS: %w", err)
	}
	if cfg.TaxRate, err = decimal.NewFromString(getEnv("TAX_RATE", "0")); err != nil {
		return nil, fmt.Errorf("TAX_RATE: %w", err)
	}
	if cfg.TaxRate.IsNegative() {
		return nil, fmt.Errorf("TAX_RATE must not be negative, got %s", cfg.TaxRate)
	}
	if cfg.MaxRetries, err = strconv.ParseUint(getEnv("MAX_RETRIES", "5"), 10, 32); err != nil {
		return nil, fmt.Errorf("MAX_RETRIES: %w", err)
	}

	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"LOCK_WAIT", "2s", &cfg.LockWait},
		{"LOCK_TTL", "10s", &cfg.LockTTL},
		{"RETRY_BACKOFF", "10ms", &cfg.RetryBackoff},
		{"SHUTDOWN_TIMEOUT", "10s", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.fallback))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %s", d.key, v)
		}
		*d.dst = v
	}

	if cfg.LockTTL < cfg.LockWait {
		return nil, fmt.Errorf("LOCK_TTL (%s) must not be shorter than LOCK_WAIT (%s)", cfg.LockTTL, cfg.LockWait)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
