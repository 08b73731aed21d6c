// Package config содержит логику чтения конфигурации сервиса Base Loyalty.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress              string        `env:"RUN_ADDRESS"`
	DatabaseURI             string        `env:"DATABASE_URI"`
	SettlementSystemAddress string        `env:"SETTLEMENT_SYSTEM_ADDRESS"`
	RedisAddress            string        `env:"REDIS_ADDRESS"`
	CatalogPath             string        `env:"CATALOG_PATH"`
	AuthSecret              string        `env:"AUTH_SECRET"`
	LogFile                 string        `env:"LOG_FILE"`
	LogLevel                string        `env:"LOG_LEVEL"`
	RateLimitRPS            float64       `env:"RATE_LIMIT_RPS"`
	RateLimitBurst          int           `env:"RATE_LIMIT_BURST"`
	SettleInterval          time.Duration `env:"SETTLE_INTERVAL"`
}

const (
	defaultRunAddress     = "localhost:8080"
	defaultLogLevel       = "info"
	defaultRateLimitRPS   = 20
	defaultRateLimitBurst = 40
	defaultSettleInterval = 10 * time.Second
)

// Parse считывает конфигурацию из файла .env (если он есть), флагов командной
// строки и переменных окружения. Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory storage when empty")
	flag.StringVar(&cfg.SettlementSystemAddress, "r", "", "settlement system address")
	flag.StringVar(&cfg.RedisAddress, "c", "", "redis address for the leaderboard")
	flag.StringVar(&cfg.CatalogPath, "f", "", "path to catalog YAML, embedded catalog when empty")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for signing auth tokens")
	flag.StringVar(&cfg.LogFile, "l", "", "path to rotated log file")
	flag.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level")
	flag.Float64Var(&cfg.RateLimitRPS, "rps", defaultRateLimitRPS, "per-client request rate limit, 0 disables")
	flag.IntVar(&cfg.RateLimitBurst, "burst", defaultRateLimitBurst, "per-client request burst")
	flag.DurationVar(&cfg.SettleInterval, "settle-interval", defaultSettleInterval, "pending settlement poll interval")

	flag.Parse()

	// env.Parse перезаписывает только заданные переменные, поэтому значения
	// флагов остаются для остальных полей.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.SettleInterval <= 0 {
		cfg.SettleInterval = defaultSettleInterval
	}

	return cfg, nil
}
