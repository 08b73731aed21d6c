// Package main запускает HTTP-сервер программы лояльности Base Loyalty.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/base-loyalty/internal/catalog"
	"github.com/mmeshcher/base-loyalty/internal/config"
	"github.com/mmeshcher/base-loyalty/internal/handler"
	"github.com/mmeshcher/base-loyalty/internal/leaderboard"
	"github.com/mmeshcher/base-loyalty/internal/logging"
	"github.com/mmeshcher/base-loyalty/internal/metrics"
	"github.com/mmeshcher/base-loyalty/internal/middleware"
	"github.com/mmeshcher/base-loyalty/internal/notify"
	"github.com/mmeshcher/base-loyalty/internal/repository"
	"github.com/mmeshcher/base-loyalty/internal/service"
	"github.com/mmeshcher/base-loyalty/internal/settlement"
)

const leaderboardPrefix = "loyalty:leaderboard"

func main() {
	bootstrap, _ := zap.NewProduction()

	cfg, err := config.Parse()
	if err != nil {
		bootstrap.Sugar().Fatalw("configuration error", "error", err.Error())
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		bootstrap.Sugar().Fatalw("logger initialization error", "error", err.Error())
	}
	_ = bootstrap.Sync()
	defer logger.Sync()

	sugar := logger.Sugar()

	if err := run(cfg, logger); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	sugar := logger.Sugar()

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	repo, err := newRepository(cfg.DatabaseURI, logger)
	if err != nil {
		return fmt.Errorf("database initialization: %w", err)
	}

	m := metrics.New()
	hub := notify.NewHub(logger)

	opts := service.Options{
		Logger:         logger,
		Publisher:      hub,
		Metrics:        m,
		SettleInterval: cfg.SettleInterval,
	}

	if cfg.RedisAddress != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		defer rdb.Close()

		board, err := leaderboard.New(rdb, leaderboardPrefix)
		if err != nil {
			return fmt.Errorf("leaderboard: %w", err)
		}
		opts.Leaderboard = board
	}

	if cfg.SettlementSystemAddress != "" {
		opts.Settlement = settlement.NewClient(cfg.SettlementSystemAddress)
	}

	svc := service.NewService(repo, cat, opts)
	defer svc.Close()

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelInit()
	if err := svc.Init(initCtx); err != nil {
		return fmt.Errorf("sync catalog: %w", err)
	}
	if err := svc.RebuildLeaderboard(initCtx); err != nil {
		sugar.Warnw("leaderboard cache unavailable", "error", err.Error())
	}

	secret := cfg.AuthSecret
	if secret == "" {
		secret = uuid.NewString()
		sugar.Warn("AUTH_SECRET is not set, tokens will not survive a restart")
	}
	authMiddleware := middleware.NewAuthMiddleware(secret)

	h := handler.NewHandler(svc, logger, authMiddleware, handler.Options{
		Stream:  hub,
		Metrics: m,
		Limiter: middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	})

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Разрешение ожидающих начислений
	g.Go(func() error {
		svc.StartSettlement(ctx)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting loyalty server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		hub.Close()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

func newRepository(dsn string, logger *zap.Logger) (service.Repository, error) {
	if dsn == "" {
		logger.Warn("DATABASE_URI is not set, using in-memory storage")
		return repository.NewMemoryRepository(), nil
	}
	return repository.NewPostgresRepository(dsn)
}
