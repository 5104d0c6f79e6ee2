package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"marketwatch/configs"
	"marketwatch/internal/adapter/redisfeed"
	"marketwatch/internal/adapter/telegram"
	"marketwatch/internal/cache"
	"marketwatch/internal/database"
	delivery "marketwatch/internal/delivery/http"
	"marketwatch/internal/domain"
	"marketwatch/internal/infra"
	"marketwatch/internal/middleware"
	"marketwatch/internal/repository"
	"marketwatch/internal/service"
	"marketwatch/internal/usecase"
)

const cacheMaxItems = 10_000

func main() {
	cfg, err := configs.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("MarketWatch stopped with error", zap.Error(err))
	}
}

func newLogger(cfg *configs.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(cfg *configs.Config, logger *zap.Logger) error {
	ctx := context.Background()

	policy := repository.RetryPolicy{
		MaxAttempts:    cfg.Database.MaxRetries,
		AttemptTimeout: cfg.Database.TxTimeout,
	}

	checks := map[string]delivery.HealthCheck{}

	// Initialize stores
	var (
		store domain.LedgerStore
		users domain.UserRepository
	)
	switch cfg.Database.Store {
	case configs.StoreMemory:
		logger.Warn("Using in-memory store; data is lost on restart")
		store = repository.NewMemoryLedgerStore(policy)
		users = repository.NewMemoryUserRepository()
	default:
		db, err := infra.NewDatabase(ctx, cfg.Database.URL, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.RunMigrations(ctx, db, logger); err != nil {
			return err
		}

		store = repository.NewLedgerRepository(db, policy, logger)
		users = repository.NewUserRepository(db)
		checks["database"] = pingDatabase(db)
	}

	// Live snapshot feed (optional)
	var (
		publisher domain.SnapshotPublisher
		feed      delivery.SnapshotFeed
	)
	if cfg.Redis.URL != "" {
		client, err := infra.NewRedis(ctx, cfg.Redis.URL, logger)
		if err != nil {
			return err
		}
		f := redisfeed.NewFeed(client, logger)
		defer f.Close()

		publisher = f
		feed = f
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	} else {
		logger.Warn("REDIS_URL not set; live portfolio updates are disabled")
	}

	// Caches
	quoteCache, err := cache.New(cacheMaxItems, cfg.Market.QuoteCacheTTL)
	if err != nil {
		return err
	}
	defer quoteCache.Close()
	rateCache, err := cache.New(cacheMaxItems, cfg.Market.RateCacheTTL)
	if err != nil {
		return err
	}
	defer rateCache.Close()
	historyCache, err := cache.New(cacheMaxItems, cfg.Market.HistoryCacheTTL)
	if err != nil {
		return err
	}
	defer historyCache.Close()

	// Remote sources
	marketService := service.NewMarketPriceService(cfg.Market.FinnhubURL, cfg.Market.FinnhubAPIKey, quoteCache, logger)
	historyService := service.NewAlphaVantageService(cfg.Market.AlphaVantageURL, cfg.Market.AlphaVantageAPIKey, historyCache, logger)
	currencyService := service.NewCurrencyService(cfg.Market.FrankfurterURL, rateCache, logger)

	var notifier domain.AlertNotifier
	telegramService := telegram.NewNotificationService(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIURL, cfg.Telegram.Timezone, logger)
	if telegramService.Enabled() {
		notifier = telegramService
	} else {
		logger.Warn("Telegram not configured; price alerts are reset without notification")
	}

	// Use cases
	ledgerService := usecase.NewLedgerService(store, currencyService, publisher, logger)
	accountService := usecase.NewAccountService(store, users, currencyService, publisher, logger)
	alertService := service.NewPriceAlertService(store, marketService, ledgerService, notifier, logger)

	// Alert sweep scheduler
	scheduler := infra.NewScheduler(alertService, infra.SchedulerConfig{
		Schedule:     cfg.Scheduler.AlertSweepSchedule,
		InitialDelay: cfg.Scheduler.AlertSweepInitialDelay,
		RetryDelay:   cfg.Scheduler.AlertSweepRetryDelay,
	}, logger)
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Stop()

	// HTTP
	auth := middleware.NewJWTAuth(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	delivery.SetupRoutes(e, &delivery.RouterConfig{
		Auth:             auth,
		Logger:           logger,
		AuthHandler:      delivery.NewAuthHandler(users, auth, cfg.IsProduction(), logger),
		UserHandler:      delivery.NewUserHandler(users, accountService),
		PortfolioHandler: delivery.NewPortfolioHandler(ledgerService, marketService),
		WalletHandler:    delivery.NewWalletHandler(ledgerService, accountService),
		MarketHandler:    delivery.NewMarketHandler(marketService, historyService),
		StreamHandler:    delivery.NewStreamHandler(feed, ledgerService, logger),
		AdminHandler:     delivery.NewAdminHandler(store, alertService, checks, logger),
	})

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     e,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays unset: the portfolio stream is long-lived
		IdleTimeout: 60 * time.Second,
	}

	logger.Info("MarketWatch starting",
		zap.String("addr", addr),
		zap.String("env", cfg.Server.Env),
		zap.String("store", cfg.Database.Store),
		zap.Bool("live_updates", feed != nil),
		zap.String("alert_schedule", cfg.Scheduler.AlertSweepSchedule),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-quit:
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}

func pingDatabase(db *pgxpool.Pool) delivery.HealthCheck {
	return func(ctx context.Context) error {
		return db.Ping(ctx)
	}
}
