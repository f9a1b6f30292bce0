package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tanamarket/tana/internal/cache"
	"github.com/tanamarket/tana/internal/chapa"
	"github.com/tanamarket/tana/internal/config"
	"github.com/tanamarket/tana/internal/db"
	"github.com/tanamarket/tana/internal/email"
	"github.com/tanamarket/tana/internal/handlers"
	"github.com/tanamarket/tana/internal/pricing"
	"github.com/tanamarket/tana/internal/services"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	CacheProvider cache.Provider
	Handlers      *handlers.Handlers
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(startupCtx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	policy, err := pricing.LoadPolicy(cfg.PricingFile)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to load pricing policy: %w", err)
	}

	emailProvider, err := email.NewProvider(email.Config{
		Provider: cfg.EmailProvider,
		APIKey:   cfg.ResendAPIKey,
		From:     cfg.EmailFrom,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize email provider: %w", err)
	}

	orderService, err := services.NewOrderService(services.OrderServiceConfig{
		Orders:          db.NewOrderStore(database),
		Products:        db.NewProductStore(database),
		Carts:           db.NewCartStore(database),
		Activity:        db.NewActivityStore(database),
		Gateway:         chapa.NewClient(cfg.ChapaBaseURL, cfg.ChapaSecretKey),
		Pricer:          pricing.NewPricer(policy),
		Cache:           cacheProvider,
		Emails:          emailProvider,
		Logger:          logger,
		CallbackBaseURL: cfg.CallbackBaseURL,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize order service: %w", err)
	}

	h, err := handlers.New(handlers.Dependencies{
		Config:       cfg,
		DB:           database,
		OrderService: orderService,
		Logger:       logger,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		DB:            database,
		CacheProvider: cacheProvider,
		Handlers:      h,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	format := strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	case "text", "":
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level: cfg.LogLevel,
		}))
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel}))
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
