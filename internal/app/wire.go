package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"

	"github.com/salesdash/salesdash/internal/dashboard"
	dashboardhttp "github.com/salesdash/salesdash/internal/dashboard/http"
	"github.com/salesdash/salesdash/internal/export"
	"github.com/salesdash/salesdash/internal/goals"
	"github.com/salesdash/salesdash/internal/goals/sheets"
	"github.com/salesdash/salesdash/internal/ledger"
	"github.com/salesdash/salesdash/internal/pending"
	"github.com/salesdash/salesdash/internal/platform/cache"
	"github.com/salesdash/salesdash/internal/sales"
)

// Components are the long-lived dependencies shared by the server, the worker
// and the CLI.
type Components struct {
	Ledger  *ledger.OdooClient
	Service *dashboard.Service
	Redis   *redis.Client

	cfg    *Config
	logger *slog.Logger
}

// Wire builds the ledger client, the sources, the goal store and the dashboard
// service. An unreachable Redis disables the cache instead of failing.
func Wire(ctx context.Context, cfg *Config, logger *slog.Logger, reg prometheus.Registerer) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := ledger.NewOdooClient(cfg.Ledger(), logger, ledger.NewMetrics(reg))
	if err != nil {
		return nil, fmt.Errorf("app: ledger: %w", err)
	}
	eligibility, err := cfg.Eligibility()
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	assembler := sales.NewAssembler(client, logger, sales.Config{
		Eligibility:    eligibility,
		DefaultPerPage: cfg.DefaultPerPage,
		MaxLines:       cfg.MaxLines,
	})
	reconciler := pending.NewReconciler(client, logger, pending.Config{
		ExcludedCategoryIDs: cfg.ExcludedCategoryIDs,
		DefaultPerPage:      cfg.DefaultPerPage,
		MaxLines:            cfg.MaxLines,
	})

	store, err := goalStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis unavailable, response cache disabled", slog.Any("error", err))
		redisClient = nil
	}

	svc := dashboard.NewService(assembler, reconciler, store,
		dashboard.NewCache(redisClient, cfg.CacheTTL),
		dashboard.NewMetrics(reg),
		logger,
		dashboard.Config{
			ExpiringRoutes:    cfg.ExpiringRouteIDs,
			ExcludedLineNames: cfg.ExcludedLineNames,
		})

	return &Components{Ledger: client, Service: svc, Redis: redisClient, cfg: cfg, logger: logger}, nil
}

func goalStore(ctx context.Context, cfg *Config, logger *slog.Logger) (goals.Store, error) {
	if !cfg.UseSheets() {
		logger.Warn("GOOGLE_SHEET_ID not set, goals are kept in memory")
		return goals.NewMemoryStore(), nil
	}
	tabs, err := sheets.Connect(ctx, cfg.GoogleSheetID, cfg.SheetsCredentials(), logger)
	if err != nil {
		return nil, fmt.Errorf("app: goal store: %w", err)
	}
	return sheets.NewStore(tabs, logger), nil
}

// Formatter returns the export number formatter for the configured currency.
func (c *Components) Formatter() export.Formatter {
	return export.NewFormatter(language.AmericanEnglish, c.cfg.CurrencySymbol)
}

// DashboardHandler builds the HTTP handler over the service.
func (c *Components) DashboardHandler() *dashboardhttp.Handler {
	return dashboardhttp.NewHandler(c.logger, c.Service, dashboardhttp.Options{
		RequestTimeout:   c.cfg.AppRequestTimeout,
		ExportsPerMinute: c.cfg.ExportsPerMinute,
		Formatter:        c.Formatter(),
	})
}

// Close releases the Redis connection.
func (c *Components) Close() error {
	if c == nil || c.Redis == nil {
		return nil
	}
	return c.Redis.Close()
}
