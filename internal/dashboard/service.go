// Package dashboard answers the dashboard queries: given filters, it returns
// aggregated rows and KPIs, caching responses in Redis.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/salesdash/salesdash/internal/aggregate"
	"github.com/salesdash/salesdash/internal/classify"
	"github.com/salesdash/salesdash/internal/goals"
	"github.com/salesdash/salesdash/internal/pending"
	"github.com/salesdash/salesdash/internal/sales"
	"github.com/salesdash/salesdash/internal/shared"
)

// Notices shown to users when data could not be loaded.
const (
	NoticeLedgerOffline    = "No se pudo conectar con Odoo. Se muestran datos vacíos; intente nuevamente en unos minutos."
	NoticeGoalsUnavailable = "No se pudieron leer las metas desde Google Sheets. Las metas se muestran en cero."
	NoticeFailed           = "Ocurrió un error al generar el reporte. El detalle quedó registrado en el servidor."
)

// SalesSource assembles sales lines from the ledger.
type SalesSource interface {
	Assemble(ctx context.Context, f sales.Filter) (sales.Result, error)
	AssembleAll(ctx context.Context, f sales.Filter) (sales.Result, error)
	FilterOptions(ctx context.Context) sales.FilterOptions
	Sellers(ctx context.Context) ([]sales.Seller, error)
}

// PendingSource lists pending order lines.
type PendingSource interface {
	Pending(ctx context.Context, f pending.Filter) (pending.Result, error)
	PendingAll(ctx context.Context, f pending.Filter) (pending.Result, error)
}

// Config tunes the service.
type Config struct {
	ExpiringRoutes    []int64
	ExcludedLineNames []string
}

// DefaultExcludedLineNames are never offered as line dashboards.
var DefaultExcludedLineNames = []string{"LICITACION", "NINGUNO", "ECOMMERCE"}

// Service coordinates ledger queries, goal reconciliation and the cache layer.
type Service struct {
	sales   SalesSource
	pending PendingSource
	goals   goals.Store
	cache   *Cache
	metrics *Metrics
	logger  *slog.Logger
	cfg     Config
	group   singleflight.Group
	now     func() time.Time
}

// NewService wires the sources, the goal store and the cache. cache and metrics may be nil.
func NewService(src SalesSource, pend PendingSource, store goals.Store, cache *Cache, metrics *Metrics, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.ExpiringRoutes) == 0 {
		cfg.ExpiringRoutes = aggregate.DefaultExpiringRoutes
	}
	if cfg.ExcludedLineNames == nil {
		cfg.ExcludedLineNames = DefaultExcludedLineNames
	}
	if store == nil {
		store = goals.NewMemoryStore()
	}
	return &Service{
		sales:   src,
		pending: pend,
		goals:   store,
		cache:   cache,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "dashboard")),
		cfg:     cfg,
		now:     time.Now,
	}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// ============================================================================
// LISTINGS
// ============================================================================

// SalesPage is one page of sales lines.
type SalesPage struct {
	sales.Result
	Notice string `json:"notice,omitempty"`
}

// PendingPage is one page of pending order lines.
type PendingPage struct {
	pending.Result
	TotalPending float64 `json:"total_pending"`
	Notice       string  `json:"notice,omitempty"`
}

// Sales returns one page of sales lines.
func (s *Service) Sales(ctx context.Context, q Query) (SalesPage, error) {
	var page SalesPage
	err := s.cached(ctx, "sales", q.key("sales"), &page, func(ctx context.Context) (any, error) {
		res, err := s.sales.Assemble(ctx, q.salesFilter())
		if err != nil {
			if err := s.swallow(ctx, "sales", err); err != nil {
				return nil, err
			}
			empty := sales.Result{Lines: []sales.SalesLine{}, Page: shared.NewPagination(q.Page, q.PerPage, 0), Degraded: true}
			return SalesPage{Result: empty, Notice: NoticeFailed}, nil
		}
		return SalesPage{Result: res, Notice: notice(res.Degraded)}, nil
	})
	return page, err
}

// Pending returns one page of pending order lines.
func (s *Service) Pending(ctx context.Context, q Query) (PendingPage, error) {
	var page PendingPage
	err := s.cached(ctx, "pending", q.key("pending"), &page, func(ctx context.Context) (any, error) {
		res, err := s.pending.Pending(ctx, q.pendingFilter())
		if err != nil {
			if err := s.swallow(ctx, "pending", err); err != nil {
				return nil, err
			}
			empty := pending.Result{Lines: []pending.PendingLine{}, Page: shared.NewPagination(q.Page, q.PerPage, 0), Degraded: true}
			return PendingPage{Result: empty, Notice: NoticeFailed}, nil
		}
		return PendingPage{Result: res, TotalPending: pending.TotalPending(res.Lines), Notice: notice(res.Degraded)}, nil
	})
	return page, err
}

// ============================================================================
// CHARTS
// ============================================================================

// SummaryReport is the channel dashboard.
type SummaryReport struct {
	aggregate.Summary
	Scope    classify.Scope `json:"scope"`
	Degraded bool           `json:"degraded"`
	Notice   string         `json:"notice,omitempty"`
}

// Cacheable reports whether the report reflects live ledger data.
func (r SummaryReport) Cacheable() bool { return !r.Degraded }

// DrilldownReport is the commercial line drill-down tree.
type DrilldownReport struct {
	Tree     aggregate.Tree `json:"tree"`
	Total    float64        `json:"total"`
	Degraded bool           `json:"degraded"`
	Notice   string         `json:"notice,omitempty"`
}

// Cacheable reports whether the report reflects live ledger data.
func (r DrilldownReport) Cacheable() bool { return !r.Degraded }

// StackedReport is the per-line category chart.
type StackedReport struct {
	aggregate.StackedChart
	Degraded bool   `json:"degraded"`
	Notice   string `json:"notice,omitempty"`
}

// Cacheable reports whether the report reflects live ledger data.
func (r StackedReport) Cacheable() bool { return !r.Degraded }

// Summary computes the dashboard summary for q's scope.
func (s *Service) Summary(ctx context.Context, q Query) (SummaryReport, error) {
	var report SummaryReport
	err := s.cached(ctx, "summary", q.key("summary"), &report, func(ctx context.Context) (any, error) {
		lines, degraded, err := s.lines(ctx, q)
		if err != nil {
			if err := s.swallow(ctx, "summary", err); err != nil {
				return nil, err
			}
			return SummaryReport{Summary: aggregate.Summarize(nil), Scope: q.Scope, Degraded: true, Notice: NoticeFailed}, nil
		}
		return SummaryReport{Summary: aggregate.Summarize(lines), Scope: q.Scope, Degraded: degraded, Notice: notice(degraded)}, nil
	})
	return report, err
}

// Drilldown builds the drill-down tree for q's scope.
func (s *Service) Drilldown(ctx context.Context, q Query) (DrilldownReport, error) {
	var report DrilldownReport
	err := s.cached(ctx, "drilldown", q.key("drilldown"), &report, func(ctx context.Context) (any, error) {
		lines, degraded, err := s.lines(ctx, q)
		if err != nil {
			if err := s.swallow(ctx, "drilldown", err); err != nil {
				return nil, err
			}
			return DrilldownReport{Tree: aggregate.Drilldown(nil), Degraded: true, Notice: NoticeFailed}, nil
		}
		tree := aggregate.Drilldown(lines)
		return DrilldownReport{Tree: tree, Total: tree.Total(aggregate.RootID), Degraded: degraded, Notice: notice(degraded)}, nil
	})
	return report, err
}

// Stacked builds the stacked category chart for q's scope.
func (s *Service) Stacked(ctx context.Context, q Query) (StackedReport, error) {
	var report StackedReport
	err := s.cached(ctx, "stacked", q.key("stacked"), &report, func(ctx context.Context) (any, error) {
		lines, degraded, err := s.lines(ctx, q)
		if err != nil {
			if err := s.swallow(ctx, "stacked", err); err != nil {
				return nil, err
			}
			return StackedReport{StackedChart: aggregate.Stacked(nil), Degraded: true, Notice: NoticeFailed}, nil
		}
		return StackedReport{StackedChart: aggregate.Stacked(lines), Degraded: degraded, Notice: notice(degraded)}, nil
	})
	return report, err
}

// lines returns every line matching q, re-checking the scope locally.
func (s *Service) lines(ctx context.Context, q Query) ([]sales.SalesLine, bool, error) {
	f := q.salesFilter()
	f.Page, f.PerPage = 0, 0
	res, err := s.sales.AssembleAll(ctx, f)
	if err != nil {
		return nil, false, err
	}
	return q.Scope.Filter(res.Lines), res.Degraded, nil
}

// ============================================================================
// FILTERS
// ============================================================================

// Filters lists the filter choices and the known salespeople.
type Filters struct {
	sales.FilterOptions
	Sellers []sales.Seller `json:"sellers"`
	Notice  string         `json:"notice,omitempty"`
}

// Cacheable reports whether the options reflect live ledger data.
func (f Filters) Cacheable() bool { return !f.Degraded }

// Filters returns the filter options.
func (s *Service) Filters(ctx context.Context) (Filters, error) {
	var out Filters
	err := s.cached(ctx, "filters", []string{"salesdash", "filters"}, &out, func(ctx context.Context) (any, error) {
		opts := s.sales.FilterOptions(ctx)
		sellers, err := s.sales.Sellers(ctx)
		if err != nil {
			if err := s.swallow(ctx, "filters", err); err != nil {
				return nil, err
			}
			opts.Degraded = true
			sellers = []sales.Seller{}
		}
		return Filters{FilterOptions: opts, Sellers: sellers, Notice: notice(opts.Degraded)}, nil
	})
	return out, err
}

// ============================================================================
// CACHE PLUMBING
// ============================================================================

// cached serves dest from the cache, building it at most once per key concurrently.
func (s *Service) cached(ctx context.Context, report string, parts []string, dest any, load func(context.Context) (any, error)) error {
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		s.logger.Warn("cache unavailable, building directly", slog.String("report", report), slog.Any("error", err))
		return direct(ctx, dest, load)
	}

	start := time.Now()
	val, err, _ := s.build(ctx, key, func(ctx context.Context) (any, error) {
		var raw json.RawMessage
		hit, err := s.cache.FetchJSON(ctx, key, &raw, load)
		if err != nil {
			return nil, err
		}
		s.metrics.record(report, hit, time.Since(start))
		return raw, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(val.(json.RawMessage), dest)
}

func (s *Service) build(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error, bool) {
	resultChan := s.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-resultChan:
		return res.Val, res.Err, res.Shared
	}
}

func direct(ctx context.Context, dest any, load func(context.Context) (any, error)) error {
	value, err := load(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Invalidate drops every cached response.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("cache bump failed", slog.Any("error", err))
	}
}

// swallow logs a build failure so the caller can answer with an empty report.
// Cancellation is passed through.
func (s *Service) swallow(ctx context.Context, report string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return err
	}
	s.logger.Error("report build failed", slog.String("report", report), slog.Any("error", err))
	return nil
}

func notice(degraded bool) string {
	if degraded {
		return NoticeLedgerOffline
	}
	return ""
}
