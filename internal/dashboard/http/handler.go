// Package dashboardhttp exposes the dashboard query surface, the goal editors and
// the spreadsheet exports over HTTP.
package dashboardhttp

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/salesdash/salesdash/internal/classify"
	"github.com/salesdash/salesdash/internal/dashboard"
	"github.com/salesdash/salesdash/internal/export"
	"github.com/salesdash/salesdash/internal/goals"
	"github.com/salesdash/salesdash/internal/pending"
	"github.com/salesdash/salesdash/internal/platform/httpx"
	"github.com/salesdash/salesdash/internal/sales"
	"github.com/salesdash/salesdash/internal/shared"
)

const (
	defaultRequestTimeout = 30 * time.Second
	xlsxContentType       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	csvContentType        = "text/csv; charset=utf-8"
)

// Service is the dashboard contract used by the handler.
type Service interface {
	Sales(ctx context.Context, q dashboard.Query) (dashboard.SalesPage, error)
	Pending(ctx context.Context, q dashboard.Query) (dashboard.PendingPage, error)
	Summary(ctx context.Context, q dashboard.Query) (dashboard.SummaryReport, error)
	Drilldown(ctx context.Context, q dashboard.Query) (dashboard.DrilldownReport, error)
	Stacked(ctx context.Context, q dashboard.Query) (dashboard.StackedReport, error)
	Line(ctx context.Context, q dashboard.LineQuery) (dashboard.LineReport, error)
	Filters(ctx context.Context) (dashboard.Filters, error)

	LineGoals(ctx context.Context, year int) dashboard.LineGoalsView
	SaveLineGoals(ctx context.Context, month string, form map[string]goals.GoalForm) error
	SellerGoals(ctx context.Context, year int) dashboard.SellerGoalsView
	SaveSellerGoals(ctx context.Context, form goals.SellerGoalForm) error
	SaveTeams(ctx context.Context, teams goals.Teams) error

	ExportSales(ctx context.Context, q dashboard.Query) ([]sales.SalesLine, error)
	ExportPending(ctx context.Context, q dashboard.Query) ([]pending.PendingLine, error)
	MonthDetails(ctx context.Context, month string) ([]sales.SalesLine, error)
}

// Options tunes the handler.
type Options struct {
	RequestTimeout time.Duration
	// ExportsPerMinute limits export downloads per client.
	ExportsPerMinute int
	Formatter        export.Formatter
}

// Handler serves the dashboard endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Service
	validator *validator.Validate
	opts      Options
	filePool  sync.Pool
	now       func() time.Time
}

// NewHandler constructs the dashboard HTTP handler.
func NewHandler(logger *slog.Logger, service Service, opts Options) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.ExportsPerMinute <= 0 {
		opts.ExportsPerMinute = 10
	}
	if opts.Formatter == (export.Formatter{}) {
		opts.Formatter = export.DefaultFormatter()
	}
	h := &Handler{
		logger:    logger,
		service:   service,
		validator: newValidator(),
		opts:      opts,
		now:       time.Now,
	}
	h.filePool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

func (h *Handler) context(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.opts.RequestTimeout)
}

// ============================================================================
// QUERY SURFACE
// ============================================================================

func (h *Handler) handleSales(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseQuery(r, classify.ScopeAll)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	page, err := h.service.Sales(ctx, q)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseQuery(r, classify.ScopeAll)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	page, err := h.service.Pending(ctx, q)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleInternational(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseQuery(r, classify.ScopeInternational)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	report, err := h.service.Summary(ctx, q)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleLine(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseLineQuery(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	report, err := h.service.Line(ctx, q)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleDrilldown(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseQuery(r, classify.ScopeAll)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	report, err := h.service.Drilldown(ctx, q)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleStacked(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseQuery(r, classify.ScopeAll)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	report, err := h.service.Stacked(ctx, q)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleFilters(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	opts, err := h.service.Filters(ctx)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, opts)
}

// ============================================================================
// GOALS
// ============================================================================

type lineGoalsPayload struct {
	Month string                    `json:"mes" validate:"required,datetime=2006-01"`
	Goals map[string]goals.GoalForm `json:"goals" validate:"required"`
}

type sellerGoalsPayload struct {
	Teams goals.Teams          `json:"teams"`
	Goals goals.SellerGoalForm `json:"goals"`
}

func (h *Handler) handleLineGoals(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r.URL.Query().Get("year"), h.now())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	httpx.JSON(w, http.StatusOK, h.service.LineGoals(ctx, year))
}

func (h *Handler) handleSaveLineGoals(w http.ResponseWriter, r *http.Request) {
	var payload lineGoalsPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.check(payload); err != nil {
		h.respondError(w, r, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	if err := h.service.SaveLineGoals(ctx, payload.Month, payload.Goals); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSellerGoals(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r.URL.Query().Get("year"), h.now())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	httpx.JSON(w, http.StatusOK, h.service.SellerGoals(ctx, year))
}

// handleSaveSellerGoals saves team membership first so goals of newly added
// members are kept.
func (h *Handler) handleSaveSellerGoals(w http.ResponseWriter, r *http.Request) {
	var payload sellerGoalsPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		h.respondError(w, r, err)
		return
	}
	for _, sellers := range payload.Goals {
		for _, months := range sellers {
			for month := range months {
				if err := h.validator.Var(month, "datetime=2006-01"); err != nil {
					h.respondError(w, r, fieldErrors{"goals": "month " + month})
					return
				}
			}
		}
	}

	ctx, cancel := h.context(r)
	defer cancel()
	if len(payload.Teams) > 0 {
		if err := h.service.SaveTeams(ctx, payload.Teams); err != nil {
			h.respondError(w, r, err)
			return
		}
	}
	if len(payload.Goals) > 0 {
		if err := h.service.SaveSellerGoals(ctx, payload.Goals); err != nil {
			h.respondError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// ERRORS
// ============================================================================

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var fields fieldErrors
	switch {
	case errors.As(err, &fields):
		httpx.Invalid(w, fields)
	case errors.Is(err, dashboard.ErrNothingToExport):
		httpx.RespondError(w, httpx.ErrEmpty)
	case dashboard.IsLedgerOffline(err):
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", dashboard.NoticeLedgerOffline)
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, httpx.ErrValidation):
		httpx.RespondError(w, err)
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("request timed out", slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusGatewayTimeout, "Timeout", "")
	default:
		h.logger.Error("request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
