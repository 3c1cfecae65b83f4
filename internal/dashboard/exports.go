package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/salesdash/salesdash/internal/classify"
	"github.com/salesdash/salesdash/internal/goals"
	"github.com/salesdash/salesdash/internal/pending"
	"github.com/salesdash/salesdash/internal/sales"
	"github.com/salesdash/salesdash/internal/shared"
)

// ErrNothingToExport is returned when an export would produce an empty file.
var ErrNothingToExport = errors.New("dashboard: nothing to export")

// ExportSales returns every sales line matching q. Exports bypass the cache.
func (s *Service) ExportSales(ctx context.Context, q Query) ([]sales.SalesLine, error) {
	lines, degraded, err := s.lines(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("dashboard: export sales: %w", err)
	}
	if degraded {
		return nil, fmt.Errorf("dashboard: export sales: %w", errLedgerOffline)
	}
	if len(lines) == 0 {
		return nil, ErrNothingToExport
	}
	return lines, nil
}

// ExportPending returns every pending line matching q.
func (s *Service) ExportPending(ctx context.Context, q Query) ([]pending.PendingLine, error) {
	f := q.pendingFilter()
	f.Page, f.PerPage = 0, 0
	res, err := s.pending.PendingAll(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("dashboard: export pending: %w", err)
	}
	if res.Degraded {
		return nil, fmt.Errorf("dashboard: export pending: %w", errLedgerOffline)
	}
	if len(res.Lines) == 0 {
		return nil, ErrNothingToExport
	}
	return res.Lines, nil
}

// MonthDetails returns the national sales lines of a YYYY-MM month, the rows
// behind the line dashboards.
func (s *Service) MonthDetails(ctx context.Context, month string) ([]sales.SalesLine, error) {
	period, err := goals.NewPeriod(month, 0, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	first, last := sales.MonthBounds(period.Month)
	return s.ExportSales(ctx, Query{DateFrom: first, DateTo: last, Scope: classify.ScopeNational})
}

var errLedgerOffline = errors.New("ledger offline")

// IsLedgerOffline reports whether an export failed because the ledger was unreachable.
func IsLedgerOffline(err error) bool { return errors.Is(err, errLedgerOffline) }

// Warmup preloads the international dashboard and every catalogue line
// dashboard of the current month.
func (s *Service) Warmup(ctx context.Context) error {
	now := s.now()
	first, _ := sales.MonthBounds(now)
	if _, err := s.Summary(ctx, Query{DateFrom: first, DateTo: now, Scope: classify.ScopeInternational}); err != nil {
		return fmt.Errorf("dashboard: warmup summary: %w", err)
	}
	month := sales.MonthKey(now)
	var errs []error
	for _, line := range goals.Catalogue {
		if _, err := s.Line(ctx, LineQuery{Month: month, Line: line.Name}); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, fmt.Errorf("line %s: %w", line.Name, err))
		}
	}
	s.logger.Info("dashboard warmed", slog.String("month", month), slog.Int("lines", len(goals.Catalogue)), slog.Int("failed", len(errs)))
	return errors.Join(errs...)
}
