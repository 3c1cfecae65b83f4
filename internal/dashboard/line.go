package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/salesdash/salesdash/internal/aggregate"
	"github.com/salesdash/salesdash/internal/classify"
	"github.com/salesdash/salesdash/internal/goals"
	"github.com/salesdash/salesdash/internal/sales"
	"github.com/salesdash/salesdash/internal/shared"
)

// LineReport is the goal dashboard of one commercial line for one month.
type LineReport struct {
	Line       string         `json:"line"`
	Slug       string         `json:"slug"`
	Month      string         `json:"month"`
	MonthLabel string         `json:"month_label"`
	Day        int            `json:"day"`
	Scope      classify.Scope `json:"scope"`

	Rows   []goals.Row  `json:"rows"`
	Totals goals.Totals `json:"totals"`
	KPIs   goals.KPIs   `json:"kpis"`

	TopProducts []aggregate.Bucket `json:"top_products"`
	ByLifeCycle []aggregate.Bucket `json:"by_life_cycle"`
	ByForm      []aggregate.Bucket `json:"by_form"`

	AvailableLines []string `json:"available_lines"`

	Degraded bool     `json:"degraded"`
	Notices  []string `json:"notices,omitempty"`
}

// Cacheable reports whether the report reflects live ledger and goal data.
func (r LineReport) Cacheable() bool { return !r.Degraded }

// Line builds the line dashboard. Goals that cannot be read count as zero.
func (s *Service) Line(ctx context.Context, q LineQuery) (LineReport, error) {
	if strings.TrimSpace(q.Line) == "" {
		q.Line = goals.DefaultLine
	}
	q.Line = strings.ToUpper(strings.TrimSpace(q.Line))
	if q.Scope == "" {
		q.Scope = classify.ScopeNational
	}
	period, err := goals.NewPeriod(q.Month, q.EndDay, s.now())
	if err != nil {
		return LineReport{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	var report LineReport
	err = s.cached(ctx, "line", q.key(periodKey{month: period.Key(), day: period.Day}), &report, func(ctx context.Context) (any, error) {
		return s.buildLine(ctx, q, period)
	})
	return report, err
}

func (s *Service) buildLine(ctx context.Context, q LineQuery, period goals.Period) (LineReport, error) {
	report := LineReport{
		Line:       q.Line,
		Slug:       goals.Slug(q.Line),
		Month:      period.Key(),
		MonthLabel: sales.MonthLabel(period.From().Format(sales.DateLayout)),
		Day:        period.Day,
		Scope:      q.Scope,
	}

	res, err := s.sales.AssembleAll(ctx, sales.Filter{DateFrom: period.From(), DateTo: period.To(), Extra: q.Scope.Domain()})
	if err != nil {
		if err := s.swallow(ctx, "line", err); err != nil {
			return LineReport{}, err
		}
		res = sales.Result{Lines: []sales.SalesLine{}, Degraded: true}
		report.Notices = append(report.Notices, NoticeFailed)
	}
	if res.Degraded && len(report.Notices) == 0 {
		report.Notices = append(report.Notices, NoticeLedgerOffline)
	}
	report.Degraded = res.Degraded
	scoped := q.Scope.Filter(res.Lines)
	actuals := aggregate.ActualsForLine(scoped, q.Line, s.cfg.ExpiringRoutes)

	teams, sellerGoals, err := s.loadGoals(ctx)
	if err != nil {
		report.Degraded = true
		report.Notices = append(report.Notices, NoticeGoalsUnavailable)
	}
	members := teams[report.Slug]
	monthGoals := make(map[int64]goals.Goal, len(members))
	for _, id := range members {
		monthGoals[id] = sellerGoals.For(report.Slug, id, report.Month)
	}

	rec := goals.Reconcile(goals.Input{
		Actuals: actuals,
		Members: members,
		Goals:   monthGoals,
		Names:   s.sellerNames(ctx),
	})
	report.Rows = rec.Rows
	report.Totals = rec.Totals
	report.KPIs = goals.Compute(rec.Totals, period)
	report.TopProducts = actuals.TopProducts
	report.ByLifeCycle = actuals.ByLifeCycle
	report.ByForm = actuals.ByForm

	teamSlugs := make([]string, 0, len(sellerGoals))
	for slug := range sellerGoals {
		teamSlugs = append(teamSlugs, slug)
	}
	report.AvailableLines = goals.AvailableLines(aggregate.CommercialLineNames(res.Lines, s.cfg.ExcludedLineNames), teamSlugs)
	return report, nil
}

func (s *Service) loadGoals(ctx context.Context) (goals.Teams, goals.SellerGoals, error) {
	teams, err := s.goals.Teams(ctx)
	if err != nil {
		s.logger.Warn("team membership unavailable", slog.Any("error", err))
		return goals.Teams{}, goals.SellerGoals{}, err
	}
	sellerGoals, err := s.goals.SellerGoals(ctx)
	if err != nil {
		s.logger.Warn("seller goals unavailable", slog.Any("error", err))
		return teams, goals.SellerGoals{}, err
	}
	return teams, sellerGoals, nil
}

// sellerNames resolves salesperson names, empty when the ledger is unavailable.
func (s *Service) sellerNames(ctx context.Context) map[int64]string {
	sellers, err := s.sales.Sellers(ctx)
	if err != nil {
		s.logger.Warn("seller list unavailable", slog.Any("error", err))
	}
	out := make(map[int64]string, len(sellers))
	for _, seller := range sellers {
		out[seller.ID] = seller.Name
	}
	return out
}
