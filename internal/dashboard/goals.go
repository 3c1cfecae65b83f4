package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/salesdash/salesdash/internal/goals"
	"github.com/salesdash/salesdash/internal/sales"
	"github.com/salesdash/salesdash/internal/shared"
)

// MonthOption is a selectable month of the goal editors.
type MonthOption struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// MonthsOfYear lists the twelve months of year.
func MonthsOfYear(year int) []MonthOption {
	out := make([]MonthOption, 0, 12)
	for m := time.January; m <= time.December; m++ {
		t := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
		out = append(out, MonthOption{Key: sales.MonthKey(t), Label: fmt.Sprintf("%s %d", sales.MonthName(m), year)})
	}
	return out
}

// GoalLines lists the lines that carry line goals: the catalogue plus e-commerce.
func GoalLines() []goals.Line {
	out := append([]goals.Line(nil), goals.Catalogue...)
	return append(out, goals.Line{Name: "ECOMMERCE", Slug: goals.EcommerceSlug})
}

// LineGoalsView backs the line goal editor.
type LineGoalsView struct {
	Year   int                   `json:"year"`
	Months []MonthOption         `json:"months"`
	Lines  []goals.Line          `json:"lines"`
	Goals  goals.LineGoals       `json:"goals"`
	Totals map[string]goals.Goal `json:"totals"`
	Notice string                `json:"notice,omitempty"`
}

// SellerGoalsView backs the seller goal editor.
type SellerGoalsView struct {
	Year    int               `json:"year"`
	Months  []MonthOption     `json:"months"`
	Lines   []goals.Line      `json:"lines"`
	Teams   goals.Teams       `json:"teams"`
	Goals   goals.SellerGoals `json:"goals"`
	Sellers []sales.Seller    `json:"sellers"`
	Notice  string            `json:"notice,omitempty"`
}

// LineGoals returns the stored line goals with the months of year. A zero year
// means the current one. Store failures show as empty goals with a notice.
func (s *Service) LineGoals(ctx context.Context, year int) LineGoalsView {
	if year <= 0 {
		year = s.now().Year()
	}
	view := LineGoalsView{Year: year, Months: MonthsOfYear(year), Lines: GoalLines(), Totals: map[string]goals.Goal{}}
	stored, err := s.goals.LineGoals(ctx)
	if err != nil {
		s.logger.Warn("line goals unavailable", slog.Any("error", err))
		stored = goals.LineGoals{}
		view.Notice = NoticeGoalsUnavailable
	}
	view.Goals = stored
	for _, m := range view.Months {
		view.Totals[m.Key] = stored.Total(m.Key)
	}
	return view
}

// SaveLineGoals replaces the line goals of month. Slugs outside the goal lines
// are ignored.
func (s *Service) SaveLineGoals(ctx context.Context, month string, form map[string]goals.GoalForm) error {
	if _, err := sales.ParseMonthKey(month); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	allowed := make(map[string]goals.GoalForm, len(form))
	for _, l := range GoalLines() {
		allowed[l.Slug] = form[l.Slug]
	}
	stored, err := s.goals.LineGoals(ctx)
	if err != nil {
		return fmt.Errorf("dashboard: load line goals: %w", err)
	}
	if err := s.goals.SaveLineGoals(ctx, goals.SetLineGoals(stored, month, allowed)); err != nil {
		return fmt.Errorf("dashboard: save line goals: %w", err)
	}
	s.logger.Info("line goals saved", slog.String("month", month))
	s.Invalidate(ctx)
	return nil
}

// SellerGoals returns teams, seller goals and the known salespeople.
func (s *Service) SellerGoals(ctx context.Context, year int) SellerGoalsView {
	if year <= 0 {
		year = s.now().Year()
	}
	view := SellerGoalsView{Year: year, Months: MonthsOfYear(year), Lines: goals.Catalogue}
	teams, sellerGoals, err := s.loadGoals(ctx)
	if err != nil {
		view.Notice = NoticeGoalsUnavailable
	}
	view.Teams, view.Goals = teams, sellerGoals

	sellers, err := s.sales.Sellers(ctx)
	if err != nil {
		s.logger.Warn("seller list unavailable", slog.Any("error", err))
		sellers = []sales.Seller{}
		if view.Notice == "" {
			view.Notice = NoticeLedgerOffline
		}
	}
	view.Sellers = sellers
	return view
}

// SaveSellerGoals merges a submitted seller goal form into the stored goals.
func (s *Service) SaveSellerGoals(ctx context.Context, form goals.SellerGoalForm) error {
	teams, err := s.goals.Teams(ctx)
	if err != nil {
		return fmt.Errorf("dashboard: load teams: %w", err)
	}
	stored, err := s.goals.SellerGoals(ctx)
	if err != nil {
		return fmt.Errorf("dashboard: load seller goals: %w", err)
	}
	if err := s.goals.SaveSellerGoals(ctx, goals.MergeSellerGoals(stored, teams, form)); err != nil {
		return fmt.Errorf("dashboard: save seller goals: %w", err)
	}
	s.logger.Info("seller goals saved", slog.Int("teams", len(form)))
	s.Invalidate(ctx)
	return nil
}

// SaveTeams replaces the membership of the submitted teams.
func (s *Service) SaveTeams(ctx context.Context, submitted goals.Teams) error {
	stored, err := s.goals.Teams(ctx)
	if err != nil {
		return fmt.Errorf("dashboard: load teams: %w", err)
	}
	sellers, err := s.sales.Sellers(ctx)
	if err != nil {
		s.logger.Warn("seller list unavailable, names left blank", slog.Any("error", err))
	}
	known := make([]goals.Seller, 0, len(sellers))
	for _, seller := range sellers {
		known = append(known, goals.Seller{ID: seller.ID, Name: seller.Name})
	}
	if err := s.goals.SaveTeams(ctx, goals.MergeTeams(stored, submitted), known); err != nil {
		return fmt.Errorf("dashboard: save teams: %w", err)
	}
	s.logger.Info("teams saved", slog.Int("teams", len(submitted)))
	s.Invalidate(ctx)
	return nil
}
