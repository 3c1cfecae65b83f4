package goals

import (
	"fmt"
	"time"

	"github.com/salesdash/salesdash/internal/sales"
)

// Period is the slice of a month a report covers.
type Period struct {
	// Month is the first day of the month.
	Month time.Time
	// Day is the last day included, 1-based.
	Day int
	// Current is set when Month is the month of today.
	Current bool
	// Today is the reference date used for pace.
	Today time.Time
}

// NewPeriod resolves the period for a YYYY-MM key. An explicit endDay wins; otherwise
// the current month runs to today and past months run to their last day.
func NewPeriod(monthKey string, endDay int, now time.Time) (Period, error) {
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	if monthKey != "" {
		parsed, err := sales.ParseMonthKey(monthKey)
		if err != nil {
			return Period{}, fmt.Errorf("goals: period: %w", err)
		}
		month = time.Date(parsed.Year(), parsed.Month(), 1, 0, 0, 0, 0, now.Location())
	}
	p := Period{
		Month:   month,
		Current: month.Year() == now.Year() && month.Month() == now.Month(),
		Today:   now,
	}
	last := DaysInMonth(month)
	switch {
	case endDay > 0:
		p.Day = min(endDay, last)
	case p.Current:
		p.Day = now.Day()
	default:
		p.Day = last
	}
	return p, nil
}

// Key is the YYYY-MM key of the period's month.
func (p Period) Key() string { return sales.MonthKey(p.Month) }

// From is the first day of the period.
func (p Period) From() time.Time { return p.Month }

// To is the last day of the period.
func (p Period) To() time.Time { return p.Month.AddDate(0, 0, p.Day-1) }

// DaysInMonth returns the number of calendar days in t's month.
func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// RemainingBusinessDays counts the days from today through the end of its month,
// Monday to Saturday, today included.
func RemainingBusinessDays(today time.Time) int {
	last := DaysInMonth(today)
	n := 0
	for d := today.Day(); d <= last; d++ {
		if time.Date(today.Year(), today.Month(), d, 0, 0, 0, 0, time.UTC).Weekday() != time.Sunday {
			n++
		}
	}
	return n
}

// Forecast is the linear projection of one target.
type Forecast struct {
	Target           float64 `json:"target"`
	Sales            float64 `json:"sales"`
	PercentOfTarget  float64 `json:"percent_of_target"`
	DailyAdvance     float64 `json:"daily_advance"`
	Projection       float64 `json:"projection"`
	ProjectedPercent float64 `json:"projected_percent"`
	Shortfall        float64 `json:"shortfall"`
}

// Project extrapolates sales to the end of the month at the period's daily rate.
func Project(sales, target float64, p Period) Forecast {
	f := Forecast{Target: target, Sales: sales, PercentOfTarget: Percent(sales, target)}
	if p.Day > 0 {
		if target > 0 {
			f.DailyAdvance = f.PercentOfTarget / float64(p.Day)
		}
		f.Projection = sales / float64(p.Day) * float64(DaysInMonth(p.Month))
	}
	f.ProjectedPercent = Percent(f.Projection, target)
	f.Shortfall = max(target-sales, 0)
	return f
}

// KPIs are the line-level indicators of the goal table.
type KPIs struct {
	Total             Forecast `json:"total"`
	New               Forecast `json:"new"`
	Expiring          float64  `json:"expiring"`
	RequiredDailyPace float64  `json:"required_daily_pace"`
	RemainingDays     int      `json:"remaining_days"`
}

// Compute derives the line KPIs from reconciled totals.
func Compute(t Totals, p Period) KPIs {
	k := KPIs{
		Total:    Project(t.Sales, t.Target, p),
		New:      Project(t.NewSales, t.TargetNew, p),
		Expiring: t.Expiring,
	}
	if p.Current {
		k.RemainingDays = RemainingBusinessDays(p.Today)
		k.RequiredDailyPace = RequiredDailyPace(t.Sales, t.Target, k.RemainingDays)
	}
	return k
}

// RequiredDailyPace is the percentage of target still to cover per remaining
// business day. Without a target the remaining share is taken as zero.
func RequiredDailyPace(sales, target float64, remainingDays int) float64 {
	done := 100.0
	if target > 0 {
		done = Percent(sales, target)
	}
	remaining := 100 - done
	if remaining <= 0 || remainingDays <= 0 {
		return 0
	}
	return remaining / float64(remainingDays)
}
