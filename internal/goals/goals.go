// Package goals holds the monthly sales targets and reconciles them against
// actual sales per salesperson and per commercial line.
package goals

import (
	"context"
	"sort"
)

// Goal is a monthly target. TargetNew applies to new-product ("IPN") sales.
type Goal struct {
	Target    float64 `json:"target"`
	TargetNew float64 `json:"target_new"`
}

// IsZero reports whether both targets are unset.
func (g Goal) IsZero() bool { return g.Target == 0 && g.TargetNew == 0 }

// Add sums two goals.
func (g Goal) Add(o Goal) Goal {
	return Goal{Target: g.Target + o.Target, TargetNew: g.TargetNew + o.TargetNew}
}

// SellerGoals maps team slug -> seller id -> month key -> goal.
type SellerGoals map[string]map[int64]map[string]Goal

// For returns the goal of seller in team for month, zero when missing.
func (s SellerGoals) For(team string, seller int64, month string) Goal {
	return s[team][seller][month]
}

// Set stores a goal, creating intermediate maps as needed.
func (s SellerGoals) Set(team string, seller int64, month string, g Goal) {
	if s[team] == nil {
		s[team] = make(map[int64]map[string]Goal)
	}
	if s[team][seller] == nil {
		s[team][seller] = make(map[string]Goal)
	}
	s[team][seller][month] = g
}

// Delete removes a single month entry.
func (s SellerGoals) Delete(team string, seller int64, month string) {
	if months, ok := s[team][seller]; ok {
		delete(months, month)
	}
}

// LineGoals maps month key -> line slug -> goal.
type LineGoals map[string]map[string]Goal

// Total sums every line goal of month.
func (l LineGoals) Total(month string) Goal {
	var total Goal
	for _, g := range l[month] {
		total = total.Add(g)
	}
	return total
}

// Slugs lists every line slug that has a goal in any month, sorted.
func (l LineGoals) Slugs() []string {
	seen := make(map[string]struct{})
	for _, lines := range l {
		for slug := range lines {
			seen[slug] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Teams maps team slug -> official member seller ids.
type Teams map[string][]int64

// Members returns the membership set of team.
func (t Teams) Members(team string) map[int64]struct{} {
	out := make(map[int64]struct{}, len(t[team]))
	for _, id := range t[team] {
		out[id] = struct{}{}
	}
	return out
}

// Seller names a salesperson known to the ledger.
type Seller struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Store persists goals and team membership. Saves overwrite the whole structure;
// missing backing tabs are created on first read and yield empty data.
type Store interface {
	Teams(ctx context.Context) (Teams, error)
	SaveTeams(ctx context.Context, teams Teams, known []Seller) error
	SellerGoals(ctx context.Context) (SellerGoals, error)
	SaveSellerGoals(ctx context.Context, goals SellerGoals) error
	LineGoals(ctx context.Context) (LineGoals, error)
	SaveLineGoals(ctx context.Context, goals LineGoals) error
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
