package sheets

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/salesdash/salesdash/internal/goals"
)

// Tab names and headers of the goal spreadsheet.
const (
	TabTeams       = "Equipos"
	TabSellerGoals = "Metas"
	TabLineGoals   = "MetasPorLinea"

	newSuffix   = "_ipn"
	unknownName = "Nombre no encontrado"
)

var (
	teamsHeader       = []string{"equipo_id", "vendedor_id", "vendedor_nombre"}
	sellerGoalsHeader = []string{"equipo_id", "vendedor_id", "mes", "meta", "meta_ipn"}
	lineGoalsHeader   = []string{"mes_key"}
)

// Store implements goals.Store over three spreadsheet tabs.
type Store struct {
	tabs   Tabs
	logger *slog.Logger
}

var _ goals.Store = (*Store)(nil)

// NewStore wraps tabs.
func NewStore(tabs Tabs, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{tabs: tabs, logger: logger}
}

// Teams reads team membership. Non-numeric seller ids are skipped.
func (s *Store) Teams(ctx context.Context) (goals.Teams, error) {
	records, err := s.records(ctx, TabTeams, teamsHeader)
	if err != nil {
		return nil, err
	}
	out := goals.Teams{}
	for _, r := range records {
		team := r["equipo_id"]
		if team == "" {
			continue
		}
		if _, ok := out[team]; !ok {
			out[team] = []int64{}
		}
		if id, err := strconv.ParseInt(r["vendedor_id"], 10, 64); err == nil && id > 0 {
			out[team] = append(out[team], id)
		}
	}
	return out, nil
}

// SaveTeams overwrites team membership, naming members from known.
func (s *Store) SaveTeams(ctx context.Context, teams goals.Teams, known []goals.Seller) error {
	names := make(map[int64]string, len(known))
	for _, k := range known {
		names[k.ID] = k.Name
	}
	rows := [][]any{header(teamsHeader)}
	for _, team := range sortedTeams(teams) {
		for _, id := range teams[team] {
			name, ok := names[id]
			if !ok {
				name = unknownName
			}
			rows = append(rows, []any{team, id, name})
		}
	}
	return s.overwrite(ctx, TabTeams, teamsHeader, rows)
}

// SellerGoals reads per-seller monthly goals.
func (s *Store) SellerGoals(ctx context.Context) (goals.SellerGoals, error) {
	records, err := s.records(ctx, TabSellerGoals, sellerGoalsHeader)
	if err != nil {
		return nil, err
	}
	out := goals.SellerGoals{}
	for _, r := range records {
		seller, err := strconv.ParseInt(r["vendedor_id"], 10, 64)
		if r["equipo_id"] == "" || r["mes"] == "" || err != nil {
			continue
		}
		out.Set(r["equipo_id"], seller, r["mes"], goals.Goal{
			Target:    goals.ParseAmount(r["meta"]),
			TargetNew: goals.ParseAmount(r["meta_ipn"]),
		})
	}
	return out, nil
}

// SaveSellerGoals flattens and overwrites per-seller goals.
func (s *Store) SaveSellerGoals(ctx context.Context, g goals.SellerGoals) error {
	rows := [][]any{header(sellerGoalsHeader)}
	teams := make([]string, 0, len(g))
	for team := range g {
		teams = append(teams, team)
	}
	sort.Strings(teams)
	for _, team := range teams {
		sellers := make([]int64, 0, len(g[team]))
		for id := range g[team] {
			sellers = append(sellers, id)
		}
		sort.Slice(sellers, func(i, j int) bool { return sellers[i] < sellers[j] })
		for _, seller := range sellers {
			months := make([]string, 0, len(g[team][seller]))
			for m := range g[team][seller] {
				months = append(months, m)
			}
			sort.Strings(months)
			for _, m := range months {
				goal := g[team][seller][m]
				rows = append(rows, []any{team, seller, m, goal.Target, goal.TargetNew})
			}
		}
	}
	return s.overwrite(ctx, TabSellerGoals, sellerGoalsHeader, rows)
}

// LineGoals reads the wide month-by-line goal table. Blank cells are skipped.
func (s *Store) LineGoals(ctx context.Context) (goals.LineGoals, error) {
	records, err := s.records(ctx, TabLineGoals, lineGoalsHeader)
	if err != nil {
		return nil, err
	}
	out := goals.LineGoals{}
	for _, r := range records {
		month := r["mes_key"]
		if month == "" {
			continue
		}
		lines := make(map[string]goals.Goal)
		for col, value := range r {
			if col == "mes_key" || col == "" || strings.TrimSpace(value) == "" {
				continue
			}
			slug, isNew := strings.CutSuffix(col, newSuffix)
			g := lines[slug]
			if isNew {
				g.TargetNew = goals.ParseAmount(value)
			} else {
				g.Target = goals.ParseAmount(value)
			}
			lines[slug] = g
		}
		out[month] = lines
	}
	return out, nil
}

// SaveLineGoals writes one row per month with a target and a target_ipn column per line.
func (s *Store) SaveLineGoals(ctx context.Context, g goals.LineGoals) error {
	slugs := g.Slugs()
	cols := append([]string{"mes_key"}, slugs...)
	for _, slug := range slugs {
		cols = append(cols, slug+newSuffix)
	}
	months := make([]string, 0, len(g))
	for m := range g {
		months = append(months, m)
	}
	sort.Strings(months)

	rows := [][]any{header(cols)}
	for _, m := range months {
		row := make([]any, len(cols))
		row[0] = m
		for i, slug := range slugs {
			row[1+i], row[1+len(slugs)+i] = "", ""
			if goal, ok := g[m][slug]; ok {
				row[1+i] = goal.Target
				row[1+len(slugs)+i] = goal.TargetNew
			}
		}
		rows = append(rows, row)
	}
	return s.overwrite(ctx, TabLineGoals, lineGoalsHeader, rows)
}

// records reads a tab as header-keyed maps, provisioning it when missing.
func (s *Store) records(ctx context.Context, tab string, schema []string) ([]map[string]string, error) {
	created, err := s.tabs.Ensure(ctx, tab, schema)
	if err != nil {
		return nil, err
	}
	if created {
		return nil, nil
	}
	rows, err := s.tabs.Read(ctx, tab)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, nil
	}
	head := rows[0]
	out := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]string, len(head))
		for i, col := range head {
			col = strings.TrimSpace(col)
			if i < len(row) {
				rec[col] = strings.TrimSpace(row[i])
			} else {
				rec[col] = ""
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) overwrite(ctx context.Context, tab string, schema []string, rows [][]any) error {
	if _, err := s.tabs.Ensure(ctx, tab, schema); err != nil {
		return err
	}
	return s.tabs.Overwrite(ctx, tab, rows)
}

func header(cols []string) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = c
	}
	return out
}

func sortedTeams(t goals.Teams) []string {
	out := make([]string, 0, len(t))
	for team := range t {
		out = append(out, team)
	}
	sort.Strings(out)
	return out
}
