package goals

import (
	"context"
	"sync"
)

// MemoryStore keeps goals in process. It backs the service when no spreadsheet
// is configured and in tests.
type MemoryStore struct {
	mu          sync.RWMutex
	teams       Teams
	sellerGoals SellerGoals
	lineGoals   LineGoals
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{teams: Teams{}, sellerGoals: SellerGoals{}, lineGoals: LineGoals{}}
}

func (m *MemoryStore) Teams(context.Context) (Teams, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(Teams, len(m.teams))
	for team, members := range m.teams {
		out[team] = append([]int64(nil), members...)
	}
	return out, nil
}

func (m *MemoryStore) SaveTeams(_ context.Context, teams Teams, _ []Seller) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams = MergeTeams(nil, teams)
	return nil
}

func (m *MemoryStore) SellerGoals(context.Context) (SellerGoals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(SellerGoals, len(m.sellerGoals))
	for team, sellers := range m.sellerGoals {
		for seller, months := range sellers {
			for month, g := range months {
				out.Set(team, seller, month, g)
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveSellerGoals(_ context.Context, goals SellerGoals) error {
	copied := make(SellerGoals, len(goals))
	for team, sellers := range goals {
		for seller, months := range sellers {
			for month, g := range months {
				copied.Set(team, seller, month, g)
			}
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sellerGoals = copied
	return nil
}

func (m *MemoryStore) LineGoals(context.Context) (LineGoals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyLineGoals(m.lineGoals), nil
}

func (m *MemoryStore) SaveLineGoals(_ context.Context, goals LineGoals) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lineGoals = copyLineGoals(goals)
	return nil
}

func copyLineGoals(in LineGoals) LineGoals {
	out := make(LineGoals, len(in))
	for month, lines := range in {
		out[month] = make(map[string]Goal, len(lines))
		for slug, g := range lines {
			out[month][slug] = g
		}
	}
	return out
}
