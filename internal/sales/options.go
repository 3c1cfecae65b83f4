package sales

import (
	"context"
	"log/slog"
	"sort"

	"github.com/salesdash/salesdash/internal/ledger"
)

const (
	optionProductScan = 1000
	optionCustomerCap = 100
)

// FilterOptions lists the commercial lines and customers offered as filters.
// Failures degrade to empty lists.
func (a *Assembler) FilterOptions(ctx context.Context) FilterOptions {
	out := FilterOptions{CommercialLines: []Option{}, Customers: []Option{}}

	products, err := a.client.SearchRead(ctx, ledger.ModelProduct,
		ledger.Domain{}.Where("commercial_line_national_id", "!=", false),
		ledger.ReadOptions{Fields: []string{"commercial_line_national_id"}, Limit: optionProductScan})
	if err != nil {
		a.logger.Warn("commercial line options unavailable", slog.Any("error", err))
		out.Degraded = true
	}
	seen := make(map[int64]struct{})
	for _, p := range products {
		rel, ok := p.Relation("commercial_line_national_id")
		if !ok {
			continue
		}
		if _, dup := seen[rel.ID]; dup {
			continue
		}
		seen[rel.ID] = struct{}{}
		out.CommercialLines = append(out.CommercialLines, Option{ID: rel.ID, Name: rel.Name})
	}
	sortOptions(out.CommercialLines)

	partners, err := a.client.SearchRead(ctx, ledger.ModelPartner,
		ledger.Domain{}.Where("customer_rank", ">", 0),
		ledger.ReadOptions{Fields: []string{"name"}, Limit: optionCustomerCap})
	if err != nil {
		a.logger.Warn("customer options unavailable", slog.Any("error", err))
		out.Degraded = true
	}
	for _, p := range partners {
		out.Customers = append(out.Customers, Option{ID: p.ID(), Name: p.String("name")})
	}
	sortOptions(out.Customers)
	return out
}

// Sellers lists every salesperson that appears on an invoice, sorted by name.
func (a *Assembler) Sellers(ctx context.Context) ([]Seller, error) {
	groups, err := a.client.GroupBy(ctx, ledger.ModelInvoice,
		ledger.Domain{}.Where("invoice_user_id", "!=", false), "invoice_user_id")
	if err != nil {
		if ledger.IsUnavailable(err) {
			a.logger.Warn("seller list unavailable", slog.Any("error", err))
			return []Seller{}, nil
		}
		return nil, err
	}
	out := make([]Seller, 0, len(groups))
	for _, g := range groups {
		out = append(out, Seller{ID: g.Key.ID, Name: g.Key.Name, Invoices: g.Count})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func sortOptions(opts []Option) {
	sort.SliceStable(opts, func(i, j int) bool { return opts[i].Name < opts[j].Name })
}
