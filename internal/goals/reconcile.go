package goals

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/salesdash/salesdash/internal/aggregate"
)

// AdjustmentsID identifies the synthetic row of sales without a salesperson.
const AdjustmentsID = "ajustes"

// AdjustmentsName labels the adjustments row.
const AdjustmentsName = "Ajustes y Notas de Crédito (Sin Vendedor)"

// Row is one salesperson line of the goal table.
type Row struct {
	ID                 string  `json:"id"`
	SellerID           int64   `json:"seller_id,omitempty"`
	Name               string  `json:"name"`
	Member             bool    `json:"member"`
	Target             float64 `json:"target"`
	Sales              float64 `json:"sales"`
	PercentOfTarget    float64 `json:"percent_of_target"`
	TargetNew          float64 `json:"target_new"`
	NewSales           float64 `json:"new_sales"`
	PercentOfTargetNew float64 `json:"percent_of_target_new"`
	Expiring           float64 `json:"expiring"`
	PercentOfTotal     float64 `json:"percent_of_total"`
}

// IsAdjustment reports whether r is the synthetic no-salesperson row.
func (r Row) IsAdjustment() bool { return r.ID == AdjustmentsID }

// Totals are the line rollup of a reconciliation.
type Totals struct {
	Target    float64 `json:"target"`
	Sales     float64 `json:"sales"`
	TargetNew float64 `json:"target_new"`
	NewSales  float64 `json:"new_sales"`
	Expiring  float64 `json:"expiring"`
}

// Reconciliation is the goal table of one commercial line and month.
type Reconciliation struct {
	Rows   []Row  `json:"rows"`
	Totals Totals `json:"totals"`
}

// Input carries everything needed to reconcile one line.
type Input struct {
	Actuals aggregate.LineActuals
	// Members are the official team members.
	Members []int64
	// Goals holds the month's goal per seller. Entries for non-members are ignored.
	Goals map[int64]Goal
	// Names resolves sellers that have no sales in the period.
	Names map[int64]string
}

// Reconcile builds the goal table. The roster is the union of official members and
// sellers with sales; only members carry goals. Totals include every roster row
// and the adjustments, while rows with negative sales are hidden from the table.
func Reconcile(in Input) Reconciliation {
	members := make(map[int64]struct{}, len(in.Members))
	for _, id := range in.Members {
		members[id] = struct{}{}
	}
	actuals := make(map[int64]aggregate.SellerActual, len(in.Actuals.Sellers))
	roster := make(map[int64]struct{}, len(members)+len(in.Actuals.Sellers))
	for _, s := range in.Actuals.Sellers {
		actuals[s.ID] = s
		roster[s.ID] = struct{}{}
	}
	for id := range members {
		roster[id] = struct{}{}
	}
	ids := make([]int64, 0, len(roster))
	for id := range roster {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out Reconciliation
	rows := make([]Row, 0, len(ids)+1)
	for _, id := range ids {
		actual := actuals[id]
		_, member := members[id]
		row := Row{
			ID:       strconv.FormatInt(id, 10),
			SellerID: id,
			Name:     sellerName(id, actual, in.Names),
			Member:   member,
			Sales:    actual.Sales,
			NewSales: actual.NewSales,
			Expiring: actual.Expiring,
		}
		if member {
			g := in.Goals[id]
			row.Target, row.TargetNew = g.Target, g.TargetNew
		}
		row.PercentOfTarget = Percent(row.Sales, row.Target)
		row.PercentOfTargetNew = Percent(row.NewSales, row.TargetNew)

		out.Totals.Target += row.Target
		out.Totals.Sales += row.Sales
		out.Totals.TargetNew += row.TargetNew
		out.Totals.NewSales += row.NewSales
		out.Totals.Expiring += row.Expiring
		rows = append(rows, row)
	}
	if adj := in.Actuals.Adjustments; adj != 0 {
		rows = append(rows, Row{ID: AdjustmentsID, Name: AdjustmentsName, Sales: adj})
		out.Totals.Sales += adj
	}

	visible := rows[:0]
	for _, r := range rows {
		if r.Sales >= 0 || r.IsAdjustment() {
			visible = append(visible, r)
		}
	}
	var shown float64
	for _, r := range visible {
		shown += r.Sales
	}
	for i := range visible {
		if shown > 0 {
			visible[i].PercentOfTotal = visible[i].Sales / shown * 100
		}
	}
	sort.SliceStable(visible, func(i, j int) bool { return visible[i].Sales > visible[j].Sales })
	out.Rows = visible
	return out
}

func sellerName(id int64, actual aggregate.SellerActual, names map[int64]string) string {
	if actual.Name != "" {
		return actual.Name
	}
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("Vendedor ID %d", id)
}

// Percent returns actual as a percentage of target, or 0 without a target.
func Percent(actual, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return actual / target * 100
}
