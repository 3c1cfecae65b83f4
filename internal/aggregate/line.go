package aggregate

import (
	"sort"
	"strings"

	"github.com/salesdash/salesdash/internal/classify"
	"github.com/salesdash/salesdash/internal/sales"
)

const (
	topLineProducts = 7
	// LifeCycleNew marks products launched recently ("IPN" sales).
	LifeCycleNew = "nuevo"
)

// DefaultExpiringRoutes are the delivery routes used for stock close to expiry.
var DefaultExpiringRoutes = []int64{18, 19}

// SellerActual is what one salesperson sold within a commercial line.
type SellerActual struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Sales    float64 `json:"sales"`
	NewSales float64 `json:"new_sales"`
	Expiring float64 `json:"expiring"`
}

// LineActuals aggregates one commercial line for the line dashboard.
type LineActuals struct {
	Line        string         `json:"line"`
	Sellers     []SellerActual `json:"sellers"`
	Adjustments float64        `json:"adjustments"`
	Total       float64        `json:"total"`
	TopProducts []Bucket       `json:"top_products"`
	ByLifeCycle []Bucket       `json:"by_life_cycle"`
	ByForm      []Bucket       `json:"by_form"`
}

// ActualsForLine aggregates the lines of the named commercial line. Lines without a
// salesperson are summed into Adjustments. Sellers are ordered by id.
func ActualsForLine(lines []sales.SalesLine, lineName string, expiringRoutes []int64) LineActuals {
	out := LineActuals{Line: lineName, Sellers: []SellerActual{}}
	expiring := make(map[int64]struct{}, len(expiringRoutes))
	for _, id := range expiringRoutes {
		expiring[id] = struct{}{}
	}

	matched := make([]sales.SalesLine, 0)
	bySeller := make(map[int64]*SellerActual)
	for _, l := range lines {
		if !l.CommercialLine.Valid() || !strings.EqualFold(strings.TrimSpace(l.CommercialLine.Name), strings.TrimSpace(lineName)) {
			continue
		}
		matched = append(matched, l)
		out.Total += l.Total
		if !l.Salesperson.Valid() {
			out.Adjustments += l.Total
			continue
		}
		s, ok := bySeller[l.Salesperson.ID]
		if !ok {
			s = &SellerActual{ID: l.Salesperson.ID, Name: l.Salesperson.Name}
			bySeller[l.Salesperson.ID] = s
		}
		s.Sales += l.Total
		if IsNewProduct(l) {
			s.NewSales += l.Total
		}
		if _, ok := expiring[l.Route.ID]; ok && l.Route.Valid() {
			s.Expiring += l.Total
		}
	}
	for _, s := range bySeller {
		out.Sellers = append(out.Sellers, *s)
	}
	sort.Slice(out.Sellers, func(i, j int) bool { return out.Sellers[i].ID < out.Sellers[j].ID })

	named := make([]sales.SalesLine, 0, len(matched))
	for _, l := range matched {
		if strings.TrimSpace(l.ProductName) != "" {
			named = append(named, l)
		}
	}
	out.TopProducts = TopN(GroupLines(named, func(l sales.SalesLine) string { return strings.TrimSpace(l.ProductName) }), topLineProducts)
	out.ByLifeCycle = GroupLines(matched, func(l sales.SalesLine) string { return classify.CategoryBreakdown(l).LifeCycle })
	out.ByForm = GroupLines(matched, func(l sales.SalesLine) string { return classify.CategoryBreakdown(l).Form })
	return out
}

// IsNewProduct reports whether the line sold a product in its launch stage.
func IsNewProduct(l sales.SalesLine) bool {
	return strings.EqualFold(strings.TrimSpace(l.LifeCycle), LifeCycleNew)
}

// CommercialLineNames lists the upper-cased commercial line names present in lines,
// skipping international lines and the excluded names.
func CommercialLineNames(lines []sales.SalesLine, excluded []string) []string {
	skip := make(map[string]struct{}, len(excluded))
	for _, name := range excluded {
		skip[strings.ToUpper(strings.TrimSpace(name))] = struct{}{}
	}
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, l := range lines {
		if !l.CommercialLine.Valid() {
			continue
		}
		name := strings.ToUpper(strings.TrimSpace(l.CommercialLine.Name))
		if name == "" || classify.ContainsMarker(name) {
			continue
		}
		if _, ok := skip[name]; ok {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
