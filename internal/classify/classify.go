// Package classify assigns sales lines to channels and grouping buckets.
package classify

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/salesdash/salesdash/internal/ledger"
	"github.com/salesdash/salesdash/internal/sales"
)

// InternationalMarker identifies the export channel in line and team names.
const InternationalMarker = "INTERNACIONAL"

// Placeholders used when a grouping attribute is missing, so unknown rows merge
// into a single bucket.
const (
	NoCommercialLine  = "Sin Línea Comercial"
	NoPharmacological = "Sin Clasificación"
	NoForm            = "Instrumental"
	NoRoute           = "Sin Vía"
	NoProductionLine  = "Sin Línea de Producción"
	NoCategory        = "Sin Categoría"
	NoLifeCycle       = "No definido"
	NoChannel         = "Sin Canal"
	NoSeller          = "Sin Vendedor Asignado"
	NoClient          = "Sin Cliente"
	NoProduct         = "Sin Producto"
)

// upper folds s for accent-aware comparisons. A Caser is not safe for concurrent
// use, so one is created per call.
func upper(s string) string {
	return cases.Upper(language.Spanish).String(s)
}

// ContainsMarker reports whether name mentions the international channel.
func ContainsMarker(name string) bool {
	return name != "" && strings.Contains(upper(name), InternationalMarker)
}

// IsInternational is true when either the commercial line or the sales channel
// is international.
func IsInternational(line sales.SalesLine) bool {
	return ContainsMarker(line.CommercialLine.Name) || ContainsMarker(line.Channel.Name)
}

// Breakdown is the canonical category split of a line. Every field is non-empty.
type Breakdown struct {
	CommercialLine  string `json:"commercial_line"`
	Pharmacological string `json:"pharmacological"`
	Form            string `json:"form"`
	Route           string `json:"route"`
	ProductionLine  string `json:"production_line"`
	Category        string `json:"category"`
	LifeCycle       string `json:"life_cycle"`
}

// CategoryBreakdown extracts the grouping names of a line, substituting placeholders.
func CategoryBreakdown(line sales.SalesLine) Breakdown {
	return Breakdown{
		CommercialLine:  nameOr(line.CommercialLine, NoCommercialLine),
		Pharmacological: nameOr(line.PharmacologicalClass, NoPharmacological),
		Form:            nameOr(line.PharmaceuticalForm, NoForm),
		Route:           nameOr(line.AdministrationRoute, NoRoute),
		ProductionLine:  nameOr(line.ProductionLine, NoProductionLine),
		Category:        nameOr(line.Category, NoCategory),
		LifeCycle:       textOr(line.LifeCycle, NoLifeCycle),
	}
}

// ChannelName returns the sales channel or its placeholder.
func ChannelName(line sales.SalesLine) string { return nameOr(line.Channel, NoChannel) }

// SellerName returns the salesperson or its placeholder.
func SellerName(line sales.SalesLine) string { return nameOr(line.Salesperson, NoSeller) }

// ClientName returns the client or its placeholder.
func ClientName(line sales.SalesLine) string { return textOr(line.ClientName, NoClient) }

// ProductName returns the product or its placeholder.
func ProductName(line sales.SalesLine) string { return textOr(line.ProductName, NoProduct) }

func nameOr(rel ledger.Relation, fallback string) string {
	if !rel.Valid() {
		return fallback
	}
	return textOr(rel.Name, fallback)
}

func textOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// ============================================================================
// SCOPE
// ============================================================================

// Scope restricts a query to a channel.
type Scope string

// Scopes.
const (
	ScopeAll           Scope = "all"
	ScopeInternational Scope = "international"
	ScopeNational      Scope = "national"
)

// ParseScope accepts the scope names; empty yields fallback.
func ParseScope(raw string, fallback Scope) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return fallback, nil
	case ScopeAll:
		return ScopeAll, nil
	case ScopeInternational:
		return ScopeInternational, nil
	case ScopeNational:
		return ScopeNational, nil
	default:
		return "", fmt.Errorf("classify: unknown scope %q", raw)
	}
}

// Match reports whether line belongs to s.
func (s Scope) Match(line sales.SalesLine) bool {
	switch s {
	case ScopeInternational:
		return IsInternational(line)
	case ScopeNational:
		return !IsInternational(line)
	default:
		return true
	}
}

// Filter keeps the lines belonging to s.
func (s Scope) Filter(lines []sales.SalesLine) []sales.SalesLine {
	if s == ScopeAll || s == "" {
		return lines
	}
	out := make([]sales.SalesLine, 0, len(lines))
	for _, l := range lines {
		if s.Match(l) {
			out = append(out, l)
		}
	}
	return out
}

// Domain pushes the scope down to the ledger so paginated listings count correctly.
// The ledger's ilike is case-insensitive, matching IsInternational.
func (s Scope) Domain() ledger.Domain {
	switch s {
	case ScopeInternational:
		return ledger.AnyOf(
			ledger.Term("product_id.commercial_line_national_id.name", "ilike", InternationalMarker),
			ledger.Term("move_id.team_id.name", "ilike", InternationalMarker),
		)
	case ScopeNational:
		// A dotted filter never matches a missing relation on the ledger, so
		// lines without a commercial line or team need their own alternative.
		return ledger.AnyOf(
			ledger.Term("product_id.commercial_line_national_id", "=", false),
			ledger.Term("product_id.commercial_line_national_id.name", "not ilike", InternationalMarker),
		).With(ledger.AnyOf(
			ledger.Term("move_id.team_id", "=", false),
			ledger.Term("move_id.team_id.name", "not ilike", InternationalMarker),
		))
	default:
		return nil
	}
}
