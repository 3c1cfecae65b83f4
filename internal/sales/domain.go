package sales

import (
	"time"

	"github.com/salesdash/salesdash/internal/ledger"
	"github.com/salesdash/salesdash/internal/shared"
)

// DateLayout is the wire format of ERP dates and of the date filters.
const DateLayout = "2006-01-02"

// ============================================================================
// SALES LINE
// ============================================================================

// SalesLine is one posted invoice or credit-note line joined with its invoice,
// order, product and partner. Amounts are sign-corrected: invoices are positive,
// credit notes negative.
type SalesLine struct {
	ID            int64  `json:"id"`
	MoveID        int64  `json:"move_id"`
	MoveName      string `json:"move_name"`
	MoveType      string `json:"move_type"`
	InvoiceOrigin string `json:"invoice_origin"`
	OrderID       int64  `json:"order_id,omitempty"`
	OrderName     string `json:"order_name"`

	PartnerID     int64  `json:"partner_id,omitempty"`
	ClientName    string `json:"client_name"`
	ClientVAT     string `json:"client_vat"`
	ClientCountry string `json:"client_country"`

	InvoiceDate string `json:"invoice_date"`
	Month       string `json:"month"`

	ProductID   int64  `json:"product_id,omitempty"`
	ProductCode string `json:"product_code"`
	ProductName string `json:"product_name"`

	CommercialLine       ledger.Relation `json:"commercial_line"`
	Category             ledger.Relation `json:"category"`
	PharmacologicalClass ledger.Relation `json:"pharmacological_class"`
	PharmaceuticalForm   ledger.Relation `json:"pharmaceutical_form"`
	AdministrationRoute  ledger.Relation `json:"administration_route"`
	ProductionLine       ledger.Relation `json:"production_line"`
	LifeCycle            string          `json:"life_cycle"`
	Route                ledger.Relation `json:"route"`

	Channel     ledger.Relation `json:"channel"`
	Salesperson ledger.Relation `json:"salesperson"`
	Journal     ledger.Relation `json:"journal"`

	Quantity       float64 `json:"quantity"`
	UnitPrice      float64 `json:"unit_price"`
	Total          float64 `json:"total"`
	AmountCurrency float64 `json:"amount_currency"`
	Taxes          string  `json:"taxes"`
}

// Date parses the invoice date. The zero time is returned for missing dates.
func (l SalesLine) Date() time.Time {
	t, err := time.Parse(DateLayout, l.InvoiceDate)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ============================================================================
// QUERY
// ============================================================================

// Filter narrows the lines returned by the assembler. Zero values mean "not set".
type Filter struct {
	DateFrom         time.Time
	DateTo           time.Time
	PartnerID        int64
	CommercialLineID int64
	Search           string
	Page             int
	PerPage          int

	// Extra is AND-ed onto the line domain, e.g. a channel scope.
	Extra ledger.Domain
}

// Result is one assembled page.
type Result struct {
	Lines    []SalesLine       `json:"rows"`
	Page     shared.Pagination `json:"page_info"`
	Degraded bool              `json:"degraded"`
}

// Cacheable reports whether the result reflects live ledger data.
func (r Result) Cacheable() bool { return !r.Degraded }

// ============================================================================
// FILTER OPTIONS
// ============================================================================

// Option is a selectable id/name pair.
type Option struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FilterOptions lists the values the query surface offers for filtering.
type FilterOptions struct {
	CommercialLines []Option `json:"commercial_lines"`
	Customers       []Option `json:"customers"`
	Degraded        bool     `json:"degraded"`
}

// Cacheable reports whether the options reflect live ledger data.
func (o FilterOptions) Cacheable() bool { return !o.Degraded }

// Seller is a salesperson that has invoiced at least once.
type Seller struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Invoices int64  `json:"invoices"`
}
