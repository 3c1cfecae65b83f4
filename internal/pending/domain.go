// Package pending reconstructs order lines that still have quantity to invoice.
package pending

import (
	"time"

	"github.com/salesdash/salesdash/internal/ledger"
	"github.com/salesdash/salesdash/internal/shared"
)

// Order states that can still be invoiced. StateCredit marks an order partially
// reversed by a credit note.
const (
	StateSale   = "sale"
	StateDone   = "done"
	StateCredit = "credit"
)

// PendingLine is one order line with quantity left to invoice, or a zero-total
// placeholder for an order of the filtered client with nothing pending.
type PendingLine struct {
	OrderLineID int64  `json:"order_line_id,omitempty"`
	OrderID     int64  `json:"order_id"`
	OrderName   string `json:"order_name"`
	OrderState  string `json:"order_state"`
	OrderDate   string `json:"order_date"`
	Month       string `json:"month"`

	PartnerID     int64  `json:"partner_id,omitempty"`
	ClientName    string `json:"client_name"`
	ClientVAT     string `json:"client_vat"`
	ClientCountry string `json:"client_country"`

	ProductID            int64           `json:"product_id,omitempty"`
	ProductCode          string          `json:"product_code"`
	ProductName          string          `json:"product_name"`
	CommercialLine       ledger.Relation `json:"commercial_line"`
	PharmacologicalClass ledger.Relation `json:"pharmacological_class"`
	PharmaceuticalForm   ledger.Relation `json:"pharmaceutical_form"`
	AdministrationRoute  ledger.Relation `json:"administration_route"`
	ProductionLine       ledger.Relation `json:"production_line"`

	Channel     ledger.Relation `json:"channel"`
	Salesperson ledger.Relation `json:"salesperson"`

	OrderedQuantity  float64 `json:"ordered_quantity"`
	InvoicedQuantity float64 `json:"invoiced_quantity"`
	PendingQuantity  float64 `json:"pending_quantity"`
	UnitPrice        float64 `json:"unit_price"`
	Discount         float64 `json:"discount"`
	TotalPending     float64 `json:"total_pending"`

	Placeholder bool `json:"placeholder"`
}

// Filter narrows the pending listing.
type Filter struct {
	DateFrom  time.Time
	DateTo    time.Time
	PartnerID int64
	Search    string
	Page      int
	PerPage   int
}

// Result is one page of pending lines.
type Result struct {
	Lines    []PendingLine     `json:"rows"`
	Page     shared.Pagination `json:"page_info"`
	Degraded bool              `json:"degraded"`
}

// Cacheable reports whether the result reflects live ledger data.
func (r Result) Cacheable() bool { return !r.Degraded }

// TotalPending sums the pending amount of the given lines.
func TotalPending(lines []PendingLine) float64 {
	var sum float64
	for _, l := range lines {
		sum += l.TotalPending
	}
	return sum
}
