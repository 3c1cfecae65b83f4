package sales

import (
	"fmt"
	"strings"

	"github.com/salesdash/salesdash/internal/ledger"
)

// Eligibility presets.
const (
	PresetStandard = "standard"
	PresetExport   = "export"
)

// DefaultExcludedCategories are product categories that never count as sales
// (services, freight, samples and similar).
var DefaultExcludedCategories = []int64{315, 333, 304, 314, 318, 339}

// Eligibility is a named predicate deciding which accounting lines count as sales.
// It is combined with the base rules applied to every query: posted customer
// invoices and credit notes whose product carries an internal code.
type Eligibility struct {
	Name  string
	Terms ledger.Domain
}

// EligibilityOptions parameterises the presets.
type EligibilityOptions struct {
	ExcludedCategoryIDs  []int64
	ExportJournalIDs     []int64
	AccountCodePrefix    string
	ExcludedProductCodes []string
}

// StandardEligibility excludes non-qualifying product categories.
func StandardEligibility(excludedCategories []int64) Eligibility {
	e := Eligibility{Name: PresetStandard}
	if len(excludedCategories) > 0 {
		e.Terms = e.Terms.Where("product_id.categ_id", "not in", ledger.Int64s(excludedCategories))
	}
	return e
}

// ExportEligibility restricts lines to the export journals and income accounts, and
// drops service product codes.
func ExportEligibility(journalIDs []int64, accountPrefix string, excludedCodes []string) Eligibility {
	e := Eligibility{Name: PresetExport}
	if len(journalIDs) > 0 {
		e.Terms = e.Terms.Where("move_id.journal_id", "in", ledger.Int64s(journalIDs))
	}
	if prefix := strings.TrimSpace(accountPrefix); prefix != "" {
		e.Terms = e.Terms.Where("account_id.code", "=like", prefix+"%")
	}
	if len(excludedCodes) > 0 {
		e.Terms = e.Terms.Where("product_id.default_code", "not in", ledger.Strings(excludedCodes))
	}
	return e
}

// EligibilityPreset resolves a preset by name.
func EligibilityPreset(name string, opts EligibilityOptions) (Eligibility, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PresetStandard:
		excluded := opts.ExcludedCategoryIDs
		if excluded == nil {
			excluded = DefaultExcludedCategories
		}
		return StandardEligibility(excluded), nil
	case PresetExport:
		if len(opts.ExportJournalIDs) == 0 && opts.AccountCodePrefix == "" {
			return Eligibility{}, fmt.Errorf("sales: preset %q needs journal ids or an account prefix", PresetExport)
		}
		return ExportEligibility(opts.ExportJournalIDs, opts.AccountCodePrefix, opts.ExcludedProductCodes), nil
	default:
		return Eligibility{}, fmt.Errorf("sales: unknown eligibility preset %q", name)
	}
}

// Domain returns the full accounting-line filter for f.
func (e Eligibility) Domain(f Filter) ledger.Domain {
	d := ledger.Domain{}.
		Where("product_id", "!=", false).
		Where("product_id.default_code", "!=", false).
		Where("move_id.move_type", "in", ledger.Strings([]string{"out_invoice", "out_refund"})).
		Where("move_id.state", "=", "posted")
	d = d.With(e.Terms.Clone())

	if !f.DateFrom.IsZero() {
		d = d.Where("move_id.invoice_date", ">=", f.DateFrom.Format(DateLayout))
	}
	if !f.DateTo.IsZero() {
		d = d.Where("move_id.invoice_date", "<=", f.DateTo.Format(DateLayout))
	}
	if f.PartnerID > 0 {
		d = d.Where("move_id.partner_id", "=", f.PartnerID)
	}
	if f.CommercialLineID > 0 {
		d = d.Where("product_id.commercial_line_national_id", "=", f.CommercialLineID)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		d = d.With(ledger.AnyOf(
			ledger.Term("move_id.name", "ilike", term),
			ledger.Term("move_id.invoice_origin", "ilike", term),
			ledger.Term("product_id.name", "ilike", term),
			ledger.Term("product_id.default_code", "ilike", term),
			ledger.Term("move_id.partner_id.name", "ilike", term),
		))
	}
	return d.With(f.Extra.Clone())
}
