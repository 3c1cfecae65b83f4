package sales

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdash/salesdash/internal/ledger"
	"github.com/salesdash/salesdash/internal/ledger/ledgertest"
)

// ============================================================================
// FIXTURES
// ============================================================================

func pair(id int64, name string) []any { return []any{id, name} }

func seededLedger() *ledgertest.Fake {
	fake := ledgertest.New().
		Relate(ledger.ModelInvoiceLine, "move_id", ledger.ModelInvoice).
		Relate(ledger.ModelInvoiceLine, "product_id", ledger.ModelProduct).
		Relate(ledger.ModelInvoice, "partner_id", ledger.ModelPartner)

	fake.Add(ledger.ModelPartner,
		ledger.Record{"id": int64(10), "name": "ACME Vet SAC", "vat": "20123456789", "country_id": pair(173, "Perú")},
		ledger.Record{"id": int64(11), "name": "Bolivia Pharma", "vat": "", "country_id": pair(29, "Bolivia")},
	)
	fake.Add(ledger.ModelProduct,
		ledger.Record{
			"id": int64(100), "name": "Amoxicilina 500", "default_code": "AMX500",
			"categ_id":                          pair(1, "Medicamentos"),
			"commercial_line_national_id":       pair(5, "PETMEDICA"),
			"pharmacological_classification_id": pair(7, "Antibióticos"),
			"pharmaceutical_forms_id":           pair(8, "Tableta"),
			"administration_way_id":             pair(9, "Oral"),
			"production_line_id":                pair(12, "Sólidos"),
			"product_life_cycle":                "nuevo",
		},
		ledger.Record{
			"id": int64(101), "name": "Ivermectina 1%", "default_code": "IVM1",
			"categ_id":                    pair(2, "Antiparasitarios"),
			"commercial_line_national_id": pair(6, "VENTA INTERNACIONAL"),
			"pharmaceutical_forms_id":     false,
			"product_life_cycle":          false,
		},
		ledger.Record{"id": int64(102), "name": "Flete", "default_code": "FLT", "categ_id": pair(315, "Servicios")},
		ledger.Record{"id": int64(103), "name": "Sin código", "default_code": false, "categ_id": pair(1, "Medicamentos")},
	)
	fake.Add(ledger.ModelInvoice,
		ledger.Record{
			"id": int64(1000), "name": "F001-0001", "move_type": "out_invoice", "state": "posted",
			"invoice_date": "2025-03-05", "invoice_origin": "S00100", "order_id": pair(500, "S00100"),
			"partner_id": pair(10, "ACME Vet SAC"), "team_id": pair(3, "VENTA NACIONAL"),
			"invoice_user_id": pair(12, "Ana Torres"), "journal_id": pair(1, "Facturas"),
		},
		ledger.Record{
			"id": int64(1001), "name": "NC01-0001", "move_type": "out_refund", "state": "posted",
			"invoice_date": "2025-03-10", "invoice_origin": "S00791", "order_id": false,
			"partner_id": pair(11, "Bolivia Pharma"), "team_id": pair(4, "VENTA INTERNACIONAL"),
			"invoice_user_id": false, "journal_id": pair(2, "Notas de crédito"),
		},
		ledger.Record{
			"id": int64(1002), "name": "F001-0002", "move_type": "out_invoice", "state": "posted",
			"invoice_date": "2025-03-12", "invoice_origin": "POS/0042", "order_id": false,
			"partner_id": pair(10, "ACME Vet SAC"), "team_id": pair(3, "VENTA NACIONAL"),
		},
		ledger.Record{
			"id": int64(1003), "name": "F001-0003", "move_type": "out_invoice", "state": "draft",
			"invoice_date": "2025-03-12", "partner_id": pair(10, "ACME Vet SAC"),
		},
	)
	fake.Add(ledger.ModelOrder,
		ledger.Record{"id": int64(500), "name": "S00100", "state": "sale"},
		ledger.Record{"id": int64(501), "name": "S00791", "state": "credit"},
	)
	fake.Add(ledger.ModelOrderLine,
		ledger.Record{"id": int64(900), "order_id": pair(500, "S00100"), "product_id": pair(100, "Amoxicilina 500"), "route_id": pair(18, "Por vencer")},
	)
	fake.Add(ledger.ModelTax,
		ledger.Record{"id": int64(1), "name": "IGV 18%"},
		ledger.Record{"id": int64(2), "name": "ISC"},
	)
	fake.Add(ledger.ModelInvoiceLine,
		ledger.Record{"id": int64(1), "move_id": pair(1000, "F001-0001"), "product_id": pair(100, "Amoxicilina 500"),
			"partner_id": pair(10, "ACME Vet SAC"), "balance": -100.0, "amount_currency": -26.5,
			"quantity": 10.0, "price_unit": 10.0, "tax_ids": []any{int64(1), int64(2)}},
		ledger.Record{"id": int64(2), "move_id": pair(1001, "NC01-0001"), "product_id": pair(101, "Ivermectina 1%"),
			"partner_id": false, "balance": 40.0, "amount_currency": 40.0,
			"quantity": 2.0, "price_unit": 20.0, "tax_ids": []any{}},
		ledger.Record{"id": int64(3), "move_id": pair(1002, "F001-0002"), "product_id": pair(101, "Ivermectina 1%"),
			"partner_id": pair(10, "ACME Vet SAC"), "balance": -60.0, "quantity": 3.0, "price_unit": 20.0},
		ledger.Record{"id": int64(4), "move_id": pair(1000, "F001-0001"), "product_id": pair(102, "Flete"),
			"balance": -5.0, "quantity": 1.0, "price_unit": 5.0},
		ledger.Record{"id": int64(5), "move_id": pair(1000, "F001-0001"), "product_id": pair(103, "Sin código"),
			"balance": -7.0, "quantity": 1.0, "price_unit": 7.0},
		ledger.Record{"id": int64(6), "move_id": pair(1003, "F001-0003"), "product_id": pair(100, "Amoxicilina 500"),
			"balance": -9.0, "quantity": 1.0, "price_unit": 9.0},
	)
	return fake
}

func marchFilter() Filter {
	return Filter{
		DateFrom: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func byID(lines []SalesLine) map[int64]SalesLine {
	out := make(map[int64]SalesLine, len(lines))
	for _, l := range lines {
		out[l.ID] = l
	}
	return out
}

// ============================================================================
// ASSEMBLE
// ============================================================================

func TestAssembleJoinsRelatedRecords(t *testing.T) {
	assembler := NewAssembler(seededLedger(), nil, Config{})

	res, err := assembler.Assemble(context.Background(), marchFilter())
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	require.Len(t, res.Lines, 3)
	assert.Equal(t, 3, res.Page.Total)
	assert.Equal(t, 1, res.Page.TotalPages)

	lines := byID(res.Lines)

	invoice := lines[1]
	assert.Equal(t, 100.0, invoice.Total)
	assert.Equal(t, 26.5, invoice.AmountCurrency)
	assert.Equal(t, "S00100", invoice.OrderName)
	assert.Equal(t, int64(500), invoice.OrderID)
	assert.Equal(t, "ACME Vet SAC", invoice.ClientName)
	assert.Equal(t, "Perú", invoice.ClientCountry)
	assert.Equal(t, "20123456789", invoice.ClientVAT)
	assert.Equal(t, "Marzo 2025", invoice.Month)
	assert.Equal(t, "AMX500", invoice.ProductCode)
	assert.Equal(t, "PETMEDICA", invoice.CommercialLine.Name)
	assert.Equal(t, "Tableta", invoice.PharmaceuticalForm.Name)
	assert.Equal(t, "nuevo", invoice.LifeCycle)
	assert.Equal(t, int64(18), invoice.Route.ID)
	assert.Equal(t, "IGV 18%, ISC", invoice.Taxes)
	assert.Equal(t, "Ana Torres", invoice.Salesperson.Name)

	refund := lines[2]
	assert.Equal(t, -40.0, refund.Total, "credit notes stay negative")
	assert.Equal(t, -40.0, refund.AmountCurrency)
	assert.Equal(t, "S00791", refund.OrderName, "order resolved through the invoice origin")
	assert.Equal(t, "Bolivia Pharma", refund.ClientName, "partner comes from the invoice")
	assert.False(t, refund.Salesperson.Valid())
	assert.False(t, refund.PharmaceuticalForm.Valid())

	unlinked := lines[3]
	assert.Equal(t, "POS/0042", unlinked.OrderName, "falls back to the invoice origin")
	assert.Zero(t, unlinked.OrderID)
}

func TestAssembleTotalsAreSignFlipped(t *testing.T) {
	fake := seededLedger()
	res, err := NewAssembler(fake, nil, Config{}).Assemble(context.Background(), marchFilter())
	require.NoError(t, err)

	raw := ledger.Index(mustSearch(t, fake))
	for _, line := range res.Lines {
		assert.Equal(t, -raw[line.ID].Float("balance"), line.Total)
		assert.Equal(t, -raw[line.ID].Float("amount_currency"), line.AmountCurrency)
	}
}

func mustSearch(t *testing.T, fake *ledgertest.Fake) []ledger.Record {
	t.Helper()
	recs, err := fake.SearchRead(context.Background(), ledger.ModelInvoiceLine, nil, ledger.ReadOptions{})
	require.NoError(t, err)
	return recs
}

func TestAssembleExcludesIneligibleLines(t *testing.T) {
	res, err := NewAssembler(seededLedger(), nil, Config{}).Assemble(context.Background(), marchFilter())
	require.NoError(t, err)
	ids := byID(res.Lines)
	assert.NotContains(t, ids, int64(4), "excluded category")
	assert.NotContains(t, ids, int64(5), "product without code")
	assert.NotContains(t, ids, int64(6), "draft invoice")
}

func TestAssembleSearchMatchesAnyField(t *testing.T) {
	assembler := NewAssembler(seededLedger(), nil, Config{})
	ctx := context.Background()

	cases := map[string][]int64{
		"amoxi":    {1},
		"bolivia":  {2},
		"F001-000": {1, 3},
		"IVM":      {2, 3},
		"S00791":   {2},
	}
	for term, want := range cases {
		f := marchFilter()
		f.Search = term
		res, err := assembler.Assemble(ctx, f)
		require.NoError(t, err, term)
		got := make([]int64, 0, len(res.Lines))
		for _, l := range res.Lines {
			got = append(got, l.ID)
		}
		assert.ElementsMatch(t, want, got, term)
		assert.Equal(t, len(want), res.Page.Total, term)
	}
}

func TestAssemblePartnerAndLineFilters(t *testing.T) {
	assembler := NewAssembler(seededLedger(), nil, Config{})
	f := marchFilter()
	f.PartnerID = 10
	res, err := assembler.Assemble(context.Background(), f)
	require.NoError(t, err)
	assert.Len(t, res.Lines, 2)

	f = marchFilter()
	f.CommercialLineID = 6
	res, err = assembler.Assemble(context.Background(), f)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{2, 3}, []int64{res.Lines[0].ID, res.Lines[1].ID})
}

func TestAssemblePaginatesFromCount(t *testing.T) {
	assembler := NewAssembler(seededLedger(), nil, Config{})
	f := marchFilter()
	f.PerPage = 2
	f.Page = 2
	res, err := assembler.Assemble(context.Background(), f)
	require.NoError(t, err)
	assert.Len(t, res.Lines, 1)
	assert.Equal(t, 3, res.Page.Total)
	assert.Equal(t, 2, res.Page.TotalPages)
	assert.Equal(t, 2, res.Page.Page)
}

func TestAssembleIsIdempotent(t *testing.T) {
	assembler := NewAssembler(seededLedger(), nil, Config{})
	first, err := assembler.Assemble(context.Background(), marchFilter())
	require.NoError(t, err)
	second, err := assembler.Assemble(context.Background(), marchFilter())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAssembleDegradesWhenLedgerOffline(t *testing.T) {
	fake := seededLedger().Fail("", ledger.ErrOffline)
	f := marchFilter()
	f.Page = 3
	f.PerPage = 50

	res, err := NewAssembler(fake, nil, Config{}).Assemble(context.Background(), f)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.False(t, res.Cacheable())
	assert.Empty(t, res.Lines)
	assert.NotNil(t, res.Lines)
	assert.Equal(t, 3, res.Page.Page)
	assert.Equal(t, 50, res.Page.PerPage)
	assert.Zero(t, res.Page.Total)
	assert.Zero(t, res.Page.TotalPages)
}

func TestAssembleReturnsUnexpectedErrors(t *testing.T) {
	fake := seededLedger().Fail(ledger.ModelProduct, errors.New("fault 2: access denied"))
	res, err := NewAssembler(fake, nil, Config{}).Assemble(context.Background(), marchFilter())
	require.Error(t, err)
	assert.True(t, res.Degraded)
}

func TestAssembleToleratesSupplementaryLookupFailures(t *testing.T) {
	fake := seededLedger().
		Fail(ledger.ModelOrder, ledger.ErrTimeout).
		Fail(ledger.ModelTax, errors.New("boom"))

	res, err := NewAssembler(fake, nil, Config{}).Assemble(context.Background(), marchFilter())
	require.NoError(t, err)
	require.Len(t, res.Lines, 3)
	line := byID(res.Lines)[1]
	assert.Equal(t, "S00100", line.OrderName, "origin fallback still applies")
	assert.Empty(t, line.Taxes)
	assert.False(t, line.Route.Valid())
}

func TestAssembleSubstitutesMissingPartner(t *testing.T) {
	fake := ledgertest.New().
		Add(ledger.ModelInvoice, ledger.Record{
			"id": int64(1), "name": "F1", "move_type": "out_invoice", "state": "posted",
			"invoice_date": "2025-03-02", "partner_id": pair(77, "Cliente Borrado"),
		}).
		Add(ledger.ModelInvoiceLine, ledger.Record{
			"id": int64(1), "move_id": pair(1, "F1"), "product_id": pair(55, "Producto Borrado"), "balance": -10.0,
		})

	res, err := NewAssembler(fake, nil, Config{}).Assemble(context.Background(), marchFilter())
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)
	assert.Equal(t, "Cliente Borrado", res.Lines[0].ClientName)
	assert.Equal(t, "Producto Borrado", res.Lines[0].ProductName)
	assert.False(t, res.Lines[0].CommercialLine.Valid())
}

func TestAssembleDefaultsToLastThirtyDays(t *testing.T) {
	fake := seededLedger()
	now := time.Date(2025, 4, 15, 13, 0, 0, 0, time.UTC)
	_, err := NewAssembler(fake, nil, Config{}).WithNow(func() time.Time { return now }).
		Assemble(context.Background(), Filter{})
	require.NoError(t, err)

	calls := fake.CallsFor(ledger.ModelInvoiceLine, "search_count")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Domain, ledger.Term("move_id.invoice_date", ">=", "2025-03-16"))
}

func TestAssembleAll(t *testing.T) {
	assembler := NewAssembler(seededLedger(), nil, Config{MaxLines: 2})
	res, err := assembler.AssembleAll(context.Background(), marchFilter())
	require.NoError(t, err)
	assert.Len(t, res.Lines, 2)
	assert.Equal(t, 2, res.Page.Total)
}

// ============================================================================
// OPTIONS
// ============================================================================

func TestFilterOptions(t *testing.T) {
	fake := seededLedger().Add(ledger.ModelPartner,
		ledger.Record{"id": int64(12), "name": "Agro Norte", "customer_rank": int64(3)},
	)
	opts := NewAssembler(fake, nil, Config{}).FilterOptions(context.Background())
	assert.False(t, opts.Degraded)
	assert.Equal(t, []Option{{ID: 5, Name: "PETMEDICA"}, {ID: 6, Name: "VENTA INTERNACIONAL"}}, opts.CommercialLines)
	assert.Equal(t, []Option{{ID: 12, Name: "Agro Norte"}}, opts.Customers)
}

func TestFilterOptionsDegrade(t *testing.T) {
	opts := NewAssembler(ledgertest.New().Fail("", ledger.ErrOffline), nil, Config{}).FilterOptions(context.Background())
	assert.True(t, opts.Degraded)
	assert.Empty(t, opts.CommercialLines)
	assert.Empty(t, opts.Customers)
}

func TestSellers(t *testing.T) {
	sellers, err := NewAssembler(seededLedger(), nil, Config{}).Sellers(context.Background())
	require.NoError(t, err)
	require.Len(t, sellers, 1)
	assert.Equal(t, Seller{ID: 12, Name: "Ana Torres", Invoices: 1}, sellers[0])

	sellers, err = NewAssembler(ledgertest.New().Fail("", ledger.ErrOffline), nil, Config{}).Sellers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sellers)
}
