package pending

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdash/salesdash/internal/ledger"
	"github.com/salesdash/salesdash/internal/ledger/ledgertest"
)

func pair(id int64, name string) []any { return []any{id, name} }

var intlTeam = pair(4, "VENTA INTERNACIONAL")

func order(id int64, name, state string, team []any, partner int64, lines ...int64) ledger.Record {
	partnerName := map[int64]string{10: "Bolivia Pharma", 11: "Chile Vet"}[partner]
	return ledger.Record{
		"id": id, "name": name, "state": state, "team_id": team,
		"partner_id": pair(partner, partnerName), "user_id": pair(12, "Ana Torres"),
		"date_order": "2025-03-05 10:00:00", "order_line": ledger.Int64s(lines),
	}
}

func orderLine(id, orderID, product int64, ordered, invoiced, toInvoice, price, discount float64) ledger.Record {
	return ledger.Record{
		"id": id, "order_id": pair(orderID, ""), "product_id": pair(product, ""),
		"product_uom_qty": ordered, "qty_invoiced": invoiced, "qty_to_invoice": toInvoice,
		"price_unit": price, "discount": discount,
	}
}

func seededLedger() *ledgertest.Fake {
	fake := ledgertest.New().
		Relate(ledger.ModelOrderLine, "order_id", ledger.ModelOrder).
		Relate(ledger.ModelOrderLine, "product_id", ledger.ModelProduct).
		Relate(ledger.ModelOrder, "partner_id", ledger.ModelPartner).
		Relate(ledger.ModelOrder, "order_line", ledger.ModelOrderLine)

	fake.Add(ledger.ModelPartner,
		ledger.Record{"id": int64(10), "name": "Bolivia Pharma", "vat": "B-1", "country_id": pair(29, "Bolivia")},
		ledger.Record{"id": int64(11), "name": "Chile Vet", "country_id": pair(46, "Chile")},
	)
	fake.Add(ledger.ModelProduct,
		ledger.Record{"id": int64(100), "name": "Amoxicilina 500", "default_code": "AMX500", "categ_id": pair(1, "Medicamentos"),
			"commercial_line_national_id": pair(6, "VENTA INTERNACIONAL")},
		ledger.Record{"id": int64(101), "name": "Ivermectina 1%", "default_code": "IVM1", "categ_id": pair(2, "Antiparasitarios")},
		ledger.Record{"id": int64(102), "name": "Flete", "default_code": "FLT", "categ_id": pair(315, "Servicios")},
	)
	fake.Add(ledger.ModelOrder,
		order(1, "S001", StateCredit, intlTeam, 10, 11),
		order(2, "S002", StateSale, intlTeam, 10, 21, 22, 23),
		order(3, "S003", StateSale, pair(3, "VENTA NACIONAL"), 10, 31),
		order(4, "S004", "draft", intlTeam, 10, 41),
		order(5, "S005", StateDone, intlTeam, 10, 51),
		order(6, "S006", StateCredit, intlTeam, 11, 61),
		order(7, "S007", StateSale, intlTeam, 11, 71),
	)
	fake.Add(ledger.ModelOrderLine,
		orderLine(11, 1, 100, 10, 3, 0, 12.5, 10),
		orderLine(21, 2, 101, 4, 0, 4, 10, 0),
		orderLine(22, 2, 100, 2, 2, 0, 10, 0),
		orderLine(23, 2, 102, 1, 0, 1, 50, 0),
		orderLine(31, 3, 100, 5, 0, 5, 10, 0),
		orderLine(41, 4, 100, 5, 0, 5, 10, 0),
		orderLine(51, 5, 100, 3, 3, 0, 10, 0),
		orderLine(61, 6, 101, 5, 5, 0, 10, 0),
		orderLine(71, 7, 101, 2, 0, 2, 100, 0),
	)
	return fake
}

func marchFilter() Filter {
	return Filter{
		DateFrom: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func lineIDs(lines []PendingLine) []int64 {
	out := make([]int64, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.OrderLineID)
	}
	return out
}

// ===== PENDING =====

func TestPendingRecomputesCreditOrders(t *testing.T) {
	res, err := NewReconciler(seededLedger(), nil, Config{}).Pending(context.Background(), marchFilter())
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.ElementsMatch(t, []int64{11, 21, 71}, lineIDs(res.Lines))
	assert.Equal(t, 3, res.Page.Total)

	for _, l := range res.Lines {
		if l.OrderLineID != 11 {
			continue
		}
		assert.Equal(t, 7.0, l.PendingQuantity, "ordered minus invoiced")
		assert.Equal(t, 78.75, l.TotalPending, "7 × 12.5 × 0.9")
		assert.Equal(t, "S001", l.OrderName)
		assert.Equal(t, "Bolivia Pharma", l.ClientName)
		assert.Equal(t, "Bolivia", l.ClientCountry)
		assert.Equal(t, "AMX500", l.ProductCode)
		assert.Equal(t, "Marzo 2025", l.Month)
		assert.Equal(t, "2025-03-05", l.OrderDate)
		assert.Equal(t, "VENTA INTERNACIONAL", l.CommercialLine.Name)
		assert.False(t, l.Placeholder)
	}
	assert.Equal(t, 78.75+40+200, TotalPending(res.Lines))
}

func TestPendingIncludesClientOrdersWithoutBalance(t *testing.T) {
	f := marchFilter()
	f.PartnerID = 10
	res, err := NewReconciler(seededLedger(), nil, Config{}).Pending(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, res.Lines, 3)

	var placeholder *PendingLine
	for i := range res.Lines {
		if res.Lines[i].Placeholder {
			placeholder = &res.Lines[i]
		}
	}
	require.NotNil(t, placeholder)
	assert.Equal(t, "S005", placeholder.OrderName)
	assert.Equal(t, "Bolivia Pharma", placeholder.ClientName)
	assert.Zero(t, placeholder.TotalPending)
	assert.Zero(t, placeholder.PendingQuantity)
}

func TestPendingClientSearchMatchesLikeLines(t *testing.T) {
	r := NewReconciler(seededLedger(), nil, Config{})
	// S002 still holds AMX500 but nothing of it is pending.
	cases := map[string][]string{
		"S005":    {"S005"},
		"bolivia": {"S005"},
		"AMX500":  {"S002", "S005"},
		"amoxi":   {"S002", "S005"},
		"chile":   nil,
	}
	for term, want := range cases {
		f := marchFilter()
		f.PartnerID = 10
		f.Search = term
		res, err := r.Pending(context.Background(), f)
		require.NoError(t, err, term)

		var names []string
		for _, l := range res.Lines {
			if l.Placeholder {
				names = append(names, l.OrderName)
			}
		}
		assert.ElementsMatch(t, want, names, term)
	}
}

// hiddenOrders drops some orders from reads, as when a record disappears between calls.
type hiddenOrders struct {
	*ledgertest.Fake
	hide int64
}

func (h hiddenOrders) Read(ctx context.Context, model string, ids []int64, fields []string) ([]ledger.Record, error) {
	recs, err := h.Fake.Read(ctx, model, ids, fields)
	if err != nil || model != ledger.ModelOrder {
		return recs, err
	}
	out := recs[:0:0]
	for _, rec := range recs {
		if rec.ID() != h.hide {
			out = append(out, rec)
		}
	}
	return out, nil
}

func TestPendingLogsLinesWithoutOrder(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	res, err := NewReconciler(hiddenOrders{Fake: seededLedger(), hide: 7}, logger, Config{}).Pending(context.Background(), marchFilter())
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{11, 21}, lineIDs(res.Lines))
	assert.Contains(t, buf.String(), "pending line without readable order")
	assert.Contains(t, buf.String(), "order_line_id=71")
}

func TestPendingSearch(t *testing.T) {
	r := NewReconciler(seededLedger(), nil, Config{})
	cases := map[string][]int64{
		"S002":   {21},
		"ivm":    {21, 71},
		"chile":  {71},
		"amoxi":  {11},
		"nothing": {},
	}
	for term, want := range cases {
		f := marchFilter()
		f.Search = term
		res, err := r.Pending(context.Background(), f)
		require.NoError(t, err, term)
		assert.ElementsMatch(t, want, lineIDs(res.Lines), term)
	}
}

func TestPendingPaginatesInMemory(t *testing.T) {
	f := marchFilter()
	f.PerPage = 2
	f.Page = 2
	res, err := NewReconciler(seededLedger(), nil, Config{}).Pending(context.Background(), f)
	require.NoError(t, err)
	assert.Len(t, res.Lines, 1)
	assert.Equal(t, 3, res.Page.Total)
	assert.Equal(t, 2, res.Page.TotalPages)
}

func TestPendingDegradesWhenOffline(t *testing.T) {
	res, err := NewReconciler(seededLedger().Fail("", ledger.ErrTimeout), nil, Config{}).Pending(context.Background(), marchFilter())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Empty(t, res.Lines)
	assert.Zero(t, res.Page.Total)
}

func TestPendingDefaultWindow(t *testing.T) {
	fake := seededLedger()
	now := time.Date(2025, 9, 30, 8, 0, 0, 0, time.UTC)
	_, err := NewReconciler(fake, nil, Config{}).WithNow(func() time.Time { return now }).Pending(context.Background(), Filter{})
	require.NoError(t, err)
	calls := fake.CallsFor(ledger.ModelOrderLine, "search_read")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Domain, ledger.Term("order_id.date_order", ">=", "2025-04-03"))
}

func TestPendingAll(t *testing.T) {
	f := marchFilter()
	f.PerPage = 1
	res, err := NewReconciler(seededLedger(), nil, Config{}).PendingAll(context.Background(), f)
	require.NoError(t, err)
	assert.Len(t, res.Lines, 3)
}

// ===== ARITHMETIC =====

func TestOutstanding(t *testing.T) {
	assert.Equal(t, 7.0, Outstanding(StateCredit, 10, 3, 0))
	assert.Equal(t, 0.0, Outstanding(StateCredit, 5, 5, 2))
	assert.Equal(t, 4.0, Outstanding(StateSale, 10, 3, 4))
}

func TestLineTotalAppliesDiscount(t *testing.T) {
	assert.Equal(t, 78.75, LineTotal(7, 12.5, 10))
	assert.Equal(t, 30.0, LineTotal(3, 10, 0))
	assert.Equal(t, 0.0, LineTotal(3, 10, 100))
	assert.Equal(t, 0.1, LineTotal(1, 0.1, 0))
}
