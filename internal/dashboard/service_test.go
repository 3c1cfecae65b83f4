package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdash/salesdash/internal/classify"
	"github.com/salesdash/salesdash/internal/goals"
	"github.com/salesdash/salesdash/internal/ledger"
	"github.com/salesdash/salesdash/internal/ledger/ledgertest"
	"github.com/salesdash/salesdash/internal/pending"
	"github.com/salesdash/salesdash/internal/sales"
	"github.com/salesdash/salesdash/internal/shared"
)

// ============================================================================
// FIXTURES
// ============================================================================

var march21 = time.Date(2025, 3, 21, 10, 0, 0, 0, time.UTC)

func pair(id int64, name string) []any { return []any{id, name} }

func product(id int64, name, code, line, lifeCycle string) ledger.Record {
	return ledger.Record{
		"id": id, "name": name, "default_code": code, "categ_id": pair(1, "Medicamentos"),
		"commercial_line_national_id": pair(id, line), "product_life_cycle": lifeCycle,
		"pharmaceutical_forms_id": pair(8, "Tableta"),
	}
}

func invoice(id int64, moveType, date string, team, seller []any) ledger.Record {
	rec := ledger.Record{
		"id": id, "name": "F-" + date, "move_type": moveType, "state": "posted",
		"invoice_date": date, "invoice_origin": false, "order_id": false,
		"partner_id": pair(10, "ACME Vet SAC"), "team_id": team, "journal_id": pair(1, "Facturas"),
		"invoice_user_id": false,
	}
	if seller != nil {
		rec["invoice_user_id"] = seller
	}
	return rec
}

func invoiceLine(id, move, prod int64, balance, qty float64) ledger.Record {
	return ledger.Record{
		"id": id, "move_id": pair(move, ""), "product_id": pair(prod, ""),
		"partner_id": pair(10, "ACME Vet SAC"), "balance": balance, "quantity": qty,
		"price_unit": -balance / qty, "tax_ids": []any{},
	}
}

func seededLedger() *ledgertest.Fake {
	national := pair(3, "VENTA NACIONAL")
	international := pair(4, "VENTA INTERNACIONAL")
	ana, luis := pair(12, "Ana Torres"), pair(13, "Luis Paredes")

	fake := ledgertest.New().
		Relate(ledger.ModelInvoiceLine, "move_id", ledger.ModelInvoice).
		Relate(ledger.ModelInvoiceLine, "product_id", ledger.ModelProduct).
		Relate(ledger.ModelInvoice, "partner_id", ledger.ModelPartner)

	fake.Add(ledger.ModelPartner,
		ledger.Record{"id": int64(10), "name": "ACME Vet SAC", "vat": "20123456789", "country_id": pair(173, "Perú")},
	)
	fake.Add(ledger.ModelProduct,
		product(100, "Amoxicilina 500", "AMX500", "PETMEDICA", "nuevo"),
		product(101, "Ivermectina 1%", "IVM1", "VENTA INTERNACIONAL", "maduro"),
		product(104, "Collar antipulgas", "COL1", "AGROVET", "maduro"),
	)
	fake.Add(ledger.ModelInvoice,
		invoice(1000, "out_invoice", "2025-03-05", national, ana),
		invoice(1001, "out_invoice", "2025-03-10", national, luis),
		invoice(1002, "out_refund", "2025-03-12", national, nil),
		invoice(1003, "out_invoice", "2025-03-15", international, ana),
	)
	fake.Add(ledger.ModelInvoiceLine,
		invoiceLine(1, 1000, 100, -300, 3),
		invoiceLine(2, 1001, 100, -200, 2),
		invoiceLine(3, 1002, 100, 50, 1),
		invoiceLine(4, 1003, 101, -400, 4),
		invoiceLine(5, 1000, 104, -100, 10),
	)
	return fake
}

type harness struct {
	svc     *Service
	fake    *ledgertest.Fake
	store   *goals.MemoryStore
	redis   *miniredis.Miniredis
	metrics *Metrics
}

func newHarness(t *testing.T, fake *ledgertest.Fake) harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	assembler := sales.NewAssembler(fake, nil, sales.Config{})
	reconciler := pending.NewReconciler(fake, nil, pending.Config{})
	store := goals.NewMemoryStore()
	metrics := NewMetrics(prometheus.NewRegistry())
	svc := NewService(assembler, reconciler, store, NewCache(client, time.Minute), metrics, nil, Config{}).
		WithNow(func() time.Time { return march21 })
	return harness{svc: svc, fake: fake, store: store, redis: mr, metrics: metrics}
}

func marchQuery(scope classify.Scope) Query {
	return Query{
		DateFrom: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		Scope:    scope,
	}
}

func seedGoals(t *testing.T, store goals.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SaveTeams(ctx, goals.Teams{"petmedica": {12, 34}}, nil))
	sg := goals.SellerGoals{}
	sg.Set("petmedica", 12, "2025-03", goals.Goal{Target: 1000, TargetNew: 400})
	sg.Set("petmedica", 34, "2025-03", goals.Goal{Target: 500})
	require.NoError(t, store.SaveSellerGoals(ctx, sg))
}

func lineReads(f *ledgertest.Fake) int {
	return len(f.CallsFor(ledger.ModelInvoiceLine, "search_read"))
}

// ============================================================================
// CHARTS
// ============================================================================

func TestSummaryInternationalScope(t *testing.T) {
	h := newHarness(t, seededLedger())

	report, err := h.svc.Summary(context.Background(), marchQuery(classify.ScopeInternational))
	require.NoError(t, err)
	assert.False(t, report.Degraded)
	assert.Empty(t, report.Notice)
	assert.Equal(t, 400.0, report.TotalSales)
	assert.Equal(t, 1, report.TotalLines)
	assert.Equal(t, classify.ScopeInternational, report.Scope)
}

func TestSummaryIsCachedUntilInvalidated(t *testing.T) {
	h := newHarness(t, seededLedger())
	ctx := context.Background()
	q := marchQuery(classify.ScopeAll)

	first, err := h.svc.Summary(ctx, q)
	require.NoError(t, err)
	reads := lineReads(h.fake)

	second, err := h.svc.Summary(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, reads, lineReads(h.fake), "second call is served from the cache")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.hits.WithLabelValues("summary")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.misses.WithLabelValues("summary")))

	h.svc.Invalidate(ctx)
	_, err = h.svc.Summary(ctx, q)
	require.NoError(t, err)
	assert.Greater(t, lineReads(h.fake), reads)
}

func TestDegradedReportsAreNotCached(t *testing.T) {
	h := newHarness(t, seededLedger().Fail("", ledger.ErrOffline))
	ctx := context.Background()

	report, err := h.svc.Summary(ctx, marchQuery(classify.ScopeAll))
	require.NoError(t, err)
	assert.True(t, report.Degraded)
	assert.Equal(t, NoticeLedgerOffline, report.Notice)
	assert.Zero(t, report.TotalSales)
	assert.Equal(t, []string{cacheVersionKey}, h.redis.Keys())
}

func TestBuildFailuresYieldEmptyReport(t *testing.T) {
	h := newHarness(t, seededLedger().Fail(ledger.ModelInvoiceLine, errors.New("fault: bad domain")))

	report, err := h.svc.Drilldown(context.Background(), marchQuery(classify.ScopeAll))
	require.NoError(t, err)
	assert.True(t, report.Degraded)
	assert.Equal(t, NoticeFailed, report.Notice)
	assert.Empty(t, report.Tree["root"])
}

func TestCancelledRequestsReturnError(t *testing.T) {
	h := newHarness(t, seededLedger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.Stacked(ctx, marchQuery(classify.ScopeAll))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDrilldownTotals(t *testing.T) {
	h := newHarness(t, seededLedger())

	report, err := h.svc.Drilldown(context.Background(), marchQuery(classify.ScopeNational))
	require.NoError(t, err)
	assert.Equal(t, 550.0, report.Total)
	require.Len(t, report.Tree["root"], 2)
	assert.Equal(t, "PETMEDICA", report.Tree["root"][0].Label)
}

func TestCacheDisabledWithoutRedis(t *testing.T) {
	fake := seededLedger()
	svc := NewService(sales.NewAssembler(fake, nil, sales.Config{}), nil, nil, nil, nil, nil, Config{})

	for range 2 {
		_, err := svc.Summary(context.Background(), marchQuery(classify.ScopeAll))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, lineReads(fake))
}

// ============================================================================
// LINE DASHBOARD
// ============================================================================

func TestLineReconcilesGoals(t *testing.T) {
	h := newHarness(t, seededLedger())
	seedGoals(t, h.store)

	report, err := h.svc.Line(context.Background(), LineQuery{Month: "2025-03", Line: "petmedica"})
	require.NoError(t, err)
	assert.False(t, report.Degraded)
	assert.Equal(t, "PETMEDICA", report.Line)
	assert.Equal(t, "petmedica", report.Slug)
	assert.Equal(t, "Marzo 2025", report.MonthLabel)
	assert.Equal(t, 21, report.Day)
	assert.Equal(t, classify.ScopeNational, report.Scope)

	ids := make([]string, 0, len(report.Rows))
	for _, r := range report.Rows {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"12", "13", "34", goals.AdjustmentsID}, ids)

	ana := report.Rows[0]
	assert.Equal(t, "Ana Torres", ana.Name)
	assert.Equal(t, 300.0, ana.Sales)
	assert.Equal(t, 300.0, ana.NewSales)
	assert.Equal(t, 30.0, ana.PercentOfTarget)
	assert.InDelta(t, 66.67, ana.PercentOfTotal, 0.01)

	luis := report.Rows[1]
	assert.False(t, luis.Member)
	assert.Zero(t, luis.Target)

	assert.Equal(t, "Vendedor ID 34", report.Rows[2].Name)
	assert.Equal(t, -50.0, report.Rows[3].Sales)

	assert.Equal(t, 1500.0, report.Totals.Target)
	assert.Equal(t, 450.0, report.Totals.Sales)
	assert.Equal(t, 9, report.KPIs.RemainingDays)
	assert.InDelta(t, 70.0/9, report.KPIs.RequiredDailyPace, 1e-9)
	assert.Equal(t, []string{"AGROVET", "PETMEDICA"}, report.AvailableLines)
	require.NotEmpty(t, report.TopProducts)
	assert.Equal(t, "Amoxicilina 500", report.TopProducts[0].Key)
}

func TestLineWithoutGoalsShowsZeroTargets(t *testing.T) {
	h := newHarness(t, seededLedger())

	report, err := h.svc.Line(context.Background(), LineQuery{Month: "2025-03"})
	require.NoError(t, err)
	assert.Equal(t, goals.DefaultLine, report.Line)
	assert.Zero(t, report.Totals.Target)
	assert.Equal(t, 450.0, report.Totals.Sales)
	assert.Zero(t, report.KPIs.RequiredDailyPace)
}

func TestLineRejectsBadMonth(t *testing.T) {
	h := newHarness(t, seededLedger())

	_, err := h.svc.Line(context.Background(), LineQuery{Month: "marzo"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

type failingStore struct{ goals.MemoryStore }

func (failingStore) Teams(context.Context) (goals.Teams, error) {
	return nil, errors.New("sheets: quota exceeded")
}

func TestLineDegradesWhenGoalsUnavailable(t *testing.T) {
	fake := seededLedger()
	svc := NewService(sales.NewAssembler(fake, nil, sales.Config{}), nil, &failingStore{}, nil, nil, nil, Config{}).
		WithNow(func() time.Time { return march21 })

	report, err := svc.Line(context.Background(), LineQuery{Month: "2025-03", Line: "PETMEDICA"})
	require.NoError(t, err)
	assert.True(t, report.Degraded)
	assert.Contains(t, report.Notices, NoticeGoalsUnavailable)
	assert.Equal(t, 450.0, report.Totals.Sales)
}

// ============================================================================
// GOAL EDITING
// ============================================================================

func TestSaveSellerGoalsInvalidatesCache(t *testing.T) {
	h := newHarness(t, seededLedger())
	seedGoals(t, h.store)
	ctx := context.Background()
	q := LineQuery{Month: "2025-03", Line: "PETMEDICA"}

	before, err := h.svc.Line(ctx, q)
	require.NoError(t, err)
	require.Equal(t, 1500.0, before.Totals.Target)

	err = h.svc.SaveSellerGoals(ctx, goals.SellerGoalForm{
		"petmedica": {
			12: {"2025-03": {Target: "2,000", TargetNew: ""}},
			34: {"2025-03": {}},
			13: {"2025-03": {Target: "900"}},
		},
	})
	require.NoError(t, err)

	after, err := h.svc.Line(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2000.0, after.Totals.Target, "non-members are skipped and blank pairs delete")
}

func TestSaveTeamsKeepsOtherTeams(t *testing.T) {
	h := newHarness(t, seededLedger())
	seedGoals(t, h.store)
	ctx := context.Background()

	require.NoError(t, h.svc.SaveTeams(ctx, goals.Teams{"agrovet": {13}}))
	view := h.svc.SellerGoals(ctx, 0)
	assert.Equal(t, 2025, view.Year)
	assert.Equal(t, []int64{12, 34}, view.Teams["petmedica"])
	assert.Equal(t, []int64{13}, view.Teams["agrovet"])
	assert.Len(t, view.Sellers, 2)
	assert.Empty(t, view.Notice)
}

func TestLineGoalsRoundTrip(t *testing.T) {
	h := newHarness(t, seededLedger())
	ctx := context.Background()

	err := h.svc.SaveLineGoals(ctx, "2025-04", map[string]goals.GoalForm{
		"petmedica": {Target: "S/ 10.000,50", TargetNew: "1000"},
		"ecommerce": {Target: "500"},
		"unknown":   {Target: "999"},
	})
	require.NoError(t, err)

	view := h.svc.LineGoals(ctx, 2025)
	require.Len(t, view.Months, 12)
	assert.Equal(t, "2025-04", view.Months[3].Key)
	assert.Equal(t, "Abril 2025", view.Months[3].Label)
	assert.Equal(t, 10000.5, view.Goals["2025-04"]["petmedica"].Target)
	assert.NotContains(t, view.Goals["2025-04"], "unknown")
	assert.Equal(t, 10500.5, view.Totals["2025-04"].Target)
	assert.Len(t, view.Lines, len(goals.Catalogue)+1)

	assert.ErrorIs(t, h.svc.SaveLineGoals(ctx, "2025-4x", nil), shared.ErrInvalidInput)
}

// ============================================================================
// EXPORTS & WARMUP
// ============================================================================

func TestExportSalesBypassesCache(t *testing.T) {
	h := newHarness(t, seededLedger())
	ctx := context.Background()

	lines, err := h.svc.ExportSales(ctx, marchQuery(classify.ScopeNational))
	require.NoError(t, err)
	assert.Len(t, lines, 4)

	_, err = h.svc.ExportSales(ctx, Query{DateFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), DateTo: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)})
	assert.ErrorIs(t, err, ErrNothingToExport)

	details, err := h.svc.MonthDetails(ctx, "2025-03")
	require.NoError(t, err)
	assert.Len(t, details, 4)
}

func TestExportFailsWhenOffline(t *testing.T) {
	h := newHarness(t, seededLedger().Fail("", ledger.ErrTimeout))

	_, err := h.svc.ExportSales(context.Background(), marchQuery(classify.ScopeAll))
	assert.True(t, IsLedgerOffline(err))
}

func TestWarmupFillsCache(t *testing.T) {
	h := newHarness(t, seededLedger())
	ctx := context.Background()

	require.NoError(t, h.svc.Warmup(ctx))
	reads := lineReads(h.fake)

	_, err := h.svc.Line(ctx, LineQuery{Month: "2025-03", Line: "AGROVET"})
	require.NoError(t, err)
	assert.Equal(t, reads, lineReads(h.fake))
}
