package dashboardhttp

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/salesdash/salesdash/internal/dashboard"
	"github.com/salesdash/salesdash/internal/goals"
	"github.com/salesdash/salesdash/internal/ledger"
	"github.com/salesdash/salesdash/internal/ledger/ledgertest"
	"github.com/salesdash/salesdash/internal/pending"
	"github.com/salesdash/salesdash/internal/platform/httpx"
	"github.com/salesdash/salesdash/internal/sales"
)

// ============================================================================
// FIXTURES
// ============================================================================

var fixedNow = time.Date(2025, 3, 21, 9, 5, 7, 0, time.UTC)

func pair(id int64, name string) []any { return []any{id, name} }

func seededLedger() *ledgertest.Fake {
	fake := ledgertest.New().
		Relate(ledger.ModelInvoiceLine, "move_id", ledger.ModelInvoice).
		Relate(ledger.ModelInvoiceLine, "product_id", ledger.ModelProduct).
		Relate(ledger.ModelInvoice, "partner_id", ledger.ModelPartner)
	fake.Add(ledger.ModelPartner,
		ledger.Record{"id": int64(10), "name": "ACME Vet SAC", "country_id": pair(173, "Perú")},
	)
	fake.Add(ledger.ModelProduct,
		ledger.Record{"id": int64(100), "name": "Amoxicilina 500", "default_code": "AMX500",
			"categ_id": pair(1, "Medicamentos"), "commercial_line_national_id": pair(5, "PETMEDICA"), "product_life_cycle": "nuevo"},
		ledger.Record{"id": int64(101), "name": "Ivermectina 1%", "default_code": "IVM1",
			"categ_id": pair(2, "Antiparasitarios"), "commercial_line_national_id": pair(6, "VENTA INTERNACIONAL")},
	)
	fake.Add(ledger.ModelInvoice,
		ledger.Record{"id": int64(1000), "name": "F001-0001", "move_type": "out_invoice", "state": "posted",
			"invoice_date": "2025-03-05", "partner_id": pair(10, "ACME Vet SAC"), "team_id": pair(3, "VENTA NACIONAL"),
			"invoice_user_id": pair(12, "Ana Torres")},
		ledger.Record{"id": int64(1001), "name": "F001-0002", "move_type": "out_invoice", "state": "posted",
			"invoice_date": "2025-03-07", "partner_id": pair(10, "ACME Vet SAC"), "team_id": pair(4, "VENTA INTERNACIONAL"),
			"invoice_user_id": pair(12, "Ana Torres")},
	)
	fake.Add(ledger.ModelInvoiceLine,
		ledger.Record{"id": int64(1), "move_id": pair(1000, ""), "product_id": pair(100, ""),
			"balance": -1234.5, "quantity": 10.0, "price_unit": 123.45},
		ledger.Record{"id": int64(2), "move_id": pair(1001, ""), "product_id": pair(101, ""),
			"balance": -400.0, "quantity": 4.0, "price_unit": 100.0},
	)
	return fake
}

func newTestRouter(t *testing.T, fake *ledgertest.Fake, opts Options) (*chi.Mux, *goals.MemoryStore) {
	t.Helper()
	store := goals.NewMemoryStore()
	svc := dashboard.NewService(
		sales.NewAssembler(fake, nil, sales.Config{}),
		pending.NewReconciler(fake, nil, pending.Config{}),
		store, nil, nil, nil, dashboard.Config{},
	).WithNow(func() time.Time { return fixedNow })

	h := NewHandler(nil, svc, opts)
	h.WithNow(func() time.Time { return fixedNow })
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r, store
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var p httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

const march = "date_from=2025-03-01&date_to=2025-03-31"

// ============================================================================
// QUERY SURFACE
// ============================================================================

func TestSalesListing(t *testing.T) {
	r, _ := newTestRouter(t, seededLedger(), Options{})

	rec := do(r, http.MethodGet, "/api/sales?"+march+"&page=1&per_page=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Rows     []sales.SalesLine `json:"rows"`
		PageInfo struct {
			Page  int `json:"page"`
			Total int `json:"total"`
		} `json:"page_info"`
		Notice string `json:"notice"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Rows, 1)
	assert.Equal(t, 2, page.PageInfo.Total)
	assert.Empty(t, page.Notice)
}

func TestQueryValidation(t *testing.T) {
	r, _ := newTestRouter(t, seededLedger(), Options{})
	cases := map[string]string{
		"/api/sales?page=0":                                 "page",
		"/api/sales?per_page=99999":                         "per_page",
		"/api/sales?date_from=2025-13-01":                   "date_from",
		"/api/sales?date_from=2025-03-10&date_to=2025-03-01": "date_to",
		"/api/pending?partner_id=abc":                       "partner_id",
		"/api/dashboard/stacked?scope=domestic":             "scope",
		"/api/dashboard/line?mes=03-2025":                   "mes",
		"/api/dashboard/line?dia_fin=40":                    "dia_fin",
	}
	for target, field := range cases {
		rec := do(r, http.MethodGet, target, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Contains(t, decodeProblem(t, rec).Errors, field, target)
	}
}

func TestInternationalDashboard(t *testing.T) {
	r, _ := newTestRouter(t, seededLedger(), Options{})

	rec := do(r, http.MethodGet, "/api/dashboard/international?"+march, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var report dashboard.SummaryReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 400.0, report.TotalSales)
	assert.Equal(t, "international", string(report.Scope))
}

func TestLineDashboard(t *testing.T) {
	r, _ := newTestRouter(t, seededLedger(), Options{})

	rec := do(r, http.MethodGet, "/api/dashboard/line?mes=2025-03&linea_nombre=petmedica", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var report dashboard.LineReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "PETMEDICA", report.Line)
	assert.Equal(t, 1234.5, report.Totals.Sales)
	assert.Equal(t, 21, report.Day)
}

func TestFiltersEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, seededLedger(), Options{})

	rec := do(r, http.MethodGet, "/api/filters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var f dashboard.Filters
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	require.Len(t, f.Sellers, 1)
	assert.Equal(t, "Ana Torres", f.Sellers[0].Name)
}

// ============================================================================
// GOALS
// ============================================================================

func TestSaveAndReadLineGoals(t *testing.T) {
	r, _ := newTestRouter(t, seededLedger(), Options{})

	rec := do(r, http.MethodPost, "/api/goals/lines", `{"mes":"2025-03","goals":{"petmedica":{"target":"12,500","target_new":"1.500,5"}}}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(r, http.MethodGet, "/api/goals/lines?year=2025", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view dashboard.LineGoalsView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 12500.0, view.Goals["2025-03"]["petmedica"].Target)
	assert.Equal(t, 1500.5, view.Goals["2025-03"]["petmedica"].TargetNew)

	rec = do(r, http.MethodPost, "/api/goals/lines", `{"mes":"marzo","goals":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(r, http.MethodPost, "/api/goals/lines", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(r, http.MethodGet, "/api/goals/lines?year=20", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveSellerGoalsWithTeams(t *testing.T) {
	r, store := newTestRouter(t, seededLedger(), Options{})

	body := `{"teams":{"petmedica":[12]},"goals":{"petmedica":{"12":{"2025-03":{"target":"1000","target_new":"200"}},"99":{"2025-03":{"target":"5"}}}}}`
	rec := do(r, http.MethodPost, "/api/goals/sellers", body)
	require.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := store.SellerGoals(t.Context())
	require.NoError(t, err)
	assert.Equal(t, goals.Goal{Target: 1000, TargetNew: 200}, stored.For("petmedica", 12, "2025-03"))
	assert.True(t, stored.For("petmedica", 99, "2025-03").IsZero())

	rec = do(r, http.MethodGet, "/api/goals/sellers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view dashboard.SellerGoalsView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, []int64{12}, view.Teams["petmedica"])

	rec = do(r, http.MethodPost, "/api/goals/sellers", `{"goals":{"petmedica":{"12":{"March":{"target":"1"}}}}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================================================
// EXPORTS
// ============================================================================

func TestExportSalesXLSX(t *testing.T) {
	r, _ := newTestRouter(t, seededLedger(), Options{})

	rec := do(r, http.MethodGet, "/export/sales.xlsx?"+march, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "ventas_farmaceuticas_20250321_090507.xlsx")

	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("Ventas")
	require.NoError(t, err)
	assert.Len(t, rows, 2, "header plus the national line")
}

func TestExportSalesCSV(t *testing.T) {
	r, _ := newTestRouter(t, seededLedger(), Options{})

	rec := do(r, http.MethodGet, "/export/sales.csv?"+march+"&scope=all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	records, err := csv.NewReader(bytes.NewReader(rec.Body.Bytes())).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Contains(t, rec.Body.String(), "S/ 1,234.50")
}

func TestExportErrors(t *testing.T) {
	r, _ := newTestRouter(t, seededLedger(), Options{})

	rec := do(r, http.MethodGet, "/export/sales.xlsx?date_from=2024-01-01&date_to=2024-01-31", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(r, http.MethodGet, "/export/dashboard/details.xlsx", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodGet, "/export/dashboard/details.xlsx?mes=2025-3x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	offline, _ := newTestRouter(t, seededLedger().Fail("", ledger.ErrOffline), Options{})
	rec = do(offline, http.MethodGet, "/export/sales.xlsx?"+march, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, dashboard.NoticeLedgerOffline, decodeProblem(t, rec).Detail)
}

func TestExportDetails(t *testing.T) {
	r, _ := newTestRouter(t, seededLedger(), Options{})

	rec := do(r, http.MethodGet, "/export/dashboard/details.xlsx?mes=2025-03", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "detalle_ventas_2025-03.xlsx")

	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer book.Close()
	assert.Equal(t, []string{"Detalle Ventas 2025-03"}, book.GetSheetList())
}

func TestExportsAreRateLimited(t *testing.T) {
	r, _ := newTestRouter(t, seededLedger(), Options{ExportsPerMinute: 1})

	first := do(r, http.MethodGet, "/export/sales.csv?"+march, "")
	require.Equal(t, http.StatusOK, first.Code)
	second := do(r, http.MethodGet, "/export/sales.csv?"+march, "")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	listing := do(r, http.MethodGet, "/api/sales?"+march, "")
	assert.Equal(t, http.StatusOK, listing.Code)
}
