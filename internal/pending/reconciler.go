package pending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/salesdash/salesdash/internal/classify"
	"github.com/salesdash/salesdash/internal/ledger"
	"github.com/salesdash/salesdash/internal/sales"
	"github.com/salesdash/salesdash/internal/shared"
)

const (
	defaultWindow  = 180 * 24 * time.Hour
	defaultPerPage = 1000
	defaultMaxRows = 5000
	lineOrder      = "order_id desc, id asc"
)

var (
	invoiceableStates = []string{StateCredit, StateSale, StateDone}

	orderLineFields = []string{
		"order_id", "product_id", "product_uom_qty", "qty_invoiced", "qty_to_invoice",
		"price_unit", "discount",
	}
	orderFields   = []string{"name", "state", "team_id", "user_id", "date_order", "partner_id"}
	productFields = []string{
		"name", "default_code", "categ_id", "commercial_line_national_id",
		"pharmacological_classification_id", "pharmaceutical_forms_id",
		"administration_way_id", "production_line_id",
	}
	partnerFields = []string{"name", "vat", "country_id"}

	hundred = decimal.NewFromInt(100)
)

// Config tunes the reconciler.
type Config struct {
	ExcludedCategoryIDs []int64
	DefaultPerPage      int
	MaxLines            int
}

// Reconciler lists order lines of the international channel with quantity left to invoice.
type Reconciler struct {
	client ledger.Client
	logger *slog.Logger
	cfg    Config
	now    func() time.Time
}

// NewReconciler constructs a Reconciler.
func NewReconciler(client ledger.Client, logger *slog.Logger, cfg Config) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultPerPage <= 0 {
		cfg.DefaultPerPage = defaultPerPage
	}
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = defaultMaxRows
	}
	if cfg.ExcludedCategoryIDs == nil {
		cfg.ExcludedCategoryIDs = sales.DefaultExcludedCategories
	}
	return &Reconciler{client: client, logger: logger.With(slog.String("component", "pending")), cfg: cfg, now: time.Now}
}

// WithNow overrides the clock used for the default date window.
func (r *Reconciler) WithNow(fn func() time.Time) *Reconciler {
	if fn != nil {
		r.now = fn
	}
	return r
}

// Pending returns one page of pending lines. The outstanding quantity is not known
// to the ledger for credit-state orders, so filtering and pagination happen here.
func (r *Reconciler) Pending(ctx context.Context, f Filter) (Result, error) {
	f = r.normalize(f)
	page := shared.NewPagination(f.Page, f.PerPage, 0)
	lines, err := r.collect(ctx, f)
	if err != nil {
		return r.degrade(page, err)
	}
	page = shared.NewPagination(f.Page, f.PerPage, len(lines))
	start, end := page.Slice(len(lines))
	return Result{Lines: lines[start:end], Page: page}, nil
}

// PendingAll returns every pending line, for exports.
func (r *Reconciler) PendingAll(ctx context.Context, f Filter) (Result, error) {
	f = r.normalize(f)
	lines, err := r.collect(ctx, f)
	if err != nil {
		return r.degrade(shared.NewPagination(1, r.cfg.MaxLines, 0), err)
	}
	return Result{Lines: lines, Page: shared.NewPagination(1, r.cfg.MaxLines, len(lines))}, nil
}

// Domain returns the order-line filter for f.
func (r *Reconciler) Domain(f Filter) ledger.Domain {
	d := ledger.Domain{}.
		Where("product_id", "!=", false).
		Where("product_id.default_code", "!=", false).
		Where("order_id.state", "in", ledger.Strings(invoiceableStates)).
		Where("order_id.team_id.name", "ilike", classify.InternationalMarker)
	// Credit-state lines report a stale qty_to_invoice and are recomputed locally.
	d = d.With(ledger.AnyOf(
		ledger.Term("qty_to_invoice", ">", 0),
		ledger.Term("order_id.state", "=", StateCredit),
	))
	if len(r.cfg.ExcludedCategoryIDs) > 0 {
		d = d.Where("product_id.categ_id", "not in", ledger.Int64s(r.cfg.ExcludedCategoryIDs))
	}
	d = d.With(orderDateTerms("order_id.date_order", f))
	if f.PartnerID > 0 {
		d = d.Where("order_id.partner_id", "=", f.PartnerID)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		d = d.With(searchTerms("order_id.", "", term))
	}
	return d
}

// searchTerms matches term against the order name, client name and product
// code or name, seen from the model reached through orderPath and linePath.
func searchTerms(orderPath, linePath, term string) ledger.Domain {
	return ledger.AnyOf(
		ledger.Term(orderPath+"name", "ilike", term),
		ledger.Term(orderPath+"partner_id.name", "ilike", term),
		ledger.Term(linePath+"product_id.default_code", "ilike", term),
		ledger.Term(linePath+"product_id.name", "ilike", term),
	)
}

func orderDateTerms(field string, f Filter) ledger.Domain {
	var d ledger.Domain
	if !f.DateFrom.IsZero() {
		d = d.Where(field, ">=", f.DateFrom.Format(sales.DateLayout))
	}
	if !f.DateTo.IsZero() {
		d = d.Where(field, "<=", f.DateTo.Format(sales.DateLayout)+" 23:59:59")
	}
	return d
}

func (r *Reconciler) normalize(f Filter) Filter {
	if f.DateFrom.IsZero() && f.DateTo.IsZero() {
		now := r.now()
		f.DateFrom = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(-defaultWindow)
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PerPage <= 0 {
		f.PerPage = r.cfg.DefaultPerPage
	}
	return f
}

func (r *Reconciler) degrade(page shared.Pagination, err error) (Result, error) {
	empty := Result{Lines: []PendingLine{}, Page: shared.NewPagination(page.Page, page.PerPage, 0), Degraded: true}
	if ledger.IsUnavailable(err) {
		r.logger.Warn("pending lines unavailable", slog.Any("error", err))
		return empty, nil
	}
	if errors.Is(err, context.Canceled) {
		return empty, err
	}
	return empty, fmt.Errorf("pending: %w", err)
}

// Outstanding returns the quantity left to invoice for an order line.
func Outstanding(orderState string, ordered, invoiced, toInvoice float64) float64 {
	if orderState == StateCredit {
		return ordered - invoiced
	}
	return toInvoice
}

// LineTotal is quantity × price × (1 − discount/100), rounded to cents.
func LineTotal(quantity, unitPrice, discount float64) float64 {
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(discount).Div(hundred))
	return decimal.NewFromFloat(quantity).
		Mul(decimal.NewFromFloat(unitPrice)).
		Mul(factor).
		Round(2).
		InexactFloat64()
}

func (r *Reconciler) collect(ctx context.Context, f Filter) ([]PendingLine, error) {
	raw, err := r.client.SearchRead(ctx, ledger.ModelOrderLine, r.Domain(f), ledger.ReadOptions{
		Fields: orderLineFields,
		Limit:  r.cfg.MaxLines,
		Order:  lineOrder,
	})
	if err != nil {
		return nil, err
	}
	if len(raw) >= r.cfg.MaxLines {
		r.logger.Warn("pending lines truncated", slog.Int("limit", r.cfg.MaxLines))
	}

	var orderIDs []int64
	for _, rec := range raw {
		orderIDs = append(orderIDs, rec.RelationID("order_id"))
	}
	orders, err := r.readIndex(ctx, ledger.ModelOrder, ledger.UniqueIDs(orderIDs), orderFields)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		rec         ledger.Record
		order       ledger.Record
		outstanding float64
	}
	kept := make([]candidate, 0, len(raw))
	var productIDs, partnerIDs []int64
	for _, rec := range raw {
		order, ok := orders[rec.RelationID("order_id")]
		if !ok {
			r.logger.Warn("pending line without readable order",
				slog.Int64("order_line_id", rec.ID()), slog.Int64("order_id", rec.RelationID("order_id")))
			continue
		}
		team, _ := order.Relation("team_id")
		if !classify.ContainsMarker(team.Name) {
			continue
		}
		qty := Outstanding(order.String("state"), rec.Float("product_uom_qty"), rec.Float("qty_invoiced"), rec.Float("qty_to_invoice"))
		if qty <= 0 {
			continue
		}
		kept = append(kept, candidate{rec: rec, order: order, outstanding: qty})
		productIDs = append(productIDs, rec.RelationID("product_id"))
		partnerIDs = append(partnerIDs, order.RelationID("partner_id"))
	}

	var (
		products, partners map[int64]ledger.Record
		placeholders       []ledger.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = r.readIndex(gctx, ledger.ModelProduct, ledger.UniqueIDs(productIDs), productFields)
		return err
	})
	g.Go(func() error {
		ids := partnerIDs
		if f.PartnerID > 0 {
			ids = append(ids, f.PartnerID)
		}
		var err error
		partners, err = r.readIndex(gctx, ledger.ModelPartner, ledger.UniqueIDs(ids), partnerFields)
		return err
	})
	if f.PartnerID > 0 {
		g.Go(func() error {
			placeholders = r.clientOrders(gctx, f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]PendingLine, 0, len(kept))
	withPending := make(map[int64]struct{}, len(kept))
	for _, c := range kept {
		line := describeOrder(c.order, partners[c.order.RelationID("partner_id")])
		line.OrderLineID = c.rec.ID()
		applyProduct(&line, c.rec, products[c.rec.RelationID("product_id")])
		line.OrderedQuantity = c.rec.Float("product_uom_qty")
		line.InvoicedQuantity = c.rec.Float("qty_invoiced")
		line.PendingQuantity = c.outstanding
		line.UnitPrice = c.rec.Float("price_unit")
		line.Discount = c.rec.Float("discount")
		line.TotalPending = LineTotal(line.PendingQuantity, line.UnitPrice, line.Discount)
		out = append(out, line)
		withPending[line.OrderID] = struct{}{}
	}

	for _, order := range placeholders {
		if _, ok := withPending[order.ID()]; ok {
			continue
		}
		line := describeOrder(order, partners[order.RelationID("partner_id")])
		line.Placeholder = true
		out = append(out, line)
	}
	return out, nil
}

// clientOrders lists the filtered client's invoiceable orders so orders without
// pending quantity can still be shown.
func (r *Reconciler) clientOrders(ctx context.Context, f Filter) []ledger.Record {
	d := ledger.Domain{}.
		Where("partner_id", "=", f.PartnerID).
		Where("state", "in", ledger.Strings(invoiceableStates)).
		Where("team_id.name", "ilike", classify.InternationalMarker).
		With(orderDateTerms("date_order", f))
	if term := strings.TrimSpace(f.Search); term != "" {
		d = d.With(searchTerms("", "order_line.", term))
	}
	recs, err := r.client.SearchRead(ctx, ledger.ModelOrder, d, ledger.ReadOptions{
		Fields: orderFields,
		Limit:  r.cfg.MaxLines,
		Order:  "date_order desc",
	})
	if err != nil {
		r.logger.Warn("client order lookup failed", slog.Int64("partner_id", f.PartnerID), slog.Any("error", err))
		return nil
	}
	out := make([]ledger.Record, 0, len(recs))
	for _, rec := range recs {
		team, _ := rec.Relation("team_id")
		if classify.ContainsMarker(team.Name) {
			out = append(out, rec)
		}
	}
	return out
}

func describeOrder(order, partner ledger.Record) PendingLine {
	line := PendingLine{
		OrderID:    order.ID(),
		OrderName:  order.String("name"),
		OrderState: order.String("state"),
	}
	if date := order.String("date_order"); date != "" {
		line.OrderDate, _, _ = strings.Cut(date, " ")
		line.Month = sales.MonthLabel(line.OrderDate)
	}
	line.Channel, _ = order.Relation("team_id")
	line.Salesperson, _ = order.Relation("user_id")
	if rel, ok := order.Relation("partner_id"); ok {
		line.PartnerID = rel.ID
		line.ClientName = rel.Name
	}
	if partner != nil {
		if name := partner.String("name"); name != "" {
			line.ClientName = name
		}
		line.ClientVAT = partner.String("vat")
		if country, ok := partner.Relation("country_id"); ok {
			line.ClientCountry = country.Name
		}
	}
	return line
}

func applyProduct(line *PendingLine, rec, product ledger.Record) {
	if rel, ok := rec.Relation("product_id"); ok {
		line.ProductID = rel.ID
		line.ProductName = rel.Name
	}
	if product == nil {
		return
	}
	line.ProductCode = product.String("default_code")
	if name := product.String("name"); name != "" {
		line.ProductName = name
	}
	line.CommercialLine, _ = product.Relation("commercial_line_national_id")
	line.PharmacologicalClass, _ = product.Relation("pharmacological_classification_id")
	line.PharmaceuticalForm, _ = product.Relation("pharmaceutical_forms_id")
	line.AdministrationRoute, _ = product.Relation("administration_way_id")
	line.ProductionLine, _ = product.Relation("production_line_id")
}

func (r *Reconciler) readIndex(ctx context.Context, model string, ids []int64, fields []string) (map[int64]ledger.Record, error) {
	if len(ids) == 0 {
		return map[int64]ledger.Record{}, nil
	}
	recs, err := r.client.Read(ctx, model, ids, fields)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", model, err)
	}
	return ledger.Index(recs), nil
}
