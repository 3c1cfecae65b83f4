package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/salesdash/salesdash/internal/ledger"
	"github.com/salesdash/salesdash/internal/shared"
)

const (
	defaultPerPage = 1000
	defaultMaxRows = 5000
	defaultWindow  = 30 * 24 * time.Hour
	lineOrder      = "date desc, id desc"
)

var (
	lineFields = []string{
		"move_id", "partner_id", "product_id", "balance", "amount_currency",
		"quantity", "price_unit", "tax_ids",
	}
	moveFields = []string{
		"name", "move_type", "state", "invoice_date", "invoice_origin", "invoice_user_id",
		"team_id", "journal_id", "partner_id", "order_id",
	}
	productFields = []string{
		"name", "default_code", "categ_id", "commercial_line_national_id",
		"pharmacological_classification_id", "pharmaceutical_forms_id",
		"administration_way_id", "production_line_id", "product_life_cycle",
	}
	partnerFields   = []string{"name", "vat", "country_id"}
	orderFields     = []string{"name", "state", "team_id", "user_id", "date_order", "partner_id"}
	orderLineFields = []string{"order_id", "product_id", "route_id"}
)

// Config tunes the assembler.
type Config struct {
	Eligibility    Eligibility
	DefaultPerPage int
	MaxLines       int
}

// Assembler reconstructs denormalised sales lines from the ledger.
type Assembler struct {
	client ledger.Client
	logger *slog.Logger
	cfg    Config
	now    func() time.Time
}

// NewAssembler constructs an Assembler.
func NewAssembler(client ledger.Client, logger *slog.Logger, cfg Config) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultPerPage <= 0 {
		cfg.DefaultPerPage = defaultPerPage
	}
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = defaultMaxRows
	}
	if cfg.Eligibility.Name == "" {
		cfg.Eligibility = StandardEligibility(DefaultExcludedCategories)
	}
	return &Assembler{client: client, logger: logger.With(slog.String("component", "sales")), cfg: cfg, now: time.Now}
}

// WithNow overrides the clock used for the default date window.
func (a *Assembler) WithNow(fn func() time.Time) *Assembler {
	if fn != nil {
		a.now = fn
	}
	return a
}

// Eligibility exposes the active predicate.
func (a *Assembler) Eligibility() Eligibility { return a.cfg.Eligibility }

// Client exposes the ledger the assembler reads from.
func (a *Assembler) Client() ledger.Client { return a.client }

// Assemble returns one page of sales lines. Pagination totals come from a count
// query against the same domain. When the ledger is unavailable the result is
// empty, flagged as degraded, and no error is returned.
func (a *Assembler) Assemble(ctx context.Context, f Filter) (Result, error) {
	f = a.normalize(f)
	domain := a.cfg.Eligibility.Domain(f)
	page := shared.NewPagination(f.Page, f.PerPage, 0)

	var (
		total int
		raw   []ledger.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := a.client.Count(gctx, ledger.ModelInvoiceLine, domain)
		total = n
		return err
	})
	g.Go(func() error {
		recs, err := a.client.SearchRead(gctx, ledger.ModelInvoiceLine, domain, ledger.ReadOptions{
			Fields: lineFields,
			Limit:  page.PerPage,
			Offset: page.Offset(),
			Order:  lineOrder,
		})
		raw = recs
		return err
	})
	if err := g.Wait(); err != nil {
		return a.degrade(page, err)
	}

	lines, err := a.join(ctx, raw)
	if err != nil {
		return a.degrade(page, err)
	}
	return Result{Lines: lines, Page: shared.NewPagination(page.Page, page.PerPage, total)}, nil
}

// AssembleAll returns every matching line up to the configured cap, for aggregation.
func (a *Assembler) AssembleAll(ctx context.Context, f Filter) (Result, error) {
	f = a.normalize(f)
	domain := a.cfg.Eligibility.Domain(f)
	raw, err := a.client.SearchRead(ctx, ledger.ModelInvoiceLine, domain, ledger.ReadOptions{
		Fields: lineFields,
		Limit:  a.cfg.MaxLines,
		Order:  lineOrder,
	})
	if err != nil {
		return a.degrade(shared.NewPagination(1, a.cfg.MaxLines, 0), err)
	}
	if len(raw) >= a.cfg.MaxLines {
		a.logger.Warn("sales lines truncated", slog.Int("limit", a.cfg.MaxLines))
	}
	lines, err := a.join(ctx, raw)
	if err != nil {
		return a.degrade(shared.NewPagination(1, a.cfg.MaxLines, 0), err)
	}
	return Result{Lines: lines, Page: shared.NewPagination(1, a.cfg.MaxLines, len(lines))}, nil
}

func (a *Assembler) normalize(f Filter) Filter {
	if f.DateFrom.IsZero() && f.DateTo.IsZero() {
		now := a.now()
		f.DateFrom = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(-defaultWindow)
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PerPage <= 0 {
		f.PerPage = a.cfg.DefaultPerPage
	}
	if f.PerPage > a.cfg.MaxLines {
		f.PerPage = a.cfg.MaxLines
	}
	return f
}

func (a *Assembler) degrade(page shared.Pagination, err error) (Result, error) {
	empty := Result{Lines: []SalesLine{}, Page: shared.NewPagination(page.Page, page.PerPage, 0), Degraded: true}
	if ledger.IsUnavailable(err) {
		a.logger.Warn("sales lines unavailable", slog.Any("error", err))
		return empty, nil
	}
	if errors.Is(err, context.Canceled) {
		return empty, err
	}
	return empty, fmt.Errorf("sales: assemble: %w", err)
}

type orderProduct struct {
	order   int64
	product int64
}

// join resolves invoices, products, partners, orders, order lines and taxes for a
// page of raw lines. A failed invoice, product or partner read fails the page;
// records the ledger no longer returns fall back to the names on the raw line.
// Orders, order lines and taxes are supplementary and their failures only logged.
func (a *Assembler) join(ctx context.Context, raw []ledger.Record) ([]SalesLine, error) {
	if len(raw) == 0 {
		return []SalesLine{}, nil
	}
	var moveIDs, productIDs, taxIDs []int64
	for _, rec := range raw {
		moveIDs = append(moveIDs, rec.RelationID("move_id"))
		productIDs = append(productIDs, rec.RelationID("product_id"))
		taxIDs = append(taxIDs, rec.IDs("tax_ids")...)
	}
	moveIDs = ledger.UniqueIDs(moveIDs)
	productIDs = ledger.UniqueIDs(productIDs)
	taxIDs = ledger.UniqueIDs(taxIDs)

	var (
		moves, products map[int64]ledger.Record
		taxes           map[int64]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		moves, err = a.readIndex(gctx, ledger.ModelInvoice, moveIDs, moveFields)
		return err
	})
	g.Go(func() error {
		var err error
		products, err = a.readIndex(gctx, ledger.ModelProduct, productIDs, productFields)
		return err
	})
	g.Go(func() error {
		taxes = a.taxNames(gctx, taxIDs)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var partnerIDs, orderIDs []int64
	var origins []string
	for _, rec := range raw {
		move := moves[rec.RelationID("move_id")]
		if id := move.RelationID("partner_id"); id > 0 {
			partnerIDs = append(partnerIDs, id)
		} else {
			partnerIDs = append(partnerIDs, rec.RelationID("partner_id"))
		}
		if id := move.RelationID("order_id"); id > 0 {
			orderIDs = append(orderIDs, id)
		} else if origin := strings.TrimSpace(move.String("invoice_origin")); origin != "" {
			origins = append(origins, origin)
		}
	}

	var (
		partners map[int64]ledger.Record
		orders   *orderIndex
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		partners, err = a.readIndex(gctx, ledger.ModelPartner, ledger.UniqueIDs(partnerIDs), partnerFields)
		return err
	})
	g.Go(func() error {
		orders = a.orders(gctx, ledger.UniqueIDs(orderIDs), uniqueStrings(origins))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	orderLines := a.orderLines(ctx, orders.ids(), productIDs)

	lines := make([]SalesLine, 0, len(raw))
	for _, rec := range raw {
		move := moves[rec.RelationID("move_id")]
		product := products[rec.RelationID("product_id")]
		partnerID := move.RelationID("partner_id")
		if partnerID == 0 {
			partnerID = rec.RelationID("partner_id")
		}
		order := orders.resolve(move)
		route := ledger.Relation{}
		if ol, ok := orderLines[orderProduct{order.ID(), rec.RelationID("product_id")}]; ok {
			route, _ = ol.Relation("route_id")
		}
		lines = append(lines, buildLine(rec, move, product, partners[partnerID], order, route, taxes))
	}
	return lines, nil
}

func buildLine(rec, move, product, partner, order ledger.Record, route ledger.Relation, taxes map[int64]string) SalesLine {
	line := SalesLine{
		ID:             rec.ID(),
		MoveID:         rec.RelationID("move_id"),
		MoveName:       move.String("name"),
		MoveType:       move.String("move_type"),
		InvoiceOrigin:  move.String("invoice_origin"),
		InvoiceDate:    move.String("invoice_date"),
		Quantity:       rec.Float("quantity"),
		UnitPrice:      rec.Float("price_unit"),
		Total:          -rec.Float("balance"),
		AmountCurrency: -rec.Float("amount_currency"),
		Route:          route,
	}
	line.Month = MonthLabel(line.InvoiceDate)
	if line.MoveName == "" {
		if rel, ok := rec.Relation("move_id"); ok {
			line.MoveName = rel.Name
		}
	}

	// Order name falls back to the invoice origin when no order is linked.
	if name := order.String("name"); name != "" {
		line.OrderID = order.ID()
		line.OrderName = name
	} else {
		line.OrderName = line.InvoiceOrigin
	}

	if rel, ok := rec.Relation("product_id"); ok {
		line.ProductID = rel.ID
		line.ProductName = rel.Name
	}
	if product != nil {
		line.ProductCode = product.String("default_code")
		if name := product.String("name"); name != "" {
			line.ProductName = name
		}
		line.CommercialLine, _ = product.Relation("commercial_line_national_id")
		line.Category, _ = product.Relation("categ_id")
		line.PharmacologicalClass, _ = product.Relation("pharmacological_classification_id")
		line.PharmaceuticalForm, _ = product.Relation("pharmaceutical_forms_id")
		line.AdministrationRoute, _ = product.Relation("administration_way_id")
		line.ProductionLine, _ = product.Relation("production_line_id")
		line.LifeCycle = product.String("product_life_cycle")
	}

	if rel, ok := move.Relation("partner_id"); ok {
		line.PartnerID = rel.ID
		line.ClientName = rel.Name
	} else if rel, ok := rec.Relation("partner_id"); ok {
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

	line.Channel, _ = move.Relation("team_id")
	line.Salesperson, _ = move.Relation("invoice_user_id")
	line.Journal, _ = move.Relation("journal_id")

	names := make([]string, 0)
	for _, id := range rec.IDs("tax_ids") {
		if name, ok := taxes[id]; ok {
			names = append(names, name)
		}
	}
	line.Taxes = strings.Join(names, ", ")
	return line
}

func (a *Assembler) readIndex(ctx context.Context, model string, ids []int64, fields []string) (map[int64]ledger.Record, error) {
	if len(ids) == 0 {
		return map[int64]ledger.Record{}, nil
	}
	recs, err := a.client.Read(ctx, model, ids, fields)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", model, err)
	}
	return ledger.Index(recs), nil
}

func (a *Assembler) taxNames(ctx context.Context, ids []int64) map[int64]string {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out
	}
	recs, err := a.client.Read(ctx, ledger.ModelTax, ids, []string{"name"})
	if err != nil {
		a.logger.Warn("tax lookup failed", slog.Any("error", err))
		return out
	}
	for _, rec := range recs {
		out[rec.ID()] = rec.String("name")
	}
	return out
}

// orderIndex resolves an invoice to its sales order by id or by origin name.
type orderIndex struct {
	byID   map[int64]ledger.Record
	byName map[string]ledger.Record
}

func (o *orderIndex) resolve(move ledger.Record) ledger.Record {
	if o == nil || move == nil {
		return nil
	}
	if rec, ok := o.byID[move.RelationID("order_id")]; ok {
		return rec
	}
	if origin := strings.TrimSpace(move.String("invoice_origin")); origin != "" {
		return o.byName[origin]
	}
	return nil
}

func (o *orderIndex) ids() []int64 {
	if o == nil {
		return nil
	}
	out := make([]int64, 0, len(o.byID))
	for id := range o.byID {
		out = append(out, id)
	}
	return out
}

func (a *Assembler) orders(ctx context.Context, ids []int64, origins []string) *orderIndex {
	idx := &orderIndex{byID: map[int64]ledger.Record{}, byName: map[string]ledger.Record{}}
	var terms [][]any
	if len(ids) > 0 {
		terms = append(terms, ledger.Term("id", "in", ledger.Int64s(ids)))
	}
	if len(origins) > 0 {
		terms = append(terms, ledger.Term("name", "in", ledger.Strings(origins)))
	}
	if len(terms) == 0 {
		return idx
	}
	recs, err := a.client.SearchRead(ctx, ledger.ModelOrder, ledger.AnyOf(terms...), ledger.ReadOptions{Fields: orderFields})
	if err != nil {
		a.logger.Warn("order lookup failed", slog.Any("error", err))
		return idx
	}
	for _, rec := range recs {
		idx.byID[rec.ID()] = rec
		if name := rec.String("name"); name != "" {
			idx.byName[name] = rec
		}
	}
	return idx
}

func (a *Assembler) orderLines(ctx context.Context, orderIDs, productIDs []int64) map[orderProduct]ledger.Record {
	out := make(map[orderProduct]ledger.Record)
	if len(orderIDs) == 0 || len(productIDs) == 0 {
		return out
	}
	domain := ledger.Domain{}.
		Where("order_id", "in", ledger.Int64s(orderIDs)).
		Where("product_id", "in", ledger.Int64s(productIDs))
	recs, err := a.client.SearchRead(ctx, ledger.ModelOrderLine, domain, ledger.ReadOptions{Fields: orderLineFields})
	if err != nil {
		a.logger.Warn("order line lookup failed", slog.Any("error", err))
		return out
	}
	for _, rec := range recs {
		key := orderProduct{rec.RelationID("order_id"), rec.RelationID("product_id")}
		if key.order > 0 && key.product > 0 {
			if _, seen := out[key]; !seen {
				out[key] = rec
			}
		}
	}
	return out
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
