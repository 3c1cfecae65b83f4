// Package ledgertest provides an in-memory ledger.Client for tests.
package ledgertest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/salesdash/salesdash/internal/ledger"
)

// Call captures a single request made against the fake.
type Call struct {
	Model  string
	Method string
	Domain ledger.Domain
	Opts   ledger.ReadOptions
	IDs    []int64
}

// Fake evaluates domains over in-memory records. Terms on dotted paths
// ("move_id.state") are resolved through Relations when registered and treated as
// satisfied otherwise, so tests can focus on the fields they seed. A registered
// path through an empty relation never matches.
type Fake struct {
	mu        sync.Mutex
	records   map[string][]ledger.Record
	relations map[string]string
	errs      map[string]error
	calls     []Call
}

// New constructs an empty fake.
func New() *Fake {
	return &Fake{
		records:   make(map[string][]ledger.Record),
		relations: make(map[string]string),
		errs:      make(map[string]error),
	}
}

// Add seeds records for a model.
func (f *Fake) Add(model string, records ...ledger.Record) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[model] = append(f.records[model], records...)
	return f
}

// Relate declares that field on model points at target, enabling dotted-path terms.
func (f *Fake) Relate(model, field, target string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relations[model+"."+field] = target
	return f
}

// Fail makes every call against model return err. An empty model fails all calls.
func (f *Fake) Fail(model string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[model] = err
	return f
}

// Calls returns the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsFor filters recorded calls by model and method.
func (f *Fake) CallsFor(model, method string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Model == model && c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Count implements ledger.Client.
func (f *Fake) Count(ctx context.Context, model string, domain ledger.Domain) (int, error) {
	matched, err := f.match(ctx, Call{Model: model, Method: "search_count", Domain: domain})
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

// SearchRead implements ledger.Client.
func (f *Fake) SearchRead(ctx context.Context, model string, domain ledger.Domain, opts ledger.ReadOptions) ([]ledger.Record, error) {
	matched, err := f.match(ctx, Call{Model: model, Method: "search_read", Domain: domain, Opts: opts})
	if err != nil {
		return nil, err
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return []ledger.Record{}, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

// Read implements ledger.Client.
func (f *Fake) Read(ctx context.Context, model string, ids []int64, fields []string) ([]ledger.Record, error) {
	domain := ledger.Domain{}.Where("id", "in", ledger.Int64s(ids))
	return f.match(ctx, Call{Model: model, Method: "read", Domain: domain, IDs: ids})
}

// GroupBy implements ledger.Client.
func (f *Fake) GroupBy(ctx context.Context, model string, domain ledger.Domain, field string) ([]ledger.Group, error) {
	matched, err := f.match(ctx, Call{Model: model, Method: "read_group", Domain: domain})
	if err != nil {
		return nil, err
	}
	counts := make(map[int64]*ledger.Group)
	order := make([]int64, 0)
	for _, rec := range matched {
		rel, ok := rec.Relation(field)
		if !ok {
			continue
		}
		g, ok := counts[rel.ID]
		if !ok {
			g = &ledger.Group{Key: rel}
			counts[rel.ID] = g
			order = append(order, rel.ID)
		}
		g.Count++
	}
	out := make([]ledger.Group, 0, len(order))
	for _, id := range order {
		out = append(out, *counts[id])
	}
	return out, nil
}

func (f *Fake) match(ctx context.Context, call Call) ([]ledger.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if err, ok := f.errs[call.Model]; ok {
		return nil, err
	}
	if err, ok := f.errs[""]; ok {
		return nil, err
	}
	expr, rest, err := parse(call.Domain)
	if err != nil {
		return nil, fmt.Errorf("ledgertest: %s: %w", call.Model, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("ledgertest: %s: trailing domain tokens", call.Model)
	}
	out := make([]ledger.Record, 0)
	for _, rec := range f.records[call.Model] {
		if expr == nil || expr.eval(f, call.Model, rec) {
			out = append(out, rec)
		}
	}
	if call.Opts.Order != "" && strings.HasSuffix(call.Opts.Order, "desc") {
		field := strings.Fields(call.Opts.Order)[0]
		sort.SliceStable(out, func(i, j int) bool {
			return sortKey(out[i], field) > sortKey(out[j], field)
		})
	}
	return out, nil
}

func sortKey(rec ledger.Record, field string) int64 {
	if id := rec.RelationID(field); id > 0 {
		return id
	}
	return rec.Int(field)
}

type node interface {
	eval(f *Fake, model string, rec ledger.Record) bool
}

type andNode struct{ left, right node }
type orNode struct{ left, right node }
type notNode struct{ inner node }
type termNode struct {
	field string
	op    string
	value any
}

func (n andNode) eval(f *Fake, m string, r ledger.Record) bool {
	return n.left.eval(f, m, r) && n.right.eval(f, m, r)
}
func (n orNode) eval(f *Fake, m string, r ledger.Record) bool {
	return n.left.eval(f, m, r) || n.right.eval(f, m, r)
}
func (n notNode) eval(f *Fake, m string, r ledger.Record) bool { return !n.inner.eval(f, m, r) }

func (n termNode) eval(f *Fake, model string, rec ledger.Record) bool {
	head, tail, dotted := strings.Cut(n.field, ".")
	if !dotted {
		return compare(rec, head, n.op, n.value)
	}
	target, ok := f.relations[model+"."+head]
	if !ok {
		return true
	}
	// Like the ledger, a dotted term only matches through an existing record.
	ids := relatedIDs(rec, head)
	if len(ids) == 0 {
		return false
	}
	next := termNode{field: tail, op: n.op, value: n.value}
	for _, related := range f.records[target] {
		if slices.Contains(ids, related.ID()) && next.eval(f, target, related) {
			return true
		}
	}
	return false
}

// relatedIDs reads a many2one pair or a one2many id list.
func relatedIDs(rec ledger.Record, field string) []int64 {
	if list, ok := rec[field].([]any); ok && !isPair(list) {
		return rec.IDs(field)
	}
	if id := rec.RelationID(field); id > 0 {
		return []int64{id}
	}
	return nil
}

func isPair(v []any) bool {
	if len(v) != 2 {
		return false
	}
	_, named := v[1].(string)
	return named
}

// parse consumes one expression, folding implicit top-level ANDs.
func parse(domain ledger.Domain) (node, ledger.Domain, error) {
	if len(domain) == 0 {
		return nil, nil, nil
	}
	var root node
	rest := domain
	for len(rest) > 0 {
		n, r, err := parseOne(rest)
		if err != nil {
			return nil, nil, err
		}
		if root == nil {
			root = n
		} else {
			root = andNode{root, n}
		}
		rest = r
	}
	return root, rest, nil
}

func parseOne(domain ledger.Domain) (node, ledger.Domain, error) {
	if len(domain) == 0 {
		return nil, nil, fmt.Errorf("unexpected end of domain")
	}
	switch tok := domain[0].(type) {
	case string:
		switch tok {
		case "|", "&":
			left, rest, err := parseOne(domain[1:])
			if err != nil {
				return nil, nil, err
			}
			right, rest, err := parseOne(rest)
			if err != nil {
				return nil, nil, err
			}
			if tok == "|" {
				return orNode{left, right}, rest, nil
			}
			return andNode{left, right}, rest, nil
		case "!":
			inner, rest, err := parseOne(domain[1:])
			if err != nil {
				return nil, nil, err
			}
			return notNode{inner}, rest, nil
		default:
			return nil, nil, fmt.Errorf("unknown operator %q", tok)
		}
	case []any:
		if len(tok) != 3 {
			return nil, nil, fmt.Errorf("malformed term %v", tok)
		}
		field, _ := tok[0].(string)
		op, _ := tok[1].(string)
		return termNode{field: field, op: op, value: tok[2]}, domain[1:], nil
	default:
		return nil, nil, fmt.Errorf("unexpected token %T", tok)
	}
}

func compare(rec ledger.Record, field, op string, value any) bool {
	raw, present := rec[field]
	if rel, ok := rec.Relation(field); ok && field != "id" {
		raw = rel.ID
		if op == "ilike" || op == "not ilike" || op == "like" {
			raw = rel.Name
		}
	}
	switch op {
	case "=":
		return equal(raw, value, present)
	case "!=":
		return !equal(raw, value, present)
	case "in":
		return contains(value, raw)
	case "not in":
		return !contains(value, raw)
	case "ilike", "like":
		s, _ := raw.(string)
		needle, _ := value.(string)
		return s != "" && strings.Contains(strings.ToLower(s), strings.ToLower(needle))
	case "not ilike":
		s, _ := raw.(string)
		needle, _ := value.(string)
		return !strings.Contains(strings.ToLower(s), strings.ToLower(needle))
	case "=like", "=ilike":
		s, _ := raw.(string)
		pattern, _ := value.(string)
		return strings.HasPrefix(strings.ToLower(s), strings.ToLower(strings.TrimSuffix(pattern, "%")))
	case ">", ">=", "<", "<=":
		return order(raw, value, op)
	default:
		return false
	}
}

func equal(raw, value any, present bool) bool {
	if b, ok := value.(bool); ok && !b {
		return !present || isFalsy(raw)
	}
	if n, ok := toFloat(value); ok {
		m, ok := toFloat(raw)
		return ok && m == n
	}
	return fmt.Sprint(raw) == fmt.Sprint(value)
}

func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == ""
	default:
		return false
	}
}

func contains(list any, raw any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if equal(raw, item, true) {
			return true
		}
	}
	return false
}

func order(raw, value any, op string) bool {
	if a, ok := toFloat(raw); ok {
		b, ok := toFloat(value)
		if !ok {
			return false
		}
		switch op {
		case ">":
			return a > b
		case ">=":
			return a >= b
		case "<":
			return a < b
		default:
			return a <= b
		}
	}
	a, _ := raw.(string)
	b, _ := value.(string)
	if a == "" {
		return false
	}
	switch op {
	case ">":
		return a > b
	case ">=":
		return a >= b
	case "<":
		return a < b
	default:
		return a <= b
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
