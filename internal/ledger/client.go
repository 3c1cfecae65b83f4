package ledger

import (
	"context"
	"errors"
)

// Collections read by the dashboard.
const (
	ModelInvoiceLine = "account.move.line"
	ModelInvoice     = "account.move"
	ModelOrder       = "sale.order"
	ModelOrderLine   = "sale.order.line"
	ModelProduct     = "product.product"
	ModelPartner     = "res.partner"
	ModelTax         = "account.tax"
	ModelUser        = "res.users"
)

var (
	// ErrOffline is returned when the ERP cannot be reached or rejects the credentials.
	ErrOffline = errors.New("ledger: remote ledger unavailable")
	// ErrTimeout is returned when a call exceeds the configured deadline.
	ErrTimeout = errors.New("ledger: remote call timed out")
	// ErrNotConfigured is returned when no endpoint or credentials were supplied.
	ErrNotConfigured = errors.New("ledger: client not configured")
)

// ReadOptions narrows a search-read call.
type ReadOptions struct {
	Fields []string
	Limit  int
	Offset int
	Order  string
}

// Group is one bucket returned by a grouped read.
type Group struct {
	Key   Relation
	Count int64
}

// Client is the capability the assemblers depend on.
type Client interface {
	Count(ctx context.Context, model string, domain Domain) (int, error)
	SearchRead(ctx context.Context, model string, domain Domain, opts ReadOptions) ([]Record, error)
	Read(ctx context.Context, model string, ids []int64, fields []string) ([]Record, error)
	GroupBy(ctx context.Context, model string, domain Domain, field string) ([]Group, error)
}

// IsUnavailable reports whether err means the ledger is degraded rather than the request being wrong.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrOffline) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrNotConfigured) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Index maps records by id.
func Index(records []Record) map[int64]Record {
	out := make(map[int64]Record, len(records))
	for _, rec := range records {
		if id := rec.ID(); id > 0 {
			out[id] = rec
		}
	}
	return out
}

// UniqueIDs collects distinct positive ids in first-seen order.
func UniqueIDs(ids ...[]int64) []int64 {
	seen := make(map[int64]struct{})
	out := make([]int64, 0)
	for _, group := range ids {
		for _, id := range group {
			if id <= 0 {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
