package dashboard

import (
	"strconv"
	"strings"
	"time"

	"github.com/salesdash/salesdash/internal/classify"
	"github.com/salesdash/salesdash/internal/pending"
	"github.com/salesdash/salesdash/internal/sales"
)

// Query holds the parsed filter parameters shared by the listing and chart endpoints.
type Query struct {
	DateFrom         time.Time
	DateTo           time.Time
	PartnerID        int64
	CommercialLineID int64
	Search           string
	Page             int
	PerPage          int
	Scope            classify.Scope
}

// LineQuery selects a line dashboard.
type LineQuery struct {
	// Month is a YYYY-MM key; empty means the current month.
	Month string
	// Line is the commercial line name; empty means the default line.
	Line string
	// EndDay optionally cuts the month short.
	EndDay int
	Scope  classify.Scope
}

func (q Query) salesFilter() sales.Filter {
	return sales.Filter{
		DateFrom:         q.DateFrom,
		DateTo:           q.DateTo,
		PartnerID:        q.PartnerID,
		CommercialLineID: q.CommercialLineID,
		Search:           q.Search,
		Page:             q.Page,
		PerPage:          q.PerPage,
		Extra:            q.Scope.Domain(),
	}
}

func (q Query) pendingFilter() pending.Filter {
	return pending.Filter{
		DateFrom:  q.DateFrom,
		DateTo:    q.DateTo,
		PartnerID: q.PartnerID,
		Search:    q.Search,
		Page:      q.Page,
		PerPage:   q.PerPage,
	}
}

// key lists the cache key parts identifying q for report.
func (q Query) key(report string) []string {
	return []string{
		"salesdash", report,
		dateToken(q.DateFrom), dateToken(q.DateTo),
		strconv.FormatInt(q.PartnerID, 10), strconv.FormatInt(q.CommercialLineID, 10),
		strings.ToLower(strings.TrimSpace(q.Search)),
		strconv.Itoa(q.Page), strconv.Itoa(q.PerPage),
		string(q.Scope),
	}
}

func (q LineQuery) key(p periodKey) []string {
	return []string{"salesdash", "line", p.month, strconv.Itoa(p.day), strings.ToUpper(q.Line), string(q.Scope)}
}

type periodKey struct {
	month string
	day   int
}

func dateToken(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(sales.DateLayout)
}
