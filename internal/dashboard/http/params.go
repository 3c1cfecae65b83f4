package dashboardhttp

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/salesdash/salesdash/internal/classify"
	"github.com/salesdash/salesdash/internal/dashboard"
	"github.com/salesdash/salesdash/internal/sales"
)

const maxPerPage = 5000

// fieldErrors maps a query parameter to what is wrong with it.
type fieldErrors map[string]string

func (f fieldErrors) Error() string { return "invalid parameters" }

type listParams struct {
	DateFrom  string `query:"date_from" validate:"omitempty,datetime=2006-01-02"`
	DateTo    string `query:"date_to" validate:"omitempty,datetime=2006-01-02"`
	PartnerID string `query:"partner_id" validate:"omitempty,number"`
	LineID    string `query:"linea_id" validate:"omitempty,number"`
	Search    string `query:"search" validate:"max=200"`
	Page      string `query:"page" validate:"omitempty,number"`
	PerPage   string `query:"per_page" validate:"omitempty,number"`
	Scope     string `query:"scope" validate:"omitempty,oneof=all national international"`
}

type lineParams struct {
	Month  string `query:"mes" validate:"omitempty,datetime=2006-01"`
	Line   string `query:"linea_nombre" validate:"max=80"`
	EndDay string `query:"dia_fin" validate:"omitempty,number"`
	Scope  string `query:"scope" validate:"omitempty,oneof=all national international"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name, _, _ := strings.Cut(f.Tag.Get("query"), ","); name != "" {
			return name
		}
		if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" && name != "-" {
			return name
		}
		return f.Name
	})
	return v
}

// check validates s and converts validator failures into fieldErrors.
func (h *Handler) check(s any) error {
	err := h.validator.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(fieldErrors, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

// parseQuery reads the listing filters. fallback is the scope used when the
// request names none.
func (h *Handler) parseQuery(r *http.Request, fallback classify.Scope) (dashboard.Query, error) {
	values := r.URL.Query()
	p := listParams{
		DateFrom:  strings.TrimSpace(values.Get("date_from")),
		DateTo:    strings.TrimSpace(values.Get("date_to")),
		PartnerID: strings.TrimSpace(values.Get("partner_id")),
		LineID:    strings.TrimSpace(values.Get("linea_id")),
		Search:    strings.TrimSpace(values.Get("search")),
		Page:      strings.TrimSpace(values.Get("page")),
		PerPage:   strings.TrimSpace(values.Get("per_page")),
		Scope:     strings.ToLower(strings.TrimSpace(values.Get("scope"))),
	}
	if err := h.check(p); err != nil {
		return dashboard.Query{}, err
	}

	q := dashboard.Query{Search: p.Search}
	q.DateFrom, _ = parseDate(p.DateFrom)
	q.DateTo, _ = parseDate(p.DateTo)
	if !q.DateFrom.IsZero() && !q.DateTo.IsZero() && q.DateTo.Before(q.DateFrom) {
		return dashboard.Query{}, fieldErrors{"date_to": "gtefield"}
	}
	q.PartnerID, _ = strconv.ParseInt(orZero(p.PartnerID), 10, 64)
	q.CommercialLineID, _ = strconv.ParseInt(orZero(p.LineID), 10, 64)

	page, _ := strconv.Atoi(orZero(p.Page))
	perPage, _ := strconv.Atoi(orZero(p.PerPage))
	errs := fieldErrors{}
	if p.Page != "" && page < 1 {
		errs["page"] = "min"
	}
	if p.PerPage != "" && (perPage < 1 || perPage > maxPerPage) {
		errs["per_page"] = "range"
	}
	if len(errs) > 0 {
		return dashboard.Query{}, errs
	}
	q.Page, q.PerPage = page, perPage

	scope, err := classify.ParseScope(p.Scope, fallback)
	if err != nil {
		return dashboard.Query{}, fieldErrors{"scope": "oneof"}
	}
	q.Scope = scope
	return q, nil
}

func (h *Handler) parseLineQuery(r *http.Request) (dashboard.LineQuery, error) {
	values := r.URL.Query()
	p := lineParams{
		Month:  strings.TrimSpace(values.Get("mes")),
		Line:   strings.TrimSpace(values.Get("linea_nombre")),
		EndDay: strings.TrimSpace(values.Get("dia_fin")),
		Scope:  strings.ToLower(strings.TrimSpace(values.Get("scope"))),
	}
	if err := h.check(p); err != nil {
		return dashboard.LineQuery{}, err
	}
	day, _ := strconv.Atoi(orZero(p.EndDay))
	if p.EndDay != "" && (day < 1 || day > 31) {
		return dashboard.LineQuery{}, fieldErrors{"dia_fin": "range"}
	}
	scope, err := classify.ParseScope(p.Scope, classify.ScopeNational)
	if err != nil {
		return dashboard.LineQuery{}, fieldErrors{"scope": "oneof"}
	}
	return dashboard.LineQuery{Month: p.Month, Line: p.Line, EndDay: day, Scope: scope}, nil
}

func parseYear(raw string, now time.Time) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.Year(), nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 2000 || year > 2100 {
		return 0, fieldErrors{"year": "range"}
	}
	return year, nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(sales.DateLayout, raw)
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
