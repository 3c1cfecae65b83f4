package goals

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount reads a goal amount typed by a person. Thousands separators and a
// currency prefix are stripped; empty or unparseable input yields zero.
//
// A comma is read as the decimal separator only when it is the last separator
// and is followed by one or two digits ("1.234,5"); otherwise commas group
// thousands ("12,500").
func ParseAmount(raw string) float64 {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "S/")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0
	}
	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	if comma > dot && len(s)-comma-1 <= 2 && len(s)-comma-1 > 0 {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

// IsBlank reports whether a form value was left empty.
func IsBlank(raw string) bool { return strings.TrimSpace(raw) == "" }
