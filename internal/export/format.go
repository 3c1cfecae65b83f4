package export

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultCurrencySymbol prefixes formatted amounts.
const DefaultCurrencySymbol = "S/"

// Formatter renders cell values for text exports.
type Formatter struct {
	printer *message.Printer
	symbol  string
}

// NewFormatter builds a formatter grouping digits the way tag does.
func NewFormatter(tag language.Tag, symbol string) Formatter {
	if symbol == "" {
		symbol = DefaultCurrencySymbol
	}
	return Formatter{printer: message.NewPrinter(tag), symbol: symbol}
}

// DefaultFormatter groups thousands with commas and uses a dot for decimals.
func DefaultFormatter() Formatter {
	return NewFormatter(language.AmericanEnglish, DefaultCurrencySymbol)
}

// Currency renders an amount rounded to cents, e.g. "S/ 1,234.50".
func (f Formatter) Currency(v float64) string {
	rounded, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f.printer.Sprintf("%s %.2f", f.symbol, rounded)
}

// Symbol returns the currency symbol.
func (f Formatter) Symbol() string { return f.symbol }

func (f Formatter) cell(v any, currency bool) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if currency {
			return f.Currency(val)
		}
		return decimal.NewFromFloat(val).String()
	case int64:
		return fmt.Sprint(val)
	case int:
		return fmt.Sprint(val)
	default:
		return fmt.Sprint(val)
	}
}
