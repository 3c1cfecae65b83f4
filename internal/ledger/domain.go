package ledger

// Domain is an ERP search filter in prefix notation: terms are [field, operator, value]
// triples and the strings "|", "&" and "!" are operators over the following expressions.
// Consecutive top-level expressions are implicitly AND-ed.
type Domain []any

// Term builds a single [field, operator, value] condition.
func Term(field, operator string, value any) []any {
	return []any{field, operator, value}
}

// Where appends a condition and returns the extended domain.
func (d Domain) Where(field, operator string, value any) Domain {
	return append(d, Term(field, operator, value))
}

// With appends all expressions of other.
func (d Domain) With(other Domain) Domain {
	return append(d, other...)
}

// Clone copies the domain so callers can extend it without aliasing.
func (d Domain) Clone() Domain {
	out := make(Domain, len(d))
	copy(out, d)
	return out
}

// AnyOf joins the given terms with OR. A single term is returned unchanged.
func AnyOf(terms ...[]any) Domain {
	if len(terms) == 0 {
		return nil
	}
	out := make(Domain, 0, len(terms)*2-1)
	for i := 0; i < len(terms)-1; i++ {
		out = append(out, "|")
	}
	for _, t := range terms {
		out = append(out, t)
	}
	return out
}

// AllOf joins the given terms with explicit AND operators so the group can be negated or OR-ed.
func AllOf(terms ...[]any) Domain {
	if len(terms) == 0 {
		return nil
	}
	out := make(Domain, 0, len(terms)*2-1)
	for i := 0; i < len(terms)-1; i++ {
		out = append(out, "&")
	}
	for _, t := range terms {
		out = append(out, t)
	}
	return out
}

// Not negates a single expression.
func Not(expr Domain) Domain {
	return append(Domain{"!"}, expr...)
}

// Int64s converts ids to the []any shape the wire encoder expects for "in" operators.
func Int64s(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// Strings converts values to []any for "in" operators.
func Strings(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
