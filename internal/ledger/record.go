// Package ledger exposes a narrow read-only view over the remote ERP record API.
package ledger

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Relation is a resolved many2one reference. The zero value means "no relation".
type Relation struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Valid reports whether the relation points at a record.
func (r Relation) Valid() bool {
	return r.ID > 0
}

// NameOr returns the display name or fallback when the relation is missing or unnamed.
func (r Relation) NameOr(fallback string) string {
	if !r.Valid() || strings.TrimSpace(r.Name) == "" {
		return fallback
	}
	return r.Name
}

// MarshalJSON encodes a missing relation as null.
func (r Relation) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return []byte("null"), nil
	}
	type plain Relation
	return json.Marshal(plain(r))
}

// UnmarshalJSON accepts null, {"id","name"} objects and [id, name] pairs.
func (r *Relation) UnmarshalJSON(data []byte) error {
	*r = Relation{}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "false" || trimmed == "" {
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var pair []any
		if err := json.Unmarshal(data, &pair); err != nil {
			return err
		}
		if rel, ok := relationFromPair(pair); ok {
			*r = rel
		}
		return nil
	}
	type plain Relation
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Relation(p)
	return nil
}

// Record is a single row returned by the ERP: field name to scalar, list or [id, name] pair.
type Record map[string]any

// ID returns the record identifier.
func (r Record) ID() int64 {
	return r.Int("id")
}

// Int reads an integer field. Booleans, missing values and non-numbers yield 0.
func (r Record) Int(field string) int64 {
	v, ok := asInt(r[field])
	if !ok {
		return 0
	}
	return v
}

// Float reads a numeric field; the ERP sends false for empty numeric columns.
func (r Record) Float(field string) float64 {
	switch v := r[field].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) {
			return 0
		}
		return f
	default:
		return 0
	}
}

// String reads a text field. The ERP encodes empty text as false, which maps to "".
func (r Record) String(field string) string {
	switch v := r[field].(type) {
	case string:
		return v
	case nil, bool:
		return ""
	default:
		return ""
	}
}

// Relation reads a many2one field. ok is false when the value is false, absent or malformed.
func (r Record) Relation(field string) (Relation, bool) {
	switch v := r[field].(type) {
	case []any:
		return relationFromPair(v)
	default:
		if id, ok := asInt(v); ok && id > 0 {
			return Relation{ID: id}, true
		}
		return Relation{}, false
	}
}

// RelationID returns the id of a many2one field, or 0.
func (r Record) RelationID(field string) int64 {
	rel, ok := r.Relation(field)
	if !ok {
		return 0
	}
	return rel.ID
}

// IDs reads a one2many/many2many field as a list of ids.
func (r Record) IDs(field string) []int64 {
	raw, ok := r[field].([]any)
	if !ok {
		return nil
	}
	ids := make([]int64, 0, len(raw))
	for _, item := range raw {
		if id, ok := asInt(item); ok && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

func relationFromPair(pair []any) (Relation, bool) {
	if len(pair) == 0 {
		return Relation{}, false
	}
	id, ok := asInt(pair[0])
	if !ok || id <= 0 {
		return Relation{}, false
	}
	rel := Relation{ID: id}
	if len(pair) > 1 {
		if name, ok := pair[1].(string); ok {
			rel.Name = name
		}
	}
	return rel, true
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
