package filter

import (
	"strings"

	"github.com/edgeflare/restful/pkg/pgx/schema"
	"github.com/edgeflare/restful/pkg/query"
)

// Kind selects which query-string parameters are read and how each value is
// turned into a condition.
type Kind uint8

const (
	Equality Kind = iota
	Search
	Order
)

// Kinds lists every kind in the default application order.
var Kinds = []Kind{Equality, Search, Order}

// String returns the query-string prefix of k.
func (k Kind) String() string {
	switch k {
	case Equality:
		return "filter"
	case Search:
		return "search"
	case Order:
		return "order"
	default:
		return "unknown"
	}
}

// ParseKind maps a query-string prefix back to its Kind.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// condition builds the predicate one value contributes for col.
func (k Kind) condition(col schema.Column, ref query.Column, value string) query.Predicate {
	switch k {
	case Search:
		if col.IsArray() {
			return query.Has(ref, strings.ToLower(value))
		}
		return query.Contains(ref, value)
	default:
		return query.Eq(ref, value)
	}
}

// predicate ORs the conditions of comma-separated values.
func (k Kind) predicate(col schema.Column, ref query.Column, raw string) query.Predicate {
	values := strings.Split(raw, ",")
	if len(values) == 1 {
		return k.condition(col, ref, values[0])
	}
	terms := make([]query.Predicate, len(values))
	for i, v := range values {
		terms[i] = k.condition(col, ref, v)
	}
	return query.Or(terms...)
}

func (k Kind) orderTerm(ref query.Column, value string) query.OrderTerm {
	if value == "desc" {
		return query.Desc(ref)
	}
	return query.Asc(ref)
}
