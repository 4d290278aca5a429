package filter

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSpec reports a Spec naming tables or columns absent from the catalog.
var ErrInvalidSpec = errors.New("invalid filter spec")

// Field is a column of a table eligible for a filter kind.
type Field struct {
	// Table is the owning table's "schema.name" key.
	Table  string
	Column string
}

// F returns the Field for column of table ("schema.name").
func F(table, column string) Field {
	return Field{Table: table, Column: column}
}

// ParseField reads "schema.table.column", or "table.column" in the public schema.
func ParseField(s string) (Field, error) {
	parts := strings.Split(s, ".")
	switch {
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return Field{Table: "public." + parts[0], Column: parts[1]}, nil
	case len(parts) == 3 && parts[0] != "" && parts[1] != "" && parts[2] != "":
		return Field{Table: parts[0] + "." + parts[1], Column: parts[2]}, nil
	default:
		return Field{}, fmt.Errorf("%w: field %q is not table.column or schema.table.column", ErrInvalidSpec, s)
	}
}

func (f Field) String() string {
	return f.Table + "." + f.Column
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Field) UnmarshalText(text []byte) error {
	parsed, err := ParseField(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Spec declares the root table of a resource and the fields each filter kind
// may address. Nil lists disable their kind.
type Spec struct {
	Root   string
	Filter []Field
	Search []Field
	Order  []Field
	// OuterJoin joins relationships with LEFT OUTER JOIN so rows lacking a
	// related row survive filters on other paths.
	OuterJoin bool
}

// Fields returns the fields declared for k.
func (s Spec) Fields(k Kind) []Field {
	switch k {
	case Equality:
		return s.Filter
	case Search:
		return s.Search
	case Order:
		return s.Order
	default:
		return nil
	}
}

func (s Spec) declared(k Kind, table, column string) bool {
	for _, f := range s.Fields(k) {
		if f.Table == table && f.Column == column {
			return true
		}
	}
	return false
}
