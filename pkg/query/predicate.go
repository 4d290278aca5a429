package query

import "strings"

// Predicate is a boolean SQL expression usable in WHERE and ON clauses.
type Predicate interface {
	write(b *builder)
}

// Operator is a comparison between a column and a bound value.
type Operator string

const (
	OpEq    Operator = "="
	OpILike Operator = "ILIKE"
	OpAny   Operator = "ANY"
)

// Comparison compares Column to Value with Op.
type Comparison struct {
	Column Column
	Op     Operator
	Value  any
}

func (c Comparison) write(b *builder) {
	switch c.Op {
	case OpILike:
		b.WriteString(c.Column.sql() + "::text ILIKE " + b.arg(c.Value))
	case OpAny:
		b.WriteString(b.arg(c.Value) + " = ANY(" + c.Column.sql() + ")")
	default:
		b.WriteString(c.Column.sql() + " = " + b.arg(c.Value))
	}
}

// Eq matches rows where col equals v.
func Eq(col Column, v any) Comparison {
	return Comparison{Column: col, Op: OpEq, Value: v}
}

// Contains matches rows where col, rendered as text, contains s ignoring case.
func Contains(col Column, s string) Comparison {
	return Comparison{Column: col, Op: OpILike, Value: "%" + escapeLike(s) + "%"}
}

// Has matches rows where the array column col has v as an element.
func Has(col Column, v any) Comparison {
	return Comparison{Column: col, Op: OpAny, Value: v}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// ColumnsEqual relates two columns, typically in a join condition.
type ColumnsEqual struct {
	Left, Right Column
}

func (c ColumnsEqual) write(b *builder) {
	b.WriteString(c.Left.sql() + " = " + c.Right.sql())
}

// On builds the ON condition left = right.
func On(left, right Column) ColumnsEqual {
	return ColumnsEqual{Left: left, Right: right}
}

// Subquery matches rows whose Column is among the values of Of in the rows
// of Sub. Rows of Sub matching several times do not repeat the outer row.
type Subquery struct {
	Column Column
	Sub    Select
	Of     Column
}

func (s Subquery) write(b *builder) {
	b.WriteString(s.Column.sql() + " IN (SELECT " + s.Of.sql())
	s.Sub.writeBody(b)
	b.WriteString(")")
}

// In matches rows where col equals of in some row of sub.
func In(col Column, sub Select, of Column) Subquery {
	return Subquery{Column: col, Sub: sub, Of: of}
}

// Group combines Terms with a conjunction.
type Group struct {
	Conjunction string
	Terms       []Predicate
}

func (g Group) write(b *builder) {
	if len(g.Terms) == 1 {
		g.Terms[0].write(b)
		return
	}
	b.WriteString("(")
	for i, t := range g.Terms {
		if i > 0 {
			b.WriteString(" " + g.Conjunction + " ")
		}
		t.write(b)
	}
	b.WriteString(")")
}

// Or matches when any term matches.
func Or(terms ...Predicate) Group {
	return Group{Conjunction: "OR", Terms: terms}
}

// And matches when every term matches.
func And(terms ...Predicate) Group {
	return Group{Conjunction: "AND", Terms: terms}
}

// OrderTerm is one ORDER BY key.
type OrderTerm struct {
	Column Column
	Desc   bool
}

func (o OrderTerm) write(b *builder) {
	b.WriteString(o.Column.sql())
	if o.Desc {
		b.WriteString(" DESC")
	} else {
		b.WriteString(" ASC")
	}
}

// Asc sorts by col ascending.
func Asc(col Column) OrderTerm {
	return OrderTerm{Column: col}
}

// Desc sorts by col descending.
func Desc(col Column) OrderTerm {
	return OrderTerm{Column: col, Desc: true}
}
