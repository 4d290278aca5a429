// Package query provides an immutable SQL SELECT builder over PostgreSQL
// tables and its execution against a pgx connection.
//
// Every builder method returns a new Select; the receiver is never modified,
// so a base query can be shared across requests and refined per request.
//
//	q := query.From(query.Table{Schema: "public", Name: "books"}).
//		Join(query.Join{Table: authors, On: query.On(authorsID, booksAuthorID)}).
//		Filter(query.Eq(authorsName, "Tolkien")).
//		OrderBy(query.Desc(booksTitle))
//	sql, args := q.SQL()
package query

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Table identifies a relation by schema and name.
type Table struct {
	Schema string
	Name   string
}

// Key returns the "schema.name" form used by the schema catalog.
func (t Table) Key() string {
	return t.Schema + "." + t.Name
}

func (t Table) sql() string {
	return pgx.Identifier{t.Schema, t.Name}.Sanitize()
}

// Col returns a column of t.
func (t Table) Col(name string) Column {
	return Column{Table: t, Name: name}
}

// Column is a fully qualified column reference.
type Column struct {
	Table Table
	Name  string
}

func (c Column) sql() string {
	return pgx.Identifier{c.Table.Schema, c.Table.Name, c.Name}.Sanitize()
}

func (c Column) String() string {
	return c.Table.Key() + "." + c.Name
}

// Join attaches Table to a query. The query's row set is unaffected by Outer
// joins that find no match.
type Join struct {
	Table Table
	On    Predicate
	Outer bool
}

// Expansion projects the joined row of Table as a single JSON column named Alias.
type Expansion struct {
	Table Table
	Alias string
}

// Select is an immutable SELECT statement over a base table.
type Select struct {
	from       Table
	joins      []Join
	where      []Predicate
	order      []OrderTerm
	expansions []Expansion
	limit      int
	offset     int
}

// From starts a query over table.
func From(table Table) Select {
	return Select{from: table, limit: -1}
}

// Table returns the base table.
func (q Select) Table() Table {
	return q.from
}

// Filter returns a query restricted by all given predicates (AND).
func (q Select) Filter(preds ...Predicate) Select {
	if len(preds) == 0 {
		return q
	}
	q.where = append(slices.Clip(q.where), preds...)
	return q
}

// Join returns a query with j attached as an inner join. Tables already in
// the query (the base table included) are not joined again.
func (q Select) Join(j Join) Select {
	j.Outer = false
	return q.attach(j)
}

// OuterJoin is Join with LEFT OUTER semantics.
func (q Select) OuterJoin(j Join) Select {
	j.Outer = true
	return q.attach(j)
}

func (q Select) attach(j Join) Select {
	if q.HasJoined(j.Table) {
		return q
	}
	q.joins = append(slices.Clip(q.joins), j)
	return q
}

// HasJoined reports whether t is the base table or already joined.
func (q Select) HasJoined(t Table) bool {
	if t == q.from {
		return true
	}
	for _, j := range q.joins {
		if j.Table == t {
			return true
		}
	}
	return false
}

// Joined returns the joined tables in join order.
func (q Select) Joined() []Table {
	tables := make([]Table, len(q.joins))
	for i, j := range q.joins {
		tables[i] = j.Table
	}
	return tables
}

// Tables returns every relation the statement reads: the base table, the
// joined tables and those of subqueries in its predicates.
func (q Select) Tables() []Table {
	tables := []Table{q.from}
	add := func(t Table) {
		if !slices.Contains(tables, t) {
			tables = append(tables, t)
		}
	}
	for _, j := range q.joins {
		add(j.Table)
	}
	var walk func(p Predicate)
	walk = func(p Predicate) {
		switch p := p.(type) {
		case Subquery:
			for _, t := range p.Sub.Tables() {
				add(t)
			}
		case Group:
			for _, t := range p.Terms {
				walk(t)
			}
		}
	}
	for _, p := range q.where {
		walk(p)
	}
	return tables
}

// OrderBy appends sort terms.
func (q Select) OrderBy(terms ...OrderTerm) Select {
	if len(terms) == 0 {
		return q
	}
	q.order = append(slices.Clip(q.order), terms...)
	return q
}

// Ordered reports whether the query carries at least one sort term.
func (q Select) Ordered() bool {
	return len(q.order) > 0
}

// Expand adds a JSON projection of a joined table.
func (q Select) Expand(e Expansion) Select {
	for _, have := range q.expansions {
		if have.Alias == e.Alias {
			return q
		}
	}
	q.expansions = append(slices.Clip(q.expansions), e)
	return q
}

// Limit caps the number of rows. A negative n removes the cap.
func (q Select) Limit(n int) Select {
	q.limit = n
	return q
}

// Offset skips the first n rows.
func (q Select) Offset(n int) Select {
	q.offset = n
	return q
}

// Predicates returns the WHERE clauses in application order.
func (q Select) Predicates() []Predicate {
	return slices.Clone(q.where)
}

// Order returns the sort terms.
func (q Select) Order() []OrderTerm {
	return slices.Clone(q.order)
}

// SQL renders the statement and its positional arguments.
func (q Select) SQL() (string, []any) {
	b := &builder{}
	b.WriteString("SELECT ")
	b.WriteString(q.from.sql())
	b.WriteString(".*")
	for _, e := range q.expansions {
		fmt.Fprintf(b, ", to_jsonb(%s.*) AS %s", e.Table.sql(), pgx.Identifier{e.Alias}.Sanitize())
	}
	q.writeBody(b)
	if len(q.order) > 0 {
		b.WriteString(" ORDER BY ")
		for i, t := range q.order {
			if i > 0 {
				b.WriteString(", ")
			}
			t.write(b)
		}
	}
	if q.limit >= 0 {
		fmt.Fprintf(b, " LIMIT %d", q.limit)
	}
	if q.offset > 0 {
		fmt.Fprintf(b, " OFFSET %d", q.offset)
	}
	return b.String(), b.args
}

// CountSQL renders a statement counting the rows SQL would return without
// limit or offset.
func (q Select) CountSQL() (string, []any) {
	b := &builder{}
	b.WriteString("SELECT count(*) FROM (SELECT ")
	b.WriteString(q.from.sql())
	b.WriteString(".*")
	q.writeBody(b)
	b.WriteString(") AS counted")
	return b.String(), b.args
}

func (q Select) writeBody(b *builder) {
	b.WriteString(" FROM ")
	b.WriteString(q.from.sql())
	for _, j := range q.joins {
		if j.Outer {
			b.WriteString(" LEFT OUTER JOIN ")
		} else {
			b.WriteString(" INNER JOIN ")
		}
		b.WriteString(j.Table.sql())
		b.WriteString(" ON ")
		j.On.write(b)
	}
	if len(q.where) > 0 {
		b.WriteString(" WHERE ")
		for i, p := range q.where {
			if i > 0 {
				b.WriteString(" AND ")
			}
			p.write(b)
		}
	}
}

type builder struct {
	strings.Builder
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}
