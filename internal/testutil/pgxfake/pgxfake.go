// Package pgxfake provides a scripted in-memory stand-in for a pgx connection.
package pgxfake

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Result is what the fake answers for one statement.
type Result struct {
	Columns []string
	Rows    [][]any
	Tag     string
	Err     error
}

// Call records one statement sent to the fake.
type Call struct {
	SQL  string
	Args []any
}

// Conn answers every statement through Handler and records it in Calls.
type Conn struct {
	Handler func(sql string, args []any) Result

	mu    sync.Mutex
	calls []Call
}

// New returns a Conn answering with handler.
func New(handler func(sql string, args []any) Result) *Conn {
	return &Conn{Handler: handler}
}

// Calls returns the recorded statements in order.
func (c *Conn) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

func (c *Conn) handle(sql string, args []any) Result {
	c.mu.Lock()
	c.calls = append(c.calls, Call{SQL: sql, Args: args})
	c.mu.Unlock()
	if c.Handler == nil {
		return Result{}
	}
	return c.Handler(sql, args)
}

func (c *Conn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	res := c.handle(sql, args)
	return pgconn.NewCommandTag(res.Tag), res.Err
}

func (c *Conn) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	res := c.handle(sql, args)
	if res.Err != nil {
		return nil, res.Err
	}
	return newRows(res), nil
}

func (c *Conn) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	res := c.handle(sql, args)
	return &row{rows: newRows(res), err: res.Err}
}

// Rows iterates a Result.
type Rows struct {
	res    Result
	idx    int
	closed bool
}

func newRows(res Result) *Rows {
	return &Rows{res: res, idx: -1}
}

func (r *Rows) Close() { r.closed = true }

func (r *Rows) Err() error { return nil }

func (r *Rows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag(r.res.Tag) }

func (r *Rows) FieldDescriptions() []pgconn.FieldDescription {
	fds := make([]pgconn.FieldDescription, len(r.res.Columns))
	for i, name := range r.res.Columns {
		fds[i] = pgconn.FieldDescription{Name: name}
	}
	return fds
}

func (r *Rows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	if r.idx >= len(r.res.Rows) {
		r.closed = true
		return false
	}
	return true
}

func (r *Rows) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.res.Rows) {
		return errors.New("pgxfake: scan without current row")
	}
	return assign(r.res.Rows[r.idx], dest)
}

func (r *Rows) Values() ([]any, error) {
	if r.idx < 0 || r.idx >= len(r.res.Rows) {
		return nil, errors.New("pgxfake: values without current row")
	}
	return append([]any(nil), r.res.Rows[r.idx]...), nil
}

func (r *Rows) RawValues() [][]byte { return nil }

func (r *Rows) Conn() *pgx.Conn { return nil }

type row struct {
	rows *Rows
	err  error
}

func (r *row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if !r.rows.Next() {
		return pgx.ErrNoRows
	}
	return assign(r.rows.res.Rows[r.rows.idx], dest)
}

func assign(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("pgxfake: %d values for %d destinations", len(values), len(dest))
	}
	for i, d := range dest {
		if p, ok := d.(*any); ok {
			*p = values[i]
			continue
		}
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("pgxfake: destination %d is not a pointer", i)
		}
		v := reflect.ValueOf(values[i])
		target := dv.Elem()
		if !v.IsValid() {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		if !v.Type().ConvertibleTo(target.Type()) {
			return fmt.Errorf("pgxfake: cannot scan %T into %s", values[i], target.Type())
		}
		target.Set(v.Convert(target.Type()))
	}
	return nil
}
