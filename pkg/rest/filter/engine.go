package filter

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/edgeflare/restful/pkg/metrics"
	"github.com/edgeflare/restful/pkg/pgx/schema"
	"github.com/edgeflare/restful/pkg/query"
	"go.uber.org/zap"
)

// Catalog resolves tables by "schema.name" key.
type Catalog interface {
	Lookup(key string) (schema.Table, bool)
}

// Engine applies filter kinds to queries against a catalog.
type Engine struct {
	catalog Catalog
	logger  *zap.Logger
}

type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func NewEngine(catalog Catalog, opts ...Option) *Engine {
	e := &Engine{catalog: catalog, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate checks that the root and every declared field exist.
func (e *Engine) Validate(spec Spec) error {
	if _, ok := e.catalog.Lookup(spec.Root); !ok {
		return fmt.Errorf("%w: root table %q not found", ErrInvalidSpec, spec.Root)
	}
	var errs []error
	for _, k := range Kinds {
		for _, f := range spec.Fields(k) {
			t, ok := e.catalog.Lookup(f.Table)
			if !ok {
				errs = append(errs, fmt.Errorf("%w: %s field %s: table not found", ErrInvalidSpec, k, f))
				continue
			}
			if _, ok := t.Column(f.Column); !ok {
				errs = append(errs, fmt.Errorf("%w: %s field %s: column not found", ErrInvalidSpec, k, f))
			}
		}
	}
	return errors.Join(errs...)
}

// ApplyAll applies kinds to q in the given order.
func (e *Engine) ApplyAll(r *http.Request, q query.Select, spec Spec, kinds ...Kind) query.Select {
	for _, k := range kinds {
		q = e.Apply(k, r, q, spec)
	}
	return q
}

// target is a resolved parameter path. Joins reach the table of column from
// the root; wrap moves the condition into subqueries for to-many hops.
type target struct {
	joins  []query.Join
	column schema.Column
	ref    query.Column
	wrap   func(query.Predicate) query.Predicate
}

// Apply narrows q with the parameters of kind k found in r. Joins needed by
// the resolved paths are added once, then all predicates are applied in a
// single step. A root missing from the catalog panics: it is caught by
// Validate when resources are registered.
func (e *Engine) Apply(k Kind, r *http.Request, q query.Select, spec Spec) query.Select {
	if len(spec.Fields(k)) == 0 || r.URL.RawQuery == "" {
		return q
	}

	root, ok := e.catalog.Lookup(spec.Root)
	if !ok {
		panic(fmt.Sprintf("filter: root table %q not in catalog", spec.Root))
	}

	params := ParseParams(r.URL.RawQuery, k)
	if len(params) == 0 {
		return q
	}

	var preds []query.Predicate
	var terms []query.OrderTerm
	for _, p := range params {
		t, ok := e.resolve(root, p, spec)
		if !ok {
			e.logger.Debug("filter dropped",
				zap.String("kind", k.String()),
				zap.String("path", strings.Join(p.Path, ".")),
				zap.String("root", spec.Root))
			metrics.FiltersDropped.WithLabelValues(k.String()).Inc()
			continue
		}

		for _, j := range t.joins {
			if spec.OuterJoin {
				q = q.OuterJoin(j)
			} else {
				q = q.Join(j)
			}
		}

		if k == Order {
			terms = append(terms, k.orderTerm(t.ref, p.Value))
		} else {
			preds = append(preds, t.wrap(k.predicate(t.column, t.ref, p.Value)))
		}
	}

	return q.Filter(preds...).OrderBy(terms...)
}

// resolve walks p.Path from root: every segment but the last names a
// relationship, the last a column declared for p.Kind on the table reached.
func (e *Engine) resolve(root schema.Table, p Param, spec Spec) (target, bool) {
	return e.walk(root, p.Path, p.Kind, spec)
}

// walk follows forward relationships with joins. A to-many relationship
// continues in a subquery over the rows it reaches, so root rows are never
// repeated; sorting through one is not possible and drops the path.
func (e *Engine) walk(current schema.Table, path []string, k Kind, spec Spec) (target, bool) {
	var t target
	for i, seg := range path[:len(path)-1] {
		rel, ok := current.Relationship(seg)
		if !ok {
			return target{}, false
		}
		next, ok := e.catalog.Lookup(rel.Target)
		if !ok {
			return target{}, false
		}
		if !rel.Many {
			t.joins = append(t.joins, rel.Join(current, next))
			current = next
			continue
		}

		if k == Order {
			return target{}, false
		}
		inner, ok := e.walk(next, path[i+1:], k, spec)
		if !ok {
			return target{}, false
		}
		sub := query.From(next.Ref())
		for _, j := range inner.joins {
			sub = sub.Join(j)
		}
		outer := current.Ref().Col(rel.Column)
		of := next.Ref().Col(rel.TargetColumn)
		t.column, t.ref = inner.column, inner.ref
		t.wrap = func(pred query.Predicate) query.Predicate {
			return query.In(outer, sub.Filter(inner.wrap(pred)), of)
		}
		return t, true
	}

	name := path[len(path)-1]
	if !spec.declared(k, current.Key(), name) {
		return target{}, false
	}
	col, ok := current.Column(name)
	if !ok {
		return target{}, false
	}
	t.column = col
	t.ref = current.Ref().Col(name)
	t.wrap = func(pred query.Predicate) query.Predicate { return pred }
	return t, true
}
