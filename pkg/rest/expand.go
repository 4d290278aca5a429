package rest

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/edgeflare/restful/pkg/pgx/schema"
	"github.com/edgeflare/restful/pkg/query"
)

// ExpandQueryParam names the comma separated list of expansions to embed.
const ExpandQueryParam = "expand"

type expansion struct {
	name   string
	rel    schema.Relationship
	target schema.Table
	outer  bool
}

func (s *Server) bindExpansions(table schema.Table, declared map[string]Expandable) (map[string]expansion, error) {
	if len(declared) == 0 {
		return nil, nil
	}
	out := make(map[string]expansion, len(declared))
	for _, name := range slices.Sorted(maps.Keys(declared)) {
		e := declared[name]
		if _, clash := table.Column(name); clash {
			return nil, fmt.Errorf("expandable %q shadows a column of %s", name, table.Key())
		}
		relName := cmp.Or(e.Relationship, name)
		rel, ok := table.Relationship(relName)
		if !ok {
			return nil, fmt.Errorf("expandable %q: %s has no relationship %q", name, table.Key(), relName)
		}
		if rel.Many {
			return nil, fmt.Errorf("expandable %q: relationship %q is to-many", name, relName)
		}
		target, ok := s.catalog.Lookup(rel.Target)
		if !ok {
			return nil, fmt.Errorf("expandable %q: table %q not found", name, rel.Target)
		}
		out[name] = expansion{name: name, rel: rel, target: target, outer: e.OuterJoin}
	}
	return out, nil
}

// requestedExpansions returns the declared expansions named in raw values
// of the expand parameter, in request order. Unknown names are ignored.
func (r *resource) requestedExpansions(values []string) []expansion {
	var out []expansion
	seen := make(map[string]bool)
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			e, ok := r.expand[name]
			if !ok || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, e)
		}
	}
	return out
}

func (r *resource) applyExpansions(q query.Select, exps []expansion) query.Select {
	for _, e := range exps {
		j := e.rel.Join(r.table, e.target)
		if e.outer {
			q = q.OuterJoin(j)
		} else {
			q = q.Join(j)
		}
		q = q.Expand(query.Expansion{Table: e.target.Ref(), Alias: e.name})
	}
	return q
}

func expansionNames(exps []expansion) []string {
	names := make([]string, len(exps))
	for i, e := range exps {
		names[i] = e.name
	}
	return names
}
