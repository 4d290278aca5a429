package rest

import (
	"cmp"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"unicode"

	"github.com/edgeflare/restful/pkg/pgx/schema"
	"github.com/edgeflare/restful/pkg/rest/filter"
	"github.com/edgeflare/restful/pkg/rest/pagination"
)

// ErrImproperlyConfigured reports a resource that cannot be served as
// declared. It is returned by Server.Register, never during a request.
var ErrImproperlyConfigured = errors.New("improperly configured")

// Standard actions.
const (
	ActionList          = "list"
	ActionCreate        = "create"
	ActionRetrieve      = "retrieve"
	ActionUpdate        = "update"
	ActionPartialUpdate = "partial_update"
	ActionDestroy       = "destroy"
)

var standardActions = []string{ActionList, ActionCreate, ActionRetrieve, ActionUpdate, ActionPartialUpdate, ActionDestroy}

// ActionFunc handles one action of a resource.
type ActionFunc func(w http.ResponseWriter, r *http.Request, v *View)

// Action is an extra route on a resource. Detail actions are routed under
// an object, list actions under the collection.
type Action struct {
	Name   string
	Detail bool
	// Methods defaults to GET.
	Methods []string
	// URLPath replaces Name as path segment and route name suffix.
	URLPath string
	// Permissions replaces the resource permissions when set.
	Permissions []Permission
	Handler     ActionFunc
}

func (a Action) urlPath() string {
	return cmp.Or(a.URLPath, a.Name)
}

func (a Action) methods() []string {
	if len(a.Methods) == 0 {
		return []string{http.MethodGet}
	}
	methods := make([]string, len(a.Methods))
	for i, m := range a.Methods {
		methods[i] = strings.ToUpper(m)
	}
	return methods
}

// Expandable is a forward relationship a client may embed with ?expand=.
type Expandable struct {
	// Relationship names the relationship on the root table. Defaults to
	// the expandable's key.
	Relationship string `mapstructure:"relationship"`
	OuterJoin    bool   `mapstructure:"outer_join"`
}

// Resource declares a table served over REST.
type Resource struct {
	// Name is the route basename: routes are named "<name>-list",
	// "<name>-detail" and "<name>-<action>".
	Name string
	// Prefix is the collection path segment, Name when empty.
	Prefix string
	// Table is the root table, "schema.table" or "table" in public.
	Table string
	// Lookup is the column addressed by detail routes, the primary key
	// (or "id") when empty.
	Lookup string

	FilterFields []filter.Field
	SearchFields []filter.Field
	OrderFields  []filter.Field
	OuterJoin    bool
	// FilterKinds orders the kinds applied to queries, all of them when nil.
	FilterKinds []filter.Kind

	// Pagination falls back to the server default when nil.
	Pagination   pagination.Style
	NoPagination bool

	// Permissions fall back to the server default when nil.
	Permissions []Permission
	Serializer  *Serializer
	Expandable  map[string]Expandable
	Actions     []Action

	// ReadOnly binds only list and retrieve.
	ReadOnly bool
	// Only limits the bound standard actions.
	Only []string
}

// resource is a validated Resource bound to its table.
type resource struct {
	Resource
	table       schema.Table
	lookup      string
	spec        filter.Spec
	kinds       []filter.Kind
	pagination  pagination.Style
	permissions []Permission
	serializer  *Serializer
	expand      map[string]expansion
}

func (r *resource) enabled(action string) bool {
	if r.ReadOnly && action != ActionList && action != ActionRetrieve {
		return false
	}
	if len(r.Only) > 0 && !slices.Contains(r.Only, action) {
		return false
	}
	return true
}

// tableKey reads "schema.table", or "table" in the public schema.
func tableKey(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return "public." + name
}

// isIdentifier reports whether s can name a path wildcard.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r != '_' && !unicode.IsLetter(r) && (i == 0 || !unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}

func (s *Server) bind(res Resource) (*resource, error) {
	if res.Name == "" {
		return nil, fmt.Errorf("%w: resource without a name", ErrImproperlyConfigured)
	}
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: resource %q: %s", ErrImproperlyConfigured, res.Name, fmt.Sprintf(format, args...))
	}
	if res.Table == "" {
		return nil, fail("no table")
	}
	res.Prefix = strings.Trim(cmp.Or(res.Prefix, res.Name), "/")

	table, ok := s.catalog.Lookup(tableKey(res.Table))
	if !ok {
		return nil, fail("table %q not found", res.Table)
	}

	b := &resource{Resource: res, table: table}

	b.lookup = res.Lookup
	if b.lookup == "" {
		b.lookup = "id"
		if len(table.PrimaryKeys) == 1 {
			b.lookup = table.PrimaryKeys[0]
		}
	}
	if _, ok := table.Column(b.lookup); !ok {
		return nil, fail("lookup column %q not found", b.lookup)
	}
	if !isIdentifier(b.lookup) {
		return nil, fail("lookup column %q cannot name a path parameter", b.lookup)
	}

	b.spec = filter.Spec{
		Root:      table.Key(),
		Filter:    res.FilterFields,
		Search:    res.SearchFields,
		Order:     res.OrderFields,
		OuterJoin: res.OuterJoin,
	}
	if err := s.engine.Validate(b.spec); err != nil {
		return nil, fail("%v", err)
	}
	b.kinds = res.FilterKinds
	if b.kinds == nil {
		b.kinds = filter.Kinds
	}

	switch {
	case res.NoPagination:
	case res.Pagination != nil:
		b.pagination = res.Pagination
	default:
		b.pagination = s.pagination
	}

	b.permissions = res.Permissions
	if b.permissions == nil {
		b.permissions = s.permissions
	}

	var err error
	if b.serializer, err = res.Serializer.bind(table); err != nil {
		return nil, fail("%v", err)
	}

	if b.expand, err = s.bindExpansions(table, res.Expandable); err != nil {
		return nil, fail("%v", err)
	}

	for _, name := range res.Only {
		if !slices.Contains(standardActions, name) {
			return nil, fail("unknown standard action %q", name)
		}
	}

	for _, a := range res.Actions {
		if a.Name == "" || a.Handler == nil {
			return nil, fail("action needs a name and a handler")
		}
		if slices.Contains(standardActions, a.Name) {
			return nil, fail("cannot add action %q: it is an existing route", a.Name)
		}
	}
	return b, nil
}
