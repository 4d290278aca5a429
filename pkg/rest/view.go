package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/edgeflare/restful/pkg/events"
	"github.com/edgeflare/restful/pkg/httputil"
	"github.com/edgeflare/restful/pkg/metrics"
	"github.com/edgeflare/restful/pkg/pgx/schema"
	"github.com/edgeflare/restful/pkg/query"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// View is the per-request state of an action: the resource it serves, the
// action name and the permissions in force.
type View struct {
	Resource *Resource
	Action   string

	server      *Server
	res         *resource
	request     *http.Request
	permissions []Permission
	expansions  []expansion
}

func (s *Server) newView(r *http.Request, res *resource, action string, perms []Permission) *View {
	return &View{
		Resource:    &res.Resource,
		Action:      action,
		server:      s,
		res:         res,
		request:     r,
		permissions: perms,
		expansions:  res.requestedExpansions(r.URL.Query()[ExpandQueryParam]),
	}
}

func (v *View) Request() *http.Request { return v.request }

// Table is the root table of the resource.
func (v *View) Table() schema.Table { return v.res.table }

func (v *View) Serializer() *Serializer { return v.res.serializer }

func (v *View) Logger() *zap.Logger {
	return httputil.Logger(v.request).With(zap.String("resource", v.res.Name), zap.String("action", v.Action))
}

// LookupValue is the lookup path parameter of a detail route.
func (v *View) LookupValue() string {
	return v.request.PathValue(v.res.lookup)
}

// Error answers err the way standard actions do.
func (v *View) Error(w http.ResponseWriter, err error) {
	writeError(w, v.request, err)
}

// BaseQuery selects the root table with the requested expansions.
func (v *View) BaseQuery() query.Select {
	return v.res.applyExpansions(query.From(v.res.table.Ref()), v.expansions)
}

// Query is BaseQuery narrowed by the filter kinds of the resource.
func (v *View) Query() query.Select {
	return v.server.engine.ApplyAll(v.request, v.BaseQuery(), v.res.spec, v.res.kinds...)
}

// Source executes q on the server connection.
func (v *View) Source(q query.Select) *query.Source {
	var opts []query.SourceOption
	if v.server.countCache != nil {
		opts = append(opts, query.WithCountCache(v.server.countCache))
	}
	return query.NewSource(v.server.conn, q, opts...)
}

// InvalidateCounts drops cached list counts that read the root table. Standard
// actions call it after every write; custom actions that write should too.
func (v *View) InvalidateCounts() {
	if v.server.countCache != nil {
		v.server.countCache.Invalidate(v.res.table.Ref())
	}
}

// Dump serializes a row with the requested expansions.
func (v *View) Dump(row map[string]any) map[string]any {
	return v.res.serializer.Dump(row, expansionNames(v.expansions)...)
}

func (v *View) DumpAll(rows []map[string]any) []map[string]any {
	return v.res.serializer.DumpAll(rows, expansionNames(v.expansions)...)
}

func (v *View) hasPermission() bool {
	for _, p := range v.permissions {
		if !p.HasPermission(v.request, v) {
			return false
		}
	}
	return true
}

// CheckObjectPermissions returns a 403 error unless every permission grants
// access to obj.
func (v *View) CheckObjectPermissions(obj map[string]any) error {
	for _, p := range v.permissions {
		if !p.HasObjectPermission(v.request, v, obj) {
			return errPermissionDenied
		}
	}
	return nil
}

var (
	errPermissionDenied = httputil.NewError(http.StatusForbidden, "You do not have permission to perform this action.")
	errNotFound         = httputil.NewError(http.StatusNotFound, "Not found.")
)

// Object loads the row addressed by the lookup value through the filtered
// query, so filters also restrict detail routes.
func (v *View) Object(ctx context.Context) (map[string]any, error) {
	ref := v.res.table.Ref().Col(v.res.lookup)
	rows, err := v.Source(v.Query().Filter(query.Eq(ref, v.LookupValue()))).Slice(ctx, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errNotFound
	}
	if err := v.CheckObjectPermissions(rows[0]); err != nil {
		return nil, err
	}
	return rows[0], nil
}

// Publish sends a mutation event when the server has a publisher. Failures
// are logged and counted, never returned.
func (v *View) Publish(ctx context.Context, action events.Action, obj map[string]any) {
	if v.server.publisher == nil {
		return
	}
	ev := events.Event{
		ID:       uuid.NewString(),
		Resource: v.res.Name,
		Table:    v.res.table.Key(),
		Action:   action,
		Object:   obj,
		Time:     time.Now().UTC(),
	}
	if err := v.server.publisher.Publish(ctx, ev); err != nil {
		metrics.PublishErrors.WithLabelValues(v.res.Name).Inc()
		v.Logger().Error("publish event", zap.String("event_id", ev.ID), zap.Error(err))
	}
}
