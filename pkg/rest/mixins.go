package rest

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/edgeflare/restful/pkg/events"
	"github.com/edgeflare/restful/pkg/httputil"
	pg "github.com/edgeflare/restful/pkg/pgx"
	"github.com/edgeflare/restful/pkg/rest/pagination"
)

func standardHandler(action string) ActionFunc {
	switch action {
	case ActionList:
		return list
	case ActionCreate:
		return create
	case ActionRetrieve:
		return retrieve
	case ActionUpdate:
		return update(false)
	case ActionPartialUpdate:
		return update(true)
	case ActionDestroy:
		return destroy
	default:
		panic("rest: no handler for action " + action)
	}
}

// list answers the filtered rows, one page of them when the resource is
// paginated.
func list(w http.ResponseWriter, r *http.Request, v *View) {
	ctx := r.Context()
	src := v.Source(v.Query())

	if style := v.res.pagination; style != nil {
		page, err := pagination.Paginate[map[string]any](ctx, style, r, src)
		if err != nil {
			v.Error(w, err)
			return
		}
		if page != nil {
			items, err := page.Items(ctx)
			if err != nil {
				v.Error(w, err)
				return
			}
			style.WriteResponse(w, r, page.Info(), v.DumpAll(items))
			return
		}
	}

	rows, err := src.All(ctx)
	if err != nil {
		v.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, v.DumpAll(rows))
}

func retrieve(w http.ResponseWriter, r *http.Request, v *View) {
	obj, err := v.Object(r.Context())
	if err != nil {
		v.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, v.Dump(obj))
}

func create(w http.ResponseWriter, r *http.Request, v *View) {
	ctx := r.Context()
	data, err := v.Serializer().Load(r.Body, false)
	if err != nil {
		v.Error(w, err)
		return
	}

	t := v.Table()
	row, err := pg.InsertRow(ctx, v.server.conn, t.Schema, t.Name, data)
	if err != nil {
		v.Error(w, err)
		return
	}
	v.InvalidateCounts()
	obj := v.Dump(row)
	v.Publish(ctx, events.ActionCreate, obj)

	if id, ok := row[v.res.lookup]; ok && id != nil {
		w.Header().Set("Location", v.detailPath(fmt.Sprint(jsonValue(id))))
	}
	if suppressBody(r) {
		w.WriteHeader(http.StatusCreated)
		return
	}
	httputil.JSON(w, http.StatusCreated, obj)
}

// detailPath is the detail URL path of the object with lookup value id,
// relative to the list route serving the request.
func (v *View) detailPath(id string) string {
	path := strings.TrimSuffix(v.request.URL.Path, "/") + "/" + url.PathEscape(id)
	if v.server.trailingSlash {
		path += "/"
	}
	return path
}

// update replaces the writable fields of an object, or sets only those
// present in the body when partial.
func update(partial bool) ActionFunc {
	return func(w http.ResponseWriter, r *http.Request, v *View) {
		ctx := r.Context()
		obj, err := v.Object(ctx)
		if err != nil {
			v.Error(w, err)
			return
		}
		data, err := v.Serializer().Load(r.Body, partial)
		if err != nil {
			v.Error(w, err)
			return
		}

		row := obj
		if len(data) > 0 {
			t := v.Table()
			where := map[string]any{v.res.lookup: obj[v.res.lookup]}
			if row, err = pg.UpdateRow(ctx, v.server.conn, t.Schema, t.Name, data, where); err != nil {
				v.Error(w, err)
				return
			}
			v.InvalidateCounts()
		}
		out := v.Dump(row)
		if len(data) > 0 {
			v.Publish(ctx, events.ActionUpdate, out)
		}

		if suppressBody(r) {
			w.WriteHeader(http.StatusOK)
			return
		}
		httputil.JSON(w, http.StatusOK, out)
	}
}

func destroy(w http.ResponseWriter, r *http.Request, v *View) {
	ctx := r.Context()
	obj, err := v.Object(ctx)
	if err != nil {
		v.Error(w, err)
		return
	}

	t := v.Table()
	if err := pg.DeleteRow(ctx, v.server.conn, t.Schema, t.Name, map[string]any{v.res.lookup: obj[v.res.lookup]}); err != nil {
		v.Error(w, err)
		return
	}
	v.InvalidateCounts()
	v.Publish(ctx, events.ActionDestroy, v.Dump(obj))
	w.WriteHeader(http.StatusNoContent)
}
