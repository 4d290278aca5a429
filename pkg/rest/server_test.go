package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edgeflare/restful/internal/testutil"
	"github.com/edgeflare/restful/internal/testutil/pgxfake"
	"github.com/edgeflare/restful/pkg/events"
	"github.com/edgeflare/restful/pkg/httputil"
	"github.com/edgeflare/restful/pkg/metrics"
	"github.com/edgeflare/restful/pkg/query"
	"github.com/edgeflare/restful/pkg/rest/filter"
	"github.com/edgeflare/restful/pkg/rest/pagination"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bookColumns = []string{"id", "title", "pages", "author_id", "publisher_id"}

func bookRow(id int32, title string) []any {
	return []any{id, title, nil, int32(1), nil}
}

// bookstoreDB answers counts with count, deletes with one affected row and
// every other statement with rows.
func bookstoreDB(count int64, rows ...[]any) func(string, []any) pgxfake.Result {
	return func(sql string, _ []any) pgxfake.Result {
		switch {
		case strings.HasPrefix(sql, "SELECT count(*)"):
			return pgxfake.Result{Columns: []string{"count"}, Rows: [][]any{{count}}}
		case strings.HasPrefix(sql, "DELETE"):
			return pgxfake.Result{Tag: "DELETE 1"}
		default:
			return pgxfake.Result{Columns: bookColumns, Rows: rows}
		}
	}
}

func booksResource() Resource {
	return Resource{
		Name:         "books",
		Table:        "books",
		FilterFields: []filter.Field{filter.F("public.books", "title"), filter.F("public.authors", "name")},
		SearchFields: []filter.Field{filter.F("public.books", "title")},
		OrderFields:  []filter.Field{filter.F("public.books", "title")},
		Expandable:   map[string]Expandable{"author": {}},
	}
}

func newBookServer(t *testing.T, db func(string, []any) pgxfake.Result, res Resource, opts ...Option) (*Server, *pgxfake.Conn) {
	t.Helper()
	conn := pgxfake.New(db)
	s := NewServer(conn, testutil.Bookstore(), opts...)
	require.NoError(t, s.Register(res))
	return s, conn
}

func serve(s http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func TestListUnpaginated(t *testing.T) {
	s, conn := newBookServer(t, bookstoreDB(0, bookRow(1, "The Hobbit")), booksResource())

	w := serve(s, httptest.NewRequest(http.MethodGet, "/books/?filter[author.name]=Tolkien", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[[]map[string]any](t, w)
	require.Len(t, body, 1)
	assert.Equal(t, "The Hobbit", body[0]["title"])

	calls := conn.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t,
		`SELECT "public"."books".* FROM "public"."books" INNER JOIN "public"."authors" ON "public"."authors"."id" = "public"."books"."author_id" WHERE "public"."authors"."name" = $1`,
		calls[0].SQL)
	assert.Equal(t, []any{"Tolkien"}, calls[0].Args)
}

func TestListPaginated(t *testing.T) {
	rows := [][]any{bookRow(6, "f"), bookRow(7, "g"), bookRow(8, "h"), bookRow(9, "i"), bookRow(10, "j")}
	res := booksResource()
	res.Pagination = &pagination.PageNumber{PageSize: 5}
	s, conn := newBookServer(t, bookstoreDB(12, rows...), res)

	w := serve(s, httptest.NewRequest(http.MethodGet, "/books/?page=2&order[title]=desc", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var env struct {
		Count    int              `json:"count"`
		Next     *string          `json:"next"`
		Previous *string          `json:"previous"`
		Results  []map[string]any `json:"results"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	assert.Equal(t, 12, env.Count)
	assert.Len(t, env.Results, 5)
	require.NotNil(t, env.Next)
	assert.Equal(t, "http://example.com/books/?order%5Btitle%5D=desc&page=3", *env.Next)
	require.NotNil(t, env.Previous)
	assert.Equal(t, "http://example.com/books/?order%5Btitle%5D=desc", *env.Previous)

	calls := conn.Calls()
	require.Len(t, calls, 2)
	assert.True(t, strings.HasPrefix(calls[0].SQL, "SELECT count(*)"), calls[0].SQL)
	assert.True(t, strings.HasSuffix(calls[1].SQL, `ORDER BY "public"."books"."title" DESC LIMIT 5 OFFSET 5`), calls[1].SQL)
}

func TestListLinkHeaderDefaultPagination(t *testing.T) {
	s, _ := newBookServer(t, bookstoreDB(12, bookRow(1, "a")), booksResource(),
		WithDefaultPagination(&pagination.LinkHeader{PageNumber: pagination.PageNumber{PageSize: 5}}))

	w := serve(s, httptest.NewRequest(http.MethodGet, "/books/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12", w.Header().Get("X-Total-Count"))
	assert.Contains(t, w.Header().Get("Link"), `<http://example.com/books/?page=2>; rel="next"`)
	assert.Len(t, decode[[]map[string]any](t, w), 1)
}

func TestListNoPaginationOverridesDefault(t *testing.T) {
	res := booksResource()
	res.NoPagination = true
	s, conn := newBookServer(t, bookstoreDB(12, bookRow(1, "a")), res,
		WithDefaultPagination(&pagination.PageNumber{PageSize: 5}))

	w := serve(s, httptest.NewRequest(http.MethodGet, "/books/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, w), 1)
	assert.Len(t, conn.Calls(), 1)
}

func TestListInvalidPage(t *testing.T) {
	res := booksResource()
	res.Pagination = &pagination.PageNumber{PageSize: 5}
	s, _ := newBookServer(t, bookstoreDB(12), res)

	w := serve(s, httptest.NewRequest(http.MethodGet, "/books/?page=9", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decode[httputil.ErrorResponse](t, w)
	assert.Equal(t, `Invalid page "9": That page contains no results.`, body.Message)
}

func TestRetrieve(t *testing.T) {
	s, conn := newBookServer(t, bookstoreDB(0, bookRow(1, "Dune")), booksResource())

	w := serve(s, httptest.NewRequest(http.MethodGet, "/books/1/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{
		"id": float64(1), "title": "Dune", "pages": nil, "author_id": float64(1), "publisher_id": nil,
	}, decode[map[string]any](t, w))

	calls := conn.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, `SELECT "public"."books".* FROM "public"."books" WHERE "public"."books"."id" = $1 LIMIT 1`, calls[0].SQL)
	assert.Equal(t, []any{"1"}, calls[0].Args)
}

func TestRetrieveAppliesFilters(t *testing.T) {
	s, conn := newBookServer(t, bookstoreDB(0), booksResource())

	w := serve(s, httptest.NewRequest(http.MethodGet, "/books/1/?filter[title]=Emma", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not found.", decode[httputil.ErrorResponse](t, w).Message)
	assert.Equal(t, []any{"Emma", "1"}, conn.Calls()[0].Args)
}

func TestRetrieveExpand(t *testing.T) {
	db := func(string, []any) pgxfake.Result {
		return pgxfake.Result{
			Columns: append(bookColumns, "author"),
			Rows:    [][]any{append(bookRow(1, "Dune"), map[string]any{"id": float64(1), "name": "Herbert"})},
		}
	}
	s, conn := newBookServer(t, db, booksResource())

	w := serve(s, httptest.NewRequest(http.MethodGet, "/books/1/?expand=author,unknown", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, map[string]any{"id": float64(1), "name": "Herbert"}, body["author"])

	sql := conn.Calls()[0].SQL
	assert.Contains(t, sql, `to_jsonb("public"."authors".*) AS "author"`)
	assert.Contains(t, sql, `INNER JOIN "public"."authors" ON "public"."authors"."id" = "public"."books"."author_id"`)
}

func TestCreate(t *testing.T) {
	pub := &events.Memory{}
	s, conn := newBookServer(t, bookstoreDB(0, bookRow(7, "Dune")), booksResource(), WithPublisher(pub))

	body := `{"id": 99, "title": "Dune", "author_id": 1, "bogus": true}`
	w := serve(s, httptest.NewRequest(http.MethodPost, "/books/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "/books/7/", w.Header().Get("Location"))
	assert.Equal(t, "Dune", decode[map[string]any](t, w)["title"])

	calls := conn.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, `INSERT INTO "public"."books" ("author_id", "title") VALUES ($1, $2) RETURNING *`, calls[0].SQL)
	assert.Equal(t, []any{json.Number("1"), "Dune"}, calls[0].Args)

	published := pub.Events()
	require.Len(t, published, 1)
	assert.Equal(t, events.ActionCreate, published[0].Action)
	assert.Equal(t, "books", published[0].Resource)
	assert.Equal(t, "public.books", published[0].Table)
	assert.NotEmpty(t, published[0].ID)
}

func TestWritesInvalidateCachedCounts(t *testing.T) {
	var count atomic.Int64
	count.Store(12)
	db := func(sql string, _ []any) pgxfake.Result {
		switch {
		case strings.HasPrefix(sql, "SELECT count(*)"):
			return pgxfake.Result{Columns: []string{"count"}, Rows: [][]any{{count.Load()}}}
		case strings.HasPrefix(sql, "INSERT"):
			count.Add(1)
		case strings.HasPrefix(sql, "DELETE"):
			count.Add(-1)
			return pgxfake.Result{Tag: "DELETE 1"}
		}
		return pgxfake.Result{Columns: bookColumns, Rows: [][]any{bookRow(13, "Dune")}}
	}
	res := booksResource()
	res.Pagination = &pagination.LinkHeader{PageNumber: pagination.PageNumber{PageSize: 5}}
	s, _ := newBookServer(t, db, res, WithCountCache(query.NewCountCache(time.Hour)))

	total := func() string {
		w := serve(s, httptest.NewRequest(http.MethodGet, "/books/?page=last", nil))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return w.Header().Get("X-Total-Count")
	}
	assert.Equal(t, "12", total())
	// served from the cache
	count.Store(50)
	assert.Equal(t, "12", total())
	count.Store(12)

	w := serve(s, httptest.NewRequest(http.MethodPost, "/books/", strings.NewReader(`{"title": "Dune", "author_id": 1}`)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "13", total())

	w = serve(s, httptest.NewRequest(http.MethodDelete, "/books/13/", nil))
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	assert.Equal(t, "12", total())
}

func TestCreatePreferMinimal(t *testing.T) {
	s, _ := newBookServer(t, bookstoreDB(0, bookRow(7, "Dune")), booksResource())

	r := httptest.NewRequest(http.MethodPost, "/books/", strings.NewReader(`{"title": "Dune", "author_id": 1}`))
	r.Header.Set("Prefer", "return=minimal")
	w := serve(s, r)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/books/7/", w.Header().Get("Location"))
	assert.Empty(t, w.Body.String())
}

func TestCreateInvalid(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fields []string
		msg    string
	}{
		{name: "missing required", body: `{"pages": 3}`, fields: []string{"title", "author_id"}},
		{name: "wrong type", body: `{"title": "Dune", "author_id": 1, "pages": "many"}`, fields: []string{"pages"}},
		{name: "not json", body: `{"title"`, msg: "JSON parse error"},
		{name: "not an object", body: `[1, 2]`, msg: "Expected a JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, conn := newBookServer(t, bookstoreDB(0), booksResource())
			w := serve(s, httptest.NewRequest(http.MethodPost, "/books/", strings.NewReader(tt.body)))
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, conn.Calls())

			if tt.msg != "" {
				assert.Equal(t, tt.msg, decode[httputil.ErrorResponse](t, w).Message)
				return
			}
			errs := decode[map[string][]string](t, w)
			assert.Len(t, errs, len(tt.fields))
			for _, f := range tt.fields {
				assert.NotEmpty(t, errs[f], f)
			}
			if len(tt.fields) == 2 {
				assert.Equal(t, []string{"This field is required."}, errs["title"])
			}
		})
	}
}

func TestPartialUpdate(t *testing.T) {
	pub := &events.Memory{}
	db := func(sql string, _ []any) pgxfake.Result {
		if strings.HasPrefix(sql, "UPDATE") {
			return pgxfake.Result{Columns: bookColumns, Rows: [][]any{bookRow(1, "Children of Dune")}}
		}
		return pgxfake.Result{Columns: bookColumns, Rows: [][]any{bookRow(1, "Dune")}}
	}
	s, conn := newBookServer(t, db, booksResource(), WithPublisher(pub))

	w := serve(s, httptest.NewRequest(http.MethodPatch, "/books/1/", strings.NewReader(`{"title": "Children of Dune"}`)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Children of Dune", decode[map[string]any](t, w)["title"])

	calls := conn.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, `UPDATE "public"."books" SET "title" = $1 WHERE "id" = $2 RETURNING *`, calls[1].SQL)
	assert.Equal(t, []any{"Children of Dune", int32(1)}, calls[1].Args)
	require.Len(t, pub.Events(), 1)
	assert.Equal(t, events.ActionUpdate, pub.Events()[0].Action)
}

func TestPartialUpdateWithoutChanges(t *testing.T) {
	pub := &events.Memory{}
	s, conn := newBookServer(t, bookstoreDB(0, bookRow(1, "Dune")), booksResource(), WithPublisher(pub))

	w := serve(s, httptest.NewRequest(http.MethodPatch, "/books/1/", strings.NewReader(`{"id": 5}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Dune", decode[map[string]any](t, w)["title"])
	assert.Len(t, conn.Calls(), 1)
	assert.Empty(t, pub.Events())
}

func TestUpdateRequiresAllFields(t *testing.T) {
	s, conn := newBookServer(t, bookstoreDB(0, bookRow(1, "Dune")), booksResource())

	w := serve(s, httptest.NewRequest(http.MethodPut, "/books/1/", strings.NewReader(`{"pages": 3}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[map[string][]string](t, w), "title")
	assert.Len(t, conn.Calls(), 1)
}

func TestDestroy(t *testing.T) {
	pub := &events.Memory{}
	s, conn := newBookServer(t, bookstoreDB(0, bookRow(1, "Dune")), booksResource(), WithPublisher(pub))

	w := serve(s, httptest.NewRequest(http.MethodDelete, "/books/1/", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	calls := conn.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, `DELETE FROM "public"."books" WHERE "id" = $1`, calls[1].SQL)
	require.Len(t, pub.Events(), 1)
	assert.Equal(t, events.ActionDestroy, pub.Events()[0].Action)
	assert.Equal(t, "Dune", pub.Events()[0].Object["title"])
}

func TestDestroyMissing(t *testing.T) {
	s, conn := newBookServer(t, bookstoreDB(0), booksResource())

	w := serve(s, httptest.NewRequest(http.MethodDelete, "/books/1/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Len(t, conn.Calls(), 1)
}

func TestDefaultPermissions(t *testing.T) {
	s, conn := newBookServer(t, bookstoreDB(0, bookRow(7, "Dune")), booksResource(),
		WithDefaultPermissions(IsAuthenticatedOrReadOnly{}))

	w := serve(s, httptest.NewRequest(http.MethodGet, "/books/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodPost, "/books/", strings.NewReader(`{"title": "Dune", "author_id": 1}`)))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "You do not have permission to perform this action.", decode[httputil.ErrorResponse](t, w).Message)
	assert.Len(t, conn.Calls(), 1)

	r := httptest.NewRequest(http.MethodPost, "/books/", strings.NewReader(`{"title": "Dune", "author_id": 1}`))
	r = r.WithContext(context.WithValue(r.Context(), httputil.BasicAuthCtxKey, "alice"))
	w = serve(s, r)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestObjectPermissions(t *testing.T) {
	res := booksResource()
	res.Permissions = []Permission{IsOwner{Column: "author_id"}}
	s, _ := newBookServer(t, bookstoreDB(0, bookRow(1, "Dune")), res)

	request := func(user string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/books/1/", nil)
		return r.WithContext(context.WithValue(r.Context(), httputil.BasicAuthCtxKey, user))
	}
	assert.Equal(t, http.StatusOK, serve(s, request("1")).Code)
	assert.Equal(t, http.StatusForbidden, serve(s, request("2")).Code)
	assert.Equal(t, http.StatusForbidden, serve(s, httptest.NewRequest(http.MethodGet, "/books/1/", nil)).Code)
}

func TestCustomActions(t *testing.T) {
	res := booksResource()
	res.Actions = []Action{
		{
			Name: "recent",
			Handler: func(w http.ResponseWriter, r *http.Request, v *View) {
				rows, err := v.Source(v.Query()).Slice(r.Context(), 0, 2)
				if err != nil {
					v.Error(w, err)
					return
				}
				httputil.JSON(w, http.StatusOK, v.DumpAll(rows))
			},
		},
		{
			Name:        "mark_read",
			Detail:      true,
			Methods:     []string{"post"},
			Permissions: []Permission{IsAuthenticated{}},
			Handler: func(w http.ResponseWriter, r *http.Request, v *View) {
				obj, err := v.Object(r.Context())
				if err != nil {
					v.Error(w, err)
					return
				}
				httputil.JSON(w, http.StatusAccepted, map[string]any{"read": obj["title"]})
			},
		},
	}
	s, _ := newBookServer(t, bookstoreDB(0, bookRow(1, "Dune")), res)

	w := serve(s, httptest.NewRequest(http.MethodGet, "/books/recent/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, w), 1)

	w = serve(s, httptest.NewRequest(http.MethodPost, "/books/1/mark_read/", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	r := httptest.NewRequest(http.MethodPost, "/books/1/mark_read/", nil)
	r = r.WithContext(context.WithValue(r.Context(), httputil.BasicAuthCtxKey, "alice"))
	w = serve(s, r)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, map[string]any{"read": "Dune"}, decode[map[string]any](t, w))
}

func TestMethodsAndOptions(t *testing.T) {
	res := booksResource()
	res.ReadOnly = true
	s, _ := newBookServer(t, bookstoreDB(0), res)

	w := serve(s, httptest.NewRequest(http.MethodOptions, "/books/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "GET, HEAD, OPTIONS", w.Header().Get("Allow"))

	w = serve(s, httptest.NewRequest(http.MethodPost, "/books/", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/books/1/extra/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestMetrics(t *testing.T) {
	s, _ := newBookServer(t, bookstoreDB(0), booksResource())
	counter := metrics.Requests.WithLabelValues("books", ActionRetrieve, "404")
	before := promtestutil.ToFloat64(counter)

	serve(s, httptest.NewRequest(http.MethodGet, "/books/1/", nil))
	assert.Equal(t, before+1, promtestutil.ToFloat64(counter))
}
