package restful

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edgeflare/restful/internal/testutil"
	"github.com/edgeflare/restful/internal/testutil/pgxfake"
	"github.com/edgeflare/restful/pkg/config"
	"github.com/edgeflare/restful/pkg/httputil"
	"github.com/edgeflare/restful/pkg/rest"
	"github.com/edgeflare/restful/pkg/rest/filter"
	"github.com/edgeflare/restful/pkg/rest/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewResource(t *testing.T) {
	api := config.DefaultAPI()
	api.PageSize = 10
	api.DefaultPermissions = []string{"read_only"}

	res, err := newResource(api, config.ResourceConfig{
		Name:         "books",
		Table:        "public.books",
		FilterFields: []filter.Field{filter.F("public.books", "title")},
		FilterKinds:  []string{"order", "filter"},
		Pagination:   config.PaginationLinkHeader,
		PageSize:     5,
		OwnerColumn:  "author_id",
		Fields:       []string{"id", "title"},
		Expand:       map[string]config.ExpandConfig{"writer": {Relationship: "author", OuterJoin: true}},
	}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, []filter.Kind{filter.Order, filter.Equality}, res.FilterKinds)
	lh, ok := res.Pagination.(*pagination.LinkHeader)
	require.True(t, ok)
	assert.Equal(t, 5, lh.PageSize)
	assert.Equal(t, []rest.Permission{rest.ReadOnly{}, rest.IsOwner{Column: "author_id"}}, res.Permissions)
	assert.Equal(t, &rest.Serializer{Fields: []string{"id", "title"}}, res.Serializer)
	assert.Equal(t, map[string]rest.Expandable{"writer": {Relationship: "author", OuterJoin: true}}, res.Expandable)

	plain, err := newResource(api, config.ResourceConfig{Name: "authors", Table: "authors", Pagination: config.PaginationNone}, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, plain.NoPagination)
	assert.Nil(t, plain.Permissions)
	assert.Nil(t, plain.Serializer)

	_, err = newResource(api, config.ResourceConfig{Name: "authors", Table: "authors", Permissions: []string{"is_admin"}}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewServer(t *testing.T) {
	cfg := &config.Config{
		REST: config.DefaultRESTConfig(),
		API:  config.DefaultAPI(),
		Resources: []config.ResourceConfig{
			{Name: "books", Table: "books"},
			{Name: "authors", Table: "authors", ReadOnly: true},
		},
	}
	cfg.API.DefaultPermissions = []string{"read_only"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := httputil.NewRouter()
	server, err := newServer(ctx, cfg, pgxfake.New(nil), testutil.Bookstore(), router.Group("/api"), nil, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, server.Routes(), 4)
	assert.Equal(t, "/api/books/", server.Routes()[0].Path)

	// read_only is the default permission
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/books/1/", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	var out bytes.Buffer
	require.NoError(t, printRoutes(&out, server.Routes()))
	assert.Contains(t, out.String(), "books-detail")
	assert.Contains(t, out.String(), "/api/authors/{id}/")
}

func TestNewServerRejectsBadResources(t *testing.T) {
	cfg := &config.Config{
		REST:      config.DefaultRESTConfig(),
		API:       config.DefaultAPI(),
		Resources: []config.ResourceConfig{{Name: "novels", Table: "novels"}},
	}
	_, err := newServer(context.Background(), cfg, pgxfake.New(nil), testutil.Bookstore(), httputil.NewRouter(), nil, zap.NewNop())
	assert.ErrorIs(t, err, rest.ErrImproperlyConfigured)
}

func TestRequireUser(t *testing.T) {
	h := requireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(context.WithValue(r.Context(), httputil.BasicAuthCtxKey, "alice"))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
