package rest

import (
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/edgeflare/restful/pkg/events"
	"github.com/edgeflare/restful/pkg/httputil"
	"github.com/edgeflare/restful/pkg/httputil/middleware"
	"github.com/edgeflare/restful/pkg/metrics"
	pg "github.com/edgeflare/restful/pkg/pgx"
	"github.com/edgeflare/restful/pkg/query"
	"github.com/edgeflare/restful/pkg/rest/filter"
	"github.com/edgeflare/restful/pkg/rest/pagination"
	"go.uber.org/zap"
)

// Server serves registered resources over one connection.
type Server struct {
	conn       pg.Conn
	catalog    filter.Catalog
	engine     *filter.Engine
	router     *httputil.Router
	logger     *zap.Logger
	publisher  events.Publisher
	countCache *query.CountCache

	pagination    pagination.Style
	permissions   []Permission
	trailingSlash bool

	mu        sync.RWMutex
	resources map[string]*resource
	routeList []Route
	names     map[string]bool
	paths     map[string]bool
}

// Option configures a Server.
type Option func(*Server)

// WithRouter registers routes on router, a group of it included.
func WithRouter(router *httputil.Router) Option {
	return func(s *Server) {
		s.router = router
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithPublisher sends an event after every successful create, update and
// destroy.
func WithPublisher(p events.Publisher) Option {
	return func(s *Server) {
		s.publisher = p
	}
}

// WithCountCache reuses list counts across requests.
func WithCountCache(c *query.CountCache) Option {
	return func(s *Server) {
		s.countCache = c
	}
}

// WithDefaultPagination paginates resources that set no style. Lists are
// unpaginated by default.
func WithDefaultPagination(style pagination.Style) Option {
	return func(s *Server) {
		s.pagination = style
	}
}

// WithDefaultPermissions applies to resources that set none. The default
// is AllowAny.
func WithDefaultPermissions(perms ...Permission) Option {
	return func(s *Server) {
		s.permissions = perms
	}
}

// WithTrailingSlash ends every route with "/" when true, the default.
func WithTrailingSlash(enabled bool) Option {
	return func(s *Server) {
		s.trailingSlash = enabled
	}
}

// NewServer returns a server resolving resource tables in catalog.
func NewServer(conn pg.Conn, catalog filter.Catalog, opts ...Option) *Server {
	s := &Server{
		conn:          conn,
		catalog:       catalog,
		logger:        zap.NewNop(),
		permissions:   []Permission{AllowAny{}},
		trailingSlash: true,
		resources:     make(map[string]*resource),
		names:         make(map[string]bool),
		paths:         make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.router == nil {
		s.router = httputil.NewRouter()
	}
	s.engine = filter.NewEngine(catalog, filter.WithLogger(s.logger))
	return s
}

// Register validates res and binds its routes. A resource that cannot be
// served, or whose routes collide with registered ones, is rejected with
// ErrImproperlyConfigured and nothing of it is bound.
func (s *Server) Register(res Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.resources[res.Name]; dup {
		return fmt.Errorf("%w: resource %q already registered", ErrImproperlyConfigured, res.Name)
	}
	b, err := s.bind(res)
	if err != nil {
		return err
	}

	routes := s.routes(b)
	seen := make(map[string]bool)
	for i := range routes {
		routes[i].Path = s.router.Prefix() + routes[i].Path
		rt := routes[i]
		if s.names[rt.Name] || seen[rt.Name] {
			return fmt.Errorf("%w: route name %q already registered", ErrImproperlyConfigured, rt.Name)
		}
		if s.paths[rt.Path] || seen[rt.Path] {
			return fmt.Errorf("%w: route %q already registered", ErrImproperlyConfigured, rt.Path)
		}
		seen[rt.Name], seen[rt.Path] = true, true
	}

	prefix := s.router.Prefix()
	for _, rt := range routes {
		pattern := muxPattern(rt.Path[len(prefix):])
		for _, binding := range rt.Bindings {
			s.router.Handle(binding.Method+" "+pattern, s.handler(b, rt, binding))
		}
		s.router.Handle(http.MethodOptions+" "+pattern, optionsHandler(rt))
		s.names[rt.Name], s.paths[rt.Path] = true, true
	}

	s.resources[res.Name] = b
	s.routeList = append(s.routeList, routes...)
	s.logger.Info("resource registered",
		zap.String("resource", res.Name),
		zap.String("table", b.table.Key()),
		zap.Int("routes", len(routes)))
	return nil
}

// Routes returns every bound route in registration order.
func (s *Server) Routes() []Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.routeList)
}

// Router is the router routes are registered on.
func (s *Server) Router() *httputil.Router {
	return s.router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handler(res *resource, rt Route, b Binding) http.Handler {
	fn, perms := rt.handlers[b.Action], rt.perms[b.Action]
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := middleware.NewResponseRecorder(w)
		start := time.Now()
		defer func() {
			metrics.ObserveRequest(res.Name, b.Action, rec.StatusCode, time.Since(start))
		}()

		v := s.newView(r, res, b.Action, perms)
		if !v.hasPermission() {
			writeError(rec, r, errPermissionDenied)
			return
		}
		fn(rec, r, v)
	})
}

func optionsHandler(rt Route) http.Handler {
	allow := rt.Allow()
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Allow", allow)
		w.WriteHeader(http.StatusNoContent)
	})
}
