package httputil

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"slices"
	"strings"
	"sync"
)

// Middleware defines a function type that represents a middleware. Middleware functions wrap an
// http.Handler to modify or enhance its behavior.
type Middleware func(http.Handler) http.Handler

// RouterOptions is a function type that represents options to configure a Router.
type RouterOptions func(*Router)

// Router is the main structure for handling HTTP routing and middleware.
//
// Middleware added to the root router wraps the whole mux, so it also sees
// requests no route matches. Middleware added to a group wraps only the
// routes registered on that group after the call to Use.
type Router struct {
	mux        *http.ServeMux
	server     *http.Server
	prefix     string
	middleware []Middleware
	group      bool
	mu         sync.RWMutex
}

// NewRouter creates a new instance of Router with the given options.
func NewRouter(opts ...RouterOptions) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		server: &http.Server{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithServerOptions returns a RouterOptions function that sets custom http.Server options.
func WithServerOptions(opts ...func(*http.Server)) RouterOptions {
	return func(r *Router) {
		for _, opt := range opts {
			opt(r.server)
		}
	}
}

// WithTLS serves HTTPS with the given certificate and key files.
func WithTLS(certFile, keyFile string) RouterOptions {
	return func(r *Router) {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			log.Fatalf("error loading TLS certificates: %v", err)
		}
		r.server.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
	}
}

// Use adds one or more middleware to the router. At least one middleware must be provided.
// Middleware functions are applied in the order they are added.
func (r *Router) Use(mw Middleware, additional ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
	r.middleware = append(r.middleware, additional...)
}

// Group creates a sub-router with a specified prefix. Middleware of an
// enclosing group carries over; root middleware already applies to every route.
func (r *Router) Group(prefix string) *Router {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g := &Router{
		mux:    r.mux,
		server: r.server,
		prefix: r.prefix + prefix,
		group:  true,
	}
	if r.group {
		g.middleware = slices.Clone(r.middleware)
	}
	return g
}

// Prefix returns the path prefix routes of r are registered under.
func (r *Router) Prefix() string {
	return r.prefix
}

// Handle registers an HTTP handler function for a given method and pattern as introduced in
// [Routing Enhancements for Go 1.22](https://go.dev/blog/routing-enhancements)
// The handler `METHOD /pattern` on a route group with a /prefix resolves to `METHOD /prefix/pattern`
func (r *Router) Handle(methodPattern string, handler http.Handler) {
	method, pattern, ok := strings.Cut(methodPattern, " ")
	if !ok {
		log.Fatalf("invalid method pattern: %s", methodPattern)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	finalHandler := handler
	if r.group {
		for i := len(r.middleware) - 1; i >= 0; i-- {
			finalHandler = r.middleware[i](finalHandler)
		}
	}

	r.mux.Handle(fmt.Sprintf("%s %s%s", method, r.prefix, pattern), finalHandler)
}

// ServeHTTP dispatches through the root middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.applyMiddleware().ServeHTTP(w, req)
}

// ListenAndServe starts the server, automatically choosing between HTTP and HTTPS based on TLS config.
func (r *Router) ListenAndServe(addr string) error {
	fmt.Print(colorGreen + asciiArt + colorReset)
	fmt.Printf("starting server on %s\n", addr)

	r.server.Addr = addr
	r.server.Handler = r.applyMiddleware()

	if r.server.TLSConfig != nil {
		return r.server.ListenAndServeTLS("", "")
	}
	return r.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (r *Router) Shutdown(ctx context.Context) error {
	return r.server.Shutdown(ctx)
}

func (r *Router) applyMiddleware() http.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var handler http.Handler = r.mux
	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i](handler)
	}
	return handler
}

const (
	colorGreen = "\033[32m"
	colorReset = "\033[0m"
	asciiArt   = `
                 _    __       _
 _ __ ___  ___| |_ / _|_   _| |
| '__/ _ \/ __| __| |_| | | | |
| | |  __/\__ \ |_|  _| |_| | |
|_|  \___||___/\__|_|  \__,_|_|

`
)
