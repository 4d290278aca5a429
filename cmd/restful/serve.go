package restful

import (
	"cmp"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/edgeflare/restful/pkg/config"
	"github.com/edgeflare/restful/pkg/events"
	"github.com/edgeflare/restful/pkg/httputil"
	mw "github.com/edgeflare/restful/pkg/httputil/middleware"
	"github.com/edgeflare/restful/pkg/metrics"
	pg "github.com/edgeflare/restful/pkg/pgx"
	"github.com/edgeflare/restful/pkg/pgx/schema"
	"github.com/edgeflare/restful/pkg/rest"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Connects to PostgreSQL, loads the schema and serves every configured resource`,
	Run:   runServe,
}

var serveFlags struct {
	connString string
	listenAddr string
	baseURL    string
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveFlags.connString, "conn-string", "c", "", "PostgreSQL connection string")
	f.StringVarP(&serveFlags.listenAddr, "listen-addr", "l", "", "REST server listen address")
	f.StringVar(&serveFlags.baseURL, "base-url", "", "Base URL for API endpoints")
}

// connect opens the pool, retrying until the database answers, and loads
// the schema cache.
func connect(ctx context.Context, rc config.RESTConfig, logger *zap.Logger) (*pgxpool.Pool, *schema.Cache, error) {
	if rc.PG.ConnString == "" {
		return nil, nil, errors.New("PostgreSQL connection string required")
	}

	pool, err := pg.Connect(ctx, pg.Pool{
		ConnString: rc.PG.ConnString,
		Retry: pg.Retry{
			InitialInterval: rc.PG.Retry.InitialInterval,
			MaxInterval:     rc.PG.Retry.MaxInterval,
			MaxElapsed:      rc.PG.Retry.MaxElapsed,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, nil, err
	}

	cache, err := schema.NewCache(ctx, pool, schema.WithLogger(logger))
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := cache.Init(ctx); err != nil {
		cache.Close()
		pool.Close()
		return nil, nil, err
	}
	return pool, cache, nil
}

// requireUser answers 401 to requests no authentication middleware has
// identified.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, oidcOK := httputil.OIDCUser(r)
		_, basicOK := httputil.BasicAuthUser(r)
		if !oidcOK && !basicOK {
			httputil.Error(w, http.StatusUnauthorized, "Authentication credentials were not provided")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func authMiddleware(ctx context.Context, rc config.RESTConfig) ([]httputil.Middleware, error) {
	basic := len(rc.BasicAuth) > 0
	oidc := rc.OIDC.ClientID != "" && rc.OIDC.Issuer != ""
	// with two schemes neither may reject the other's header
	optional := rc.AnonymousEnabled || (basic && oidc)

	var mws []httputil.Middleware
	if basic {
		mws = append(mws, mw.VerifyBasicAuth(&mw.BasicAuthConfig{
			Credentials: rc.BasicAuth,
			Optional:    optional,
		}))
	}
	if oidc {
		provider, err := mw.NewOIDCProvider(ctx, rc.OIDC)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw.VerifyOIDCToken(provider, !optional))
	}
	if (basic || oidc) && !rc.AnonymousEnabled {
		mws = append(mws, requireUser)
	}
	return mws, nil
}

func runServe(cmd *cobra.Command, args []string) {
	if cfg == nil {
		log.Fatal("Configuration not loaded")
	}
	// flag overrides
	cfg.REST.PG.ConnString = cmp.Or(serveFlags.connString, cfg.REST.PG.ConnString)
	cfg.REST.ListenAddr = cmp.Or(serveFlags.listenAddr, cfg.REST.ListenAddr)
	cfg.REST.BaseURL = cmp.Or(serveFlags.baseURL, cfg.REST.BaseURL)

	logger, err := newLogger(logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, cache, err := connect(ctx, cfg.REST, logger)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer pool.Close()
	defer cache.Close()

	go func() {
		for catalog := range cache.Watch() {
			logger.Debug("schema snapshot", zap.Int("tables", len(catalog)))
		}
	}()

	var publisher events.Publisher
	if cfg.NATS != nil {
		nc, err := events.ConnectNATS(*cfg.NATS, logger)
		if err != nil {
			logger.Fatal("connect to NATS", zap.Error(err))
		}
		defer nc.Close()
		publisher = nc
	}

	var routerOpts []httputil.RouterOptions
	if cfg.REST.TLS.CertFile != "" && cfg.REST.TLS.KeyFile != "" {
		routerOpts = append(routerOpts, httputil.WithTLS(cfg.REST.TLS.CertFile, cfg.REST.TLS.KeyFile))
	}
	router := httputil.NewRouter(routerOpts...)

	router.Use(mw.RequestID, mw.CORSWithOptions(corsOptions(cfg.REST.CORSOrigins)))
	auth, err := authMiddleware(ctx, cfg.REST)
	if err != nil {
		logger.Fatal("configure authentication", zap.Error(err))
	}
	for _, m := range auth {
		router.Use(m)
	}
	// the request log includes the authenticated user, so it runs after auth
	if logLevel != "none" {
		router.Use(mw.LoggerWithOptions(&mw.LoggerOptions{Logger: logger}))
	}

	api := router
	if cfg.REST.Prefix != "" {
		api = router.Group(cfg.REST.Prefix)
	}
	server, err := newServer(ctx, cfg, pool, cache, api, publisher, logger)
	if err != nil {
		logger.Fatal("register resources", zap.Error(err))
	}

	if cfg.REST.OpenAPI {
		api.Handle("GET /openapi.json", server.OpenAPIHandler(rest.OpenAPIInfo{
			Title:   "restful",
			Version: config.Version,
			BaseURL: cfg.REST.BaseURL,
		}))
	}
	if cfg.REST.Schema {
		api.Handle("GET /schema.json", cache.Handler())
	}

	var wg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{
			Addr:   cfg.Metrics.Addr,
			Path:   cfg.Metrics.Path,
			Logger: logger,
		})
	}

	go func() {
		if err := router.ListenAndServe(cfg.REST.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.REST.Shutdown)
	defer cancel()

	if err := router.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	wg.Wait()
	logger.Info("server gracefully stopped")
}

func corsOptions(origins []string) *mw.CORSOptions {
	if len(origins) == 0 {
		return nil
	}
	opts := mw.DefaultCORSOptions()
	opts.AllowedOrigins = origins
	return opts
}
