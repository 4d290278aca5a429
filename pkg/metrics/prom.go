package metrics

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restful_requests_total",
			Help: "Total number of handled requests by resource, action and status code",
		},
		[]string{"resource", "action", "code"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "restful_request_duration_seconds",
			Help:    "Duration of request handling by resource and action",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource", "action"},
	)

	FiltersDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restful_filters_dropped_total",
			Help: "Total number of query-string filter parameters ignored because their path did not resolve",
		},
		[]string{"kind"},
	)

	InvalidPages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restful_invalid_pages_total",
			Help: "Total number of requests for a page that is not an integer or out of range",
		},
		[]string{"reason"},
	)

	UnorderedPagination = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "restful_unordered_pagination_total",
			Help: "Total number of paginated queries without a sort order",
		},
	)

	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restful_publish_errors_total",
			Help: "Total number of mutation events that failed to publish by resource",
		},
		[]string{"resource"},
	)
)

// ObserveRequest records one handled request.
func ObserveRequest(resource, action string, code int, elapsed time.Duration) {
	Requests.WithLabelValues(resource, action, strconv.Itoa(code)).Inc()
	RequestDuration.WithLabelValues(resource, action).Observe(elapsed.Seconds())
}

type PromServerOpts struct {
	Addr              string
	Path              string        // Path for metrics endpoint, defaults to "/metrics"
	ShutdownTimeout   time.Duration // Timeout for server shutdown, defaults to 5 seconds
	ReadHeaderTimeout time.Duration // Timeout for reading request headers, defaults to 3 seconds
	Logger            *zap.Logger
}

func defaultPrometheusServerOptions() PromServerOpts {
	return PromServerOpts{
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		Logger:            zap.NewNop(),
	}
}

// StartPrometheusServer starts a Prometheus metrics server with the given options
// The server gracefully shutdown when the provided context is canceled
func StartPrometheusServer(ctx context.Context, wg *sync.WaitGroup, opts *PromServerOpts) {
	// merge with defaults
	effectiveOpts := defaultPrometheusServerOptions()
	if opts != nil {
		effectiveOpts.Addr = cmp.Or(opts.Addr, effectiveOpts.Addr)
		effectiveOpts.Path = cmp.Or(opts.Path, effectiveOpts.Path)
		effectiveOpts.ShutdownTimeout = cmp.Or(opts.ShutdownTimeout, effectiveOpts.ShutdownTimeout)
		effectiveOpts.ReadHeaderTimeout = cmp.Or(opts.ReadHeaderTimeout, effectiveOpts.ReadHeaderTimeout)
		if opts.Logger != nil {
			effectiveOpts.Logger = opts.Logger
		}
	}
	logger := effectiveOpts.Logger

	mux := http.NewServeMux()
	mux.Handle(effectiveOpts.Path, promhttp.Handler())
	server := &http.Server{
		Addr:              effectiveOpts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: effectiveOpts.ReadHeaderTimeout,
	}

	serverClosed := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting metrics server", zap.String("addr", effectiveOpts.Addr), zap.String("path", effectiveOpts.Path))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
		close(serverClosed)
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), effectiveOpts.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutting down metrics server", zap.Error(err))
		}

		select {
		case <-serverClosed:
			logger.Info("metrics server shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("metrics server shutdown timed out")
		}
	}()
}
