package ignis

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	connectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ignis_connections_active",
			Help: "Current number of open connections",
		},
		[]string{"transport"},
	)

	connectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ignis_connections_total",
			Help: "Total number of accepted connections by detected transport",
		},
		[]string{"transport"},
	)

	connectionsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ignis_connections_rejected_total",
			Help: "Connections refused because the worker pool was saturated",
		},
	)

	poolAcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ignis_context_pool_acquire_total",
			Help: "Context pool acquisitions by result (hit or miss)",
		},
		[]string{"result"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ignis_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status", "transport"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ignis_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status", "transport"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ignis_http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		},
	)

	httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ignis_http_response_size_bytes",
			Help:    "HTTP response body size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "status", "transport"},
	)
)

// MetricsConfig holds configuration for the Metrics middleware.
type MetricsConfig struct {
	// SkipPaths lists paths to skip metrics collection (e.g., /metrics, /health)
	SkipPaths []string
}

// DefaultMetricsConfig returns a MetricsConfig with sensible defaults.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		SkipPaths: []string{"/metrics"},
	}
}

// Metrics returns a middleware that collects Prometheus request metrics.
func Metrics() Middleware {
	return MetricsWithConfig(DefaultMetricsConfig())
}

// MetricsWithConfig returns a middleware that collects Prometheus metrics with custom configuration.
// Request paths are not used as labels.
func MetricsWithConfig(config MetricsConfig) Middleware {
	skipMap := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipMap[path] = true
	}

	return NewMiddleware("metrics", Version, func(ctx *Context, next Next) error {
		if skipMap[ctx.Request.URLPath()] {
			return next()
		}

		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		err := next()

		status := ctx.Response.Status()
		if err != nil && !ctx.Response.Committed() {
			status, _ = statusOf(err)
		}
		labels := []string{ctx.Request.Method, strconv.Itoa(status), ctx.Kind().String()}
		httpRequestsTotal.WithLabelValues(labels...).Inc()
		httpRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		httpResponseSize.WithLabelValues(labels...).Observe(float64(ctx.Response.Written()))
		return err
	})
}

// MetricsHandler returns the Prometheus exposition handler for the default registry.
// Mount it with Handler, e.g. Handler("/metrics", MetricsHandler()).
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
