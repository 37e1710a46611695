// Package monitoring exposes Prometheus metrics for the workcell KPI service.
//
// Usage:
//
//	router := gin.New()
//	router.Use(monitoring.HTTPMetricsMiddleware())
//	monitoring.SetupPrometheusMetrics(router, "/metrics", version)
//
//	start := time.Now()
//	// ... store call ...
//	monitoring.RecordStoreQuery("sql", "max_time", time.Since(start), err == nil)
//
// Available Metrics:
//
//   - workcell_kpi_http_requests_total{method, endpoint, status_code}
//   - workcell_kpi_http_request_duration_seconds{method, endpoint}
//   - workcell_kpi_store_queries_total{store, query, status}
//   - workcell_kpi_store_query_duration_seconds{store, query}
//   - workcell_kpi_cache_operations_total{operation, result}
//   - workcell_kpi_responses_total{operation, source}
//   - workcell_kpi_fallback_activations_total{operation}
//   - workcell_kpi_active_connections
//   - workcell_kpi_errors_total{type, component}
//   - workcell_kpi_build_info{version, component}
package monitoring

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workcell_kpi_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workcell_kpi_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	storeQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workcell_kpi_store_queries_total",
			Help: "Total number of queries issued to the relational and time-series stores",
		},
		[]string{"store", "query", "status"},
	)

	storeQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workcell_kpi_store_query_duration_seconds",
			Help:    "Store query duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"store", "query"},
	)

	cacheOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workcell_kpi_cache_operations_total",
			Help: "Total number of cache operations",
		},
		[]string{"operation", "result"},
	)

	responsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workcell_kpi_responses_total",
			Help: "KPI responses by provenance marker",
		},
		[]string{"operation", "source"},
	)

	fallbackActivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workcell_kpi_fallback_activations_total",
			Help: "Number of times simulated data was served in place of stored data",
		},
		[]string{"operation"},
	)

	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "workcell_kpi_active_connections",
			Help: "Number of in-flight HTTP requests",
		},
	)

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workcell_kpi_errors_total",
			Help: "Total number of errors by type and component",
		},
		[]string{"type", "component"},
	)

	registerOnce sync.Once
)

func register(version string) {
	registerOnce.Do(func() {
		_ = prometheus.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "workcell_kpi_build_info",
			Help: "Build information for the workcell KPI service",
			ConstLabels: prometheus.Labels{
				"version":   version,
				"component": "workcell-kpi",
			},
		}, func() float64 { return 1 }))

		_ = prometheus.Register(httpRequestsTotal)
		_ = prometheus.Register(httpRequestDuration)
		_ = prometheus.Register(storeQueriesTotal)
		_ = prometheus.Register(storeQueryDuration)
		_ = prometheus.Register(cacheOperationsTotal)
		_ = prometheus.Register(responsesTotal)
		_ = prometheus.Register(fallbackActivationsTotal)
		_ = prometheus.Register(activeConnections)
		_ = prometheus.Register(errorsTotal)
	})
}

// SetupPrometheusMetrics registers the collectors with the default registry
// and exposes them on GET path, /metrics when empty.
func SetupPrometheusMetrics(router gin.IRoutes, path, version string) {
	register(version)
	if path == "" {
		path = "/metrics"
	}
	router.GET(path, gin.WrapH(promhttp.Handler()))
}

// HTTPMetricsMiddleware collects HTTP request metrics
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		activeConnections.Inc()
		defer activeConnections.Dec()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = normalizeEndpoint(c.Request.URL.Path)
		}
		statusCode := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, statusCode).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())

		if c.Writer.Status() >= 500 {
			errorsTotal.WithLabelValues("http", endpoint).Inc()
		}
	}
}

// RecordStoreQuery records one round trip to a backing store ("sql" or "tsdb").
func RecordStoreQuery(store, query string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
		errorsTotal.WithLabelValues(store, query).Inc()
	}

	storeQueriesTotal.WithLabelValues(store, query, status).Inc()
	storeQueryDuration.WithLabelValues(store, query).Observe(duration.Seconds())
}

// RecordCacheOperation records cache operation metrics
func RecordCacheOperation(operation, result string) {
	cacheOperationsTotal.WithLabelValues(operation, result).Inc()
	if result == "error" {
		errorsTotal.WithLabelValues("cache", operation).Inc()
	}
}

// RecordResponse counts a KPI response by its provenance marker.
func RecordResponse(operation, source string) {
	responsesTotal.WithLabelValues(operation, source).Inc()
}

func RecordFallback(operation string) {
	fallbackActivationsTotal.WithLabelValues(operation).Inc()
}

// normalizeEndpoint collapses numeric path segments for unmatched routes.
func normalizeEndpoint(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if isNumeric(part) && i > 0 {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
