package observability

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the search service
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Database metrics
	dbQueriesTotal    *prometheus.CounterVec
	dbQueryDuration   *prometheus.HistogramVec
	dbConnections     prometheus.Gauge
	dbConnectionsIdle prometheus.Gauge
	dbConnectionsMax  prometheus.Gauge

	// Search metrics
	searchesTotal     *prometheus.CounterVec
	searchDuration    *prometheus.HistogramVec
	searchResults     *prometheus.HistogramVec
	compileDuration   prometheus.Histogram
	rowsTotal         *prometheus.CounterVec
	subqueriesTotal   *prometheus.CounterVec
	propertyRefreshes *prometheus.CounterVec
	propertiesCached  prometheus.Gauge

	// Rate limiting metrics
	rateLimitHitsTotal *prometheus.CounterVec

	// System metrics
	systemUptime prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// uses the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		// HTTP metrics
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advsearch_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "advsearch_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "advsearch_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		// Database metrics
		dbQueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advsearch_db_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"operation", "table", "status"},
		),
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "advsearch_db_query_duration_seconds",
				Help:    "Database query latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation", "table"},
		),
		dbConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "advsearch_db_connections",
				Help: "Current number of database connections",
			},
		),
		dbConnectionsIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "advsearch_db_connections_idle",
				Help: "Current number of idle database connections",
			},
		),
		dbConnectionsMax: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "advsearch_db_connections_max",
				Help: "Maximum number of database connections",
			},
		),

		// Search metrics
		searchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advsearch_searches_total",
				Help: "Total number of searches",
			},
			[]string{"resource_type", "status"},
		),
		searchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "advsearch_search_duration_seconds",
				Help:    "Search latency in seconds, compilation included",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"resource_type"},
		),
		searchResults: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "advsearch_search_results",
				Help:    "Number of resources matched by a search",
				Buckets: prometheus.ExponentialBuckets(1, 10, 7),
			},
			[]string{"resource_type"},
		),
		compileDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "advsearch_compile_duration_seconds",
				Help:    "Query compilation latency in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
		),
		rowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advsearch_query_rows_total",
				Help: "Total number of query rows seen by the compiler",
			},
			[]string{"result"},
		),
		subqueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advsearch_subqueries_total",
				Help: "Total number of compiled sub-queries",
			},
			[]string{"mode"},
		),
		propertyRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advsearch_property_cache_refreshes_total",
				Help: "Total number of property cache refreshes",
			},
			[]string{"status"},
		),
		propertiesCached: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "advsearch_property_cache_size",
				Help: "Number of properties in the cache",
			},
		),

		// Rate limiting metrics
		rateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advsearch_rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
			[]string{"limiter_type"},
		),

		// System metrics
		systemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "advsearch_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),
	}

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}

	return m
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		path := normalizePath(c.Path())
		method := c.Method()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := statusClass(c.Response().StatusCode())

		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)

		return err
	}
}

// RecordDBQuery records database query metrics
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration, err error) {
	m.dbQueriesTotal.WithLabelValues(operation, table, resultStatus(err)).Inc()
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// UpdateDBStats updates database connection pool stats
func (m *Metrics) UpdateDBStats(total, idle, max int32) {
	m.dbConnections.Set(float64(total))
	m.dbConnectionsIdle.Set(float64(idle))
	m.dbConnectionsMax.Set(float64(max))
}

// RecordSearch records one executed search.
func (m *Metrics) RecordSearch(resourceType string, results int, duration time.Duration, err error) {
	m.searchesTotal.WithLabelValues(resourceType, resultStatus(err)).Inc()
	m.searchDuration.WithLabelValues(resourceType).Observe(duration.Seconds())
	if err == nil {
		m.searchResults.WithLabelValues(resourceType).Observe(float64(results))
	}
}

// RecordCompile records one query compilation and its row counts.
func (m *Metrics) RecordCompile(duration time.Duration, compiled, dropped int) {
	m.compileDuration.Observe(duration.Seconds())
	m.rowsTotal.WithLabelValues("compiled").Add(float64(compiled))
	m.rowsTotal.WithLabelValues("dropped").Add(float64(dropped))
}

// RecordSubquery records a sub-query compiled in the given mode.
func (m *Metrics) RecordSubquery(mode string) {
	m.subqueriesTotal.WithLabelValues(mode).Inc()
}

// RecordPropertyRefresh records a property cache refresh.
func (m *Metrics) RecordPropertyRefresh(size int, err error) {
	m.propertyRefreshes.WithLabelValues(resultStatus(err)).Inc()
	if err == nil {
		m.propertiesCached.Set(float64(size))
	}
}

// RecordRateLimitHit records a rate limit hit
func (m *Metrics) RecordRateLimitHit(limiterType string) {
	m.rateLimitHitsTotal.WithLabelValues(limiterType).Inc()
}

// UpdateUptime updates the system uptime metric
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.systemUptime.Set(time.Since(startTime).Seconds())
}

// Handler returns a Fiber handler that exposes Prometheus metrics
func (m *Metrics) Handler() fiber.Handler {
	if m.gatherer != nil && m.gatherer != prometheus.DefaultGatherer {
		return adaptor.HTTPHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	}
	return adaptor.HTTPHandler(promhttp.Handler())
}

// normalizePath groups search paths by resource type so that query strings
// and unknown paths do not explode label cardinality.
func normalizePath(path string) string {
	if len(path) > 50 {
		return "long_path"
	}
	for _, prefix := range []string{"/api/search/", "/api/compile/"} {
		if strings.HasPrefix(path, prefix) {
			rest := strings.TrimPrefix(path, prefix)
			if i := strings.IndexByte(rest, '/'); i >= 0 {
				rest = rest[:i]
			}
			return prefix + rest
		}
	}
	return path
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func resultStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
