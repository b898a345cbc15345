package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricHTTPRequestDuration   = "http_request_duration_seconds"
	MetricHTTPRequestsTotal     = "http_requests_total"
	MetricHTTPRequestSizeBytes  = "http_request_size_bytes"
	MetricHTTPResponseSizeBytes = "http_response_size_bytes"
	MetricRateLimitRequests     = "rate_limit_requests_total"
	MetricRateLimitBlocked      = "rate_limit_blocked_total"
	MetricRateLimitStoreErrors  = "rate_limit_store_errors_total"
	MetricIdempotentReplays     = "idempotent_replays_total"
)

// Metrics holds the Prometheus collectors of the middleware chain.
type Metrics struct {
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestSize      *prometheus.HistogramVec
	httpResponseSize     *prometheus.HistogramVec
	rateLimitRequests    *prometheus.CounterVec
	rateLimitBlocked     *prometheus.CounterVec
	rateLimitStoreErrors prometheus.Counter
	idempotentReplays    *prometheus.CounterVec
}

// NewMetrics creates unregistered collectors; call Register to expose them.
func NewMetrics() *Metrics {
	labels := []string{"method", "path", "status"}
	return &Metrics{
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPRequestDuration,
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5},
		}, labels),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHTTPRequestsTotal,
			Help: "Total number of HTTP requests",
		}, labels),
		httpRequestSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPRequestSizeBytes,
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 7),
		}, labels),
		httpResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPResponseSizeBytes,
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 9),
		}, labels),
		rateLimitRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRateLimitRequests,
			Help: "Rate limit checks by route",
		}, []string{"path"}),
		rateLimitBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRateLimitBlocked,
			Help: "Requests rejected by the rate limiter by route",
		}, []string{"path"}),
		rateLimitStoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRateLimitStoreErrors,
			Help: "Rate limit store failures; the request is allowed through",
		}),
		idempotentReplays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricIdempotentReplays,
			Help: "Write requests answered from the idempotency cache by route",
		}, []string{"path"}),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.httpRequestDuration,
		m.httpRequestsTotal,
		m.httpRequestSize,
		m.httpResponseSize,
		m.rateLimitRequests,
		m.rateLimitBlocked,
		m.rateLimitStoreErrors,
		m.idempotentReplays,
	}
}

// ObserveHTTPRequest records one completed request. path must already be
// normalized.
func (m *Metrics) ObserveHTTPRequest(method, path, status string, duration float64, requestSize, responseSize int64) {
	labels := prometheus.Labels{"method": method, "path": path, "status": status}
	m.httpRequestDuration.With(labels).Observe(duration)
	m.httpRequestsTotal.With(labels).Inc()
	m.httpRequestSize.With(labels).Observe(float64(requestSize))
	m.httpResponseSize.With(labels).Observe(float64(responseSize))
}

// The methods below accept a nil receiver so middleware can run without metrics.

func (m *Metrics) incRateLimitRequest(path string) {
	if m != nil {
		m.rateLimitRequests.WithLabelValues(path).Inc()
	}
}

func (m *Metrics) incRateLimitBlocked(path string) {
	if m != nil {
		m.rateLimitBlocked.WithLabelValues(path).Inc()
	}
}

func (m *Metrics) incRateLimitStoreError() {
	if m != nil {
		m.rateLimitStoreErrors.Inc()
	}
}

func (m *Metrics) incIdempotentReplay(path string) {
	if m != nil {
		m.idempotentReplays.WithLabelValues(path).Inc()
	}
}
