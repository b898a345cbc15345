// Package jobs runs periodic background maintenance and records its metrics.
package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricBackgroundJobsTotal      = "background_jobs_total"
	MetricBackgroundJobsDuration   = "background_jobs_duration_seconds"
	MetricBackgroundJobErrorsTotal = "background_job_errors_total"
)

// Job types used as label values.
const (
	JobTypeIdempotencyCleanup = "idempotency_cleanup"
	JobTypeRateLimitSweep     = "rate_limit_sweep"
)

// Status constants for job completion.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics contains Prometheus metrics for background job runs.
type Metrics struct {
	jobsTotal    *prometheus.CounterVec
	jobsDuration *prometheus.HistogramVec
	jobErrors    *prometheus.CounterVec
}

// NewMetrics creates unregistered collectors; call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBackgroundJobsTotal,
				Help: "Total number of background job executions by type and status",
			},
			[]string{"job_type", "status"},
		),
		jobsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricBackgroundJobsDuration,
				Help:    "Background job duration in seconds by job type",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"job_type"},
		),
		jobErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBackgroundJobErrorsTotal,
				Help: "Total number of background job errors by type and error type",
			},
			[]string{"job_type", "error_type"},
		),
	}
}

// Register registers all metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all Prometheus collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.jobsTotal,
		m.jobsDuration,
		m.jobErrors,
	}
}

// observe records one run. A nil receiver is a no-op.
func (m *Metrics) observe(jobType string, seconds float64, errorType string) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if errorType != "" {
		status = StatusFailure
		m.jobErrors.WithLabelValues(jobType, errorType).Inc()
	}
	m.jobsTotal.WithLabelValues(jobType, status).Inc()
	m.jobsDuration.WithLabelValues(jobType).Observe(seconds)
}
