package community

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricRegistrations = "community_registrations_total"
	MetricSelections    = "community_selections_total"
	MetricCorruptReads  = "community_registry_corrupt_reads_total"
	MetricStorageErrors = "community_registry_storage_errors_total"
	MetricRegistrySize  = "community_registry_size"
)

// Metrics holds Prometheus collectors for the registry.
type Metrics struct {
	registrations *prometheus.CounterVec
	selections    *prometheus.CounterVec
	corruptReads  prometheus.Counter
	storageErrors *prometheus.CounterVec
	registrySize  prometheus.Gauge
}

// NewMetrics creates unregistered collectors; call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRegistrations,
			Help: "Community upserts by outcome (inserted, updated)",
		}, []string{"outcome"}),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSelections,
			Help: "Community selections by outcome (hit, miss)",
		}, []string{"outcome"}),
		corruptReads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricCorruptReads,
			Help: "Persisted registry payloads that could not be parsed and were treated as empty",
		}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricStorageErrors,
			Help: "Storage backend failures by operation (read, write)",
		}, []string{"op"}),
		registrySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricRegistrySize,
			Help: "Number of community records after the last successful write",
		}),
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
		m.registrations,
		m.selections,
		m.corruptReads,
		m.storageErrors,
		m.registrySize,
	}
}

// The methods below accept a nil receiver so the registry can run without metrics.

func (m *Metrics) incRegistration(outcome string) {
	if m != nil {
		m.registrations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) incSelection(outcome string) {
	if m != nil {
		m.selections.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) incCorruptRead() {
	if m != nil {
		m.corruptReads.Inc()
	}
}

func (m *Metrics) incStorageError(op string) {
	if m != nil {
		m.storageErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) setSize(n int) {
	if m != nil {
		m.registrySize.Set(float64(n))
	}
}
