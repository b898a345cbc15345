package jobs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	close(ch)
	var total float64
	for metric := range ch {
		var m dto.Metric
		if err := metric.Write(&m); err != nil {
			t.Fatalf("failed to write metric: %v", err)
		}
		total += m.GetCounter().GetValue()
	}
	return total
}

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() returned error: %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	m.observe(JobTypeIdempotencyCleanup, 0.2, "")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() returned error: %v", err)
	}
	found := map[string]bool{}
	for _, family := range families {
		found[family.GetName()] = true
	}
	for _, name := range []string{MetricBackgroundJobsTotal, MetricBackgroundJobsDuration} {
		if !found[name] {
			t.Errorf("metric %s not found in gathered metrics", name)
		}
	}
}

func TestMetrics_Observe(t *testing.T) {
	m := NewMetrics()

	m.observe(JobTypeRateLimitSweep, 0.01, "")
	m.observe(JobTypeRateLimitSweep, 0.01, "")
	m.observe(JobTypeRateLimitSweep, 0.02, "timeout")

	if got := counterValue(t, m.jobsTotal.WithLabelValues(JobTypeRateLimitSweep, StatusSuccess)); got != 2 {
		t.Errorf("success count = %v, want 2", got)
	}
	if got := counterValue(t, m.jobsTotal.WithLabelValues(JobTypeRateLimitSweep, StatusFailure)); got != 1 {
		t.Errorf("failure count = %v, want 1", got)
	}
	if got := counterValue(t, m.jobErrors.WithLabelValues(JobTypeRateLimitSweep, "timeout")); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	m.observe(JobTypeIdempotencyCleanup, 1, "error")
}
