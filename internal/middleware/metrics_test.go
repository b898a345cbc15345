package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("second Register() should fail with duplicate collectors")
	}

	m.ObserveHTTPRequest("GET", "/communities", "200", 0.01, 0, 128)
	m.incRateLimitRequest("/communities")
	m.incIdempotentReplay("/communities")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{MetricHTTPRequestsTotal, MetricHTTPRequestDuration, MetricRateLimitRequests, MetricIdempotentReplays} {
		if !names[want] {
			t.Errorf("metric %s not gathered", want)
		}
	}
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	m.incRateLimitRequest("/x")
	m.incRateLimitBlocked("/x")
	m.incRateLimitStoreError()
	m.incIdempotentReplay("/x")
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/communities", "/communities"},
		{"/communities/stats", "/communities/stats"},
		{"/communities/map", "/communities/map"},
		{"/communities/edificio-sur_x_sin-mapa", "/communities/{id}"},
		{"/communities/abc/selections", "/communities/{id}/selections"},
		{"/communities/abc/other", "other"},
		{"/communities//selections", "other"},
		{"/communities/", "other"},
		{"/health", "/health"},
		{"/wp-admin/login.php", "other"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestHTTPMetrics(t *testing.T) {
	m := NewMetrics()
	handler := HTTPMetrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	for _, path := range []string{"/communities/a", "/communities/b", "/communities/missing", "/health", "/metrics"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := counterValue(t, m.httpRequestsTotal.WithLabelValues("GET", "/communities/{id}", "200")); got != 2 {
		t.Errorf("200 count = %v, want 2", got)
	}
	if got := counterValue(t, m.httpRequestsTotal.WithLabelValues("GET", "/communities/{id}", "404")); got != 1 {
		t.Errorf("404 count = %v, want 1", got)
	}
	if got := counterValue(t, m.httpRequestsTotal.WithLabelValues("GET", "/health", "200")); got != 0 {
		t.Errorf("health requests recorded: %v", got)
	}
}

func TestHTTPMetrics_Sizes(t *testing.T) {
	m := NewMetrics()
	handler := HTTPMetrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("12345"))
		_, _ = w.Write([]byte("678"))
	}))
	req := httptest.NewRequest(http.MethodPost, "/communities", strings.NewReader(`{"name":"Torre"}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var metric dto.Metric
	obs := m.httpResponseSize.WithLabelValues("POST", "/communities", "200").(prometheus.Metric)
	if err := obs.Write(&metric); err != nil {
		t.Fatal(err)
	}
	if metric.GetHistogram().GetSampleSum() != 8 {
		t.Errorf("response size sum = %v, want 8", metric.GetHistogram().GetSampleSum())
	}

	obs = m.httpRequestSize.WithLabelValues("POST", "/communities", "200").(prometheus.Metric)
	if err := obs.Write(&metric); err != nil {
		t.Fatal(err)
	}
	if metric.GetHistogram().GetSampleSum() != float64(len(`{"name":"Torre"}`)) {
		t.Errorf("request size sum = %v", metric.GetHistogram().GetSampleSum())
	}
}
