package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingProvider(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return recorder
}

func TestTracing_SpanNames(t *testing.T) {
	recorder := newRecordingProvider(t)

	var traceID, spanID string
	handler := Tracing("domu-api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = GetTraceID(r.Context())
		spanID = GetSpanID(r.Context())
	}))

	for _, path := range []string{
		"/communities/edificio-sur_av-siempre-viva-123_-33.4500_-70.6600",
		"/communities/abc/selections",
		"/health",
	} {
		method := http.MethodGet
		if path == "/communities/abc/selections" {
			method = http.MethodPost
		}
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, path, nil))
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans (health filtered), got %d", len(spans))
	}
	if spans[0].Name() != "GET /communities/{id}" {
		t.Errorf("span name = %q", spans[0].Name())
	}
	if spans[1].Name() != "POST /communities/{id}/selections" {
		t.Errorf("span name = %q", spans[1].Name())
	}
	if traceID == "" || spanID == "" {
		t.Error("handler did not see an active span")
	}
}

func TestTracing_PropagatesParent(t *testing.T) {
	recorder := newRecordingProvider(t)

	handler := Tracing("domu-api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/communities", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if got := spans[0].SpanContext().TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %s, want propagated parent", got)
	}
}

func TestGetTraceID_NoSpan(t *testing.T) {
	if GetTraceID(context.Background()) != "" || GetSpanID(context.Background()) != "" {
		t.Error("expected empty ids without an active span")
	}
}
