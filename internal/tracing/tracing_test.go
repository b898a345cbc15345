package tracing

import (
	"context"
	"testing"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(Config{ServiceName: "domu-test"})
	if err != nil {
		t.Fatalf("expected no error for disabled tracing, got %v", err)
	}
	if provider.Enabled() {
		t.Error("expected tracing to be disabled")
	}
	if provider.Tracer("test") == nil {
		t.Error("expected a no-op tracer")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() on disabled provider returned %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled ignores fields", Config{SampleRate: 7}, false},
		{"missing service name", Config{Enabled: true, SampleRate: 0.5}, true},
		{"negative sample rate", Config{Enabled: true, ServiceName: "svc", SampleRate: -0.1}, true},
		{"sample rate above one", Config{Enabled: true, ServiceName: "svc", SampleRate: 1.5}, true},
		{"unknown exporter", Config{Enabled: true, ServiceName: "svc", Exporter: "zipkin"}, true},
		{"default exporter", Config{Enabled: true, ServiceName: "svc", SampleRate: 1}, false},
		{"grpc exporter", Config{Enabled: true, ServiceName: "svc", Exporter: ExporterOTLPGRPC}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	if _, err := NewProvider(Config{Enabled: true}); err == nil {
		t.Fatal("expected error for missing service name")
	}
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		if got := newSampler(tt.rate).Description(); got != tt.want {
			t.Errorf("newSampler(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}
