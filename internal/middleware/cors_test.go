package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCORS(t *testing.T) {
	cfg := CORSConfig{AllowedOrigins: []string{"https://app.domu.cl/", " https://admin.domu.cl "}, MaxAge: 600}
	nextCalled := false
	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantNext   bool
		wantAllow  string
	}{
		{"no origin", http.MethodGet, "", false, http.StatusOK, true, ""},
		{"allowed origin", http.MethodGet, "https://app.domu.cl", false, http.StatusOK, true, "https://app.domu.cl"},
		{"trimmed origin", http.MethodPost, "https://admin.domu.cl", false, http.StatusOK, true, "https://admin.domu.cl"},
		{"foreign origin", http.MethodGet, "https://evil.example", false, http.StatusForbidden, false, ""},
		{"preflight", http.MethodOptions, "https://app.domu.cl", true, http.StatusNoContent, false, "https://app.domu.cl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nextCalled = false
			req := httptest.NewRequest(tt.method, "/communities", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if nextCalled != tt.wantNext {
				t.Errorf("next called = %v, want %v", nextCalled, tt.wantNext)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
			if tt.preflight {
				if !strings.Contains(rr.Header().Get("Access-Control-Allow-Headers"), IdempotencyKeyHeader) {
					t.Errorf("Allow-Headers = %q", rr.Header().Get("Access-Control-Allow-Headers"))
				}
				if rr.Header().Get("Access-Control-Max-Age") != "600" {
					t.Errorf("Max-Age = %q", rr.Header().Get("Access-Control-Max-Age"))
				}
			}
		})
	}
}

func TestCORS_DisabledWithoutOrigins(t *testing.T) {
	handler := CORS(CORSConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://anything.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTeapot || rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("CORS should be a no-op without configured origins")
	}
}
