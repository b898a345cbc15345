package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type testLogEntry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Size      int    `json:"size"`
	RequestID string `json:"request_id"`
	ErrorCode string `json:"error_code"`
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func parseLogEntry(t *testing.T, buf *bytes.Buffer) testLogEntry {
	t.Helper()
	var entry testLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v, log: %s", err, buf.String())
	}
	return entry
}

func TestLogging_Fields(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := RequestID(Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"communities":[]}`))
	})))

	req := httptest.NewRequest(http.MethodGet, "/communities", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := parseLogEntry(t, buf)
	if entry.Msg != "request completed" || entry.Level != "INFO" {
		t.Errorf("msg/level = %q/%q", entry.Msg, entry.Level)
	}
	if entry.Method != "GET" || entry.Path != "/communities" || entry.Status != 200 {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.Size != len(`{"communities":[]}`) {
		t.Errorf("size = %d", entry.Size)
	}
	if entry.RequestID != "req-42" {
		t.Errorf("request_id = %q", entry.RequestID)
	}
	if entry.ErrorCode != "" {
		t.Errorf("error_code = %q on success", entry.ErrorCode)
	}
}

func TestLogging_Levels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusTooManyRequests, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			buf := &bytes.Buffer{}
			handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
			if entry := parseLogEntry(t, buf); entry.Level != tt.level || entry.Status != tt.status {
				t.Errorf("level/status = %s/%d, want %s/%d", entry.Level, entry.Status, tt.level, tt.status)
			}
		})
	}
}

func TestLogging_ErrorCodeFromHandler(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := SetErrorCode(r.Context(), "not_found")
		UpdateResponseContext(w, ctx)
		w.WriteHeader(http.StatusNotFound)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/communities/x", nil))

	if entry := parseLogEntry(t, buf); entry.ErrorCode != "not_found" {
		t.Errorf("error_code = %q, want not_found", entry.ErrorCode)
	}
}

func TestLogging_ErrorCodeThroughWrappedWriters(t *testing.T) {
	buf := &bytes.Buffer{}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, r.Context(), http.StatusBadRequest, "validation_error", "bad")
	})
	// Idempotency sits between Logging and the handler and wraps the writer again.
	handler := Logging(newTestLogger(buf))(Idempotency(nil, nil, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			inner.ServeHTTP(&captureWriter{ResponseWriter: w, statusCode: http.StatusOK}, r)
		}),
	))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/communities", nil))

	if entry := parseLogEntry(t, buf); entry.ErrorCode != "validation_error" {
		t.Errorf("error_code = %q, want validation_error", entry.ErrorCode)
	}
}

func TestUpdateResponseContext_NoCode(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())
	UpdateResponseContext(rw, context.Background())
	if rw.errorCode != "" {
		t.Errorf("errorCode = %q, want empty", rw.errorCode)
	}
	// A plain writer without Unwrap must not panic.
	UpdateResponseContext(httptest.NewRecorder(), SetErrorCode(context.Background(), "x"))
}

func TestGetErrorCode(t *testing.T) {
	if GetErrorCode(context.Background()) != "" {
		t.Error("expected empty error code")
	}
	if got := GetErrorCode(SetErrorCode(context.Background(), "conflict")); got != "conflict" {
		t.Errorf("GetErrorCode() = %q", got)
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)
	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	_, _ = rw.Write([]byte("ab"))
	_, _ = rw.Write([]byte("cde"))
	if rw.statusCode != http.StatusCreated || rec.Code != http.StatusCreated {
		t.Errorf("status = %d / %d, want 201", rw.statusCode, rec.Code)
	}
	if rw.size != 5 {
		t.Errorf("size = %d, want 5", rw.size)
	}
	if rw.Unwrap() != rec {
		t.Error("Unwrap() did not return the underlying writer")
	}
}

func TestNewLogger(t *testing.T) {
	if !NewLogger("development").Enabled(context.Background(), slog.LevelDebug) {
		t.Error("development logger should enable DEBUG")
	}
	if NewLogger("production").Enabled(context.Background(), slog.LevelDebug) {
		t.Error("production logger should not enable DEBUG")
	}
}
