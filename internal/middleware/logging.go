// Package middleware provides the HTTP middleware chain of the registry API.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// errorCodeKey is the context key for error code.
type errorCodeKey struct{}

// SetErrorCode stores an API error code in the context.
func SetErrorCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, errorCodeKey{}, code)
}

// GetErrorCode retrieves the error code from context. Returns empty string if not present.
func GetErrorCode(ctx context.Context) string {
	if code, ok := ctx.Value(errorCodeKey{}).(string); ok {
		return code
	}
	return ""
}

// errorCodeRecorder is implemented by response writers that carry the error
// code of the response back out to the logging middleware.
type errorCodeRecorder interface {
	recordErrorCode(code string)
}

// UpdateResponseContext copies the error code stored in ctx onto every
// wrapping response writer in the chain. Handlers only see their own request
// context, so this is how the error code reaches the request log line.
func UpdateResponseContext(w http.ResponseWriter, ctx context.Context) {
	code := GetErrorCode(ctx)
	if code == "" {
		return
	}
	for w != nil {
		if rec, ok := w.(errorCodeRecorder); ok {
			rec.recordErrorCode(code)
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return
		}
		w = u.Unwrap()
	}
}

// responseWriter wraps http.ResponseWriter to capture status code, response
// size and error code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int
	wroteHeader bool
	errorCode   string
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader records the first status code written.
func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Unwrap returns the underlying writer for http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *responseWriter) recordErrorCode(code string) {
	rw.errorCode = code
}

// NewLogger returns a JSON logger at INFO for production and a text logger at
// DEBUG for every other environment.
func NewLogger(env string) *slog.Logger {
	if env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Logging logs one line per request with method, path, status, latency_ms,
// size, request_id and, for 4xx/5xx responses, error_code. 5xx responses log
// at ERROR and 4xx at WARN.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.statusCode),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
				slog.Int("size", rw.size),
			}
			if requestID := GetRequestID(r.Context()); requestID != "" {
				attrs = append(attrs, slog.String("request_id", requestID))
			}
			if rw.statusCode >= 400 {
				code := rw.errorCode
				if code == "" {
					code = GetErrorCode(r.Context())
				}
				if code != "" {
					attrs = append(attrs, slog.String("error_code", code))
				}
			}

			level := slog.LevelInfo
			switch {
			case rw.statusCode >= 500:
				level = slog.LevelError
			case rw.statusCode >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "request completed", attrs...)
		})
	}
}
