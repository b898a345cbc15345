package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// staticRoutes are recorded under their own path.
var staticRoutes = map[string]bool{
	"/":                  true,
	"/communities":       true,
	"/communities/stats": true,
	"/communities/map":   true,
	"/health":            true,
	"/ready":             true,
	"/metrics":           true,
}

// normalizePath maps request paths onto route patterns to bound label
// cardinality: /communities/{id} and /communities/{id}/selections. Anything
// else unknown collapses to "other".
func normalizePath(path string) string {
	if staticRoutes[path] {
		return path
	}
	rest, ok := strings.CutPrefix(path, "/communities/")
	if !ok || rest == "" {
		return "other"
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1:
		return "/communities/{id}"
	case len(parts) == 2 && parts[0] != "" && parts[1] == "selections":
		return "/communities/{id}/selections"
	default:
		return "other"
	}
}

// unobserved reports paths excluded from metrics and tracing.
func unobserved(path string) bool {
	return path == "/health" || path == "/ready" || path == "/metrics"
}

// metricsResponseWriter captures status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	mrw.wroteHeader = true
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// Unwrap returns the underlying writer.
func (mrw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return mrw.ResponseWriter
}

// HTTPMetrics records duration, size and count of every request except
// /health, /ready and /metrics.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if unobserved(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}

			next.ServeHTTP(mrw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.EscapedPath()),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				requestSize,
				mrw.size,
			)
		})
	}
}
