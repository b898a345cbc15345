package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/domu/internal/idempotency"
)

// IdempotencyKeyHeader is the request header carrying the idempotency key.
const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotentReplayHeader is set on responses served from the cache.
const IdempotentReplayHeader = "Idempotent-Replayed"

type idempotencyKeyContextKey struct{}

// GetIdempotencyKey returns the idempotency key of the request or "".
func GetIdempotencyKey(ctx context.Context) string {
	if key, ok := ctx.Value(idempotencyKeyContextKey{}).(string); ok {
		return key
	}
	return ""
}

// captureWriter tees the response so it can be stored after the handler
// returns.
type captureWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	body        bytes.Buffer
}

func (w *captureWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.statusCode = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Unwrap returns the underlying writer.
func (w *captureWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Idempotency replays stored responses for matching POST requests that carry
// an Idempotency-Key header. Requests without the header are served normally.
// Only 2xx responses are stored. A key reused on a different route is
// rejected with 422. Repository failures are logged and the request is
// served without replay protection.
func Idempotency(repo idempotency.Repository, match func(*http.Request) bool, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if r.Method != http.MethodPost || key == "" || (match != nil && !match(r)) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			if err := idempotency.ValidateKey(key); err != nil {
				code, message := "invalid_idempotency_key", "Invalid Idempotency-Key"
				if errors.Is(err, idempotency.ErrKeyTooLong) {
					code, message = "idempotency_key_too_long", "Idempotency-Key exceeds maximum length of 64 characters"
				}
				writeJSONError(w, ctx, http.StatusBadRequest, code, message)
				return
			}

			ctx = context.WithValue(ctx, idempotencyKeyContextKey{}, key)
			r = r.WithContext(ctx)

			existing, err := repo.Get(ctx, key)
			switch {
			case err == nil:
				if existing.Method != r.Method || existing.Route != r.URL.EscapedPath() {
					writeJSONError(w, ctx, http.StatusUnprocessableEntity, "idempotency_key_reused",
						"Idempotency-Key was already used for a different request")
					return
				}
				metrics.incIdempotentReplay(normalizePath(r.URL.EscapedPath()))
				slog.DebugContext(ctx, "replaying idempotent response", "key", key, "status", existing.ResponseStatusCode)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(IdempotentReplayHeader, "true")
				w.WriteHeader(existing.ResponseStatusCode)
				_, _ = w.Write([]byte(existing.ResponseBody))
				return
			case !errors.Is(err, idempotency.ErrKeyNotFound):
				slog.ErrorContext(ctx, "failed to check idempotency key", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			cw := &captureWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(cw, r)

			if cw.statusCode < 200 || cw.statusCode >= 300 {
				return
			}
			body := cw.body.String()
			record := &idempotency.Record{
				Key:                key,
				Method:             r.Method,
				Route:              r.URL.EscapedPath(),
				ResponseHash:       idempotency.ComputeResponseHash(body),
				ResponseBody:       body,
				ResponseStatusCode: cw.statusCode,
			}
			if err := repo.Store(ctx, record); err != nil {
				slog.ErrorContext(ctx, "failed to store idempotency key", "key", key, "error", err)
			}
		})
	}
}
