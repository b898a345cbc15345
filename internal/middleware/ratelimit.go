package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitConfig is a fixed-window limit: at most Requests per Window for
// each client key.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Validate checks that both fields are positive.
func (c RateLimitConfig) Validate() error {
	if c.Requests <= 0 {
		return fmt.Errorf("rate limit requests must be > 0 (got %d)", c.Requests)
	}
	if c.Window <= 0 {
		return fmt.Errorf("rate limit window must be > 0 (got %s)", c.Window)
	}
	return nil
}

// DefaultWriteLimit is the default limit applied to registry writes.
func DefaultWriteLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 60, Window: time.Minute}
}

// RateLimitStore holds fixed-window counters. retryAfter is the number of
// whole seconds until the window resets and is only meaningful when the
// request is not allowed.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, cfg RateLimitConfig) (allowed bool, retryAfter int, err error)
}

type window struct {
	count int
	end   time.Time
}

// InMemoryRateLimitStore is a process-local RateLimitStore.
type InMemoryRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewInMemoryRateLimitStore creates an empty in-memory store.
func NewInMemoryRateLimitStore() *InMemoryRateLimitStore {
	return &InMemoryRateLimitStore{windows: make(map[string]*window), now: time.Now}
}

// Allow implements RateLimitStore.
func (s *InMemoryRateLimitStore) Allow(_ context.Context, key string, cfg RateLimitConfig) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.end) {
		s.windows[key] = &window{count: 1, end: now.Add(cfg.Window)}
		return true, 0, nil
	}
	if w.count < cfg.Requests {
		w.count++
		return true, 0, nil
	}
	return false, ceilSeconds(w.end.Sub(now)), nil
}

// Cleanup drops expired windows.
func (s *InMemoryRateLimitStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, w := range s.windows {
		if !now.Before(w.end) {
			delete(s.windows, key)
		}
	}
}

// RedisRateLimitStore shares fixed-window counters across API instances.
type RedisRateLimitStore struct {
	client *redis.Client
	prefix string
}

// NewRedisRateLimitStore creates a Redis-backed store.
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client, prefix: "domu:rl:"}
}

// Allow implements RateLimitStore with INCR and a window-long expiry set on
// the first hit of each window.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, cfg RateLimitConfig) (bool, int, error) {
	k := s.prefix + key
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, fmt.Errorf("rate limit: redis: %w", err)
	}

	ttl := pttl.Val()
	if ttl < 0 {
		if err := s.client.PExpire(ctx, k, cfg.Window).Err(); err != nil {
			return true, 0, fmt.Errorf("rate limit: redis expire: %w", err)
		}
		ttl = cfg.Window
	}
	if incr.Val() <= int64(cfg.Requests) {
		return true, 0, nil
	}
	return false, ceilSeconds(ttl), nil
}

func ceilSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// KeyFunc extracts a rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc keys requests by client IP. With trustProxy set the first
// X-Forwarded-For address (then X-Real-IP) is used; otherwise only
// RemoteAddr.
func IPKeyFunc(trustProxy bool) KeyFunc {
	return func(r *http.Request) string {
		if trustProxy {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				return strings.TrimSpace(first)
			}
			if xri := r.Header.Get("X-Real-IP"); xri != "" {
				return strings.TrimSpace(xri)
			}
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return host
	}
}

// RateLimiter rejects matching requests over cfg with 429 and a Retry-After
// header. Store failures are logged, counted and let the request through.
// A nil match limits every request.
func RateLimiter(store RateLimitStore, cfg RateLimitConfig, keyFunc KeyFunc, match func(*http.Request) bool, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if match != nil && !match(r) {
				next.ServeHTTP(w, r)
				return
			}

			route := normalizePath(r.URL.EscapedPath())
			metrics.incRateLimitRequest(route)
			allowed, retryAfter, err := store.Allow(r.Context(), route+"|"+keyFunc(r), cfg)
			if err != nil {
				metrics.incRateLimitStoreError()
				slog.WarnContext(r.Context(), "rate limit store unavailable, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				metrics.incRateLimitBlocked(route)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeJSONError(w, r.Context(), http.StatusTooManyRequests, "rate_limited", "Too many requests, retry later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSONError writes the API error envelope {"error":{"code","message"}}
// from inside the middleware chain.
func writeJSONError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	UpdateResponseContext(w, SetErrorCode(ctx, code))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]map[string]string{"error": {"code": code, "message": message}}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}
