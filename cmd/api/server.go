package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/domu/internal/api"
	"github.com/onnwee/domu/internal/community"
	"github.com/onnwee/domu/internal/config"
	"github.com/onnwee/domu/internal/health"
	"github.com/onnwee/domu/internal/idempotency"
	"github.com/onnwee/domu/internal/jobs"
	"github.com/onnwee/domu/internal/kvstore"
	"github.com/onnwee/domu/internal/middleware"
	"github.com/onnwee/domu/internal/tracing"
)

const serviceName = "domu-api"

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// idempotencyCleanupInterval is how often in-memory idempotency keys are swept.
const idempotencyCleanupInterval = time.Hour

// server owns every long-lived dependency of the API process.
type server struct {
	handler  http.Handler
	registry *community.Registry
	opened   *kvstore.Opened
	tracer   *tracing.Provider
	logger   *slog.Logger

	stopBackground context.CancelFunc
	background     *sync.WaitGroup
}

// newServer opens storage and assembles the routes and middleware chain.
func newServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server, error) {
	tracer, err := tracing.NewProvider(cfg.TracingConfig(serviceName, version))
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	opened, err := kvstore.Open(ctx, cfg.StoreConfig())
	if err != nil {
		_ = tracer.Shutdown(ctx)
		return nil, fmt.Errorf("storage: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registryMetrics := community.NewMetrics()
	httpMetrics := middleware.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	for _, m := range []interface{ Register(prometheus.Registerer) error }{registryMetrics, httpMetrics, jobMetrics} {
		if err := m.Register(reg); err != nil {
			_ = opened.Close()
			_ = tracer.Shutdown(ctx)
			return nil, fmt.Errorf("metrics: %w", err)
		}
	}

	registry := community.NewRegistry(opened.Store,
		community.WithKey(cfg.StorageKey),
		community.WithLogger(logger),
		community.WithMetrics(registryMetrics),
	)

	limit := middleware.RateLimitConfig{Requests: cfg.RateLimitRequests, Window: cfg.RateLimitWindow()}
	if err := limit.Validate(); err != nil {
		logger.Warn("invalid write rate limit, using default", "error", err)
		limit = middleware.DefaultWriteLimit()
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	background := &sync.WaitGroup{}
	spawn := func(jobType string, interval time.Duration, fn jobs.Func) {
		background.Add(1)
		go func() {
			defer background.Done()
			jobs.Every(bgCtx, jobMetrics, jobType, interval, fn)
		}()
	}

	var idemRepo idempotency.Repository
	var limitStore middleware.RateLimitStore
	if opened.Redis != nil {
		idemRepo = idempotency.NewRedisRepository(opened.Redis, cfg.IdempotencyTTL())
		limitStore = middleware.NewRedisRateLimitStore(opened.Redis)
	} else {
		mem := idempotency.NewInMemoryRepository()
		spawn(jobs.JobTypeIdempotencyCleanup, idempotencyCleanupInterval,
			idempotency.CleanupJob(mem, cfg.IdempotencyTTL()))
		idemRepo = mem

		limits := middleware.NewInMemoryRateLimitStore()
		spawn(jobs.JobTypeRateLimitSweep, limit.Window,
			func(context.Context) error {
				limits.Cleanup()
				return nil
			})
		limitStore = limits
	}

	mux := http.NewServeMux()
	api.NewCommunityHandlers(registry).Register(mux)
	api.NewHealthHandlers(api.HealthHandlersConfig{
		StorageBackend: opened.Backend,
		StorageChecker: health.StorageChecker(opened),
		MetricsEnabled: true,
	}).Register(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", rootHandler)

	var handler http.Handler = mux
	handler = middleware.Idempotency(idemRepo, api.IsWriteRoute, httpMetrics)(handler)
	handler = middleware.RateLimiter(limitStore, limit, middleware.IPKeyFunc(cfg.TrustProxy), api.IsWriteRoute, httpMetrics)(handler)
	handler = middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins, MaxAge: 600})(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Tracing(serviceName)(handler)
	handler = middleware.RequestID(handler)

	logger.Info("community registry ready",
		"storage_backend", opened.Backend,
		"key", registry.Key(),
		"tracing", tracer.Enabled(),
	)

	return &server{
		handler:        handler,
		registry:       registry,
		opened:         opened,
		tracer:         tracer,
		logger:         logger,
		stopBackground: stopBackground,
		background:     background,
	}, nil
}

// close stops background work, flushes traces and releases storage.
func (s *server) close(ctx context.Context) error {
	s.stopBackground()
	s.background.Wait()
	s.registry.UpsertStats().LogSummary(s.logger, "community")
	return errors.Join(s.tracer.Shutdown(ctx), s.opened.Close())
}

// rootHandler answers GET / with the service banner and everything
// unmatched with 404.
func rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
		api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintf(w, `{"service":%q,"version":%q}`, serviceName, version); err != nil {
		slog.ErrorContext(r.Context(), "failed to write response", "error", err)
	}
}
