package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// ReadyTimeout bounds all dependency checks of one readiness probe.
const ReadyTimeout = 5 * time.Second

// HealthChecker defines the interface for components that can be health checked.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandlers provides health and readiness check endpoints for Kubernetes probes.
type HealthHandlers struct {
	storageBackend string
	storageChecker HealthChecker
	metricsEnabled bool
	now            func() time.Time
}

// HealthHandlersConfig configures the health check handlers.
type HealthHandlersConfig struct {
	// StorageBackend is reported as-is under checks["storage_backend"].
	StorageBackend string
	// StorageChecker is nil for backends without a remote dependency.
	StorageChecker HealthChecker
	MetricsEnabled bool
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	return &HealthHandlers{
		storageBackend: config.StorageBackend,
		storageChecker: config.StorageChecker,
		metricsEnabled: config.MetricsEnabled,
		now:            time.Now,
	}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Register mounts /health and /ready on mux.
func (h *HealthHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/ready", h.Ready)
}

// Health handles GET /health (liveness probe).
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeCodedError(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	writeJSON(w, r, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready (readiness probe). It returns 503 when the
// storage backend does not answer.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeCodedError(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), ReadyTimeout)
	defer cancel()

	checks := map[string]string{"storage": "ok"}
	if h.storageBackend != "" {
		checks["storage_backend"] = h.storageBackend
	}
	healthy := true
	if h.storageChecker != nil {
		if err := h.storageChecker.HealthCheck(ctx); err != nil {
			checks["storage"] = "error"
			healthy = false
			slog.WarnContext(ctx, "storage health check failed", "backend", h.storageBackend, "error", err)
		}
	}
	if h.metricsEnabled {
		checks["metrics"] = "ok"
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}
