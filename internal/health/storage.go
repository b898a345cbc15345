package health

import (
	"context"

	"github.com/onnwee/domu/internal/kvstore"
)

// Checker is anything that can report its health.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// HealthCheck calls f.
func (f CheckerFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

// StorageChecker returns the readiness check for an opened storage backend,
// or nil when the backend has nothing to check (memory, none).
func StorageChecker(o *kvstore.Opened) Checker {
	switch {
	case o == nil:
		return nil
	case o.Redis != nil:
		return NewRedisChecker(o.Redis)
	case o.DB != nil:
		return NewDBChecker(o.DB)
	case o.Checker != nil:
		return o.Checker
	default:
		return nil
	}
}
