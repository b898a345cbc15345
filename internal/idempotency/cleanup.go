package idempotency

import (
	"context"
	"log/slog"
	"time"
)

// CleanupOldKeys removes records older than expiry.
func CleanupOldKeys(ctx context.Context, repo Repository, expiry time.Duration) (int64, error) {
	deleted, err := repo.DeleteOlderThan(ctx, expiry)
	if err != nil {
		slog.ErrorContext(ctx, "failed to cleanup old idempotency keys", "error", err)
		return 0, err
	}
	if deleted > 0 {
		slog.InfoContext(ctx, "cleaned up old idempotency keys", "deleted", deleted, "older_than", expiry)
	}
	return deleted, nil
}

// CleanupJob returns a sweep of repo suitable for a periodic job runner.
func CleanupJob(repo Repository, expiry time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := CleanupOldKeys(ctx, repo, expiry)
		return err
	}
}
