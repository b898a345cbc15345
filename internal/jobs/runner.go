package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Func is one run of a background job.
type Func func(ctx context.Context) error

// RunOnce executes fn and records the outcome under jobType.
func RunOnce(ctx context.Context, m *Metrics, jobType string, fn Func) error {
	start := time.Now()
	err := fn(ctx)
	m.observe(jobType, time.Since(start).Seconds(), errorType(err))
	if err != nil {
		slog.ErrorContext(ctx, "background job failed", "job_type", jobType, "error", err)
	}
	return err
}

// Every runs fn immediately and then every interval until ctx is done. It
// blocks, so start it in a goroutine.
func Every(ctx context.Context, m *Metrics, jobType string, interval time.Duration, fn Func) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_ = RunOnce(ctx, m, jobType, fn)
	for {
		select {
		case <-ticker.C:
			_ = RunOnce(ctx, m, jobType, fn)
		case <-ctx.Done():
			slog.Debug("stopping background job", "job_type", jobType)
			return
		}
	}
}

func errorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
