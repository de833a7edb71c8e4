package shared

import (
	"context"
	"time"

	"google.golang.org/adk/tool"

	"finvisor/internal/metrics"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

// RetryMiddleware retries tool execution on error with linear backoff
type RetryMiddleware struct {
	Attempts int
	Backoff  time.Duration
}

// TimeoutMiddleware bounds a single tool call
type TimeoutMiddleware struct {
	Timeout time.Duration
}

// retryable reports whether another attempt could succeed
func retryable(err error) bool {
	switch {
	case errors.Is(err, errors.ErrInvalidInput),
		errors.Is(err, errors.ErrNotFound),
		errors.Is(err, errors.ErrUnauthorized),
		errors.Is(err, errors.ErrNoFilings),
		errors.Is(err, errors.ErrKnowledgeNotLoaded),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func wrapWithRetry[T any](retry RetryMiddleware, fn ToolFunc[T]) ToolFunc[T] {
	return func(ctx tool.Context, args T) (map[string]any, error) {
		var result map[string]any
		var err error

		attempts := retry.Attempts
		if attempts <= 0 {
			attempts = 1
		}

		for i := 0; i < attempts; i++ {
			result, err = fn(ctx, args)
			if err == nil || !retryable(err) {
				return result, err
			}

			// Wait before retry
			if i < attempts-1 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(retry.Backoff * time.Duration(i+1)):
				}
			}
		}

		return result, err
	}
}

// deadlineContext overrides the context half of a tool.Context
type deadlineContext struct {
	tool.Context
	ctx context.Context
}

func (c deadlineContext) Deadline() (time.Time, bool) { return c.ctx.Deadline() }
func (c deadlineContext) Done() <-chan struct{} { return c.ctx.Done() }
func (c deadlineContext) Err() error { return c.ctx.Err() }
func (c deadlineContext) Value(key any) any { return c.ctx.Value(key) }

func wrapWithTimeout[T any](timeout TimeoutMiddleware, fn ToolFunc[T]) ToolFunc[T] {
	if timeout.Timeout <= 0 {
		return fn
	}

	return func(ctx tool.Context, args T) (map[string]any, error) {
		tctx, cancel := context.WithTimeout(ctx, timeout.Timeout)
		defer cancel()

		result, err := fn(deadlineContext{Context: ctx, ctx: tctx}, args)
		if err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrapf(errors.ErrTimeout, "tool timed out after %s", timeout.Timeout)
		}
		return result, err
	}
}

func wrapWithStats[T any](name string, log *logger.Logger, fn ToolFunc[T]) ToolFunc[T] {
	return func(ctx tool.Context, args T) (map[string]any, error) {
		start := time.Now()
		result, err := fn(ctx, args)
		duration := time.Since(start)

		metrics.RecordToolExecution(name, duration, err)
		if err != nil {
			log.Warnw("Tool call failed",
				"tool", name,
				"user_id", CurrentUser(ctx),
				"session_id", CurrentSession(ctx),
				"duration_ms", duration.Milliseconds(),
				"error", err,
			)
			return result, err
		}

		log.Debugw("Tool call completed",
			"tool", name,
			"user_id", CurrentUser(ctx),
			"duration_ms", duration.Milliseconds(),
		)
		return result, nil
	}
}
