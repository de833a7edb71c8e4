package shared

import (
	"fmt"
	"time"

	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"finvisor/pkg/errors"
)

// ToolBuilder provides a fluent API for creating tools with middleware
type ToolBuilder[T any] struct {
	name        string
	description string
	fn          ToolFunc[T]
	deps        Deps

	// Middleware options
	withRetry   bool
	retryConfig RetryMiddleware

	withTimeout   bool
	timeoutConfig TimeoutMiddleware

	withStats bool

	errorPrefix string
}

// NewToolBuilder creates a new builder for a tool
func NewToolBuilder[T any](name, description string, fn ToolFunc[T], deps Deps) *ToolBuilder[T] {
	return &ToolBuilder[T]{
		name:        name,
		description: description,
		fn:          fn,
		deps:        deps,
		// Default configs
		retryConfig:   RetryMiddleware{Attempts: 3, Backoff: 500 * time.Millisecond},
		timeoutConfig: TimeoutMiddleware{Timeout: 30 * time.Second},
	}
}

// WithRetry enables retry middleware
func (b *ToolBuilder[T]) WithRetry(attempts int, backoff time.Duration) *ToolBuilder[T] {
	b.withRetry = true
	b.retryConfig = RetryMiddleware{
		Attempts: attempts,
		Backoff:  backoff,
	}
	return b
}

// WithTimeout enables timeout middleware
func (b *ToolBuilder[T]) WithTimeout(timeout time.Duration) *ToolBuilder[T] {
	b.withTimeout = true
	b.timeoutConfig = TimeoutMiddleware{
		Timeout: timeout,
	}
	return b
}

// WithStats enables metrics and logging of every call
func (b *ToolBuilder[T]) WithStats() *ToolBuilder[T] {
	b.withStats = true
	return b
}

// WithErrorMessage sets the text that precedes a failure reported to the agent,
// e.g. "Error fetching filings" yields {"result": "Error fetching filings: <cause>"}
func (b *ToolBuilder[T]) WithErrorMessage(prefix string) *ToolBuilder[T] {
	b.errorPrefix = prefix
	return b
}

// Handler returns the wrapped function without registering it with ADK.
// Tests call it directly.
func (b *ToolBuilder[T]) Handler() ToolFunc[T] {
	fn := b.fn

	// Apply middleware in order: retry -> timeout -> stats -> errors
	// Inner layers are applied first

	// 1. Retry (innermost - retries the actual tool logic)
	if b.withRetry {
		fn = wrapWithRetry(b.retryConfig, fn)
	}

	// 2. Timeout (wraps retry)
	if b.withTimeout {
		fn = wrapWithTimeout(b.timeoutConfig, fn)
	}

	// 3. Stats (tracks everything including retries)
	if b.withStats {
		fn = wrapWithStats(b.name, b.deps.Logger(), fn)
	}

	// 4. Errors never reach the agent runtime
	return wrapWithErrorResult(b.name, b.errorPrefix, fn)
}

// Build creates the ADK tool with configured middleware applied
func (b *ToolBuilder[T]) Build() (tool.Tool, error) {
	t, err := functiontool.New(
		functiontool.Config{
			Name:        b.name,
			Description: b.description,
		},
		functiontool.Func[T, map[string]any](b.Handler()),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build tool %s", b.name)
	}
	return t, nil
}

func wrapWithErrorResult[T any](name, prefix string, fn ToolFunc[T]) ToolFunc[T] {
	return func(ctx tool.Context, args T) (result map[string]any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Wrapf(errors.ErrInternal, "tool %s panicked: %v", name, r)
			}
			if err == nil {
				return
			}
			if prefix != "" {
				result, err = Result(fmt.Sprintf("%s: %s", prefix, err.Error())), nil
				return
			}
			result, err = map[string]any{"error": err.Error()}, nil
		}()

		return fn(ctx, args)
	}
}
