package cache

import (
	"context"
	"time"

	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

// GetOrLoad returns the cached value for key, or calls load and caches its result for ttl.
// A nil cache always loads. Cache write failures are logged and ignored.
func GetOrLoad[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var value T
	if c == nil {
		return load(ctx)
	}

	if err := c.Get(ctx, key, &value); err == nil {
		return value, nil
	} else if !errors.Is(err, errors.ErrNotFound) {
		logger.Get().Debugw("Cache read failed", "key", key, "error", err)
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}

	if err := c.Set(ctx, key, value, ttl); err != nil {
		logger.Get().Warnw("Cache write failed", "key", key, "error", err)
	}
	return value, nil
}
