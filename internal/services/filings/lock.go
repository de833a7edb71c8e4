package filings

import (
	"context"
	"time"

	"finvisor/internal/adapters/cache"
	"finvisor/pkg/errors"
)

const lockRetryInterval = 500 * time.Millisecond

// withLock runs fn while holding key. A held lock is retried until ctx ends,
// so concurrent ingestions of the same ticker run one after the other.
func withLock(ctx context.Context, locker cache.Locker, key string, ttl time.Duration, fn func() error) error {
	if locker == nil {
		return fn()
	}

	var release func(context.Context) error
	for {
		var err error
		release, err = locker.AcquireLock(ctx, key, ttl)
		if err == nil {
			break
		}
		if !errors.Is(err, errors.ErrLocked) {
			return err
		}

		timer := time.NewTimer(lockRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrapf(errors.ErrLocked, "gave up waiting for %s", key)
		case <-timer.C:
		}
	}

	defer func() {
		// release with a fresh context so a cancelled caller still frees the lock
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = release(relCtx)
	}()

	return fn()
}
