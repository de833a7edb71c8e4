package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvisor/pkg/errors"
)

func TestLocal_SetGetExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	c := NewLocal()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "quote:AAPL", map[string]string{"price": "189.12"}, time.Minute))

	var got map[string]string
	require.NoError(t, c.Get(ctx, "quote:AAPL", &got))
	assert.Equal(t, "189.12", got["price"])

	now = now.Add(2 * time.Minute)
	err := c.Get(ctx, "quote:AAPL", &got)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestLocal_Lock(t *testing.T) {
	ctx := context.Background()
	c := NewLocal()

	release, err := c.AcquireLock(ctx, "ingest:AAPL", time.Minute)
	require.NoError(t, err)

	_, err = c.AcquireLock(ctx, "ingest:AAPL", time.Minute)
	assert.True(t, errors.Is(err, errors.ErrLocked))

	_, err = c.AcquireLock(ctx, "ingest:MSFT", time.Minute)
	assert.NoError(t, err)

	require.NoError(t, release(ctx))
	_, err = c.AcquireLock(ctx, "ingest:AAPL", time.Minute)
	assert.NoError(t, err)
}

func TestRedisClientSatisfiesInterfaces(t *testing.T) {
	var _ Cache = NewLocal()
	var _ Locker = NewLocal()
}

func TestGetOrLoad(t *testing.T) {
	ctx := context.Background()
	c := NewLocal()
	calls := 0
	load := func(context.Context) (float64, error) {
		calls++
		return 189.12, nil
	}

	v, err := GetOrLoad(ctx, c, "quote:AAPL", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 189.12, v)

	v, err = GetOrLoad(ctx, c, "quote:AAPL", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 189.12, v)
	assert.Equal(t, 1, calls)

	_, err = GetOrLoad(ctx, c, "quote:MSFT", time.Minute, func(context.Context) (float64, error) {
		return 0, errors.ErrExternal
	})
	assert.True(t, errors.Is(err, errors.ErrExternal))

	_, err = GetOrLoad(ctx, nil, "x", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
