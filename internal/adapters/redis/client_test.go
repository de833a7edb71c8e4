package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvisor/internal/testsupport"
	"finvisor/pkg/errors"
)

func TestClient_SetGet(t *testing.T) {
	client := testsupport.NewTestRedis(t)
	ctx := context.Background()

	type quote struct {
		Symbol string
		Price  string
	}

	require.NoError(t, client.Set(ctx, "quote:AAPL", quote{"AAPL", "189.12"}, time.Minute))

	var got quote
	require.NoError(t, client.Get(ctx, "quote:AAPL", &got))
	assert.Equal(t, "189.12", got.Price)

	err := client.Get(ctx, "quote:MSFT", &got)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestClient_Lock(t *testing.T) {
	client := testsupport.NewTestRedis(t)
	ctx := context.Background()

	release, err := client.AcquireLock(ctx, "ingest:AAPL:10-K", time.Minute)
	require.NoError(t, err)

	_, err = client.AcquireLock(ctx, "ingest:AAPL:10-K", time.Minute)
	assert.True(t, errors.Is(err, errors.ErrLocked))

	require.NoError(t, release(ctx))

	release, err = client.AcquireLock(ctx, "ingest:AAPL:10-K", time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}
