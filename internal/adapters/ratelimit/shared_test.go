package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvisor/internal/testsupport"
)

func TestSharedBurstThenRefill(t *testing.T) {
	client := testsupport.NewTestRedis(t).Client()
	l := NewShared(client, "test-burst", 1, 2)

	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	time.Sleep(1100 * time.Millisecond)
	assert.True(t, l.Allow())
}

func TestSharedWaitBlocksUntilRefill(t *testing.T) {
	client := testsupport.NewTestRedis(t).Client()
	l := NewShared(client, "test-wait", 2, 1)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))

	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestSharedWaitHonorsContext(t *testing.T) {
	client := testsupport.NewTestRedis(t).Client()
	l := NewShared(client, "test-cancel", 0.1, 1)
	require.True(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSharedQuotaAcrossInstances(t *testing.T) {
	client := testsupport.NewTestRedis(t).Client()
	first := NewShared(client, "test-replicas", 1, 2)
	second := NewShared(client, "test-replicas", 1, 2)

	assert.True(t, first.Allow())
	assert.True(t, second.Allow())
	assert.False(t, first.Allow())
	assert.False(t, second.Allow())

	require.NoError(t, first.Reset(context.Background()))
	assert.True(t, second.Allow())
}

func TestSharedConcurrentAllow(t *testing.T) {
	client := testsupport.NewTestRedis(t).Client()
	l := NewShared(client, "test-concurrent", 0.5, 5)

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow() {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), granted.Load())
}
