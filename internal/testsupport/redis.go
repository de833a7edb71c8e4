package testsupport

import (
	"context"
	"testing"

	"finvisor/internal/adapters/redis"
)

// NewTestRedis connects to REDIS_TEST_* and flushes the database around the test.
func NewTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client, err := redis.NewClient(context.Background(), RedisConfigFromEnv(t))
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}

	if err := client.Client().FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("failed to flush redis before test: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Client().FlushDB(context.Background()).Err()
		_ = client.Close()
	})

	return client
}
