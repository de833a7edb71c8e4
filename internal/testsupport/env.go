package testsupport

import (
	"os"
	"strconv"
	"testing"

	"finvisor/internal/adapters/config"
)

// requireEnv skips the test unless every key is set
func requireEnv(t *testing.T, keys ...string) {
	t.Helper()

	var missing []string
	for _, key := range keys {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		t.Skipf("integration environment missing, set %v to run", missing)
	}
}

// PostgresConfigFromEnv returns Postgres settings for integration tests.
// The test is skipped when POSTGRES_TEST_HOST is not set.
func PostgresConfigFromEnv(t *testing.T) config.PostgresConfig {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	requireEnv(t, "POSTGRES_TEST_HOST")

	return config.PostgresConfig{
		Host:     os.Getenv("POSTGRES_TEST_HOST"),
		Port:     intValue("POSTGRES_TEST_PORT", 5532),
		User:     valueWithDefault("POSTGRES_TEST_USER", "ai"),
		Password: valueWithDefault("POSTGRES_TEST_PASSWORD", "ai"),
		Database: valueWithDefault("POSTGRES_TEST_DB", "ai"),
		SSLMode:  valueWithDefault("POSTGRES_TEST_SSL_MODE", "disable"),
		MaxConns: 5,
	}
}

// RedisConfigFromEnv returns Redis settings for integration tests.
// The test is skipped when REDIS_TEST_HOST is not set.
func RedisConfigFromEnv(t *testing.T) config.RedisConfig {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	requireEnv(t, "REDIS_TEST_HOST")

	return config.RedisConfig{
		Enabled:  true,
		Host:     os.Getenv("REDIS_TEST_HOST"),
		Port:     intValue("REDIS_TEST_PORT", 6379),
		Password: os.Getenv("REDIS_TEST_PASSWORD"),
		DB:       intValue("REDIS_TEST_DB", 15),
	}
}

// ClickHouseConfigFromEnv returns ClickHouse settings for integration tests.
// The test is skipped when CLICKHOUSE_TEST_HOST is not set.
func ClickHouseConfigFromEnv(t *testing.T) config.ClickHouseConfig {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping clickhouse integration test in short mode")
	}
	requireEnv(t, "CLICKHOUSE_TEST_HOST")

	return config.ClickHouseConfig{
		Enabled:  true,
		Host:     os.Getenv("CLICKHOUSE_TEST_HOST"),
		Port:     intValue("CLICKHOUSE_TEST_PORT", 9000),
		User:     valueWithDefault("CLICKHOUSE_TEST_USER", "default"),
		Password: os.Getenv("CLICKHOUSE_TEST_PASSWORD"),
		Database: valueWithDefault("CLICKHOUSE_TEST_DB", "default"),
	}
}

func valueWithDefault(key string, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func intValue(key string, fallback int) int {
	if parsed, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return parsed
	}
	return fallback
}
