package ai

import (
	"context"

	"github.com/redis/go-redis/v9"

	"finvisor/internal/adapters/ratelimit"
)

// RateLimiter gates model requests
type RateLimiter = ratelimit.Waiter

// NoOpLimiter never blocks
type NoOpLimiter struct{}

func NewNoOpLimiter() *NoOpLimiter { return &NoOpLimiter{} }

func (NoOpLimiter) Wait(context.Context) error { return nil }
func (NoOpLimiter) Allow() bool                { return true }

// RateLimitConfig is a provider quota in requests per minute
type RateLimitConfig struct {
	Enabled      bool
	ReqPerMinute float64
	Burst        int
}

// DefaultRateLimit is the Gemini free tier quota
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Enabled:      true,
		ReqPerMinute: 60,
		Burst:        10,
	}
}

// RateLimiterFactory builds limiters for providers. With a Redis client the
// quota is shared by every replica; without one each process keeps its own.
type RateLimiterFactory struct {
	redisClient *redis.Client
}

func NewRateLimiterFactory(redisClient *redis.Client) *RateLimiterFactory {
	return &RateLimiterFactory{redisClient: redisClient}
}

// Create returns the limiter for provider; disabled quotas never block
func (f *RateLimiterFactory) Create(provider ProviderName, config RateLimitConfig) RateLimiter {
	if !config.Enabled || config.ReqPerMinute <= 0 {
		return NewNoOpLimiter()
	}

	name := "ai:" + provider.String()
	perSecond := config.ReqPerMinute / 60.0
	if f.redisClient != nil {
		return ratelimit.NewShared(f.redisClient, name, perSecond, config.Burst)
	}
	return ratelimit.NewLimiter(name, perSecond, config.Burst)
}
