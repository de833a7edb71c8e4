package ratelimit

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"finvisor/pkg/errors"
)

// Waiter throttles calls to one upstream API
type Waiter interface {
	Wait(ctx context.Context) error
	Allow() bool
}

// Limiter is an in-process Waiter
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// NewLimiter creates a limiter allowing requestsPerSecond with the given burst
func NewLimiter(name string, requestsPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		name:    name,
	}
}

// NewPerMinute creates a limiter from a per-minute quota with a 10% burst
func NewPerMinute(name string, requestsPerMinute int) *Limiter {
	return NewLimiter(name, float64(requestsPerMinute)/60.0, requestsPerMinute/10)
}

// Wait blocks until the rate limiter allows the request
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(err, "rate limiter %s", l.name)
	}
	return nil
}

// Allow checks if a request is allowed without blocking
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// MultiLimiter manages limiters by key (per provider, per endpoint)
type MultiLimiter struct {
	limiters map[string]Waiter
	mu       sync.RWMutex
}

// NewMultiLimiter creates a new multi-limiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]Waiter),
	}
}

// AddLimiter adds a rate limiter for a specific key
func (m *MultiLimiter) AddLimiter(key string, limiter Waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[key] = limiter
}

// Get returns the limiter for key, or nil
func (m *MultiLimiter) Get(key string) Waiter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limiters[key]
}

// Wait waits for all specified limiters; unknown keys are ignored
func (m *MultiLimiter) Wait(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if limiter := m.Get(key); limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Provider keys
const (
	SEC     = "sec"
	Finnhub = "finnhub"
	Yahoo   = "yahoo"
)

// NewProviderLimiters creates limiters for the market data providers.
// SEC fair access allows at most 10 requests per second per organization, so
// with a Redis client the SEC quota is shared by every replica.
// https://www.sec.gov/os/accessing-edgar-data
func NewProviderLimiters(secPerSecond float64, rdb *redis.Client) *MultiLimiter {
	m := NewMultiLimiter()
	if rdb != nil {
		m.AddLimiter(SEC, NewShared(rdb, SEC, secPerSecond, 1))
	} else {
		m.AddLimiter(SEC, NewLimiter("sec", secPerSecond, 1))
	}
	m.AddLimiter(Finnhub, NewPerMinute("finnhub", 60)) // free plan quota
	m.AddLimiter(Yahoo, NewLimiter("yahoo", 2, 4))
	return m
}
