package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"finvisor/pkg/errors"
)

// takeToken refills the bucket from the Redis clock, takes one token when
// available and reports how many milliseconds to wait otherwise.
// KEYS[1] bucket, ARGV[1] tokens per second, ARGV[2] burst
var takeToken = redis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local clock = redis.call('TIME')
local now = tonumber(clock[1]) + tonumber(clock[2]) / 1000000

local state = redis.call('HMGET', KEYS[1], 'tokens', 'at')
local tokens = tonumber(state[1]) or burst
local at = tonumber(state[2]) or now
tokens = math.min(burst, tokens + math.max(0, now - at) * rate)

local granted = 0
local wait_ms = 0
if tokens >= 1 then
	tokens = tokens - 1
	granted = 1
else
	wait_ms = math.ceil((1 - tokens) / rate * 1000)
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'at', now)
redis.call('PEXPIRE', KEYS[1], math.ceil(burst / rate * 1000) + 1000)
return {granted, wait_ms}
`)

// Shared is a token bucket kept in Redis, so every replica draws from one quota
type Shared struct {
	client *redis.Client
	key    string
	name   string
	rate   float64
	burst  int
}

// NewShared creates a Redis-backed limiter allowing perSecond with the given burst
func NewShared(client *redis.Client, name string, perSecond float64, burst int) *Shared {
	if burst < 1 {
		burst = 1
	}
	return &Shared{
		client: client,
		key:    "finvisor:ratelimit:" + name,
		name:   name,
		rate:   perSecond,
		burst:  burst,
	}
}

// Wait blocks until a token is granted or ctx ends
func (s *Shared) Wait(ctx context.Context) error {
	for {
		granted, wait, err := s.take(ctx)
		if err != nil {
			return errors.Wrapf(err, "rate limiter %s", s.name)
		}
		if granted {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrapf(ctx.Err(), "rate limiter %s", s.name)
		case <-timer.C:
		}
	}
}

// Allow takes a token without waiting. Redis errors deny the request.
func (s *Shared) Allow() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	granted, _, err := s.take(ctx)
	return err == nil && granted
}

// Reset empties the stored bucket state
func (s *Shared) Reset(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

func (s *Shared) take(ctx context.Context) (bool, time.Duration, error) {
	res, err := takeToken.Run(ctx, s.client, []string{s.key}, s.rate, s.burst).Int64Slice()
	if err != nil {
		return false, 0, err
	}
	if len(res) != 2 {
		return false, 0, errors.Newf("unexpected token bucket reply %v", res)
	}

	wait := time.Duration(res[1]) * time.Millisecond
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return res[0] == 1, wait, nil
}
