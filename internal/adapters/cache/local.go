// Package cache provides the in-process fallback used when Redis is disabled.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"finvisor/pkg/errors"
)

// Cache is the JSON cache surface shared by Redis and Local
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
}

// Locker serializes work on a key across goroutines or processes
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

type entry struct {
	data      []byte
	expiresAt time.Time
}

// Local is a map-backed Cache and Locker for a single process
type Local struct {
	mu      sync.Mutex
	entries map[string]entry
	locks   map[string]time.Time
	now     func() time.Time
}

// NewLocal creates an empty local cache
func NewLocal() *Local {
	return &Local{
		entries: make(map[string]entry),
		locks:   make(map[string]time.Time),
		now:     time.Now,
	}
}

// Set stores a JSON-encoded value; ttl <= 0 never expires
func (l *Local) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal cache value")
	}

	e := entry{data: data}
	if ttl > 0 {
		e.expiresAt = l.now().Add(ttl)
	}

	l.mu.Lock()
	l.entries[key] = e
	l.mu.Unlock()
	return nil
}

// Get decodes a stored value into dest. Missing or expired keys are errors.ErrNotFound.
func (l *Local) Get(_ context.Context, key string, dest interface{}) error {
	l.mu.Lock()
	e, ok := l.entries[key]
	if ok && !e.expiresAt.IsZero() && l.now().After(e.expiresAt) {
		delete(l.entries, key)
		ok = false
	}
	l.mu.Unlock()

	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "cache key %s", key)
	}
	return json.Unmarshal(e.data, dest)
}

// AcquireLock takes the lock for ttl or returns errors.ErrLocked
func (l *Local) AcquireLock(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, held := l.locks[key]; held && now.Before(until) {
		return nil, errors.Wrapf(errors.ErrLocked, "lock %s", key)
	}
	until := now.Add(ttl)
	l.locks[key] = until

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.locks[key].Equal(until) {
			delete(l.locks, key)
		}
		return nil
	}, nil
}
