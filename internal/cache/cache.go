// Package cache provides the pluggable TTL cache used by C6 (AI guard), C14 (news/calendar),
// and C15 (license entitlements). An in-memory implementation backs tests and single-process
// deployments; a Redis implementation (github.com/go-redis/redis/v8, matching the teacher's
// dependency) is available when a DSN is configured.
//
// Grounded on the teacher's binance/orderbook.go OrderBookCache (map + ttl), generalized to a
// byte-value interface so callers serialize their own domain types.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache is a minimal TTL key-value store. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Memory is an in-process TTL cache guarded by a readers-many/writer-one mutex, matching the
// copy-on-read discipline spec.md §5 requires of shared mutable caches.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     func() time.Time
}

type memEntry struct {
	value   []byte
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memEntry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok || m.now().After(e.expires) {
		return nil, false, nil
	}
	cp := make([]byte, len(e.value))
	copy(cp, e.value)
	return cp, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.entries[key] = memEntry{value: cp, expires: m.now().Add(ttl)}
	return nil
}
