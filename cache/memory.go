/*
Package cache provides read-through cache implementations for progress
reads: a TTL map for single-process deployments and tests, and a Redis
client for shared deployments.

Both satisfy routine.Cache. The engine treats the cache as an
optimization only: every mutation invalidates the affected keys
synchronously, and TTL expiry bounds staleness if an invalidation is
missed.
*/
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/warp/routine-engine/routine"
)

// =============================================================================
// MEMORY CACHE - TTL map (single process, tests)
// =============================================================================

// Memory is a mutex-guarded key/value map with per-entry expiry. Expired
// entries are dropped lazily on read; there is no background janitor.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

var _ routine.Cache = (*Memory)(nil)

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}
