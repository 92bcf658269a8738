package routine

import (
	"context"
	"time"
)

// =============================================================================
// CACHE - Read-through cache collaborator
// =============================================================================

// Cache is the read-through cache that may sit in front of progress reads.
// It is an external collaborator: the engine only requires get/set with
// expiry plus explicit invalidation. Every successful mutation invalidates
// the affected keys synchronously, before returning, so a stale read can
// never mask a just-applied completion or skip.
//
// The cache package provides TTL-map and Redis implementations. A nil
// cache disables caching entirely; the engine never depends on it for
// correctness.
type Cache interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, keys ...string) error

	// DeletePrefix invalidates every key with the given prefix. Used by
	// routine-level mutations (pause, active window, delete) that affect
	// an unbounded set of dates.
	DeletePrefix(ctx context.Context, prefix string) error
}

// Cache key layout. One key per (routine, date) progress cell, with a
// per-routine prefix so routine-level mutations can invalidate wholesale.

func routineCachePrefix(id RoutineID) string {
	return "routine:progress:" + string(id) + ":"
}

func progressCacheKey(id RoutineID, d Date) string {
	return routineCachePrefix(id) + d.String()
}

// invalidateProgress drops the cached cell for one (routine, date). Cache
// failures are deliberately swallowed by callers after logging: the cache
// is an optimization, and TTL expiry bounds any staleness from a failed
// invalidation.
func invalidateProgress(ctx context.Context, c Cache, id RoutineID, d Date) error {
	if c == nil {
		return nil
	}
	return c.Delete(ctx, progressCacheKey(id, d))
}

// invalidateRoutine drops every cached cell for a routine.
func invalidateRoutine(ctx context.Context, c Cache, id RoutineID) error {
	if c == nil {
		return nil
	}
	return c.DeletePrefix(ctx, routineCachePrefix(id))
}
