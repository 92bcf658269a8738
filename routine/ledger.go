/*
ledger.go - Completion ledger

PURPOSE:
  The ledger owns completion counting: the idempotent "complete one slot"
  operation with a hard cap at the effective daily goal, and the Progress
  projection that combines the completion record with skip and pause state.

THE GOAL CAP UNDER CONCURRENCY:
  Two concurrent callers (a double-tap, two syncing devices) must never
  both observe count < goal and each apply +1. The ledger therefore never
  does a read-then-write increment. It pre-reads only to classify the
  failure, then delegates to the store's conditional atomic increment and
  trusts its affected-row report:

    pre-read says full            -> ErrGoalExceeded, nothing attempted
    increment applied             -> success
    increment matched zero rows   -> ErrConcurrentModification (a racer
                                     filled the last slot in between)

CACHE:
  A successful completion invalidates the (routine, date) progress key
  before returning. Progress reads go through the cache when one is wired.
*/
package routine

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Ledger mutates and projects completion state. All writes go through the
// store's conditional increment; nothing else in the engine writes
// completion rows except the bulk engine's deletions.
type Ledger struct {
	store  Store
	cache  Cache
	logger *zap.Logger

	// now is injectable for tests.
	now func() time.Time

	// progressTTL bounds staleness of cached progress cells.
	progressTTL time.Duration
}

func NewLedger(store Store, cache Cache, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:       store,
		cache:       cache,
		logger:      logger,
		now:         time.Now,
		progressTTL: time.Minute,
	}
}

// =============================================================================
// COMPLETE ONE - Conditional atomic increment
// =============================================================================

// CompleteOne records one completed slot for (id, date). specificTime is an
// advisory time-of-day label; it never affects counting.
//
// Fails with ErrRoutineNotFound, ErrAlreadyPaused, ErrSkipped,
// ErrGoalExceeded, or ErrConcurrentModification, all without mutation.
func (l *Ledger) CompleteOne(ctx context.Context, id RoutineID, d Date, specificTime string) (*CompletionRecord, error) {
	r, err := l.requireRoutine(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.IsPausedOn(d) {
		return nil, ErrAlreadyPaused
	}

	ex, err := l.store.GetException(ctx, id, d)
	if err != nil {
		return nil, persistErr("get exception", err)
	}
	if ex != nil && ex.Skip {
		return nil, ErrSkipped
	}

	goal := EffectiveGoal(r, ex)

	// Pre-read to classify: a cell already at goal is a plain
	// ErrGoalExceeded, not a race. A missing record counts as zero, so a
	// non-positive goal (an override of 0) is full before the first write.
	// The pre-read is advisory only; the increment below re-checks the cap
	// atomically.
	existing, err := l.store.GetCompletion(ctx, id, d)
	if err != nil {
		return nil, persistErr("get completion", err)
	}
	count := 0
	if existing != nil {
		count = existing.Count
	}
	if count >= goal {
		return nil, &GoalExceededError{RoutineID: id, Date: d, Goal: goal}
	}

	rec, applied, err := l.store.IncrementCompletion(ctx, id, d, goal, l.now())
	if err != nil {
		return nil, persistErr("increment completion", err)
	}
	if !applied {
		// We observed count < goal but the store did not: a concurrent
		// caller filled the last slot. The caller should re-check
		// progress before reporting.
		return nil, ErrConcurrentModification
	}

	if err := invalidateProgress(ctx, l.cache, id, d); err != nil {
		l.logger.Warn("progress cache invalidation failed",
			zap.String("routine_id", string(id)),
			zap.String("date", d.String()),
			zap.Error(err),
		)
	}

	l.logger.Info("completion recorded",
		zap.String("routine_id", string(id)),
		zap.String("date", d.String()),
		zap.Int("count", rec.Count),
		zap.Int("goal", rec.Goal),
		zap.String("specific_time", specificTime),
	)
	return rec, nil
}

// =============================================================================
// PROGRESS - Read-only projection
// =============================================================================

// Progress returns the completion state of one (routine, date) cell. It
// never fails for a valid routine id: a date with no record reads as
// zero completions against the effective goal.
//
// Count and goal always come from a single record read, never composed
// from two reads taken at different times.
func (l *Ledger) Progress(ctx context.Context, id RoutineID, d Date) (*Progress, error) {
	r, err := l.requireRoutine(ctx, id)
	if err != nil {
		return nil, err
	}

	key := progressCacheKey(id, d)
	if l.cache != nil {
		if raw, ok, err := l.cache.Get(ctx, key); err != nil {
			l.logger.Warn("progress cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			var p Progress
			if json.Unmarshal(raw, &p) == nil {
				return &p, nil
			}
		}
	}

	ex, err := l.store.GetException(ctx, id, d)
	if err != nil {
		return nil, persistErr("get exception", err)
	}
	rec, err := l.store.GetCompletion(ctx, id, d)
	if err != nil {
		return nil, persistErr("get completion", err)
	}

	p := &Progress{
		Goal:    EffectiveGoal(r, ex),
		Skipped: ex != nil && ex.Skip,
		Paused:  r.IsPausedOn(d),
	}
	if rec != nil {
		p.Count = rec.Count
		p.Goal = rec.Goal
	}

	if l.cache != nil {
		if raw, err := json.Marshal(p); err == nil {
			if err := l.cache.Set(ctx, key, raw, l.progressTTL); err != nil {
				l.logger.Warn("progress cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return p, nil
}

func (l *Ledger) requireRoutine(ctx context.Context, id RoutineID) (*RoutineDefinition, error) {
	r, err := l.store.GetRoutine(ctx, id)
	if err != nil {
		return nil, persistErr("get routine", err)
	}
	if r == nil || r.IsDeleted() {
		return nil, ErrRoutineNotFound
	}
	return r, nil
}
