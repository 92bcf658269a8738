/*
exceptions.go - Exception manager

PURPOSE:
  Single write path for the per-date override layer and the routine-level
  pause / active-window bounds. Patches merge field-by-field: a field
  absent from the patch leaves the prior value untouched, never resets it.
  An entry left with no overrides after a merge is pruned rather than
  stored: absence and an all-unset entry are equivalent.
*/
package routine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ExceptionManager mutates exception entries and the pause/active bounds.
// Nothing else in the engine writes exception rows (the bulk engine's
// skips go through SetException too).
type ExceptionManager struct {
	store  Store
	cache  Cache
	logger *zap.Logger
	now    func() time.Time
}

func NewExceptionManager(store Store, cache Cache, logger *zap.Logger) *ExceptionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExceptionManager{store: store, cache: cache, logger: logger, now: time.Now}
}

// SetException merges the patch into the entry for (id, date), creating it
// on first touch and pruning it if the merge leaves nothing set.
func (m *ExceptionManager) SetException(ctx context.Context, id RoutineID, d Date, patch ExceptionPatch) error {
	// A zero or negative override would make the date's cap unreachable
	// before the first completion; skipping is the way to express "none
	// today".
	if patch.OverrideTimesPerDay != nil && *patch.OverrideTimesPerDay < 1 {
		return fmt.Errorf("%w: override times per day must be at least 1, got %d",
			ErrInvalidDefinition, *patch.OverrideTimesPerDay)
	}
	if err := m.requireRoutine(ctx, id); err != nil {
		return err
	}

	existing, err := m.store.GetException(ctx, id, d)
	if err != nil {
		return persistErr("get exception", err)
	}

	entry := ExceptionEntry{RoutineID: id, Date: d}
	if existing != nil {
		entry = *existing
	}
	if patch.Skip != nil {
		entry.Skip = *patch.Skip
	}
	if patch.OverrideTimesPerDay != nil {
		entry.OverrideTimesPerDay = patch.OverrideTimesPerDay
	}
	if patch.OverrideTimes != nil {
		entry.OverrideTimes = patch.OverrideTimes
	}

	if entry.IsZero() {
		if err := m.store.DeleteException(ctx, id, d); err != nil {
			return persistErr("delete exception", err)
		}
	} else if err := m.store.PutException(ctx, entry); err != nil {
		return persistErr("put exception", err)
	}

	if err := invalidateProgress(ctx, m.cache, id, d); err != nil {
		m.logger.Warn("progress cache invalidation failed",
			zap.String("routine_id", string(id)), zap.String("date", d.String()), zap.Error(err))
	}

	m.logger.Info("exception updated",
		zap.String("routine_id", string(id)),
		zap.String("date", d.String()),
		zap.Bool("skip", entry.Skip),
		zap.Bool("pruned", entry.IsZero()),
	)
	return nil
}

// PauseUntil sets the routine's pause bound. All dates <= until stop
// generating occurrences and reject completions. A nil until (or a past
// date) un-pauses.
func (m *ExceptionManager) PauseUntil(ctx context.Context, id RoutineID, until *Date) error {
	return m.updateRoutine(ctx, id, "pause updated", func(r *RoutineDefinition) {
		r.PausedUntil = until
	})
}

// SetActiveTo sets or clears the routine's inclusive upper active-date
// bound.
func (m *ExceptionManager) SetActiveTo(ctx context.Context, id RoutineID, until *Date) error {
	return m.updateRoutine(ctx, id, "active window updated", func(r *RoutineDefinition) {
		r.ActiveTo = until
	})
}

func (m *ExceptionManager) updateRoutine(ctx context.Context, id RoutineID, msg string, mutate func(*RoutineDefinition)) error {
	r, err := m.store.GetRoutine(ctx, id)
	if err != nil {
		return persistErr("get routine", err)
	}
	if r == nil || r.IsDeleted() {
		return ErrRoutineNotFound
	}

	mutate(r)
	r.UpdatedAt = m.now()
	if err := m.store.PutRoutine(ctx, *r); err != nil {
		return persistErr("put routine", err)
	}

	// Routine-level bounds affect an unbounded set of dates; drop every
	// cached cell for the routine.
	if err := invalidateRoutine(ctx, m.cache, id); err != nil {
		m.logger.Warn("routine cache invalidation failed",
			zap.String("routine_id", string(id)), zap.Error(err))
	}

	m.logger.Info(msg, zap.String("routine_id", string(id)))
	return nil
}

func (m *ExceptionManager) requireRoutine(ctx context.Context, id RoutineID) error {
	r, err := m.store.GetRoutine(ctx, id)
	if err != nil {
		return persistErr("get routine", err)
	}
	if r == nil || r.IsDeleted() {
		return ErrRoutineNotFound
	}
	return nil
}
