/*
bulk.go - Bulk operation engine

PURPOSE:
  Range-based mutations applied to many dates in one logical request:
  mass-delete of completion records and mass-skip of a period. Each
  operation writes one append-only BulkOperationRecord for traceability.

ATOMICITY:
  A bulk operation as a whole is NOT atomic. Per-date mutations are
  individually atomic and applied best-effort; DeleteOccurrences reports
  which dates succeeded and which failed instead of aborting. There is no
  automatic undo: the audit record is a trail, not a journal.

DESIGN CHOICE (documented, not reconciled):
  SkipPeriod does not touch existing completion records. A date completed
  before being retroactively skipped keeps its count; the skip only
  prevents future generation and completion on that date.
*/
package routine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BulkEngine fans range operations out into the exception and completion
// stores and records the audit trail.
type BulkEngine struct {
	store      Store
	exceptions *ExceptionManager
	cache      Cache
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

func NewBulkEngine(store Store, exceptions *ExceptionManager, cache Cache, logger *zap.Logger) *BulkEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkEngine{
		store:      store,
		exceptions: exceptions,
		cache:      cache,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// BulkResult reports the per-date outcome of a best-effort operation.
type BulkResult struct {
	Succeeded []Date
	Failed    []Date
}

// =============================================================================
// DELETE OCCURRENCES - Mass-delete completion records
// =============================================================================

// DeleteOccurrences removes the completion record for each date, resetting
// its count to zero on next read. Exception entries are untouched, so a
// deleted date re-appears as due unless it is also skipped.
//
// Best-effort per date: deleting a missing record is a no-op success, and
// a storage failure on one date does not abort the rest. Calling it twice
// is safe; the second call reports every date as succeeded.
func (e *BulkEngine) DeleteOccurrences(ctx context.Context, id RoutineID, dates []Date) (*BulkResult, error) {
	if len(dates) == 0 {
		return nil, ErrEmptyRange
	}
	if err := e.requireRoutine(ctx, id); err != nil {
		return nil, err
	}

	result := &BulkResult{}
	for _, d := range dates {
		if err := e.store.DeleteCompletion(ctx, id, d); err != nil {
			e.logger.Error("bulk delete failed for date",
				zap.String("routine_id", string(id)), zap.String("date", d.String()), zap.Error(err))
			result.Failed = append(result.Failed, d)
			continue
		}
		if err := invalidateProgress(ctx, e.cache, id, d); err != nil {
			e.logger.Warn("progress cache invalidation failed",
				zap.String("routine_id", string(id)), zap.String("date", d.String()), zap.Error(err))
		}
		result.Succeeded = append(result.Succeeded, d)
	}

	start, end := boundsOf(dates)
	if err := e.appendRecord(ctx, BulkOperationRecord{
		ID:            e.newID(),
		RoutineID:     id,
		OperationType: BulkDeleteOccurrences,
		StartDate:     start,
		EndDate:       end,
		AffectedDates: dates,
		CreatedAt:     e.now(),
	}); err != nil {
		return result, err
	}

	e.logger.Info("bulk delete applied",
		zap.String("routine_id", string(id)),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// =============================================================================
// SKIP PERIOD - Mass-skip an inclusive range
// =============================================================================

// SkipPeriod marks every calendar date in [start, end] skipped, schedule
// match or not; skipping a non-scheduled date is a harmless marker, not
// an error. Existing completion records are left intact.
func (e *BulkEngine) SkipPeriod(ctx context.Context, id RoutineID, start, end Date) error {
	rng := DateRange{Start: start, End: end}
	if err := rng.Validate(); err != nil {
		return err
	}
	if err := e.requireRoutine(ctx, id); err != nil {
		return err
	}

	skip := true
	days := rng.Days()
	for _, d := range days {
		if err := e.exceptions.SetException(ctx, id, d, ExceptionPatch{Skip: &skip}); err != nil {
			// Partial application is acceptable; already-skipped dates
			// stay skipped. Surface the failure with its date.
			e.logger.Error("bulk skip aborted",
				zap.String("routine_id", string(id)), zap.String("date", d.String()), zap.Error(err))
			return err
		}
	}

	if err := e.appendRecord(ctx, BulkOperationRecord{
		ID:            e.newID(),
		RoutineID:     id,
		OperationType: BulkSkipPeriod,
		StartDate:     start,
		EndDate:       end,
		AffectedDates: days,
		CreatedAt:     e.now(),
	}); err != nil {
		return err
	}

	e.logger.Info("bulk skip applied",
		zap.String("routine_id", string(id)),
		zap.String("range", rng.String()),
		zap.Int("dates", len(days)),
	)
	return nil
}

// Operations returns the routine's audit trail, newest first.
func (e *BulkEngine) Operations(ctx context.Context, id RoutineID) ([]BulkOperationRecord, error) {
	if err := e.requireRoutine(ctx, id); err != nil {
		return nil, err
	}
	recs, err := e.store.BulkOperations(ctx, id)
	if err != nil {
		return nil, persistErr("list bulk operations", err)
	}
	return recs, nil
}

func (e *BulkEngine) appendRecord(ctx context.Context, rec BulkOperationRecord) error {
	if err := e.store.AppendBulkOperation(ctx, rec); err != nil {
		return persistErr("append bulk operation", err)
	}
	return nil
}

func (e *BulkEngine) requireRoutine(ctx context.Context, id RoutineID) error {
	r, err := e.store.GetRoutine(ctx, id)
	if err != nil {
		return persistErr("get routine", err)
	}
	if r == nil || r.IsDeleted() {
		return ErrRoutineNotFound
	}
	return nil
}

func boundsOf(dates []Date) (Date, Date) {
	start, end := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(start) {
			start = d
		}
		if d.After(end) {
			end = d
		}
	}
	return start, end
}
