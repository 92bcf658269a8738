/*
errors.go - Centralized error types for the routine engine

PURPOSE:
  All expected failure modes in one place. Every error here is a
  recoverable, expected condition: it is returned to the caller as a typed
  error, never allowed to crash the process.

ERROR CATEGORIES:
  1. Domain errors - business-rule rejections (goal reached, skipped, paused)
  2. Range errors  - malformed bulk inputs
  3. Persistence errors - storage/backend failures, retryable

USAGE:
  Callers branch with errors.Is:

    if errors.Is(err, routine.ErrGoalExceeded) {
        // surface "already at goal" to the user, re-fetch progress
    }
*/
package routine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRoutineNotFound is returned when a routine does not exist or has
	// been soft-deleted.
	ErrRoutineNotFound = errors.New("routine not found")

	// ErrGoalExceeded is returned when a completion is attempted on a date
	// whose count already reached the effective goal. No state is mutated.
	ErrGoalExceeded = errors.New("daily goal already reached")

	// ErrSkipped is returned when a completion is attempted on a date an
	// exception marks as skipped.
	ErrSkipped = errors.New("date is marked skipped")

	// ErrAlreadyPaused is returned when a completion is attempted on a date
	// inside the pause window (date <= pausedUntil).
	ErrAlreadyPaused = errors.New("routine is paused for this date")

	// ErrInvalidDateRange is returned when a range's end precedes its start.
	ErrInvalidDateRange = errors.New("invalid date range: end before start")

	// ErrEmptyRange is returned when a bulk operation is called with no dates.
	ErrEmptyRange = errors.New("bulk operation requires at least one date")

	// ErrConcurrentModification is returned when the conditional increment
	// matched zero rows because a concurrent caller got there first. The
	// caller should re-check progress before reporting to the user.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidDefinition is returned when a routine definition fails
	// validation (empty name, goal < 1, malformed schedule).
	ErrInvalidDefinition = errors.New("invalid routine definition")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// GoalExceededError reports which (routine, date) cell was already full.
type GoalExceededError struct {
	RoutineID RoutineID
	Date      Date
	Goal      int
}

func (e *GoalExceededError) Error() string {
	return fmt.Sprintf("goal of %d already reached for %s on %s", e.Goal, e.RoutineID, e.Date)
}

func (e *GoalExceededError) Unwrap() error { return ErrGoalExceeded }

// PersistenceError wraps a storage-layer failure (backend unavailable,
// query error). Retryable, unlike domain errors.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is a business-rule rejection the
// caller should surface, not retry.
func IsClientError(err error) bool {
	return errors.Is(err, ErrGoalExceeded) ||
		errors.Is(err, ErrSkipped) ||
		errors.Is(err, ErrAlreadyPaused) ||
		errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrEmptyRange) ||
		errors.Is(err, ErrInvalidDefinition)
}

// IsNotFound returns true if the error indicates a missing routine.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRoutineNotFound)
}

// IsRetryable returns true if the operation might succeed on retry. For
// completions, callers should re-check progress first: the earlier attempt
// may have landed server-side before the failure was observed.
func IsRetryable(err error) bool {
	var pe *PersistenceError
	return errors.Is(err, ErrConcurrentModification) || errors.As(err, &pe)
}
