/*
Package routine is the core engine for recurring personal obligations.

PURPOSE:
  A routine is a recurring obligation ("drink water 3x/day", "stretch on
  Mon/Wed/Fri") defined by a declarative recurrence rule and a daily goal.
  This package reconciles that rule against a sparse ledger of completions,
  date-level overrides, pause windows, and bulk range operations.

KEY CONCEPTS IN THIS FILE (types.go):
  - RoutineDefinition: The recurrence rule plus active/pause windows
  - ExceptionEntry:    Per-date override layered on top of the schedule
  - CompletionRecord:  Per-(routine, date) progress, capped at the goal
  - BulkOperationRecord: Append-only audit row for range operations
  - Occurrence:        A still-open slot on a specific date (derived)

DESIGN PRINCIPLES:
  1. Occurrences are derived, never stored; generation is a pure read.
  2. Completion counting is guarded by a conditional atomic increment so
     concurrent callers can never push count past the goal.
  3. Soft delete preserves ledger history; only an explicit purge cascades.
  4. Dates are exchanged as ISO strings, never timestamps.

SEE ALSO:
  - schedule.go:   Recurrence matching
  - generator.go:  Occurrence generation
  - ledger.go:     Completion counting
  - exceptions.go: Override and pause management
  - bulk.go:       Range skip/delete with audit trail
  - store.go:      Persistence interfaces
*/
package routine

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RoutineID string

// =============================================================================
// PRIORITY
// =============================================================================

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// weight orders priorities for stable occurrence sorting (high first).
func (p Priority) weight() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// =============================================================================
// ROUTINE DEFINITION - The recurrence rule
// =============================================================================

// RoutineDefinition describes a recurring obligation: how often it recurs,
// how many completions a day it expects, and the window in which it is live.
type RoutineDefinition struct {
	ID       RoutineID
	Name     string
	Color    string
	Priority Priority

	// TimesPerDay is the default daily goal (>= 1). A per-date override in
	// the exception store takes precedence for that date only.
	TimesPerDay int

	Schedule Schedule

	// ActiveFrom is the inclusive lower bound of the routine's life.
	// ActiveTo, when set, is the inclusive upper bound.
	ActiveFrom Date
	ActiveTo   *Date

	// PausedUntil suppresses all dates <= its value: no occurrences are
	// generated and completions are rejected. Cleared (or set to a past
	// date) to un-pause.
	PausedUntil *Date

	// DeletedAt marks a soft delete. Soft-deleted routines are excluded
	// from generation and mutation but keep their ledger history.
	DeletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *RoutineDefinition) IsDeleted() bool { return r.DeletedAt != nil }

// IsPausedOn reports whether the date falls inside the pause window.
// The window is inclusive: date == PausedUntil is still paused.
func (r *RoutineDefinition) IsPausedOn(d Date) bool {
	return r.PausedUntil != nil && d.BeforeOrEqual(*r.PausedUntil)
}

// InActiveWindow reports whether the date falls inside [ActiveFrom, ActiveTo].
func (r *RoutineDefinition) InActiveWindow(d Date) bool {
	if d.Before(r.ActiveFrom) {
		return false
	}
	if r.ActiveTo != nil && d.After(*r.ActiveTo) {
		return false
	}
	return true
}

// =============================================================================
// EXCEPTION ENTRY - Per-date override
// =============================================================================

// ExceptionEntry overrides a routine's behavior on a single date. An entry
// with all fields unset is equivalent to absence; the exception manager
// prunes such entries rather than storing them.
type ExceptionEntry struct {
	RoutineID RoutineID
	Date      Date

	// Skip suppresses the occurrence for this date regardless of schedule
	// match, and rejects completion attempts.
	Skip bool

	// OverrideTimesPerDay replaces the routine's default goal for this
	// date only, for both generation and completion.
	OverrideTimesPerDay *int

	// OverrideTimes is an advisory ordered list of time-of-day strings.
	// It never affects counting.
	OverrideTimes []string
}

// IsZero reports whether the entry carries no override at all.
func (e ExceptionEntry) IsZero() bool {
	return !e.Skip && e.OverrideTimesPerDay == nil && len(e.OverrideTimes) == 0
}

// ExceptionPatch is a partial update for an exception entry. Nil fields
// leave the prior value untouched; they are never reset to defaults.
type ExceptionPatch struct {
	Skip                *bool
	OverrideTimesPerDay *int
	OverrideTimes       []string
}

// EffectiveGoal resolves the daily goal for a date: the exception's
// override when present, otherwise the routine's default.
func EffectiveGoal(r *RoutineDefinition, ex *ExceptionEntry) int {
	if ex != nil && ex.OverrideTimesPerDay != nil {
		return *ex.OverrideTimesPerDay
	}
	return r.TimesPerDay
}

// =============================================================================
// COMPLETION RECORD - Per-(routine, date) progress
// =============================================================================

// CompletionRecord tracks how many slots of a routine were completed on a
// date. Created on the first completion; mutated only through the ledger's
// conditional increment and bulk deletions.
type CompletionRecord struct {
	RoutineID RoutineID
	Date      Date

	// Count is the number of completed slots, 0 <= Count <= Goal.
	Count int

	// Goal is a snapshot of the effective goal at last write. It defends
	// history against later goal edits.
	Goal int

	// CompletedAt is the timestamp of the most recent increment.
	CompletedAt time.Time
}

// Progress is a read-only projection of a single (routine, date) cell:
// the completion state combined with the skip and pause flags.
type Progress struct {
	Count   int  `json:"count"`
	Goal    int  `json:"goal"`
	Skipped bool `json:"skipped"`
	Paused  bool `json:"paused"`
}

// =============================================================================
// OCCURRENCE - A still-open slot (derived, never stored)
// =============================================================================

// Occurrence is one still-due date of a routine. Fully completed dates are
// not occurrences; consumers render those as done from the ledger instead.
type Occurrence struct {
	RoutineID RoutineID `json:"routine_id"`
	Date      Date      `json:"date"`
	Remaining int       `json:"remaining"`
	Goal      int       `json:"goal"`
}

// =============================================================================
// BULK OPERATION RECORD - Append-only audit trail
// =============================================================================

type BulkOperationType string

const (
	BulkDeleteOccurrences BulkOperationType = "delete_occurrences"
	BulkSkipPeriod        BulkOperationType = "skip_period"
)

// BulkOperationRecord is the write-once audit row for a range operation.
// It exists for traceability only; nothing replays it for undo.
type BulkOperationRecord struct {
	ID            string
	RoutineID     RoutineID
	OperationType BulkOperationType
	StartDate     Date
	EndDate       Date
	AffectedDates []Date
	CreatedAt     time.Time
}
