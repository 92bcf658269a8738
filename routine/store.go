/*
store.go - Persistence interfaces for the routine engine

PURPOSE:
  Defines the contract between the engine and its storage collaborator.
  The engine treats storage as a generic transactional row store reached
  through get/put/delete operations keyed by (routineID, date) for
  exceptions and completions, and by routineID for definitions, plus one
  conditional atomic primitive for completion increments.

KEY INTERFACES:
  RoutineStore:    Definition CRUD (soft delete aware)
  ExceptionStore:  Per-date overrides
  CompletionStore: Progress rows + the conditional increment
  AuditLog:        Append-only bulk-operation records

THE CONDITIONAL INCREMENT:
  IncrementCompletion is the single write primitive that keeps the goal
  cap safe under concurrency. It must be implemented as one atomic
  operation equivalent to

    INSERT ... ON CONFLICT DO UPDATE SET count = count + 1
    WHERE count < goal

  reporting via its boolean whether any row actually changed. Implementing
  it as a read-then-write in application code is not acceptable: two
  concurrent callers could both observe count < goal and each apply +1.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - routine/store: in-memory store for tests and development
*/
package routine

import (
	"context"
	"time"
)

// =============================================================================
// ROUTINE STORE - Definition persistence
// =============================================================================

// RoutineStore persists routine definitions, keyed by RoutineID.
// Get returns (nil, nil) when the id is unknown; soft-deleted definitions
// are still returned so callers can distinguish "gone" from "never was".
type RoutineStore interface {
	PutRoutine(ctx context.Context, r RoutineDefinition) error
	GetRoutine(ctx context.Context, id RoutineID) (*RoutineDefinition, error)

	// ListRoutines returns definitions ordered by name. Soft-deleted
	// definitions are excluded unless includeDeleted is set.
	ListRoutines(ctx context.Context, includeDeleted bool) ([]RoutineDefinition, error)

	// PurgeRoutine hard-deletes a definition and cascades to all child
	// rows (exceptions, completions, bulk-operation records).
	PurgeRoutine(ctx context.Context, id RoutineID) error
}

// =============================================================================
// EXCEPTION STORE - Per-date overrides, keyed by (routineID, date)
// =============================================================================

type ExceptionStore interface {
	// GetException returns (nil, nil) when no entry exists for the date.
	GetException(ctx context.Context, id RoutineID, d Date) (*ExceptionEntry, error)

	PutException(ctx context.Context, e ExceptionEntry) error

	// DeleteException removes an entry; deleting a missing entry is a no-op.
	DeleteException(ctx context.Context, id RoutineID, d Date) error

	// ExceptionsInRange returns entries for [from, to], keyed by ISO date.
	ExceptionsInRange(ctx context.Context, id RoutineID, from, to Date) (map[string]ExceptionEntry, error)
}

// =============================================================================
// COMPLETION STORE - Progress rows, keyed by (routineID, date)
// =============================================================================

type CompletionStore interface {
	// GetCompletion returns (nil, nil) when no record exists for the date.
	GetCompletion(ctx context.Context, id RoutineID, d Date) (*CompletionRecord, error)

	// IncrementCompletion atomically creates the record with count 1 or
	// increments an existing one, but only while count < goal. The goal
	// snapshot and completedAt are refreshed on every applied write.
	// Returns the row after the attempt and whether the write applied;
	// applied == false means the condition failed (count already at goal).
	IncrementCompletion(ctx context.Context, id RoutineID, d Date, goal int, at time.Time) (*CompletionRecord, bool, error)

	// DeleteCompletion removes a record; deleting a missing record is a
	// no-op (count reads as 0 afterwards).
	DeleteCompletion(ctx context.Context, id RoutineID, d Date) error

	// CompletionsInRange returns records for [from, to], keyed by ISO date.
	CompletionsInRange(ctx context.Context, id RoutineID, from, to Date) (map[string]CompletionRecord, error)
}

// =============================================================================
// AUDIT LOG - Append-only bulk-operation trail
// =============================================================================

// AuditLog records bulk operations for traceability. Append-only: records
// are never mutated, and nothing replays them for undo.
type AuditLog interface {
	AppendBulkOperation(ctx context.Context, rec BulkOperationRecord) error

	// BulkOperations returns a routine's records, newest first.
	BulkOperations(ctx context.Context, id RoutineID) ([]BulkOperationRecord, error)
}

// Store is the full storage surface the engine wires against.
type Store interface {
	RoutineStore
	ExceptionStore
	CompletionStore
	AuditLog
}
