// Package store provides an in-memory routine.Store implementation for
// tests and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/routine-engine/routine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements routine.Store with mutex-guarded maps. The conditional
// increment holds the write lock for the whole check-and-apply, giving it
// the same atomicity the SQLite store gets from a single statement.
type Memory struct {
	mu          sync.RWMutex
	routines    map[routine.RoutineID]routine.RoutineDefinition
	exceptions  map[cellKey]routine.ExceptionEntry
	completions map[cellKey]routine.CompletionRecord
	operations  map[routine.RoutineID][]routine.BulkOperationRecord
}

// cellKey addresses one (routine, date) cell.
type cellKey struct {
	ID  routine.RoutineID
	ISO string
}

func NewMemory() *Memory {
	return &Memory{
		routines:    make(map[routine.RoutineID]routine.RoutineDefinition),
		exceptions:  make(map[cellKey]routine.ExceptionEntry),
		completions: make(map[cellKey]routine.CompletionRecord),
		operations:  make(map[routine.RoutineID][]routine.BulkOperationRecord),
	}
}

var _ routine.Store = (*Memory)(nil)

// =============================================================================
// ROUTINE STORE
// =============================================================================

func (m *Memory) PutRoutine(_ context.Context, r routine.RoutineDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routines[r.ID] = r
	return nil
}

func (m *Memory) GetRoutine(_ context.Context, id routine.RoutineID) (*routine.RoutineDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.routines[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Memory) ListRoutines(_ context.Context, includeDeleted bool) ([]routine.RoutineDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []routine.RoutineDefinition
	for _, r := range m.routines {
		if r.IsDeleted() && !includeDeleted {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) PurgeRoutine(_ context.Context, id routine.RoutineID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.routines, id)
	delete(m.operations, id)
	for k := range m.exceptions {
		if k.ID == id {
			delete(m.exceptions, k)
		}
	}
	for k := range m.completions {
		if k.ID == id {
			delete(m.completions, k)
		}
	}
	return nil
}

// =============================================================================
// EXCEPTION STORE
// =============================================================================

func (m *Memory) GetException(_ context.Context, id routine.RoutineID, d routine.Date) (*routine.ExceptionEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exceptions[cellKey{ID: id, ISO: d.String()}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) PutException(_ context.Context, e routine.ExceptionEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exceptions[cellKey{ID: e.RoutineID, ISO: e.Date.String()}] = e
	return nil
}

func (m *Memory) DeleteException(_ context.Context, id routine.RoutineID, d routine.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.exceptions, cellKey{ID: id, ISO: d.String()})
	return nil
}

func (m *Memory) ExceptionsInRange(_ context.Context, id routine.RoutineID, from, to routine.Date) (map[string]routine.ExceptionEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rng := routine.DateRange{Start: from, End: to}
	out := make(map[string]routine.ExceptionEntry)
	for k, e := range m.exceptions {
		if k.ID == id && rng.Contains(e.Date) {
			out[k.ISO] = e
		}
	}
	return out, nil
}

// =============================================================================
// COMPLETION STORE
// =============================================================================

func (m *Memory) GetCompletion(_ context.Context, id routine.RoutineID, d routine.Date) (*routine.CompletionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.completions[cellKey{ID: id, ISO: d.String()}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) IncrementCompletion(_ context.Context, id routine.RoutineID, d routine.Date, goal int, at time.Time) (*routine.CompletionRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := cellKey{ID: id, ISO: d.String()}
	rec, ok := m.completions[k]
	if !ok {
		// A non-positive goal has no room even for a first write.
		if goal < 1 {
			return nil, false, nil
		}
		rec = routine.CompletionRecord{
			RoutineID:   id,
			Date:        d,
			Count:       1,
			Goal:        goal,
			CompletedAt: at,
		}
		m.completions[k] = rec
		return &rec, true, nil
	}

	if rec.Count >= goal {
		return &rec, false, nil
	}
	rec.Count++
	rec.Goal = goal
	rec.CompletedAt = at
	m.completions[k] = rec
	return &rec, true, nil
}

func (m *Memory) DeleteCompletion(_ context.Context, id routine.RoutineID, d routine.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.completions, cellKey{ID: id, ISO: d.String()})
	return nil
}

func (m *Memory) CompletionsInRange(_ context.Context, id routine.RoutineID, from, to routine.Date) (map[string]routine.CompletionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rng := routine.DateRange{Start: from, End: to}
	out := make(map[string]routine.CompletionRecord)
	for k, rec := range m.completions {
		if k.ID == id && rng.Contains(rec.Date) {
			out[k.ISO] = rec
		}
	}
	return out, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendBulkOperation(_ context.Context, rec routine.BulkOperationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[rec.RoutineID] = append(m.operations[rec.RoutineID], rec)
	return nil
}

func (m *Memory) BulkOperations(_ context.Context, id routine.RoutineID) ([]routine.BulkOperationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.operations[id]
	out := make([]routine.BulkOperationRecord, len(recs))
	copy(out, recs)
	// Newest first.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
