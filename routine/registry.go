/*
registry.go - Routine definition store

PURPOSE:
  CRUD for the recurrence rule itself. Deletion is soft by default so the
  completion ledger and audit trail keep their history; only an explicit
  purge removes a definition and cascades to its child rows.
*/
package routine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry owns the lifecycle of routine definitions.
type Registry struct {
	store  Store
	cache  Cache
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewRegistry(store Store, cache Cache, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, cache: cache, logger: logger, now: time.Now, newID: uuid.NewString}
}

// RoutinePatch is a partial definition update. Nil fields are untouched.
// Pause and active-window bounds are edited through the exception manager,
// not here.
type RoutinePatch struct {
	Name        *string
	Color       *string
	Priority    *Priority
	TimesPerDay *int
	Schedule    *Schedule
	ActiveFrom  *Date
}

// Create validates and stores a new definition. A missing ID is assigned;
// missing priority defaults to medium.
func (g *Registry) Create(ctx context.Context, def RoutineDefinition) (*RoutineDefinition, error) {
	if def.ID == "" {
		def.ID = RoutineID(g.newID())
	}
	if def.Priority == "" {
		def.Priority = PriorityMedium
	}
	if err := validateDefinition(&def); err != nil {
		return nil, err
	}

	now := g.now()
	def.CreatedAt = now
	def.UpdatedAt = now
	def.DeletedAt = nil

	if err := g.store.PutRoutine(ctx, def); err != nil {
		return nil, persistErr("put routine", err)
	}

	g.logger.Info("routine created",
		zap.String("routine_id", string(def.ID)),
		zap.String("name", def.Name),
		zap.String("schedule", string(def.Schedule.Type)),
		zap.Int("times_per_day", def.TimesPerDay),
	)
	return &def, nil
}

// Update applies a partial edit to an existing, non-deleted definition.
func (g *Registry) Update(ctx context.Context, id RoutineID, patch RoutinePatch) (*RoutineDefinition, error) {
	r, err := g.requireRoutine(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		r.Name = *patch.Name
	}
	if patch.Color != nil {
		r.Color = *patch.Color
	}
	if patch.Priority != nil {
		r.Priority = *patch.Priority
	}
	if patch.TimesPerDay != nil {
		r.TimesPerDay = *patch.TimesPerDay
	}
	if patch.Schedule != nil {
		r.Schedule = *patch.Schedule
	}
	if patch.ActiveFrom != nil {
		r.ActiveFrom = *patch.ActiveFrom
	}
	if err := validateDefinition(r); err != nil {
		return nil, err
	}

	r.UpdatedAt = g.now()
	if err := g.store.PutRoutine(ctx, *r); err != nil {
		return nil, persistErr("put routine", err)
	}

	// A goal or schedule edit changes what readers derive for every date.
	if err := invalidateRoutine(ctx, g.cache, id); err != nil {
		g.logger.Warn("routine cache invalidation failed",
			zap.String("routine_id", string(id)), zap.Error(err))
	}

	g.logger.Info("routine updated", zap.String("routine_id", string(id)))
	return r, nil
}

// SoftDelete excludes the routine from all generation and mutation while
// retaining its ledger history.
func (g *Registry) SoftDelete(ctx context.Context, id RoutineID) error {
	r, err := g.requireRoutine(ctx, id)
	if err != nil {
		return err
	}

	now := g.now()
	r.DeletedAt = &now
	r.UpdatedAt = now
	if err := g.store.PutRoutine(ctx, *r); err != nil {
		return persistErr("put routine", err)
	}
	if err := invalidateRoutine(ctx, g.cache, id); err != nil {
		g.logger.Warn("routine cache invalidation failed",
			zap.String("routine_id", string(id)), zap.Error(err))
	}

	g.logger.Info("routine soft-deleted", zap.String("routine_id", string(id)))
	return nil
}

// Purge hard-deletes the definition and cascades to exceptions,
// completions, and bulk-operation records. History is gone after this.
func (g *Registry) Purge(ctx context.Context, id RoutineID) error {
	r, err := g.store.GetRoutine(ctx, id)
	if err != nil {
		return persistErr("get routine", err)
	}
	if r == nil {
		return ErrRoutineNotFound
	}

	if err := g.store.PurgeRoutine(ctx, id); err != nil {
		return persistErr("purge routine", err)
	}
	if err := invalidateRoutine(ctx, g.cache, id); err != nil {
		g.logger.Warn("routine cache invalidation failed",
			zap.String("routine_id", string(id)), zap.Error(err))
	}

	g.logger.Info("routine purged", zap.String("routine_id", string(id)))
	return nil
}

// Get returns a non-deleted definition.
func (g *Registry) Get(ctx context.Context, id RoutineID) (*RoutineDefinition, error) {
	return g.requireRoutine(ctx, id)
}

// List returns definitions ordered by name. Soft-deleted ones are included
// only when includeDeleted is set (history views).
func (g *Registry) List(ctx context.Context, includeDeleted bool) ([]RoutineDefinition, error) {
	routines, err := g.store.ListRoutines(ctx, includeDeleted)
	if err != nil {
		return nil, persistErr("list routines", err)
	}
	return routines, nil
}

func (g *Registry) requireRoutine(ctx context.Context, id RoutineID) (*RoutineDefinition, error) {
	r, err := g.store.GetRoutine(ctx, id)
	if err != nil {
		return nil, persistErr("get routine", err)
	}
	if r == nil || r.IsDeleted() {
		return nil, ErrRoutineNotFound
	}
	return r, nil
}

func validateDefinition(def *RoutineDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if def.TimesPerDay < 1 {
		return fmt.Errorf("%w: times per day must be at least 1, got %d", ErrInvalidDefinition, def.TimesPerDay)
	}
	if !def.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidDefinition, def.Priority)
	}
	if !def.Schedule.Valid() {
		return fmt.Errorf("%w: malformed schedule %q", ErrInvalidDefinition, def.Schedule.Type)
	}
	if def.ActiveFrom.IsZero() {
		return fmt.Errorf("%w: active-from date is required", ErrInvalidDefinition)
	}
	if def.ActiveTo != nil && def.ActiveTo.Before(def.ActiveFrom) {
		return ErrInvalidDateRange
	}
	return nil
}
