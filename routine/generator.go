/*
generator.go - Occurrence generation

PURPOSE:
  Answers "what is still due?" for a date range. The generator combines
  the routine definition, the schedule matcher, the exception store, and
  the completion ledger into a list of still-open slots. It is a pure
  read: safe to call repeatedly, deterministic between mutations, and the
  basis for rendering a calendar of outstanding obligations.

PER-DATE ALGORITHM (for each candidate date d):
  1. Reject if the routine is soft-deleted, d is outside the active
     window, or d is inside the pause window (d <= pausedUntil).
  2. Reject if an exception marks d skipped.
  3. Reject if the schedule does not match d.
  4. goal  = exception override ?? routine default
  5. count = completion record ?? 0
  6. remaining = max(0, goal - count); emit only if remaining > 0.
     Fully completed dates are not occurrences.
*/
package routine

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// Generator produces still-open occurrences. Reads only; it never writes
// exception or completion rows.
type Generator struct {
	store  Store
	logger *zap.Logger
}

func NewGenerator(store Store, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{store: store, logger: logger}
}

// Occurrences returns the still-open slots of every active routine in the
// range, ordered by date, then priority (high first), then name.
func (g *Generator) Occurrences(ctx context.Context, rng DateRange) ([]Occurrence, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}

	routines, err := g.store.ListRoutines(ctx, false)
	if err != nil {
		return nil, persistErr("list routines", err)
	}

	var all []Occurrence
	byID := make(map[RoutineID]*RoutineDefinition, len(routines))
	for i := range routines {
		r := &routines[i]
		byID[r.ID] = r
		occ, err := g.generate(ctx, r, rng)
		if err != nil {
			return nil, err
		}
		all = append(all, occ...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		ra, rb := byID[a.RoutineID], byID[b.RoutineID]
		if ra.Priority != rb.Priority {
			return ra.Priority.weight() < rb.Priority.weight()
		}
		return ra.Name < rb.Name
	})

	g.logger.Debug("occurrences generated",
		zap.String("range", rng.String()),
		zap.Int("routines", len(routines)),
		zap.Int("occurrences", len(all)),
	)
	return all, nil
}

// RoutineOccurrences returns the still-open slots of a single routine in
// the range, ordered by date.
func (g *Generator) RoutineOccurrences(ctx context.Context, id RoutineID, rng DateRange) ([]Occurrence, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}

	r, err := g.store.GetRoutine(ctx, id)
	if err != nil {
		return nil, persistErr("get routine", err)
	}
	if r == nil || r.IsDeleted() {
		return nil, ErrRoutineNotFound
	}
	return g.generate(ctx, r, rng)
}

// generate walks the candidate dates for one routine. Exceptions and
// completions are fetched with two range reads so a week of candidates
// costs two queries, not fourteen.
func (g *Generator) generate(ctx context.Context, r *RoutineDefinition, rng DateRange) ([]Occurrence, error) {
	if r.IsDeleted() {
		return nil, nil
	}

	exceptions, err := g.store.ExceptionsInRange(ctx, r.ID, rng.Start, rng.End)
	if err != nil {
		return nil, persistErr("exceptions in range", err)
	}
	completions, err := g.store.CompletionsInRange(ctx, r.ID, rng.Start, rng.End)
	if err != nil {
		return nil, persistErr("completions in range", err)
	}

	var out []Occurrence
	for _, d := range rng.Days() {
		if !r.InActiveWindow(d) || r.IsPausedOn(d) {
			continue
		}

		iso := d.String()
		ex, hasEx := exceptions[iso]
		if hasEx && ex.Skip {
			continue
		}
		if !r.Schedule.Matches(d) {
			continue
		}

		goal := r.TimesPerDay
		if hasEx && ex.OverrideTimesPerDay != nil {
			goal = *ex.OverrideTimesPerDay
		}

		count := 0
		if rec, ok := completions[iso]; ok {
			count = rec.Count
		}

		if remaining := goal - count; remaining > 0 {
			out = append(out, Occurrence{
				RoutineID: r.ID,
				Date:      d,
				Remaining: remaining,
				Goal:      goal,
			})
		}
	}
	return out, nil
}
