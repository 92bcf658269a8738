package routine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/routine-engine/routine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================
// Store and fixture helpers are defined in ledger_test.go.

func week() routine.DateRange {
	// 2024-01-07 is a Sunday; a full Sun-Sat week.
	return routine.DateRange{
		Start: routine.MustDate("2024-01-07"),
		End:   routine.MustDate("2024-01-13"),
	}
}

// =============================================================================
// SCHEDULE / RANGE TESTS
// =============================================================================

func TestGenerator_Weekly_MonWed_YieldsTwoDates(t *testing.T) {
	// GIVEN: A weekly Mon/Wed routine
	// WHEN: Generating a Sun-Sat week
	// THEN: Exactly the Monday and Wednesday appear, remaining=1 each

	st := newTestStore()
	seed(t, st, weeklyRoutine("stretch", time.Monday, time.Wednesday))
	gen := routine.NewGenerator(st, nil)

	occ, err := gen.RoutineOccurrences(context.Background(), "stretch", week())
	require.NoError(t, err)
	require.Len(t, occ, 2)
	assert.Equal(t, "2024-01-08", occ[0].Date.String())
	assert.Equal(t, "2024-01-10", occ[1].Date.String())
	for _, o := range occ {
		assert.Equal(t, 1, o.Remaining)
		assert.Equal(t, 1, o.Goal)
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	// Two calls with no intervening mutation return identical results.

	st := newTestStore()
	seed(t, st, dailyRoutine("agua", 3), weeklyRoutine("stretch", time.Monday))
	gen := routine.NewGenerator(st, nil)
	ctx := context.Background()

	first, err := gen.Occurrences(ctx, week())
	require.NoError(t, err)
	second, err := gen.Occurrences(ctx, week())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGenerator_SkipException_RemovesDate(t *testing.T) {
	// GIVEN: Weekly Mon/Wed with 2024-01-08 (the Monday) marked skipped
	// THEN: Only the Wednesday appears; skip beats schedule match

	st := newTestStore()
	seed(t, st, weeklyRoutine("stretch", time.Monday, time.Wednesday))
	ctx := context.Background()

	require.NoError(t, st.PutException(ctx, routine.ExceptionEntry{
		RoutineID: "stretch", Date: routine.MustDate("2024-01-08"), Skip: true,
	}))

	gen := routine.NewGenerator(st, nil)
	occ, err := gen.RoutineOccurrences(ctx, "stretch", week())
	require.NoError(t, err)
	require.Len(t, occ, 1)
	assert.Equal(t, "2024-01-10", occ[0].Date.String())
}

func TestGenerator_GoalOverride_AffectsRemaining(t *testing.T) {
	st := newTestStore()
	seed(t, st, dailyRoutine("agua", 3))
	ctx := context.Background()
	day := routine.MustDate("2024-01-08")

	require.NoError(t, st.PutException(ctx, routine.ExceptionEntry{
		RoutineID: "agua", Date: day, OverrideTimesPerDay: intPtr(5),
	}))

	gen := routine.NewGenerator(st, nil)
	occ, err := gen.RoutineOccurrences(ctx, "agua", routine.DateRange{Start: day, End: day})
	require.NoError(t, err)
	require.Len(t, occ, 1)
	assert.Equal(t, 5, occ[0].Goal)
	assert.Equal(t, 5, occ[0].Remaining)
}

func TestGenerator_PartialAndFullCompletion(t *testing.T) {
	// A partially completed date reports the remainder; a fully completed
	// date is not an occurrence at all.

	st := newTestStore()
	seed(t, st, dailyRoutine("agua", 3))
	ledger := routine.NewLedger(st, nil, nil)
	gen := routine.NewGenerator(st, nil)
	ctx := context.Background()

	partial := routine.MustDate("2024-01-08")
	full := routine.MustDate("2024-01-09")

	for i := 0; i < 2; i++ {
		_, err := ledger.CompleteOne(ctx, "agua", partial, "")
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := ledger.CompleteOne(ctx, "agua", full, "")
		require.NoError(t, err)
	}

	occ, err := gen.RoutineOccurrences(ctx, "agua", routine.DateRange{Start: partial, End: full})
	require.NoError(t, err)
	require.Len(t, occ, 1)
	assert.Equal(t, partial.String(), occ[0].Date.String())
	assert.Equal(t, 1, occ[0].Remaining)
}

// =============================================================================
// WINDOW TESTS
// =============================================================================

func TestGenerator_ActiveWindow_Bounds(t *testing.T) {
	st := newTestStore()
	def := dailyRoutine("agua", 1)
	def.ActiveFrom = routine.MustDate("2024-01-09")
	def.ActiveTo = datePtr("2024-01-11")
	seed(t, st, def)

	gen := routine.NewGenerator(st, nil)
	occ, err := gen.RoutineOccurrences(context.Background(), "agua", week())
	require.NoError(t, err)

	var dates []string
	for _, o := range occ {
		dates = append(dates, o.Date.String())
	}
	assert.Equal(t, []string{"2024-01-09", "2024-01-10", "2024-01-11"}, dates,
		"both active bounds are inclusive")
}

func TestGenerator_PauseWindow_Inclusive(t *testing.T) {
	st := newTestStore()
	def := dailyRoutine("agua", 1)
	def.PausedUntil = datePtr("2024-01-10")
	seed(t, st, def)

	gen := routine.NewGenerator(st, nil)
	occ, err := gen.RoutineOccurrences(context.Background(), "agua", week())
	require.NoError(t, err)

	var dates []string
	for _, o := range occ {
		dates = append(dates, o.Date.String())
	}
	assert.Equal(t, []string{"2024-01-11", "2024-01-12", "2024-01-13"}, dates,
		"every date <= pausedUntil is suppressed")
}

func TestGenerator_SoftDeleted_Excluded(t *testing.T) {
	st := newTestStore()
	def := dailyRoutine("old", 1)
	now := time.Now()
	def.DeletedAt = &now
	seed(t, st, def)

	gen := routine.NewGenerator(st, nil)
	ctx := context.Background()

	occ, err := gen.Occurrences(ctx, week())
	require.NoError(t, err)
	assert.Empty(t, occ)

	_, err = gen.RoutineOccurrences(ctx, "old", week())
	assert.ErrorIs(t, err, routine.ErrRoutineNotFound)
}

// =============================================================================
// AGGREGATION TESTS
// =============================================================================

func TestGenerator_Aggregated_OrderedByDateThenPriority(t *testing.T) {
	st := newTestStore()

	high := dailyRoutine("meds", 1)
	high.Priority = routine.PriorityHigh
	low := dailyRoutine("journal", 1)
	low.Priority = routine.PriorityLow
	seed(t, st, high, low)

	gen := routine.NewGenerator(st, nil)
	day := routine.MustDate("2024-01-08")
	occ, err := gen.Occurrences(context.Background(), routine.DateRange{Start: day, End: day.AddDays(1)})
	require.NoError(t, err)
	require.Len(t, occ, 4)

	// Within each date, high priority sorts first.
	assert.Equal(t, routine.RoutineID("meds"), occ[0].RoutineID)
	assert.Equal(t, routine.RoutineID("journal"), occ[1].RoutineID)
	assert.True(t, occ[1].Date.BeforeOrEqual(occ[2].Date))
	assert.Equal(t, routine.RoutineID("meds"), occ[2].RoutineID)
}

func TestGenerator_InvalidRange(t *testing.T) {
	st := newTestStore()
	seed(t, st, dailyRoutine("agua", 1))
	gen := routine.NewGenerator(st, nil)

	_, err := gen.Occurrences(context.Background(), routine.DateRange{
		Start: routine.MustDate("2024-01-13"),
		End:   routine.MustDate("2024-01-07"),
	})
	assert.ErrorIs(t, err, routine.ErrInvalidDateRange)
}
