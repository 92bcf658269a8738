package routine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/routine-engine/routine"
)

func newBulkEngine(st routine.Store) *routine.BulkEngine {
	return routine.NewBulkEngine(st, routine.NewExceptionManager(st, nil, nil), nil, nil)
}

// =============================================================================
// SKIP PERIOD TESTS
// =============================================================================

func TestBulk_SkipPeriod_MarksEveryDateInRange(t *testing.T) {
	// GIVEN: A daily routine
	// WHEN: Skipping 2024-02-01 through 2024-02-07
	// THEN: All seven dates carry a skip entry and one audit record exists

	st := newTestStore()
	seed(t, st, dailyRoutine("agua", 3))
	eng := newBulkEngine(st)
	ctx := context.Background()

	start := routine.MustDate("2024-02-01")
	end := routine.MustDate("2024-02-07")
	require.NoError(t, eng.SkipPeriod(ctx, "agua", start, end))

	entries, err := st.ExceptionsInRange(ctx, "agua", start, end)
	require.NoError(t, err)
	require.Len(t, entries, 7)
	for iso, entry := range entries {
		assert.True(t, entry.Skip, "date %s should be skipped", iso)
	}

	recs, err := eng.Operations(ctx, "agua")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, routine.BulkSkipPeriod, recs[0].OperationType)
	assert.Equal(t, start.String(), recs[0].StartDate.String())
	assert.Equal(t, end.String(), recs[0].EndDate.String())
	assert.Len(t, recs[0].AffectedDates, 7)
}

func TestBulk_SkipPeriod_InvalidRange(t *testing.T) {
	st := newTestStore()
	seed(t, st, dailyRoutine("agua", 3))
	eng := newBulkEngine(st)

	err := eng.SkipPeriod(context.Background(), "agua",
		routine.MustDate("2024-02-07"), routine.MustDate("2024-02-01"))
	assert.ErrorIs(t, err, routine.ErrInvalidDateRange)

	recs, opErr := eng.Operations(context.Background(), "agua")
	require.NoError(t, opErr)
	assert.Empty(t, recs, "a rejected operation leaves no audit record")
}

func TestBulk_SkipPeriod_LeavesCompletionsIntact(t *testing.T) {
	// A retroactive skip does not erase counts already recorded.

	st := newTestStore()
	seed(t, st, dailyRoutine("agua", 3))
	ledger := routine.NewLedger(st, nil, nil)
	eng := newBulkEngine(st)
	ctx := context.Background()
	day := routine.MustDate("2024-02-03")

	_, err := ledger.CompleteOne(ctx, "agua", day, "")
	require.NoError(t, err)

	require.NoError(t, eng.SkipPeriod(ctx, "agua", routine.MustDate("2024-02-01"), routine.MustDate("2024-02-07")))

	rec, err := st.GetCompletion(ctx, "agua", day)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.Count)
}

// =============================================================================
// DELETE OCCURRENCES TESTS
// =============================================================================

func TestBulk_DeleteOccurrences_ResetsCounts(t *testing.T) {
	st := newTestStore()
	seed(t, st, dailyRoutine("agua", 3))
	ledger := routine.NewLedger(st, nil, nil)
	eng := newBulkEngine(st)
	ctx := context.Background()

	d1 := routine.MustDate("2024-02-01")
	d2 := routine.MustDate("2024-02-02")
	for _, d := range []routine.Date{d1, d2} {
		_, err := ledger.CompleteOne(ctx, "agua", d, "")
		require.NoError(t, err)
	}

	result, err := eng.DeleteOccurrences(ctx, "agua", []routine.Date{d1, d2})
	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 2)
	assert.Empty(t, result.Failed)

	for _, d := range []routine.Date{d1, d2} {
		rec, getErr := st.GetCompletion(ctx, "agua", d)
		require.NoError(t, getErr)
		assert.Nil(t, rec)
	}
}

func TestBulk_DeleteOccurrences_IdempotentAndEmptyRejected(t *testing.T) {
	st := newTestStore()
	seed(t, st, dailyRoutine("agua", 3))
	eng := newBulkEngine(st)
	ctx := context.Background()

	_, err := eng.DeleteOccurrences(ctx, "agua", nil)
	assert.ErrorIs(t, err, routine.ErrEmptyRange)

	// Deleting dates with no records is a full success both times.
	dates := []routine.Date{routine.MustDate("2024-02-01")}
	for i := 0; i < 2; i++ {
		result, delErr := eng.DeleteOccurrences(ctx, "agua", dates)
		require.NoError(t, delErr)
		assert.Len(t, result.Succeeded, 1)
		assert.Empty(t, result.Failed)
	}
}

func TestBulk_DeleteOccurrences_LeavesExceptionsIntact(t *testing.T) {
	st := newTestStore()
	seed(t, st, dailyRoutine("agua", 3))
	eng := newBulkEngine(st)
	ctx := context.Background()
	day := routine.MustDate("2024-02-01")

	require.NoError(t, st.PutException(ctx, routine.ExceptionEntry{RoutineID: "agua", Date: day, Skip: true}))

	_, err := eng.DeleteOccurrences(ctx, "agua", []routine.Date{day})
	require.NoError(t, err)

	entry, err := st.GetException(ctx, "agua", day)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.Skip)
}

func TestBulk_DeleteOccurrences_RecordBoundsFromUnsortedDates(t *testing.T) {
	st := newTestStore()
	seed(t, st, dailyRoutine("agua", 3))
	eng := newBulkEngine(st)
	ctx := context.Background()

	dates := []routine.Date{
		routine.MustDate("2024-02-05"),
		routine.MustDate("2024-02-01"),
		routine.MustDate("2024-02-03"),
	}
	_, err := eng.DeleteOccurrences(ctx, "agua", dates)
	require.NoError(t, err)

	recs, err := eng.Operations(ctx, "agua")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2024-02-01", recs[0].StartDate.String())
	assert.Equal(t, "2024-02-05", recs[0].EndDate.String())
	assert.Equal(t, routine.BulkDeleteOccurrences, recs[0].OperationType)
}

// =============================================================================
// AUDIT TRAIL TESTS
// =============================================================================

func TestBulk_Operations_NewestFirst(t *testing.T) {
	st := newTestStore()
	seed(t, st, dailyRoutine("agua", 3))
	eng := newBulkEngine(st)
	ctx := context.Background()

	require.NoError(t, eng.SkipPeriod(ctx, "agua", routine.MustDate("2024-02-01"), routine.MustDate("2024-02-02")))
	time.Sleep(5 * time.Millisecond)
	_, err := eng.DeleteOccurrences(ctx, "agua", []routine.Date{routine.MustDate("2024-02-10")})
	require.NoError(t, err)

	recs, err := eng.Operations(ctx, "agua")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, routine.BulkDeleteOccurrences, recs[0].OperationType)
	assert.Equal(t, routine.BulkSkipPeriod, recs[1].OperationType)
}

func TestBulk_UnknownRoutine(t *testing.T) {
	st := newTestStore()
	eng := newBulkEngine(st)
	ctx := context.Background()

	_, err := eng.DeleteOccurrences(ctx, "ghost", []routine.Date{routine.MustDate("2024-02-01")})
	assert.ErrorIs(t, err, routine.ErrRoutineNotFound)

	err = eng.SkipPeriod(ctx, "ghost", routine.MustDate("2024-02-01"), routine.MustDate("2024-02-02"))
	assert.ErrorIs(t, err, routine.ErrRoutineNotFound)

	_, err = eng.Operations(ctx, "ghost")
	assert.ErrorIs(t, err, routine.ErrRoutineNotFound)
}
