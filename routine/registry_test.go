package routine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/routine-engine/routine"
)

func newRegistry(st routine.Store) *routine.Registry {
	return routine.NewRegistry(st, nil, nil)
}

// =============================================================================
// CREATE / VALIDATION TESTS
// =============================================================================

func TestRegistry_Create_AssignsIDAndDefaults(t *testing.T) {
	st := newTestStore()
	reg := newRegistry(st)

	created, err := reg.Create(context.Background(), routine.RoutineDefinition{
		Name:        "agua",
		TimesPerDay: 3,
		Schedule:    routine.Schedule{Type: routine.ScheduleDaily},
		ActiveFrom:  routine.MustDate("2024-01-01"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, routine.PriorityMedium, created.Priority)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)
	assert.Nil(t, created.DeletedAt)
}

func TestRegistry_Create_Validation(t *testing.T) {
	st := newTestStore()
	reg := newRegistry(st)
	ctx := context.Background()

	valid := routine.RoutineDefinition{
		Name:        "agua",
		TimesPerDay: 3,
		Schedule:    routine.Schedule{Type: routine.ScheduleDaily},
		ActiveFrom:  routine.MustDate("2024-01-01"),
	}

	cases := []struct {
		name   string
		mutate func(*routine.RoutineDefinition)
		want   error
	}{
		{"empty name", func(d *routine.RoutineDefinition) { d.Name = "" }, routine.ErrInvalidDefinition},
		{"zero times per day", func(d *routine.RoutineDefinition) { d.TimesPerDay = 0 }, routine.ErrInvalidDefinition},
		{"unknown priority", func(d *routine.RoutineDefinition) { d.Priority = "urgent" }, routine.ErrInvalidDefinition},
		{"unknown schedule type", func(d *routine.RoutineDefinition) { d.Schedule.Type = "monthly" }, routine.ErrInvalidDefinition},
		{"missing active-from", func(d *routine.RoutineDefinition) { d.ActiveFrom = routine.Date{} }, routine.ErrInvalidDefinition},
		{"active-to before active-from", func(d *routine.RoutineDefinition) { d.ActiveTo = datePtr("2023-12-31") }, routine.ErrInvalidDateRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			def := valid
			tc.mutate(&def)
			_, err := reg.Create(ctx, def)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

// =============================================================================
// UPDATE TESTS
// =============================================================================

func TestRegistry_Update_PartialMerge(t *testing.T) {
	// GIVEN: An existing routine
	// WHEN: Patching only the goal
	// THEN: The name and schedule are untouched

	st := newTestStore()
	seed(t, st, dailyRoutine("agua", 3))
	reg := newRegistry(st)

	updated, err := reg.Update(context.Background(), "agua", routine.RoutinePatch{TimesPerDay: intPtr(5)})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.TimesPerDay)
	assert.Equal(t, "agua", updated.Name)
	assert.Equal(t, routine.ScheduleDaily, updated.Schedule.Type)
}

func TestRegistry_Update_RejectsInvalidPatch(t *testing.T) {
	st := newTestStore()
	seed(t, st, dailyRoutine("agua", 3))
	reg := newRegistry(st)
	ctx := context.Background()

	_, err := reg.Update(ctx, "agua", routine.RoutinePatch{TimesPerDay: intPtr(0)})
	assert.ErrorIs(t, err, routine.ErrInvalidDefinition)

	// The stored definition is unchanged after the rejection.
	r, getErr := st.GetRoutine(ctx, "agua")
	require.NoError(t, getErr)
	assert.Equal(t, 3, r.TimesPerDay)
}

// =============================================================================
// DELETE / PURGE TESTS
// =============================================================================

func TestRegistry_SoftDelete_ExcludesFromListAndGet(t *testing.T) {
	st := newTestStore()
	seed(t, st, dailyRoutine("agua", 3), dailyRoutine("meds", 1))
	reg := newRegistry(st)
	ctx := context.Background()

	require.NoError(t, reg.SoftDelete(ctx, "agua"))

	_, err := reg.Get(ctx, "agua")
	assert.ErrorIs(t, err, routine.ErrRoutineNotFound)

	active, err := reg.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, routine.RoutineID("meds"), active[0].ID)

	all, err := reg.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRegistry_SoftDelete_KeepsLedgerHistory(t *testing.T) {
	st := newTestStore()
	seed(t, st, dailyRoutine("agua", 3))
	ledger := routine.NewLedger(st, nil, nil)
	reg := newRegistry(st)
	ctx := context.Background()
	day := routine.MustDate("2024-01-08")

	_, err := ledger.CompleteOne(ctx, "agua", day, "")
	require.NoError(t, err)
	require.NoError(t, reg.SoftDelete(ctx, "agua"))

	rec, err := st.GetCompletion(ctx, "agua", day)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.Count)
}

func TestRegistry_Purge_CascadesChildRows(t *testing.T) {
	st := newTestStore()
	seed(t, st, dailyRoutine("agua", 3))
	ledger := routine.NewLedger(st, nil, nil)
	eng := newBulkEngine(st)
	reg := newRegistry(st)
	ctx := context.Background()
	day := routine.MustDate("2024-01-08")

	_, err := ledger.CompleteOne(ctx, "agua", day, "")
	require.NoError(t, err)
	require.NoError(t, eng.SkipPeriod(ctx, "agua", routine.MustDate("2024-02-01"), routine.MustDate("2024-02-02")))

	require.NoError(t, reg.Purge(ctx, "agua"))

	r, err := st.GetRoutine(ctx, "agua")
	require.NoError(t, err)
	assert.Nil(t, r)

	rec, err := st.GetCompletion(ctx, "agua", day)
	require.NoError(t, err)
	assert.Nil(t, rec)

	entries, err := st.ExceptionsInRange(ctx, "agua",
		routine.MustDate("2024-02-01"), routine.MustDate("2024-02-02"))
	require.NoError(t, err)
	assert.Empty(t, entries)

	recs, err := st.BulkOperations(ctx, "agua")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRegistry_Purge_WorksOnSoftDeleted(t *testing.T) {
	// Purge is the cleanup step after a soft delete, so it accepts a
	// definition Get would refuse to return.

	st := newTestStore()
	seed(t, st, dailyRoutine("agua", 3))
	reg := newRegistry(st)
	ctx := context.Background()

	require.NoError(t, reg.SoftDelete(ctx, "agua"))
	require.NoError(t, reg.Purge(ctx, "agua"))
	assert.ErrorIs(t, reg.Purge(ctx, "agua"), routine.ErrRoutineNotFound)
}

func TestRegistry_List_OrderedByName(t *testing.T) {
	st := newTestStore()
	seed(t, st, dailyRoutine("zumba", 1), dailyRoutine("agua", 3), dailyRoutine("meds", 2))
	reg := newRegistry(st)

	routines, err := reg.List(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, routines, 3)
	assert.Equal(t, "agua", routines[0].Name)
	assert.Equal(t, "meds", routines[1].Name)
	assert.Equal(t, "zumba", routines[2].Name)
}

func TestRegistry_TimestampsAdvanceOnUpdate(t *testing.T) {
	st := newTestStore()
	seed(t, st, dailyRoutine("agua", 3))
	reg := newRegistry(st)
	ctx := context.Background()

	before, err := st.GetRoutine(ctx, "agua")
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	updated, err := reg.Update(ctx, "agua", routine.RoutinePatch{TimesPerDay: intPtr(4)})
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(before.UpdatedAt))
}
