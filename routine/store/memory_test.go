package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/routine-engine/routine"
	"github.com/warp/routine-engine/routine/store"
)

// The rest of the Memory surface is exercised through the engine suites;
// these pin the conditional-increment contract directly.

func TestMemory_IncrementCompletion_CreateThenIncrementThenCap(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	day := routine.MustDate("2024-01-05")

	rec, applied, err := st.IncrementCompletion(ctx, "agua", day, 2, time.Now())
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, rec.Count)

	rec, applied, err = st.IncrementCompletion(ctx, "agua", day, 2, time.Now())
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 2, rec.Count)

	rec, applied, err = st.IncrementCompletion(ctx, "agua", day, 2, time.Now())
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 2, rec.Count)
}

func TestMemory_IncrementCompletion_NonPositiveGoal(t *testing.T) {
	// GIVEN: No record for the date
	// WHEN: Incrementing with goal 0
	// THEN: Nothing is created; a zero goal has no room for a first write

	st := store.NewMemory()
	ctx := context.Background()
	day := routine.MustDate("2024-01-05")

	rec, applied, err := st.IncrementCompletion(ctx, "agua", day, 0, time.Now())
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Nil(t, rec)

	got, err := st.GetCompletion(ctx, "agua", day)
	require.NoError(t, err)
	assert.Nil(t, got, "a refused first write must not leave a record behind")
}

func TestMemory_IncrementCompletion_NonPositiveGoalOnExistingRow(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	day := routine.MustDate("2024-01-05")

	_, applied, err := st.IncrementCompletion(ctx, "agua", day, 3, time.Now())
	require.NoError(t, err)
	require.True(t, applied)

	rec, applied, err := st.IncrementCompletion(ctx, "agua", day, 0, time.Now())
	require.NoError(t, err)
	assert.False(t, applied)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.Count, "the existing row is untouched")
	assert.Equal(t, 3, rec.Goal)
}
