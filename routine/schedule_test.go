package routine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/routine-engine/routine"
)

// =============================================================================
// SCHEDULE MATCHER TESTS
// =============================================================================

func TestSchedule_Daily_MatchesEveryDate(t *testing.T) {
	s := routine.Schedule{Type: routine.ScheduleDaily}

	for _, iso := range []string{"2024-01-01", "2024-02-29", "2024-12-31"} {
		assert.True(t, s.Matches(routine.MustDate(iso)), "daily should match %s", iso)
	}
}

func TestSchedule_Weekly_MatchesOnlyListedWeekdays(t *testing.T) {
	// GIVEN: A Mon/Wed schedule
	// WHEN: Matching a Sun-Sat week (2024-01-07 is a Sunday)
	// THEN: Only the Monday and Wednesday match

	s := routine.Schedule{
		Type:       routine.ScheduleWeekly,
		DaysOfWeek: []time.Weekday{time.Monday, time.Wednesday},
	}

	matched := map[string]bool{}
	for d := routine.MustDate("2024-01-07"); d.BeforeOrEqual(routine.MustDate("2024-01-13")); d = d.AddDays(1) {
		matched[d.String()] = s.Matches(d)
	}

	assert.True(t, matched["2024-01-08"], "Monday should match")
	assert.True(t, matched["2024-01-10"], "Wednesday should match")
	for _, iso := range []string{"2024-01-07", "2024-01-09", "2024-01-11", "2024-01-12", "2024-01-13"} {
		assert.False(t, matched[iso], "%s should not match", iso)
	}
}

func TestSchedule_EmptyDaysOfWeek_MatchesNothing(t *testing.T) {
	// An empty weekday set means "nothing scheduled", not "every day".
	// The asymmetry with daily is deliberate.

	for _, typ := range []routine.ScheduleType{routine.ScheduleWeekly, routine.ScheduleCustomDays} {
		s := routine.Schedule{Type: typ}
		assert.False(t, s.Matches(routine.MustDate("2024-01-08")), "%s with empty set should match nothing", typ)
	}
}

func TestSchedule_CustomDays_BehavesLikeWeekly(t *testing.T) {
	s := routine.Schedule{
		Type:       routine.ScheduleCustomDays,
		DaysOfWeek: []time.Weekday{time.Saturday, time.Sunday},
	}

	assert.True(t, s.Matches(routine.MustDate("2024-01-07")))  // Sunday
	assert.True(t, s.Matches(routine.MustDate("2024-01-13")))  // Saturday
	assert.False(t, s.Matches(routine.MustDate("2024-01-10"))) // Wednesday
}

func TestSchedule_UnknownType_MatchesNothing(t *testing.T) {
	s := routine.Schedule{Type: routine.ScheduleType("monthly")}
	assert.False(t, s.Matches(routine.MustDate("2024-01-08")))
	assert.False(t, s.Valid())
}

func TestSchedule_Valid_RejectsOutOfRangeWeekday(t *testing.T) {
	s := routine.Schedule{
		Type:       routine.ScheduleWeekly,
		DaysOfWeek: []time.Weekday{time.Weekday(7)},
	}
	assert.False(t, s.Valid())
}

// =============================================================================
// DATE / RANGE TESTS
// =============================================================================

func TestParseDate_RoundTrip(t *testing.T) {
	d, err := routine.ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d.String())
	assert.Equal(t, time.Thursday, d.Weekday())
}

func TestParseDate_RejectsTimestamps(t *testing.T) {
	_, err := routine.ParseDate("2024-01-05T10:00:00Z")
	assert.Error(t, err, "dates are exchanged as calendar dates, never timestamps")
}

func TestDateRange_Days_Inclusive(t *testing.T) {
	rng := routine.DateRange{
		Start: routine.MustDate("2024-02-01"),
		End:   routine.MustDate("2024-02-07"),
	}

	days := rng.Days()
	require.Len(t, days, 7)
	assert.Equal(t, "2024-02-01", days[0].String())
	assert.Equal(t, "2024-02-07", days[6].String())
}

func TestDateRange_SingleDay(t *testing.T) {
	d := routine.MustDate("2024-03-10")
	rng := routine.DateRange{Start: d, End: d}

	require.Len(t, rng.Days(), 1)
	require.NoError(t, rng.Validate())
}

func TestDateRange_Validate_EndBeforeStart(t *testing.T) {
	rng := routine.DateRange{
		Start: routine.MustDate("2024-02-07"),
		End:   routine.MustDate("2024-02-01"),
	}
	assert.ErrorIs(t, rng.Validate(), routine.ErrInvalidDateRange)
}
