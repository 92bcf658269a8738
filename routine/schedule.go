package routine

import "time"

// =============================================================================
// SCHEDULE - Recurrence rule and matcher
// =============================================================================

type ScheduleType string

const (
	// ScheduleDaily matches every calendar date.
	ScheduleDaily ScheduleType = "daily"

	// ScheduleWeekly and ScheduleCustomDays match dates whose weekday is in
	// DaysOfWeek. They are aliases kept separate for presentation; the
	// matcher treats them identically.
	ScheduleWeekly     ScheduleType = "weekly"
	ScheduleCustomDays ScheduleType = "customDays"
)

// Schedule is the tagged recurrence rule of a routine.
type Schedule struct {
	Type ScheduleType

	// DaysOfWeek is the weekday set for weekly/customDays schedules
	// (time.Sunday == 0 .. time.Saturday == 6).
	DaysOfWeek []time.Weekday
}

// Valid reports whether the schedule is well-formed. An empty weekday set
// is valid (it matches nothing); out-of-range weekdays are not.
func (s Schedule) Valid() bool {
	switch s.Type {
	case ScheduleDaily:
		return true
	case ScheduleWeekly, ScheduleCustomDays:
		for _, wd := range s.DaysOfWeek {
			if wd < time.Sunday || wd > time.Saturday {
				return false
			}
		}
		return true
	}
	return false
}

// Matches is the schedule matcher: does the date satisfy the recurrence
// rule? Pure predicate, no failure modes.
//
// An empty DaysOfWeek set matches no date. That asymmetry with daily
// ("nothing scheduled", not "every day") is deliberate.
func (s Schedule) Matches(d Date) bool {
	switch s.Type {
	case ScheduleDaily:
		return true
	case ScheduleWeekly, ScheduleCustomDays:
		wd := d.Weekday()
		for _, scheduled := range s.DaysOfWeek {
			if wd == scheduled {
				return true
			}
		}
		return false
	}
	return false
}
