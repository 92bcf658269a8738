/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the domain model from
  the wire contract. Dates cross the wire as ISO "YYYY-MM-DD" strings,
  never as timestamps.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Handlers validate; DTOs are pure data carriers.
*/
package api

import (
	"time"

	"github.com/warp/routine-engine/routine"
)

// =============================================================================
// ROUTINE TYPES
// =============================================================================

// ScheduleDTO is the tagged recurrence rule on the wire.
type ScheduleDTO struct {
	Type       string `json:"type"`
	DaysOfWeek []int  `json:"days_of_week,omitempty"`
}

// RoutineDTO represents a routine definition in API responses.
type RoutineDTO struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Color       string      `json:"color,omitempty"`
	Priority    string      `json:"priority"`
	TimesPerDay int         `json:"times_per_day"`
	Schedule    ScheduleDTO `json:"schedule"`
	ActiveFrom  string      `json:"active_from"`
	ActiveTo    *string     `json:"active_to,omitempty"`
	PausedUntil *string     `json:"paused_until,omitempty"`
	DeletedAt   *string     `json:"deleted_at,omitempty"`
	CreatedAt   string      `json:"created_at,omitempty"`
	UpdatedAt   string      `json:"updated_at,omitempty"`
}

// CreateRoutineRequest creates a new routine definition.
type CreateRoutineRequest struct {
	Name        string      `json:"name"`
	Color       string      `json:"color"`
	Priority    string      `json:"priority"`
	TimesPerDay int         `json:"times_per_day"`
	Schedule    ScheduleDTO `json:"schedule"`
	ActiveFrom  string      `json:"active_from"`
	ActiveTo    *string     `json:"active_to,omitempty"`
}

// UpdateRoutineRequest is a partial edit; absent fields are untouched.
type UpdateRoutineRequest struct {
	Name        *string      `json:"name,omitempty"`
	Color       *string      `json:"color,omitempty"`
	Priority    *string      `json:"priority,omitempty"`
	TimesPerDay *int         `json:"times_per_day,omitempty"`
	Schedule    *ScheduleDTO `json:"schedule,omitempty"`
	ActiveFrom  *string      `json:"active_from,omitempty"`
}

// =============================================================================
// OCCURRENCE / PROGRESS TYPES
// =============================================================================

type OccurrenceDTO struct {
	RoutineID string `json:"routine_id"`
	Date      string `json:"date"`
	Remaining int    `json:"remaining"`
	Goal      int    `json:"goal"`
}

type CompletionDTO struct {
	RoutineID   string `json:"routine_id"`
	Date        string `json:"date"`
	Count       int    `json:"count"`
	Goal        int    `json:"goal"`
	CompletedAt string `json:"completed_at"`
}

// CompleteRequest records one completed slot.
type CompleteRequest struct {
	Date         string `json:"date"`
	SpecificTime string `json:"specific_time,omitempty"`
}

// =============================================================================
// EXCEPTION / PAUSE TYPES
// =============================================================================

// ExceptionPatchRequest merges into the entry for one date. Absent fields
// leave the prior value untouched.
type ExceptionPatchRequest struct {
	Skip                *bool    `json:"skip,omitempty"`
	OverrideTimesPerDay *int     `json:"override_times_per_day,omitempty"`
	OverrideTimes       []string `json:"override_times,omitempty"`
}

// PauseRequest sets the pause bound; a null until un-pauses.
type PauseRequest struct {
	Until *string `json:"until"`
}

// ActiveToRequest sets or clears the upper active-date bound.
type ActiveToRequest struct {
	ActiveTo *string `json:"active_to"`
}

// =============================================================================
// BULK OPERATION TYPES
// =============================================================================

type BulkDeleteRequest struct {
	Dates []string `json:"dates"`
}

type BulkSkipRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// BulkResultDTO reports the per-date outcome of a best-effort operation.
type BulkResultDTO struct {
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
}

type BulkOperationDTO struct {
	ID            string   `json:"id"`
	RoutineID     string   `json:"routine_id"`
	OperationType string   `json:"operation_type"`
	StartDate     string   `json:"start_date"`
	EndDate       string   `json:"end_date"`
	AffectedDates []string `json:"affected_dates"`
	CreatedAt     string   `json:"created_at"`
}

// =============================================================================
// ERROR TYPE
// =============================================================================

// ErrorResponse carries a machine-readable code so the UI can explain why
// a completion was rejected (at goal vs. paused vs. skipped).
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func routineDTO(r *routine.RoutineDefinition) RoutineDTO {
	dto := RoutineDTO{
		ID:          string(r.ID),
		Name:        r.Name,
		Color:       r.Color,
		Priority:    string(r.Priority),
		TimesPerDay: r.TimesPerDay,
		Schedule: ScheduleDTO{
			Type:       string(r.Schedule.Type),
			DaysOfWeek: weekdayInts(r.Schedule.DaysOfWeek),
		},
		ActiveFrom: r.ActiveFrom.String(),
		CreatedAt:  r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  r.UpdatedAt.Format(time.RFC3339),
	}
	if r.ActiveTo != nil {
		s := r.ActiveTo.String()
		dto.ActiveTo = &s
	}
	if r.PausedUntil != nil {
		s := r.PausedUntil.String()
		dto.PausedUntil = &s
	}
	if r.DeletedAt != nil {
		s := r.DeletedAt.Format(time.RFC3339)
		dto.DeletedAt = &s
	}
	return dto
}

func occurrenceDTOs(occ []routine.Occurrence) []OccurrenceDTO {
	out := make([]OccurrenceDTO, len(occ))
	for i, o := range occ {
		out[i] = OccurrenceDTO{
			RoutineID: string(o.RoutineID),
			Date:      o.Date.String(),
			Remaining: o.Remaining,
			Goal:      o.Goal,
		}
	}
	return out
}

func completionDTO(rec *routine.CompletionRecord) CompletionDTO {
	return CompletionDTO{
		RoutineID:   string(rec.RoutineID),
		Date:        rec.Date.String(),
		Count:       rec.Count,
		Goal:        rec.Goal,
		CompletedAt: rec.CompletedAt.Format(time.RFC3339),
	}
}

func bulkOperationDTO(rec routine.BulkOperationRecord) BulkOperationDTO {
	dates := make([]string, len(rec.AffectedDates))
	for i, d := range rec.AffectedDates {
		dates[i] = d.String()
	}
	return BulkOperationDTO{
		ID:            rec.ID,
		RoutineID:     string(rec.RoutineID),
		OperationType: string(rec.OperationType),
		StartDate:     rec.StartDate.String(),
		EndDate:       rec.EndDate.String(),
		AffectedDates: dates,
		CreatedAt:     rec.CreatedAt.Format(time.RFC3339),
	}
}

func dateStrings(dates []routine.Date) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.String()
	}
	return out
}

func weekdayInts(days []time.Weekday) []int {
	if len(days) == 0 {
		return nil
	}
	out := make([]int, len(days))
	for i, d := range days {
		out[i] = int(d)
	}
	return out
}

func weekdaysOf(days []int) []time.Weekday {
	out := make([]time.Weekday, len(days))
	for i, d := range days {
		out[i] = time.Weekday(d)
	}
	return out
}
