/*
handlers.go - HTTP API handlers for the routine engine

PURPOSE:
  Exposes the engine via REST. Handles HTTP request/response and JSON
  serialization, delegating all semantics to the routine package.

ENDPOINTS:
  Routines:
    GET    /api/routines                      List (non-deleted; ?all=true for history)
    POST   /api/routines                      Create
    GET    /api/routines/{id}                 Get
    PUT    /api/routines/{id}                 Partial update
    DELETE /api/routines/{id}                 Soft delete
    DELETE /api/routines/{id}/purge           Hard delete (cascades)

  Occurrences / progress:
    GET    /api/occurrences?from=&to=         Still-due slots, all routines
    GET    /api/routines/{id}/occurrences     Still-due slots, one routine
    GET    /api/routines/{id}/progress?date=  Progress projection (today if omitted)
    POST   /api/routines/{id}/completions     Complete one slot

  Exceptions / windows:
    PUT    /api/routines/{id}/exceptions/{date}  Merge override patch
    POST   /api/routines/{id}/pause              Set/clear pause bound
    PUT    /api/routines/{id}/active-to          Set/clear upper bound

  Bulk:
    POST   /api/routines/{id}/bulk/delete     Mass-delete completions
    POST   /api/routines/{id}/bulk/skip       Mass-skip a period
    GET    /api/routines/{id}/operations      Audit trail

ERROR HANDLING:
  Domain errors map to JSON bodies with a machine-readable code:
  - 400: invalid input, invalid/empty ranges, bad definitions
  - 404: routine not found (or soft-deleted)
  - 409: goal exceeded, skipped, paused, concurrent modification
  - 500: persistence failures
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/routine-engine/routine"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the engine components the HTTP layer delegates to.
type Handler struct {
	Registry   *routine.Registry
	Ledger     *routine.Ledger
	Generator  *routine.Generator
	Exceptions *routine.ExceptionManager
	Bulk       *routine.BulkEngine
	Logger     *zap.Logger
}

// NewHandler wires a handler over one store and cache.
func NewHandler(store routine.Store, cache routine.Cache, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	exceptions := routine.NewExceptionManager(store, cache, logger)
	return &Handler{
		Registry:   routine.NewRegistry(store, cache, logger),
		Ledger:     routine.NewLedger(store, cache, logger),
		Generator:  routine.NewGenerator(store, logger),
		Exceptions: exceptions,
		Bulk:       routine.NewBulkEngine(store, exceptions, cache, logger),
		Logger:     logger,
	}
}

// =============================================================================
// ROUTINE HANDLERS
// =============================================================================

func (h *Handler) ListRoutines(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("all") == "true"

	routines, err := h.Registry.List(r.Context(), includeDeleted)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := make([]RoutineDTO, len(routines))
	for i := range routines {
		dtos[i] = routineDTO(&routines[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateRoutine(w http.ResponseWriter, r *http.Request) {
	var req CreateRoutineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	activeFrom, err := routine.ParseDate(req.ActiveFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid active_from", err)
		return
	}

	def := routine.RoutineDefinition{
		Name:        req.Name,
		Color:       req.Color,
		Priority:    routine.Priority(req.Priority),
		TimesPerDay: req.TimesPerDay,
		Schedule: routine.Schedule{
			Type:       routine.ScheduleType(req.Schedule.Type),
			DaysOfWeek: weekdaysOf(req.Schedule.DaysOfWeek),
		},
		ActiveFrom: activeFrom,
	}
	if req.ActiveTo != nil {
		to, err := routine.ParseDate(*req.ActiveTo)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid active_to", err)
			return
		}
		def.ActiveTo = &to
	}

	created, err := h.Registry.Create(r.Context(), def)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, routineDTO(created))
}

func (h *Handler) GetRoutine(w http.ResponseWriter, r *http.Request) {
	id := routine.RoutineID(chi.URLParam(r, "id"))

	def, err := h.Registry.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, routineDTO(def))
}

func (h *Handler) UpdateRoutine(w http.ResponseWriter, r *http.Request) {
	id := routine.RoutineID(chi.URLParam(r, "id"))

	var req UpdateRoutineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	patch := routine.RoutinePatch{
		Name:        req.Name,
		Color:       req.Color,
		TimesPerDay: req.TimesPerDay,
	}
	if req.Priority != nil {
		p := routine.Priority(*req.Priority)
		patch.Priority = &p
	}
	if req.Schedule != nil {
		patch.Schedule = &routine.Schedule{
			Type:       routine.ScheduleType(req.Schedule.Type),
			DaysOfWeek: weekdaysOf(req.Schedule.DaysOfWeek),
		}
	}
	if req.ActiveFrom != nil {
		from, err := routine.ParseDate(*req.ActiveFrom)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid active_from", err)
			return
		}
		patch.ActiveFrom = &from
	}

	updated, err := h.Registry.Update(r.Context(), id, patch)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, routineDTO(updated))
}

func (h *Handler) SoftDeleteRoutine(w http.ResponseWriter, r *http.Request) {
	id := routine.RoutineID(chi.URLParam(r, "id"))
	if err := h.Registry.SoftDelete(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PurgeRoutine(w http.ResponseWriter, r *http.Request) {
	id := routine.RoutineID(chi.URLParam(r, "id"))
	if err := h.Registry.Purge(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// OCCURRENCE / PROGRESS HANDLERS
// =============================================================================

func (h *Handler) ListOccurrences(w http.ResponseWriter, r *http.Request) {
	rng, ok := h.parseRange(w, r)
	if !ok {
		return
	}
	occ, err := h.Generator.Occurrences(r.Context(), rng)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, occurrenceDTOs(occ))
}

func (h *Handler) ListRoutineOccurrences(w http.ResponseWriter, r *http.Request) {
	id := routine.RoutineID(chi.URLParam(r, "id"))
	rng, ok := h.parseRange(w, r)
	if !ok {
		return
	}
	occ, err := h.Generator.RoutineOccurrences(r.Context(), id, rng)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, occurrenceDTOs(occ))
}

func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	id := routine.RoutineID(chi.URLParam(r, "id"))

	// Missing ?date= means today.
	d := routine.Today()
	if qs := r.URL.Query().Get("date"); qs != "" {
		var err error
		d, err = routine.ParseDate(qs)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date", err)
			return
		}
	}

	p, err := h.Ledger.Progress(r.Context(), id, d)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) CompleteOne(w http.ResponseWriter, r *http.Request) {
	id := routine.RoutineID(chi.URLParam(r, "id"))

	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	d, err := routine.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}

	rec, err := h.Ledger.CompleteOne(r.Context(), id, d, req.SpecificTime)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completionDTO(rec))
}

// =============================================================================
// EXCEPTION / WINDOW HANDLERS
// =============================================================================

func (h *Handler) SetException(w http.ResponseWriter, r *http.Request) {
	id := routine.RoutineID(chi.URLParam(r, "id"))

	d, err := routine.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}

	var req ExceptionPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	patch := routine.ExceptionPatch{
		Skip:                req.Skip,
		OverrideTimesPerDay: req.OverrideTimesPerDay,
		OverrideTimes:       req.OverrideTimes,
	}
	if err := h.Exceptions.SetException(r.Context(), id, d, patch); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PauseUntil(w http.ResponseWriter, r *http.Request) {
	id := routine.RoutineID(chi.URLParam(r, "id"))

	var req PauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	var until *routine.Date
	if req.Until != nil {
		d, err := routine.ParseDate(*req.Until)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid until date", err)
			return
		}
		until = &d
	}

	if err := h.Exceptions.PauseUntil(r.Context(), id, until); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SetActiveTo(w http.ResponseWriter, r *http.Request) {
	id := routine.RoutineID(chi.URLParam(r, "id"))

	var req ActiveToRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	var until *routine.Date
	if req.ActiveTo != nil {
		d, err := routine.ParseDate(*req.ActiveTo)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid active_to date", err)
			return
		}
		until = &d
	}

	if err := h.Exceptions.SetActiveTo(r.Context(), id, until); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BULK HANDLERS
// =============================================================================

func (h *Handler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	id := routine.RoutineID(chi.URLParam(r, "id"))

	var req BulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	dates := make([]routine.Date, 0, len(req.Dates))
	for _, iso := range req.Dates {
		d, err := routine.ParseDate(iso)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date in list", err)
			return
		}
		dates = append(dates, d)
	}

	result, err := h.Bulk.DeleteOccurrences(r.Context(), id, dates)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BulkResultDTO{
		Succeeded: dateStrings(result.Succeeded),
		Failed:    dateStrings(result.Failed),
	})
}

func (h *Handler) BulkSkip(w http.ResponseWriter, r *http.Request) {
	id := routine.RoutineID(chi.URLParam(r, "id"))

	var req BulkSkipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	start, err := routine.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date", err)
		return
	}
	end, err := routine.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_date", err)
		return
	}

	if err := h.Bulk.SkipPeriod(r.Context(), id, start, end); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	id := routine.RoutineID(chi.URLParam(r, "id"))

	recs, err := h.Bulk.Operations(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]BulkOperationDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = bulkOperationDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) parseRange(w http.ResponseWriter, r *http.Request) (routine.DateRange, bool) {
	from, err := routine.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date", err)
		return routine.DateRange{}, false
	}
	to, err := routine.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date", err)
		return routine.DateRange{}, false
	}
	return routine.DateRange{Start: from, End: to}, true
}

// writeDomainError maps engine errors to status codes and wire codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "persistence_error"

	switch {
	case errors.Is(err, routine.ErrRoutineNotFound):
		status, code = http.StatusNotFound, "routine_not_found"
	case errors.Is(err, routine.ErrGoalExceeded):
		status, code = http.StatusConflict, "goal_exceeded"
	case errors.Is(err, routine.ErrSkipped):
		status, code = http.StatusConflict, "skipped"
	case errors.Is(err, routine.ErrAlreadyPaused):
		status, code = http.StatusConflict, "already_paused"
	case errors.Is(err, routine.ErrConcurrentModification):
		status, code = http.StatusConflict, "concurrent_modification"
	case errors.Is(err, routine.ErrInvalidDateRange):
		status, code = http.StatusBadRequest, "invalid_date_range"
	case errors.Is(err, routine.ErrEmptyRange):
		status, code = http.StatusBadRequest, "empty_range"
	case errors.Is(err, routine.ErrInvalidDefinition):
		status, code = http.StatusBadRequest, "invalid_definition"
	default:
		h.Logger.Error("unhandled engine error", zap.Error(err))
	}

	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
