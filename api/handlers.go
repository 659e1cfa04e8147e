/*
handlers.go - HTTP API handlers for the tracker

PURPOSE:
  Exposes the record collections and their range queries via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to the
  record repositories. Handlers are thin: every query goes through the
  shared engine.

ENDPOINTS:
  Per owner (/api/owners/{owner}/...), for each of
  expenses, habits, completions, todos, time-entries:
    GET    /                 Range query (from, to, limit, equality fields)
    POST   /                 Create
    GET    /{id}             Get one record
    DELETE /{id}             Delete one record

  Extras:
    POST   /habits/{id}/archive       Archive a habit
    GET    /habits/{id}/completions   Completions of one habit
    GET    /todos/open                Open todos (same parameters as the list)
    POST   /todos/{id}/done           Close a todo
    POST   /time-entries/{id}/stop    Stop a running entry

QUERY PARAMETERS:
  from   YYYY-MM-DD (start of day) or RFC3339 instant, inclusive
  to     YYYY-MM-DD (end of day) or RFC3339 instant, inclusive
  limit  non-negative integer; absent means unlimited
  any declared equality field of the collection, e.g. category=food

  Responses carry {items, count, degraded}. The X-Query-Degraded header
  repeats the degraded flag.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Record not found
  - 409: Conflict (stopping a stopped entry)
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The owner in the path is trusted.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/warp/tracker/expenses"
	"github.com/warp/tracker/generic"
	"github.com/warp/tracker/habits"
	"github.com/warp/tracker/metrics"
	"github.com/warp/tracker/timetracking"
	"github.com/warp/tracker/todos"
)

// HeaderDegraded reports whether a query was served by the fallback scan.
const HeaderDegraded = "X-Query-Degraded"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       generic.DocumentStore
	Expenses    *expenses.Repository
	Habits      *habits.Repository
	Todos       *todos.Repository
	TimeEntries *timetracking.Repository

	// Scheduler is optional. When set, its pending indexes and runs are
	// exposed under /api/admin/indexes.
	Scheduler *IndexScheduler

	Logger *log.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler whose repositories share one store. The
// observer is notified of every degraded query.
func NewHandler(store generic.DocumentStore, observer generic.FallbackObserver) *Handler {
	return &Handler{
		Store:       store,
		Expenses:    expenses.NewRepository(store, observer),
		Habits:      habits.NewRepository(store, observer),
		Todos:       todos.NewRepository(store, observer),
		TimeEntries: timetracking.NewRepository(store, observer),
		Logger:      log.Default(),
	}
}

// SetClock replaces the clock of every repository.
func (h *Handler) SetClock(now func() time.Time) {
	h.Expenses.Now = now
	h.Habits.Now = now
	h.Todos.Now = now
	h.TimeEntries.Now = now
}

func (h *Handler) now() time.Time { return h.Expenses.Now() }

// =============================================================================
// GENERIC COLLECTION HANDLERS
// =============================================================================

// listRecords serves a range query over one collection.
func listRecords[R generic.Record](c *generic.Collection[R]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := parseDescriptor(r, c.Mapping)
		if err != nil {
			writeFailure(w, "Invalid query", err)
			return
		}
		res, err := c.Find(r.Context(), d)
		if err != nil {
			writeFailure(w, "Failed to query "+c.Mapping.Collection, err)
			return
		}
		writeResult(w, c.Mapping.Collection, res)
	}
}

func getRecord[R generic.Record](c *generic.Collection[R]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := c.Get(r.Context(), ownerParam(r), chi.URLParam(r, "id"))
		if err != nil {
			writeFailure(w, "Failed to load record", err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func deleteRecord[R generic.Record](c *generic.Collection[R]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := c.Delete(r.Context(), ownerParam(r), chi.URLParam(r, "id")); err != nil {
			writeFailure(w, "Failed to delete record", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeResult[R generic.Record](w http.ResponseWriter, collection string, res generic.Result[R]) {
	metrics.ObserveResult(collection, len(res.Records), res.Degraded)
	w.Header().Set(HeaderDegraded, strconv.FormatBool(res.Degraded))
	writeJSON(w, http.StatusOK, newListResponse(res))
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

// CreateExpense creates an expense.
// POST /api/owners/{owner}/expenses
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req CreateExpenseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	date, err := parseInstant("date", req.Date, false)
	if err != nil {
		writeFailure(w, "Invalid expense", err)
		return
	}
	e, err := h.Expenses.Create(r.Context(), expenses.Expense{
		OwnerID:     ownerParam(r),
		Date:        date,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		Description: req.Description,
	})
	if err != nil {
		writeFailure(w, "Failed to create expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// =============================================================================
// HABIT HANDLERS
// =============================================================================

// CreateHabit creates a habit.
// POST /api/owners/{owner}/habits
func (h *Handler) CreateHabit(w http.ResponseWriter, r *http.Request) {
	var req CreateHabitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	freq := habits.Frequency(req.Frequency)
	if freq == "" {
		freq = habits.Daily
	}
	habit, err := h.Habits.CreateHabit(r.Context(), habits.Habit{
		OwnerID:   ownerParam(r),
		Name:      req.Name,
		Frequency: freq,
	})
	if err != nil {
		writeFailure(w, "Failed to create habit", err)
		return
	}
	writeJSON(w, http.StatusCreated, habit)
}

// ArchiveHabit archives a habit.
// POST /api/owners/{owner}/habits/{id}/archive
func (h *Handler) ArchiveHabit(w http.ResponseWriter, r *http.Request) {
	habit, err := h.Habits.Archive(r.Context(), ownerParam(r), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, "Failed to archive habit", err)
		return
	}
	writeJSON(w, http.StatusOK, habit)
}

// CompleteHabit records a completion.
// POST /api/owners/{owner}/completions
func (h *Handler) CompleteHabit(w http.ResponseWriter, r *http.Request) {
	var req CompleteHabitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c := habits.Completion{
		OwnerID: ownerParam(r),
		HabitID: req.HabitID,
		Note:    req.Note,
	}
	if req.CompletedAt != nil {
		c.CompletedAt = *req.CompletedAt
	}
	c, err := h.Habits.Complete(r.Context(), c)
	if err != nil {
		writeFailure(w, "Failed to record completion", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HabitCompletions lists one habit's completions.
// GET /api/owners/{owner}/habits/{id}/completions
func (h *Handler) HabitCompletions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, id := ownerParam(r), chi.URLParam(r, "id")

	d, err := parseDescriptor(r, habits.CompletionMapping)
	if err != nil {
		writeFailure(w, "Invalid query", err)
		return
	}
	if _, ok := d.Equals["habit_id"]; ok {
		writeFailure(w, "Invalid query", &generic.ValidationError{Field: "habit_id", Message: "taken from the path, not the query"})
		return
	}
	if _, err := h.Habits.Habits.Get(ctx, owner, id); err != nil {
		writeFailure(w, "Failed to load habit", err)
		return
	}
	res, err := h.Habits.HabitCompletions(ctx, owner, id, d.Bounds(), d.Limit)
	if err != nil {
		writeFailure(w, "Failed to query completions", err)
		return
	}
	writeResult(w, habits.CompletionMapping.Collection, res)
}

// =============================================================================
// TODO HANDLERS
// =============================================================================

// CreateTodo creates a todo.
// POST /api/owners/{owner}/todos
func (h *Handler) CreateTodo(w http.ResponseWriter, r *http.Request) {
	var req CreateTodoRequest
	if !decodeBody(w, r, &req) {
		return
	}
	t, err := h.Todos.Create(r.Context(), todos.Todo{
		OwnerID:  ownerParam(r),
		Title:    req.Title,
		Priority: todos.Priority(req.Priority),
		DueAt:    req.DueAt,
	})
	if err != nil {
		writeFailure(w, "Failed to create todo", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// OpenTodos lists open todos. Range, limit and priority parameters apply as
// on the list endpoint; status may only be open.
// GET /api/owners/{owner}/todos/open
func (h *Handler) OpenTodos(w http.ResponseWriter, r *http.Request) {
	d, err := parseDescriptor(r, todos.Mapping)
	if err != nil {
		writeFailure(w, "Invalid query", err)
		return
	}
	res, err := h.Todos.Open(r.Context(), d)
	if err != nil {
		writeFailure(w, "Failed to query todos", err)
		return
	}
	writeResult(w, todos.Mapping.Collection, res)
}

// CompleteTodo marks a todo done.
// POST /api/owners/{owner}/todos/{id}/done
func (h *Handler) CompleteTodo(w http.ResponseWriter, r *http.Request) {
	t, err := h.Todos.MarkDone(r.Context(), ownerParam(r), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, "Failed to complete todo", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// =============================================================================
// TIME ENTRY HANDLERS
// =============================================================================

// CreateTimeEntry creates a time entry, or starts a timer when no start is
// given.
// POST /api/owners/{owner}/time-entries
func (h *Handler) CreateTimeEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateTimeEntryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	e := timetracking.Entry{
		OwnerID:     ownerParam(r),
		Project:     req.Project,
		Description: req.Description,
		Billable:    req.Billable,
		End:         req.End,
	}
	if req.Start != nil {
		e.Start = *req.Start
	}
	e, err := h.TimeEntries.Create(r.Context(), e)
	if err != nil {
		writeFailure(w, "Failed to create time entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// StopTimeEntry stops a running entry.
// POST /api/owners/{owner}/time-entries/{id}/stop
func (h *Handler) StopTimeEntry(w http.ResponseWriter, r *http.Request) {
	var req StopTimeEntryRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}
	var at time.Time
	if req.At != nil {
		at = *req.At
	}
	e, err := h.TimeEntries.Stop(r.Context(), ownerParam(r), chi.URLParam(r, "id"), at)
	if err != nil {
		writeFailure(w, "Failed to stop time entry", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// IndexStatus returns pending indexes and provisioning runs.
// GET /api/admin/indexes
func (h *Handler) IndexStatus(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false, "pending": []string{}, "runs": []IndexRun{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled": h.Scheduler.Enabled,
		"pending": h.Scheduler.Pending(),
		"runs":    h.Scheduler.Runs(),
	})
}

// ProvisionIndexes provisions pending indexes immediately.
// POST /api/admin/indexes/provision
func (h *Handler) ProvisionIndexes(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusConflict, "Index scheduler is not configured", nil)
		return
	}
	n := h.Scheduler.RunNow(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"provisioned": n, "pending": h.Scheduler.Pending()})
}

// Health reports liveness.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// REQUEST PARSING
// =============================================================================

func ownerParam(r *http.Request) generic.OwnerID {
	return generic.OwnerID(chi.URLParam(r, "owner"))
}

// parseDescriptor builds a query descriptor from the URL. Parameters other
// than from, to and limit must be equality fields of m.
func parseDescriptor(r *http.Request, m generic.Mapping) (generic.Descriptor, error) {
	d := generic.Descriptor{OwnerID: ownerParam(r)}
	query := r.URL.Query()

	raw := map[string]string{}
	names := generic.Filters{}
	for key, values := range query {
		if len(values) == 0 {
			continue
		}
		value := values[0]
		switch key {
		case "from":
			t, err := parseInstant("from", value, false)
			if err != nil {
				return generic.Descriptor{}, err
			}
			d.Start = &t
		case "to":
			t, err := parseInstant("to", value, true)
			if err != nil {
				return generic.Descriptor{}, err
			}
			d.End = &t
		case "limit":
			n, err := strconv.Atoi(value)
			if err != nil {
				return generic.Descriptor{}, &generic.ValidationError{Field: "limit", Message: fmt.Sprintf("expected integer, got %q", value)}
			}
			d.Limit = &n
		default:
			raw[key] = value
			names[key] = value
		}
	}

	if err := m.ValidateFilters(names); err != nil {
		return generic.Descriptor{}, err
	}
	filters, err := m.ParseFilters(raw)
	if err != nil {
		return generic.Descriptor{}, err
	}
	if len(filters) > 0 {
		d.Equals = filters
	}
	return d, nil
}

// parseInstant accepts a calendar date or an RFC3339 instant. A date maps
// to the first millisecond of the day, or the last when endOfDay is set.
func parseInstant(field, value string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		if endOfDay {
			return generic.DayEnd(t), nil
		}
		return generic.DayStart(t), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, &generic.ValidationError{Field: field, Message: fmt.Sprintf("expected YYYY-MM-DD or RFC3339, got %q", value)}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// =============================================================================
// RESPONSES
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeFailure maps err to a status code.
func writeFailure(w http.ResponseWriter, message string, err error) {
	writeError(w, errorStatus(err), message, err)
}

func errorStatus(err error) int {
	switch {
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, timetracking.ErrAlreadyStopped):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
