package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tracker/expenses"
	"github.com/warp/tracker/habits"
	"github.com/warp/tracker/timetracking"
	"github.com/warp/tracker/todos"
)

const base = "/api/owners/alice"

// =============================================================================
// EXPENSES
// =============================================================================

func TestExpenses_CreateQueryGetDelete(t *testing.T) {
	// GIVEN: expenses on four days
	s := newTestServer(t, false)
	var ids []string
	for i, req := range []CreateExpenseRequest{
		{Date: "2026-03-01", Amount: decimal.RequireFromString("4.50"), Currency: "usd", Category: "coffee"},
		{Date: "2026-03-02", Amount: decimal.RequireFromString("60"), Currency: "USD", Category: "groceries"},
		{Date: "2026-03-03T18:30:00Z", Amount: decimal.RequireFromString("3.20"), Currency: "USD", Category: "coffee"},
		{Date: "2026-03-05", Amount: decimal.RequireFromString("5"), Currency: "EUR", Category: "coffee"},
	} {
		e := decode[expenses.Expense](t, s.do(t, http.MethodPost, base+"/expenses", req), http.StatusCreated)
		assert.NotEmpty(t, e.ID, "expense %d", i)
		ids = append(ids, e.ID)
	}

	// WHEN: querying coffee in USD between two calendar days
	rec := s.do(t, http.MethodGet, base+"/expenses?from=2026-03-01&to=2026-03-03&category=coffee&currency=USD", nil)

	// THEN: both USD coffees come back newest first
	res := list[expenses.Expense](t, rec)
	assert.Equal(t, "false", rec.Header().Get(HeaderDegraded))
	assert.False(t, res.Degraded)
	require.Equal(t, 2, res.Count)
	assert.Equal(t, ids[2], res.Items[0].ID)
	assert.Equal(t, ids[0], res.Items[1].ID)
	assert.Equal(t, "USD", res.Items[1].Currency)

	// AND: a limit keeps the newest
	res = list[expenses.Expense](t, s.do(t, http.MethodGet, base+"/expenses?limit=1", nil))
	require.Len(t, res.Items, 1)
	assert.Equal(t, ids[3], res.Items[0].ID)

	// AND: single record operations are owner scoped
	got := decode[expenses.Expense](t, s.do(t, http.MethodGet, base+"/expenses/"+ids[1], nil), http.StatusOK)
	assert.True(t, decimal.NewFromInt(60).Equal(got.Amount))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/owners/bob/expenses/"+ids[1], nil).Code)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, base+"/expenses/"+ids[1], nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, base+"/expenses/"+ids[1], nil).Code)
}

func TestExpenses_CreateRejectsInvalidInput(t *testing.T) {
	s := newTestServer(t, false)

	tests := []struct {
		name string
		body any
	}{
		{"bad date", CreateExpenseRequest{Date: "March 1st", Amount: decimal.NewFromInt(1), Currency: "USD", Category: "x"}},
		{"negative amount", CreateExpenseRequest{Date: "2026-03-01", Amount: decimal.NewFromInt(-1), Currency: "USD", Category: "x"}},
		{"not json", "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, base+"/expenses", tt.body)
			resp := decode[ErrorResponse](t, rec, http.StatusBadRequest)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

// =============================================================================
// QUERY PARAMETERS
// =============================================================================

func TestList_RejectsInvalidParameters(t *testing.T) {
	s := newTestServer(t, false)

	for _, path := range []string{
		base + "/expenses?limit=-1",
		base + "/expenses?limit=ten",
		base + "/expenses?from=yesterday",
		base + "/expenses?to=2026-13-45",
		base + "/expenses?merchant=acme",
		base + "/habits?archived=maybe",
		base + "/time-entries?billable=sometimes",
	} {
		t.Run(path, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", rec.Body.String())
		})
	}
}

func TestList_LimitZeroReturnsEmptyItems(t *testing.T) {
	s := newTestServer(t, false)
	decode[expenses.Expense](t, s.do(t, http.MethodPost, base+"/expenses", CreateExpenseRequest{
		Date: "2026-03-01", Amount: decimal.NewFromInt(1), Currency: "USD", Category: "x",
	}), http.StatusCreated)

	rec := s.do(t, http.MethodGet, base+"/expenses?limit=0", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items": [], "count": 0, "degraded": false}`, rec.Body.String())
}

func TestList_DateBoundsAreInclusiveCalendarDays(t *testing.T) {
	s := newTestServer(t, false)
	for _, at := range []string{"2026-03-01T00:00:00Z", "2026-03-01T23:59:59.999Z", "2026-03-02T00:00:00Z"} {
		decode[expenses.Expense](t, s.do(t, http.MethodPost, base+"/expenses", CreateExpenseRequest{
			Date: at, Amount: decimal.NewFromInt(1), Currency: "USD", Category: "x",
		}), http.StatusCreated)
	}

	res := list[expenses.Expense](t, s.do(t, http.MethodGet, base+"/expenses?from=2026-03-01&to=2026-03-01", nil))

	assert.Equal(t, 2, res.Count)
}

// =============================================================================
// DEGRADED QUERIES AND INDEX PROVISIONING
// =============================================================================

func TestList_DegradedUntilIndexProvisioned(t *testing.T) {
	// GIVEN: a strict store with only the plain date index
	s := newTestServer(t, true)
	require.NoError(t, s.mem.EnsureIndex(t.Context(), expenses.Mapping.IndexFor()))
	for _, cat := range []string{"food", "rent", "food"} {
		decode[expenses.Expense](t, s.do(t, http.MethodPost, base+"/expenses", CreateExpenseRequest{
			Date: "2026-03-01", Amount: decimal.NewFromInt(10), Currency: "USD", Category: cat,
		}), http.StatusCreated)
	}

	// WHEN: filtering by category
	rec := s.do(t, http.MethodGet, base+"/expenses?category=food", nil)

	// THEN: the answer is complete but flagged degraded
	res := list[expenses.Expense](t, rec)
	assert.Equal(t, "true", rec.Header().Get(HeaderDegraded))
	assert.True(t, res.Degraded)
	assert.Equal(t, 2, res.Count)

	// AND: the missing index is pending
	status := decode[struct {
		Enabled bool       `json:"enabled"`
		Pending []string   `json:"pending"`
		Runs    []IndexRun `json:"runs"`
	}](t, s.do(t, http.MethodGet, "/api/admin/indexes", nil), http.StatusOK)
	assert.Equal(t, []string{"idx_expenses_owner_id_category_date"}, status.Pending)
	assert.Empty(t, status.Runs)

	// WHEN: provisioning
	prov := decode[struct {
		Provisioned int      `json:"provisioned"`
		Pending     []string `json:"pending"`
	}](t, s.do(t, http.MethodPost, "/api/admin/indexes/provision", nil), http.StatusOK)
	assert.Equal(t, 1, prov.Provisioned)
	assert.Empty(t, prov.Pending)

	// THEN: the same query is served by the index
	rec = s.do(t, http.MethodGet, base+"/expenses?category=food", nil)
	res = list[expenses.Expense](t, rec)
	assert.Equal(t, "false", rec.Header().Get(HeaderDegraded))
	assert.Equal(t, 2, res.Count)
}

func TestProvisionIndexes_WithoutScheduler(t *testing.T) {
	s := newTestServer(t, false)
	s.h.Scheduler = nil

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/admin/indexes/provision", nil).Code)
	assert.JSONEq(t, `{"enabled": false, "pending": [], "runs": []}`,
		s.do(t, http.MethodGet, "/api/admin/indexes", nil).Body.String())
}

// =============================================================================
// HABITS
// =============================================================================

func TestHabits_CompleteAndQueryCompletions(t *testing.T) {
	s := newTestServer(t, false)
	habit := decode[habits.Habit](t, s.do(t, http.MethodPost, base+"/habits", CreateHabitRequest{Name: "Read"}), http.StatusCreated)
	assert.Equal(t, habits.Daily, habit.Frequency)

	for d := 1; d <= 3; d++ {
		at := time.Date(2026, 3, d, 7, 0, 0, 0, time.UTC)
		decode[habits.Completion](t, s.do(t, http.MethodPost, base+"/completions",
			CompleteHabitRequest{HabitID: habit.ID, CompletedAt: &at}), http.StatusCreated)
	}

	res := list[habits.Completion](t, s.do(t, http.MethodGet, base+"/habits/"+habit.ID+"/completions?from=2026-03-02", nil))
	require.Equal(t, 2, res.Count)
	assert.Equal(t, 3, res.Items[0].CompletedAt.Day())

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, base+"/habits/nope/completions", nil).Code)
	assert.Equal(t, http.StatusBadRequest,
		s.do(t, http.MethodGet, base+"/habits/"+habit.ID+"/completions?habit_id=other", nil).Code)

	decode[habits.Habit](t, s.do(t, http.MethodPost, base+"/habits/"+habit.ID+"/archive", nil), http.StatusOK)
	rec := s.do(t, http.MethodPost, base+"/completions", CompleteHabitRequest{HabitID: habit.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	archived := list[habits.Habit](t, s.do(t, http.MethodGet, base+"/habits?archived=true", nil))
	assert.Equal(t, 1, archived.Count)
}

// =============================================================================
// TODOS
// =============================================================================

func TestTodos_OpenAndDone(t *testing.T) {
	s := newTestServer(t, false)
	first := decode[todos.Todo](t, s.do(t, http.MethodPost, base+"/todos", CreateTodoRequest{Title: "Pay rent", Priority: "high"}), http.StatusCreated)
	decode[todos.Todo](t, s.do(t, http.MethodPost, base+"/todos", CreateTodoRequest{Title: "Water plants"}), http.StatusCreated)

	done := decode[todos.Todo](t, s.do(t, http.MethodPost, base+"/todos/"+first.ID+"/done", nil), http.StatusOK)
	assert.Equal(t, todos.StatusDone, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, testNow, *done.CompletedAt)

	open := list[todos.Todo](t, s.do(t, http.MethodGet, base+"/todos/open", nil))
	require.Equal(t, 1, open.Count)
	assert.Equal(t, "Water plants", open.Items[0].Title)

	high := list[todos.Todo](t, s.do(t, http.MethodGet, base+"/todos?priority=high", nil))
	assert.Equal(t, 1, high.Count)

	assert.Equal(t, http.StatusBadRequest,
		s.do(t, http.MethodPost, base+"/todos", CreateTodoRequest{Title: "x", Priority: "asap"}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, base+"/todos/missing/done", nil).Code)
}

func TestTodos_OpenHonoursWindowAndFilters(t *testing.T) {
	// GIVEN: an old low-priority todo and a recent high-priority one
	s := newTestServer(t, false)
	s.h.SetClock(func() time.Time { return time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC) })
	decode[todos.Todo](t, s.do(t, http.MethodPost, base+"/todos", CreateTodoRequest{Title: "low old", Priority: "low"}), http.StatusCreated)
	s.h.SetClock(func() time.Time { return time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC) })
	decode[todos.Todo](t, s.do(t, http.MethodPost, base+"/todos", CreateTodoRequest{Title: "high recent", Priority: "high"}), http.StatusCreated)

	// WHEN
	res := list[todos.Todo](t, s.do(t, http.MethodGet, base+"/todos/open?priority=high&from=2026-02-01", nil))

	// THEN
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "high recent", res.Items[0].Title)

	assert.Equal(t, 1, list[todos.Todo](t, s.do(t, http.MethodGet, base+"/todos/open?to=2026-01-31", nil)).Count)
	assert.Equal(t, 2, list[todos.Todo](t, s.do(t, http.MethodGet, base+"/todos/open?status=open", nil)).Count)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, base+"/todos/open?status=done", nil).Code)
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

func TestTimeEntries_StartStop(t *testing.T) {
	s := newTestServer(t, false)
	running := decode[timetracking.Entry](t, s.do(t, http.MethodPost, base+"/time-entries",
		CreateTimeEntryRequest{Project: "tracker", Billable: true}), http.StatusCreated)
	assert.Equal(t, testNow, running.Start)
	assert.Nil(t, running.End)

	at := testNow.Add(45 * time.Minute)
	stopped := decode[timetracking.Entry](t, s.do(t, http.MethodPost, base+"/time-entries/"+running.ID+"/stop",
		StopTimeEntryRequest{At: &at}), http.StatusOK)
	require.NotNil(t, stopped.End)
	assert.Equal(t, 45*time.Minute, stopped.Duration(testNow))

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, base+"/time-entries/"+running.ID+"/stop", nil).Code)

	billable := list[timetracking.Entry](t, s.do(t, http.MethodGet, base+"/time-entries?billable=true&from=2026-03-15", nil))
	assert.Equal(t, 1, billable.Count)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, false)
	assert.JSONEq(t, `{"status": "ok"}`, s.do(t, http.MethodGet, "/healthz", nil).Body.String())
}
