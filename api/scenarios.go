/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate one owner's collections with
	realistic data for demos and manual query testing. Data is laid out
	relative to the current day so date-range queries always have results.

AVAILABLE SCENARIOS:

	monthly-expenses: Two months of expenses across categories and currencies
	habit-tracker:    Daily and weekly habits with completions, one archived
	work-week:        Todos and two weeks of time entries, one timer running
	everything:       All of the above for the same owner

HOW SCENARIOS WORK:
 1. Delete every record the owner has (other owners are untouched)
 2. Create records through the repositories (validation applies)
 3. Remember the loaded scenario

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "everything", "owner_id": "demo-user"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxx(ctx, owner, anchor)
 3. Add case to LoadScenarioByID

SEE ALSO:
  - handlers.go: Repositories the loaders write through
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/tracker/expenses"
	"github.com/warp/tracker/generic"
	"github.com/warp/tracker/habits"
	"github.com/warp/tracker/timetracking"
	"github.com/warp/tracker/todos"
)

// DefaultScenarioOwner owns scenario data when no owner is given.
const DefaultScenarioOwner generic.OwnerID = "demo-user"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "monthly-expenses",
		Name:        "Monthly Expenses",
		Description: "Sixty days of expenses in USD and EUR across five categories plus rent",
		Category:    "expenses",
	},
	{
		ID:          "habit-tracker",
		Name:        "Habit Tracker",
		Description: "Daily and weekly habits with a month of completions; one habit archived",
		Category:    "habits",
	},
	{
		ID:          "work-week",
		Name:        "Work Week",
		Description: "Open and closed todos plus two weeks of time entries with a running timer",
		Category:    "productivity",
	},
	{
		ID:          "everything",
		Name:        "Everything",
		Description: "All scenarios loaded for the same owner",
		Category:    "all",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}
	owner := req.OwnerID
	if owner == "" {
		owner = DefaultScenarioOwner
	}

	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID, owner); err != nil {
		writeFailure(w, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"owner_id": string(owner),
	})
}

// ResetOwner deletes every record of one owner.
// POST /api/scenarios/reset {"owner_id": "..."}
func (h *Handler) ResetOwner(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}
	owner := req.OwnerID
	if owner == "" {
		owner = DefaultScenarioOwner
	}
	n, err := h.clearOwner(r.Context(), owner)
	if err != nil {
		writeFailure(w, "Failed to reset owner", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset", "owner_id": owner, "deleted": n})
}

// LoadScenarioByID replaces the owner's data with a scenario.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string, owner generic.OwnerID) error {
	known := false
	for _, s := range scenarios {
		known = known || s.ID == id
	}
	if !known {
		return &generic.ValidationError{Field: "scenario_id", Message: fmt.Sprintf("unknown scenario %q", id)}
	}

	if _, err := h.clearOwner(ctx, owner); err != nil {
		return err
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	anchor := generic.DayStart(h.now())
	var err error
	switch id {
	case "monthly-expenses":
		err = h.loadMonthlyExpenses(ctx, owner, anchor)
	case "habit-tracker":
		err = h.loadHabitTracker(ctx, owner, anchor)
	case "work-week":
		err = h.loadWorkWeek(ctx, owner, anchor)
	case "everything":
		err = h.loadMonthlyExpenses(ctx, owner, anchor)
		if err == nil {
			err = h.loadHabitTracker(ctx, owner, anchor)
		}
		if err == nil {
			err = h.loadWorkWeek(ctx, owner, anchor)
		}
	}
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	h.Logger.Info("Loaded scenario", "scenario", id, "owner", owner)
	return nil
}

// =============================================================================
// RESET
// =============================================================================

func (h *Handler) clearOwner(ctx context.Context, owner generic.OwnerID) (int, error) {
	total := 0
	counts := []func() (int, error){
		func() (int, error) { return clearCollection(ctx, h.Expenses.Collection, owner) },
		func() (int, error) { return clearCollection(ctx, h.Habits.Completions, owner) },
		func() (int, error) { return clearCollection(ctx, h.Habits.Habits, owner) },
		func() (int, error) { return clearCollection(ctx, h.Todos.Collection, owner) },
		func() (int, error) { return clearCollection(ctx, h.TimeEntries.Collection, owner) },
	}
	for _, count := range counts {
		n, err := count()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func clearCollection[R generic.Record](ctx context.Context, c *generic.Collection[R], owner generic.OwnerID) (int, error) {
	res, err := c.Find(ctx, generic.Descriptor{OwnerID: owner})
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", c.Mapping.Collection, err)
	}
	for _, rec := range res.Records {
		if err := c.Delete(ctx, owner, rec.RecordKey()); err != nil && !generic.IsNotFound(err) {
			return 0, fmt.Errorf("delete %s %s: %w", c.Mapping.Collection, rec.RecordKey(), err)
		}
	}
	return len(res.Records), nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

var expenseCategories = []string{"groceries", "transport", "dining", "utilities", "entertainment"}

func (h *Handler) loadMonthlyExpenses(ctx context.Context, owner generic.OwnerID, anchor time.Time) error {
	for day := 0; day < 60; day++ {
		currency := "USD"
		if day%7 == 3 {
			currency = "EUR"
		}
		_, err := h.Expenses.Create(ctx, expenses.Expense{
			OwnerID:     owner,
			Date:        anchor.AddDate(0, 0, -day).Add(time.Duration(8+day%12) * time.Hour),
			Amount:      decimal.New(int64(500+(day*137)%4500), -2),
			Currency:    currency,
			Category:    expenseCategories[day%len(expenseCategories)],
			Description: fmt.Sprintf("%s purchase", expenseCategories[day%len(expenseCategories)]),
		})
		if err != nil {
			return err
		}
	}

	// Rent on the first of the current and previous month.
	for m := 0; m < 2; m++ {
		first := time.Date(anchor.Year(), anchor.Month(), 1, 9, 0, 0, 0, time.UTC).AddDate(0, -m, 0)
		_, err := h.Expenses.Create(ctx, expenses.Expense{
			OwnerID:     owner,
			Date:        first,
			Amount:      decimal.RequireFromString("1450.00"),
			Currency:    "USD",
			Category:    "housing",
			Description: "Rent",
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadHabitTracker(ctx context.Context, owner generic.OwnerID, anchor time.Time) error {
	created := anchor.AddDate(0, 0, -45)
	type plan struct {
		name    string
		freq    habits.Frequency
		done    func(day int) bool
		archive bool
	}
	plans := []plan{
		{name: "Morning run", freq: habits.Daily, done: func(day int) bool { return day%3 != 0 }},
		{name: "Read 20 pages", freq: habits.Daily, done: func(day int) bool { return true }},
		{name: "Weekly review", freq: habits.Weekly, done: func(day int) bool { return day%7 == 0 }},
		{name: "Meditate", freq: habits.Daily, done: func(day int) bool { return day >= 20 }, archive: true},
	}

	for _, p := range plans {
		habit, err := h.Habits.CreateHabit(ctx, habits.Habit{
			OwnerID:   owner,
			Name:      p.name,
			Frequency: p.freq,
			CreatedAt: created,
		})
		if err != nil {
			return err
		}
		for day := 0; day < 30; day++ {
			if !p.done(day) {
				continue
			}
			_, err := h.Habits.Complete(ctx, habits.Completion{
				OwnerID:     owner,
				HabitID:     habit.ID,
				CompletedAt: anchor.AddDate(0, 0, -day).Add(7 * time.Hour),
			})
			if err != nil {
				return err
			}
		}
		if p.archive {
			if _, err := h.Habits.Archive(ctx, owner, habit.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

var workProjects = []string{"tracker", "website", "support"}

func (h *Handler) loadWorkWeek(ctx context.Context, owner generic.OwnerID, anchor time.Time) error {
	items := []struct {
		title    string
		priority todos.Priority
		age      int
		due      int
		done     bool
	}{
		{"Ship range query fallback metrics", todos.PriorityHigh, 1, 2, false},
		{"Provision missing composite indexes", todos.PriorityHigh, 2, 1, false},
		{"Review expense categories", todos.PriorityNormal, 4, 7, false},
		{"Renew domain", todos.PriorityLow, 10, 20, false},
		{"Write weekly report", todos.PriorityNormal, 6, -1, true},
		{"Fix flaky habit test", todos.PriorityNormal, 8, -3, true},
	}
	for _, it := range items {
		due := anchor.AddDate(0, 0, it.due).Add(17 * time.Hour)
		t, err := h.Todos.Create(ctx, todos.Todo{
			OwnerID:   owner,
			Title:     it.title,
			Priority:  it.priority,
			CreatedAt: anchor.AddDate(0, 0, -it.age).Add(10 * time.Hour),
			DueAt:     &due,
		})
		if err != nil {
			return err
		}
		if it.done {
			if _, err := h.Todos.MarkDone(ctx, owner, t.ID); err != nil {
				return err
			}
		}
	}

	for day := 1; day <= 14; day++ {
		date := anchor.AddDate(0, 0, -day)
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		for slot := 0; slot < 2; slot++ {
			project := workProjects[(day+slot)%len(workProjects)]
			start := date.Add(time.Duration(9+slot*4) * time.Hour)
			end := start.Add(time.Duration(2+day%3) * time.Hour)
			_, err := h.TimeEntries.Create(ctx, timetracking.Entry{
				OwnerID:     owner,
				Project:     project,
				Description: fmt.Sprintf("%s work", project),
				Billable:    project != "support",
				Start:       start,
				End:         &end,
			})
			if err != nil {
				return err
			}
		}
	}

	// A timer started this morning and still running.
	_, err := h.TimeEntries.Create(ctx, timetracking.Entry{
		OwnerID:     owner,
		Project:     "tracker",
		Description: "Index provisioning",
		Billable:    true,
		Start:       anchor.Add(9 * time.Hour),
	})
	return err
}
