/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Records are returned
  as-is (they carry their own JSON tags); request bodies are separate so
  clients never choose IDs, owners or server timestamps.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers

TYPES:
  Queries:   ListResponse
  Create:    CreateExpenseRequest, CreateHabitRequest, CompleteHabitRequest,
             CreateTodoRequest, CreateTimeEntryRequest, StopTimeEntryRequest
  Scenarios: ScenarioDTO, LoadScenarioRequest
  Errors:    ErrorResponse

VALIDATION:
  Validation is done by the record packages, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/tracker/generic"
)

// =============================================================================
// QUERY RESPONSES
// =============================================================================

// ListResponse is the body of every range query endpoint.
type ListResponse[R generic.Record] struct {
	Items    []R  `json:"items"`
	Count    int  `json:"count"`
	Degraded bool `json:"degraded"`
}

func newListResponse[R generic.Record](res generic.Result[R]) ListResponse[R] {
	items := res.Records
	if items == nil {
		items = []R{}
	}
	return ListResponse[R]{Items: items, Count: len(items), Degraded: res.Degraded}
}

// =============================================================================
// CREATE REQUESTS
// =============================================================================

// CreateExpenseRequest is the body of POST .../expenses.
// Date accepts YYYY-MM-DD or RFC3339.
type CreateExpenseRequest struct {
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
}

// CreateHabitRequest is the body of POST .../habits.
type CreateHabitRequest struct {
	Name      string `json:"name"`
	Frequency string `json:"frequency"`
}

// CompleteHabitRequest is the body of POST .../completions.
type CompleteHabitRequest struct {
	HabitID     string     `json:"habit_id"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Note        string     `json:"note,omitempty"`
}

// CreateTodoRequest is the body of POST .../todos.
type CreateTodoRequest struct {
	Title    string     `json:"title"`
	Priority string     `json:"priority,omitempty"`
	DueAt    *time.Time `json:"due_at,omitempty"`
}

// CreateTimeEntryRequest is the body of POST .../time-entries.
// A missing start starts a timer now.
type CreateTimeEntryRequest struct {
	Project     string     `json:"project"`
	Description string     `json:"description,omitempty"`
	Billable    bool       `json:"billable"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
}

// StopTimeEntryRequest is the optional body of POST .../time-entries/{id}/stop.
type StopTimeEntryRequest struct {
	At *time.Time `json:"at,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string          `json:"scenario_id"`
	OwnerID    generic.OwnerID `json:"owner_id,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
