// Package todos stores todo items. The primary timestamp is creation time.
package todos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/tracker/generic"
)

type Status string

const (
	StatusOpen Status = "open"
	StatusDone Status = "done"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Todo is one task.
type Todo struct {
	ID          string          `json:"id"`
	OwnerID     generic.OwnerID `json:"owner_id"`
	Title       string          `json:"title"`
	Status      Status          `json:"status"`
	Priority    Priority        `json:"priority"`
	DueAt       *time.Time      `json:"due_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (t Todo) RecordKey() string     { return t.ID }
func (t Todo) RecordTime() time.Time { return t.CreatedAt }

func (t Todo) Attribute(field string) (any, bool) {
	switch field {
	case "status":
		return string(t.Status), true
	case "priority":
		return string(t.Priority), true
	}
	return nil, false
}

// Mapping is the todos collection layout.
var Mapping = generic.Mapping{
	Collection: "todos",
	OwnerField: "owner_id",
	RangeField: "created_at",
	EqualityFields: []generic.Field{
		{Name: "status", Kind: generic.KindString},
		{Name: "priority", Kind: generic.KindString},
	},
}

func Indexes() []generic.IndexSpec {
	return []generic.IndexSpec{
		Mapping.IndexFor(),
		Mapping.IndexFor("status"),
		Mapping.IndexFor("priority"),
		Mapping.IndexFor("priority", "status"),
	}
}

type Codec struct{}

func (Codec) Encode(t Todo) generic.Document {
	return generic.Document{
		ID: t.ID,
		Fields: map[string]any{
			"owner_id":     string(t.OwnerID),
			"title":        t.Title,
			"status":       string(t.Status),
			"priority":     string(t.Priority),
			"due_at":       t.DueAt,
			"completed_at": t.CompletedAt,
			"created_at":   t.CreatedAt,
		},
	}
}

func (Codec) Decode(doc generic.Document) (Todo, error) {
	created, err := doc.Time("created_at")
	if err != nil {
		return Todo{}, err
	}
	due, err := doc.OptionalTime("due_at")
	if err != nil {
		return Todo{}, err
	}
	completed, err := doc.OptionalTime("completed_at")
	if err != nil {
		return Todo{}, err
	}
	return Todo{
		ID:          doc.ID,
		OwnerID:     generic.OwnerID(doc.String("owner_id")),
		Title:       doc.String("title"),
		Status:      Status(doc.String("status")),
		Priority:    Priority(doc.String("priority")),
		DueAt:       due,
		CompletedAt: completed,
		CreatedAt:   created,
	}, nil
}

func (t Todo) Validate() error {
	switch {
	case t.OwnerID == "":
		return &generic.ValidationError{Field: "owner_id", Message: "required"}
	case strings.TrimSpace(t.Title) == "":
		return &generic.ValidationError{Field: "title", Message: "required"}
	case t.Status != StatusOpen && t.Status != StatusDone:
		return &generic.ValidationError{Field: "status", Message: "must be open or done"}
	case t.Priority != PriorityLow && t.Priority != PriorityNormal && t.Priority != PriorityHigh:
		return &generic.ValidationError{Field: "priority", Message: "must be low, normal or high"}
	}
	return nil
}

// Repository stores and queries todos.
type Repository struct {
	*generic.Collection[Todo]
	Now func() time.Time
}

func NewRepository(store generic.DocumentStore, observer generic.FallbackObserver) *Repository {
	return &Repository{
		Collection: generic.NewCollection[Todo](store, Mapping, Codec{}, observer),
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new todo. Status defaults to open, priority to normal.
func (r *Repository) Create(ctx context.Context, t Todo) (Todo, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.Now()
	}
	t.CreatedAt = t.CreatedAt.UTC().Truncate(time.Millisecond)
	if t.Status == "" {
		t.Status = StatusOpen
	}
	if t.Priority == "" {
		t.Priority = PriorityNormal
	}
	if err := t.Validate(); err != nil {
		return Todo{}, err
	}
	if err := r.Put(ctx, t); err != nil {
		return Todo{}, err
	}
	return t, nil
}

// MarkDone closes a todo. Closing a closed todo is a no-op.
func (r *Repository) MarkDone(ctx context.Context, owner generic.OwnerID, id string) (Todo, error) {
	t, err := r.Get(ctx, owner, id)
	if err != nil {
		return Todo{}, err
	}
	if t.Status == StatusDone {
		return t, nil
	}
	now := r.Now().UTC().Truncate(time.Millisecond)
	t.Status = StatusDone
	t.CompletedAt = &now
	if err := r.Put(ctx, t); err != nil {
		return Todo{}, err
	}
	return t, nil
}

// Open returns the owner's open todos in d's window, newest first. d may
// carry other filters; a status filter other than open is rejected.
func (r *Repository) Open(ctx context.Context, d generic.Descriptor) (generic.Result[Todo], error) {
	equals := generic.Filters{}
	for k, v := range d.Equals {
		equals[k] = v
	}
	if status, ok := equals["status"]; ok && !generic.ValuesEqual(status, string(StatusOpen)) {
		return generic.Result[Todo]{}, &generic.ValidationError{Field: "status", Message: "open todos cannot be filtered by another status"}
	}
	equals["status"] = string(StatusOpen)
	d.Equals = equals
	return r.Find(ctx, d)
}
