// Package habits stores habits and their completions.
//
// A habit's primary timestamp is when it was created; a completion's is
// when it was completed. Streak counting is left to callers.
package habits

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/tracker/generic"
)

// Frequency is how often a habit is meant to be done.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	return f == Daily || f == Weekly || f == Monthly
}

// =============================================================================
// HABIT
// =============================================================================

// Habit is a recurring activity the owner tracks.
type Habit struct {
	ID        string          `json:"id"`
	OwnerID   generic.OwnerID `json:"owner_id"`
	Name      string          `json:"name"`
	Frequency Frequency       `json:"frequency"`
	Archived  bool            `json:"archived"`
	CreatedAt time.Time       `json:"created_at"`
}

func (h Habit) RecordKey() string     { return h.ID }
func (h Habit) RecordTime() time.Time { return h.CreatedAt }

func (h Habit) Attribute(field string) (any, bool) {
	switch field {
	case "frequency":
		return string(h.Frequency), true
	case "archived":
		return h.Archived, true
	}
	return nil, false
}

// HabitMapping is the habits collection layout.
var HabitMapping = generic.Mapping{
	Collection: "habits",
	OwnerField: "owner_id",
	RangeField: "created_at",
	EqualityFields: []generic.Field{
		{Name: "frequency", Kind: generic.KindString},
		{Name: "archived", Kind: generic.KindBool},
	},
}

type HabitCodec struct{}

func (HabitCodec) Encode(h Habit) generic.Document {
	return generic.Document{
		ID: h.ID,
		Fields: map[string]any{
			"owner_id":   string(h.OwnerID),
			"name":       h.Name,
			"frequency":  string(h.Frequency),
			"archived":   h.Archived,
			"created_at": h.CreatedAt,
		},
	}
}

func (HabitCodec) Decode(doc generic.Document) (Habit, error) {
	created, err := doc.Time("created_at")
	if err != nil {
		return Habit{}, err
	}
	return Habit{
		ID:        doc.ID,
		OwnerID:   generic.OwnerID(doc.String("owner_id")),
		Name:      doc.String("name"),
		Frequency: Frequency(doc.String("frequency")),
		Archived:  doc.Bool("archived"),
		CreatedAt: created,
	}, nil
}

func (h Habit) Validate() error {
	switch {
	case h.OwnerID == "":
		return &generic.ValidationError{Field: "owner_id", Message: "required"}
	case strings.TrimSpace(h.Name) == "":
		return &generic.ValidationError{Field: "name", Message: "required"}
	case !h.Frequency.Valid():
		return &generic.ValidationError{Field: "frequency", Message: "must be daily, weekly or monthly"}
	}
	return nil
}

// =============================================================================
// COMPLETION
// =============================================================================

// Completion records one time a habit was done.
type Completion struct {
	ID          string          `json:"id"`
	OwnerID     generic.OwnerID `json:"owner_id"`
	HabitID     string          `json:"habit_id"`
	CompletedAt time.Time       `json:"completed_at"`
	Note        string          `json:"note,omitempty"`
}

func (c Completion) RecordKey() string     { return c.ID }
func (c Completion) RecordTime() time.Time { return c.CompletedAt }

func (c Completion) Attribute(field string) (any, bool) {
	if field == "habit_id" {
		return c.HabitID, true
	}
	return nil, false
}

// CompletionMapping is the habit completions collection layout.
var CompletionMapping = generic.Mapping{
	Collection: "habit_completions",
	OwnerField: "owner_id",
	RangeField: "completed_at",
	EqualityFields: []generic.Field{
		{Name: "habit_id", Kind: generic.KindString},
	},
}

type CompletionCodec struct{}

func (CompletionCodec) Encode(c Completion) generic.Document {
	return generic.Document{
		ID: c.ID,
		Fields: map[string]any{
			"owner_id":     string(c.OwnerID),
			"habit_id":     c.HabitID,
			"completed_at": c.CompletedAt,
			"note":         c.Note,
		},
	}
}

func (CompletionCodec) Decode(doc generic.Document) (Completion, error) {
	at, err := doc.Time("completed_at")
	if err != nil {
		return Completion{}, err
	}
	return Completion{
		ID:          doc.ID,
		OwnerID:     generic.OwnerID(doc.String("owner_id")),
		HabitID:     doc.String("habit_id"),
		CompletedAt: at,
		Note:        doc.String("note"),
	}, nil
}

// Indexes returns the composite indexes for habits and completions.
func Indexes() []generic.IndexSpec {
	return []generic.IndexSpec{
		HabitMapping.IndexFor(),
		HabitMapping.IndexFor("archived"),
		HabitMapping.IndexFor("frequency"),
		HabitMapping.IndexFor("archived", "frequency"),
		CompletionMapping.IndexFor(),
		CompletionMapping.IndexFor("habit_id"),
	}
}

// =============================================================================
// REPOSITORY
// =============================================================================

// Repository stores habits and completions.
type Repository struct {
	Habits      *generic.Collection[Habit]
	Completions *generic.Collection[Completion]
	Now         func() time.Time
}

func NewRepository(store generic.DocumentStore, observer generic.FallbackObserver) *Repository {
	return &Repository{
		Habits:      generic.NewCollection[Habit](store, HabitMapping, HabitCodec{}, observer),
		Completions: generic.NewCollection[Completion](store, CompletionMapping, CompletionCodec{}, observer),
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateHabit validates and stores a new habit.
func (r *Repository) CreateHabit(ctx context.Context, h Habit) (Habit, error) {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = r.Now()
	}
	h.CreatedAt = h.CreatedAt.UTC().Truncate(time.Millisecond)
	if err := h.Validate(); err != nil {
		return Habit{}, err
	}
	if err := r.Habits.Put(ctx, h); err != nil {
		return Habit{}, err
	}
	return h, nil
}

// Complete records a completion of one of the owner's habits. The habit
// must exist and not be archived. A zero CompletedAt means now.
func (r *Repository) Complete(ctx context.Context, c Completion) (Completion, error) {
	if c.OwnerID == "" {
		return Completion{}, &generic.ValidationError{Field: "owner_id", Message: "required"}
	}
	habit, err := r.Habits.Get(ctx, c.OwnerID, c.HabitID)
	if errors.Is(err, generic.ErrNotFound) {
		return Completion{}, &generic.ValidationError{Field: "habit_id", Message: "unknown habit " + c.HabitID}
	}
	if err != nil {
		return Completion{}, err
	}
	if habit.Archived {
		return Completion{}, &generic.ValidationError{Field: "habit_id", Message: "habit is archived"}
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CompletedAt.IsZero() {
		c.CompletedAt = r.Now()
	}
	c.CompletedAt = c.CompletedAt.UTC().Truncate(time.Millisecond)
	if err := r.Completions.Put(ctx, c); err != nil {
		return Completion{}, err
	}
	return c, nil
}

// HabitCompletions returns one habit's completions in the window, newest first.
func (r *Repository) HabitCompletions(ctx context.Context, owner generic.OwnerID, habitID string, bounds generic.Bounds, limit *int) (generic.Result[Completion], error) {
	return r.Completions.Find(ctx, generic.Descriptor{
		OwnerID: owner,
		Start:   bounds.Start,
		End:     bounds.End,
		Equals:  generic.Filters{"habit_id": habitID},
		Limit:   limit,
	})
}

// Archive marks a habit archived. Archived habits keep their completions.
func (r *Repository) Archive(ctx context.Context, owner generic.OwnerID, id string) (Habit, error) {
	h, err := r.Habits.Get(ctx, owner, id)
	if err != nil {
		return Habit{}, err
	}
	h.Archived = true
	if err := r.Habits.Put(ctx, h); err != nil {
		return Habit{}, err
	}
	return h, nil
}
