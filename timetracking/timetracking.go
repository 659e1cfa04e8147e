/*
Package timetracking stores time entries.

An entry's primary timestamp is its start. A running entry has no end;
Stop closes it. Durations are derived, never stored.
*/
package timetracking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/tracker/generic"
)

// ErrAlreadyStopped is returned when stopping an entry that has an end.
var ErrAlreadyStopped = errors.New("time entry already stopped")

// Entry is a block of tracked time.
type Entry struct {
	ID          string          `json:"id"`
	OwnerID     generic.OwnerID `json:"owner_id"`
	Project     string          `json:"project"`
	Description string          `json:"description,omitempty"`
	Billable    bool            `json:"billable"`
	Start       time.Time       `json:"start"`
	End         *time.Time      `json:"end,omitempty"`
}

func (e Entry) RecordKey() string     { return e.ID }
func (e Entry) RecordTime() time.Time { return e.Start }

func (e Entry) Attribute(field string) (any, bool) {
	switch field {
	case "project":
		return e.Project, true
	case "billable":
		return e.Billable, true
	}
	return nil, false
}

// Running reports whether the entry has not been stopped.
func (e Entry) Running() bool { return e.End == nil }

// Duration is End-Start, or now-Start for a running entry.
func (e Entry) Duration(now time.Time) time.Duration {
	if e.End != nil {
		return e.End.Sub(e.Start)
	}
	return now.Sub(e.Start)
}

// Mapping is the time entries collection layout.
var Mapping = generic.Mapping{
	Collection: "time_entries",
	OwnerField: "owner_id",
	RangeField: "start",
	EqualityFields: []generic.Field{
		{Name: "project", Kind: generic.KindString},
		{Name: "billable", Kind: generic.KindBool},
	},
}

func Indexes() []generic.IndexSpec {
	return []generic.IndexSpec{
		Mapping.IndexFor(),
		Mapping.IndexFor("project"),
		Mapping.IndexFor("billable"),
		Mapping.IndexFor("billable", "project"),
	}
}

type Codec struct{}

func (Codec) Encode(e Entry) generic.Document {
	return generic.Document{
		ID: e.ID,
		Fields: map[string]any{
			"owner_id":    string(e.OwnerID),
			"project":     e.Project,
			"description": e.Description,
			"billable":    e.Billable,
			"start":       e.Start,
			"end":         e.End,
		},
	}
}

func (Codec) Decode(doc generic.Document) (Entry, error) {
	start, err := doc.Time("start")
	if err != nil {
		return Entry{}, err
	}
	end, err := doc.OptionalTime("end")
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:          doc.ID,
		OwnerID:     generic.OwnerID(doc.String("owner_id")),
		Project:     doc.String("project"),
		Description: doc.String("description"),
		Billable:    doc.Bool("billable"),
		Start:       start,
		End:         end,
	}, nil
}

func (e Entry) Validate() error {
	switch {
	case e.OwnerID == "":
		return &generic.ValidationError{Field: "owner_id", Message: "required"}
	case strings.TrimSpace(e.Project) == "":
		return &generic.ValidationError{Field: "project", Message: "required"}
	case e.Start.IsZero():
		return &generic.ValidationError{Field: "start", Message: "required"}
	case e.End != nil && e.End.Before(e.Start):
		return &generic.ValidationError{Field: "end", Message: "must not be before start"}
	}
	return nil
}

// Repository stores and queries time entries.
type Repository struct {
	*generic.Collection[Entry]
	Now func() time.Time
}

func NewRepository(store generic.DocumentStore, observer generic.FallbackObserver) *Repository {
	return &Repository{
		Collection: generic.NewCollection[Entry](store, Mapping, Codec{}, observer),
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new entry. A zero Start means now (a started timer).
func (r *Repository) Create(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Start.IsZero() {
		e.Start = r.Now()
	}
	e.Start = e.Start.UTC().Truncate(time.Millisecond)
	if e.End != nil {
		end := e.End.UTC().Truncate(time.Millisecond)
		e.End = &end
	}
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	if err := r.Put(ctx, e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Stop ends a running entry at the given time (now if zero).
func (r *Repository) Stop(ctx context.Context, owner generic.OwnerID, id string, at time.Time) (Entry, error) {
	e, err := r.Get(ctx, owner, id)
	if err != nil {
		return Entry{}, err
	}
	if !e.Running() {
		return Entry{}, ErrAlreadyStopped
	}
	if at.IsZero() {
		at = r.Now()
	}
	at = at.UTC().Truncate(time.Millisecond)
	e.End = &at
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	if err := r.Put(ctx, e); err != nil {
		return Entry{}, err
	}
	return e, nil
}
