/*
expenses.go - Expense records

PURPOSE:
  Expenses are dated money amounts with a category and currency. The
  primary timestamp is the expense date (when the money was spent), not
  when the record was created.

QUERY SHAPES:
  - Date range, newest first
  - Date range filtered by category and/or currency
  Indexes() lists the composite index for each shape.

PRECISION:
  Amounts use decimal.Decimal and are persisted as strings so no store
  round-trips them through float64.
*/
package expenses

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/tracker/generic"
)

// Expense is one spending record.
type Expense struct {
	ID          string          `json:"id"`
	OwnerID     generic.OwnerID `json:"owner_id"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (e Expense) RecordKey() string     { return e.ID }
func (e Expense) RecordTime() time.Time { return e.Date }

func (e Expense) Attribute(field string) (any, bool) {
	switch field {
	case "category":
		return e.Category, true
	case "currency":
		return e.Currency, true
	}
	return nil, false
}

var _ generic.Record = Expense{}

// Mapping is the expenses collection layout.
var Mapping = generic.Mapping{
	Collection: "expenses",
	OwnerField: "owner_id",
	RangeField: "date",
	EqualityFields: []generic.Field{
		{Name: "category", Kind: generic.KindString},
		{Name: "currency", Kind: generic.KindString},
	},
}

// Indexes returns the composite indexes the expense queries need.
func Indexes() []generic.IndexSpec {
	return []generic.IndexSpec{
		Mapping.IndexFor(),
		Mapping.IndexFor("category"),
		Mapping.IndexFor("currency"),
		Mapping.IndexFor("category", "currency"),
	}
}

// Codec converts expenses to and from documents.
type Codec struct{}

func (Codec) Encode(e Expense) generic.Document {
	return generic.Document{
		ID: e.ID,
		Fields: map[string]any{
			"owner_id":    string(e.OwnerID),
			"date":        e.Date,
			"amount":      e.Amount.String(),
			"currency":    e.Currency,
			"category":    e.Category,
			"description": e.Description,
			"created_at":  e.CreatedAt,
		},
	}
}

func (Codec) Decode(doc generic.Document) (Expense, error) {
	date, err := doc.Time("date")
	if err != nil {
		return Expense{}, err
	}
	created, err := doc.Time("created_at")
	if err != nil {
		return Expense{}, err
	}
	amount, err := doc.Decimal("amount")
	if err != nil {
		return Expense{}, fmt.Errorf("field %q: %w", "amount", err)
	}
	return Expense{
		ID:          doc.ID,
		OwnerID:     generic.OwnerID(doc.String("owner_id")),
		Date:        date,
		Amount:      amount,
		Currency:    doc.String("currency"),
		Category:    doc.String("category"),
		Description: doc.String("description"),
		CreatedAt:   created,
	}, nil
}

// Validate checks create-time invariants.
func (e Expense) Validate() error {
	switch {
	case e.OwnerID == "":
		return &generic.ValidationError{Field: "owner_id", Message: "required"}
	case e.Date.IsZero():
		return &generic.ValidationError{Field: "date", Message: "required"}
	case !e.Amount.IsPositive():
		return &generic.ValidationError{Field: "amount", Message: "must be positive"}
	case len(e.Currency) != 3:
		return &generic.ValidationError{Field: "currency", Message: "must be a 3-letter ISO code"}
	case strings.TrimSpace(e.Category) == "":
		return &generic.ValidationError{Field: "category", Message: "required"}
	}
	return nil
}

// =============================================================================
// REPOSITORY
// =============================================================================

// Repository stores and queries expenses.
type Repository struct {
	*generic.Collection[Expense]
	Now func() time.Time
}

func NewRepository(store generic.DocumentStore, observer generic.FallbackObserver) *Repository {
	return &Repository{
		Collection: generic.NewCollection[Expense](store, Mapping, Codec{}, observer),
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and stores a new expense. ID and CreatedAt are assigned
// when empty; the currency is normalized to upper case.
func (r *Repository) Create(ctx context.Context, e Expense) (Expense, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.Now()
	}
	e.Currency = strings.ToUpper(e.Currency)
	e.Date = e.Date.UTC().Truncate(time.Millisecond)
	e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Millisecond)
	if err := e.Validate(); err != nil {
		return Expense{}, err
	}
	if err := r.Put(ctx, e); err != nil {
		return Expense{}, err
	}
	return e, nil
}
