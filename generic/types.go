/*
Package generic provides the record-type-agnostic range query engine.

PURPOSE:
  Every record type in the tracker (expenses, habits, habit completions,
  todos, time entries) is queried the same way: owner-scoped, optionally
  bounded by a date range, optionally filtered by equality attributes,
  ordered newest-first and limited. This package implements that query
  ONCE. Record-type packages only supply a Mapping and a Codec.

KEY CONCEPTS IN THIS FILE (types.go):
  - Record: what the reconciler needs from a typed record
  - Document: the store-level representation of a record
  - Mapping: which fields hold the owner, the range timestamp, and the
    equality-filterable attributes for one collection
  - Codec: converts between typed records and documents

DESIGN PRINCIPLES:
  1. One inequality per store query. The second bound is applied in memory.
  2. Output never depends on which path produced it (indexed or fallback).
  3. Read-only: the engine never mutates records and holds no state.

USAGE:
  engine := generic.NewEngine(store, expenses.Mapping, expenses.Codec{})
  res, err := engine.Find(ctx, generic.Descriptor{
      OwnerID: "user-1",
      Start:   &from,
      End:     &to,
      Equals:  generic.Filters{"category": "food"},
  })

SEE ALSO:
  - resolver.go: Bound selection and the indexed query path
  - reconcile.go: In-memory reconciliation
  - fallback.go: Missing-index recovery
  - store.go: Store adapter interfaces
*/
package generic

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECORD - What the reconciler needs from a typed record
// =============================================================================

// Record is implemented by every typed record the engine returns.
// Implementations must be read-only: the engine never mutates records.
type Record interface {
	// RecordKey returns the record ID. Used as a deterministic tiebreak
	// between records sharing a timestamp.
	RecordKey() string

	// RecordTime returns the primary timestamp (the mapping's range field).
	RecordTime() time.Time

	// Attribute returns the value of an equality-filterable field.
	Attribute(field string) (any, bool)
}

// OwnerID identifies the user that owns a record.
type OwnerID string

// =============================================================================
// MAPPING - Per-collection field layout
// =============================================================================

// FieldKind is the scalar type of an equality-filterable field.
// It drives conversion of raw (string) filter input.
type FieldKind int

const (
	KindString FieldKind = iota
	KindBool
	KindInt
)

// Field declares one equality-filterable attribute.
type Field struct {
	Name string
	Kind FieldKind
}

// Mapping describes where a collection keeps the fields the engine pushes
// down to the store. It is the only thing a record type has to provide.
type Mapping struct {
	Collection     string
	OwnerField     string
	RangeField     string
	EqualityFields []Field
}

// Field returns the declared equality field with the given name.
func (m Mapping) Field(name string) (Field, bool) {
	for _, f := range m.EqualityFields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ParseFilters converts raw string values (typically URL query parameters)
// into typed equality filters. Keys that are not declared equality fields
// are ignored; use ValidateFilters to reject them instead.
func (m Mapping) ParseFilters(raw map[string]string) (Filters, error) {
	filters := Filters{}
	for name, value := range raw {
		f, ok := m.Field(name)
		if !ok {
			continue
		}
		switch f.Kind {
		case KindBool:
			b, err := strconv.ParseBool(value)
			if err != nil {
				return nil, &ValidationError{Field: name, Message: fmt.Sprintf("expected boolean, got %q", value)}
			}
			filters[name] = b
		case KindInt:
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, &ValidationError{Field: name, Message: fmt.Sprintf("expected integer, got %q", value)}
			}
			filters[name] = n
		default:
			filters[name] = value
		}
	}
	return filters, nil
}

// ValidateFilters checks that every filter key is a declared equality field.
func (m Mapping) ValidateFilters(filters Filters) error {
	for name := range filters {
		if _, ok := m.Field(name); !ok {
			return &UnknownFieldError{Collection: m.Collection, Field: name}
		}
	}
	return nil
}

// =============================================================================
// DOCUMENT - Store-level representation
// =============================================================================

// Document is a record as the document store sees it. Fields holds every
// persisted attribute, including the owner and range fields. Timestamps are
// time.Time on the way in; on the way out they may come back in the store's
// native form, so read them with Time.
type Document struct {
	ID     string
	Fields map[string]any
}

// String returns a string field, or "" if absent.
func (d Document) String(field string) string {
	s, _ := d.Fields[field].(string)
	return s
}

// Bool returns a boolean field. Stores that keep JSON bodies may hand back
// 0/1 integers for booleans.
func (d Document) Bool(field string) bool {
	switch v := d.Fields[field].(type) {
	case bool:
		return v
	case nil:
		return false
	default:
		n, ok := toInt64(v)
		return ok && n != 0
	}
}

// Time returns a timestamp field in UTC.
func (d Document) Time(field string) (time.Time, error) {
	v, ok := d.Fields[field]
	if !ok || v == nil {
		return time.Time{}, fmt.Errorf("field %q: missing timestamp", field)
	}
	t, ok := TimeValue(v)
	if !ok {
		return time.Time{}, fmt.Errorf("field %q: unsupported timestamp type %T", field, v)
	}
	return t, nil
}

// OptionalTime returns a nullable timestamp field.
func (d Document) OptionalTime(field string) (*time.Time, error) {
	switch v := d.Fields[field].(type) {
	case nil:
		return nil, nil
	case *time.Time:
		if v == nil {
			return nil, nil
		}
	}
	t, err := d.Time(field)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Decimal returns a decimal field stored as a string.
func (d Document) Decimal(field string) (decimal.Decimal, error) {
	switch v := d.Fields[field].(type) {
	case string:
		return decimal.NewFromString(v)
	case nil:
		return decimal.Zero, nil
	default:
		return decimal.Zero, fmt.Errorf("field %q: unsupported decimal type %T", field, v)
	}
}

// =============================================================================
// CODEC - Typed record <-> document
// =============================================================================

// Codec converts a typed record to and from its document form.
type Codec[R Record] interface {
	Encode(r R) Document
	Decode(doc Document) (R, error)
}
