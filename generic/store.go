/*
store.go - Document store adapter interface

PURPOSE:
  Defines the minimal surface the engine needs from a document store.
  The store is deliberately weak: it can push down equality filters, ONE
  inequality on one field with a sort on that same field, and a limit.
  Anything richer is reconciled in memory.

KEY INTERFACES:
  DocumentStore:        Query, Put, Get, Delete
  IndexErrorClassifier: Optional store-specific missing-index predicate
  IndexProvisioner:     Optional composite index creation

INDEX CONTRACT:
  A store MAY refuse a query whose equality + inequality/sort combination
  has no composite index. It must then fail with an error the classifier
  (or IsMissingIndex) recognizes. The owner-only scan (no range, no sort,
  no limit) must never require a composite index.

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory, emulates index enforcement
  - store/sqlite/sqlite.go: SQLite with JSON bodies and expression indexes
  - store/mongo/mongo.go: MongoDB

SEE ALSO:
  - resolver.go: Builds StoreQuery values
  - fallback.go: Uses the classifier
*/
package generic

import (
	"context"
	"fmt"
	"slices"
)

// =============================================================================
// STORE QUERY - What gets pushed down
// =============================================================================

// RangeOp is the single inequality a store query may carry.
type RangeOp string

const (
	OpGTE RangeOp = ">="
	OpLTE RangeOp = "<="
)

// Direction is a sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// FieldValue is one pushed equality filter.
type FieldValue struct {
	Field string
	Value any
}

// RangeFilter is the single pushed inequality. Value is compared on epoch
// milliseconds.
type RangeFilter struct {
	Field string
	Op    RangeOp
	Value int64
}

// SortOrder is the pushed sort. When a RangeFilter is present its field
// must equal the sort field.
type SortOrder struct {
	Field     string
	Direction Direction
}

// StoreQuery is a single store round-trip. Limit 0 means no limit.
type StoreQuery struct {
	Collection string
	OwnerField string
	OwnerID    OwnerID
	Equals     []FieldValue
	Range      *RangeFilter
	Sort       *SortOrder
	Limit      int
}

// IsFullScan reports whether the query is the owner-only scan.
func (q StoreQuery) IsFullScan() bool {
	return len(q.Equals) == 0 && q.Range == nil && q.Sort == nil && q.Limit == 0
}

// IndexFields lists the fields a composite index must cover for q, in
// index order: owner, equality fields, then the range/sort field.
func (q StoreQuery) IndexFields() []string {
	fields := []string{q.OwnerField}
	for _, eq := range q.Equals {
		fields = append(fields, eq.Field)
	}
	switch {
	case q.Range != nil:
		fields = append(fields, q.Range.Field)
	case q.Sort != nil:
		fields = append(fields, q.Sort.Field)
	}
	return fields
}

// IndexSpec returns the composite index that serves q.
func (q StoreQuery) IndexSpec() IndexSpec {
	spec := IndexSpec{Collection: q.Collection, OwnerField: q.OwnerField}
	for _, eq := range q.Equals {
		spec.Fields = append(spec.Fields, eq.Field)
	}
	switch {
	case q.Range != nil:
		spec.RangeField = q.Range.Field
	case q.Sort != nil:
		spec.RangeField = q.Sort.Field
	}
	return spec
}

// Validate rejects queries no conforming store could execute.
func (q StoreQuery) Validate() error {
	if q.Collection == "" || q.OwnerField == "" {
		return fmt.Errorf("store query: collection and owner field are required")
	}
	if q.Range != nil && (q.Sort == nil || q.Sort.Field != q.Range.Field) {
		return fmt.Errorf("store query: range on %q must be sorted on the same field", q.Range.Field)
	}
	if q.Limit < 0 {
		return ErrInvalidLimit
	}
	return nil
}

// =============================================================================
// STORE - Adapter interface
// =============================================================================

// DocumentStore persists documents per collection.
type DocumentStore interface {
	// Query executes a single pushed-down query.
	Query(ctx context.Context, q StoreQuery) ([]Document, error)

	// Put inserts or replaces a document.
	Put(ctx context.Context, m Mapping, doc Document) error

	// Get returns one owner's document. Returns ErrNotFound if absent.
	Get(ctx context.Context, m Mapping, owner OwnerID, id string) (Document, error)

	// Delete removes one owner's document. Returns ErrNotFound if absent.
	Delete(ctx context.Context, m Mapping, owner OwnerID, id string) error
}

// IndexErrorClassifier lets a store inject its own "retry as full scan"
// predicate instead of wrapping native errors in MissingIndexError.
type IndexErrorClassifier interface {
	IsRetryableAsFullScan(err error) bool
}

// IndexSpec is a composite index: owner, equality fields, then range field.
type IndexSpec struct {
	Collection string
	OwnerField string
	Fields     []string
	RangeField string
}

// Name returns a stable identifier usable as a database index name.
// Equality fields are named in sorted order: any order serves the same
// equality prefix, so the same query shape always maps to the same name.
func (s IndexSpec) Name() string {
	name := "idx_" + s.Collection + "_" + s.OwnerField
	fields := slices.Clone(s.Fields)
	slices.Sort(fields)
	for _, f := range fields {
		name += "_" + f
	}
	return name + "_" + s.RangeField
}

// IndexProvisioner is implemented by stores that can create composite indexes.
type IndexProvisioner interface {
	EnsureIndex(ctx context.Context, spec IndexSpec) error
}

// IndexFor returns the index spec that serves a query shape on m.
func (m Mapping) IndexFor(equalityFields ...string) IndexSpec {
	return IndexSpec{
		Collection: m.Collection,
		OwnerField: m.OwnerField,
		Fields:     equalityFields,
		RangeField: m.RangeField,
	}
}

// EnsureIndexes provisions every spec on stores that support it.
// Returns nil without doing anything for other stores.
func EnsureIndexes(ctx context.Context, store DocumentStore, specs []IndexSpec) error {
	p, ok := store.(IndexProvisioner)
	if !ok {
		return nil
	}
	for _, spec := range specs {
		if err := p.EnsureIndex(ctx, spec); err != nil {
			return fmt.Errorf("ensure index %s: %w", spec.Name(), err)
		}
	}
	return nil
}
