/*
resolver.go - Range query resolution

PURPOSE:
  Turns a Descriptor into exactly one store query that the store can serve
  with a single inequality, then restores the intended order and hands the
  rest of the work to the reconciler.

BOUND SELECTION:
  start given       -> push ts >= start, sort ascending, end (if any) in memory
  only end given    -> push ts <= end, sort ascending
  neither           -> no inequality, sort descending, limit pushed

  Stores that support range filters require the sort field to match the
  inequality field, hence ascending order whenever a bound is pushed. The
  ascending batch is reversed before reconciliation.

LIMIT PUSHDOWN:
  Only when no bound is active. With a bound active the store result is
  a superset of the answer (the second bound and possibly the filters are
  still pending), so truncating it early would drop valid records.

FLOW:
  Find -> plan -> Store.Query --ok--> decode -> reverse? -> Reconcile
                              \-err-> fallback guard (fallback.go)

SEE ALSO:
  - reconcile.go: In-memory filtering, ordering, truncation
  - fallback.go: Missing-index recovery
*/
package generic

import (
	"context"
	"fmt"
	"slices"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine executes owner-scoped range queries for one collection.
// It holds no per-call state; one Engine serves concurrent callers.
type Engine[R Record] struct {
	Store   DocumentStore
	Mapping Mapping
	Codec   Codec[R]

	// IsRetryableAsFullScan decides whether a store failure is the
	// missing-index condition. Defaults to the store's classifier if it has
	// one, otherwise IsMissingIndex.
	IsRetryableAsFullScan func(error) bool

	// Observer receives a signal on every fallback. May be nil.
	Observer FallbackObserver
}

// NewEngine creates an engine for one collection.
func NewEngine[R Record](store DocumentStore, m Mapping, codec Codec[R]) *Engine[R] {
	e := &Engine[R]{Store: store, Mapping: m, Codec: codec}
	if c, ok := store.(IndexErrorClassifier); ok {
		e.IsRetryableAsFullScan = c.IsRetryableAsFullScan
	} else {
		e.IsRetryableAsFullScan = IsMissingIndex
	}
	return e
}

// plan is the pushed query plus what remains for the reconciler.
type plan struct {
	query     StoreQuery
	reverse   bool
	remaining Bounds
}

// Find returns the owner's records within [Start, End] matching every
// equality filter, newest first, truncated to Limit.
func (e *Engine[R]) Find(ctx context.Context, d Descriptor) (Result[R], error) {
	if d.Limit != nil && *d.Limit < 0 {
		return Result[R]{}, ErrInvalidLimit
	}
	if err := e.Mapping.ValidateFilters(d.Equals); err != nil {
		return Result[R]{}, err
	}
	if d.Limit != nil && *d.Limit == 0 {
		return Result[R]{Records: []R{}}, nil
	}

	p := e.plan(d)
	docs, err := e.Store.Query(ctx, p.query)
	if err != nil {
		return e.recover(ctx, d, p.query, err)
	}

	records, err := e.decode(docs)
	if err != nil {
		return Result[R]{}, err
	}
	if p.reverse {
		slices.Reverse(records)
	}
	return Result[R]{Records: Reconcile(records, p.remaining, d.Equals, d.Limit)}, nil
}

// plan selects the single inequality to push.
func (e *Engine[R]) plan(d Descriptor) plan {
	q := StoreQuery{
		Collection: e.Mapping.Collection,
		OwnerField: e.Mapping.OwnerField,
		OwnerID:    d.OwnerID,
	}
	for _, field := range d.Equals.Keys() {
		q.Equals = append(q.Equals, FieldValue{Field: field, Value: d.Equals[field]})
	}

	rangeField := e.Mapping.RangeField
	switch {
	case d.Start != nil:
		q.Range = &RangeFilter{Field: rangeField, Op: OpGTE, Value: EpochMillis(*d.Start)}
		q.Sort = &SortOrder{Field: rangeField, Direction: Ascending}
		return plan{query: q, reverse: true, remaining: Bounds{End: d.End}}
	case d.End != nil:
		q.Range = &RangeFilter{Field: rangeField, Op: OpLTE, Value: EpochMillis(*d.End)}
		q.Sort = &SortOrder{Field: rangeField, Direction: Ascending}
		return plan{query: q, reverse: true}
	default:
		q.Sort = &SortOrder{Field: rangeField, Direction: Descending}
		if d.Limit != nil {
			q.Limit = *d.Limit
		}
		return plan{query: q}
	}
}

func (e *Engine[R]) decode(docs []Document) ([]R, error) {
	records := make([]R, 0, len(docs))
	for _, doc := range docs {
		r, err := e.Codec.Decode(doc)
		if err != nil {
			return nil, fmt.Errorf("decode %s document %s: %w", e.Mapping.Collection, doc.ID, err)
		}
		records = append(records, r)
	}
	return records, nil
}
