package generic

import (
	"encoding/json"
	"sort"
	"time"
)

// =============================================================================
// QUERY DESCRIPTOR - Built fresh per call, never persisted
// =============================================================================

// Filters maps equality-filterable field names to the exact value required.
type Filters map[string]any

// Keys returns the filter keys in sorted order.
func (f Filters) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Bounds is an inclusive [Start, End] window. A nil side is unbounded.
type Bounds struct {
	Start *time.Time
	End   *time.Time
}

// IsZero reports whether neither side is bounded.
func (b Bounds) IsZero() bool { return b.Start == nil && b.End == nil }

// Contains reports whether t lies in the window, compared on epoch ms.
func (b Bounds) Contains(t time.Time) bool {
	ms := EpochMillis(t)
	if b.Start != nil && ms < EpochMillis(*b.Start) {
		return false
	}
	if b.End != nil && ms > EpochMillis(*b.End) {
		return false
	}
	return true
}

// Descriptor is one find call. Results are always ordered newest-first by
// the mapping's range field.
//
// Limit semantics:
//   - nil: no limit
//   - 0:   no records
//   - < 0: rejected with ErrInvalidLimit
//
// Start after End is not rejected; it simply matches nothing.
type Descriptor struct {
	OwnerID OwnerID
	Start   *time.Time
	End     *time.Time
	Equals  Filters
	Limit   *int
}

// Bounds returns the descriptor's window.
func (d Descriptor) Bounds() Bounds { return Bounds{Start: d.Start, End: d.End} }

// Limit is a convenience for building Descriptor.Limit.
func Limit(n int) *int { return &n }

// Result is the ordered record sequence plus how it was produced.
type Result[R Record] struct {
	Records []R `json:"items"`

	// Degraded is true when the store lacked the composite index and the
	// records came from a full owner scan reconciled in memory. The records
	// are identical either way.
	Degraded bool `json:"degraded"`
}

// =============================================================================
// VALUE EQUALITY
// =============================================================================

// ValuesEqual compares two scalar field values for equality filtering.
// Numbers compare by value regardless of their Go type, since JSON and BSON
// decoding do not preserve the type a record was written with.
func ValuesEqual(a, b any) bool {
	if ai, ok := exactInt(a); ok {
		if bi, ok := exactInt(b); ok {
			return ai == bi
		}
	}
	if an, ok := numeric(a); ok {
		if bb, ok := b.(bool); ok {
			return ValuesEqual(bb, a)
		}
		bn, ok := numeric(b)
		return ok && an == bn
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		if bv, ok := b.(bool); ok {
			return av == bv
		}
		// JSON-bodied stores may return booleans as 0/1.
		if bn, ok := numeric(b); ok {
			return (bn != 0) == av
		}
		return false
	case nil:
		return b == nil
	}
	return false
}

// exactInt reports integer values that must not round-trip through float64.
func exactInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
