/*
reconcile.go - In-memory consistency reconciliation

PURPOSE:
  Whatever the store returned (a range-pushed, ascending, reversed batch or
  an entire unfiltered owner scan), the reconciler turns it into the exact
  result an ideal fully-indexed compound query would have produced.

STEPS (always in this order):
  1. Apply the bound that was not pushed to the store (inclusive, epoch ms)
  2. Apply every equality filter (exact match)
  3. Sort descending by (timestamp, record key)
  4. Truncate to the limit

PROPERTIES:
  - Pure: the input slice and its records are never modified
  - Idempotent: Reconcile(Reconcile(X, p), p) == Reconcile(X, p)
  - Truncation happens after filtering, never before

SEE ALSO:
  - resolver.go: Calls Reconcile with the unpushed bound
  - fallback.go: Calls Reconcile with both bounds
*/
package generic

import "sort"

// Reconcile filters, orders and truncates records. remaining is whatever
// part of the window the store did not already enforce.
func Reconcile[R Record](records []R, remaining Bounds, equals Filters, limit *int) []R {
	out := make([]R, 0, len(records))
	for _, r := range records {
		if !remaining.Contains(r.RecordTime()) {
			continue
		}
		if !matches(r, equals) {
			continue
		}
		out = append(out, r)
	}

	SortNewestFirst(out)

	if limit != nil && *limit >= 0 && len(out) > *limit {
		out = out[:*limit]
	}
	return out
}

// SortNewestFirst orders records descending by timestamp, then by key.
// This is the same total order stores apply to a descending query, so a
// limit pushed to the store keeps the same tied records the fallback keeps.
func SortNewestFirst[R Record](records []R) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, tj := EpochMillis(records[i].RecordTime()), EpochMillis(records[j].RecordTime())
		if ti != tj {
			return ti > tj
		}
		return records[i].RecordKey() > records[j].RecordKey()
	})
}

func matches(r Record, equals Filters) bool {
	for field, want := range equals {
		got, ok := r.Attribute(field)
		if !ok || !ValuesEqual(got, want) {
			return false
		}
	}
	return true
}
