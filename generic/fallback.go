/*
fallback.go - Missing-index fallback guard

PURPOSE:
  Document stores refuse some equality + range/sort combinations until a
  composite index is provisioned. Rather than failing the request, the
  guard re-reads the owner's entire collection with no inequality, no sort
  and no limit, and lets the reconciler produce the exact same answer.

ERROR POLICY:
  - Missing index (per IsRetryableAsFullScan): recovered, Degraded = true
  - Anything else: returned unchanged, never retried
  - Failure of the fallback scan itself: returned wrapped with the collection

COST:
  The fallback is O(n) in the owner's record count for the collection,
  with no upper bound. Every call re-attempts the indexed query first;
  nothing remembers that an index is missing.

OBSERVABILITY:
  Every fallback emits a FallbackEvent so the missing index can be
  provisioned. Observers are notification-only and must return promptly.
  A panicking observer is logged and skipped.

SEE ALSO:
  - resolver.go: The indexed path
  - metrics/metrics.go: Prometheus observer
*/
package generic

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
)

// =============================================================================
// FALLBACK EVENTS
// =============================================================================

// FallbackEvent describes one degraded query.
type FallbackEvent struct {
	Collection string
	OwnerID    OwnerID

	// Fields is the composite index the indexed query needed, in index
	// order. Index is the same index as a provisionable spec.
	Fields []string
	Index  IndexSpec

	// Cause is the store error that triggered the fallback.
	Cause error
}

// FallbackObserver is notified whenever a query degrades to a full scan.
type FallbackObserver interface {
	ObserveFallback(ctx context.Context, ev FallbackEvent)
}

// ObserverFunc adapts a function to FallbackObserver.
type ObserverFunc func(ctx context.Context, ev FallbackEvent)

func (f ObserverFunc) ObserveFallback(ctx context.Context, ev FallbackEvent) { f(ctx, ev) }

// Observers fans an event out to several observers. Observers run in order
// on the query's goroutine; a panicking observer is logged and skipped so the
// rest still see the event and the query still completes.
func Observers(obs ...FallbackObserver) FallbackObserver {
	return ObserverFunc(func(ctx context.Context, ev FallbackEvent) {
		for _, o := range obs {
			if o != nil {
				notify(ctx, o, ev)
			}
		}
	})
}

func notify(ctx context.Context, o FallbackObserver, ev FallbackEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Fallback observer panicked", "collection", ev.Collection, "panic", r)
		}
	}()
	o.ObserveFallback(ctx, ev)
}

// LogFallbacks logs every fallback at warn level. The write is synchronous,
// so the logger's writer must not block. A nil logger uses the package
// default.
func LogFallbacks(logger *log.Logger) FallbackObserver {
	if logger == nil {
		logger = log.Default()
	}
	return ObserverFunc(func(_ context.Context, ev FallbackEvent) {
		logger.Warn("Query fell back to full owner scan; provision the composite index",
			"collection", ev.Collection,
			"owner", ev.OwnerID,
			"fields", ev.Fields,
			"err", ev.Cause)
	})
}

// =============================================================================
// GUARD
// =============================================================================

// recover handles a failed indexed query.
func (e *Engine[R]) recover(ctx context.Context, d Descriptor, failed StoreQuery, cause error) (Result[R], error) {
	retryable := e.IsRetryableAsFullScan
	if retryable == nil {
		retryable = IsMissingIndex
	}
	if !retryable(cause) {
		return Result[R]{}, cause
	}

	if e.Observer != nil {
		notify(ctx, e.Observer, FallbackEvent{
			Collection: e.Mapping.Collection,
			OwnerID:    d.OwnerID,
			Fields:     failed.IndexFields(),
			Index:      failed.IndexSpec(),
			Cause:      cause,
		})
	}

	docs, err := e.Store.Query(ctx, StoreQuery{
		Collection: e.Mapping.Collection,
		OwnerField: e.Mapping.OwnerField,
		OwnerID:    d.OwnerID,
	})
	if err != nil {
		return Result[R]{}, fmt.Errorf("fallback scan of %s: %w", e.Mapping.Collection, err)
	}

	records, err := e.decode(docs)
	if err != nil {
		return Result[R]{}, err
	}
	return Result[R]{
		Records:  Reconcile(records, d.Bounds(), d.Equals, d.Limit),
		Degraded: true,
	}, nil
}
