// Package metrics records Prometheus metrics for the query engine and the
// document stores behind it.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/warp/tracker/generic"
)

var (
	// FallbacksTotal counts queries that degraded to a full owner scan.
	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_query_fallbacks_total",
			Help: "Queries that fell back to a full owner scan because a composite index is missing",
		},
		[]string{"collection"},
	)

	// StoreLatency observes document store round-trips.
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_store_latency_seconds",
			Help:    "Document store operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "collection"},
	)

	// QueryResults observes result sizes per collection.
	QueryResults = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_query_results",
			Help:    "Number of records returned per range query",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
		},
		[]string{"collection", "degraded"},
	)
)

// FallbackObserver counts fallbacks per collection.
func FallbackObserver() generic.FallbackObserver {
	return generic.ObserverFunc(func(_ context.Context, ev generic.FallbackEvent) {
		FallbacksTotal.WithLabelValues(ev.Collection).Inc()
	})
}

// ObserveResult records the size of one query result.
func ObserveResult(collection string, n int, degraded bool) {
	QueryResults.WithLabelValues(collection, strconv.FormatBool(degraded)).Observe(float64(n))
}

// =============================================================================
// STORE DECORATOR
// =============================================================================

// Wrap returns a DocumentStore that records StoreLatency for every
// operation. The wrapped store's missing-index classifier and index
// provisioning stay reachable through the wrapper.
func Wrap(inner generic.DocumentStore) generic.DocumentStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner generic.DocumentStore
}

func observe(op, collection string, start time.Time) {
	StoreLatency.WithLabelValues(op, collection).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) Query(ctx context.Context, q generic.StoreQuery) ([]generic.Document, error) {
	op := "query"
	if q.IsFullScan() {
		op = "scan"
	}
	defer observe(op, q.Collection, time.Now())
	return m.inner.Query(ctx, q)
}

func (m *metricsStore) Put(ctx context.Context, mp generic.Mapping, doc generic.Document) error {
	defer observe("put", mp.Collection, time.Now())
	return m.inner.Put(ctx, mp, doc)
}

func (m *metricsStore) Get(ctx context.Context, mp generic.Mapping, owner generic.OwnerID, id string) (generic.Document, error) {
	defer observe("get", mp.Collection, time.Now())
	return m.inner.Get(ctx, mp, owner, id)
}

func (m *metricsStore) Delete(ctx context.Context, mp generic.Mapping, owner generic.OwnerID, id string) error {
	defer observe("delete", mp.Collection, time.Now())
	return m.inner.Delete(ctx, mp, owner, id)
}

func (m *metricsStore) IsRetryableAsFullScan(err error) bool {
	if c, ok := m.inner.(generic.IndexErrorClassifier); ok {
		return c.IsRetryableAsFullScan(err)
	}
	return generic.IsMissingIndex(err)
}

func (m *metricsStore) EnsureIndex(ctx context.Context, spec generic.IndexSpec) error {
	if p, ok := m.inner.(generic.IndexProvisioner); ok {
		return p.EnsureIndex(ctx, spec)
	}
	return nil
}
