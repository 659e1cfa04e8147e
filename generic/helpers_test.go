package generic_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warp/tracker/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// item is a minimal record: one timestamp, one string and one bool
// equality field.
type item struct {
	ID    string
	Owner generic.OwnerID
	At    time.Time
	Kind  string
	Flag  bool
}

func (i item) RecordKey() string     { return i.ID }
func (i item) RecordTime() time.Time { return i.At }

func (i item) Attribute(field string) (any, bool) {
	switch field {
	case "kind":
		return i.Kind, true
	case "flag":
		return i.Flag, true
	}
	return nil, false
}

var itemMapping = generic.Mapping{
	Collection: "items",
	OwnerField: "owner_id",
	RangeField: "at",
	EqualityFields: []generic.Field{
		{Name: "kind", Kind: generic.KindString},
		{Name: "flag", Kind: generic.KindBool},
	},
}

type itemCodec struct{}

func (itemCodec) Encode(i item) generic.Document {
	return generic.Document{ID: i.ID, Fields: map[string]any{
		"owner_id": string(i.Owner),
		"at":       i.At,
		"kind":     i.Kind,
		"flag":     i.Flag,
	}}
}

func (itemCodec) Decode(doc generic.Document) (item, error) {
	at, err := doc.Time("at")
	if err != nil {
		return item{}, err
	}
	return item{
		ID:    doc.ID,
		Owner: generic.OwnerID(doc.String("owner_id")),
		At:    at,
		Kind:  doc.String("kind"),
		Flag:  doc.Bool("flag"),
	}, nil
}

func ms(n int64) time.Time { return time.UnixMilli(n).UTC() }

func tp(n int64) *time.Time {
	t := ms(n)
	return &t
}

// at creates an item whose ID is derived from its timestamp.
func at(owner generic.OwnerID, n int64, kind string) item {
	return item{ID: fmt.Sprintf("r%04d", n), Owner: owner, At: ms(n), Kind: kind}
}

func keys(items []item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func timestamps(items []item) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.At.UnixMilli()
	}
	return out
}

func seed(store generic.DocumentStore, items ...item) {
	ctx := context.Background()
	for _, it := range items {
		if err := store.Put(ctx, itemMapping, itemCodec{}.Encode(it)); err != nil {
			panic(err)
		}
	}
}

// scenarioItems is the record set [100, 200, 300, 400, 500] of one owner.
func scenarioItems() []item {
	return []item{
		at("alice", 100, "food"),
		at("alice", 200, "rent"),
		at("alice", 300, "food"),
		at("alice", 400, "travel"),
		at("alice", 500, "food"),
	}
}

// recordingStore records every query and can fail indexed queries or the
// full scan.
type recordingStore struct {
	generic.DocumentStore

	mu          sync.Mutex
	queries     []generic.StoreQuery
	failIndexed error
	failScan    error
}

func (s *recordingStore) Query(ctx context.Context, q generic.StoreQuery) ([]generic.Document, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()

	if q.IsFullScan() && s.failScan != nil {
		return nil, s.failScan
	}
	if !q.IsFullScan() && s.failIndexed != nil {
		return nil, s.failIndexed
	}
	return s.DocumentStore.Query(ctx, q)
}

func (s *recordingStore) Queries() []generic.StoreQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]generic.StoreQuery(nil), s.queries...)
}

// eventRecorder collects fallback events.
type eventRecorder struct {
	mu     sync.Mutex
	events []generic.FallbackEvent
}

func (r *eventRecorder) ObserveFallback(_ context.Context, ev generic.FallbackEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) Events() []generic.FallbackEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]generic.FallbackEvent(nil), r.events...)
}
