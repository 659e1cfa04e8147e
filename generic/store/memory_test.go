package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tracker/generic"
	"github.com/warp/tracker/generic/store"
)

var notes = generic.Mapping{
	Collection: "notes",
	OwnerField: "owner_id",
	RangeField: "at",
	EqualityFields: []generic.Field{
		{Name: "tag", Kind: generic.KindString},
	},
}

func note(id, owner, tag string, atMs int64) generic.Document {
	return generic.Document{ID: id, Fields: map[string]any{
		"owner_id": owner,
		"tag":      tag,
		"at":       time.UnixMilli(atMs).UTC(),
	}}
}

func putAll(t *testing.T, m *store.Memory, docs ...generic.Document) {
	t.Helper()
	for _, d := range docs {
		require.NoError(t, m.Put(context.Background(), notes, d))
	}
}

func ids(docs []generic.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestMemory_QueryRangeSortAndLimit(t *testing.T) {
	m := store.NewMemory()
	putAll(t, m,
		note("a", "alice", "x", 100),
		note("b", "alice", "y", 200),
		note("c", "alice", "x", 300),
		note("d", "bob", "x", 250),
	)

	docs, err := m.Query(context.Background(), generic.StoreQuery{
		Collection: "notes",
		OwnerField: "owner_id",
		OwnerID:    "alice",
		Range:      &generic.RangeFilter{Field: "at", Op: generic.OpGTE, Value: 200},
		Sort:       &generic.SortOrder{Field: "at", Direction: generic.Ascending},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(docs))

	docs, err = m.Query(context.Background(), generic.StoreQuery{
		Collection: "notes",
		OwnerField: "owner_id",
		OwnerID:    "alice",
		Equals:     []generic.FieldValue{{Field: "tag", Value: "x"}},
		Sort:       &generic.SortOrder{Field: "at", Direction: generic.Descending},
		Limit:      1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(docs))
}

func TestMemory_TiesBreakOnIDInSortDirection(t *testing.T) {
	m := store.NewMemory()
	putAll(t, m, note("b", "alice", "x", 100), note("a", "alice", "x", 100), note("c", "alice", "x", 100))

	q := generic.StoreQuery{
		Collection: "notes",
		OwnerField: "owner_id",
		OwnerID:    "alice",
		Sort:       &generic.SortOrder{Field: "at", Direction: generic.Descending},
	}
	docs, err := m.Query(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids(docs))

	q.Sort.Direction = generic.Ascending
	docs, err = m.Query(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(docs))
}

func TestMemory_StrictIndexes(t *testing.T) {
	// GIVEN: a strict store with only the owner+range index
	m := store.NewStrictMemory()
	putAll(t, m, note("a", "alice", "x", 100))
	require.NoError(t, m.EnsureIndex(context.Background(), notes.IndexFor()))

	base := generic.StoreQuery{Collection: "notes", OwnerField: "owner_id", OwnerID: "alice"}

	// THEN: the owner scan never needs an index
	_, err := m.Query(context.Background(), base)
	require.NoError(t, err)

	// AND: a sorted query on the indexed shape works
	sorted := base
	sorted.Sort = &generic.SortOrder{Field: "at", Direction: generic.Descending}
	_, err = m.Query(context.Background(), sorted)
	require.NoError(t, err)

	// AND: adding an equality field without its index fails
	filtered := sorted
	filtered.Equals = []generic.FieldValue{{Field: "tag", Value: "x"}}
	_, err = m.Query(context.Background(), filtered)
	var missing *generic.MissingIndexError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"owner_id", "tag", "at"}, missing.Fields)
	assert.True(t, generic.IsMissingIndex(err))

	// AND: provisioning it fixes the query
	require.NoError(t, m.EnsureIndex(context.Background(), notes.IndexFor("tag")))
	docs, err := m.Query(context.Background(), filtered)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(docs))
}

func TestMemory_GetDeleteScopedToOwner(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	putAll(t, m, note("a", "alice", "x", 100))

	doc, err := m.Get(ctx, notes, "alice", "a")
	require.NoError(t, err)
	assert.Equal(t, "x", doc.String("tag"))

	_, err = m.Get(ctx, notes, "bob", "a")
	assert.True(t, generic.IsNotFound(err))
	assert.True(t, generic.IsNotFound(m.Delete(ctx, notes, "bob", "a")))

	require.NoError(t, m.Delete(ctx, notes, "alice", "a"))
	assert.Equal(t, 0, m.Len("notes"))
	assert.True(t, generic.IsNotFound(m.Delete(ctx, notes, "alice", "a")))
}

func TestMemory_StoredCopyIsDetached(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	doc := note("a", "alice", "x", 100)
	putAll(t, m, doc)

	doc.Fields["tag"] = "mutated"
	got, err := m.Get(ctx, notes, "alice", "a")
	require.NoError(t, err)
	assert.Equal(t, "x", got.String("tag"))

	got.Fields["tag"] = "mutated"
	again, err := m.Get(ctx, notes, "alice", "a")
	require.NoError(t, err)
	assert.Equal(t, "x", again.String("tag"))
}

func TestMemory_Reset(t *testing.T) {
	m := store.NewMemory()
	putAll(t, m, note("a", "alice", "x", 100))
	m.Reset()
	assert.Equal(t, 0, m.Len("notes"))
}
