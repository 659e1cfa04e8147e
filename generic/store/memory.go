// Package store provides DocumentStore implementations.
package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/warp/tracker/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps documents per collection. With StrictIndexes set it behaves
// like a managed document store: any query carrying a range or a sort must
// be covered by a provisioned composite index, otherwise it fails with
// *generic.MissingIndexError. The owner-only scan never needs an index.
type Memory struct {
	mu            sync.RWMutex
	docs          map[string]map[string]generic.Document // collection -> id -> doc
	indexes       map[string]generic.IndexSpec
	StrictIndexes bool
}

func NewMemory() *Memory {
	return &Memory{
		docs:    make(map[string]map[string]generic.Document),
		indexes: make(map[string]generic.IndexSpec),
	}
}

// NewStrictMemory returns a Memory that enforces composite indexes.
func NewStrictMemory() *Memory {
	m := NewMemory()
	m.StrictIndexes = true
	return m
}

// EnsureIndex provisions a composite index.
func (m *Memory) EnsureIndex(_ context.Context, spec generic.IndexSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexes[spec.Name()] = spec
	return nil
}

// Put inserts or replaces a document. The stored copy is detached from the
// caller's map.
func (m *Memory) Put(_ context.Context, mp generic.Mapping, doc generic.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.docs[mp.Collection]
	if coll == nil {
		coll = make(map[string]generic.Document)
		m.docs[mp.Collection] = coll
	}
	coll[doc.ID] = clone(doc)
	return nil
}

func (m *Memory) Get(_ context.Context, mp generic.Mapping, owner generic.OwnerID, id string) (generic.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[mp.Collection][id]
	if !ok || !generic.ValuesEqual(doc.Fields[mp.OwnerField], string(owner)) {
		return generic.Document{}, generic.ErrNotFound
	}
	return clone(doc), nil
}

func (m *Memory) Delete(_ context.Context, mp generic.Mapping, owner generic.OwnerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[mp.Collection][id]
	if !ok || !generic.ValuesEqual(doc.Fields[mp.OwnerField], string(owner)) {
		return generic.ErrNotFound
	}
	delete(m.docs[mp.Collection], id)
	return nil
}

// Query executes one pushed-down query.
func (m *Memory) Query(_ context.Context, q generic.StoreQuery) ([]generic.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.StrictIndexes && (q.Range != nil || q.Sort != nil) && !m.covered(q) {
		return nil, &generic.MissingIndexError{
			Collection: q.Collection,
			Fields:     q.IndexFields(),
			Code:       "FAILED_PRECONDITION",
		}
	}

	var result []generic.Document
	for _, doc := range m.docs[q.Collection] {
		if matchesQuery(doc, q) {
			result = append(result, clone(doc))
		}
	}

	if q.Sort != nil {
		field, desc := q.Sort.Field, q.Sort.Direction == generic.Descending
		sort.SliceStable(result, func(i, j int) bool {
			ti, tj := millis(result[i], field), millis(result[j], field)
			if desc {
				return ti > tj || (ti == tj && result[i].ID > result[j].ID)
			}
			return ti < tj || (ti == tj && result[i].ID < result[j].ID)
		})
	} else {
		// Map iteration order is random; keep scans reproducible.
		sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	}

	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

// covered reports whether a provisioned index serves q: same collection,
// same set of equality fields (owner included), range/sort field last.
func (m *Memory) covered(q generic.StoreQuery) bool {
	fields := q.IndexFields()
	eq, last := fields[:len(fields)-1], fields[len(fields)-1]
	for _, spec := range m.indexes {
		if spec.Collection != q.Collection || spec.RangeField != last {
			continue
		}
		if sameSet(append([]string{spec.OwnerField}, spec.Fields...), eq) {
			return true
		}
	}
	return false
}

func matchesQuery(doc generic.Document, q generic.StoreQuery) bool {
	if !generic.ValuesEqual(doc.Fields[q.OwnerField], string(q.OwnerID)) {
		return false
	}
	for _, eq := range q.Equals {
		if !generic.ValuesEqual(doc.Fields[eq.Field], eq.Value) {
			return false
		}
	}
	if q.Range != nil {
		v, ok := doc.Fields[q.Range.Field]
		if !ok {
			return false
		}
		t, ok := generic.TimeValue(v)
		if !ok {
			return false
		}
		ms := generic.EpochMillis(t)
		switch q.Range.Op {
		case generic.OpGTE:
			return ms >= q.Range.Value
		case generic.OpLTE:
			return ms <= q.Range.Value
		}
	}
	return true
}

func millis(doc generic.Document, field string) int64 {
	t, ok := generic.TimeValue(doc.Fields[field])
	if !ok {
		return 0
	}
	return generic.EpochMillis(t)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}

func clone(doc generic.Document) generic.Document {
	fields := make(map[string]any, len(doc.Fields))
	for k, v := range doc.Fields {
		fields[k] = v
	}
	return generic.Document{ID: doc.ID, Fields: fields}
}

// Len returns the number of documents in a collection.
func (m *Memory) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs[collection])
}

// Reset drops every document. Provisioned indexes are kept.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[string]map[string]generic.Document)
}
