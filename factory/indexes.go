/*
Package factory provides JSON to Go index manifest conversion.

PURPOSE:
  Converts an index manifest into generic.IndexSpec values the stores
  provision at startup, and renders specs back into the same format so
  the built-in index set can be exported and deployed to a managed
  document store.

JSON SCHEMA:
  {
    "indexes": [
      {
        "collectionGroup": "expenses",
        "queryScope": "COLLECTION",
        "fields": [
          {"fieldPath": "owner_id", "order": "ASCENDING"},
          {"fieldPath": "category", "order": "ASCENDING"},
          {"fieldPath": "date", "order": "DESCENDING"}
        ]
      }
    ]
  }

  The first field must be the collection's owner field and the last its
  range field. Everything in between must be a declared equality field.

USAGE:
  f := factory.NewIndexFactory(expenses.Mapping, todos.Mapping)
  specs, err := f.ParseManifest(data)

SEE ALSO:
  - generic/store.go: IndexSpec, IndexProvisioner
*/
package factory

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/warp/tracker/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ManifestJSON is the JSON representation of an index manifest.
type ManifestJSON struct {
	Indexes []IndexJSON `json:"indexes"`
}

// IndexJSON is one composite index.
type IndexJSON struct {
	CollectionGroup string      `json:"collectionGroup"`
	QueryScope      string      `json:"queryScope,omitempty"`
	Fields          []FieldJSON `json:"fields"`
}

// FieldJSON is one indexed field.
type FieldJSON struct {
	FieldPath string `json:"fieldPath"`
	Order     string `json:"order,omitempty"` // ASCENDING, DESCENDING
}

// =============================================================================
// INDEX FACTORY
// =============================================================================

// IndexFactory converts manifests for a known set of collections.
type IndexFactory struct {
	mappings map[string]generic.Mapping
}

// NewIndexFactory creates a factory that accepts the given collections.
func NewIndexFactory(mappings ...generic.Mapping) *IndexFactory {
	f := &IndexFactory{mappings: make(map[string]generic.Mapping, len(mappings))}
	for _, m := range mappings {
		f.mappings[m.Collection] = m
	}
	return f
}

// ParseManifest parses a JSON manifest into index specs.
func (f *IndexFactory) ParseManifest(data []byte) ([]generic.IndexSpec, error) {
	var mj ManifestJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return nil, fmt.Errorf("failed to parse index manifest: %w", err)
	}
	return f.FromJSON(mj)
}

// FromJSON converts a ManifestJSON to index specs.
func (f *IndexFactory) FromJSON(mj ManifestJSON) ([]generic.IndexSpec, error) {
	specs := make([]generic.IndexSpec, 0, len(mj.Indexes))
	for i, ij := range mj.Indexes {
		spec, err := f.parseIndex(ij)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// ToJSON renders specs as a manifest. The range field is written
// DESCENDING, the order every range query reads it in.
func (f *IndexFactory) ToJSON(specs []generic.IndexSpec) ManifestJSON {
	mj := ManifestJSON{Indexes: make([]IndexJSON, 0, len(specs))}
	for _, spec := range specs {
		ij := IndexJSON{
			CollectionGroup: spec.Collection,
			QueryScope:      "COLLECTION",
			Fields:          []FieldJSON{{FieldPath: spec.OwnerField, Order: "ASCENDING"}},
		}
		for _, field := range spec.Fields {
			ij.Fields = append(ij.Fields, FieldJSON{FieldPath: field, Order: "ASCENDING"})
		}
		ij.Fields = append(ij.Fields, FieldJSON{FieldPath: spec.RangeField, Order: "DESCENDING"})
		mj.Indexes = append(mj.Indexes, ij)
	}
	return mj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func (f *IndexFactory) parseIndex(ij IndexJSON) (generic.IndexSpec, error) {
	m, ok := f.mappings[ij.CollectionGroup]
	if !ok {
		return generic.IndexSpec{}, fmt.Errorf("unknown collection %q", ij.CollectionGroup)
	}
	if len(ij.Fields) < 2 {
		return generic.IndexSpec{}, fmt.Errorf("%s: an index needs at least the owner and range fields", m.Collection)
	}
	for _, fj := range ij.Fields {
		if err := parseOrder(fj.Order); err != nil {
			return generic.IndexSpec{}, fmt.Errorf("%s.%s: %w", m.Collection, fj.FieldPath, err)
		}
	}

	first, last := ij.Fields[0].FieldPath, ij.Fields[len(ij.Fields)-1].FieldPath
	if first != m.OwnerField {
		return generic.IndexSpec{}, fmt.Errorf("%s: first field must be %q, got %q", m.Collection, m.OwnerField, first)
	}
	if last != m.RangeField {
		return generic.IndexSpec{}, fmt.Errorf("%s: last field must be %q, got %q", m.Collection, m.RangeField, last)
	}

	var eq []string
	for _, fj := range ij.Fields[1 : len(ij.Fields)-1] {
		if _, ok := m.Field(fj.FieldPath); !ok {
			return generic.IndexSpec{}, &generic.UnknownFieldError{Collection: m.Collection, Field: fj.FieldPath}
		}
		if slices.Contains(eq, fj.FieldPath) {
			return generic.IndexSpec{}, fmt.Errorf("%s: duplicate field %q", m.Collection, fj.FieldPath)
		}
		eq = append(eq, fj.FieldPath)
	}
	return m.IndexFor(eq...), nil
}

func parseOrder(s string) error {
	switch s {
	case "", "ASCENDING", "DESCENDING":
		return nil
	default:
		return fmt.Errorf("unknown order %q", s)
	}
}
