package generic_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tracker/generic"
)

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"strings", "food", "food", true},
		{"different strings", "food", "rent", false},
		{"int vs float", 3, 3.0, true},
		{"int64 vs json number", int64(42), json.Number("42"), true},
		{"int64 above 2^53", int64(1<<53 + 1), int64(1 << 53), false},
		{"large json number vs int64", json.Number("9007199254740993"), int64(9007199254740993), true},
		{"large json number differs", json.Number("9007199254740993"), int64(9007199254740992), false},
		{"bool", true, true, true},
		{"bool vs 1", true, 1, true},
		{"0 vs false", int64(0), false, true},
		{"1 vs false", 1, false, false},
		{"string vs number", "1", 1, false},
		{"nil", nil, nil, true},
		{"nil vs string", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, generic.ValuesEqual(tt.a, tt.b))
			assert.Equal(t, tt.want, generic.ValuesEqual(tt.b, tt.a), "symmetric")
		})
	}
}

func TestBounds_Contains(t *testing.T) {
	b := generic.Bounds{Start: tp(100), End: tp(200)}
	assert.True(t, b.Contains(ms(100)))
	assert.True(t, b.Contains(ms(200)))
	assert.False(t, b.Contains(ms(99)))
	assert.False(t, b.Contains(ms(201)))
	assert.True(t, generic.Bounds{}.Contains(ms(-5)))
	assert.True(t, generic.Bounds{}.IsZero())
}

func TestMapping_ParseFilters(t *testing.T) {
	filters, err := itemMapping.ParseFilters(map[string]string{
		"kind":   "food",
		"flag":   "true",
		"ignore": "me",
	})
	require.NoError(t, err)
	assert.Equal(t, generic.Filters{"kind": "food", "flag": true}, filters)

	_, err = itemMapping.ParseFilters(map[string]string{"flag": "maybe"})
	var verr *generic.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "flag", verr.Field)
	assert.True(t, generic.IsClientError(err))
}

func TestMapping_ValidateFilters(t *testing.T) {
	require.NoError(t, itemMapping.ValidateFilters(generic.Filters{"kind": "x"}))
	err := itemMapping.ValidateFilters(generic.Filters{"owner_id": "x"})
	assert.ErrorIs(t, err, generic.ErrUnknownFilterField)
}

func TestIndexSpec_NameIsOrderIndependent(t *testing.T) {
	a := itemMapping.IndexFor("kind", "flag")
	b := itemMapping.IndexFor("flag", "kind")
	assert.Equal(t, a.Name(), b.Name())
	assert.Equal(t, "idx_items_owner_id_flag_kind_at", a.Name())
	assert.Equal(t, "idx_items_owner_id_at", itemMapping.IndexFor().Name())
}

func TestStoreQuery_Validate(t *testing.T) {
	ok := generic.StoreQuery{
		Collection: "items",
		OwnerField: "owner_id",
		OwnerID:    "alice",
		Range:      &generic.RangeFilter{Field: "at", Op: generic.OpGTE, Value: 1},
		Sort:       &generic.SortOrder{Field: "at"},
	}
	require.NoError(t, ok.Validate())

	mismatched := ok
	mismatched.Sort = &generic.SortOrder{Field: "other"}
	assert.Error(t, mismatched.Validate())

	negative := ok
	negative.Limit = -1
	assert.ErrorIs(t, negative.Validate(), generic.ErrInvalidLimit)

	assert.Error(t, generic.StoreQuery{OwnerID: "alice"}.Validate())
}

func TestStoreQuery_IndexFields(t *testing.T) {
	q := generic.StoreQuery{
		Collection: "items",
		OwnerField: "owner_id",
		Equals:     []generic.FieldValue{{Field: "kind", Value: "food"}},
		Sort:       &generic.SortOrder{Field: "at", Direction: generic.Descending},
	}
	assert.Equal(t, []string{"owner_id", "kind", "at"}, q.IndexFields())
	assert.False(t, q.IsFullScan())
	assert.True(t, generic.StoreQuery{Collection: "items", OwnerField: "owner_id"}.IsFullScan())
}

func TestMissingIndexError_Unwrap(t *testing.T) {
	cause := errors.New("native")
	err := &generic.MissingIndexError{Collection: "items", Fields: []string{"owner_id", "at"}, Code: "X", Cause: cause}

	assert.True(t, generic.IsMissingIndex(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "missing index on items(owner_id, at) [X]: native", err.Error())
	assert.False(t, generic.IsClientError(err))
}

func TestTimeValue(t *testing.T) {
	want := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, v := range []any{want, &want, want.UnixMilli(), float64(want.UnixMilli()), json.Number("1740830400000")} {
		got, ok := generic.TimeValue(v)
		require.True(t, ok, "%T", v)
		assert.True(t, want.Equal(got), "%T: %v", v, got)
	}
	_, ok := generic.TimeValue("2025-03-01")
	assert.False(t, ok)
}

func TestDayWindow(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), generic.DayStart(t0))
	assert.Equal(t, time.Date(2025, 3, 1, 23, 59, 59, 999_000_000, time.UTC), generic.DayEnd(t0))
}
