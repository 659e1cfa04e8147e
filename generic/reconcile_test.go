package generic_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/warp/tracker/generic"
)

func TestReconcile_FiltersSortsAndTruncates(t *testing.T) {
	// GIVEN: an unordered batch with mixed kinds
	input := []item{
		at("alice", 300, "food"),
		at("alice", 100, "food"),
		at("alice", 500, "rent"),
		at("alice", 400, "food"),
		at("alice", 200, "food"),
	}

	// WHEN: reconciling [150, 450], food, limit 2
	out := generic.Reconcile(input,
		generic.Bounds{Start: tp(150), End: tp(450)},
		generic.Filters{"kind": "food"},
		generic.Limit(2))

	// THEN: the two newest matches
	assert.Equal(t, []int64{400, 300}, timestamps(out))
}

func TestReconcile_IsIdempotent(t *testing.T) {
	input := []item{
		at("alice", 100, "food"),
		at("alice", 300, "rent"),
		at("alice", 300, "food"),
		at("alice", 200, "food"),
		at("alice", 700, "food"),
	}
	input[2].ID = "r0300-b"

	params := []struct {
		name   string
		bounds generic.Bounds
		equals generic.Filters
		limit  *int
	}{
		{"none", generic.Bounds{}, nil, nil},
		{"end", generic.Bounds{End: tp(300)}, nil, nil},
		{"filter+limit", generic.Bounds{}, generic.Filters{"kind": "food"}, generic.Limit(2)},
		{"all", generic.Bounds{Start: tp(100), End: tp(650)}, generic.Filters{"kind": "food"}, generic.Limit(10)},
	}
	for _, p := range params {
		t.Run(p.name, func(t *testing.T) {
			once := generic.Reconcile(input, p.bounds, p.equals, p.limit)
			twice := generic.Reconcile(once, p.bounds, p.equals, p.limit)
			if diff := cmp.Diff(once, twice); diff != "" {
				t.Errorf("not idempotent (-once +twice):\n%s", diff)
			}
		})
	}
}

func TestReconcile_DoesNotModifyInput(t *testing.T) {
	input := []item{at("alice", 100, "food"), at("alice", 300, "food"), at("alice", 200, "food")}
	before := append([]item(nil), input...)

	_ = generic.Reconcile(input, generic.Bounds{}, nil, generic.Limit(1))

	if diff := cmp.Diff(before, input); diff != "" {
		t.Errorf("input modified:\n%s", diff)
	}
}

func TestReconcile_TiesOrderedByKeyDescending(t *testing.T) {
	a, b, c := at("alice", 100, "food"), at("alice", 100, "food"), at("alice", 100, "food")
	a.ID, b.ID, c.ID = "a", "b", "c"

	out := generic.Reconcile([]item{b, a, c}, generic.Bounds{}, nil, generic.Limit(2))

	assert.Equal(t, []string{"c", "b"}, keys(out))
}

func TestReconcile_BoundsCompareOnMilliseconds(t *testing.T) {
	// GIVEN: a record 400µs into millisecond 100
	it := at("alice", 100, "food")
	it.At = it.At.Add(400_000)

	// WHEN: the window is exactly [100ms, 100ms]
	out := generic.Reconcile([]item{it}, generic.Bounds{Start: tp(100), End: tp(100)}, nil, nil)

	// THEN: the record is inside the window
	assert.Len(t, out, 1)
}

func TestReconcile_NilLimitKeepsEverything(t *testing.T) {
	input := []item{at("alice", 100, "food"), at("alice", 200, "food")}

	out := generic.Reconcile(input, generic.Bounds{}, generic.Filters{}, nil)

	assert.Equal(t, []int64{200, 100}, timestamps(out))
}

func TestReconcile_FilterOnUnknownAttributeMatchesNothing(t *testing.T) {
	out := generic.Reconcile([]item{at("alice", 100, "food")}, generic.Bounds{}, generic.Filters{"color": "red"}, nil)
	assert.Empty(t, out)
}
