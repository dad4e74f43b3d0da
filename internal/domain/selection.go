package domain

import (
	"math/rand/v2"
	"slices"
)

// IndexSet is a set of catalog row indices.
type IndexSet map[int]struct{}

// NewIndexSet builds a set from the given indices.
func NewIndexSet(indices ...int) IndexSet {
	s := make(IndexSet, len(indices))
	for _, i := range indices {
		s[i] = struct{}{}
	}
	return s
}

// Has reports whether i is in the set.
func (s IndexSet) Has(i int) bool {
	_, ok := s[i]
	return ok
}

// Clone returns a copy of the set.
func (s IndexSet) Clone() IndexSet {
	out := make(IndexSet, len(s)+1)
	for i := range s {
		out[i] = struct{}{}
	}
	return out
}

// Sorted returns the members in ascending order.
func (s IndexSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

// Selection is the outcome of claiming a catalog row.
type Selection struct {
	Index int

	// Sequence is the post number, incremented once per claim.
	Sequence int64
}

// SelectionStats summarises the selection state.
type SelectionStats struct {
	Universe  int
	Selected  int
	Remaining int
	Sequence  int64
}

// PickFunc chooses the next index given the already selected set and the
// universe. Stores call it inside their write transaction.
type PickFunc func(selected, universe IndexSet) (int, error)

// SelectNext picks an index uniformly at random from universe minus selected
// and returns it with the updated selected set. The inputs are not modified.
// It returns ErrExhausted when nothing is eligible.
func SelectNext(selected, universe IndexSet, rnd *rand.Rand) (int, IndexSet, error) {
	eligible := make([]int, 0, len(universe))
	for i := range universe {
		if !selected.Has(i) {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return 0, nil, ErrExhausted
	}

	// map iteration order is random; sort so a seeded rnd is reproducible
	slices.Sort(eligible)

	var n int
	if rnd != nil {
		n = rnd.IntN(len(eligible))
	} else {
		n = rand.IntN(len(eligible))
	}
	idx := eligible[n]

	next := selected.Clone()
	next[idx] = struct{}{}
	return idx, next, nil
}

// RandomPick adapts SelectNext to a PickFunc.
func RandomPick(rnd *rand.Rand) PickFunc {
	return func(selected, universe IndexSet) (int, error) {
		idx, _, err := SelectNext(selected, universe, rnd)
		return idx, err
	}
}
