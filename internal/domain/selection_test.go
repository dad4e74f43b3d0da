package domain

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectNextPicksEligible(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewPCG(1, 2))
	universe := NewIndexSet(0, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	selected := NewIndexSet(1, 3, 5)

	for range 100 {
		idx, next, err := SelectNext(selected, universe, rnd)
		require.NoError(t, err)
		require.True(t, universe.Has(idx))
		require.False(t, selected.Has(idx))

		want := selected.Clone()
		want[idx] = struct{}{}
		require.Equal(t, want, next)
	}

	// inputs untouched
	require.Equal(t, NewIndexSet(1, 3, 5), selected)
}

func TestSelectNextNeverRepeatsUntilExhausted(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewPCG(7, 7))
	universe := NewIndexSet(10, 20, 30, 40, 50)
	selected := NewIndexSet()
	seen := map[int]bool{}

	for range len(universe) {
		idx, next, err := SelectNext(selected, universe, rnd)
		require.NoError(t, err)
		require.False(t, seen[idx], "index %d selected twice", idx)
		seen[idx] = true
		selected = next
	}

	_, _, err := SelectNext(selected, universe, rnd)
	require.ErrorIs(t, err, ErrExhausted)
}

func TestSelectNextExhausted(t *testing.T) {
	t.Parallel()

	selected := NewIndexSet(1, 2)
	idx, next, err := SelectNext(selected, NewIndexSet(1, 2), nil)
	require.ErrorIs(t, err, ErrExhausted)
	require.Zero(t, idx)
	require.Nil(t, next)
	require.Equal(t, NewIndexSet(1, 2), selected)

	_, _, err = SelectNext(nil, nil, nil)
	require.ErrorIs(t, err, ErrExhausted)
}

func TestSelectNextIgnoresSelectedOutsideUniverse(t *testing.T) {
	t.Parallel()

	idx, _, err := SelectNext(NewIndexSet(99), NewIndexSet(4), nil)
	require.NoError(t, err)
	require.Equal(t, 4, idx)
}

func TestIndexSetSorted(t *testing.T) {
	t.Parallel()

	require.Equal(t, []int{1, 5, 9}, NewIndexSet(9, 1, 5).Sorted())
	require.Empty(t, NewIndexSet().Sorted())
}
