package cluster

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/stretchr/testify/assert"
)

func TestLabels(t *testing.T) {
	c := FromSets([]DocID{4, 9}, []DocID{1}, []DocID{2, 3})
	assert.Equal(t, map[DocID]int{4: 1, 9: 1, 1: 2, 2: 3, 3: 3}, c.Labels())
	assert.Equal(t, uint64(5), c.Len())
}

func TestCheck(t *testing.T) {
	universe := roaring64.BitmapOf(1, 2, 3)

	assert.NoError(t, FromSets([]DocID{1, 3}, []DocID{2}).Check(universe))
	assert.Error(t, FromSets([]DocID{1, 2}, []DocID{2, 3}).Check(universe), "overlap")
	assert.Error(t, FromSets([]DocID{1, 2}).Check(universe), "missing")
	assert.Error(t, FromSets([]DocID{1, 2, 3, 4}).Check(universe), "extra")
	assert.Error(t, Clustering{roaring64.New(), roaring64.BitmapOf(1, 2, 3)}.Check(universe), "empty")
	assert.NoError(t, Clustering{}.Check(roaring64.New()))
}

func TestSortBySize(t *testing.T) {
	c := FromSets([]DocID{7}, []DocID{5, 6}, []DocID{1}, []DocID{2, 3, 4})
	c.SortBySize()
	assert.Equal(t, [][]DocID{{2, 3, 4}, {5, 6}, {1}, {7}}, c.Sets())
}

func TestPairAgreement(t *testing.T) {
	a := FromSets([]DocID{1, 2}, []DocID{3, 4})
	assert.Equal(t, 1.0, PairAgreement(a, FromSets([]DocID{3, 4}, []DocID{2, 1})))

	// Pairs: 12 13 14 23 24 34. b merges everything: agrees on 12 and 34.
	b := FromSets([]DocID{1, 2, 3, 4})
	assert.InDelta(t, 2.0/6.0, PairAgreement(a, b), 1e-12)

	// 5 only in c; it is a singleton in a, so all pairs with 5 agree.
	c := FromSets([]DocID{1, 2}, []DocID{3, 4}, []DocID{5})
	assert.Equal(t, 1.0, PairAgreement(a, c))
	assert.Equal(t, 1.0, PairAgreement(nil, nil))
}
