package cluster

import (
	"context"
	"math/rand/v2"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func overlapping() []Clustering {
	return []Clustering{
		FromSets([]DocID{1, 2, 3}, []DocID{4, 5}),
		FromSets([]DocID{1, 2}, []DocID{3, 4, 5}),
	}
}

func TestConsensusMatchProbabilities(t *testing.T) {
	m, err := NewConsensusMatcher(overlapping(), rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)

	seen := map[string]int{}
	for range 400 {
		got, err := m.Match(1)
		require.NoError(t, err)
		arr := got.ToArray()
		require.Contains(t, [][]DocID{{1, 2}, {1, 2, 3}}, arr)
		if len(arr) == 3 {
			seen["with3"]++
		}

		got, err = m.Match(5)
		require.NoError(t, err)
		require.Contains(t, [][]DocID{{4, 5}, {3, 4, 5}}, got.ToArray())
	}
	// 3 co-occurs with 1 in half the clusterings.
	assert.InDelta(t, 200, seen["with3"], 60)
}

func TestConsensusMatchUnknownPivot(t *testing.T) {
	m, err := NewConsensusMatcher(overlapping(), nil)
	require.NoError(t, err)
	got, err := m.Match(77)
	require.NoError(t, err)
	assert.Equal(t, []DocID{77}, got.ToArray())
}

func TestConsensusMatcherRejectsOverlappingClusters(t *testing.T) {
	_, err := NewConsensusMatcher([]Clustering{FromSets([]DocID{1, 2}, []DocID{2, 3})}, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestConsensusPartitionsUnion(t *testing.T) {
	clusterings := []Clustering{
		FromSets([]DocID{1, 2, 3, 4}, []DocID{5, 6, 7}),
		FromSets([]DocID{1, 2, 3}, []DocID{4, 5, 6, 7}),
	}
	universe := roaring64.BitmapOf(1, 2, 3, 4, 5, 6, 7)
	for seed := range uint64(20) {
		got, err := Consensus(context.Background(), clusterings, WithSeed(seed))
		require.NoError(t, err)
		require.NoError(t, got.Check(universe), "seed %d", seed)
	}
}

func TestConsensusKeepsAgreedPairTogether(t *testing.T) {
	clusterings := []Clustering{
		FromSets([]DocID{1, 2, 3, 4}, []DocID{5, 6, 7}),
		FromSets([]DocID{1, 2, 3}, []DocID{4, 5, 6, 7}),
	}
	const runs = 1000
	together := 0
	for seed := range uint64(runs) {
		got, err := Consensus(context.Background(), clusterings, WithSeed(seed))
		require.NoError(t, err)
		labels := got.Labels()
		if labels[1] == labels[2] {
			together++
		}
	}
	// Both inputs agree on {1,2}; they only split when a pivot outside the
	// pair draws one member and not the other.
	assert.GreaterOrEqual(t, float64(together)/runs, 0.85)
}

func TestConsensusCoversDifferentIDSets(t *testing.T) {
	clusterings := []Clustering{
		FromSets([]DocID{1, 2}),
		FromSets([]DocID{3}, []DocID{4, 5}),
	}
	got, err := Consensus(context.Background(), clusterings, WithSeed(3))
	require.NoError(t, err)
	require.NoError(t, got.Check(roaring64.BitmapOf(1, 2, 3, 4, 5)))
}

func TestConsensusWithPivotOrder(t *testing.T) {
	for seed := range uint64(20) {
		got, err := Consensus(context.Background(), overlapping(),
			WithPivotOrder([]DocID{1, 4}), WithSeed(seed))
		require.NoError(t, err)
		require.NoError(t, got.Check(roaring64.BitmapOf(1, 2, 3, 4, 5)))

		sets := got.Sets()
		require.GreaterOrEqual(t, len(sets), 2)
		assert.Contains(t, [][]DocID{{1, 2}, {1, 2, 3}}, sets[0], "seed %d", seed)
		assert.Contains(t, [][]DocID{{4, 5}, {3, 4, 5}}, sets[1], "seed %d", seed)
	}
}

func TestConsensusOfNothing(t *testing.T) {
	got, err := Consensus(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestConsensusOfIdenticalClusteringsIsStable(t *testing.T) {
	c := FromSets([]DocID{1, 2, 3}, []DocID{4}, []DocID{5, 6})
	got, err := Consensus(context.Background(), []Clustering{c, c, c}, WithSeed(11))
	require.NoError(t, err)
	assert.Equal(t, 1.0, PairAgreement(c, got))
}
