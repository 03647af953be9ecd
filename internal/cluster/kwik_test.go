package cluster

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// graphMatcher links each id to a fixed neighbour list.
type graphMatcher struct {
	edges   map[DocID][]DocID
	calls   []DocID
	forgot  []DocID
	failFor DocID
}

func (g *graphMatcher) Match(pivot DocID) (*roaring64.Bitmap, error) {
	g.calls = append(g.calls, pivot)
	if pivot == g.failFor && pivot != 0 {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, "document %d", pivot)
	}
	out := roaring64.BitmapOf(g.edges[pivot]...)
	out.Add(pivot)
	return out, nil
}

func (g *graphMatcher) Forget(ids *roaring64.Bitmap) {
	g.forgot = append(g.forgot, ids.ToArray()...)
}

func TestKwikClusterEmptyUniverse(t *testing.T) {
	got, err := KwikCluster(context.Background(), &graphMatcher{}, roaring64.New())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestKwikClusterSingleton(t *testing.T) {
	got, err := KwikCluster(context.Background(), &graphMatcher{}, roaring64.BitmapOf(5))
	require.NoError(t, err)
	assert.Equal(t, [][]DocID{{5}}, got.Sets())
}

func TestKwikClusterFollowsPivotOrder(t *testing.T) {
	m := &graphMatcher{edges: map[DocID][]DocID{
		1: {2, 3},
		2: {1, 3, 4},
		4: {2, 5},
		5: {4},
	}}
	universe := roaring64.BitmapOf(1, 2, 3, 4, 5)

	got, err := KwikCluster(context.Background(), m, universe, WithPivotOrder([]DocID{2, 3, 5}))
	require.NoError(t, err)

	// 3 is already clustered with 2 and is skipped.
	assert.Equal(t, [][]DocID{{1, 2, 3, 4}, {5}}, got.Sets())
	assert.Equal(t, []DocID{2, 5}, m.calls)
	assert.ElementsMatch(t, []DocID{1, 2, 3, 4, 5}, m.forgot)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, universe.ToArray(), "universe must not be modified")
}

func TestKwikClusterDropsMatchesOutsideRemaining(t *testing.T) {
	m := &graphMatcher{edges: map[DocID][]DocID{
		1: {2, 99},
		3: {1, 2, 4},
	}}
	got, err := KwikCluster(context.Background(), m, roaring64.BitmapOf(1, 2, 3, 4), WithPivotOrder([]DocID{1, 3}))
	require.NoError(t, err)
	assert.Equal(t, [][]DocID{{1, 2}, {3, 4}}, got.Sets())
}

func TestKwikClusterPartitionsUniverse(t *testing.T) {
	edges := map[DocID][]DocID{}
	for i := DocID(0); i < 200; i++ {
		edges[i] = []DocID{(i + 1) % 200, (i * 7) % 200, (i + 50) % 200}
	}
	universe := roaring64.New()
	for i := range uint64(200) {
		universe.Add(i)
	}

	for seed := range uint64(5) {
		got, err := KwikCluster(context.Background(), &graphMatcher{edges: edges}, universe, WithSeed(seed))
		require.NoError(t, err)
		require.NoError(t, got.Check(universe), "seed %d", seed)
	}
}

func TestKwikClusterSeededIsReproducible(t *testing.T) {
	edges := map[DocID][]DocID{1: {2}, 3: {4}, 5: {1, 6}, 6: {3}}
	universe := roaring64.BitmapOf(1, 2, 3, 4, 5, 6)

	a, err := KwikCluster(context.Background(), &graphMatcher{edges: edges}, universe, WithSeed(42))
	require.NoError(t, err)
	b, err := KwikCluster(context.Background(), &graphMatcher{edges: edges}, universe, WithSeed(42))
	require.NoError(t, err)
	assert.Equal(t, a.Sets(), b.Sets())
}

func TestKwikClusterPropagatesMatchError(t *testing.T) {
	m := &graphMatcher{failFor: 3}
	_, err := KwikCluster(context.Background(), m, roaring64.BitmapOf(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
	assert.Contains(t, err.Error(), "pivot 3")
}

func TestKwikClusterHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := KwikCluster(ctx, &graphMatcher{}, roaring64.BitmapOf(1, 2))
	assert.True(t, errors.Is(err, context.Canceled))
}

func BenchmarkKwikCluster(b *testing.B) {
	edges := map[DocID][]DocID{}
	for i := DocID(0); i < 10000; i++ {
		edges[i] = []DocID{(i + 1) % 10000, (i * 31) % 10000}
	}
	universe := roaring64.New()
	for i := range uint64(10000) {
		universe.Add(i)
	}
	b.ReportAllocs()
	for b.Loop() {
		_, _ = KwikCluster(context.Background(), &graphMatcher{edges: edges}, universe, WithSeed(1))
	}
}
