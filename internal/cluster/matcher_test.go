package cluster

import (
	"context"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/lsh"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/minhash"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/synth"
	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// indexed hand-builds signatures so the expected Jaccard values are exact.
func indexed(t *testing.T, threshold float64) (*minhash.Store, *lsh.Index) {
	t.Helper()
	store := minhash.NewStore()
	store.Put(1, minhash.Signature{1, 2, 3, 4})
	store.Put(2, minhash.Signature{1, 2, 3, 9}) // J(1,2) = 0.75
	store.Put(3, minhash.Signature{1, 2, 8, 9}) // J(1,3) = 0.5
	store.Put(4, minhash.Signature{7, 7, 7, 7})

	ix, err := lsh.New(4, threshold)
	require.NoError(t, err)
	require.NoError(t, ix.AddSignatures(context.Background(), store.Snapshot(), 2))
	return store, ix
}

func TestThresholdMatcherRejectsLowThreshold(t *testing.T) {
	store, ix := indexed(t, 0.5)
	_, err := NewThresholdMatcher(store, ix, 0.4, Destructive)
	require.ErrorIs(t, err, apperrors.ErrThresholdBelowBanding)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
	assert.Equal(t, 4, ix.Len(), "index untouched")

	_, err = NewThresholdMatcher(store, ix, 1.5, Destructive)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
}

func TestThresholdMatcherFiltersCandidates(t *testing.T) {
	store, ix := indexed(t, 0.5)

	m, err := NewThresholdMatcher(store, ix, 0.5, Preserve)
	require.NoError(t, err)
	got, err := m.Match(1)
	require.NoError(t, err)
	assert.Equal(t, []DocID{1, 2, 3}, got.ToArray())

	m, err = NewThresholdMatcher(store, ix, 0.75, Preserve)
	require.NoError(t, err)
	got, err = m.Match(1)
	require.NoError(t, err)
	assert.Equal(t, []DocID{1, 2}, got.ToArray())

	got, err = m.Match(4)
	require.NoError(t, err)
	assert.Equal(t, []DocID{4}, got.ToArray())

	_, err = m.Match(99)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}

func TestThresholdMatcherMissingSignature(t *testing.T) {
	store, ix := indexed(t, 0.5)
	require.NoError(t, ix.AddSignature(5, minhash.Signature{1, 2, 3, 4}))

	m, err := NewThresholdMatcher(store, ix, 0.5, Preserve)
	require.NoError(t, err)
	_, err = m.Match(1)
	assert.ErrorIs(t, err, apperrors.ErrSignatureNotFound)
}

func TestOwnershipModes(t *testing.T) {
	store, ix := indexed(t, 0.5)
	m, err := NewThresholdMatcher(store, ix, 0.5, Preserve)
	require.NoError(t, err)
	got, err := KwikCluster(context.Background(), m, ix.IDs(), WithPivotOrder([]DocID{1}))
	require.NoError(t, err)
	assert.Equal(t, [][]DocID{{1, 2, 3}, {4}}, got.Sets())
	assert.Equal(t, 4, ix.Len(), "preserve leaves the caller's index intact")
	require.NoError(t, ix.CheckConsistency())

	m, err = NewThresholdMatcher(store, ix, 0.5, Destructive)
	require.NoError(t, err)
	got, err = KwikCluster(context.Background(), m, ix.IDs(), WithPivotOrder([]DocID{1}))
	require.NoError(t, err)
	assert.Equal(t, [][]DocID{{1, 2, 3}, {4}}, got.Sets())
	assert.Zero(t, ix.Len(), "destructive consumes the index")
}

func TestEndToEndTwoClusters(t *testing.T) {
	ctx := context.Background()
	data := synth.Draw(synth.Config{
		Documents: 100,
		Clusters:  2,
		Features:  20,
		Noise:     5,
		Seed:      2024,
	})

	engine, err := minhash.NewEngine(200, minhash.DefaultSeed)
	require.NoError(t, err)
	store := minhash.NewStore()
	p, err := pipeline.New(ctx, engine, store, pipeline.Config{
		Workers: 4, JobQueueSize: 8, ResultQueueSize: 8, DrainWatermark: 4,
	})
	require.NoError(t, err)
	defer p.Close()
	for _, d := range data.Documents {
		require.NoError(t, p.Add(ctx, d.ID, d.Tokens))
	}
	require.NoError(t, p.Finish(ctx))

	ix, err := lsh.New(200, 0.05)
	require.NoError(t, err)
	require.NoError(t, ix.AddSignatures(ctx, store.Snapshot(), 4))

	m, err := NewThresholdMatcher(store, ix, 0.05, Destructive)
	require.NoError(t, err)
	universe := ix.IDs()
	got, err := KwikCluster(ctx, m, universe, WithSeed(1))
	require.NoError(t, err)

	require.Len(t, got, 2)
	require.NoError(t, got.Check(universe))

	truth := make([][]DocID, 2)
	for _, d := range data.Documents {
		label := data.Labels[d.ID] - 1
		truth[label] = append(truth[label], d.ID)
	}
	assert.Equal(t, 1.0, PairAgreement(got, FromSets(truth...)))
}
