package dedup

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/cluster"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/synth"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	cfg := *config.Default()
	cfg.Banding.Threshold = 0.3
	cfg.Cluster.Threshold = 0.5
	cfg.Pipeline = config.PipelineConfig{Workers: 3, JobQueueSize: 4, ResultQueueSize: 4, DrainWatermark: 2}
	return cfg
}

func drawn() synth.Corpus {
	return synth.Draw(synth.Config{Documents: 60, Clusters: 3, Features: 20, Noise: 5, Seed: 11})
}

func truth(c synth.Corpus, k int) cluster.Clustering {
	sets := make([][]cluster.DocID, k)
	for _, d := range c.Documents {
		l := c.Labels[d.ID] - 1
		sets[l] = append(sets[l], d.ID)
	}
	return cluster.FromSets(sets...)
}

func TestRunRecoversClusters(t *testing.T) {
	data := drawn()
	r, err := NewRunner(testConfig(), WithMetrics(metrics.New()))
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "run-1", corpus.FromDocuments(data.Documents))
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 60, res.Documents)
	assert.Equal(t, 60, res.Index.Documents)
	require.NoError(t, res.Clustering.Check(res.Clustering.Universe()))
	assert.Len(t, res.Clustering, 3)
	assert.Equal(t, 1.0, cluster.PairAgreement(res.Clustering, truth(data, 3)))
	assert.Equal(t, int64(60), res.Cache.Misses)

	require.NotNil(t, res.Trace)
	var stages []string
	for _, s := range res.Trace.Children {
		stages = append(stages, s.Name)
	}
	assert.Equal(t, []string{"hash", "band", "cluster"}, stages)
}

func TestRunSeedReproducible(t *testing.T) {
	for _, seed := range []uint64{0, 99} {
		t.Run(fmt.Sprint(seed), func(t *testing.T) {
			runTwiceWithSeed(t, seed)
		})
	}
}

func runTwiceWithSeed(t *testing.T, seed uint64) {
	t.Helper()
	data := drawn()
	cfg := testConfig()
	cfg.Cluster.Seed = &seed
	cfg.Cluster.Destructive = false

	var prev [][]cluster.DocID
	for range 2 {
		r, err := NewRunner(cfg)
		require.NoError(t, err)
		res, err := r.Run(context.Background(), "r", corpus.FromDocuments(data.Documents))
		require.NoError(t, err)
		if prev != nil {
			assert.Equal(t, prev, res.Clustering.Sets())
		}
		prev = res.Clustering.Sets()
	}
}

func TestRunPivotOrder(t *testing.T) {
	docs := []corpus.Document{
		{ID: 1, Tokens: []string{"a", "b", "c", "d"}},
		{ID: 2, Tokens: []string{"a", "b", "c", "d"}},
		{ID: 3, Tokens: []string{"x", "y"}},
	}
	r, err := NewRunner(testConfig(), WithPivotOrder([]cluster.DocID{3, 2}))
	require.NoError(t, err)
	res, err := r.Run(context.Background(), "r", corpus.FromDocuments(docs))
	require.NoError(t, err)
	assert.Equal(t, [][]cluster.DocID{{3}, {1, 2}}, res.Clustering.Sets())
}

func TestRunRejectsDuplicateIDs(t *testing.T) {
	docs := []corpus.Document{
		{ID: 1, Tokens: []string{"a"}},
		{ID: 1, Tokens: []string{"b"}},
	}
	r, err := NewRunner(testConfig())
	require.NoError(t, err)
	_, err = r.Run(context.Background(), "r", corpus.FromDocuments(docs))
	assert.ErrorIs(t, err, apperrors.ErrDuplicateDocument)
}

func TestRunEmptyCorpus(t *testing.T) {
	r, err := NewRunner(testConfig())
	require.NoError(t, err)
	res, err := r.Run(context.Background(), "r", corpus.FromDocuments(nil))
	require.NoError(t, err)
	assert.Empty(t, res.Clustering)
	assert.Zero(t, res.Documents)
}

func TestNewRunnerValidates(t *testing.T) {
	cfg := testConfig()
	cfg.Cluster.Threshold = 0.1
	_, err := NewRunner(cfg)
	assert.ErrorIs(t, err, apperrors.ErrThresholdBelowBanding)
}

type memRemote struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memRemote) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memRemote) SetBytes(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func TestRemoteCacheSharedBetweenRuns(t *testing.T) {
	data := drawn()
	remote := &memRemote{data: make(map[string][]byte)}

	var first cluster.Clustering
	for run := range 2 {
		r, err := NewRunner(testConfig(), WithRemoteCache(remote, time.Hour))
		require.NoError(t, err)
		res, err := r.Run(context.Background(), "r", corpus.FromDocuments(data.Documents))
		require.NoError(t, err)
		if run == 0 {
			assert.Equal(t, int64(60), res.Cache.Misses)
			first = res.Clustering
			continue
		}
		assert.Equal(t, int64(60), res.Cache.RemoteHits)
		assert.Zero(t, res.Cache.Misses)
		assert.Equal(t, 1.0, cluster.PairAgreement(first, res.Clustering))
	}
}
