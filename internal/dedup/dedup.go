// Package dedup runs the whole near-duplicate detection flow for one corpus:
// hash every document, band the signatures, then cluster with KwikCluster.
package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/cluster"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/lsh"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/minhash"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/sigcache"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/tracing"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Result is everything a run produced.
type Result struct {
	RunID      string
	Documents  int
	Clustering cluster.Clustering
	Index      lsh.Stats
	Cache      sigcache.Stats
	Trace      *tracing.Span
}

type Runner struct {
	cfg     config.Config
	engine  *minhash.Engine
	hasher  pipeline.Hasher
	cache   *sigcache.CachingHasher
	pivots  []minhash.DocID
	metrics *metrics.Metrics
}

type Option func(*Runner) error

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) error {
		r.metrics = m
		return nil
	}
}

// WithRemoteCache puts a shared signature cache behind the in-process one.
func WithRemoteCache(remote sigcache.Remote, ttl time.Duration) Option {
	return func(r *Runner) error {
		c, err := sigcache.New(r.engine, r.cfg.Cache.LRUSize, sigcache.WithRemote(remote, ttl), sigcache.WithMetrics(r.metrics))
		if err != nil {
			return err
		}
		r.cache = c
		r.hasher = c
		return nil
	}
}

// WithPivotOrder seeds KwikCluster with a preferred pivot sequence.
func WithPivotOrder(ids []minhash.DocID) Option {
	return func(r *Runner) error {
		r.pivots = ids
		return nil
	}
}

// NewRunner validates cfg and builds the hash family. Options apply in
// order, so WithMetrics should come before WithRemoteCache.
func NewRunner(cfg config.Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	engine, err := minhash.NewEngine(cfg.MinHash.NumHashes, cfg.MinHash.Seed)
	if err != nil {
		return nil, err
	}
	r := &Runner{cfg: cfg, engine: engine, hasher: engine}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.cache == nil && cfg.Cache.LRUSize > 0 {
		c, err := sigcache.New(engine, cfg.Cache.LRUSize, sigcache.WithMetrics(r.metrics))
		if err != nil {
			return nil, err
		}
		r.cache = c
		r.hasher = c
	}
	return r, nil
}

func (r *Runner) mode() cluster.Mode {
	if r.cfg.Cluster.Destructive {
		return cluster.Destructive
	}
	return cluster.Preserve
}

// Run consumes src and clusters it. src is closed on return. Document ids
// must be unique within src.
func (r *Runner) Run(ctx context.Context, runID string, src corpus.Source) (*Result, error) {
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx).With("component", "dedup")
	ctx, root := tracing.StartSpan(ctx, "dedup", runID)
	defer root.End()

	store, n, err := r.hash(ctx, src)
	if err != nil {
		return nil, err
	}

	ix, err := r.band(ctx, store)
	if err != nil {
		return nil, err
	}
	stats := ix.Stats()

	clusters, err := r.cluster(ctx, store, ix, log)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:      runID,
		Documents:  n,
		Clustering: clusters,
		Index:      stats,
		Trace:      root,
	}
	if r.cache != nil {
		res.Cache = r.cache.Stats()
	}
	root.SetAttr("documents", n)
	root.SetAttr("clusters", len(clusters))
	log.Info("run complete",
		"documents", n,
		"clusters", len(clusters),
		"buckets", stats.Buckets,
		"rows", stats.Rows,
		"bands", stats.BandsPerDoc,
	)
	return res, nil
}

func (r *Runner) stage(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := tracing.StartChildSpan(ctx, name)
	return ctx, func() {
		r.metrics.ObserveStage(name, span.End().Seconds())
	}
}

func (r *Runner) hash(ctx context.Context, src corpus.Source) (*minhash.Store, int, error) {
	ctx, done := r.stage(ctx, "hash")
	defer done()

	store := minhash.NewStore()
	p, err := pipeline.New(ctx, r.hasher, store, pipeline.Config{
		Workers:         r.cfg.Pipeline.Workers,
		JobQueueSize:    r.cfg.Pipeline.JobQueueSize,
		ResultQueueSize: r.cfg.Pipeline.ResultQueueSize,
		DrainWatermark:  r.cfg.Pipeline.DrainWatermark,
	}, pipeline.WithMetrics(r.metrics))
	if err != nil {
		src.Close()
		return nil, 0, err
	}
	defer p.Close()

	seen := roaring64.New()
	n, err := corpus.Each(ctx, src, func(d corpus.Document) error {
		if seen.Contains(d.ID) {
			return apperrors.Newf(apperrors.ErrDuplicateDocument, "document %d appears twice in the corpus", d.ID)
		}
		seen.Add(d.ID)
		return p.Add(ctx, d.ID, d.Tokens)
	})
	if err != nil {
		return nil, n, err
	}
	if err := p.Finish(ctx); err != nil {
		return nil, n, err
	}
	tracing.SpanFromContext(ctx).SetAttr("documents", n)
	return store, n, nil
}

func (r *Runner) band(ctx context.Context, store *minhash.Store) (*lsh.Index, error) {
	ctx, done := r.stage(ctx, "band")
	defer done()

	ix, err := lsh.New(r.cfg.MinHash.NumHashes, r.cfg.Banding.Threshold, lsh.WithMetrics(r.metrics))
	if err != nil {
		return nil, err
	}
	if err := ix.AddSignatures(ctx, store.Snapshot(), r.cfg.Banding.Workers); err != nil {
		return nil, err
	}
	tracing.SpanFromContext(ctx).SetAttr("rows", ix.Rows())
	return ix, nil
}

func (r *Runner) cluster(ctx context.Context, store *minhash.Store, ix *lsh.Index, log *slog.Logger) (cluster.Clustering, error) {
	ctx, done := r.stage(ctx, "cluster")
	defer done()

	universe := ix.IDs()
	m, err := cluster.NewThresholdMatcher(store, ix, r.cfg.ClusterThreshold(), r.mode())
	if err != nil {
		return nil, err
	}
	opts := []cluster.Option{
		cluster.WithMetrics(r.metrics),
		cluster.WithLogger(log.With("component", "kwikcluster")),
	}
	if r.cfg.Cluster.Seed != nil {
		opts = append(opts, cluster.WithSeed(*r.cfg.Cluster.Seed))
	}
	if len(r.pivots) > 0 {
		opts = append(opts, cluster.WithPivotOrder(r.pivots))
	}
	clusters, err := cluster.KwikCluster(ctx, m, universe, opts...)
	if err != nil {
		return nil, err
	}
	tracing.SpanFromContext(ctx).SetAttr("clusters", len(clusters))
	return clusters, nil
}
