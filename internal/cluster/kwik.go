package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/metrics"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

const (
	pivotFromQueue  = "queue"
	pivotFromRandom = "random"
)

type options struct {
	order   []DocID
	rng     *rand.Rand
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*options)

// WithPivotOrder makes KwikCluster take pivots from ids first, skipping ids
// that were already clustered. Once the list is exhausted pivots are drawn at
// random.
func WithPivotOrder(ids []DocID) Option {
	return func(o *options) { o.order = ids }
}

// WithRand sets the generator used for random pivots and consensus draws.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// WithSeed is WithRand with a PCG generator seeded from seed.
func WithSeed(seed uint64) Option {
	return WithRand(rand.New(rand.NewPCG(seed, seed)))
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.rng == nil {
		o.rng = newRand()
	}
	if o.logger == nil {
		o.logger = slog.Default().With("component", "kwikcluster")
	}
	return o
}

// KwikCluster partitions universe. Each step picks a pivot among the
// remaining documents, forms the cluster (match(pivot) ∩ remaining) ∪
// {pivot} and removes it from the remaining set. Without WithPivotOrder or a
// seeded generator the result varies between runs.
//
// universe is not modified. If m is a Forgetter it is told about every
// cluster as soon as it is formed.
func KwikCluster(ctx context.Context, m Matcher, universe *roaring64.Bitmap, opts ...Option) (Clustering, error) {
	o := buildOptions(opts)
	start := time.Now()
	remaining := universe.Clone()
	forgetter, _ := m.(Forgetter)
	queue := o.order
	out := make(Clustering, 0)

	for !remaining.IsEmpty() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("clustering interrupted with %d documents left: %w", remaining.GetCardinality(), err)
		}

		var pivot DocID
		source := pivotFromRandom
		for len(queue) > 0 {
			next := queue[0]
			queue = queue[1:]
			if remaining.Contains(next) {
				pivot, source = next, pivotFromQueue
				break
			}
		}
		if source == pivotFromRandom {
			p, err := remaining.Select(o.rng.Uint64N(remaining.GetCardinality()))
			if err != nil {
				return nil, fmt.Errorf("selecting pivot: %w", err)
			}
			pivot = p
		}

		matched, err := m.Match(pivot)
		if err != nil {
			return nil, fmt.Errorf("matching pivot %d: %w", pivot, err)
		}
		c := matched.Clone()
		c.And(remaining)
		c.Add(pivot)
		remaining.AndNot(c)
		if forgetter != nil {
			forgetter.Forget(c)
		}

		out = append(out, c)
		o.metrics.ClusterFormed(int(c.GetCardinality()), source)
		o.logger.Debug("cluster formed",
			"pivot", pivot,
			"pivot_source", source,
			"size", c.GetCardinality(),
			"remaining", remaining.GetCardinality(),
		)
	}

	o.metrics.ObserveStage("kwikcluster", time.Since(start).Seconds())
	o.logger.Info("clustering complete",
		"documents", universe.GetCardinality(),
		"clusters", len(out),
		"duration", time.Since(start),
	)
	return out, nil
}

// Consensus combines several clusterings of (possibly different) id sets into
// one by running KwikCluster over a ConsensusMatcher. The universe is the
// union of all input ids. The WithRand/WithSeed generator drives both pivot
// selection and the consensus draws.
func Consensus(ctx context.Context, clusterings []Clustering, opts ...Option) (Clustering, error) {
	o := buildOptions(opts)
	m, err := NewConsensusMatcher(clusterings, o.rng)
	if err != nil {
		return nil, err
	}
	universe := roaring64.New()
	for _, c := range clusterings {
		universe.Or(c.Universe())
	}
	o.logger.Info("building consensus",
		"clusterings", len(clusterings),
		"documents", universe.GetCardinality(),
	)
	return KwikCluster(ctx, m, universe, append(opts[:len(opts):len(opts)], WithRand(o.rng), WithLogger(o.logger))...)
}
