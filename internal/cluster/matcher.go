package cluster

import (
	"fmt"
	"math/rand/v2"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/lsh"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/minhash"
	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Matcher returns the documents a pivot should be clustered with. The result
// always contains the pivot.
type Matcher interface {
	Match(pivot DocID) (*roaring64.Bitmap, error)
}

// Forgetter is implemented by matchers that can shrink their search space
// once documents have been assigned to a cluster.
type Forgetter interface {
	Forget(ids *roaring64.Bitmap)
}

// Mode says who owns the banding index handed to a ThresholdMatcher.
type Mode int

const (
	// Destructive lets the matcher remove clustered documents from the
	// caller's index. The index is spent after clustering.
	Destructive Mode = iota
	// Preserve clones the index first and leaves the caller's copy intact.
	Preserve
)

func (m Mode) String() string {
	if m == Preserve {
		return "preserve"
	}
	return "destructive"
}

// ThresholdMatcher links a pivot to the banding candidates whose estimated
// Jaccard similarity is at least the threshold.
type ThresholdMatcher struct {
	store     *minhash.Store
	index     *lsh.Index
	threshold float64
}

// NewThresholdMatcher fails with ErrThresholdBelowBanding when threshold is
// below the index's banding threshold: pairs in between would rarely share a
// bucket and the result would silently miss them.
func NewThresholdMatcher(store *minhash.Store, index *lsh.Index, threshold float64, mode Mode) (*ThresholdMatcher, error) {
	if threshold < index.Threshold() {
		return nil, apperrors.Newf(apperrors.ErrThresholdBelowBanding,
			"requested %g, index built for %g", threshold, index.Threshold())
	}
	if threshold > 1 {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfig, "clustering threshold %g above 1", threshold)
	}
	if mode == Preserve {
		index = index.Clone()
	}
	return &ThresholdMatcher{
		store:     store,
		index:     index,
		threshold: threshold,
	}, nil
}

func (m *ThresholdMatcher) Match(pivot DocID) (*roaring64.Bitmap, error) {
	candidates, err := m.index.Candidates(pivot)
	if err != nil {
		return nil, fmt.Errorf("candidates of %d: %w", pivot, err)
	}
	out := roaring64.BitmapOf(pivot)
	it := candidates.Iterator()
	for it.HasNext() {
		c := it.Next()
		if c == pivot {
			continue
		}
		j, err := m.store.Jaccard(pivot, c)
		if err != nil {
			return nil, fmt.Errorf("comparing %d with %d: %w", pivot, c, err)
		}
		if j >= m.threshold {
			out.Add(c)
		}
	}
	return out, nil
}

// Forget drops clustered documents from the matcher's index.
func (m *ThresholdMatcher) Forget(ids *roaring64.Bitmap) {
	m.index.RemoveAll(ids)
}

// ConsensusMatcher links a pivot to each document it shares a cluster with in
// some of the input clusterings, with probability equal to the fraction of
// clusterings that agree.
type ConsensusMatcher struct {
	n       int
	members []map[DocID]*roaring64.Bitmap
	rng     *rand.Rand
}

// NewConsensusMatcher indexes the clusterings by document. Each input must be
// internally disjoint; clusterings may cover different ids.
func NewConsensusMatcher(clusterings []Clustering, rng *rand.Rand) (*ConsensusMatcher, error) {
	members := make([]map[DocID]*roaring64.Bitmap, len(clusterings))
	for i, c := range clusterings {
		m := make(map[DocID]*roaring64.Bitmap, c.Len())
		for _, bm := range c {
			it := bm.Iterator()
			for it.HasNext() {
				id := it.Next()
				if _, dup := m[id]; dup {
					return nil, apperrors.Newf(apperrors.ErrInvalidInput, "document %d appears twice in clustering %d", id, i)
				}
				m[id] = bm
			}
		}
		members[i] = m
	}
	if rng == nil {
		rng = newRand()
	}
	return &ConsensusMatcher{
		n:       len(clusterings),
		members: members,
		rng:     rng,
	}, nil
}

func (m *ConsensusMatcher) Match(pivot DocID) (*roaring64.Bitmap, error) {
	out := roaring64.BitmapOf(pivot)
	own := make([]*roaring64.Bitmap, 0, m.n)
	candidates := roaring64.New()
	for _, mem := range m.members {
		if bm, ok := mem[pivot]; ok {
			own = append(own, bm)
			candidates.Or(bm)
		}
	}
	// Candidates are visited in id order so a seeded generator gives
	// repeatable draws.
	it := candidates.Iterator()
	for it.HasNext() {
		id := it.Next()
		if id == pivot {
			continue
		}
		count := 0
		for _, bm := range own {
			if bm.Contains(id) {
				count++
			}
		}
		if m.rng.Float64() < float64(count)/float64(m.n) {
			out.Add(id)
		}
	}
	return out, nil
}
