// Package cluster groups documents with KwikCluster, a pivot-based
// correlation clustering algorithm, and derives consensus clusterings from
// several independent runs.
package cluster

import (
	"fmt"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/minhash"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

type DocID = minhash.DocID

// Clustering is a list of disjoint, non-empty clusters in the order they
// were formed.
type Clustering []*roaring64.Bitmap

// FromSets builds a Clustering from plain id slices.
func FromSets(sets ...[]DocID) Clustering {
	out := make(Clustering, 0, len(sets))
	for _, s := range sets {
		out = append(out, roaring64.BitmapOf(s...))
	}
	return out
}

// Sets returns each cluster as a sorted slice.
func (c Clustering) Sets() [][]DocID {
	out := make([][]DocID, len(c))
	for i, bm := range c {
		out[i] = bm.ToArray()
	}
	return out
}

// Universe returns the union of all clusters.
func (c Clustering) Universe() *roaring64.Bitmap {
	u := roaring64.New()
	for _, bm := range c {
		u.Or(bm)
	}
	return u
}

// Len is the number of documents across all clusters.
func (c Clustering) Len() uint64 {
	var n uint64
	for _, bm := range c {
		n += bm.GetCardinality()
	}
	return n
}

// Labels maps every document to the 1-based position of its cluster.
func (c Clustering) Labels() map[DocID]int {
	labels := make(map[DocID]int, c.Len())
	for i, bm := range c {
		it := bm.Iterator()
		for it.HasNext() {
			labels[it.Next()] = i + 1
		}
	}
	return labels
}

// Check verifies that c partitions universe: clusters are non-empty, pairwise
// disjoint, and cover exactly the universe.
func (c Clustering) Check(universe *roaring64.Bitmap) error {
	seen := roaring64.New()
	for i, bm := range c {
		if bm.IsEmpty() {
			return fmt.Errorf("cluster %d is empty", i)
		}
		overlap := bm.Clone()
		overlap.And(seen)
		if !overlap.IsEmpty() {
			return fmt.Errorf("cluster %d overlaps earlier clusters on %v", i, overlap.ToArray())
		}
		seen.Or(bm)
	}
	extra := seen.Clone()
	extra.AndNot(universe)
	if !extra.IsEmpty() {
		return fmt.Errorf("clusters contain ids outside the universe: %v", extra.ToArray())
	}
	missing := universe.Clone()
	missing.AndNot(seen)
	if !missing.IsEmpty() {
		return fmt.Errorf("ids not assigned to any cluster: %v", missing.ToArray())
	}
	return nil
}

// SortBySize orders clusters largest first, breaking ties by smallest id.
func (c Clustering) SortBySize() {
	slices.SortStableFunc(c, func(a, b *roaring64.Bitmap) int {
		if ca, cb := a.GetCardinality(), b.GetCardinality(); ca != cb {
			if ca > cb {
				return -1
			}
			return 1
		}
		return compareFirst(a, b)
	})
}

func compareFirst(a, b *roaring64.Bitmap) int {
	ia, ib := a.Iterator(), b.Iterator()
	switch {
	case !ia.HasNext() && !ib.HasNext():
		return 0
	case !ia.HasNext():
		return -1
	case !ib.HasNext():
		return 1
	}
	x, y := ia.Next(), ib.Next()
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// PairAgreement is the Rand index of a and b over the union of their ids: the
// fraction of id pairs that both clusterings either group together or keep
// apart. Ids present in only one clustering count as singletons in the other.
func PairAgreement(a, b Clustering) float64 {
	la, lb := a.Labels(), b.Labels()
	ids := a.Universe()
	ids.Or(b.Universe())
	all := ids.ToArray()
	if len(all) < 2 {
		return 1
	}
	label := func(m map[DocID]int, id DocID) int {
		if l, ok := m[id]; ok {
			return l
		}
		return -int(id) - 1
	}
	var agree, total int
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			sameA := label(la, all[i]) == label(la, all[j])
			sameB := label(lb, all[i]) == label(lb, all[j])
			if sameA == sameB {
				agree++
			}
			total++
		}
	}
	return float64(agree) / float64(total)
}
