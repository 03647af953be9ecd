// Package lsh implements the banding index that turns MinHash signatures into
// candidate sets of probable near-duplicates.
package lsh

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/minhash"
	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/metrics"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/sync/errgroup"
)

// BandKey identifies one bucket: a digest of a band's position and values.
type BandKey [sha1.Size]byte

// Stats summarises the index.
type Stats struct {
	Documents     int
	Buckets       int
	Rows          int
	BandsPerDoc   int
	LargestBucket uint64
}

// Index keeps, for every document, the buckets it was placed in and, for
// every bucket, the documents in it. Both views change together under mu.
type Index struct {
	mu        sync.RWMutex
	numHashes int
	threshold float64
	rows      int
	bands     int
	docBands  map[minhash.DocID][]BandKey
	bandDocs  map[BandKey]*roaring64.Bitmap
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Index)

func WithMetrics(m *metrics.Metrics) Option {
	return func(ix *Index) { ix.metrics = m }
}

// New sizes bands for signatures of numHashes values so that pairs above
// threshold are likely to share a bucket. Rows left over after numHashes/r
// full bands are not indexed.
func New(numHashes int, threshold float64, opts ...Option) (*Index, error) {
	if numHashes < 1 {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfig, "number of hash functions must be positive, got %d", numHashes)
	}
	if threshold <= 0 || threshold >= 1 {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfig, "banding threshold must be in (0,1), got %g", threshold)
	}
	rows := Bandwidth(numHashes, threshold)
	ix := &Index{
		numHashes: numHashes,
		threshold: threshold,
		rows:      rows,
		bands:     numHashes / rows,
		docBands:  make(map[minhash.DocID][]BandKey),
		bandDocs:  make(map[BandKey]*roaring64.Bitmap),
		logger:    slog.Default().With("component", "lsh"),
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.logger.Debug("banding index created",
		"hashes", numHashes,
		"threshold", threshold,
		"rows", rows,
		"bands", ix.bands,
	)
	return ix, nil
}

func (ix *Index) Threshold() float64 { return ix.threshold }

// Rows is the number of signature values per band.
func (ix *Index) Rows() int { return ix.rows }

func (ix *Index) BandsPerDoc() int { return ix.bands }

// BandKeys computes the bucket keys of sig without touching the index.
func (ix *Index) BandKeys(sig minhash.Signature) ([]BandKey, error) {
	if len(sig) != ix.numHashes {
		return nil, apperrors.Newf(apperrors.ErrSignatureLength, "index expects %d values, got %d", ix.numHashes, len(sig))
	}
	keys := make([]BandKey, ix.bands)
	buf := make([]byte, 4+8*ix.rows)
	for band := range ix.bands {
		binary.BigEndian.PutUint32(buf, uint32(band))
		for i, v := range sig[band*ix.rows : (band+1)*ix.rows] {
			binary.BigEndian.PutUint64(buf[4+8*i:], v)
		}
		keys[band] = sha1.Sum(buf)
	}
	return keys, nil
}

// AddSignature indexes one document. Re-adding an id fails and leaves the
// index unchanged.
func (ix *Index) AddSignature(id minhash.DocID, sig minhash.Signature) error {
	keys, err := ix.BandKeys(sig)
	if err != nil {
		return fmt.Errorf("banding document %d: %w", id, err)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, exists := ix.docBands[id]; exists {
		return apperrors.Newf(apperrors.ErrDuplicateDocument, "document %d", id)
	}
	ix.insertLocked(id, keys)
	ix.metrics.DocsBanded(1, len(ix.bandDocs))
	return nil
}

// AddSignatures indexes many documents. Band keys are computed on up to
// workers goroutines and merged in id order, so the final index does not
// depend on the worker count. If any id is already indexed (or fails to band)
// nothing is inserted.
func (ix *Index) AddSignatures(ctx context.Context, sigs map[minhash.DocID]minhash.Signature, workers int) error {
	if workers < 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "banding workers must be positive, got %d", workers)
	}
	ids := make([]minhash.DocID, 0, len(sigs))
	for id := range sigs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	ix.mu.RLock()
	for _, id := range ids {
		if _, exists := ix.docBands[id]; exists {
			ix.mu.RUnlock()
			return apperrors.Newf(apperrors.ErrDuplicateDocument, "document %d", id)
		}
	}
	ix.mu.RUnlock()

	keys := make([][]BandKey, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(ids) + workers - 1) / workers
	for start := 0; start < len(ids); start += chunk {
		end := min(start+chunk, len(ids))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				k, err := ix.BandKeys(sigs[ids[i]])
				if err != nil {
					return fmt.Errorf("banding document %d: %w", ids[i], err)
				}
				keys[i] = k
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	// Another writer may have raced in between the check and the lock.
	for _, id := range ids {
		if _, exists := ix.docBands[id]; exists {
			return apperrors.Newf(apperrors.ErrDuplicateDocument, "document %d", id)
		}
	}
	for i, id := range ids {
		ix.insertLocked(id, keys[i])
	}
	ix.metrics.DocsBanded(len(ids), len(ix.bandDocs))
	ix.logger.Info("documents banded",
		"documents", len(ids),
		"buckets", len(ix.bandDocs),
		"workers", workers,
	)
	return nil
}

func (ix *Index) insertLocked(id minhash.DocID, keys []BandKey) {
	ix.docBands[id] = keys
	for _, key := range keys {
		bm, ok := ix.bandDocs[key]
		if !ok {
			bm = roaring64.New()
			ix.bandDocs[key] = bm
		}
		bm.Add(id)
	}
}

// Remove drops id from every bucket it is in. Buckets left empty are deleted.
func (ix *Index) Remove(id minhash.DocID) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if !ix.removeLocked(id) {
		return apperrors.Newf(apperrors.ErrDocumentNotFound, "document %d is not in the banding index", id)
	}
	return nil
}

// RemoveAll drops every id in ids that is still indexed and reports how many
// were removed.
func (ix *Index) RemoveAll(ids *roaring64.Bitmap) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	removed := 0
	it := ids.Iterator()
	for it.HasNext() {
		if ix.removeLocked(it.Next()) {
			removed++
		}
	}
	return removed
}

func (ix *Index) removeLocked(id minhash.DocID) bool {
	keys, ok := ix.docBands[id]
	if !ok {
		return false
	}
	for _, key := range keys {
		bm := ix.bandDocs[key]
		bm.Remove(id)
		if bm.IsEmpty() {
			delete(ix.bandDocs, key)
		}
	}
	delete(ix.docBands, id)
	return true
}

// Candidates returns every document sharing at least one bucket with id,
// including id itself.
func (ix *Index) Candidates(id minhash.DocID) (*roaring64.Bitmap, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	keys, ok := ix.docBands[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, "document %d is not in the banding index", id)
	}
	out := roaring64.New()
	for _, key := range keys {
		out.Or(ix.bandDocs[key])
	}
	return out, nil
}

func (ix *Index) Contains(id minhash.DocID) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.docBands[id]
	return ok
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docBands)
}

// IDs returns the indexed document ids as a bitmap.
func (ix *Index) IDs() *roaring64.Bitmap {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := roaring64.New()
	for id := range ix.docBands {
		out.Add(id)
	}
	return out
}

// Clone returns an independent copy. Band key slices are shared because they
// are never modified after insertion.
func (ix *Index) Clone() *Index {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c := &Index{
		numHashes: ix.numHashes,
		threshold: ix.threshold,
		rows:      ix.rows,
		bands:     ix.bands,
		docBands:  make(map[minhash.DocID][]BandKey, len(ix.docBands)),
		bandDocs:  make(map[BandKey]*roaring64.Bitmap, len(ix.bandDocs)),
		logger:    ix.logger,
		metrics:   ix.metrics,
	}
	for id, keys := range ix.docBands {
		c.docBands[id] = keys
	}
	for key, bm := range ix.bandDocs {
		c.bandDocs[key] = bm.Clone()
	}
	return c
}

func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	s := Stats{
		Documents:   len(ix.docBands),
		Buckets:     len(ix.bandDocs),
		Rows:        ix.rows,
		BandsPerDoc: ix.bands,
	}
	for _, bm := range ix.bandDocs {
		s.LargestBucket = max(s.LargestBucket, bm.GetCardinality())
	}
	return s
}

// CheckConsistency verifies that the document and bucket views agree.
func (ix *Index) CheckConsistency() error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var refs uint64
	for id, keys := range ix.docBands {
		for _, key := range keys {
			bm, ok := ix.bandDocs[key]
			if !ok || !bm.Contains(id) {
				return fmt.Errorf("document %d missing from bucket %x", id, key[:4])
			}
		}
		refs += uint64(len(keys))
	}
	var members uint64
	for key, bm := range ix.bandDocs {
		if bm.IsEmpty() {
			return fmt.Errorf("empty bucket %x", key[:4])
		}
		it := bm.Iterator()
		for it.HasNext() {
			id := it.Next()
			if !slices.Contains(ix.docBands[id], key) {
				return fmt.Errorf("bucket %x lists document %d which does not reference it", key[:4], id)
			}
		}
		members += bm.GetCardinality()
	}
	if members != refs {
		return fmt.Errorf("buckets hold %d memberships but documents reference %d", members, refs)
	}
	return nil
}
