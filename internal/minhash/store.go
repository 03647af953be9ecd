package minhash

import (
	"slices"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
)

// Store maps document ids to their signatures.
type Store struct {
	mu   sync.RWMutex
	sigs map[DocID]Signature
}

func NewStore() *Store {
	return &Store{
		sigs: make(map[DocID]Signature),
	}
}

// Put records sig for id, replacing any previous signature.
func (s *Store) Put(id DocID, sig Signature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sigs[id] = sig
}

func (s *Store) Get(id DocID) (Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.sigs[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrSignatureNotFound, "document %d", id)
	}
	return sig, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sigs)
}

// IDs returns the stored document ids in ascending order.
func (s *Store) IDs() []DocID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]DocID, 0, len(s.sigs))
	for id := range s.sigs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Snapshot copies the id to signature map. Signatures are shared, not copied.
func (s *Store) Snapshot() map[DocID]Signature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[DocID]Signature, len(s.sigs))
	for id, sig := range s.sigs {
		out[id] = sig
	}
	return out
}

// Jaccard estimates the similarity of two stored documents.
func (s *Store) Jaccard(id1, id2 DocID) (float64, error) {
	a, err := s.Get(id1)
	if err != nil {
		return 0, err
	}
	b, err := s.Get(id2)
	if err != nil {
		return 0, err
	}
	return Jaccard(a, b)
}
