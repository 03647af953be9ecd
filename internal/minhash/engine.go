// Package minhash turns token sets into fixed-length MinHash signatures whose
// positional agreement estimates Jaccard similarity.
package minhash

import (
	"context"
	"crypto/sha1"
	"math/rand/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
)

const (
	// DefaultSeed reproduces the coefficient family used by earlier runs.
	DefaultSeed uint64 = 427

	// MaxHash is the initial value of every signature position and the mask
	// applied to each per-token hash.
	MaxHash uint64 = 1<<62 - 1

	digestModulus uint64 = 1_000_000_000_000
)

// DocID identifies a document across the pipeline, the banding index and
// the clusterings.
type DocID = uint64

// Engine owns an immutable family of universal hash functions. It is safe for
// concurrent use.
type Engine struct {
	numHashes int
	seed      uint64
	a         []u89
	b         []u89
}

// NewEngine draws numHashes (a, b) pairs from a PCG generator seeded with
// seed. Two engines with equal arguments hash identically.
func NewEngine(numHashes int, seed uint64) (*Engine, error) {
	if numHashes < 1 {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfig, "number of hash functions must be positive, got %d", numHashes)
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	e := &Engine{
		numHashes: numHashes,
		seed:      seed,
		a:         make([]u89, numHashes),
		b:         make([]u89, numHashes),
	}
	for i := range numHashes {
		a := random89(rng)
		for a.isZero() {
			a = random89(rng)
		}
		e.a[i] = a
		e.b[i] = random89(rng)
	}
	return e, nil
}

func (e *Engine) NumHashes() int { return e.numHashes }

func (e *Engine) Seed() uint64 { return e.seed }

// HashToken returns the per-position hash values of a single token.
func (e *Engine) HashToken(token string) Signature {
	sig := make(Signature, e.numHashes)
	e.hashInto(sig, digest(token), false)
	return sig
}

// HashDocument returns the coordinate-wise minimum of the token hashes. An
// empty token set yields a signature of MaxHash values.
func (e *Engine) HashDocument(tokens []string) Signature {
	sig := make(Signature, e.numHashes)
	for i := range sig {
		sig[i] = MaxHash
	}
	for _, tok := range tokens {
		e.hashInto(sig, digest(tok), true)
	}
	return sig
}

func (e *Engine) hashInto(sig Signature, hv uint64, keepMin bool) {
	for i := range sig {
		v := mulAddMod(e.a[i], hv, e.b[i]).lo & MaxHash
		if !keepMin || v < sig[i] {
			sig[i] = v
		}
	}
}

// digest reduces the SHA-1 of token, read as a big-endian integer, modulo
// 10^12.
func digest(token string) uint64 {
	sum := sha1.Sum([]byte(token))
	var r uint64
	for _, b := range sum {
		r = (r<<8 | uint64(b)) % digestModulus
	}
	return r
}

// Hash adapts HashDocument to the pipeline's Hasher interface.
func (e *Engine) Hash(_ context.Context, tokens []string) (Signature, error) {
	return e.HashDocument(tokens), nil
}
