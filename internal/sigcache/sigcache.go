// Package sigcache memoizes MinHash signatures by token set. Lookups go to an
// in-process LRU first, then to an optional shared remote store (Redis), and
// only then to the engine.
//
// Entries are keyed by a 64-bit hash of the token set and carry a second,
// independently seeded hash that is compared on every read. A hit is wrong
// only when both hashes collide, so the cache is probabilistic with a false
// hit rate near 2^-128 per lookup pair.
package sigcache

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/minhash"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/resilience"
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultLRUSize = 10000
	// KeyPrefix starts every remote key.
	KeyPrefix = "kd:sig:"
)

// KeyPattern matches the remote keys of one hash family.
func KeyPattern(numHashes int, seed uint64) string {
	return fmt.Sprintf("%s%d:%d:*", KeyPrefix, numHashes, seed)
}

// Engine is the signature source being cached.
type Engine interface {
	Hash(ctx context.Context, tokens []string) (minhash.Signature, error)
	NumHashes() int
	Seed() uint64
}

// Remote is a shared byte store. *redis.Client implements it.
type Remote interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// checkSeed seeds the verification hash stored beside each signature.
const checkSeed = 0x9e3779b97f4a7c15

type entry struct {
	check uint64
	sig   minhash.Signature
}

type Stats struct {
	LRUHits    int64
	RemoteHits int64
	Misses     int64
}

// CachingHasher satisfies the pipeline Hasher interface. Returned signatures
// are shared with the cache and must not be modified.
type CachingHasher struct {
	engine  Engine
	lru     *lru.Cache[uint64, entry]
	remote  Remote
	ttl     time.Duration
	breaker *resilience.Breaker
	prefix  string

	lruHits    atomic.Int64
	remoteHits atomic.Int64
	misses     atomic.Int64

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*CachingHasher)

// WithRemote adds a shared layer behind the LRU. Remote failures never fail
// a hash; after repeated failures the layer is skipped for a while.
func WithRemote(r Remote, ttl time.Duration) Option {
	return func(c *CachingHasher) {
		c.remote = r
		c.ttl = ttl
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *CachingHasher) { c.metrics = m }
}

func New(engine Engine, lruSize int, opts ...Option) (*CachingHasher, error) {
	if lruSize <= 0 {
		lruSize = DefaultLRUSize
	}
	cache, err := lru.New[uint64, entry](lruSize)
	if err != nil {
		return nil, fmt.Errorf("creating signature lru: %w", err)
	}
	c := &CachingHasher{
		engine:  engine,
		lru:     cache,
		breaker: resilience.NewBreaker("signature-cache", resilience.BreakerConfig{FailureThreshold: 3, ResetTimeout: 30 * time.Second}),
		prefix:  fmt.Sprintf("%s%d:%d:", KeyPrefix, engine.NumHashes(), engine.Seed()),
		logger:  slog.Default().With("component", "sigcache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Fingerprint hashes the token set: order and duplicates do not matter.
func Fingerprint(tokens []string) uint64 {
	fp, _ := fingerprints(tokens)
	return fp
}

// fingerprints returns the cache key hash and the verification hash of the
// token set. Each token is length-prefixed so no two sets share an encoding.
func fingerprints(tokens []string) (key, check uint64) {
	sorted := slices.Clone(tokens)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	kd := xxhash.New()
	cd := xxhash.NewWithSeed(checkSeed)
	var lenBuf [binary.MaxVarintLen64]byte
	for _, t := range sorted {
		n := binary.PutUvarint(lenBuf[:], uint64(len(t)))
		_, _ = kd.Write(lenBuf[:n])
		_, _ = kd.WriteString(t)
		_, _ = cd.Write(lenBuf[:n])
		_, _ = cd.WriteString(t)
	}
	return kd.Sum64(), cd.Sum64()
}

func (c *CachingHasher) key(fp uint64) string {
	return fmt.Sprintf("%s%016x", c.prefix, fp)
}

func (c *CachingHasher) Hash(ctx context.Context, tokens []string) (minhash.Signature, error) {
	fp, check := fingerprints(tokens)
	if e, ok := c.lru.Get(fp); ok && e.check == check {
		c.lruHits.Add(1)
		c.metrics.CacheHit("lru")
		return e.sig, nil
	}

	if sig, ok := c.remoteGet(ctx, fp, check); ok {
		c.remoteHits.Add(1)
		c.metrics.CacheHit("redis")
		c.lru.Add(fp, entry{check: check, sig: sig})
		return sig, nil
	}

	sig, err := c.engine.Hash(ctx, tokens)
	if err != nil {
		return nil, err
	}
	c.misses.Add(1)
	c.metrics.CacheMiss()
	c.lru.Add(fp, entry{check: check, sig: sig})
	c.remoteSet(ctx, fp, check, sig)
	return sig, nil
}

// Remote values are the 8-byte big-endian check hash followed by the
// signature's binary encoding.
func (c *CachingHasher) remoteGet(ctx context.Context, fp, check uint64) (minhash.Signature, bool) {
	if c.remote == nil {
		return nil, false
	}
	var (
		data  []byte
		found bool
	)
	err := c.breaker.Execute(func() error {
		var err error
		data, found, err = c.remote.GetBytes(ctx, c.key(fp))
		return err
	})
	if err != nil {
		c.logger.Debug("remote get failed", "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var sig minhash.Signature
	if len(data) < 8 || sig.UnmarshalBinary(data[8:]) != nil || len(sig) != c.engine.NumHashes() {
		c.logger.Warn("discarding malformed cached signature", "key", c.key(fp), "bytes", len(data))
		return nil, false
	}
	if binary.BigEndian.Uint64(data) != check {
		c.logger.Debug("cached signature belongs to another token set", "key", c.key(fp))
		return nil, false
	}
	return sig, true
}

func (c *CachingHasher) remoteSet(ctx context.Context, fp, check uint64, sig minhash.Signature) {
	if c.remote == nil {
		return
	}
	enc, err := sig.MarshalBinary()
	if err != nil {
		return
	}
	data := binary.BigEndian.AppendUint64(make([]byte, 0, 8+len(enc)), check)
	data = append(data, enc...)
	err = c.breaker.Execute(func() error {
		return c.remote.SetBytes(ctx, c.key(fp), data, c.ttl)
	})
	if err != nil {
		c.logger.Debug("remote set failed", "error", err)
	}
}

func (c *CachingHasher) NumHashes() int { return c.engine.NumHashes() }

func (c *CachingHasher) Seed() uint64 { return c.engine.Seed() }

func (c *CachingHasher) Stats() Stats {
	return Stats{
		LRUHits:    c.lruHits.Load(),
		RemoteHits: c.remoteHits.Load(),
		Misses:     c.misses.Load(),
	}
}
