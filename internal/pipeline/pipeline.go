// Package pipeline computes MinHash signatures for a corpus on a bounded
// worker pool. A single producer submits documents with Add and collects
// everything with Finish; results land in a minhash.Store keyed by document
// id, so completion order does not matter.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/minhash"
	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Hasher turns a token set into a signature. *minhash.Engine implements it,
// as does the caching hasher in internal/sigcache.
type Hasher interface {
	Hash(ctx context.Context, tokens []string) (minhash.Signature, error)
}

type Config struct {
	Workers         int
	JobQueueSize    int
	ResultQueueSize int
	// DrainWatermark is the number of outstanding jobs at which Add starts
	// collecting finished results before submitting more.
	DrainWatermark int
}

type job struct {
	id     minhash.DocID
	tokens []string
}

type result struct {
	id  minhash.DocID
	sig minhash.Signature
	err error
}

// Pipeline is not safe for concurrent producers: Add, Finish and Close must
// be called from one goroutine.
type Pipeline struct {
	hasher  Hasher
	store   *minhash.Store
	cfg     Config
	jobs    chan job
	results chan result

	group     *errgroup.Group
	workerCtx context.Context
	cancel    context.CancelFunc

	outstanding int
	submitted   int
	finished    bool
	err         error

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Pipeline)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New validates cfg and starts cfg.Workers workers. Workers stop when ctx is
// cancelled. Callers must call Finish or Close.
func New(ctx context.Context, hasher Hasher, store *minhash.Store, cfg Config, opts ...Option) (*Pipeline, error) {
	if cfg.Workers < 1 || cfg.JobQueueSize < 1 || cfg.ResultQueueSize < 1 {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfig,
			"pipeline needs positive workers and queue sizes, got workers=%d jobs=%d results=%d",
			cfg.Workers, cfg.JobQueueSize, cfg.ResultQueueSize)
	}
	if cfg.DrainWatermark < 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfig, "negative drain watermark %d", cfg.DrainWatermark)
	}

	wctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(wctx)
	p := &Pipeline{
		hasher:    hasher,
		store:     store,
		cfg:       cfg,
		jobs:      make(chan job, cfg.JobQueueSize),
		results:   make(chan result, cfg.ResultQueueSize),
		group:     g,
		workerCtx: gctx,
		cancel:    cancel,
		logger:    slog.Default().With("component", "hash-pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	for range cfg.Workers {
		g.Go(func() error { return p.work(gctx) })
	}
	p.logger.Debug("pipeline started",
		"workers", cfg.Workers,
		"job_queue", cfg.JobQueueSize,
		"result_queue", cfg.ResultQueueSize,
		"watermark", cfg.DrainWatermark,
	)
	return p, nil
}

// work consumes jobs until the job channel is closed, which is each
// worker's stop signal.
func (p *Pipeline) work(ctx context.Context) error {
	for j := range p.jobs {
		sig, err := p.hasher.Hash(ctx, j.tokens)
		if err != nil {
			err = fmt.Errorf("hashing document %d: %w", j.id, err)
		}
		select {
		case p.results <- result{id: j.id, sig: sig, err: err}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Add submits one document. Once the outstanding job count reaches the drain
// watermark, ready results are collected first. While the job queue is full
// Add keeps collecting results, so it cannot deadlock against the workers.
func (p *Pipeline) Add(ctx context.Context, id minhash.DocID, tokens []string) error {
	if p.finished {
		return apperrors.Newf(apperrors.ErrPipelineClosed, "add of document %d", id)
	}
	if p.err != nil {
		return p.err
	}
	if p.outstanding >= p.cfg.DrainWatermark {
		p.drainReady()
		if p.err != nil {
			return p.err
		}
	}

	j := job{id: id, tokens: tokens}
	for {
		select {
		case p.jobs <- j:
			p.outstanding++
			p.submitted++
			p.metrics.SetOutstanding(p.outstanding)
			return nil
		case r := <-p.results:
			p.collect(r)
			if p.err != nil {
				return p.err
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-p.workerCtx.Done():
			return p.workerErr()
		}
	}
}

// Finish stops the workers, waits for every submitted document and returns
// the first hashing error, if any. Calling it again returns the same result.
func (p *Pipeline) Finish(ctx context.Context) error {
	if p.finished {
		return p.err
	}
	p.finished = true
	close(p.jobs)

	for p.outstanding > 0 {
		select {
		case r := <-p.results:
			p.collect(r)
		case <-ctx.Done():
			p.abort()
			p.err = ctx.Err()
			return p.err
		case <-p.workerCtx.Done():
			p.err = p.workerErr()
			p.abort()
			return p.err
		}
	}
	if err := p.group.Wait(); err != nil && p.err == nil {
		p.err = err
	}
	p.cancel()
	p.logger.Info("pipeline finished",
		"documents", p.submitted,
		"stored", p.store.Len(),
	)
	return p.err
}

// Close shuts the workers down without waiting for outstanding results. It is
// a no-op after Finish, so it can always be deferred.
func (p *Pipeline) Close() {
	if p.finished {
		p.cancel()
		return
	}
	p.finished = true
	close(p.jobs)
	p.abort()
	if p.err == nil {
		p.err = apperrors.New(apperrors.ErrPipelineClosed, "closed before finish")
	}
}

// Outstanding reports jobs submitted but not yet collected.
func (p *Pipeline) Outstanding() int {
	return p.outstanding
}

func (p *Pipeline) abort() {
	p.cancel()
	_ = p.group.Wait()
	p.logger.Warn("pipeline aborted", "outstanding", p.outstanding)
}

func (p *Pipeline) drainReady() {
	for {
		select {
		case r := <-p.results:
			p.collect(r)
		default:
			return
		}
	}
}

func (p *Pipeline) collect(r result) {
	p.outstanding--
	p.metrics.SetOutstanding(p.outstanding)
	if r.err != nil {
		if p.err == nil {
			p.err = r.err
		}
		p.logger.Error("hashing failed", "doc_id", r.id, "error", r.err)
		return
	}
	p.store.Put(r.id, r.sig)
	p.metrics.DocHashed()
	p.logger.Debug("document hashed", "doc_id", r.id)
}

// workerErr explains why the worker context ended.
func (p *Pipeline) workerErr() error {
	if err := context.Cause(p.workerCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("hash workers stopped: %w", p.workerCtx.Err())
}
