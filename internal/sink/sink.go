// Package sink delivers a finished clustering to its destinations: a text
// file, a Postgres table or a Kafka topic. Every write is tagged with the id
// of the run that produced it.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/cluster"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/resilience"
	"github.com/google/uuid"
)

type Sink interface {
	Name() string
	Write(ctx context.Context, runID string, c cluster.Clustering) error
}

// NewRunID returns a fresh random run id.
func NewRunID() string {
	return uuid.NewString()
}

// ValidRunID reports whether id parses as a UUID.
func ValidRunID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Fanout writes to every sink in order, each under its own timeout, and
// joins the failures. One failing sink does not stop the others.
type Fanout struct {
	sinks   []Sink
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewFanout(timeout time.Duration, m *metrics.Metrics, sinks ...Sink) *Fanout {
	return &Fanout{
		sinks:   sinks,
		timeout: timeout,
		logger:  slog.Default().With("component", "sink"),
		metrics: m,
	}
}

func (f *Fanout) Len() int { return len(f.sinks) }

func (f *Fanout) Write(ctx context.Context, runID string, c cluster.Clustering) error {
	var errs []error
	for _, s := range f.sinks {
		start := time.Now()
		err := resilience.WithTimeout(ctx, f.timeout, s.Name(), func(ctx context.Context) error {
			return s.Write(ctx, runID, c)
		})
		f.metrics.SinkWrite(s.Name(), err)
		if err != nil {
			f.logger.Error("sink write failed", "sink", s.Name(), "run_id", runID, "error", err)
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
			continue
		}
		f.logger.Info("clusters written",
			"sink", s.Name(),
			"run_id", runID,
			"clusters", len(c),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return errors.Join(errs...)
}
