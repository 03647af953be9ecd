package sink

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/cluster"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/resilience"
)

const DefaultBatchSize = 100

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// KafkaSink publishes one ingest.ClusterEvent per cluster, keyed by run id
// so a run lands on a single partition in order.
type KafkaSink struct {
	pub       Publisher
	batchSize int
	retry     resilience.RetryConfig
}

func NewKafkaSink(pub Publisher, batchSize int, retry resilience.RetryConfig) *KafkaSink {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &KafkaSink{pub: pub, batchSize: batchSize, retry: retry}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, runID string, c cluster.Clustering) error {
	batch := make([]kafka.Event, 0, min(s.batchSize, len(c)))
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := resilience.Retry(ctx, "kafka-sink", s.retry, func(ctx context.Context) error {
			return s.pub.PublishBatch(ctx, batch)
		})
		batch = batch[:0]
		return err
	}
	for i, bm := range c {
		batch = append(batch, kafka.Event{
			Key: runID,
			Value: ingest.ClusterEvent{
				RunID:     runID,
				ClusterID: i + 1,
				Size:      int(bm.GetCardinality()),
				DocIDs:    bm.ToArray(),
			},
		})
		if len(batch) == s.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}
