package cmd

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/sink"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/resilience"
)

const sinkTimeout = 2 * time.Minute

var sinkRetry = resilience.RetryConfig{MaxAttempts: 4, InitialDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}

// backendFlags selects the external stores a command talks to, on top of
// what the config enables.
type backendFlags struct {
	redis    bool
	postgres bool
	publish  bool
	kafkaIn  bool
}

type backends struct {
	redis    *redis.Client
	postgres *postgres.Client
	producer *kafka.Producer
	checker  *health.Checker
	closers  []func() error
}

// openBackends connects to every selected store and runs a preflight check
// so a run fails before hashing rather than at the sink.
func openBackends(ctx context.Context, cfg *config.Config, f backendFlags) (*backends, error) {
	b := &backends{checker: health.NewChecker()}
	if f.redis || cfg.Cache.RedisEnabled {
		rc, err := redis.NewClient(cfg.Redis)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.redis = rc
		b.closers = append(b.closers, rc.Close)
		b.checker.Register("redis", health.Ping(rc.Ping))
	}
	if f.postgres || cfg.Postgres.Enabled {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.postgres = pg
		b.closers = append(b.closers, pg.Close)
		b.checker.Register("postgres", health.Ping(pg.Ping))
	}
	if f.publish || f.kafkaIn {
		brokers := cfg.Kafka.Brokers
		b.checker.Register("kafka", health.Ping(func(ctx context.Context) error {
			return kafka.Ping(ctx, brokers)
		}))
	}
	if f.publish {
		b.producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Clusters)
		b.closers = append(b.closers, b.producer.Close)
	}

	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := b.checker.Run(pctx).Err(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// sinks builds the fan-out for a finished clustering: the output file (or
// stdout) first, then whichever stores are connected.
func (b *backends) sinks(ctx context.Context, output string, m *metrics.Metrics) (*sink.Fanout, error) {
	var out []sink.Sink
	if output == "" || output == "-" {
		out = append(out, sink.StdoutSink{})
	} else {
		out = append(out, &sink.FileSink{Path: output})
	}
	if b.postgres != nil {
		pg := sink.NewPostgresSink(b.postgres, sinkRetry)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		out = append(out, pg)
	}
	if b.producer != nil {
		out = append(out, sink.NewKafkaSink(b.producer, sink.DefaultBatchSize, sinkRetry))
	}
	return sink.NewFanout(sinkTimeout, m, out...), nil
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
	b.closers = nil
}

// startMetrics serves /metrics when enabled and returns a stop function.
func startMetrics(cfg *config.Config, m *metrics.Metrics) func() {
	if !cfg.Metrics.Enabled {
		return func() {}
	}
	shutdown := metrics.StartServer(m, cfg.Metrics.Port)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(ctx)
	}
}
