// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. The producer serialises events as JSON, while the
// consumer decodes them via a pluggable MessageHandler callback and can stop
// on its own once a topic has been drained.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// ErrStop may be returned by a MessageHandler to end consumption after the
// current message has been committed.
var ErrStop = errors.New("stop consuming")

// MessageHandler is a callback invoked for each Kafka message.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler.
type Consumer struct {
	reader      Reader
	logger      *slog.Logger
	handler     MessageHandler
	idleTimeout time.Duration
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithIdleTimeout makes Start return nil once no message has arrived for d.
// Zero waits forever.
func WithIdleTimeout(d time.Duration) ConsumerOption {
	return func(c *Consumer) { c.idleTimeout = d }
}

// NewConsumer creates a Consumer for the given topic and handler. A fresh
// consumer group starts from the earliest retained offset.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	})
	return NewConsumerFromReader(r, handler, append(opts, withTopic(topic))...)
}

// NewConsumerFromReader wraps an existing reader.
func NewConsumerFromReader(r Reader, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer"),
		handler: handler,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func withTopic(topic string) ConsumerOption {
	return func(c *Consumer) { c.logger = c.logger.With("topic", topic) }
}

// Start enters the consume loop, fetching and processing messages until ctx
// is cancelled, the idle timeout elapses or the handler returns ErrStop.
// Messages whose handler fails are logged and left uncommitted.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started", "idle_timeout", c.idleTimeout)
	for {
		if ctx.Err() != nil {
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return nil
		}

		msg, err := c.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("consumer idle, stopping", "idle_timeout", c.idleTimeout)
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			return fmt.Errorf("fetching kafka message: %w: %w", apperrors.ErrUnavailable, err)
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)

		herr := c.handler(ctx, msg.Key, msg.Value)
		if herr != nil && !errors.Is(herr, ErrStop) {
			c.logger.Error("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", herr,
			)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
		if herr != nil {
			c.logger.Info("consumer stopped by handler", "offset", msg.Offset)
			return nil
		}
	}
}

func (c *Consumer) fetch(ctx context.Context) (kafka.Message, error) {
	if c.idleTimeout <= 0 {
		return c.reader.FetchMessage(ctx)
	}
	fetchCtx, cancel := context.WithTimeout(ctx, c.idleTimeout)
	defer cancel()
	return c.reader.FetchMessage(fetchCtx)
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, apperrors.Newf(apperrors.ErrInvalidInput, "decoding kafka message: %v", err)
	}
	return result, nil
}
