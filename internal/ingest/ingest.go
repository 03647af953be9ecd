// Package ingest turns document events from a Kafka topic into a corpus
// source, and defines the cluster events a run publishes back.
package ingest

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/minhash"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/kafka"
)

// DocumentEvent is the JSON payload on the documents topic. Tokens win over
// Text when both are present.
type DocumentEvent struct {
	ID     minhash.DocID `json:"id"`
	Text   string        `json:"text,omitempty"`
	Tokens []string      `json:"tokens,omitempty"`
}

func (e DocumentEvent) ToDocument(t corpus.Tokenizer) corpus.Document {
	return corpus.Record{ID: e.ID, Text: e.Text, Tokens: e.Tokens}.ToDocument(t)
}

// ClusterEvent is published once per cluster at the end of a run.
type ClusterEvent struct {
	RunID     string          `json:"run_id"`
	ClusterID int             `json:"cluster_id"`
	Size      int             `json:"size"`
	DocIDs    []minhash.DocID `json:"doc_ids"`
}

// Consumer is what Source drives; *kafka.Consumer implements it once built
// with the handler returned by Source.Handler.
type Consumer interface {
	Start(ctx context.Context) error
	Close() error
}

// Source adapts a Kafka consumer to corpus.Source. The consumer runs in its
// own goroutine and hands decoded documents over an unbuffered channel, so a
// message is committed only after Next has taken it.
type Source struct {
	tokenizer corpus.Tokenizer
	max       int
	docs      chan corpus.Document
	done      chan struct{}

	once     sync.Once
	cancel   context.CancelFunc
	consumer Consumer
	err      error
	received int

	logger *slog.Logger
}

// NewSource prepares a source. max > 0 stops consumption after that many
// documents. Attach a consumer with Run before calling Next.
func NewSource(t corpus.Tokenizer, max int) *Source {
	return &Source{
		tokenizer: t,
		max:       max,
		docs:      make(chan corpus.Document),
		done:      make(chan struct{}),
		logger:    slog.Default().With("component", "ingest"),
	}
}

// Handler decodes one DocumentEvent per message. Undecodable messages are
// rejected and left uncommitted by the consumer.
func (s *Source) Handler() kafka.MessageHandler {
	return func(ctx context.Context, _ []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[DocumentEvent](value)
		if err != nil {
			return err
		}
		select {
		case s.docs <- ev.ToDocument(s.tokenizer):
		case <-ctx.Done():
			return ctx.Err()
		}
		s.received++
		if s.max > 0 && s.received >= s.max {
			return kafka.ErrStop
		}
		return nil
	}
}

// Run starts c in the background. c must have been built around Handler.
func (s *Source) Run(ctx context.Context, c Consumer) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.consumer = c
	go func() {
		defer close(s.done)
		s.err = c.Start(ctx)
		s.logger.Info("document stream ended", "documents", s.received, "error", s.err)
	}()
}

// NewKafkaSource consumes the given topic until it goes idle or max
// documents have been read.
func NewKafkaSource(ctx context.Context, newConsumer func(kafka.MessageHandler) *kafka.Consumer, t corpus.Tokenizer, max int) *Source {
	s := NewSource(t, max)
	s.Run(ctx, newConsumer(s.Handler()))
	return s
}

func (s *Source) Next(ctx context.Context) (corpus.Document, error) {
	select {
	case d := <-s.docs:
		return d, nil
	case <-s.done:
		if s.err != nil {
			return corpus.Document{}, s.err
		}
		return corpus.Document{}, io.EOF
	case <-ctx.Done():
		return corpus.Document{}, ctx.Err()
	}
}

// Close stops the consumer and waits for it to exit.
func (s *Source) Close() error {
	var err error
	s.once.Do(func() {
		if s.cancel == nil {
			return
		}
		s.cancel()
		<-s.done
		err = s.consumer.Close()
	})
	return err
}
