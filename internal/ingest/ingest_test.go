package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queueReader struct {
	mu        sync.Mutex
	queue     []kafkago.Message
	committed int
	closed    bool
}

func (r *queueReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (r *queueReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	r.committed += len(msgs)
	r.mu.Unlock()
	return nil
}

func (r *queueReader) Close() error {
	r.closed = true
	return nil
}

func events(t *testing.T, raw ...any) []kafkago.Message {
	t.Helper()
	out := make([]kafkago.Message, 0, len(raw))
	for i, ev := range raw {
		var v []byte
		if s, ok := ev.(string); ok {
			v = []byte(s)
		} else {
			var err error
			v, err = json.Marshal(ev)
			require.NoError(t, err)
		}
		out = append(out, kafkago.Message{Offset: int64(i), Value: v})
	}
	return out
}

func collect(t *testing.T, s *Source) []corpus.Document {
	t.Helper()
	var docs []corpus.Document
	_, err := corpus.Each(context.Background(), s, func(d corpus.Document) error {
		docs = append(docs, d)
		return nil
	})
	require.NoError(t, err)
	return docs
}

func TestSourceDrainsTopic(t *testing.T) {
	r := &queueReader{queue: events(t,
		DocumentEvent{ID: 1, Tokens: []string{"a", "b", "a"}},
		`{not json`,
		DocumentEvent{ID: 2, Text: "x y"},
	)}
	s := NewSource(corpus.DefaultTokenizer(), 0)
	s.Run(context.Background(), kafka.NewConsumerFromReader(r, s.Handler(), kafka.WithIdleTimeout(20*time.Millisecond)))

	docs := collect(t, s)
	assert.Equal(t, []corpus.Document{
		{ID: 1, Tokens: []string{"a", "b"}},
		{ID: 2, Tokens: []string{"x", "y"}},
	}, docs)
	assert.Equal(t, 2, r.committed)
	assert.True(t, r.closed)
}

func TestSourceStopsAtMax(t *testing.T) {
	r := &queueReader{queue: events(t,
		DocumentEvent{ID: 1, Text: "a"},
		DocumentEvent{ID: 2, Text: "b"},
		DocumentEvent{ID: 3, Text: "c"},
	)}
	s := NewSource(corpus.DefaultTokenizer(), 2)
	s.Run(context.Background(), kafka.NewConsumerFromReader(r, s.Handler()))

	docs := collect(t, s)
	require.Len(t, docs, 2)
	assert.Equal(t, uint64(2), docs[1].ID)
	assert.Len(t, r.queue, 1)
}

func TestSourceCloseStopsConsumer(t *testing.T) {
	s := NewSource(corpus.DefaultTokenizer(), 0)
	s.Run(context.Background(), kafka.NewConsumerFromReader(&queueReader{}, s.Handler()))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestNextHonoursContext(t *testing.T) {
	s := NewSource(corpus.DefaultTokenizer(), 0)
	s.Run(context.Background(), kafka.NewConsumerFromReader(&queueReader{}, s.Handler()))
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
