package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves queued messages, then blocks until the fetch context is
// done.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	fetchErr  error
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.fetchErr != nil {
		err := r.fetchErr
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func messages(values ...string) []kafka.Message {
	out := make([]kafka.Message, len(values))
	for i, v := range values {
		out[i] = kafka.Message{Offset: int64(i), Value: []byte(v)}
	}
	return out
}

func TestConsumerStopsWhenIdle(t *testing.T) {
	r := &fakeReader{queue: messages("a", "bad", "c")}
	var seen []string
	c := NewConsumerFromReader(r, func(_ context.Context, _ []byte, value []byte) error {
		seen = append(seen, string(value))
		if string(value) == "bad" {
			return errors.New("boom")
		}
		return nil
	}, WithIdleTimeout(20*time.Millisecond))

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, []string{"a", "bad", "c"}, seen)
	assert.Equal(t, []int64{0, 2}, r.committed, "failed messages stay uncommitted")
}

func TestConsumerHandlerStop(t *testing.T) {
	r := &fakeReader{queue: messages("a", "b", "c")}
	n := 0
	c := NewConsumerFromReader(r, func(context.Context, []byte, []byte) error {
		n++
		if n == 2 {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{0, 1}, r.committed)
}

func TestConsumerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewConsumerFromReader(&fakeReader{}, func(context.Context, []byte, []byte) error { return nil })
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestConsumerFetchFailure(t *testing.T) {
	r := &fakeReader{fetchErr: errors.New("broker gone")}
	c := NewConsumerFromReader(r, func(context.Context, []byte, []byte) error { return nil })
	err := c.Start(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		ID uint64 `json:"id"`
	}
	got, err := DecodeJSON[payload]([]byte(`{"id":7}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.ID)

	_, err = DecodeJSON[payload]([]byte(`{`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducerPublishBatch(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerFromWriter(w)
	require.NoError(t, p.PublishBatch(context.Background(), []Event{
		{Key: "k1", Value: map[string]int{"n": 1}},
		{Key: "k2", Value: []uint64{3, 4}},
	}))
	require.NoError(t, p.Publish(context.Background(), Event{Key: "k3", Value: "x"}))
	require.NoError(t, p.PublishBatch(context.Background(), nil))

	require.Len(t, w.msgs, 3)
	assert.Equal(t, "k1", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"n":1}`, string(w.msgs[0].Value))
	assert.JSONEq(t, `[3,4]`, string(w.msgs[1].Value))
	assert.JSONEq(t, `"x"`, string(w.msgs[2].Value))

	w.err = errors.New("no leader")
	assert.Error(t, p.Publish(context.Background(), Event{Key: "k", Value: 1}))
}
