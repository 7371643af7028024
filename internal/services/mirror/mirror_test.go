package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(w, "image-relay.new_image", nil)

	createdAt := time.Date(2025, 10, 9, 8, 53, 20, 0, time.UTC)
	err := p.Publish(context.Background(), Event{
		ID:           42,
		Artifact:     "1760000000000_42.jpeg",
		ContentType:  "image/jpeg",
		Size:         3,
		LikeCount:    3,
		CommentCount: 2,
		CreatedAt:    createdAt,
	})
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "42", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "new_image", string(msg.Headers[0].Value))

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, uint(42), got.ID)
	assert.Equal(t, "1760000000000_42.jpeg", got.Artifact)
	assert.True(t, createdAt.Equal(got.CreatedAt))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
	assert.Equal(t, "kafka:image-relay.new_image", p.Name())
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	cause := errors.New("leader not available")
	p := NewKafkaPublisherWithWriter(&fakeWriter{err: cause}, "t", nil)

	err := p.Publish(context.Background(), Event{ID: 1})
	assert.ErrorIs(t, err, cause)
}

func TestNew(t *testing.T) {
	p, err := New(nil, "topic", nil)
	require.NoError(t, err)
	assert.Equal(t, "noop", p.Name())
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())

	p, err = New([]string{"localhost:9092"}, "topic", nil)
	require.NoError(t, err)
	assert.Equal(t, "kafka:topic", p.Name())
	_ = p.Close()

	_, err = New([]string{"localhost:9092"}, "", nil)
	assert.Error(t, err)
}
