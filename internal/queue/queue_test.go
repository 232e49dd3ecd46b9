package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	SlotID   string `json:"slotId"`
	Attended bool   `json:"attended"`
}

func TestMessageRoundTrip(t *testing.T) {
	msg, err := NewMessage(TypeAttendanceMarked, payload{SlotID: "math-mon", Attended: true})
	require.NoError(t, err)
	assert.Equal(t, TypeAttendanceMarked, msg.Type)

	var got payload
	require.NoError(t, msg.Decode(&got))
	assert.Equal(t, payload{SlotID: "math-mon", Attended: true}, got)

	assert.Error(t, Message{Type: "x", Body: []byte("{")}.Decode(&got))
}

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	msg, err := NewMessage(TypeAttendanceMarked, payload{SlotID: "a"})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, msg))

	select {
	case got := <-msgs:
		assert.Equal(t, msg.Type, got.Type)
		assert.JSONEq(t, string(msg.Body), string(got.Body))
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	select {
	case _, ok := <-msgs:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer channel not closed")
	}
}

func TestInMemoryPublishRespectsContext(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "x"}), context.Canceled)
}
