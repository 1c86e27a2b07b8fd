package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan Message[T]) Message[T] {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message[T]{}
}

func TestPublishSubscribe(t *testing.T) {
	ps := NewPubSub[string]()
	defer ps.Close()

	ctx := context.Background()
	first, unsubFirst, err := ps.Subscribe(ctx, "ovdapp.incoming")
	require.NoError(t, err)
	defer unsubFirst()
	second, unsubSecond, err := ps.Subscribe(ctx, "ovdapp.incoming")
	require.NoError(t, err)
	defer unsubSecond()

	require.NoError(t, ps.Publish(ctx, "ovdapp.incoming", "0a0b"))

	a := receive(t, first)
	b := receive(t, second)
	assert.Equal(t, "0a0b", a.Payload)
	assert.Equal(t, "ovdapp.incoming", a.Topic)
	assert.Equal(t, a.ID, b.ID)
	assert.NotEmpty(t, a.ID)

	stats := ps.Stats("ovdapp.incoming")
	assert.Equal(t, int64(1), stats.MessageCount)
	assert.Equal(t, 2, stats.SubscriberCount)
}

func TestTopicsAreIsolated(t *testing.T) {
	ps := NewPubSub[int]()
	defer ps.Close()

	ctx := context.Background()
	ch, unsub, err := ps.Subscribe(ctx, "a")
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, ps.Publish(ctx, "b", 1))
	require.NoError(t, ps.Publish(ctx, "a", 2))
	assert.Equal(t, 2, receive(t, ch).Payload)
}

func TestFullSubscriberDropsMessages(t *testing.T) {
	ps := NewPubSub[int](WithBufferSize[int](1))
	defer ps.Close()

	ctx := context.Background()
	ch, unsub, err := ps.Subscribe(ctx, "t")
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, ps.Publish(ctx, "t", 1))
	require.NoError(t, ps.Publish(ctx, "t", 2))

	assert.Equal(t, 1, receive(t, ch).Payload)
	assert.Equal(t, int64(1), ps.Stats("t").DroppedCount)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	ps := NewPubSub[int]()
	defer ps.Close()

	ch, unsub, err := ps.Subscribe(context.Background(), "t")
	require.NoError(t, err)

	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, ps.Stats("t").SubscriberCount)
}

func TestContextCancelEndsSubscription(t *testing.T) {
	ps := NewPubSub[int]()
	defer ps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _, err := ps.Subscribe(ctx, "t")
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestClose(t *testing.T) {
	ps := NewPubSub[int]()
	ch, unsub, err := ps.Subscribe(context.Background(), "t")
	require.NoError(t, err)

	require.NoError(t, ps.Close())
	require.NoError(t, ps.Close())
	unsub()

	_, ok := <-ch
	assert.False(t, ok)

	assert.ErrorIs(t, ps.Publish(context.Background(), "t", 1), ErrPublisherClosed)
	_, _, err = ps.Subscribe(context.Background(), "t")
	assert.ErrorIs(t, err, ErrSubscriberClosed)
}

func TestPublishCanceledContext(t *testing.T) {
	ps := NewPubSub[int]()
	defer ps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ps.Publish(ctx, "t", 1), context.Canceled)
}
