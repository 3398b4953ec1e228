package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishSubscribeDeliversValue(t *testing.T) {
	b := NewBroadcaster[int](4)
	defer b.Close()

	sub := b.Subscribe()
	b.Publish(42)

	v, err := sub.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestSubscribeOnlySeesValuesPublishedAfter(t *testing.T) {
	b := NewBroadcaster[int](4)
	defer b.Close()

	b.Publish(1)
	b.Publish(2)

	sub := b.Subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := sub.Recv(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMultipleSubscribersEachReceive(t *testing.T) {
	b := NewBroadcaster[string](4)
	defer b.Close()

	a := b.Subscribe()
	c := b.Subscribe()
	b.Publish("hello")

	va, err := a.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hello", va)

	vc, err := c.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hello", vc)
}

func TestSlowSubscriberLagsInsteadOfBlockingPublisher(t *testing.T) {
	b := NewBroadcaster[int](1)
	defer b.Close()

	sub := b.Subscribe()
	b.Publish(1)
	b.Publish(2)

	_, err := sub.Recv(context.Background())
	require.ErrorIs(t, err, ErrLagged)

	v, err := sub.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroadcaster[int](4)
	defer b.Close()

	sub := b.Subscribe()
	sub.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := sub.Recv(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestRecvAfterCloseReturnsErrClosed(t *testing.T) {
	b := NewBroadcaster[int](4)
	sub := b.Subscribe()
	b.Close()

	_, err := sub.Recv(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}
