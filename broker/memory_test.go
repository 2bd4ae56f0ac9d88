package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryBrokerDeliversToSubscribers(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "pcf-results")
	require.NoError(t, err)
	require.Equal(t, 1, b.Subscribers("pcf-results"))

	require.NoError(t, b.Publish(ctx, Message{Topic: "pcf-results", Key: []byte("k"), Value: []byte(`{"a":1}`), Headers: map[string]string{"h": "v"}}))
	require.NoError(t, b.Publish(ctx, Message{Topic: "shipments", Value: []byte("ignored")}))

	msg, err := sub.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "k", string(msg.Key))
	require.Equal(t, `{"a":1}`, string(msg.Value))
	require.Equal(t, "v", msg.Headers["h"])
}

func TestMemoryBrokerDropsMessagesWithoutSubscribers(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, Message{Topic: "t", Value: []byte("early")}))
	sub, err := b.Subscribe(ctx, "t")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = sub.Next(waitCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemorySubscriptionClose(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "t")
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	require.Equal(t, 0, b.Subscribers("t"))

	_, err = sub.Next(ctx)
	require.ErrorIs(t, err, ErrClosed)

	require.NoError(t, b.Close())
	_, err = b.Subscribe(ctx, "t")
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, b.Publish(ctx, Message{Topic: "t"}), ErrClosed)
}

func TestMemoryBrokerCopiesPayload(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "t")
	require.NoError(t, err)
	value := []byte("original")
	require.NoError(t, b.Publish(ctx, Message{Topic: "t", Value: value}))
	value[0] = 'X'

	msg, err := sub.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "original", string(msg.Value))
}
