//go:build integration

package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_Connect(t *testing.T) {
	tc := NewTestClient(t)

	assert.True(t, tc.Client.IsHealthy())
	rtt, err := tc.Client.RTT()
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))

	// Connect is idempotent once connected.
	require.NoError(t, tc.Client.Connect(context.Background()))
}

func TestIntegration_PublishSubscribe(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	received := make(chan string, 1)
	sub, err := tc.Client.Subscribe(ctx, "orders.created", "", func(_ context.Context, data []byte) ([]byte, error) {
		received <- string(data)
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "orders.created", sub.Subject())

	require.NoError(t, tc.Client.Publish(ctx, "orders.created", []byte("hello")))

	select {
	case msg := <-received:
		assert.Equal(t, "hello", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, tc.Client.Publish(ctx, "orders.created", []byte("late")))

	select {
	case msg := <-received:
		t.Fatalf("unexpected message after unsubscribe: %s", msg)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestIntegration_Request(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	_, err := tc.Client.Subscribe(ctx, "echo", "workers", func(_ context.Context, data []byte) ([]byte, error) {
		return append([]byte("echo:"), data...), nil
	})
	require.NoError(t, err)

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	reply, err := tc.Client.Request(reqCtx, "echo", []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, "echo:ping", string(reply))
}

func TestIntegration_Stream(t *testing.T) {
	tc := NewTestClient(t, WithJetStream())
	ctx := context.Background()

	_, err := tc.Client.EnsureStream(ctx, "ORDERS", []string{"orders.>"})
	require.NoError(t, err)
	_, err = tc.Client.EnsureStream(ctx, "ORDERS", []string{"orders.>"})
	require.NoError(t, err)

	require.NoError(t, tc.Client.PublishToStream(ctx, "orders.new", []byte("stream message")))

	received := make(chan string, 1)
	sub, err := tc.Client.ConsumeStream(ctx, "ORDERS", "orders-reader", "orders.>", func(_ context.Context, data []byte) ([]byte, error) {
		received <- string(data)
		return nil, nil
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	select {
	case msg := <-received:
		assert.Equal(t, "stream message", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("stream message not received")
	}
}
