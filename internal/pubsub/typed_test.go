package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Room string `json:"room"`
	Text string `json:"text"`
}

var testTopic = NewEvent[testPayload]("test.payload")

func TestTypedRoundTripOverWatermill(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var received []testPayload
	err := SubscribeTyped(ctx, bridge, testTopic, func(ctx context.Context, p testPayload) error {
		mu.Lock()
		received = append(received, p)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, Publish(ctx, bridge, testTopic, testPayload{Room: "General", Text: "hello"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "General", received[0].Room)
	assert.Equal(t, "hello", received[0].Text)
}

func TestBridgePreservesUserIDAndMetadata(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got Message
	var seen bool
	err := bridge.Subscribe(ctx, "test.metadata", func(ctx context.Context, msg Message) error {
		mu.Lock()
		got = msg
		seen = true
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	msg := Message{
		Topic:    "test.metadata",
		UserID:   "user:alice",
		Payload:  []byte(`{"ok":true}`),
		Metadata: map[string]string{"room": "Gaming"},
	}
	require.NoError(t, bridge.Publish(ctx, msg))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "test.metadata", got.Topic)
	assert.Equal(t, "user:alice", got.UserID)
	assert.JSONEq(t, `{"ok":true}`, string(got.Payload))
	assert.Equal(t, "Gaming", got.Metadata["room"])
}

func TestEventName(t *testing.T) {
	assert.Equal(t, "test.payload", testTopic.Name())
}
