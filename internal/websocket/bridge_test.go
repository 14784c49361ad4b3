package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chattersphere/chattersphere/internal/pubsub"
)

type capturePublisher struct {
	mu       sync.Mutex
	messages []pubsub.Message
}

func (p *capturePublisher) Publish(ctx context.Context, msg pubsub.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) onTopic(topic string) []pubsub.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []pubsub.Message
	for _, m := range p.messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func newTestClient(id, userID, name, room string) *Client {
	return &Client{
		ID:          id,
		UserID:      userID,
		DisplayName: name,
		Room:        room,
		send:        make(chan []byte, sendBufferSize),
	}
}

func startBridge(t *testing.T) (*Bridge, *capturePublisher) {
	t.Helper()
	pub := &capturePublisher{}
	bridge := NewBridge(pub)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go bridge.Run(ctx)

	return bridge, pub
}

func TestRegisterPublishesClientReady(t *testing.T) {
	bridge, pub := startBridge(t)

	client := newTestClient("c1", "user:alice", "Alice", "General")
	bridge.register <- client

	require.Eventually(t, func() bool {
		return len(pub.onTopic(TopicClientReady.Name())) == 1
	}, time.Second, 10*time.Millisecond)

	var ready ClientReady
	require.NoError(t, json.Unmarshal(pub.onTopic(TopicClientReady.Name())[0].Payload, &ready))
	assert.Equal(t, "c1", ready.ClientID)
	assert.Equal(t, "user:alice", ready.UserID)
	assert.Equal(t, "Alice", ready.DisplayName)
	assert.Equal(t, "General", ready.Room)
}

func TestUnregisterPublishesDisconnectAndClosesSend(t *testing.T) {
	bridge, pub := startBridge(t)

	client := newTestClient("c1", "user:alice", "Alice", "General")
	client.closeReason = "client closed"
	bridge.register <- client
	bridge.unregister <- client

	require.Eventually(t, func() bool {
		return len(pub.onTopic(TopicClientDisconnected.Name())) == 1
	}, time.Second, 10*time.Millisecond)

	var gone ClientDisconnected
	require.NoError(t, json.Unmarshal(pub.onTopic(TopicClientDisconnected.Name())[0].Payload, &gone))
	assert.Equal(t, "c1", gone.ClientID)
	assert.Equal(t, "client closed", gone.Reason)

	_, open := <-client.send
	assert.False(t, open, "send channel should be closed after unregister")
	assert.Empty(t, bridge.ActiveRooms())
}

func TestBroadcastRoomReachesOnlyThatRoom(t *testing.T) {
	bridge, _ := startBridge(t)

	general := newTestClient("c1", "user:alice", "Alice", "General")
	gaming := newTestClient("c2", "user:bob", "Bob", "Gaming")
	bridge.register <- general
	bridge.register <- gaming

	require.Eventually(t, func() bool {
		return len(bridge.RoomViewers("General")) == 1 && len(bridge.RoomViewers("Gaming")) == 1
	}, time.Second, 10*time.Millisecond)

	frame, err := NewFrame(FrameError, ErrorPayload{Message: "hello"})
	require.NoError(t, err)
	bridge.BroadcastRoom("General", frame)

	select {
	case raw := <-general.send:
		var got Frame
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, FrameError, got.Type)
	case <-time.After(time.Second):
		t.Fatal("expected frame in General")
	}

	select {
	case <-gaming.send:
		t.Fatal("Gaming client should not receive General broadcasts")
	default:
	}
}

func TestSendToUserTargetsAllConnectionsOfOneUser(t *testing.T) {
	bridge, _ := startBridge(t)

	tab1 := newTestClient("c1", "user:alice", "Alice", "General")
	tab2 := newTestClient("c2", "user:alice", "Alice", "General")
	other := newTestClient("c3", "user:bob", "Bob", "General")
	bridge.register <- tab1
	bridge.register <- tab2
	bridge.register <- other

	require.Eventually(t, func() bool {
		return len(bridge.RoomViewers("General")) == 2
	}, time.Second, 10*time.Millisecond)

	frame, err := NewFrame(FrameError, ErrorPayload{Message: "just for alice"})
	require.NoError(t, err)
	bridge.SendToUser("General", "user:alice", frame)

	for _, tab := range []*Client{tab1, tab2} {
		select {
		case <-tab.send:
		case <-time.After(time.Second):
			t.Fatal("expected frame on every alice connection")
		}
	}

	select {
	case <-other.send:
		t.Fatal("bob should not receive alice's frame")
	default:
	}
}

func TestRoomViewersDeduplicatesUsers(t *testing.T) {
	bridge, _ := startBridge(t)

	bridge.register <- newTestClient("c1", "user:alice", "Alice", "General")
	bridge.register <- newTestClient("c2", "user:alice", "Alice", "General")
	bridge.register <- newTestClient("c3", "user:bob", "Bob", "General")

	require.Eventually(t, func() bool {
		return len(bridge.RoomViewers("General")) == 2
	}, time.Second, 10*time.Millisecond)

	viewers := bridge.RoomViewers("General")
	assert.ElementsMatch(t, []string{"user:alice", "user:bob"}, viewers)
	assert.Empty(t, bridge.RoomViewers("Gaming"))
}
