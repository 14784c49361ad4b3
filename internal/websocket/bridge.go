package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/chattersphere/chattersphere/internal/pubsub"
)

// Bridge manages all chat websocket connections and routes traffic between
// connected clients and the pub/sub bus. Outbound snapshots and presence
// rosters fan out per room; inbound frames become bus events.
type Bridge struct {
	publisher pubsub.Publisher

	// rooms maps a room key to the set of clients currently joined to it.
	// A user can hold several connections at once (multiple tabs).
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex
}

// NewBridge initializes a new Bridge, ready to handle connections.
func NewBridge(pub pubsub.Publisher) *Bridge {
	return &Bridge{
		publisher:  pub,
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run processes registration traffic until the context is canceled. It must
// be started before the first connection is accepted.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-b.register:
			b.mu.Lock()
			if b.rooms[client.Room] == nil {
				b.rooms[client.Room] = make(map[*Client]bool)
			}
			b.rooms[client.Room][client] = true
			b.mu.Unlock()

			// The handshake is complete and the read/write pumps are up:
			// the connection is confirmed live, so announce it.
			if err := pubsub.Publish(ctx, b.publisher, TopicClientReady, ClientReady{
				UserID:      client.UserID,
				ClientID:    client.ID,
				DisplayName: client.DisplayName,
				Room:        client.Room,
			}); err != nil {
				slog.Error("Failed to publish client ready", "error", err, "client_id", client.ID)
			}

		case client := <-b.unregister:
			b.mu.Lock()
			if clients, ok := b.rooms[client.Room]; ok {
				if _, registered := clients[client]; registered {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(b.rooms, client.Room)
					}
				}
			}
			b.mu.Unlock()

			if err := pubsub.Publish(ctx, b.publisher, TopicClientDisconnected, ClientDisconnected{
				UserID:   client.UserID,
				ClientID: client.ID,
				Room:     client.Room,
				Reason:   client.closeReason,
			}); err != nil {
				slog.Error("Failed to publish client disconnected", "error", err, "client_id", client.ID)
			}
		}
	}
}

// BroadcastRoom sends a frame to every client joined to the room. Slow
// clients are dropped rather than allowed to stall the fan-out.
func (b *Bridge) BroadcastRoom(room string, frame *Frame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		slog.Error("Failed to marshal outbound frame", "error", err, "type", frame.Type)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.rooms[room] {
		select {
		case client.send <- payload:
		default:
			slog.Warn("Dropping slow websocket client", "client_id", client.ID, "room", room)
			go client.Close("send buffer full")
		}
	}
}

// SendToUser sends a frame to every connection a user holds in the room.
func (b *Bridge) SendToUser(room, userID string, frame *Frame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		slog.Error("Failed to marshal outbound frame", "error", err, "type", frame.Type)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.rooms[room] {
		if client.UserID != userID {
			continue
		}
		select {
		case client.send <- payload:
		default:
			go client.Close("send buffer full")
		}
	}
}

// RoomViewers returns the distinct user ids currently connected to the room.
func (b *Bridge) RoomViewers(room string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	seen := make(map[string]bool)
	var viewers []string
	for client := range b.rooms[room] {
		if !seen[client.UserID] {
			seen[client.UserID] = true
			viewers = append(viewers, client.UserID)
		}
	}
	return viewers
}

// ActiveRooms returns the rooms that currently have at least one connection.
func (b *Bridge) ActiveRooms() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rooms := make([]string, 0, len(b.rooms))
	for room := range b.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}
