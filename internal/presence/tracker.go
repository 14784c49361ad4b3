package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chattersphere/chattersphere/internal/pubsub"
	"github.com/chattersphere/chattersphere/internal/websocket"
)

// ErrTrackerClosed is returned when a join arrives after Shutdown. The caller
// must not publish an Online record in that case.
var ErrTrackerClosed = errors.New("presence tracker is closed")

// RosterUpdate carries the full online roster for a room after any change.
type RosterUpdate struct {
	Room  string   `json:"room"`
	Users []Record `json:"users"`
}

// TopicRosterUpdated fires with the fresh roster whenever a room's presence
// changes.
var TopicRosterUpdated = pubsub.NewEvent[RosterUpdate]("presence.roster.updated")

type connection struct {
	room   string
	userID string
}

// Tracker maintains per-room presence driven by websocket lifecycle events.
//
// Joining is a two-phase commit. The ClientReady event confirms the transport
// is live; the tracker then registers a compensating offline action keyed by
// the client id, and only once that registration succeeds does it write the
// Online record. An abrupt disconnect fires the compensation through the
// ClientDisconnected event. If the compensation is never delivered the record
// goes stale; staleness is logged when observed, never reaped by a timer.
type Tracker struct {
	store     Store
	publisher pubsub.Publisher
	logger    *slog.Logger

	mu          sync.Mutex
	connections map[string]connection // clientID -> connection
	counts      map[string]int        // room|userID -> live connection count
	closed      bool
}

// NewTracker creates a tracker and subscribes it to the websocket lifecycle
// topics.
func NewTracker(ctx context.Context, store Store, publisher pubsub.Publisher, subscriber pubsub.Subscriber) (*Tracker, error) {
	t := &Tracker{
		store:       store,
		publisher:   publisher,
		logger:      slog.Default().With("service", "presence"),
		connections: make(map[string]connection),
		counts:      make(map[string]int),
	}

	if err := pubsub.SubscribeTyped(ctx, subscriber, websocket.TopicClientReady, t.handleClientReady); err != nil {
		return nil, fmt.Errorf("subscribing to client ready events: %w", err)
	}
	if err := pubsub.SubscribeTyped(ctx, subscriber, websocket.TopicClientDisconnected, t.handleClientDisconnected); err != nil {
		return nil, fmt.Errorf("subscribing to client disconnect events: %w", err)
	}

	return t, nil
}

func countKey(room, userID string) string {
	return room + "|" + userID
}

func (t *Tracker) handleClientReady(ctx context.Context, event websocket.ClientReady) error {
	// Phase one is the event itself: the bridge only publishes ClientReady
	// once the handshake has completed on a live connection.

	// Phase two: register the compensating offline action before anything is
	// made visible. A failed registration means no Online record.
	first, err := t.registerCompensation(event.ClientID, event.Room, event.UserID)
	if err != nil {
		t.logger.Error("refusing to publish presence without a registered offline action",
			"room", event.Room,
			"userId", event.UserID,
			"clientId", event.ClientID,
			"error", err)
		return nil
	}

	if !first {
		// Another connection for the same user already holds the Online
		// record in this room.
		t.logger.Debug("additional connection for online user",
			"room", event.Room,
			"userId", event.UserID,
			"clientId", event.ClientID)
		return nil
	}

	// Phase three: the record becomes visible.
	if err := t.store.SetOnline(ctx, event.Room, event.UserID, event.DisplayName); err != nil {
		t.unregisterCompensation(event.ClientID)
		t.logger.Error("failed to write online record",
			"room", event.Room,
			"userId", event.UserID,
			"error", err)
		return nil
	}

	t.logger.Info("user online",
		"room", event.Room,
		"userId", event.UserID,
		"clientId", event.ClientID)

	t.publishRoster(ctx, event.Room)
	return nil
}

func (t *Tracker) handleClientDisconnected(ctx context.Context, event websocket.ClientDisconnected) error {
	last := t.fireCompensation(event.ClientID)
	if !last {
		t.logger.Debug("connection closed, user still online elsewhere",
			"room", event.Room,
			"userId", event.UserID,
			"clientId", event.ClientID,
			"reason", event.Reason)
		return nil
	}

	if err := t.store.SetOffline(ctx, event.Room, event.UserID); err != nil {
		t.logger.Error("failed to write offline record, presence is stale",
			"room", event.Room,
			"userId", event.UserID,
			"error", err)
		return nil
	}

	t.logger.Info("user offline",
		"room", event.Room,
		"userId", event.UserID,
		"reason", event.Reason)

	t.publishRoster(ctx, event.Room)
	return nil
}

// Leave flips a user offline immediately, dropping any registered
// compensations for their connections in the room. Used for graceful exits
// where waiting on the transport close would lag the user's intent.
func (t *Tracker) Leave(ctx context.Context, room, userID string) error {
	t.mu.Lock()
	for clientID, conn := range t.connections {
		if conn.room == room && conn.userID == userID {
			delete(t.connections, clientID)
		}
	}
	delete(t.counts, countKey(room, userID))
	t.mu.Unlock()

	if err := t.store.SetOffline(ctx, room, userID); err != nil {
		return fmt.Errorf("marking user offline: %w", err)
	}

	t.logger.Info("user left", "room", room, "userId", userID)
	t.publishRoster(ctx, room)
	return nil
}

// Roster returns the current online records for a room.
func (t *Tracker) Roster(ctx context.Context, room string) ([]Record, error) {
	return t.store.Roster(ctx, room)
}

// registerCompensation records the offline action for a connection. It
// reports whether this is the user's first live connection in the room.
func (t *Tracker) registerCompensation(clientID, room, userID string) (first bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false, ErrTrackerClosed
	}

	if _, exists := t.connections[clientID]; exists {
		return false, fmt.Errorf("duplicate client id %q", clientID)
	}

	t.connections[clientID] = connection{room: room, userID: userID}
	key := countKey(room, userID)
	t.counts[key]++
	return t.counts[key] == 1, nil
}

func (t *Tracker) unregisterCompensation(clientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, exists := t.connections[clientID]
	if !exists {
		return
	}
	delete(t.connections, clientID)

	key := countKey(conn.room, conn.userID)
	if t.counts[key] > 0 {
		t.counts[key]--
	}
	if t.counts[key] == 0 {
		delete(t.counts, key)
	}
}

// fireCompensation consumes the registered offline action for a connection.
// It reports whether this was the user's last connection in the room. A
// disconnect with no registered compensation (already consumed by Leave, or
// the registration was refused) is a no-op.
func (t *Tracker) fireCompensation(clientID string) (last bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, exists := t.connections[clientID]
	if !exists {
		return false
	}
	delete(t.connections, clientID)

	key := countKey(conn.room, conn.userID)
	t.counts[key]--
	if t.counts[key] <= 0 {
		delete(t.counts, key)
		return true
	}
	return false
}

func (t *Tracker) publishRoster(ctx context.Context, room string) {
	records, err := t.store.Roster(ctx, room)
	if err != nil {
		t.logger.Error("failed to load roster for publish", "room", room, "error", err)
		return
	}

	update := RosterUpdate{Room: room, Users: records}
	if err := pubsub.Publish(ctx, t.publisher, TopicRosterUpdated, update); err != nil {
		t.logger.Error("failed to publish roster update", "room", room, "error", err)
	}
}

// Shutdown stops accepting new joins. In-flight disconnect handling still
// runs so registered compensations can fire.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}
