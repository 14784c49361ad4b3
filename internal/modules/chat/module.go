// Package chatmodule wires the message store, delivery marker, presence
// tracker, and bot dispatcher into the websocket transport. It owns the
// per-room live subscriptions and the fan-out of snapshots to clients.
package chatmodule

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/chattersphere/chattersphere/internal/bot"
	"github.com/chattersphere/chattersphere/internal/chat"
	"github.com/chattersphere/chattersphere/internal/metrics"
	"github.com/chattersphere/chattersphere/internal/presence"
	"github.com/chattersphere/chattersphere/internal/pubsub"
	"github.com/chattersphere/chattersphere/internal/websocket"
	"github.com/labstack/echo/v4"
)

// IdentityFunc resolves the authenticated user for a request. Identity is
// passed in explicitly; the module never reads ambient auth state.
type IdentityFunc func(c echo.Context) (userID, displayName string, err error)

// Module composes the chat feature: live room snapshots out, client commands
// in, with the bot and the delivery marker riding the same event stream.
type Module struct {
	store      chat.MessageStore
	marker     *chat.Marker
	dispatcher *bot.Dispatcher
	tracker    *presence.Tracker
	bridge     *websocket.Bridge
	wsHandler  *websocket.Handler
	subscriber pubsub.Subscriber
	identity   IdentityFunc
	logger     *slog.Logger

	mu        sync.Mutex
	roomSubs  map[string]*chat.SnapshotSubscription
	snapshots map[string][]chat.Message
}

// New constructs the chat module with explicit dependencies.
func New(
	store chat.MessageStore,
	marker *chat.Marker,
	dispatcher *bot.Dispatcher,
	tracker *presence.Tracker,
	bridge *websocket.Bridge,
	wsHandler *websocket.Handler,
	subscriber pubsub.Subscriber,
	identity IdentityFunc,
) *Module {
	return &Module{
		store:      store,
		marker:     marker,
		dispatcher: dispatcher,
		tracker:    tracker,
		bridge:     bridge,
		wsHandler:  wsHandler,
		subscriber: subscriber,
		identity:   identity,
		logger:     slog.Default().With("module", "chat"),
		roomSubs:   make(map[string]*chat.SnapshotSubscription),
		snapshots:  make(map[string][]chat.Message),
	}
}

// Name returns the unique name for the module.
func (m *Module) Name() string {
	return "chat"
}

// RoomAlive reports whether the room still has a live subscription. The bot
// dispatcher consults this before writing a slow reply.
func (m *Module) RoomAlive(room string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.roomSubs[room]
	return ok
}

// Boot registers the websocket route and attaches the module's event
// handlers to the bus.
func (m *Module) Boot(ctx context.Context, router *echo.Group) error {
	router.GET("/ws/:room", func(c echo.Context) error {
		room := c.Param("room")
		if room == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "room is required")
		}

		userID, displayName, err := m.identity(c)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
		}

		return m.wsHandler.Serve(c, userID, displayName, room)
	})

	router.GET("/rooms/:room/history", m.handleHistory)
	router.GET("/rooms/:room/presence", m.handleRoster)
	router.DELETE("/rooms/:room/presence", m.handleLeave)

	subscriptions := []func(context.Context) error{
		func(ctx context.Context) error {
			return pubsub.SubscribeTyped(ctx, m.subscriber, websocket.TopicClientReady, m.onClientReady)
		},
		func(ctx context.Context) error {
			return pubsub.SubscribeTyped(ctx, m.subscriber, websocket.TopicClientDisconnected, m.onClientDisconnected)
		},
		func(ctx context.Context) error {
			return pubsub.SubscribeTyped(ctx, m.subscriber, chat.TopicMessageSubmitted, m.onMessageSubmitted)
		},
		func(ctx context.Context) error {
			return pubsub.SubscribeTyped(ctx, m.subscriber, chat.TopicMessageEdited, m.onMessageEdited)
		},
		func(ctx context.Context) error {
			return pubsub.SubscribeTyped(ctx, m.subscriber, chat.TopicMessageDeleted, m.onMessageDeleted)
		},
		func(ctx context.Context) error {
			return pubsub.SubscribeTyped(ctx, m.subscriber, chat.TopicVisibilityReported, m.onVisibilityReported)
		},
		func(ctx context.Context) error {
			return pubsub.SubscribeTyped(ctx, m.subscriber, presence.TopicRosterUpdated, m.onRosterUpdated)
		},
	}
	for _, subscribe := range subscriptions {
		if err := subscribe(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Shutdown cancels every room subscription.
func (m *Module) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	subs := make([]*chat.SnapshotSubscription, 0, len(m.roomSubs))
	for _, sub := range m.roomSubs {
		subs = append(subs, sub)
	}
	m.roomSubs = make(map[string]*chat.SnapshotSubscription)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	return nil
}

// onClientReady opens the room's live subscription on the first connection.
func (m *Module) onClientReady(ctx context.Context, event websocket.ClientReady) error {
	metrics.ConnectedClients.WithLabelValues(event.Room).Inc()
	return m.ensureRoom(ctx, event.Room)
}

// onClientDisconnected tears the room's subscription down once the last
// connection is gone.
func (m *Module) onClientDisconnected(ctx context.Context, event websocket.ClientDisconnected) error {
	metrics.ConnectedClients.WithLabelValues(event.Room).Dec()

	if len(m.bridge.RoomViewers(event.Room)) > 0 {
		return nil
	}

	m.mu.Lock()
	sub := m.roomSubs[event.Room]
	delete(m.roomSubs, event.Room)
	delete(m.snapshots, event.Room)
	m.mu.Unlock()

	if sub != nil {
		sub.Cancel()
		m.logger.Info("Room subscription closed", "room", event.Room)
	}
	return nil
}

func (m *Module) ensureRoom(ctx context.Context, room string) error {
	m.mu.Lock()
	if _, ok := m.roomSubs[room]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	sub, err := m.store.Subscribe(ctx, room, func(snapCtx context.Context, messages []chat.Message) {
		m.onSnapshot(snapCtx, room, messages)
	})
	if err != nil {
		m.logger.Error("Failed to open room subscription", "room", room, "error", err)
		return nil
	}

	m.mu.Lock()
	if _, ok := m.roomSubs[room]; ok {
		// Lost the race to another connection.
		m.mu.Unlock()
		sub.Cancel()
		return nil
	}
	m.roomSubs[room] = sub
	m.mu.Unlock()

	m.logger.Info("Room subscription opened", "room", room)
	return nil
}

// onSnapshot fans a fresh room snapshot out to every connected client and
// records delivery for each viewer.
func (m *Module) onSnapshot(ctx context.Context, room string, messages []chat.Message) {
	m.mu.Lock()
	m.snapshots[room] = messages
	m.mu.Unlock()

	frame, err := websocket.NewFrame(websocket.FrameSnapshot, map[string]interface{}{
		"room":     room,
		"messages": messages,
	})
	if err != nil {
		m.logger.Error("Failed to build snapshot frame", "room", room, "error", err)
		return
	}
	m.bridge.BroadcastRoom(room, frame)

	for _, viewerID := range m.bridge.RoomViewers(room) {
		m.marker.ObserveSnapshot(ctx, viewerID, messages)
	}
}

// onMessageSubmitted persists a user message and hands it to the bot.
func (m *Module) onMessageSubmitted(ctx context.Context, event chat.MessageSubmitted) error {
	_, err := m.store.Send(ctx, chat.Message{
		Room:     event.Room,
		Author:   event.Author,
		AuthorID: event.AuthorID,
		Text:     event.Text,
	})
	if err != nil {
		m.logger.Error("Failed to store message", "room", event.Room, "error", err)
		m.sendErrorToUser(event.Room, event.AuthorID, "failed to send, try again")
		return nil
	}
	metrics.MessagesSent.WithLabelValues(event.Room).Inc()

	m.mu.Lock()
	history := make([]chat.Message, len(m.snapshots[event.Room]))
	copy(history, m.snapshots[event.Room])
	m.mu.Unlock()

	go m.dispatcher.OnUserMessage(ctx, event.Room, event.Text, history)
	return nil
}

func (m *Module) onMessageEdited(ctx context.Context, event chat.MessageEdited) error {
	err := m.store.Edit(ctx, event.MessageID, event.AuthorID, event.Text)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chat.ErrEditWindowExpired):
		m.sendErrorToUser(event.Room, event.AuthorID, "edit window has expired")
	case errors.Is(err, chat.ErrNotMessageAuthor):
		m.sendErrorToUser(event.Room, event.AuthorID, "you can only edit your own messages")
	default:
		m.logger.Error("Failed to edit message", "message_id", event.MessageID, "error", err)
		m.sendErrorToUser(event.Room, event.AuthorID, "failed to edit, try again")
	}
	return nil
}

func (m *Module) onMessageDeleted(ctx context.Context, event chat.MessageDeleted) error {
	err := m.store.Delete(ctx, event.MessageID, event.AuthorID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chat.ErrNotMessageAuthor):
		m.sendErrorToUser(event.Room, event.AuthorID, "you can only delete your own messages")
	default:
		m.logger.Error("Failed to delete message", "message_id", event.MessageID, "error", err)
		m.sendErrorToUser(event.Room, event.AuthorID, "failed to delete, try again")
	}
	return nil
}

func (m *Module) onVisibilityReported(ctx context.Context, event chat.VisibilityReported) error {
	m.mu.Lock()
	snapshot := m.snapshots[event.Room]
	m.mu.Unlock()

	m.marker.ObserveVisibility(ctx, event.UserID, snapshot, event.Reports)
	return nil
}

// onRosterUpdated forwards presence changes to the room's clients.
func (m *Module) onRosterUpdated(ctx context.Context, update presence.RosterUpdate) error {
	metrics.PresenceOnline.WithLabelValues(update.Room).Set(float64(len(update.Users)))

	frame, err := websocket.NewFrame(websocket.FramePresence, update)
	if err != nil {
		return err
	}
	m.bridge.BroadcastRoom(update.Room, frame)
	return nil
}

func (m *Module) handleHistory(c echo.Context) error {
	room := c.Param("room")
	messages, err := m.store.History(c.Request().Context(), room, 100)
	if err != nil {
		m.logger.Error("Failed to fetch history", "room", room, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch history")
	}
	return c.JSON(http.StatusOK, messages)
}

func (m *Module) handleRoster(c echo.Context) error {
	room := c.Param("room")
	records, err := m.tracker.Roster(c.Request().Context(), room)
	if err != nil {
		m.logger.Error("Failed to fetch roster", "room", room, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch roster")
	}
	return c.JSON(http.StatusOK, records)
}

// handleLeave flips the caller offline immediately without waiting for their
// connections to close.
func (m *Module) handleLeave(c echo.Context) error {
	room := c.Param("room")
	userID, _, err := m.identity(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
	}

	if err := m.tracker.Leave(c.Request().Context(), room, userID); err != nil {
		m.logger.Error("Failed to leave room", "room", room, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to leave room")
	}
	return c.NoContent(http.StatusNoContent)
}

func (m *Module) sendErrorToUser(room, userID, message string) {
	frame, err := websocket.NewFrame(websocket.FrameError, websocket.ErrorPayload{Message: message})
	if err != nil {
		return
	}
	m.bridge.SendToUser(room, userID, frame)
}
