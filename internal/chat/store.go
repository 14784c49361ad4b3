package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chattersphere/chattersphere/internal/database"
	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
)

// ErrEditWindowExpired is returned when an edit arrives more than EditWindow
// after the message was created, measured against the stored server timestamp.
var ErrEditWindowExpired = errors.New("edit window expired")

// ErrNotMessageAuthor is returned when a mutation targets a message the
// caller did not write.
var ErrNotMessageAuthor = errors.New("not the message author")

// SnapshotHandler receives the full ordered message list for a room every
// time anything in the room changes. Snapshots are full-state replacements,
// not deltas; diffing is the caller's concern.
type SnapshotHandler func(ctx context.Context, messages []Message)

// SnapshotSubscription is the cancellation handle returned by Subscribe.
type SnapshotSubscription struct {
	ID     string
	Room   string
	cancel func()
}

// Cancel tears down the subscription. Safe to call more than once.
func (s *SnapshotSubscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// MessageStore is the room-scoped message contract. A network partition
// surfaces as a stalled subscription, not an error; callers needing liveness
// apply their own timeout.
type MessageStore interface {
	Send(ctx context.Context, msg Message) (*Message, error)
	Edit(ctx context.Context, messageID, authorID, newText string) error
	Delete(ctx context.Context, messageID, authorID string) error
	History(ctx context.Context, room string, limit int) ([]Message, error)
	MarkDelivered(ctx context.Context, messageID, userID string) error
	MarkSeen(ctx context.Context, messageID, userID string) error
	Subscribe(ctx context.Context, room string, handler SnapshotHandler) (*SnapshotSubscription, error)
}

// SurrealMessageStore implements MessageStore on top of a SurrealDB table
// partitioned by the room field, using live queries for change notification.
type SurrealMessageStore struct {
	conn   database.DBConnection
	live   database.LiveQueryService
	logger *slog.Logger
}

// NewSurrealMessageStore creates a message store bound to the given connection.
func NewSurrealMessageStore(conn database.DBConnection, live database.LiveQueryService) *SurrealMessageStore {
	return &SurrealMessageStore{
		conn:   conn,
		live:   live,
		logger: slog.Default().With("service", "message_store"),
	}
}

// messageKey reduces a message id to its record key, accepting both the
// "message:key" form clients see and a bare key. Keys are always bound as
// query parameters via type::thing; untrusted ids never reach query text.
func messageKey(messageID string) string {
	if rest, ok := strings.CutPrefix(messageID, "message:"); ok {
		return rest
	}
	return messageID
}

func editStatement(messageID, authorID, newText string) (string, map[string]any) {
	query := `UPDATE type::thing('message', $id) SET
		editHistory += { previousText: text, editedAt: time::now() },
		text = $newText,
		edited = true
	WHERE createdAt > time::now() - 5m AND authorId = $author
	RETURN AFTER`
	return query, map[string]any{
		"id":      messageKey(messageID),
		"author":  authorID,
		"newText": newText,
	}
}

func deleteStatement(messageID, authorID string) (string, map[string]any) {
	query := "DELETE type::thing('message', $id) WHERE authorId = $author RETURN BEFORE"
	return query, map[string]any{
		"id":     messageKey(messageID),
		"author": authorID,
	}
}

func markStatement(messageID, userID, field string) (string, map[string]any) {
	query := fmt.Sprintf(`UPDATE type::thing('message', $id) SET %s = array::union(%s, [$user])
		WHERE authorId != $user AND bot != true`, field, field)
	return query, map[string]any{
		"id":   messageKey(messageID),
		"user": userID,
	}
}

func readStatement(messageID string) (string, map[string]any) {
	return "SELECT * FROM type::thing('message', $id)", map[string]any{"id": messageKey(messageID)}
}

// Send persists a new message. The creation timestamp is assigned by the
// server inside the CREATE statement; any CreatedAt on the input is ignored.
// The text is stored verbatim so markdown and emoji round-trip byte-identical.
func (s *SurrealMessageStore) Send(ctx context.Context, msg Message) (*Message, error) {
	if msg.Room == "" {
		return nil, database.NewDBError(database.ErrInvalidInput, "room cannot be empty")
	}
	if msg.Text == "" {
		return nil, database.NewDBError(database.ErrInvalidInput, "text cannot be empty")
	}

	ctx, cancel := database.WithExecuteTimeout(ctx, s.conn)
	defer cancel()

	var created *Message
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		query := `CREATE message SET
			room = $room,
			author = $author,
			authorId = $authorId,
			text = $text,
			createdAt = time::now(),
			deliveredTo = [],
			seenBy = [],
			edited = false,
			editHistory = [],
			bot = $bot,
			typing = $typing
		RETURN AFTER`
		params := map[string]any{
			"room":     msg.Room,
			"author":   msg.Author,
			"authorId": msg.AuthorID,
			"text":     msg.Text,
			"bot":      msg.Bot,
			"typing":   msg.Typing,
		}

		result, err := database.QueryOne[Message](ctx, db, query, params)
		if err != nil {
			return database.WrapError(err, "failed to create message").WithQuery(query)
		}
		if result == nil {
			return database.NewDBError(database.ErrRejected, "message was not created")
		}
		created = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Edit rewrites a message's text, appending the previous text to its edit
// history. The five minute window and the authorship check are enforced in
// the UPDATE itself against stored fields, so a wrong client clock or a
// forged id cannot bypass either.
func (s *SurrealMessageStore) Edit(ctx context.Context, messageID, authorID, newText string) error {
	if messageID == "" || authorID == "" {
		return database.NewDBError(database.ErrInvalidInput, "message id and author id are required")
	}
	if newText == "" {
		return database.NewDBError(database.ErrInvalidInput, "text cannot be empty")
	}

	ctx, cancel := database.WithExecuteTimeout(ctx, s.conn)
	defer cancel()

	return s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		query, params := editStatement(messageID, authorID, newText)
		updated, err := database.QueryOne[Message](ctx, db, query, params)
		if err != nil {
			return database.WrapError(err, "failed to edit message").WithQuery(query)
		}
		if updated != nil {
			return nil
		}

		// The WHERE clause filtered the record out: gone, someone else's,
		// or past the window. Re-read to tell the three apart.
		readQuery, readParams := readStatement(messageID)
		existing, err := database.QueryOne[Message](ctx, db, readQuery, readParams)
		if err != nil {
			return database.WrapError(err, "failed to re-read message after rejected edit")
		}
		if existing == nil {
			return database.NewDBError(database.ErrNotFound, "message not found")
		}
		if existing.AuthorID != authorID {
			return ErrNotMessageAuthor
		}
		return ErrEditWindowExpired
	})
}

// Delete removes a message permanently. There is no tombstone. Only the
// author may delete; deleting an already-gone message succeeds.
func (s *SurrealMessageStore) Delete(ctx context.Context, messageID, authorID string) error {
	if messageID == "" || authorID == "" {
		return database.NewDBError(database.ErrInvalidInput, "message id and author id are required")
	}

	ctx, cancel := database.WithExecuteTimeout(ctx, s.conn)
	defer cancel()

	return s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		query, params := deleteStatement(messageID, authorID)
		removed, err := database.QueryOne[Message](ctx, db, query, params)
		if err != nil {
			return database.WrapError(err, "failed to delete message").WithQuery(query)
		}
		if removed != nil {
			return nil
		}

		readQuery, readParams := readStatement(messageID)
		existing, err := database.QueryOne[Message](ctx, db, readQuery, readParams)
		if err != nil {
			return database.WrapError(err, "failed to re-read message after rejected delete")
		}
		if existing != nil {
			return ErrNotMessageAuthor
		}
		return nil
	})
}

// History returns the room's messages in ascending server-timestamp order.
// Typing placeholders are excluded; they only travel through live snapshots.
func (s *SurrealMessageStore) History(ctx context.Context, room string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}

	ctx, cancel := database.WithQueryTimeout(ctx, s.conn)
	defer cancel()

	var messages []Message
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		query := "SELECT * FROM message WHERE room = $room AND typing != true ORDER BY createdAt ASC LIMIT $limit"
		result, err := database.Query[Message](ctx, db, query, map[string]any{
			"room":  room,
			"limit": limit,
		})
		if err != nil {
			return database.WrapError(err, "failed to fetch message history").WithQuery(query)
		}
		messages = result
		return nil
	})
	return messages, err
}

// MarkDelivered adds userID to the message's deliveredTo set. The update is
// a set union, so repeated calls are idempotent and entries are never removed.
// Authors don't mark their own messages and bot messages are exempt; both
// conditions are enforced in the statement.
func (s *SurrealMessageStore) MarkDelivered(ctx context.Context, messageID, userID string) error {
	return s.markSet(ctx, messageID, userID, "deliveredTo")
}

// MarkSeen adds userID to the message's seenBy set with the same union
// semantics as MarkDelivered. No ordering is guaranteed between delivered
// and seen marks across different viewers.
func (s *SurrealMessageStore) MarkSeen(ctx context.Context, messageID, userID string) error {
	return s.markSet(ctx, messageID, userID, "seenBy")
}

func (s *SurrealMessageStore) markSet(ctx context.Context, messageID, userID, field string) error {
	if messageID == "" || userID == "" {
		return database.NewDBError(database.ErrInvalidInput, "message id and user id are required")
	}

	ctx, cancel := database.WithExecuteTimeout(ctx, s.conn)
	defer cancel()

	return s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		query, params := markStatement(messageID, userID, field)
		if err := database.Execute(ctx, db, query, params); err != nil {
			return database.WrapError(err, "failed to mark "+field).WithQuery(query)
		}
		return nil
	})
}

// Subscribe opens a live query filtered by room. Every store change in the
// room (insert, update, delete) triggers a fresh full-snapshot read which is
// handed to the caller; an initial snapshot is delivered immediately.
func (s *SurrealMessageStore) Subscribe(ctx context.Context, room string, handler SnapshotHandler) (*SnapshotSubscription, error) {
	if handler == nil {
		return nil, database.NewDBError(database.ErrInvalidInput, "handler cannot be nil")
	}

	subCtx, cancel := context.WithCancel(context.Background())

	filter := &database.LiveQueryFilter{
		Where:  "room = $room",
		Params: map[string]interface{}{"room": room},
	}

	liveSub, err := s.live.Subscribe(ctx, "message", filter, func(notifyCtx context.Context, action database.LiveQueryAction, data interface{}) {
		// Each change fans out a full snapshot rather than the delta. The
		// handler sees a consistent ordered view regardless of which change
		// arrived, and callers diff against their own previous state.
		s.pushSnapshot(subCtx, room, handler)
	})
	if err != nil {
		cancel()
		return nil, database.WrapError(err, "failed to subscribe to room "+room)
	}

	sub := &SnapshotSubscription{
		ID:   uuid.New().String(),
		Room: room,
		cancel: func() {
			cancel()
			if err := s.live.Unsubscribe(liveSub.ID); err != nil {
				s.logger.Warn("Failed to unsubscribe live query", "error", err, "room", room)
			}
		},
	}

	// Initial snapshot so the subscriber has state before the first change.
	go s.pushSnapshot(subCtx, room, handler)

	return sub, nil
}

func (s *SurrealMessageStore) pushSnapshot(ctx context.Context, room string, handler SnapshotHandler) {
	select {
	case <-ctx.Done():
		return
	default:
	}

	messages, err := s.snapshot(ctx, room)
	if err != nil {
		// A failed read here is indistinguishable from a stall to the
		// subscriber, which is the contract: no error, just no update.
		s.logger.Warn("Failed to build room snapshot", "room", room, "error", err)
		return
	}

	select {
	case <-ctx.Done():
	default:
		handler(ctx, messages)
	}
}

// snapshot reads the full ordered room state including typing placeholders.
func (s *SurrealMessageStore) snapshot(ctx context.Context, room string) ([]Message, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, s.conn)
	defer cancel()

	var messages []Message
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		query := "SELECT * FROM message WHERE room = $room ORDER BY createdAt ASC"
		result, err := database.Query[Message](ctx, db, query, map[string]any{"room": room})
		if err != nil {
			return err
		}
		messages = result
		return nil
	})
	return messages, err
}
