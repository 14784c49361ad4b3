package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/chattersphere/chattersphere/internal/database"
	surrealdb "github.com/surrealdb/surrealdb.go"
)

// Record is one (room, user) row in the presence table. A user with no
// record, or with Online=false, is offline in that room.
type Record struct {
	Room        string    `json:"room"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Online      bool      `json:"online"`
	LastSeen    time.Time `json:"lastSeen"`
}

// Store persists presence records.
type Store interface {
	// SetOnline upserts the record for (room, userID) with Online=true and a
	// server-assigned lastSeen timestamp.
	SetOnline(ctx context.Context, room, userID, displayName string) error

	// SetOffline flips the record for (room, userID) to Online=false. It is a
	// no-op when no record exists.
	SetOffline(ctx context.Context, room, userID string) error

	// Roster returns the online records for a room.
	Roster(ctx context.Context, room string) ([]Record, error)
}

// SurrealStore implements Store against the presence table. Record ids are
// deterministic per (room, userID) so repeated joins collapse into a single
// row instead of accumulating.
type SurrealStore struct {
	conn database.DBConnection
}

// NewSurrealStore creates a presence store backed by the given connection.
func NewSurrealStore(conn database.DBConnection) *SurrealStore {
	return &SurrealStore{conn: conn}
}

func recordKey(room, userID string) string {
	return fmt.Sprintf("%s|%s", room, userID)
}

func (s *SurrealStore) SetOnline(ctx context.Context, room, userID, displayName string) error {
	ctx, cancel := database.WithExecuteTimeout(ctx, s.conn)
	defer cancel()

	return s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		query := `UPSERT type::thing('presence', $key) SET
			room = $room,
			userId = $user,
			displayName = $name,
			online = true,
			lastSeen = time::now()`

		err := database.Execute(ctx, db, query, map[string]any{
			"key":  recordKey(room, userID),
			"room": room,
			"user": userID,
			"name": displayName,
		})
		if err != nil {
			return database.WrapError(err, "failed to set user online").
				WithQuery(query).
				WithParams(map[string]any{"room": room, "user": userID})
		}
		return nil
	})
}

func (s *SurrealStore) SetOffline(ctx context.Context, room, userID string) error {
	ctx, cancel := database.WithExecuteTimeout(ctx, s.conn)
	defer cancel()

	return s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		query := `UPDATE type::thing('presence', $key) SET
			online = false,
			lastSeen = time::now()`

		err := database.Execute(ctx, db, query, map[string]any{
			"key": recordKey(room, userID),
		})
		if err != nil {
			return database.WrapError(err, "failed to set user offline").
				WithQuery(query).
				WithParams(map[string]any{"room": room, "user": userID})
		}
		return nil
	})
}

func (s *SurrealStore) Roster(ctx context.Context, room string) ([]Record, error) {
	ctx, cancel := database.WithQueryTimeout(ctx, s.conn)
	defer cancel()

	var records []Record
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		query := `SELECT * FROM presence WHERE room = $room AND online = true ORDER BY displayName ASC`

		result, err := database.Query[Record](ctx, db, query, map[string]any{"room": room})
		if err != nil {
			return database.WrapError(err, "failed to query room roster").
				WithQuery(query).
				WithParams(map[string]any{"room": room})
		}
		records = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
