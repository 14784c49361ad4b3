package chat

import (
	"context"
	"log/slog"
	"sync"
)

// VisibilityThreshold is the minimum fraction of a message element that must
// be inside the viewport before the viewer counts as having seen it.
const VisibilityThreshold = 0.75

// VisibilityReport is a client's statement about how much of a rendered
// message is currently inside its viewport.
type VisibilityReport struct {
	MessageID string  `json:"messageId"`
	Ratio     float64 `json:"ratio"`
}

// MarkStore is the slice of MessageStore the marker needs.
type MarkStore interface {
	MarkDelivered(ctx context.Context, messageID, userID string) error
	MarkSeen(ctx context.Context, messageID, userID string) error
}

// Marker annotates messages with delivery and seen acknowledgments on behalf
// of connected viewers. Delivered is recorded optimistically as soon as a
// snapshot containing the message reaches a viewer; seen requires the
// visibility threshold. Both sets only ever grow.
type Marker struct {
	store  MarkStore
	logger *slog.Logger

	// mu guards the local dedupe sets. The store-side union update is
	// already idempotent; the cache just avoids re-issuing writes for
	// messages this process has marked before.
	mu        sync.Mutex
	delivered map[string]struct{} // messageID + "\x00" + userID
	seen      map[string]struct{}
}

// NewMarker creates a Marker on top of the given store.
func NewMarker(store MarkStore) *Marker {
	return &Marker{
		store:     store,
		logger:    slog.Default().With("service", "delivery_marker"),
		delivered: make(map[string]struct{}),
		seen:      make(map[string]struct{}),
	}
}

// ObserveSnapshot marks every message in the snapshot as delivered to the
// viewer, except the viewer's own messages, bot replies, and typing
// placeholders. Errors are logged, not propagated: a missed delivery mark is
// repaired on the next snapshot.
func (m *Marker) ObserveSnapshot(ctx context.Context, viewerID string, messages []Message) {
	for i := range messages {
		msg := &messages[i]
		if msg.AuthorID == viewerID || msg.IsBot() || msg.Typing || msg.ID == "" {
			continue
		}
		if msg.DeliveredToUser(viewerID) {
			continue
		}
		if !m.claim(m.delivered, msg.ID, viewerID) {
			continue
		}
		if err := m.store.MarkDelivered(ctx, msg.ID, viewerID); err != nil {
			m.release(m.delivered, msg.ID, viewerID)
			m.logger.Warn("Failed to mark delivered", "message_id", msg.ID, "user_id", viewerID, "error", err)
		}
	}
}

// ObserveVisibility processes a viewer's viewport report, marking messages
// seen once they cross the visibility threshold. Marking is exactly-once per
// (message, viewer) from this process and idempotent at the store.
func (m *Marker) ObserveVisibility(ctx context.Context, viewerID string, snapshot []Message, reports []VisibilityReport) {
	byID := make(map[string]*Message, len(snapshot))
	for i := range snapshot {
		byID[snapshot[i].ID] = &snapshot[i]
	}

	for _, report := range reports {
		if report.Ratio < VisibilityThreshold {
			continue
		}
		msg, ok := byID[report.MessageID]
		if !ok {
			continue
		}
		if msg.AuthorID == viewerID || msg.IsBot() || msg.Typing {
			continue
		}
		if msg.SeenByUser(viewerID) {
			continue
		}
		if !m.claim(m.seen, msg.ID, viewerID) {
			continue
		}
		if err := m.store.MarkSeen(ctx, msg.ID, viewerID); err != nil {
			m.release(m.seen, msg.ID, viewerID)
			m.logger.Warn("Failed to mark seen", "message_id", msg.ID, "user_id", viewerID, "error", err)
		}
	}
}

func (m *Marker) claim(set map[string]struct{}, messageID, userID string) bool {
	key := messageID + "\x00" + userID
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, done := set[key]; done {
		return false
	}
	set[key] = struct{}{}
	return true
}

func (m *Marker) release(set map[string]struct{}, messageID, userID string) {
	key := messageID + "\x00" + userID
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(set, key)
}
