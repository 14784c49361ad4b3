package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingMarkStore counts mark writes and can be told to fail.
type recordingMarkStore struct {
	mu        sync.Mutex
	delivered map[string]int // messageID|userID -> write count
	seen      map[string]int
	failNext  bool
}

func newRecordingMarkStore() *recordingMarkStore {
	return &recordingMarkStore{
		delivered: make(map[string]int),
		seen:      make(map[string]int),
	}
}

func (s *recordingMarkStore) MarkDelivered(ctx context.Context, messageID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errors.New("write failed")
	}
	s.delivered[messageID+"|"+userID]++
	return nil
}

func (s *recordingMarkStore) MarkSeen(ctx context.Context, messageID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errors.New("write failed")
	}
	s.seen[messageID+"|"+userID]++
	return nil
}

func TestMarker_DeliveredOnSnapshot(t *testing.T) {
	store := newRecordingMarkStore()
	marker := NewMarker(store)
	ctx := context.Background()

	snapshot := []Message{
		{ID: "message:1", AuthorID: "user:alice", Text: "hi"},
		{ID: "message:2", AuthorID: "user:bob", Text: "yo"},
	}

	marker.ObserveSnapshot(ctx, "user:bob", snapshot)

	// Bob's own message is not marked; Alice's is.
	assert.Equal(t, 1, store.delivered["message:1|user:bob"])
	assert.Zero(t, store.delivered["message:2|user:bob"])
}

func TestMarker_DeliveredIdempotentAcrossSnapshots(t *testing.T) {
	store := newRecordingMarkStore()
	marker := NewMarker(store)
	ctx := context.Background()

	snapshot := []Message{{ID: "message:1", AuthorID: "user:alice", Text: "hi"}}

	marker.ObserveSnapshot(ctx, "user:bob", snapshot)
	marker.ObserveSnapshot(ctx, "user:bob", snapshot)
	marker.ObserveSnapshot(ctx, "user:bob", snapshot)

	assert.Equal(t, 1, store.delivered["message:1|user:bob"], "repeated snapshots write at most once")
}

func TestMarker_BotAndTypingExempt(t *testing.T) {
	store := newRecordingMarkStore()
	marker := NewMarker(store)
	ctx := context.Background()

	marker.ObserveSnapshot(ctx, "user:bob", []Message{
		{ID: "message:1", AuthorID: BotAuthorID, Bot: true, Text: "bot reply"},
		{ID: "message:2", AuthorID: BotAuthorID, Bot: true, Typing: true, Text: "…"},
	})

	assert.Empty(t, store.delivered)
}

func TestMarker_AlreadyDeliveredInStoreSkipped(t *testing.T) {
	store := newRecordingMarkStore()
	marker := NewMarker(store)
	ctx := context.Background()

	marker.ObserveSnapshot(ctx, "user:bob", []Message{
		{ID: "message:1", AuthorID: "user:alice", DeliveredTo: []string{"user:bob"}},
	})

	assert.Empty(t, store.delivered)
}

func TestMarker_FailedWriteRetriesNextSnapshot(t *testing.T) {
	store := newRecordingMarkStore()
	store.failNext = true
	marker := NewMarker(store)
	ctx := context.Background()

	snapshot := []Message{{ID: "message:1", AuthorID: "user:alice", Text: "hi"}}

	marker.ObserveSnapshot(ctx, "user:bob", snapshot)
	require.Empty(t, store.delivered, "first write failed")

	marker.ObserveSnapshot(ctx, "user:bob", snapshot)
	assert.Equal(t, 1, store.delivered["message:1|user:bob"], "claim was released, retry succeeds")
}

func TestMarker_SeenRequiresThreshold(t *testing.T) {
	store := newRecordingMarkStore()
	marker := NewMarker(store)
	ctx := context.Background()

	snapshot := []Message{{ID: "message:1", AuthorID: "user:alice", Text: "hi"}}

	marker.ObserveVisibility(ctx, "user:bob", snapshot, []VisibilityReport{
		{MessageID: "message:1", Ratio: 0.5},
	})
	assert.Empty(t, store.seen, "below threshold, not seen")

	marker.ObserveVisibility(ctx, "user:bob", snapshot, []VisibilityReport{
		{MessageID: "message:1", Ratio: VisibilityThreshold},
	})
	assert.Equal(t, 1, store.seen["message:1|user:bob"])
}

func TestMarker_SeenIdempotent(t *testing.T) {
	store := newRecordingMarkStore()
	marker := NewMarker(store)
	ctx := context.Background()

	snapshot := []Message{{ID: "message:1", AuthorID: "user:alice", Text: "hi"}}
	reports := []VisibilityReport{{MessageID: "message:1", Ratio: 1.0}}

	marker.ObserveVisibility(ctx, "user:bob", snapshot, reports)
	marker.ObserveVisibility(ctx, "user:bob", snapshot, reports)

	assert.Equal(t, 1, store.seen["message:1|user:bob"])
}

func TestMarker_SeenSkipsOwnAndUnknownMessages(t *testing.T) {
	store := newRecordingMarkStore()
	marker := NewMarker(store)
	ctx := context.Background()

	snapshot := []Message{{ID: "message:1", AuthorID: "user:bob", Text: "mine"}}

	marker.ObserveVisibility(ctx, "user:bob", snapshot, []VisibilityReport{
		{MessageID: "message:1", Ratio: 1.0},
		{MessageID: "message:404", Ratio: 1.0},
	})

	assert.Empty(t, store.seen)
}

func TestMarker_IndependentViewers(t *testing.T) {
	store := newRecordingMarkStore()
	marker := NewMarker(store)
	ctx := context.Background()

	snapshot := []Message{{ID: "message:1", AuthorID: "user:alice", Text: "hi"}}

	marker.ObserveSnapshot(ctx, "user:bob", snapshot)
	marker.ObserveSnapshot(ctx, "user:carol", snapshot)

	assert.Equal(t, 1, store.delivered["message:1|user:bob"])
	assert.Equal(t, 1, store.delivered["message:1|user:carol"])
}
