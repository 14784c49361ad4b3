package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageKey(t *testing.T) {
	assert.Equal(t, "abc123", messageKey("message:abc123"))
	assert.Equal(t, "abc123", messageKey("abc123"))
	assert.Equal(t, "1 RETURN AFTER; REMOVE TABLE message;", messageKey("message:1 RETURN AFTER; REMOVE TABLE message;"))
}

// Message ids arrive raw from websocket clients, so every statement that
// targets one must address the record through type::thing with the key bound
// as a parameter. Hostile id content must never appear in query text.
func TestStatementsBindUntrustedIDs(t *testing.T) {
	hostile := "message:1 RETURN AFTER; REMOVE TABLE message;"

	cases := []struct {
		name  string
		build func() (string, map[string]any)
	}{
		{"edit", func() (string, map[string]any) {
			return editStatement(hostile, "user:alice", "new text")
		}},
		{"delete", func() (string, map[string]any) {
			return deleteStatement(hostile, "user:alice")
		}},
		{"mark delivered", func() (string, map[string]any) {
			return markStatement(hostile, "user:alice", "deliveredTo")
		}},
		{"mark seen", func() (string, map[string]any) {
			return markStatement(hostile, "user:alice", "seenBy")
		}},
		{"read", func() (string, map[string]any) {
			return readStatement(hostile)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			query, params := tc.build()

			assert.NotContains(t, query, "REMOVE TABLE", "id content leaked into query text")
			assert.Contains(t, query, "type::thing('message', $id)")
			require.Contains(t, params, "id")
			assert.Equal(t, "1 RETURN AFTER; REMOVE TABLE message;", params["id"])
		})
	}
}

func TestEditStatementChecksWindowAndAuthor(t *testing.T) {
	query, params := editStatement("message:1", "user:alice", "hi")

	assert.Contains(t, query, "createdAt > time::now() - 5m")
	assert.Contains(t, query, "authorId = $author")
	assert.Equal(t, "user:alice", params["author"])
	assert.Equal(t, "hi", params["newText"])
}

func TestDeleteStatementChecksAuthor(t *testing.T) {
	query, params := deleteStatement("message:1", "user:alice")

	assert.Contains(t, query, "authorId = $author")
	assert.Equal(t, "user:alice", params["author"])
}

func TestMarkStatementExemptsAuthorAndBot(t *testing.T) {
	for _, field := range []string{"deliveredTo", "seenBy"} {
		query, params := markStatement("message:1", "user:bob", field)

		assert.Contains(t, query, "authorId != $user")
		assert.Contains(t, query, "bot != true")
		assert.Contains(t, query, field+" = array::union("+field+", [$user])")
		assert.Equal(t, "user:bob", params["user"])
		assert.False(t, strings.Contains(query, "message:1"))
	}
}
