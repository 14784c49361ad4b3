package database

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDBError_WrapsSentinels(t *testing.T) {
	err := NewDBError(ErrNotFound, "message lookup failed").
		WithQuery("SELECT * FROM message").
		WithParams(map[string]any{"room": "General"})

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrRejected))
	assert.Contains(t, err.Error(), "message lookup failed")
	assert.Contains(t, err.Error(), "SELECT * FROM message")
	assert.Contains(t, err.Error(), "General")
}

func TestWrapError_PreservesDBError(t *testing.T) {
	inner := NewDBError(ErrRejected, "permission denied")
	wrapped := WrapError(inner, "failed to send message")

	assert.True(t, errors.Is(wrapped, ErrRejected))
}

func TestWrapError_PlainError(t *testing.T) {
	inner := errors.New("socket closed")
	wrapped := WrapError(inner, "query failed")

	assert.True(t, errors.Is(wrapped, inner))
	assert.False(t, errors.Is(wrapped, ErrQueryFailed))
	assert.Contains(t, wrapped.Error(), "query failed")
}

func TestHasLimitClause(t *testing.T) {
	assert.True(t, hasLimitClause("SELECT * FROM message LIMIT 5"))
	assert.True(t, hasLimitClause("select * from message limit $limit"))
	assert.False(t, hasLimitClause("SELECT * FROM message"))
	assert.False(t, hasLimitClause("SELECT unlimited FROM message"))
}
