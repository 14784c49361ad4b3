package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatcher_SubstringContainment(t *testing.T) {
	pairs := []Pair{
		{Question: "what can you do", Response: "I can answer questions."},
	}
	var m Matcher

	// User text contains the trigger.
	reply, ok := m.Match("hey, what can you do exactly?", pairs)
	assert.True(t, ok)
	assert.Equal(t, "I can answer questions.", reply)

	// Trigger contains the user text.
	reply, ok = m.Match("what can you", pairs)
	assert.True(t, ok)
	assert.Equal(t, "I can answer questions.", reply)
}

func TestMatcher_CaseFolding(t *testing.T) {
	pairs := []Pair{{Question: "Tabs or Spaces", Response: "gofmt decides."}}
	var m Matcher

	reply, ok := m.Match("TABS OR SPACES?!", pairs)
	assert.True(t, ok)
	assert.Equal(t, "gofmt decides.", reply)
}

func TestMatcher_WordOverlap(t *testing.T) {
	pairs := []Pair{
		{Question: "what game should I play tonight", Response: "Try Stardew."},
	}
	var m Matcher

	// Shares game/should/play with the trigger; "what"/"tonight" differ and
	// short words are excluded, so the overlap clears the threshold.
	reply, ok := m.Match("which game should we play", pairs)
	assert.True(t, ok)
	assert.Equal(t, "Try Stardew.", reply)
}

func TestMatcher_BelowThresholdNoMatch(t *testing.T) {
	pairs := []Pair{
		{Question: "what language should I learn", Response: "Go."},
	}
	var m Matcher

	_, ok := m.Match("recommend dinner recipes please", pairs)
	assert.False(t, ok)
}

func TestMatcher_ShortWordsExcluded(t *testing.T) {
	// Every shared word is length <= 2, so the score must be zero.
	pairs := []Pair{{Question: "is it up to me", Response: "nope"}}
	var m Matcher

	_, ok := m.Match("it as do we go", pairs)
	assert.False(t, ok)
}

func TestMatcher_BestOfMultiplePairs(t *testing.T) {
	pairs := []Pair{
		{Question: "play games", Response: "weak"},
		{Question: "what game should I play", Response: "strong"},
	}
	var m Matcher

	reply, ok := m.Match("what game should I play", pairs)
	assert.True(t, ok)
	assert.Equal(t, "strong", reply)
}

func TestMatcher_EmptyTable(t *testing.T) {
	var m Matcher
	_, ok := m.Match("anything", nil)
	assert.False(t, ok)
}

func TestOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "alpha beta gamma", "alpha beta gamma", 1.0},
		{"disjoint", "alpha beta", "delta gamma", 0.0},
		{"half", "alpha beta gamma delta", "alpha beta", 0.5},
		{"short words ignored", "go is it", "go on we", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, overlap(tt.a, tt.b), 0.001)
		})
	}
}
