package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/chattersphere/chattersphere/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWriter records sends and deletes in order.
type fakeWriter struct {
	mu      sync.Mutex
	nextID  int
	ops     []string // "send:<text>" / "delete:<id>"
	sent    []chat.Message
	sendErr error
}

func (w *fakeWriter) Send(ctx context.Context, msg chat.Message) (*chat.Message, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sendErr != nil {
		return nil, w.sendErr
	}
	w.nextID++
	msg.ID = fmt.Sprintf("message:%d", w.nextID)
	w.sent = append(w.sent, msg)
	w.ops = append(w.ops, "send:"+msg.Text)
	return &msg, nil
}

func (w *fakeWriter) Delete(ctx context.Context, messageID, authorID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ops = append(w.ops, "delete:"+messageID)
	return nil
}

// replies returns the non-placeholder bot messages written.
func (w *fakeWriter) replies() []chat.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []chat.Message
	for _, msg := range w.sent {
		if !msg.Typing {
			out = append(out, msg)
		}
	}
	return out
}

func (w *fakeWriter) placeholders() []chat.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []chat.Message
	for _, msg := range w.sent {
		if msg.Typing {
			out = append(out, msg)
		}
	}
	return out
}

type fakeGenerator struct {
	text string
	err  error

	mu      sync.Mutex
	prompts []string
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	return g.text, nil
}

func newTestDispatcher(t *testing.T, writer *fakeWriter, generator Generator, opts ...DispatcherOption) *Dispatcher {
	t.Helper()
	table, err := NewTable("")
	require.NoError(t, err)
	opts = append([]DispatcherOption{WithReplyDelay(0)}, opts...)
	return NewDispatcher(writer, table, NewScriptRunner(), generator, opts...)
}

func TestDispatcher_GreetingAnsweredLocally(t *testing.T) {
	writer := &fakeWriter{}
	d := newTestDispatcher(t, writer, nil)

	d.OnUserMessage(context.Background(), "General", "hello", nil)

	replies := writer.replies()
	require.Len(t, replies, 1)
	assert.Equal(t, "Hello! What's your name?", replies[0].Text)
	assert.Equal(t, chat.BotAuthorName, replies[0].Author)
	assert.Equal(t, chat.BotAuthorID, replies[0].AuthorID)
	assert.True(t, replies[0].Bot)
	assert.Empty(t, writer.placeholders())
}

func TestDispatcher_CannedTableMatch(t *testing.T) {
	writer := &fakeWriter{}
	d := newTestDispatcher(t, writer, nil)

	d.OnUserMessage(context.Background(), "Tech Talk", "so what is a goroutine anyway", nil)

	replies := writer.replies()
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "lightweight thread")
}

func TestDispatcher_MoodEcho(t *testing.T) {
	writer := &fakeWriter{}
	d := newTestDispatcher(t, writer, nil)

	d.OnUserMessage(context.Background(), "General", "mood: happy", nil)

	replies := writer.replies()
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "happy")
}

func TestDispatcher_NoCredentialFallsBackToCanned(t *testing.T) {
	writer := &fakeWriter{}
	d := newTestDispatcher(t, writer, nil)

	d.OnUserMessage(context.Background(), "Gaming", "xylophone zeppelin quux", nil)

	replies := writer.replies()
	require.Len(t, replies, 1)

	table, err := NewTable("")
	require.NoError(t, err)
	valid := make(map[string]bool)
	for _, pair := range table.Pairs("Gaming") {
		valid[pair.Response] = true
	}
	assert.True(t, valid[replies[0].Text], "fallback must come from the room's canned table")
}

func TestDispatcher_GenerativeReplyReplacesPlaceholder(t *testing.T) {
	writer := &fakeWriter{}
	gen := &fakeGenerator{text: "Here's a thought."}
	d := newTestDispatcher(t, writer, gen)

	d.OnUserMessage(context.Background(), "General", "xylophone zeppelin quux", []chat.Message{
		{Author: "alice", Text: "earlier message"},
	})

	replies := writer.replies()
	require.Len(t, replies, 1)
	assert.Equal(t, "Here's a thought.", replies[0].Text)

	placeholders := writer.placeholders()
	require.Len(t, placeholders, 1)

	// The placeholder delete lands before the final reply.
	require.Len(t, writer.ops, 3)
	assert.Equal(t, "send:"+typingText, writer.ops[0])
	assert.Equal(t, "delete:"+placeholders[0].ID, writer.ops[1])
	assert.Equal(t, "send:Here's a thought.", writer.ops[2])

	// Prompt carries persona and history.
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "alice: earlier message")
	assert.Contains(t, gen.prompts[0], "User: xylophone zeppelin quux")
}

func TestDispatcher_GeneratorFailureFallsBack(t *testing.T) {
	writer := &fakeWriter{}
	gen := &fakeGenerator{err: errors.New("quota exceeded")}
	d := newTestDispatcher(t, writer, gen)

	d.OnUserMessage(context.Background(), "Random", "xylophone zeppelin quux", nil)

	replies := writer.replies()
	require.Len(t, replies, 1, "a generator failure still yields exactly one reply")
	assert.Contains(t, replies[0].Text, "(offline mode)")

	// The placeholder was removed.
	placeholders := writer.placeholders()
	require.Len(t, placeholders, 1)
	assert.Contains(t, writer.ops, "delete:"+placeholders[0].ID)
}

func TestDispatcher_ScriptStageAnswers(t *testing.T) {
	writer := &fakeWriter{}
	table, err := NewTable("")
	require.NoError(t, err)
	scripts := NewScriptRunner()
	require.NoError(t, scripts.Install("General", `
		text := import("text")
		if text.contains(message, "xylophone") {
			reply = "scripted answer"
		}
	`))
	d := NewDispatcher(writer, table, scripts, nil, WithReplyDelay(0))

	d.OnUserMessage(context.Background(), "General", "xylophone zeppelin quux", nil)

	replies := writer.replies()
	require.Len(t, replies, 1)
	assert.Equal(t, "scripted answer", replies[0].Text)
	assert.Empty(t, writer.placeholders(), "script replies skip the typing placeholder")
}

func TestDispatcher_StaleRoomDiscardsReply(t *testing.T) {
	writer := &fakeWriter{}
	gen := &fakeGenerator{text: "too late"}
	d := newTestDispatcher(t, writer, gen, WithLiveness(func(string) bool { return false }))

	d.OnUserMessage(context.Background(), "General", "xylophone zeppelin quux", nil)

	assert.Empty(t, writer.replies())

	// Even a discarded reply cleans up its placeholder.
	placeholders := writer.placeholders()
	require.Len(t, placeholders, 1)
	assert.Contains(t, writer.ops, "delete:"+placeholders[0].ID)
}

func TestDispatcher_ExactlyOneReplyAcrossInputs(t *testing.T) {
	inputs := []string{
		"hello",
		"mood: happy",
		"tell me a fact",
		"what is a goroutine",
		"completely unmatched gibberish xyzzy",
		"text with markdown **bold** and emoji 🎉",
	}

	for _, input := range inputs {
		t.Run(strings.ReplaceAll(input, " ", "_"), func(t *testing.T) {
			writer := &fakeWriter{}
			d := newTestDispatcher(t, writer, nil)

			d.OnUserMessage(context.Background(), "General", input, nil)

			assert.Len(t, writer.replies(), 1, "every user message yields exactly one bot reply")
		})
	}
}
