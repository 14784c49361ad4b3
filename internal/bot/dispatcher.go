package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chattersphere/chattersphere/internal/chat"
	"github.com/chattersphere/chattersphere/internal/metrics"
)

const (
	// cannedReplyDelay humanizes locally-produced replies so the bot does not
	// answer within the same render frame as the user's message.
	cannedReplyDelay = 800 * time.Millisecond

	// historyLines is how many trailing messages accompany a generative
	// prompt.
	historyLines = 10

	// typingText is the placeholder body shown while a slow reply is
	// in flight.
	typingText = "…"
)

// MessageWriter is the slice of the message store the dispatcher needs. The
// dispatcher only ever deletes its own placeholders, so deletes carry the
// bot author id.
type MessageWriter interface {
	Send(ctx context.Context, msg chat.Message) (*chat.Message, error)
	Delete(ctx context.Context, messageID, authorID string) error
}

// Dispatcher produces exactly one bot reply for every user message. Local
// stages (canned table, built-in rules, room script) answer directly; when
// none of them match, the generative service is consulted behind a typing
// placeholder, with a random canned response as the fallback for any failure.
type Dispatcher struct {
	writer    MessageWriter
	table     *Table
	matcher   Matcher
	scripts   *ScriptRunner
	generator Generator
	logger    *slog.Logger

	delay time.Duration
	alive func(room string) bool
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithReplyDelay overrides the humanizing delay before local replies.
func WithReplyDelay(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		disp.delay = d
	}
}

// WithLiveness installs a check consulted before a reply is written. A room
// that is no longer live has its reply discarded rather than written stale.
func WithLiveness(alive func(room string) bool) DispatcherOption {
	return func(disp *Dispatcher) {
		disp.alive = alive
	}
}

// NewDispatcher wires the reply pipeline. generator may be nil to disable the
// generative stage entirely.
func NewDispatcher(writer MessageWriter, table *Table, scripts *ScriptRunner, generator Generator, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		writer:    writer,
		table:     table,
		scripts:   scripts,
		generator: generator,
		logger:    slog.Default().With("service", "bot_dispatcher"),
		delay:     cannedReplyDelay,
		alive:     func(string) bool { return true },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnUserMessage reacts to one user message. It never returns an error to the
// caller; every failure path degrades to a canned reply, and every call
// writes exactly one non-placeholder bot message unless the room went away
// mid-flight.
func (d *Dispatcher) OnUserMessage(ctx context.Context, room, text string, history []chat.Message) {
	if reply, source, ok := d.localReply(ctx, room, text); ok {
		d.deliverAfterDelay(ctx, room, reply, source)
		return
	}

	d.generativeReply(ctx, room, text, history)
}

// localReply runs the fast stages: canned table, built-in rules, room script.
func (d *Dispatcher) localReply(ctx context.Context, room, text string) (reply, source string, ok bool) {
	if reply, ok := d.matcher.Match(text, d.table.Pairs(room)); ok {
		return reply, "canned", true
	}
	if reply, ok := reactionReply(text); ok {
		return reply, "builtin", true
	}
	if d.scripts != nil {
		if reply, ok := d.scripts.Reply(ctx, room, text); ok {
			return reply, "script", true
		}
	}
	return "", "", false
}

// deliverAfterDelay waits out the humanizing delay and writes the reply.
func (d *Dispatcher) deliverAfterDelay(ctx context.Context, room, reply, source string) {
	if d.delay > 0 {
		timer := time.NewTimer(d.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			// Shutting down. The reply is still owed; write it now.
		}
	}

	d.writeReply(ctx, room, reply, source)
}

// generativeReply consults the external service behind a typing placeholder.
// Any failure falls back to a random canned response; the placeholder is
// removed on every path.
func (d *Dispatcher) generativeReply(ctx context.Context, room, text string, history []chat.Message) {
	placeholder := d.insertTyping(ctx, room)

	reply, source := "", ""
	degraded := false
	if d.generator != nil {
		generated, err := d.generator.Generate(ctx, d.buildPrompt(room, text, history))
		if err == nil {
			reply, source = generated, "generated"
		} else {
			degraded = true
			metrics.BotGenerationFailures.Inc()
			d.logger.Warn("Generative reply failed, using canned fallback",
				"room", room, "error", err)
		}
	}
	if reply == "" {
		reply, source = d.table.RandomResponse(room), "fallback"
		if degraded {
			reply += " (offline mode)"
		}
	}

	// The placeholder must go before the reply lands so no snapshot ever
	// shows the bot both typing and answered.
	if placeholder != nil {
		if err := d.writer.Delete(ctx, placeholder.ID, chat.BotAuthorID); err != nil {
			d.logger.Error("Failed to remove typing placeholder",
				"room", room, "messageId", placeholder.ID, "error", err)
		}
	}

	d.writeReply(ctx, room, reply, source)
}

func (d *Dispatcher) insertTyping(ctx context.Context, room string) *chat.Message {
	placeholder, err := d.writer.Send(ctx, chat.Message{
		Room:     room,
		Author:   chat.BotAuthorName,
		AuthorID: chat.BotAuthorID,
		Text:     typingText,
		Bot:      true,
		Typing:   true,
	})
	if err != nil {
		// No placeholder is better than a dangling one.
		d.logger.Warn("Failed to insert typing placeholder", "room", room, "error", err)
		return nil
	}
	return placeholder
}

func (d *Dispatcher) writeReply(ctx context.Context, room, reply, source string) {
	if !d.alive(room) {
		d.logger.Info("Discarding reply for room that is no longer live",
			"room", room, "source", source)
		return
	}

	_, err := d.writer.Send(ctx, chat.Message{
		Room:     room,
		Author:   chat.BotAuthorName,
		AuthorID: chat.BotAuthorID,
		Text:     reply,
		Bot:      true,
	})
	if err != nil {
		d.logger.Error("Failed to write bot reply", "room", room, "source", source, "error", err)
		return
	}

	metrics.BotReplies.WithLabelValues(room, source).Inc()
}

// buildPrompt assembles the persona, recent history, and the user's message
// into a single prompt string.
func (d *Dispatcher) buildPrompt(room, text string, history []chat.Message) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(d.table.Persona(room)))
	b.WriteString("\n\nRecent conversation:\n")

	start := 0
	if len(history) > historyLines {
		start = len(history) - historyLines
	}
	for _, msg := range history[start:] {
		if msg.Typing {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", msg.Author, msg.Text)
	}

	fmt.Fprintf(&b, "\nUser: %s\nChatBot:", text)
	return b.String()
}
