package chat

import (
	"time"
)

// BotAuthorID is the author id carried by dispatcher-generated messages.
// Messages with this author are exempt from delivery/seen tracking and never
// re-trigger the bot.
const BotAuthorID = "bot:chatbot"

// BotAuthorName is the display name of the bot author.
const BotAuthorName = "ChatBot"

// EditWindow is how long after creation a message may still be edited.
// The client-side check is advisory; the store re-validates against the
// stored server timestamp before mutating.
const EditWindow = 5 * time.Minute

// Edit records one prior revision of a message's text. Edits append here
// rather than erasing history.
type Edit struct {
	PreviousText string    `json:"previousText"`
	EditedAt     time.Time `json:"editedAt"`
}

// Message is a single chat message within a room. Messages in a room are
// totally ordered by CreatedAt, which the store assigns server-side; client
// clocks are never trusted for ordering.
type Message struct {
	ID       string `json:"id,omitempty"`
	Room     string `json:"room"`
	Author   string `json:"author"`
	AuthorID string `json:"authorId"`
	Text     string `json:"text"`

	CreatedAt time.Time `json:"createdAt"`

	// DeliveredTo and SeenBy are monotonic sets of user ids. Entries are
	// only ever added, never removed.
	DeliveredTo []string `json:"deliveredTo"`
	SeenBy      []string `json:"seenBy"`

	Edited      bool   `json:"edited,omitempty"`
	EditHistory []Edit `json:"editHistory,omitempty"`

	// Bot marks dispatcher-generated replies.
	Bot bool `json:"bot,omitempty"`

	// Typing marks the transient placeholder shown while a slow reply is
	// being produced. Placeholders are always replaced, never left behind.
	Typing bool `json:"typing,omitempty"`
}

// IsBot reports whether the message was authored by the reply dispatcher.
func (m *Message) IsBot() bool {
	return m.Bot || m.AuthorID == BotAuthorID
}

// DeliveredToUser reports set membership in DeliveredTo.
func (m *Message) DeliveredToUser(userID string) bool {
	return contains(m.DeliveredTo, userID)
}

// SeenByUser reports set membership in SeenBy.
func (m *Message) SeenByUser(userID string) bool {
	return contains(m.SeenBy, userID)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
