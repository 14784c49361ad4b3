package chat

import "github.com/chattersphere/chattersphere/internal/pubsub"

// MessageSubmitted is a client's request to post a message to a room.
type MessageSubmitted struct {
	Room     string `json:"room"`
	Author   string `json:"author"`
	AuthorID string `json:"authorId"`
	Text     string `json:"text"`
}

// MessageEdited is a client's request to rewrite one of its messages.
type MessageEdited struct {
	Room      string `json:"room"`
	MessageID string `json:"messageId"`
	AuthorID  string `json:"authorId"`
	Text      string `json:"text"`
}

// MessageDeleted is a client's request to remove one of its messages.
type MessageDeleted struct {
	Room      string `json:"room"`
	MessageID string `json:"messageId"`
	AuthorID  string `json:"authorId"`
}

// VisibilityReported carries a client's viewport visibility reports for a room.
type VisibilityReported struct {
	Room    string             `json:"room"`
	UserID  string             `json:"userId"`
	Reports []VisibilityReport `json:"reports"`
}

// Bus topics for the chat module.
var (
	// TopicMessageSubmitted carries message submissions from connected clients.
	TopicMessageSubmitted = pubsub.NewEvent[MessageSubmitted]("chat.message.submitted")

	// TopicMessageEdited carries edit requests from connected clients.
	TopicMessageEdited = pubsub.NewEvent[MessageEdited]("chat.message.edited")

	// TopicMessageDeleted carries delete requests from connected clients.
	TopicMessageDeleted = pubsub.NewEvent[MessageDeleted]("chat.message.deleted")

	// TopicVisibilityReported carries viewport reports used for seen marking.
	TopicVisibilityReported = pubsub.NewEvent[VisibilityReported]("chat.visibility.reported")
)
