package websocket

import "github.com/chattersphere/chattersphere/internal/pubsub"

// ClientReady is published once a client's websocket handshake has completed
// and the connection is confirmed live. Presence publication waits for this
// signal; publishing earlier would race reconnects.
type ClientReady struct {
	UserID      string `json:"userId"`
	ClientID    string `json:"clientId"`
	DisplayName string `json:"displayName"`
	Room        string `json:"room"`
}

// ClientDisconnected is published when a client's connection closes, whether
// gracefully or not. Reason distinguishes the two for logging only.
type ClientDisconnected struct {
	UserID   string `json:"userId"`
	ClientID string `json:"clientId"`
	Room     string `json:"room"`
	Reason   string `json:"reason"`
}

var (
	// TopicClientReady fires after the transport confirms a live connection.
	TopicClientReady = pubsub.NewEvent[ClientReady]("ws.client.ready")

	// TopicClientDisconnected fires on any connection close.
	TopicClientDisconnected = pubsub.NewEvent[ClientDisconnected]("ws.client.disconnected")
)
