// Package client is a Go client for a ChatterSphere server. It signs in over
// HTTP, joins rooms over websocket, and exposes room traffic as channels.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/chattersphere/chattersphere/internal/chat"
	"github.com/chattersphere/chattersphere/internal/presence"
	"github.com/gorilla/websocket"
)

// Identity is the signed-in user as the server sees it.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// Client talks to one ChatterSphere server. The zero value is not usable;
// call New.
type Client struct {
	baseURL string
	http    *http.Client
	jar     *cookiejar.Jar
}

// New creates a client for the server at baseURL (e.g. "http://localhost:8080").
func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Jar: jar},
		jar:     jar,
	}, nil
}

// SignIn establishes a session for the display name. The session cookie is
// retained for subsequent Join calls.
func (c *Client) SignIn(ctx context.Context, displayName string) (*Identity, error) {
	body, err := json.Marshal(map[string]string{"displayName": displayName})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/session", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("signing in: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sign in rejected: %s", resp.Status)
	}

	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, fmt.Errorf("decoding identity: %w", err)
	}
	return &identity, nil
}

// History fetches the room's message history over HTTP.
func (c *Client) History(ctx context.Context, room string) ([]chat.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/rooms/"+url.PathEscape(room)+"/history", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history request rejected: %s", resp.Status)
	}

	var messages []chat.Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	return messages, nil
}

// Leave announces a graceful exit from the room: the server flips presence
// offline immediately instead of waiting for the websocket to close.
func (c *Client) Leave(ctx context.Context, room string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/rooms/"+url.PathEscape(room)+"/presence", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("leaving room: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("leave request rejected: %s", resp.Status)
	}
	return nil
}

// Join opens a websocket into the room. SignIn must have succeeded first.
func (c *Client) Join(ctx context.Context, room string) (*RoomConn, error) {
	wsURL, err := c.websocketURL(room)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{Jar: c.jar}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("joining room %q: %s", room, resp.Status)
		}
		return nil, fmt.Errorf("joining room %q: %w", room, err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	rc := &RoomConn{
		room:      room,
		conn:      conn,
		snapshots: make(chan []chat.Message, 8),
		presences: make(chan presence.RosterUpdate, 8),
		errs:      make(chan string, 8),
		done:      make(chan struct{}),
	}
	go rc.readLoop()
	return rc, nil
}

func (c *Client) websocketURL(room string) (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	parsed.Path = "/ws/" + room
	return parsed.String(), nil
}
