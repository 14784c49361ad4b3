package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/chattersphere/chattersphere/internal/chat"
	"github.com/chattersphere/chattersphere/internal/pubsub"
	"github.com/coder/websocket"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

var (
	errTooFast          = errors.New("too many messages, slow down")
	errUnknownFrame     = errors.New("unknown frame type")
	errMalformedPayload = errors.New("malformed payload")
	errInvalidPayload   = errors.New("invalid payload")
)

const (
	// writeTimeout bounds a single outbound write.
	writeTimeout = 10 * time.Second

	// sendBufferSize is the per-client outbound queue. A full queue marks
	// the client as slow and disconnects it.
	sendBufferSize = 64

	// sendsPerSecond rate-limits message submissions per connection.
	sendsPerSecond = 5
)

// Client is a single websocket connection joined to one room.
type Client struct {
	ID          string
	UserID      string
	DisplayName string
	Room        string

	conn        *websocket.Conn
	send        chan []byte
	bridge      *Bridge
	limiter     *rate.Limiter
	closeReason string
}

// Handler upgrades HTTP requests to chat websocket connections. Identity is
// injected by the caller rather than read from ambient state.
type Handler struct {
	bridge    *Bridge
	publisher pubsub.Publisher
	validate  *validator.Validate
}

// NewHandler creates a websocket handler bound to the bridge.
func NewHandler(bridge *Bridge, publisher pubsub.Publisher) *Handler {
	return &Handler{
		bridge:    bridge,
		publisher: publisher,
		validate:  validator.New(),
	}
}

// Serve accepts the websocket for the given identity and room and runs the
// connection until it closes. It blocks for the lifetime of the connection.
func (h *Handler) Serve(c echo.Context, userID, displayName, room string) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "websocket upgrade failed")
	}

	client := &Client{
		ID:          uuid.New().String(),
		UserID:      userID,
		DisplayName: displayName,
		Room:        room,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		bridge:      h.bridge,
		limiter:     rate.NewLimiter(rate.Limit(sendsPerSecond), sendsPerSecond),
	}

	h.bridge.register <- client

	ctx := c.Request().Context()
	go client.writePump(ctx)
	client.readPump(ctx, h)
	return nil
}

// Close terminates the connection with the given reason.
func (c *Client) Close(reason string) {
	c.closeReason = reason
	c.conn.Close(websocket.StatusPolicyViolation, reason)
}

// readPump pumps frames from the websocket to the pub/sub bus. It is the
// only reader on the connection.
func (c *Client) readPump(ctx context.Context, h *Handler) {
	defer func() {
		c.bridge.unregister <- c
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(1 << 16)

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				c.closeReason = "client closed"
			} else {
				c.closeReason = "read error"
				slog.Debug("Websocket read ended", "client_id", c.ID, "error", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.sendError("malformed frame")
			continue
		}

		if err := c.handleFrame(ctx, h, &frame); err != nil {
			c.sendError(err.Error())
		}
	}
}

func (c *Client) handleFrame(ctx context.Context, h *Handler, frame *Frame) error {
	switch frame.Type {
	case FrameSend:
		if !c.limiter.Allow() {
			return errTooFast
		}
		var payload SendPayload
		if err := decodeAndValidate(h.validate, frame.Payload, &payload); err != nil {
			return err
		}
		return pubsub.Publish(ctx, h.publisher, chat.TopicMessageSubmitted, chat.MessageSubmitted{
			Room:     c.Room,
			Author:   c.DisplayName,
			AuthorID: c.UserID,
			Text:     payload.Text,
		})

	case FrameEdit:
		var payload EditPayload
		if err := decodeAndValidate(h.validate, frame.Payload, &payload); err != nil {
			return err
		}
		return pubsub.Publish(ctx, h.publisher, chat.TopicMessageEdited, chat.MessageEdited{
			Room:      c.Room,
			MessageID: payload.MessageID,
			AuthorID:  c.UserID,
			Text:      payload.Text,
		})

	case FrameDelete:
		var payload DeletePayload
		if err := decodeAndValidate(h.validate, frame.Payload, &payload); err != nil {
			return err
		}
		return pubsub.Publish(ctx, h.publisher, chat.TopicMessageDeleted, chat.MessageDeleted{
			Room:      c.Room,
			MessageID: payload.MessageID,
			AuthorID:  c.UserID,
		})

	case FrameVisibility:
		var payload VisibilityPayload
		if err := decodeAndValidate(h.validate, frame.Payload, &payload); err != nil {
			return err
		}
		reports := make([]chat.VisibilityReport, 0, len(payload.Reports))
		for _, entry := range payload.Reports {
			reports = append(reports, chat.VisibilityReport{
				MessageID: entry.MessageID,
				Ratio:     entry.Ratio,
			})
		}
		return pubsub.Publish(ctx, h.publisher, chat.TopicVisibilityReported, chat.VisibilityReported{
			Room:    c.Room,
			UserID:  c.UserID,
			Reports: reports,
		})

	case FrameTyping:
		// Typing indicators are fan-out only; no store interaction.
		c.bridge.BroadcastRoom(c.Room, &Frame{Type: FrameTyping, Payload: mustRaw(map[string]string{
			"userId": c.UserID,
			"author": c.DisplayName,
		})})
		return nil

	default:
		return errUnknownFrame
	}
}

// writePump pumps frames from the bridge to the websocket. It is the only
// writer on the connection.
func (c *Client) writePump(ctx context.Context) {
	for payload := range c.send {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := c.conn.Write(writeCtx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			slog.Debug("Websocket write failed", "client_id", c.ID, "error", err)
			return
		}
	}
}

func (c *Client) sendError(message string) {
	frame, err := NewFrame(FrameError, ErrorPayload{Message: message})
	if err != nil {
		return
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func decodeAndValidate(v *validator.Validate, raw json.RawMessage, out interface{}) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return errMalformedPayload
	}
	if err := v.Struct(out); err != nil {
		return errInvalidPayload
	}
	return nil
}

func mustRaw(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
