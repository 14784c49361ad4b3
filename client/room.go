package client

import (
	"encoding/json"
	"sync"

	"github.com/chattersphere/chattersphere/internal/chat"
	"github.com/chattersphere/chattersphere/internal/presence"
	ws "github.com/chattersphere/chattersphere/internal/websocket"
	"github.com/gorilla/websocket"
)

// RoomConn is a live connection to one room. Snapshots, presence rosters,
// and server errors arrive on their channels; all channels close when the
// connection ends.
type RoomConn struct {
	room string
	conn *websocket.Conn

	writeMu sync.Mutex

	snapshots chan []chat.Message
	presences chan presence.RosterUpdate
	errs      chan string
	done      chan struct{}
	closeOnce sync.Once
}

// Room returns the room this connection is joined to.
func (rc *RoomConn) Room() string {
	return rc.room
}

// Snapshots delivers the full ordered room state on every change.
func (rc *RoomConn) Snapshots() <-chan []chat.Message {
	return rc.snapshots
}

// Presence delivers the online roster on every presence change.
func (rc *RoomConn) Presence() <-chan presence.RosterUpdate {
	return rc.presences
}

// Errors delivers server-reported operation failures.
func (rc *RoomConn) Errors() <-chan string {
	return rc.errs
}

// Done is closed when the connection ends.
func (rc *RoomConn) Done() <-chan struct{} {
	return rc.done
}

// Send posts a message to the room.
func (rc *RoomConn) Send(text string) error {
	return rc.writeFrame(ws.FrameSend, ws.SendPayload{Text: text})
}

// Edit rewrites one of the caller's messages. The server rejects edits more
// than five minutes after the message was created.
func (rc *RoomConn) Edit(messageID, text string) error {
	return rc.writeFrame(ws.FrameEdit, ws.EditPayload{MessageID: messageID, Text: text})
}

// Delete removes one of the caller's messages.
func (rc *RoomConn) Delete(messageID string) error {
	return rc.writeFrame(ws.FrameDelete, ws.DeletePayload{MessageID: messageID})
}

// ReportVisibility reports how much of each rendered message is visible,
// driving seen-marking on the server.
func (rc *RoomConn) ReportVisibility(reports []chat.VisibilityReport) error {
	entries := make([]ws.VisibilityEntry, 0, len(reports))
	for _, r := range reports {
		entries = append(entries, ws.VisibilityEntry{MessageID: r.MessageID, Ratio: r.Ratio})
	}
	return rc.writeFrame(ws.FrameVisibility, ws.VisibilityPayload{Reports: entries})
}

// Typing broadcasts a typing indicator to the room.
func (rc *RoomConn) Typing() error {
	return rc.writeFrame(ws.FrameTyping, struct{}{})
}

// Close ends the connection gracefully.
func (rc *RoomConn) Close() error {
	var err error
	rc.closeOnce.Do(func() {
		rc.writeMu.Lock()
		err = rc.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		rc.writeMu.Unlock()
		rc.conn.Close()
	})
	return err
}

func (rc *RoomConn) writeFrame(frameType string, payload interface{}) error {
	frame, err := ws.NewFrame(frameType, payload)
	if err != nil {
		return err
	}

	rc.writeMu.Lock()
	defer rc.writeMu.Unlock()
	return rc.conn.WriteJSON(frame)
}

func (rc *RoomConn) readLoop() {
	defer func() {
		close(rc.snapshots)
		close(rc.presences)
		close(rc.errs)
		close(rc.done)
		rc.conn.Close()
	}()

	for {
		var frame ws.Frame
		if err := rc.conn.ReadJSON(&frame); err != nil {
			return
		}

		switch frame.Type {
		case ws.FrameSnapshot:
			var payload struct {
				Room     string         `json:"room"`
				Messages []chat.Message `json:"messages"`
			}
			if err := json.Unmarshal(frame.Payload, &payload); err != nil {
				continue
			}
			select {
			case rc.snapshots <- payload.Messages:
			default:
				// Drop stale snapshots; the next one supersedes them anyway.
			}

		case ws.FramePresence:
			var update presence.RosterUpdate
			if err := json.Unmarshal(frame.Payload, &update); err != nil {
				continue
			}
			select {
			case rc.presences <- update:
			default:
			}

		case ws.FrameError:
			var payload ws.ErrorPayload
			if err := json.Unmarshal(frame.Payload, &payload); err != nil {
				continue
			}
			select {
			case rc.errs <- payload.Message:
			default:
			}

		default:
			// Typing indicators and unknown frame types are ignored for
			// forward compatibility.
		}
	}
}
