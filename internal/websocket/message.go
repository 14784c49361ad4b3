package websocket

import "encoding/json"

// Frame is the envelope for every message crossing a chat websocket, in
// both directions. Type selects which payload fields are meaningful.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound frame types (client -> server).
const (
	FrameSend       = "send"
	FrameEdit       = "edit"
	FrameDelete     = "delete"
	FrameVisibility = "visibility"
	FrameTyping     = "typing"
)

// Outbound frame types (server -> client).
const (
	FrameSnapshot = "snapshot"
	FramePresence = "presence"
	FrameError    = "error"
)

// SendPayload is the body of a FrameSend.
type SendPayload struct {
	Text string `json:"text" validate:"required,max=4000"`
}

// EditPayload is the body of a FrameEdit.
type EditPayload struct {
	MessageID string `json:"messageId" validate:"required,max=128"`
	Text      string `json:"text" validate:"required,max=4000"`
}

// DeletePayload is the body of a FrameDelete.
type DeletePayload struct {
	MessageID string `json:"messageId" validate:"required,max=128"`
}

// VisibilityPayload is the body of a FrameVisibility.
type VisibilityPayload struct {
	Reports []VisibilityEntry `json:"reports" validate:"required,dive"`
}

// VisibilityEntry mirrors chat.VisibilityReport on the wire.
type VisibilityEntry struct {
	MessageID string  `json:"messageId" validate:"required,max=128"`
	Ratio     float64 `json:"ratio" validate:"gte=0,lte=1"`
}

// ErrorPayload is the body of a FrameError.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewFrame marshals a payload into a Frame, panicking only on programmer
// error (unmarshalable payloads).
func NewFrame(frameType string, payload interface{}) (*Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{Type: frameType, Payload: data}, nil
}
