package pubsub

import (
	"context"
	"encoding/json"
)

// Event[T] pairs a topic name with a payload type so publishers and
// subscribers agree on the wire shape at compile time.
type Event[T any] struct {
	topicName string
}

// NewEvent creates a typed event for the given topic name.
func NewEvent[T any](name string) Event[T] {
	return Event[T]{topicName: name}
}

// Name returns the topic name.
func (e Event[T]) Name() string {
	return e.topicName
}

// Publish sends a typed event. The compiler ensures 'payload' matches 'T'.
func Publish[T any](ctx context.Context, p Publisher, event Event[T], payload T) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return p.Publish(ctx, Message{
		Topic:   event.Name(),
		Payload: data,
	})
}

// SubscribeTyped attaches a handler that receives the decoded payload.
// Messages that fail to decode are logged by the underlying handler contract
// and dropped rather than redelivered forever.
func SubscribeTyped[T any](ctx context.Context, s Subscriber, event Event[T], handler func(ctx context.Context, payload T) error) error {
	return s.Subscribe(ctx, event.Name(), func(ctx context.Context, msg Message) error {
		var payload T
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return err
		}
		return handler(ctx, payload)
	})
}
