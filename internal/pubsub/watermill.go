package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// WatermillBridge implements the Publisher and Subscriber interfaces using
// watermill's in-memory GoChannel transport. All components of the chat
// service (websocket bridge, presence tracker, bot dispatcher, delivery
// marker) communicate through it.
type WatermillBridge struct {
	pub    message.Publisher
	sub    message.Subscriber
	logger watermill.LoggerAdapter
}

const (
	// Metadata keys used to transfer our Message structure fields through watermill's message.
	metaKeyUserID = "user_id"
	metaKeyTopic  = "topic"
)

// NewWatermillBridge initializes the in-memory Pub/Sub system.
func NewWatermillBridge() *WatermillBridge {
	logger := watermill.NewStdLogger(false, false)
	goChannel := gochannel.NewGoChannel(
		gochannel.Config{},
		logger,
	)

	return &WatermillBridge{
		pub:    goChannel,
		sub:    goChannel,
		logger: logger,
	}
}

func mapToWatermillMessage(msg Message) *message.Message {
	wmMsg := message.NewMessage(watermill.NewUUID(), msg.Payload)

	wmMsg.Metadata.Set(metaKeyUserID, msg.UserID)
	wmMsg.Metadata.Set(metaKeyTopic, msg.Topic)

	for k, v := range msg.Metadata {
		wmMsg.Metadata.Set(k, v)
	}

	return wmMsg
}

func mapToPubSubMessage(wmMsg *message.Message) Message {
	userID := wmMsg.Metadata.Get(metaKeyUserID)
	topic := wmMsg.Metadata.Get(metaKeyTopic)

	metadata := make(map[string]string)
	for k, v := range wmMsg.Metadata {
		if k != metaKeyUserID && k != metaKeyTopic {
			metadata[k] = v
		}
	}

	return Message{
		Topic:    topic,
		UserID:   userID,
		Payload:  wmMsg.Payload,
		Metadata: metadata,
	}
}

// Publish implements the Publisher interface.
func (wb *WatermillBridge) Publish(ctx context.Context, msg Message) error {
	wmMsg := mapToWatermillMessage(msg)
	return wb.pub.Publish(msg.Topic, wmMsg)
}

// Subscribe implements the Subscriber interface. It returns once the
// subscription is active; message processing continues in the background
// until the context is canceled.
func (wb *WatermillBridge) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := wb.sub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for wmMsg := range messages {
			msg := mapToPubSubMessage(wmMsg)

			if err := handler(ctx, msg); err != nil {
				slog.Error("Failed to handle message", "topic", topic, "msg_id", wmMsg.UUID, "error", err)
				wmMsg.Nack()
			} else {
				wmMsg.Ack()
			}
		}
		slog.Debug("Subscription message loop ended", "topic", topic)
	}()

	return nil
}

// Close implements the Publisher and Subscriber interface to shut down the bridge.
func (wb *WatermillBridge) Close() error {
	return wb.sub.Close()
}
