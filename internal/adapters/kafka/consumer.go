package kafka

import (
	"context"
	"encoding/json"

	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"workspace-service/pkg/protocol"
)

// Dispatcher receives decoded change notifications. Implemented by the
// websocket hub.
type Dispatcher interface {
	Dispatch(event *protocol.WorkspaceEvent) error
	DispatchToUser(userID string, event *protocol.WorkspaceEvent) error
}

// Consumer reads change notifications produced by the persistence services
// and hands them to the dispatcher for fan-out. The consumer only relays; it
// never validates or stores payloads.
type Consumer struct {
	reader     *kafkago.Reader
	dispatcher Dispatcher
}

func NewConsumer(brokers []string, topic, groupID string, dispatcher Dispatcher) *Consumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	return &Consumer{
		reader:     reader,
		dispatcher: dispatcher,
	}
}

// Run consumes until ctx is cancelled. Malformed records are logged and
// skipped; they never stop the consumer.
func (c *Consumer) Run(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Kafka consumer shutting down")
				return
			}
			slog.Error("Failed to read kafka message", "error", err)
			continue
		}

		var env protocol.RelayEnvelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			slog.Error("Failed to decode change notification", "offset", msg.Offset, "error", err)
			continue
		}
		if env.Event == nil || !env.Event.Type.IsValid() {
			slog.Error("Dropping change notification without a valid event", "offset", msg.Offset)
			continue
		}

		if env.UserID != "" {
			err = c.dispatcher.DispatchToUser(env.UserID, env.Event)
		} else {
			err = c.dispatcher.Dispatch(env.Event)
		}
		if err != nil {
			slog.Error("Failed to dispatch change notification", "type", env.Event.Type, "error", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
