package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"workspace-service/pkg/protocol"
)

// InitKafkaProducer builds the synchronous producer used to hand change
// notifications from the persistence services to the dispatcher topic.
func InitKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	// Hash partitioning by key keeps per-workspace ordering.
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V2_0_0_0
	config.ClientID = "workspace-service"

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return producer, nil
}

// Producer publishes workspace events to the dispatcher topic.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducer(producer sarama.SyncProducer, topic string) *Producer {
	return &Producer{producer: producer, topic: topic}
}

// PublishEvent produces a workspace-scoped event, keyed by workspace ID so
// all events of one workspace land on one partition in order.
func (p *Producer) PublishEvent(event *protocol.WorkspaceEvent) error {
	return p.publish(event.WorkspaceID, &protocol.RelayEnvelope{Event: event})
}

// PublishUserEvent produces a user-scoped event, keyed by user ID.
func (p *Producer) PublishUserEvent(userID string, event *protocol.WorkspaceEvent) error {
	return p.publish(userID, &protocol.RelayEnvelope{UserID: userID, Event: event})
}

func (p *Producer) publish(key string, env *protocol.RelayEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("produce event: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
