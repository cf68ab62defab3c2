//go:generate go run go.uber.org/mock/mockgen -source=publisher.go -destination=../mocks/mock_publisher.go -package=mocks
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mahaj/community-chat/pkg/model"
)

// Publisher announces messages that were persisted. It is not a delivery path:
// members of a community are reached through the relay only.
type Publisher interface {
	Publish(ctx context.Context, msg model.StoredMessage) error
	Close() error
}

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer MessageWriter
}

// batchTimeout keeps a lone record from waiting out kafka-go's 1s default.
const batchTimeout = 5 * time.Millisecond

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return NewPublisherWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batchTimeout,
		MaxAttempts:            3,
		AllowAutoTopicCreation: true,
	})
}

func NewPublisherWithWriter(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Publish keys records by community so one community stays on one partition.
func (p *KafkaPublisher) Publish(ctx context.Context, msg model.StoredMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message %d: %w", msg.ID, err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Community),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("write message %d to kafka: %w", msg.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop drops every message; used when KAFKA_BROKERS is empty.
type Nop struct{}

func (Nop) Publish(context.Context, model.StoredMessage) error { return nil }
func (Nop) Close() error                                       { return nil }

// Decode parses a record written by KafkaPublisher.
func Decode(m kafka.Message) (model.StoredMessage, error) {
	var msg model.StoredMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return model.StoredMessage{}, fmt.Errorf("unmarshal message at offset %d: %w", m.Offset, err)
	}
	return msg, nil
}
