package main

import (
	"github.com/segmentio/kafka-go"

	"github.com/mahaj/community-chat/pkg/config"
)

// newReader joins the projector's consumer group on the message topic.
// Offsets are committed explicitly after each record is projected.
func newReader(cfg config.Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokerList(),
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
}
