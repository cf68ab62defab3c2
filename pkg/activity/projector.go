//go:generate go run go.uber.org/mock/mockgen -source=projector.go -destination=../mocks/mock_reader.go -package=mocks
package activity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mahaj/community-chat/pkg/events"
)

const retryDelay = time.Second

// Reader is the part of *kafka.Reader the projector uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Projector consumes the persisted-message stream and folds it into a Store.
type Projector struct {
	reader Reader
	store  Store
	log    *slog.Logger
}

func NewProjector(reader Reader, store Store, log *slog.Logger) *Projector {
	return &Projector{reader: reader, store: store, log: log}
}

// Run consumes until ctx is cancelled. Records that cannot be decoded or
// projected are logged and committed anyway.
func (p *Projector) Run(ctx context.Context) error {
	for {
		m, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.log.Warn("Error reading message, retrying", "error", err, "delay", retryDelay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryDelay):
			}
			continue
		}

		p.Handle(ctx, m)

		if err := p.reader.CommitMessages(ctx, m); err != nil && !errors.Is(err, context.Canceled) {
			p.log.Warn("Failed to commit offset", "partition", m.Partition, "offset", m.Offset, "error", err)
		}
	}
}

// Handle projects a single record.
func (p *Projector) Handle(ctx context.Context, m kafka.Message) {
	msg, err := events.Decode(m)
	if err != nil {
		p.log.Error("Skipping undecodable record", "partition", m.Partition, "offset", m.Offset, "error", err)
		return
	}
	if err := p.store.Record(ctx, msg); err != nil {
		p.log.Error("Failed to project message", "community", msg.Community, "id", msg.ID, "error", err)
		return
	}
	p.log.Debug("Message projected", "community", msg.Community, "id", msg.ID)
}

func (p *Projector) Close() error {
	return p.reader.Close()
}
