//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_message_store.go -package=mocks
package store

import (
	"context"

	"github.com/mahaj/community-chat/pkg/model"
)

// MessageStore is the append-only chat log, partitioned by community.
type MessageStore interface {
	// Append persists msg and returns it with its id and arrival time.
	// Errors wrap apperrors.ErrPersistence.
	Append(ctx context.Context, msg model.ChatMessage) (model.StoredMessage, error)
	// History returns every message of community, oldest first.
	History(ctx context.Context, community string) ([]model.StoredMessage, error)
}

// IDGenerator hands out time-ordered ids; *snowflake.Node satisfies it.
type IDGenerator interface {
	Generate() int64
}
