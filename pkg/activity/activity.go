//go:generate go run go.uber.org/mock/mockgen -source=activity.go -destination=../mocks/mock_activity.go -package=mocks
package activity

import (
	"context"
	"time"

	"github.com/mahaj/community-chat/pkg/model"
)

// Activity summarizes what has been said in a community.
type Activity struct {
	Community     string    `json:"community"`
	MessageCount  int64     `json:"messageCount"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	LastAuthor    string    `json:"lastAuthor"`
}

// Store keeps the activity projection.
type Store interface {
	Record(ctx context.Context, msg model.StoredMessage) error
	Get(ctx context.Context, community string) (Activity, error)
}
