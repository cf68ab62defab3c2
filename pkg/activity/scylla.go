package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/mahaj/community-chat/pkg/db"
	"github.com/mahaj/community-chat/pkg/model"
)

const (
	incrementCount = `UPDATE community_counters SET message_count = message_count + 1 WHERE community = ?`
	upsertLatest   = `INSERT INTO community_activity (community, last_message_at, last_author) VALUES (?, ?, ?) USING TIMESTAMP ?`
	selectCount    = `SELECT message_count FROM community_counters WHERE community = ?`
	selectLatest   = `SELECT last_message_at, last_author FROM community_activity WHERE community = ?`
)

// ScyllaStore projects messages into community_counters and community_activity.
type ScyllaStore struct {
	session *db.Session
}

func NewScyllaStore(session *db.Session) *ScyllaStore {
	return &ScyllaStore{session: session}
}

// Record counts msg and makes it the latest message unless a later one was
// already recorded. The write timestamp is the message time, so replays and
// out-of-order deliveries cannot move last_message_at backwards.
func (s *ScyllaStore) Record(ctx context.Context, msg model.StoredMessage) error {
	if err := s.session.Query(incrementCount, msg.Community).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("increment count of %s: %w", msg.Community, err)
	}
	err := s.session.Query(upsertLatest, msg.Community, msg.SentAt, msg.AuthorName, msg.SentAt.UnixMicro()).
		WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("update latest of %s: %w", msg.Community, err)
	}
	return nil
}

// Get returns a zero Activity for communities nobody wrote in yet.
func (s *ScyllaStore) Get(ctx context.Context, community string) (Activity, error) {
	activity := Activity{Community: community}

	err := s.session.Query(selectCount, community).WithContext(ctx).Scan(&activity.MessageCount)
	if err != nil && !errors.Is(err, gocql.ErrNotFound) {
		return Activity{}, fmt.Errorf("read count of %s: %w", community, err)
	}

	var last time.Time
	err = s.session.Query(selectLatest, community).WithContext(ctx).Scan(&last, &activity.LastAuthor)
	if err != nil && !errors.Is(err, gocql.ErrNotFound) {
		return Activity{}, fmt.Errorf("read latest of %s: %w", community, err)
	}
	if !last.IsZero() {
		activity.LastMessageAt = last.UTC()
	}
	return activity, nil
}
