package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/gocql/gocql"

	"github.com/mahaj/community-chat/pkg/db"
	apperrors "github.com/mahaj/community-chat/pkg/errors"
	"github.com/mahaj/community-chat/pkg/model"
	"github.com/mahaj/community-chat/pkg/snowflake"
)

const (
	insertMessage  = `INSERT INTO messages (community, id, user_id, author_name, content, sent_at) VALUES (?, ?, ?, ?, ?, ?)`
	selectMessages = `SELECT id, user_id, author_name, content, sent_at FROM messages WHERE community = ?`
)

// ScyllaStore keeps messages in the `messages` table, clustered by snowflake id
// ascending so a partition scan is already in arrival order.
type ScyllaStore struct {
	session *db.Session
	ids     IDGenerator
	log     *slog.Logger
}

func NewScyllaStore(session *db.Session, ids IDGenerator, log *slog.Logger) *ScyllaStore {
	return &ScyllaStore{session: session, ids: ids, log: log}
}

func (s *ScyllaStore) Append(ctx context.Context, msg model.ChatMessage) (model.StoredMessage, error) {
	id := s.ids.Generate()
	stored := model.StoredMessage{ID: id, ChatMessage: msg, SentAt: snowflake.Time(id)}

	err := s.session.Query(insertMessage,
		msg.Community, id, msg.AuthorID, msg.AuthorName, msg.Text, stored.SentAt,
	).WithContext(ctx).Exec()
	if err != nil {
		s.log.Error("Failed to save message to ScyllaDB", "community", msg.Community, "error", err)
		return model.StoredMessage{}, apperrors.ErrPersistence(err)
	}

	s.log.Debug("Message saved to ScyllaDB", "community", msg.Community, "id", id)
	return stored, nil
}

func (s *ScyllaStore) History(ctx context.Context, community string) ([]model.StoredMessage, error) {
	iter := s.session.Query(selectMessages, community).WithContext(ctx).Consistency(gocql.Quorum).Iter()

	messages := make([]model.StoredMessage, 0, iter.NumRows())
	var (
		id                    int64
		userID, name, content string
		sentAt                time.Time
	)
	for iter.Scan(&id, &userID, &name, &content, &sentAt) {
		messages = append(messages, model.StoredMessage{
			ID: id,
			ChatMessage: model.ChatMessage{
				Community:  community,
				Text:       content,
				AuthorName: name,
				AuthorID:   userID,
			},
			SentAt: sentAt.UTC(),
		})
	}

	if err := iter.Close(); err != nil {
		s.log.Error("Failed to iterate messages", "community", community, "error", err)
		return nil, apperrors.ErrPersistence(err)
	}
	return messages, nil
}
