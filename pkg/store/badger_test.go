package store

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	apperrors "github.com/mahaj/community-chat/pkg/errors"
	"github.com/mahaj/community-chat/pkg/model"
	"github.com/mahaj/community-chat/pkg/snowflake"
)

func openBadger(t *testing.T) (*BadgerStore, *badger.DB) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewBadgerStore(db, node, logs.GetLoggerFromLevel(slog.LevelError)), db
}

func newBadgerStore(t *testing.T) *BadgerStore {
	s, db := openBadger(t)
	t.Cleanup(func() { _ = db.Close() })
	return s
}

func TestBadgerStore_AppendThenHistory(t *testing.T) {
	req := require.New(t)
	s := newBadgerStore(t)
	ctx := context.Background()

	var appended []model.StoredMessage
	for _, text := range []string{"first", "second", "third"} {
		stored, err := s.Append(ctx, model.ChatMessage{Community: "art", Text: text, AuthorName: "Ada", AuthorID: "u1"})
		req.NoError(err)
		req.NotZero(stored.ID)
		req.False(stored.SentAt.IsZero())
		appended = append(appended, stored)
	}

	history, err := s.History(ctx, "art")
	req.NoError(err)
	req.Equal(appended, history)

	for i := 1; i < len(history); i++ {
		req.Greater(history[i].ID, history[i-1].ID)
		req.False(history[i].SentAt.Before(history[i-1].SentAt))
	}
}

func TestBadgerStore_HistoryIsIdempotent(t *testing.T) {
	req := require.New(t)
	s := newBadgerStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, model.ChatMessage{Community: "art", Text: "hello", AuthorName: "Ada", AuthorID: "u1"})
	req.NoError(err)

	first, err := s.History(ctx, "art")
	req.NoError(err)
	second, err := s.History(ctx, "art")
	req.NoError(err)
	req.Equal(first, second)
}

func TestBadgerStore_CommunitiesAreIsolated(t *testing.T) {
	req := require.New(t)
	s := newBadgerStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, model.ChatMessage{Community: "art", Text: "a", AuthorID: "u1"})
	req.NoError(err)
	_, err = s.Append(ctx, model.ChatMessage{Community: "art:x", Text: "b", AuthorID: "u1"})
	req.NoError(err)
	_, err = s.Append(ctx, model.ChatMessage{Community: "music", Text: "c", AuthorID: "u1"})
	req.NoError(err)

	history, err := s.History(ctx, "art")
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("a", history[0].Text)

	empty, err := s.History(ctx, "nobody-here")
	req.NoError(err)
	req.NotNil(empty)
	req.Empty(empty)
}

func TestBadgerStore_ClosedDatabaseIsPersistenceError(t *testing.T) {
	req := require.New(t)
	s, db := openBadger(t)
	req.NoError(db.Close())

	_, err := s.Append(context.Background(), model.ChatMessage{Community: "art", Text: "x", AuthorID: "u1"})
	req.Error(err)
	req.Equal(apperrors.CodeUnavailable, apperrors.CodeOf(err))
}
