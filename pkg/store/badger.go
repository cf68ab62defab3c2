package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	apperrors "github.com/mahaj/community-chat/pkg/errors"
	"github.com/mahaj/community-chat/pkg/model"
	"github.com/mahaj/community-chat/pkg/snowflake"
)

// BadgerStore is the embedded driver. Keys are "msg:{len}:{community}:{id}" with
// the id zero padded to 19 digits, so a prefix scan yields arrival order. The
// length keeps "art" from matching the prefix of "art:x".
type BadgerStore struct {
	db  *badger.DB
	ids IDGenerator
	log *slog.Logger
}

func NewBadgerStore(db *badger.DB, ids IDGenerator, log *slog.Logger) *BadgerStore {
	return &BadgerStore{db: db, ids: ids, log: log}
}

func messageKey(community string, id int64) []byte {
	return []byte(fmt.Sprintf("msg:%d:%s:%019d", len(community), community, id))
}

func communityPrefix(community string) []byte {
	return []byte(fmt.Sprintf("msg:%d:%s:", len(community), community))
}

func (s *BadgerStore) Append(_ context.Context, msg model.ChatMessage) (model.StoredMessage, error) {
	id := s.ids.Generate()
	stored := model.StoredMessage{ID: id, ChatMessage: msg, SentAt: snowflake.Time(id)}

	value, err := json.Marshal(stored)
	if err != nil {
		return model.StoredMessage{}, apperrors.ErrPersistence(err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg.Community, id), value)
	})
	if err != nil {
		s.log.Error("Failed to save message to BadgerDB", "community", msg.Community, "error", err)
		return model.StoredMessage{}, apperrors.ErrPersistence(err)
	}
	return stored, nil
}

func (s *BadgerStore) History(_ context.Context, community string) ([]model.StoredMessage, error) {
	messages := make([]model.StoredMessage, 0)
	prefix := communityPrefix(community)

	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var stored model.StoredMessage
				if err := json.Unmarshal(value, &stored); err != nil {
					return err
				}
				messages = append(messages, stored)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("Failed to read messages from BadgerDB", "community", community, "error", err)
		return nil, apperrors.ErrPersistence(err)
	}
	return messages, nil
}
