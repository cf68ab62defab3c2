package activity_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mahaj/community-chat/pkg/activity"
	"github.com/mahaj/community-chat/pkg/mocks"
	"github.com/mahaj/community-chat/pkg/model"
)

func record(t *testing.T, offset int64, msg model.StoredMessage) kafka.Message {
	t.Helper()
	value, err := json.Marshal(msg)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(msg.Community), Value: value, Offset: offset}
}

func TestProjector_Run(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	reader := mocks.NewMockReader(ctrl)
	store := mocks.NewMockStore(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelError)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hello := model.StoredMessage{
		ID:          42,
		ChatMessage: model.ChatMessage{Community: "art", Text: "hello", AuthorName: "Ada", AuthorID: "u1"},
		SentAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	good := record(t, 1, hello)
	garbage := kafka.Message{Value: []byte("{"), Offset: 2}
	failing := record(t, 3, hello)

	gomock.InOrder(
		reader.EXPECT().FetchMessage(gomock.Any()).Return(good, nil),
		store.EXPECT().Record(gomock.Any(), hello).Return(nil),
		reader.EXPECT().CommitMessages(gomock.Any(), good).Return(nil),

		reader.EXPECT().FetchMessage(gomock.Any()).Return(garbage, nil),
		reader.EXPECT().CommitMessages(gomock.Any(), garbage).Return(nil),

		reader.EXPECT().FetchMessage(gomock.Any()).Return(failing, nil),
		store.EXPECT().Record(gomock.Any(), hello).Return(errors.New("no hosts available")),
		reader.EXPECT().CommitMessages(gomock.Any(), failing).Return(nil),

		reader.EXPECT().FetchMessage(gomock.Any()).DoAndReturn(func(context.Context) (kafka.Message, error) {
			cancel()
			return kafka.Message{}, context.Canceled
		}),
	)

	req.NoError(activity.NewProjector(reader, store, log).Run(ctx))
}

func TestProjector_RunStopsWhileRetrying(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := mocks.NewMockReader(ctrl)
	store := mocks.NewMockStore(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	reader.EXPECT().FetchMessage(gomock.Any()).DoAndReturn(func(context.Context) (kafka.Message, error) {
		time.AfterFunc(10*time.Millisecond, cancel)
		return kafka.Message{}, errors.New("broker unreachable")
	}).Times(1)

	done := make(chan error, 1)
	go func() {
		done <- activity.NewProjector(reader, store, logs.GetLoggerFromLevel(slog.LevelError)).Run(ctx)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("projector did not stop after cancellation")
	}
}
