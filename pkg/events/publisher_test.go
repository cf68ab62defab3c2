package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mahaj/community-chat/pkg/events"
	"github.com/mahaj/community-chat/pkg/mocks"
	"github.com/mahaj/community-chat/pkg/model"
)

func TestPublishKeysByCommunityAndDecodes(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	writer := mocks.NewMockMessageWriter(ctrl)
	msg := model.StoredMessage{
		ID:          7,
		ChatMessage: model.ChatMessage{Community: "art", Text: "hello", AuthorName: "Ada", AuthorID: "u1"},
		SentAt:      time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}

	var written kafka.Message
	writer.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...kafka.Message) error {
			req.Len(msgs, 1)
			written = msgs[0]
			return nil
		}).Times(1)
	writer.EXPECT().Close().Return(nil).Times(1)

	publisher := events.NewPublisherWithWriter(writer)
	req.NoError(publisher.Publish(context.Background(), msg))
	req.Equal("art", string(written.Key))

	decoded, err := events.Decode(written)
	req.NoError(err)
	req.Equal(msg, decoded)

	req.NoError(publisher.Close())
}

func TestPublishWrapsWriterError(t *testing.T) {
	ctrl := gomock.NewController(t)
	writer := mocks.NewMockMessageWriter(ctrl)
	writer.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Return(errors.New("leader not available"))

	err := events.NewPublisherWithWriter(writer).Publish(context.Background(), model.StoredMessage{ID: 9})
	require.ErrorContains(t, err, "write message 9 to kafka")
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := events.Decode(kafka.Message{Value: []byte("{"), Offset: 12})
	require.ErrorContains(t, err, "offset 12")
}
