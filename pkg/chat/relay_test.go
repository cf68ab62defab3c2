package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mahaj/community-chat/pkg/auth"
	apperrors "github.com/mahaj/community-chat/pkg/errors"
	"github.com/mahaj/community-chat/pkg/events"
	"github.com/mahaj/community-chat/pkg/metrics"
	"github.com/mahaj/community-chat/pkg/mocks"
	"github.com/mahaj/community-chat/pkg/model"
	"github.com/mahaj/community-chat/pkg/presence"
	"github.com/mahaj/community-chat/pkg/snowflake"
	"github.com/mahaj/community-chat/pkg/store"
)

type fixture struct {
	relay    *Relay
	registry *Registry
	store    store.MessageStore
	tokens   *auth.Tokens
	metrics  *metrics.Metrics
	users    map[string]model.UserIdentity
}

type fixtureOption func(*fixtureDeps)

type fixtureDeps struct {
	store     store.MessageStore
	presence  presence.Tracker
	publisher events.Publisher
}

func withStore(s store.MessageStore) fixtureOption {
	return func(d *fixtureDeps) { d.store = s }
}

func withPresence(p presence.Tracker) fixtureOption {
	return func(d *fixtureDeps) { d.presence = p }
}

func withPublisher(p events.Publisher) fixtureOption {
	return func(d *fixtureDeps) { d.publisher = p }
}

func newBadgerMessageStore(t *testing.T, log *slog.Logger) store.MessageStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return store.NewBadgerStore(db, node, log)
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelError)
	ctrl := gomock.NewController(t)

	f := &fixture{
		registry: NewRegistry(),
		tokens:   auth.NewTokens("secret", time.Hour),
		metrics:  metrics.New(prometheus.NewRegistry()),
		users: map[string]model.UserIdentity{
			"u1": {ID: "u1", DisplayName: "Ada"},
			"u2": {ID: "u2", DisplayName: "Bob"},
			"u3": {ID: "u3", DisplayName: "Cy"},
		},
	}

	lookup := mocks.NewMockIdentityLookup(ctrl)
	lookup.EXPECT().FindIdentity(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id string) (model.UserIdentity, error) {
			if u, ok := f.users[id]; ok {
				return u, nil
			}
			return model.UserIdentity{}, apperrors.ErrUserNotFound
		}).AnyTimes()

	deps := fixtureDeps{presence: presence.Nop{}, publisher: events.Nop{}}
	for _, opt := range opts {
		opt(&deps)
	}
	if deps.store == nil {
		deps.store = newBadgerMessageStore(t, log)
	}
	f.store = deps.store

	f.relay = NewRelay(
		auth.NewAuthenticator(f.tokens, lookup, log),
		deps.store, f.registry, deps.presence, deps.publisher, f.metrics,
		Options{MaxMessageLength: 20, EventTimeout: time.Second},
		log,
	)
	return f
}

func (f *fixture) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := f.tokens.GenerateToken(userID)
	require.NoError(t, err)
	return token
}

func (f *fixture) connect() *Client {
	c := NewClient(nil, 16)
	f.relay.Connect(c)
	return c
}

func (f *fixture) join(t *testing.T, c *Client, community, token string) {
	t.Helper()
	frame, err := model.Encode(model.EventJoin, model.JoinRequest{Community: community, Token: token})
	require.NoError(t, err)
	f.relay.Dispatch(c, frame)
}

func (f *fixture) send(t *testing.T, c *Client, community, text, token string) {
	t.Helper()
	frame, err := model.Encode(model.EventMessage, model.MessageRequest{Community: community, Message: text, Token: token})
	require.NoError(t, err)
	f.relay.Dispatch(c, frame)
}

// drain returns every frame queued for c so far.
func drain(t *testing.T, c *Client) []model.Envelope {
	t.Helper()
	var frames []model.Envelope
	for {
		select {
		case raw := <-c.send:
			var env model.Envelope
			require.NoError(t, json.Unmarshal(raw, &env))
			frames = append(frames, env)
		default:
			return frames
		}
	}
}

func decode[T any](t *testing.T, env model.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func requireSingleError(t *testing.T, c *Client, message string) {
	t.Helper()
	frames := drain(t, c)
	require.Len(t, frames, 1)
	require.Equal(t, model.EventError, frames[0].Event)
	require.Equal(t, message, decode[model.ErrorPayload](t, frames[0]).Message)
}

func TestRelay_ArtScenario(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	a, b, bystander := f.connect(), f.connect(), f.connect()
	f.join(t, bystander, "music", f.token(t, "u3"))
	drain(t, bystander)

	f.join(t, a, "art", f.token(t, "u1"))
	frames := drain(t, a)
	req.Len(frames, 1)
	req.Equal(model.EventLoadMessages, frames[0].Event)
	req.JSONEq(`[]`, string(frames[0].Data))

	f.send(t, a, "art", "hello", f.token(t, "u1"))
	frames = drain(t, a)
	req.Len(frames, 1)
	req.Equal(model.EventNewMessage, frames[0].Event)
	req.Equal(model.NewMessage{Message: "hello", Name: "Ada", UserID: "u1"}, decode[model.NewMessage](t, frames[0]))
	req.Empty(drain(t, bystander))

	f.join(t, b, "art", f.token(t, "u2"))
	frames = drain(t, b)
	req.Len(frames, 1)
	req.Equal(model.EventLoadMessages, frames[0].Event)
	history := decode[[]model.StoredMessage](t, frames[0])
	req.Len(history, 1)
	req.Equal("hello", history[0].Text)
	req.Equal("Ada", history[0].AuthorName)
	req.Equal("u1", history[0].AuthorID)
	req.Equal("art", history[0].Community)

	req.Empty(drain(t, a), "a join is never broadcast")
}

func TestRelay_MessageReachesEveryMemberExactlyOnce(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	sender, peer, outsider := f.connect(), f.connect(), f.connect()
	f.join(t, sender, "art", f.token(t, "u1"))
	f.join(t, peer, "art", f.token(t, "u2"))
	f.join(t, peer, "art", f.token(t, "u2"))
	drain(t, sender)
	drain(t, peer)

	f.send(t, sender, "art", "  hi all  ", f.token(t, "u1"))

	for _, c := range []*Client{sender, peer} {
		frames := drain(t, c)
		req.Len(frames, 1)
		req.Equal(model.NewMessage{Message: "hi all", Name: "Ada", UserID: "u1"}, decode[model.NewMessage](t, frames[0]))
	}
	req.Empty(drain(t, outsider))

	history, err := f.store.History(context.Background(), "art")
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("hi all", history[0].Text)
	req.Equal(float64(1), testutil.ToFloat64(f.metrics.PersistedMessages))
}

func TestRelay_InvalidTokensNeverMutate(t *testing.T) {
	f := newFixture(t)
	expired := auth.NewTokens("secret", -time.Minute)
	expiredToken, err := expired.GenerateToken("u1")
	require.NoError(t, err)

	cases := map[string]string{
		"missing":      "",
		"garbage":      "not-a-token",
		"expired":      expiredToken,
		"unknown user": f.token(t, "ghost"),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			c, peer := f.connect(), f.connect()
			f.join(t, peer, "art", f.token(t, "u2"))
			drain(t, peer)

			f.join(t, c, "art", token)
			requireSingleError(t, c, "Authentication failed")
			req.Empty(f.registry.Communities(c))

			before, err := f.store.History(context.Background(), "art")
			req.NoError(err)

			f.send(t, c, "art", "sneaky", token)
			requireSingleError(t, c, "Authentication failed")
			req.Empty(drain(t, peer))

			after, err := f.store.History(context.Background(), "art")
			req.NoError(err)
			req.Equal(before, after)
		})
	}
}

func TestRelay_ExpiredTokenAfterJoinIsRejected(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	c := f.connect()
	f.join(t, c, "art", f.token(t, "u1"))
	drain(t, c)

	expiredToken, err := auth.NewTokens("secret", -time.Minute).GenerateToken("u1")
	req.NoError(err)

	f.send(t, c, "art", "late", expiredToken)
	requireSingleError(t, c, "Authentication failed")

	history, err := f.store.History(context.Background(), "art")
	req.NoError(err)
	req.Empty(history)
}

func TestRelay_RejectsInvalidMessages(t *testing.T) {
	f := newFixture(t)
	c := f.connect()
	f.join(t, c, "art", f.token(t, "u1"))
	drain(t, c)

	for name, text := range map[string]string{
		"empty":      "",
		"whitespace": "   \n\t ",
		"too long":   strings.Repeat("é", 21),
	} {
		t.Run(name, func(t *testing.T) {
			f.send(t, c, "art", text, f.token(t, "u1"))
			requireSingleError(t, c, "Invalid message")
		})
	}

	t.Run("missing community", func(t *testing.T) {
		f.send(t, c, "", "hello", f.token(t, "u1"))
		requireSingleError(t, c, "Invalid message")
	})

	history, err := f.store.History(context.Background(), "art")
	require.NoError(t, err)
	require.Empty(t, history)

	t.Run("longest accepted", func(t *testing.T) {
		f.send(t, c, "art", strings.Repeat("é", 20), f.token(t, "u1"))
		frames := drain(t, c)
		require.Len(t, frames, 1)
		require.Equal(t, model.EventNewMessage, frames[0].Event)
	})
}

func TestRelay_MalformedFrames(t *testing.T) {
	f := newFixture(t)
	c := f.connect()

	f.relay.Dispatch(c, []byte("{"))
	requireSingleError(t, c, "Invalid payload")

	f.relay.Dispatch(c, []byte(`{"event":"leave","data":{}}`))
	requireSingleError(t, c, "Unknown event")

	f.relay.Dispatch(c, []byte(`{"event":"join","data":"art"}`))
	requireSingleError(t, c, "Invalid payload")

	f.join(t, c, "", f.token(t, "u1"))
	requireSingleError(t, c, "Invalid payload")
	require.Empty(t, f.registry.Communities(c))
}

func TestRelay_PersistenceFailureIsNotBroadcast(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	messages := mocks.NewMockMessageStore(ctrl)
	messages.EXPECT().History(gomock.Any(), "art").Return(nil, nil).AnyTimes()
	messages.EXPECT().Append(gomock.Any(), gomock.Any()).
		Return(model.StoredMessage{}, apperrors.ErrPersistence(errors.New("no hosts available"))).Times(1)

	f := newFixture(t, withStore(messages))
	sender, peer := f.connect(), f.connect()
	f.join(t, sender, "art", f.token(t, "u1"))
	f.join(t, peer, "art", f.token(t, "u2"))
	drain(t, sender)
	drain(t, peer)

	f.send(t, sender, "art", "lost", f.token(t, "u1"))

	requireSingleError(t, sender, "Unable to send the message")
	req.Empty(drain(t, peer))
	req.Equal(float64(1), testutil.ToFloat64(f.metrics.Events.WithLabelValues("message", metrics.OutcomeFailed)))
}

func TestRelay_HistoryFailureOnJoin(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	messages := mocks.NewMockMessageStore(ctrl)
	messages.EXPECT().History(gomock.Any(), "art").
		Return(nil, apperrors.ErrPersistence(errors.New("timeout"))).Times(1)

	f := newFixture(t, withStore(messages))
	c := f.connect()
	f.join(t, c, "art", f.token(t, "u1"))

	requireSingleError(t, c, "Unable to join the room")
	req.Equal([]string{"art"}, f.registry.Communities(c))
}

func TestRelay_DisconnectLeavesEveryCommunity(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	gone, stays := f.connect(), f.connect()
	for _, community := range []string{"art", "music", "books"} {
		f.join(t, gone, community, f.token(t, "u1"))
	}
	f.join(t, stays, "art", f.token(t, "u2"))
	drain(t, gone)
	drain(t, stays)

	f.relay.Disconnect(gone)

	req.Empty(f.registry.Communities(gone))
	for _, community := range []string{"music", "books"} {
		req.Empty(f.registry.Members(community))
	}
	req.Equal([]*Client{stays}, f.registry.Members("art"))
	req.False(gone.Deliver([]byte("x")))

	f.send(t, stays, "art", "anyone?", f.token(t, "u2"))
	req.Len(drain(t, stays), 1)
	req.Empty(drain(t, gone))
	req.Equal(float64(1), testutil.ToFloat64(f.metrics.ConnectedClients))
}

func TestRelay_PresenceFollowsLastConnectionOfUser(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	tracker := mocks.NewMockTracker(ctrl)
	tracker.EXPECT().Add(gomock.Any(), "art", "u1").Return(nil).Times(2)

	var removed []string
	tracker.EXPECT().Remove(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, community, userID string) error {
			removed = append(removed, community+"/"+userID)
			return nil
		}).AnyTimes()
	f := newFixture(t, withPresence(tracker))

	first, second := f.connect(), f.connect()
	f.join(t, first, "art", f.token(t, "u1"))
	f.join(t, second, "art", f.token(t, "u1"))

	f.relay.Disconnect(first)
	req.Empty(removed, "another connection of u1 is still in art")

	f.relay.Disconnect(second)
	req.Equal([]string{"art/u1"}, removed)
}

func TestRelay_PresenceOutageDoesNotBlockJoin(t *testing.T) {
	ctrl := gomock.NewController(t)
	tracker := mocks.NewMockTracker(ctrl)
	tracker.EXPECT().Add(gomock.Any(), "art", "u1").Return(errors.New("connection refused"))
	f := newFixture(t, withPresence(tracker))

	c := f.connect()
	f.join(t, c, "art", f.token(t, "u1"))

	frames := drain(t, c)
	require.Len(t, frames, 1)
	require.Equal(t, model.EventLoadMessages, frames[0].Event)
}

func TestRelay_PublishesPersistedMessages(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockPublisher(ctrl)
	f := newFixture(t, withPublisher(publisher))

	var published model.StoredMessage
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg model.StoredMessage) error {
			published = msg
			return errors.New("broker down")
		}).Times(1)

	c := f.connect()
	f.join(t, c, "art", f.token(t, "u1"))
	drain(t, c)
	f.send(t, c, "art", "hello", f.token(t, "u1"))

	frames := drain(t, c)
	req.Len(frames, 1)
	req.Equal(model.EventNewMessage, frames[0].Event, "a publish failure does not affect delivery")

	history, err := f.store.History(context.Background(), "art")
	req.NoError(err)
	req.Equal(history[0], published)
}

func TestRelay_AuthorNameIsSnapshotAtSendTime(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	c := f.connect()
	f.join(t, c, "art", f.token(t, "u1"))
	f.send(t, c, "art", "before", f.token(t, "u1"))

	f.users["u1"] = model.UserIdentity{ID: "u1", DisplayName: "Ada Lovelace"}
	f.send(t, c, "art", "after", f.token(t, "u1"))

	history, err := f.store.History(context.Background(), "art")
	req.NoError(err)
	req.Len(history, 2)
	req.Equal("Ada", history[0].AuthorName)
	req.Equal("Ada Lovelace", history[1].AuthorName)
}

func TestRelay_BroadcastDoesNotWaitForPublish(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockPublisher(ctrl)
	f := newFixture(t, withPublisher(publisher))

	sender, reader := f.connect(), f.connect()
	f.join(t, sender, "art", f.token(t, "u1"))
	f.join(t, reader, "art", f.token(t, "u2"))
	drain(t, sender)
	drain(t, reader)

	publishing, release := make(chan struct{}), make(chan struct{})
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, model.StoredMessage) error {
			close(publishing)
			<-release
			return nil
		}).Times(1)

	frame, err := model.Encode(model.EventMessage, model.MessageRequest{Community: "art", Message: "hello", Token: f.token(t, "u1")})
	req.NoError(err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.relay.Dispatch(sender, frame)
	}()

	select {
	case <-publishing:
	case <-time.After(5 * time.Second):
		t.Fatal("message was never published")
	}
	frames := drain(t, reader)
	req.Len(frames, 1, "members are served while the broker is still busy")
	req.Equal(model.EventNewMessage, frames[0].Event)

	close(release)
	<-done
}

func TestRelay_PresenceRestoredWhenUserRejoinsDuringRemoval(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	tracker := mocks.NewMockTracker(ctrl)
	f := newFixture(t, withPresence(tracker))
	first, second := f.connect(), f.connect()

	var calls []string
	tracker.EXPECT().Add(gomock.Any(), "art", "u1").
		DoAndReturn(func(context.Context, string, string) error {
			calls = append(calls, "add")
			return nil
		}).Times(3)
	tracker.EXPECT().Remove(gomock.Any(), "art", "u1").
		DoAndReturn(func(context.Context, string, string) error {
			// u1 reconnects after the membership check but before the removal lands.
			f.join(t, second, "art", f.token(t, "u1"))
			calls = append(calls, "remove")
			return nil
		}).Times(1)

	f.join(t, first, "art", f.token(t, "u1"))
	f.relay.Disconnect(first)

	req.Equal([]string{"add", "add", "remove", "add"}, calls)
	req.True(f.registry.HasUser("art", "u1"))
}

func TestRelay_DisconnectIsIdempotent(t *testing.T) {
	f := newFixture(t)
	c := f.connect()

	f.relay.Disconnect(c)
	f.relay.Disconnect(c)

	require.Zero(t, testutil.ToFloat64(f.metrics.ConnectedClients))
}

func TestRelay_ShutdownWaitsForDisconnect(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	c := f.connect()
	f.join(t, c, "art", f.token(t, "u1"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.relay.Shutdown(ctx) }()

	<-c.Context().Done()
	select {
	case err := <-done:
		t.Fatalf("shutdown returned %v while a client was still connected", err)
	case <-time.After(50 * time.Millisecond):
	}

	f.relay.Disconnect(c)
	req.NoError(<-done)
	req.Empty(f.registry.Members("art"))

	late := NewClient(nil, 1)
	req.False(f.relay.Connect(late))
	req.Error(late.Context().Err())
}

func TestRelay_ShutdownGivesUpWithContext(t *testing.T) {
	f := newFixture(t)
	f.connect()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.relay.Shutdown(ctx), context.DeadlineExceeded)
}
