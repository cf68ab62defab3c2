package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/mahaj/community-chat/pkg/errors"
	"github.com/mahaj/community-chat/pkg/events"
	"github.com/mahaj/community-chat/pkg/metrics"
	"github.com/mahaj/community-chat/pkg/model"
	"github.com/mahaj/community-chat/pkg/presence"
	"github.com/mahaj/community-chat/pkg/store"
)

const (
	presenceTimeout = 2 * time.Second
	publishTimeout  = 2 * time.Second
)

// Authenticator resolves a bearer credential; *auth.Authenticator satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.UserIdentity, error)
}

type Options struct {
	// MaxMessageLength bounds message text, in runes, after trimming.
	MaxMessageLength int
	// EventTimeout bounds each event's handling. Zero means no bound.
	EventTimeout time.Duration
}

// handler processes one inbound event. A returned error is reported to the
// originating client only.
type handler func(ctx context.Context, c *Client, data json.RawMessage) error

// Relay authenticates inbound events, updates memberships and the message
// store, and fans new messages out to communities.
type Relay struct {
	auth      Authenticator
	store     store.MessageStore
	registry  *Registry
	presence  presence.Tracker
	publisher events.Publisher
	metrics   *metrics.Metrics
	validate  *validator.Validate
	opts      Options
	log       *slog.Logger
	handlers  map[model.EventType]handler

	mu      sync.Mutex
	closing bool
	// clients counts connections whose Disconnect has not run yet.
	clients sync.WaitGroup
}

func NewRelay(
	auth Authenticator,
	messages store.MessageStore,
	registry *Registry,
	tracker presence.Tracker,
	publisher events.Publisher,
	m *metrics.Metrics,
	opts Options,
	log *slog.Logger,
) *Relay {
	r := &Relay{
		auth:      auth,
		store:     messages,
		registry:  registry,
		presence:  tracker,
		publisher: publisher,
		metrics:   m,
		validate:  validator.New(),
		opts:      opts,
		log:       log,
	}
	r.handlers = map[model.EventType]handler{
		model.EventJoin:    r.handleJoin,
		model.EventMessage: r.handleMessage,
	}
	return r
}

// Connect registers a freshly opened client. It reports false, and closes c,
// once Shutdown has started.
func (r *Relay) Connect(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		c.Close()
		return false
	}
	r.clients.Add(1)
	r.registry.Attach(c)
	r.metrics.ConnectedClients.Inc()
	r.log.Debug("Client connected", "conn_id", c.ID)
	return true
}

// Dispatch decodes one frame and runs its handler. Failures never escape: they
// become an error frame for c.
func (r *Relay) Dispatch(c *Client, frame []byte) {
	var envelope model.Envelope
	if err := json.Unmarshal(frame, &envelope); err != nil {
		r.fail(c, "invalid", apperrors.ErrInvalidPayload)
		return
	}

	h, ok := r.handlers[envelope.Event]
	if !ok {
		r.fail(c, "unknown", apperrors.ErrUnknownEvent)
		return
	}

	ctx := c.Context()
	if r.opts.EventTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.EventTimeout)
		defer cancel()
	}

	if err := h(ctx, c, envelope.Data); err != nil {
		r.fail(c, string(envelope.Event), err)
		return
	}
	r.metrics.Events.WithLabelValues(string(envelope.Event), metrics.OutcomeOK).Inc()
}

// Disconnect drops every membership of c and closes it. It runs once the
// connection is gone, whatever the cause. Later calls are no-ops.
func (r *Relay) Disconnect(c *Client) {
	if !c.disconnected.CompareAndSwap(false, true) {
		return
	}
	defer r.clients.Done()

	left := r.registry.LeaveAll(c)
	c.Close()
	r.metrics.ConnectedClients.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	for community, userID := range left {
		r.clearPresence(ctx, community, userID)
	}
	r.log.Debug("Client disconnected", "conn_id", c.ID, "communities", len(left))
}

// clearPresence removes userID from community unless another of its
// connections is still a member.
func (r *Relay) clearPresence(ctx context.Context, community, userID string) {
	if r.registry.HasUser(community, userID) {
		return
	}
	if err := r.presence.Remove(ctx, community, userID); err != nil {
		r.log.Warn("Failed to clear presence", "community", community, "user_id", userID, "error", err)
		return
	}
	// A join of the same user may have landed between the check and the
	// removal; its Add was then undone.
	if r.registry.HasUser(community, userID) {
		if err := r.presence.Add(ctx, community, userID); err != nil {
			r.log.Warn("Failed to restore presence", "community", community, "user_id", userID, "error", err)
		}
	}
}

// Shutdown refuses new clients, closes the open ones and waits until each of
// them has been disconnected, or until ctx is done.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	r.mu.Unlock()
	r.registry.Shutdown()

	drained := make(chan struct{})
	go func() {
		r.clients.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) handleJoin(ctx context.Context, c *Client, data json.RawMessage) error {
	var req model.JoinRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return apperrors.ErrInvalidPayload
	}

	user, err := r.auth.Authenticate(ctx, req.Token)
	if err != nil {
		r.log.Info("Authentication failed during join", "conn_id", c.ID, "community", req.Community)
		return err
	}
	if err := r.validate.Struct(req); err != nil {
		return apperrors.ErrInvalidPayload
	}

	r.registry.Join(c, req.Community, user.ID)
	if err := r.presence.Add(ctx, req.Community, user.ID); err != nil {
		r.log.Warn("Failed to set presence", "community", req.Community, "user_id", user.ID, "error", err)
	}

	history, err := r.store.History(ctx, req.Community)
	if err != nil {
		r.log.Error("Failed to load history", "community", req.Community, "error", err)
		return apperrors.ErrJoinFailed
	}
	if history == nil {
		history = []model.StoredMessage{}
	}

	r.log.Info("Client joined community", "conn_id", c.ID, "community", req.Community, "user_id", user.ID, "history", len(history))
	r.emit(c, model.EventLoadMessages, history)
	return nil
}

func (r *Relay) handleMessage(ctx context.Context, c *Client, data json.RawMessage) error {
	var req model.MessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return apperrors.ErrInvalidPayload
	}

	user, err := r.auth.Authenticate(ctx, req.Token)
	if err != nil {
		r.log.Info("Authentication failed during message send", "conn_id", c.ID, "community", req.Community)
		return err
	}
	if err := r.validate.Struct(req); err != nil {
		return apperrors.ErrInvalidMessage
	}
	text := strings.TrimSpace(req.Message)
	if text == "" || utf8.RuneCountInString(text) > r.opts.MaxMessageLength {
		return apperrors.ErrInvalidMessage
	}

	stored, err := r.store.Append(ctx, model.ChatMessage{
		Community:  req.Community,
		Text:       text,
		AuthorName: user.DisplayName,
		AuthorID:   user.ID,
	})
	if err != nil {
		r.log.Error("Failed to persist message", "community", req.Community, "user_id", user.ID, "error", err)
		return apperrors.ErrSendFailed
	}
	r.metrics.PersistedMessages.Inc()

	payload, err := model.Encode(model.EventNewMessage, model.NewMessage{
		Message: stored.Text,
		Name:    stored.AuthorName,
		UserID:  stored.AuthorID,
	})
	if err != nil {
		return apperrors.ErrSendFailed
	}
	delivered, dropped := r.registry.Broadcast(stored.Community, payload)
	r.metrics.DroppedDeliveries.Add(float64(dropped))
	r.log.Debug("Message broadcast", "community", stored.Community, "id", stored.ID, "delivered", delivered, "dropped", dropped)

	r.publish(ctx, stored)
	return nil
}

// publish announces stored after members were served. It is bounded by
// publishTimeout and its failures are only logged.
func (r *Relay) publish(ctx context.Context, stored model.StoredMessage) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := r.publisher.Publish(ctx, stored); err != nil {
		r.log.Warn("Failed to publish message", "community", stored.Community, "id", stored.ID, "error", err)
	}
}

func (r *Relay) emit(c *Client, event model.EventType, data any) {
	payload, err := model.Encode(event, data)
	if err != nil {
		r.log.Error("Failed to encode frame", "event", event, "error", err)
		return
	}
	if !c.Deliver(payload) {
		r.metrics.DroppedDeliveries.Inc()
	}
}

func (r *Relay) fail(c *Client, event string, err error) {
	outcome := metrics.OutcomeFailed
	switch apperrors.CodeOf(err) {
	case apperrors.CodeUnauthenticated, apperrors.CodeInvalidArgument:
		outcome = metrics.OutcomeRejected
	}
	r.metrics.Events.WithLabelValues(event, outcome).Inc()
	r.emit(c, model.EventError, model.ErrorPayload{Message: apperrors.MessageOf(err)})
}
