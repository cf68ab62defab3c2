package model

import "encoding/json"

type EventType string

const (
	EventJoin         EventType = "join"
	EventMessage      EventType = "message"
	EventLoadMessages EventType = "load-messages"
	EventNewMessage   EventType = "new-message"
	EventError        EventType = "error"
)

// Envelope is the frame exchanged over the realtime connection in both directions.
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinRequest struct {
	Community string `json:"community" validate:"required,max=64"`
	Token     string `json:"token"`
}

type MessageRequest struct {
	Community string `json:"community" validate:"required,max=64"`
	Message   string `json:"message"`
	Token     string `json:"token"`
}

// NewMessage is broadcast to every member of a community after a send is persisted.
type NewMessage struct {
	Message string `json:"message"`
	Name    string `json:"name"`
	UserID  string `json:"userId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Encode wraps data into an Envelope and marshals it.
func Encode(event EventType, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
