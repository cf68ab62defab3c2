package model

import "time"

// ChatMessage is a message about to be persisted. AuthorName is the sender's
// display name at send time and is never refreshed from later profile edits.
type ChatMessage struct {
	Community  string `json:"community"`
	Text       string `json:"message"`
	AuthorName string `json:"name"`
	AuthorID   string `json:"userId"`
}

// StoredMessage is a ChatMessage after the store assigned its identity and
// arrival time. The id is encoded as a JSON string: snowflake ids exceed 2^53.
type StoredMessage struct {
	ID int64 `json:"id,string"`
	ChatMessage
	SentAt time.Time `json:"timestamp"`
}

// UserIdentity is the authenticated sender, resolved once per event.
type UserIdentity struct {
	ID          string `json:"_id"`
	DisplayName string `json:"name"`
}
