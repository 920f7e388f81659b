package models

import (
	"time"
)

type ChangeType string

const (
	ChangeInserted ChangeType = "inserted"
	ChangeUpdated  ChangeType = "updated"
	ChangeDeleted  ChangeType = "deleted"
)

// SessionChangeEvent is a hint that the session table changed. It is not
// persisted; subscribers re-read the store to get authoritative state.
type SessionChangeEvent struct {
	Type             ChangeType `json:"type"`
	UserID           string     `json:"user_id"`
	ClientInstanceID string     `json:"client_instance_id"`
	Timestamp        time.Time  `json:"timestamp"`
}

func NewChangeEvent(t ChangeType, userID, instanceID string) SessionChangeEvent {
	return SessionChangeEvent{
		Type:             t,
		UserID:           userID,
		ClientInstanceID: instanceID,
		Timestamp:        time.Now().UTC(),
	}
}
