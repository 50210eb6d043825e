package models

import (
	"encoding/json"
	"time"
)

// PostEventType is the kind of lifecycle event recorded for a post.
type PostEventType string

const (
	EventCreated     PostEventType = "created"
	EventUpdated     PostEventType = "updated"
	EventScheduled   PostEventType = "scheduled"
	EventRescheduled PostEventType = "rescheduled"
	EventCanceled    PostEventType = "canceled"
	EventSent        PostEventType = "sent"
	EventFailed      PostEventType = "failed"
	EventDeleted     PostEventType = "deleted"
	EventAutoDeleted PostEventType = "auto_deleted"
)

// PostEvent is one row of the append-only audit trail. Rows are never
// updated or deleted.
type PostEvent struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `gorm:"index:idx_post_events_post_time"`

	PostID      int64  `gorm:"index:idx_post_events_post_time;not null"`
	TargetID    *int64 `gorm:"index"`
	ActorUserID *int64

	EventType PostEventType `gorm:"size:16;not null"`
	Payload   []byte        `gorm:"type:json"`
}

// Typed event payloads. Each event kind that carries data gets its own
// record so the audit log stays machine-checkable.
type (
	ScheduledPayload struct {
		PublishAt time.Time `json:"publish_at"`
	}

	SentPayload struct {
		MessageIDs []int `json:"sent_message_ids"`
	}

	FailedPayload struct {
		Error string `json:"error"`
	}

	AutoDeletedPayload struct {
		MessageIDs []int `json:"deleted_message_ids"`
	}
)

// EncodePayload marshals a typed payload for storage. A nil payload yields
// a nil column.
func EncodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	return json.Marshal(payload)
}

// DecodePayload unmarshals an event payload into the given record.
func (e *PostEvent) DecodePayload(into any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, into)
}
