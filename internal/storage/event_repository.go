package storage

import (
	"errors"
	"fmt"
	"time"

	"tg-poster/internal/models"

	"gorm.io/gorm"
)

// EventRepository handles the append-only post event log. Events are only
// ever inserted; there is no update or delete path.
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new EventRepository
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// MigrateTable ensures the event table exists
func (r *EventRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.PostEvent{})
}

// LogEvent appends one lifecycle event. payload is one of the typed payload
// records from models, or nil.
func (r *EventRepository) LogEvent(postID int64, targetID, actorUserID *int64, eventType models.PostEventType, payload any) (*models.PostEvent, error) {
	raw, err := models.EncodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event payload: %w", err)
	}

	event := &models.PostEvent{
		PostID:      postID,
		TargetID:    targetID,
		ActorUserID: actorUserID,
		EventType:   eventType,
		Payload:     raw,
	}
	if err := r.db.Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

// PostEvents returns the newest events of a post, up to limit.
func (r *EventRepository) PostEvents(postID int64, limit int) ([]models.PostEvent, error) {
	var events []models.PostEvent
	err := r.db.
		Where("post_id = ?", postID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// LastSentMessageIDs recovers the full set of platform message ids a
// delivery produced, from the payload of its most recent sent event. A
// delivery can span several platform messages (media group plus a trailing
// button message), while the target row only stores the first id.
func (r *EventRepository) LastSentMessageIDs(targetID int64) ([]int, error) {
	var event models.PostEvent
	result := r.db.
		Where("target_id = ?", targetID).
		Where("event_type = ?", models.EventSent).
		Order("created_at DESC, id DESC").
		First(&event)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}

	var payload models.SentPayload
	if err := event.DecodePayload(&payload); err != nil {
		return nil, err
	}
	return payload.MessageIDs, nil
}

// TargetEventsSince lists events of one delivery after a cutoff, oldest
// first. Used by history views.
func (r *EventRepository) TargetEventsSince(targetID int64, since time.Time) ([]models.PostEvent, error) {
	var events []models.PostEvent
	err := r.db.
		Where("target_id = ?", targetID).
		Where("created_at >= ?", since).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	return events, err
}
