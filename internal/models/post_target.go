package models

import "time"

// TargetState is the publication state of a post on one channel.
type TargetState string

const (
	StateDraft     TargetState = "draft"     // being composed
	StateScheduled TargetState = "scheduled" // waiting for publish_at
	StateQueued    TargetState = "queued"    // picked up, about to send
	StateSent      TargetState = "sent"      // published
	StateFailed    TargetState = "failed"    // send failed, stays failed
	StateCanceled  TargetState = "canceled"  // canceled by user
)

// IsValid reports whether the state is part of the closed set.
func (s TargetState) IsValid() bool {
	switch s {
	case StateDraft, StateScheduled, StateQueued, StateSent, StateFailed, StateCanceled:
		return true
	}
	return false
}

// Terminal reports whether the scheduler will never move the target again.
// A sent target may still be auto-deleted, but its state never changes.
func (s TargetState) Terminal() bool {
	return s == StateSent || s == StateCanceled
}

// PostTarget is one delivery: a Post directed at one Channel. It owns the
// state machine, the timing fields, and the outcome of the send.
type PostTarget struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time
	UpdatedAt time.Time

	PostID    int64 `gorm:"uniqueIndex:uq_post_targets_post_channel;not null"`
	ChannelID int64 `gorm:"uniqueIndex:uq_post_targets_post_channel;index:idx_post_targets_channel_publish;not null"`

	State TargetState `gorm:"size:16;index:idx_post_targets_state_publish;not null;default:draft"`

	PublishAt *time.Time `gorm:"index:idx_post_targets_state_publish,priority:2;index:idx_post_targets_channel_publish,priority:2"`

	SentAt        *time.Time
	SentMessageID *int

	// Original channel message when the post replaces an existing one.
	EditOriginMessageID *int

	IsCopy             bool   `gorm:"not null;default:false"`
	CopiedFromTargetID *int64 `gorm:"index"`

	// AutoDeleteAfter is a duration in seconds; AutoDeleteAt is always derived
	// from it, never set directly.
	AutoDeleteAfter *int64
	AutoDeleteAt    *time.Time `gorm:"index:idx_post_targets_auto_delete,priority:2"`
	AutoDeleted     bool       `gorm:"index:idx_post_targets_auto_delete;not null;default:false"`

	LastError string `gorm:"type:text"`

	Post  *Post        `gorm:"foreignKey:PostID"`
	Reply *ReplyTarget `gorm:"foreignKey:TargetID;constraint:OnDelete:CASCADE"`
}

// AutoDeleteDuration returns the configured auto-delete delay, or false when
// auto-delete is off for this target.
func (t *PostTarget) AutoDeleteDuration() (time.Duration, bool) {
	if t.AutoDeleteAfter == nil {
		return 0, false
	}
	return time.Duration(*t.AutoDeleteAfter) * time.Second, true
}
