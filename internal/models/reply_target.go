package models

// ReplyType says where the reply-to message came from.
type ReplyType string

const (
	// ReplyForwarded: the user forwarded a message from the channel.
	ReplyForwarded ReplyType = "forwarded"
	// ReplyContentPlan: the user picked an already-sent target from the plan.
	ReplyContentPlan ReplyType = "content_plan"
)

// ReplyTarget makes a delivery a reply to an existing channel message. The
// channel and message ids are copied at link time and not re-resolved later.
type ReplyTarget struct {
	TargetID int64 `gorm:"primaryKey"`

	ReplyType ReplyType `gorm:"size:16;not null"`

	ReplyToChannelID int64 `gorm:"not null"`
	ReplyToMessageID int   `gorm:"not null"`

	SourceTargetID *int64
}
