package models

import "time"

// Channel is a Telegram channel connected as a publishing destination.
// The primary key is the Telegram chat id.
type Channel struct {
	ID        int64 `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Title     string `gorm:"size:255;not null"`
	Username  string `gorm:"size:255"`
	IsPrivate bool   `gorm:"not null;default:false"`

	// Discussion group linked to the channel, when comments are on.
	LinkedChatID *int64

	BotIsAdmin        bool `gorm:"not null;default:false"`
	BotAdminCheckedAt *time.Time
}

// ChannelAdmin links a user to a channel they administer. Any admin of a
// channel can see and manage the channel's deliveries.
type ChannelAdmin struct {
	ChannelID int64 `gorm:"primaryKey"`
	UserID    int64 `gorm:"primaryKey;index:idx_channel_admins_user"`

	Status     string `gorm:"size:16;default:unknown"`
	VerifiedAt *time.Time
	AddedAt    time.Time `gorm:"autoCreateTime"`
}
