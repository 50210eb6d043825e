package models

import "time"

// MediaType is the kind of media attached to a post.
type MediaType string

const (
	MediaPhoto    MediaType = "photo"
	MediaVideo    MediaType = "video"
	MediaGif      MediaType = "gif"
	MediaDocument MediaType = "document"
	MediaVoice    MediaType = "voice"
)

// IsValid reports whether the media type is one of the known kinds.
func (m MediaType) IsValid() bool {
	switch m {
	case MediaPhoto, MediaVideo, MediaGif, MediaDocument, MediaVoice:
		return true
	}
	return false
}

// Caption placement on single media and on the first item of a media group.
const (
	TextPositionTop    = "top"
	TextPositionBottom = "bottom"
)

// Limits on post composition. Telegram allows at most 10 items in a media
// group; the 5MB cap and the 15x8 button grid are product limits.
const (
	MaxMediaPerPost  = 10
	MaxMediaFileSize = 5 * 1024 * 1024
	MaxButtonRows    = 15
	MaxButtonColumns = 8
)

// Post is a reusable content template. One Post can be published to multiple
// channels via PostTarget; deleting a Post cascades to everything below it.
type Post struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	AuthorID  int64 `gorm:"index:idx_posts_author_created;not null"`
	CreatedAt time.Time `gorm:"index:idx_posts_author_created"`
	UpdatedAt time.Time

	Text         string `gorm:"type:text"`
	TextPosition string `gorm:"size:8;default:bottom"`

	Silent           bool `gorm:"not null;default:false"`
	Pinned           bool `gorm:"not null;default:false"`
	Protected        bool `gorm:"not null;default:false"`
	CommentsEnabled  bool `gorm:"not null;default:true"`
	ReactionsEnabled bool `gorm:"not null;default:true"`
	IsRepost         bool `gorm:"not null;default:false"`

	// Version is bumped on every edit.
	Version int `gorm:"not null;default:1"`

	Media      []PostMedia     `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"`
	Buttons    []PostButton    `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"`
	HiddenPart *PostHiddenPart `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"`
	Targets    []PostTarget    `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"`
}

// CaptionAbove reports whether the post text should render above the media.
func (p *Post) CaptionAbove() bool {
	return p.TextPosition == TextPositionTop
}

// PostMedia is one media file attached to a post, ordered within the group.
type PostMedia struct {
	ID     int64 `gorm:"primaryKey;autoIncrement"`
	PostID int64 `gorm:"index:idx_post_media_post_order;not null"`

	MediaType    MediaType `gorm:"size:16;not null"`
	FileID       string    `gorm:"type:text;not null"`
	FileUniqueID string    `gorm:"type:text"`
	Caption      string    `gorm:"type:text"`
	FileSize     int64
	OrderIndex   int `gorm:"index:idx_post_media_post_order;not null;default:0"`
}

// PostButton is one URL button on the post's inline keyboard grid.
// Row is 0..14, Position is 0..7, each cell used at most once per post.
type PostButton struct {
	ID     int64 `gorm:"primaryKey;autoIncrement"`
	PostID int64 `gorm:"uniqueIndex:uq_post_buttons_grid;not null"`

	Text string `gorm:"size:64;not null"`
	URL  string `gorm:"type:text;not null"`

	Row      int `gorm:"uniqueIndex:uq_post_buttons_grid;not null"`
	Position int `gorm:"uniqueIndex:uq_post_buttons_grid;not null"`
}

// PostHiddenPart is the gated continuation of a post, opened through a
// callback button and shown differently to subscribers and non-subscribers.
type PostHiddenPart struct {
	PostID           int64  `gorm:"primaryKey"`
	ButtonText       string `gorm:"size:64"`
	SubscriberText   string `gorm:"type:text;not null"`
	NonSubscriberText string `gorm:"type:text"`
}
