package storage

import (
	"errors"
	"fmt"

	"tg-poster/internal/models"

	"gorm.io/gorm"
)

// PostRepository handles database operations for post templates and their
// media, buttons, and hidden parts.
type PostRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new PostRepository
func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{db: db}
}

// MigrateTable ensures the post tables exist
func (r *PostRepository) MigrateTable() error {
	return r.db.AutoMigrate(
		&models.Post{},
		&models.PostMedia{},
		&models.PostButton{},
		&models.PostHiddenPart{},
	)
}

// CreatePostWithTargets creates a post template plus one draft target per
// channel, all in one transaction.
func (r *PostRepository) CreatePostWithTargets(authorID int64, channelIDs []int64, text string) (*models.Post, error) {
	if len(channelIDs) == 0 {
		return nil, fmt.Errorf("channel list is empty: %w", ErrValidation)
	}

	post := &models.Post{
		AuthorID:     authorID,
		Text:         text,
		TextPosition: models.TextPositionBottom,
	}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		for _, chID := range channelIDs {
			target := models.PostTarget{
				PostID:    post.ID,
				ChannelID: chID,
				State:     models.StateDraft,
			}
			if err := tx.Create(&target).Error; err != nil {
				return err
			}
			post.Targets = append(post.Targets, target)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// GetPost retrieves a bare post record.
func (r *PostRepository) GetPost(postID int64) (*models.Post, error) {
	var post models.Post
	result := r.db.First(&post, postID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("post %d: %w", postID, ErrNotFound)
		}
		return nil, result.Error
	}
	return &post, nil
}

// GetPostFull retrieves a post with media, buttons, hidden part and targets
// preloaded in render order.
func (r *PostRepository) GetPostFull(postID int64) (*models.Post, error) {
	var post models.Post
	result := r.db.
		Preload("Media", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC")
		}).
		Preload("Buttons", func(db *gorm.DB) *gorm.DB {
			return db.Order("`row` ASC, position ASC")
		}).
		Preload("HiddenPart").
		Preload("Targets").
		First(&post, postID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("post %d: %w", postID, ErrNotFound)
		}
		return nil, result.Error
	}
	return &post, nil
}

// UpdatePostText replaces the post text and bumps the version.
func (r *PostRepository) UpdatePostText(postID int64, text string) error {
	return r.bumpVersion(postID, map[string]interface{}{"text": text})
}

// SetTextPosition sets caption placement ("top" or "bottom").
func (r *PostRepository) SetTextPosition(postID int64, position string) error {
	if position != models.TextPositionTop && position != models.TextPositionBottom {
		return fmt.Errorf("text position %q: %w", position, ErrValidation)
	}
	return r.bumpVersion(postID, map[string]interface{}{"text_position": position})
}

// PostFlags carries the optional presentation flag updates; nil means keep.
type PostFlags struct {
	Silent           *bool
	Pinned           *bool
	Protected        *bool
	CommentsEnabled  *bool
	ReactionsEnabled *bool
	IsRepost         *bool
}

// SetPostFlags updates the given presentation flags and bumps the version.
func (r *PostRepository) SetPostFlags(postID int64, flags PostFlags) error {
	updates := map[string]interface{}{}
	if flags.Silent != nil {
		updates["silent"] = *flags.Silent
	}
	if flags.Pinned != nil {
		updates["pinned"] = *flags.Pinned
	}
	if flags.Protected != nil {
		updates["protected"] = *flags.Protected
	}
	if flags.CommentsEnabled != nil {
		updates["comments_enabled"] = *flags.CommentsEnabled
	}
	if flags.ReactionsEnabled != nil {
		updates["reactions_enabled"] = *flags.ReactionsEnabled
	}
	if flags.IsRepost != nil {
		updates["is_repost"] = *flags.IsRepost
	}
	if len(updates) == 0 {
		return nil
	}
	return r.bumpVersion(postID, updates)
}

func (r *PostRepository) bumpVersion(postID int64, updates map[string]interface{}) error {
	updates["version"] = gorm.Expr("version + 1")
	result := r.db.Model(&models.Post{}).Where("id = ?", postID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("post %d: %w", postID, ErrNotFound)
	}
	return nil
}

// AddPostMedia appends a media item, enforcing the per-post count and
// per-file size limits.
func (r *PostRepository) AddPostMedia(media *models.PostMedia) error {
	if media.FileID == "" {
		return fmt.Errorf("file_id is empty: %w", ErrValidation)
	}
	if !media.MediaType.IsValid() {
		return fmt.Errorf("media type %q: %w", media.MediaType, ErrValidation)
	}
	if media.FileSize > models.MaxMediaFileSize {
		return fmt.Errorf("file size %d exceeds %d: %w", media.FileSize, models.MaxMediaFileSize, ErrValidation)
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.PostMedia{}).Where("post_id = ?", media.PostID).Count(&count).Error; err != nil {
			return err
		}
		if count >= models.MaxMediaPerPost {
			return fmt.Errorf("media group limit exceeded (max %d): %w", models.MaxMediaPerPost, ErrValidation)
		}
		if media.OrderIndex == 0 && count > 0 {
			media.OrderIndex = int(count)
		}
		return tx.Create(media).Error
	})
}

// ClearPostMedia removes all media from a post.
func (r *PostRepository) ClearPostMedia(postID int64) error {
	return r.db.Where("post_id = ?", postID).Delete(&models.PostMedia{}).Error
}

// ReplacePostButtons swaps the whole button grid, validating it first.
func (r *PostRepository) ReplacePostButtons(postID int64, buttons []models.PostButton) error {
	if err := validateButtonGrid(buttons); err != nil {
		return err
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", postID).Delete(&models.PostButton{}).Error; err != nil {
			return err
		}
		for i := range buttons {
			buttons[i].ID = 0
			buttons[i].PostID = postID
			if err := tx.Create(&buttons[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func validateButtonGrid(buttons []models.PostButton) error {
	used := make(map[[2]int]bool, len(buttons))
	for _, b := range buttons {
		if b.Row < 0 || b.Row >= models.MaxButtonRows {
			return fmt.Errorf("button row must be 0..%d, got %d: %w", models.MaxButtonRows-1, b.Row, ErrValidation)
		}
		if b.Position < 0 || b.Position >= models.MaxButtonColumns {
			return fmt.Errorf("button position must be 0..%d, got %d: %w", models.MaxButtonColumns-1, b.Position, ErrValidation)
		}
		cell := [2]int{b.Row, b.Position}
		if used[cell] {
			return fmt.Errorf("duplicate button cell row=%d pos=%d: %w", b.Row, b.Position, ErrValidation)
		}
		used[cell] = true
		if b.Text == "" || b.URL == "" {
			return fmt.Errorf("button text/url must be non-empty: %w", ErrValidation)
		}
	}
	return nil
}

// SetHiddenPart creates or replaces the gated continuation of a post.
func (r *PostRepository) SetHiddenPart(part *models.PostHiddenPart) error {
	if part.SubscriberText == "" {
		return fmt.Errorf("hidden part subscriber text is empty: %w", ErrValidation)
	}
	return r.db.Save(part).Error
}

// DeleteHiddenPart removes the gated continuation, if any.
func (r *PostRepository) DeleteHiddenPart(postID int64) error {
	return r.db.Where("post_id = ?", postID).Delete(&models.PostHiddenPart{}).Error
}

// DeletePost removes the post and everything attached to it.
func (r *PostRepository) DeletePost(postID int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", postID).Delete(&models.PostMedia{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", postID).Delete(&models.PostButton{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", postID).Delete(&models.PostHiddenPart{}).Error; err != nil {
			return err
		}
		var targetIDs []int64
		if err := tx.Model(&models.PostTarget{}).Where("post_id = ?", postID).Pluck("id", &targetIDs).Error; err != nil {
			return err
		}
		if len(targetIDs) > 0 {
			if err := tx.Where("target_id IN ?", targetIDs).Delete(&models.ReplyTarget{}).Error; err != nil {
				return err
			}
			if err := tx.Where("post_id = ?", postID).Delete(&models.PostTarget{}).Error; err != nil {
				return err
			}
		}
		result := tx.Delete(&models.Post{}, postID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("post %d: %w", postID, ErrNotFound)
		}
		return nil
	})
}
