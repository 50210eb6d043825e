package storage

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"tg-poster/internal/models"

	"gorm.io/gorm"
)

// MaxLastErrorLen bounds the stored error text of a failed delivery.
const MaxLastErrorLen = 4000

// TargetRepository handles database operations for deliveries (PostTarget)
// and their reply links. All state machine writes live here.
type TargetRepository struct {
	db *gorm.DB
}

// NewTargetRepository creates a new TargetRepository
func NewTargetRepository(db *gorm.DB) *TargetRepository {
	return &TargetRepository{db: db}
}

// MigrateTable ensures the delivery tables exist
func (r *TargetRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.PostTarget{}, &models.ReplyTarget{})
}

// GetTarget retrieves a delivery by id.
func (r *TargetRepository) GetTarget(targetID int64) (*models.PostTarget, error) {
	var target models.PostTarget
	result := r.db.First(&target, targetID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("target %d: %w", targetID, ErrNotFound)
		}
		return nil, result.Error
	}
	return &target, nil
}

// GetTargetFull retrieves a delivery with its post content and reply link
// preloaded, ready for rendering.
func (r *TargetRepository) GetTargetFull(targetID int64) (*models.PostTarget, error) {
	var target models.PostTarget
	result := r.db.
		Preload("Post.Media", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC")
		}).
		Preload("Post.Buttons", func(db *gorm.DB) *gorm.DB {
			return db.Order("`row` ASC, position ASC")
		}).
		Preload("Post.HiddenPart").
		Preload("Reply").
		First(&target, targetID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("target %d: %w", targetID, ErrNotFound)
		}
		return nil, result.Error
	}
	return &target, nil
}

// Schedule plans the delivery for publishAt. Allowed from draft or
// scheduled; clears any previous error and recomputes auto_delete_at.
func (r *TargetRepository) Schedule(targetID int64, publishAt time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		target, err := lockTarget(tx, targetID)
		if err != nil {
			return err
		}
		if target.State != models.StateDraft && target.State != models.StateScheduled {
			return fmt.Errorf("cannot schedule target in state %s: %w", target.State, ErrValidation)
		}
		if err := requireSendableContent(tx, target.PostID); err != nil {
			return err
		}

		target.State = models.StateScheduled
		target.PublishAt = &publishAt
		target.LastError = ""
		if d, ok := target.AutoDeleteDuration(); ok {
			at := publishAt.Add(d)
			target.AutoDeleteAt = &at
		}
		return tx.Save(target).Error
	})
}

// PublishNow queues the delivery immediately, bypassing the promotion
// phase. Allowed from draft or scheduled.
func (r *TargetRepository) PublishNow(targetID int64, now time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		target, err := lockTarget(tx, targetID)
		if err != nil {
			return err
		}
		if target.State != models.StateDraft && target.State != models.StateScheduled {
			return fmt.Errorf("cannot publish target in state %s: %w", target.State, ErrValidation)
		}
		if err := requireSendableContent(tx, target.PostID); err != nil {
			return err
		}

		target.State = models.StateQueued
		target.PublishAt = &now
		target.LastError = ""
		if d, ok := target.AutoDeleteDuration(); ok {
			at := now.Add(d)
			target.AutoDeleteAt = &at
		}
		return tx.Save(target).Error
	})
}

// Cancel stops the delivery. Allowed from any non-terminal state; a queued
// delivery already read into a dispatch batch still completes.
func (r *TargetRepository) Cancel(targetID int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		target, err := lockTarget(tx, targetID)
		if err != nil {
			return err
		}
		if target.State.Terminal() {
			return fmt.Errorf("cannot cancel target in state %s: %w", target.State, ErrValidation)
		}

		target.State = models.StateCanceled
		return tx.Save(target).Error
	})
}

// MarkSent records a successful dispatch. Scheduler-only. The actual send
// time becomes authoritative for auto-delete when no plan existed yet.
func (r *TargetRepository) MarkSent(targetID int64, sentMessageID int, sentAt time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		target, err := lockTarget(tx, targetID)
		if err != nil {
			return err
		}

		target.State = models.StateSent
		target.SentMessageID = &sentMessageID
		target.SentAt = &sentAt
		target.LastError = ""
		if d, ok := target.AutoDeleteDuration(); ok && target.AutoDeleteAt == nil {
			at := sentAt.Add(d)
			target.AutoDeleteAt = &at
		}
		return tx.Save(target).Error
	})
}

// MarkFailed records a failed dispatch. Scheduler-only; no automatic retry.
// The error text is trimmed to a rune boundary so the stored value stays
// valid UTF-8.
func (r *TargetRepository) MarkFailed(targetID int64, sendErr string) error {
	if len(sendErr) > MaxLastErrorLen {
		cut := MaxLastErrorLen
		for cut > 0 && !utf8.RuneStart(sendErr[cut]) {
			cut--
		}
		sendErr = sendErr[:cut]
	}
	return r.db.Model(&models.PostTarget{}).Where("id = ?", targetID).
		Updates(map[string]interface{}{
			"state":      models.StateFailed,
			"last_error": sendErr,
		}).Error
}

// MarkAutoDeleted flips the auto_deleted flag. Scheduler-only; requires a
// sent delivery. The state field itself never changes after sent.
func (r *TargetRepository) MarkAutoDeleted(targetID int64) error {
	result := r.db.Model(&models.PostTarget{}).
		Where("id = ? AND state = ?", targetID, models.StateSent).
		Update("auto_deleted", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("target %d is not sent: %w", targetID, ErrValidation)
	}
	return nil
}

// SetAutoDelete sets or clears the auto-delete duration. AutoDeleteAt is
// derived from sent_at when known, else publish_at; clearing the duration
// clears the derived timestamp and resets the flag.
func (r *TargetRepository) SetAutoDelete(targetID int64, after *time.Duration) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		target, err := lockTarget(tx, targetID)
		if err != nil {
			return err
		}

		if after == nil {
			target.AutoDeleteAfter = nil
			target.AutoDeleteAt = nil
		} else {
			secs := int64(after.Seconds())
			target.AutoDeleteAfter = &secs
			base := target.SentAt
			if base == nil {
				base = target.PublishAt
			}
			if base != nil {
				at := base.Add(*after)
				target.AutoDeleteAt = &at
			} else {
				target.AutoDeleteAt = nil
			}
		}
		target.AutoDeleted = false
		return tx.Select("auto_delete_after", "auto_delete_at", "auto_deleted", "updated_at").Save(target).Error
	})
}

// CopyToChannels clones a delivery onto other channels for the same post.
// With publishAt the copies start scheduled, otherwise as drafts. The
// auto-delete duration is copied on request; its timestamp is only derived
// when a publish time is known.
func (r *TargetRepository) CopyToChannels(sourceTargetID int64, channelIDs []int64, publishAt *time.Time, copyAutoDelete bool) ([]models.PostTarget, error) {
	if len(channelIDs) == 0 {
		return nil, nil
	}

	var created []models.PostTarget
	err := r.db.Transaction(func(tx *gorm.DB) error {
		src, err := lockTarget(tx, sourceTargetID)
		if err != nil {
			return err
		}
		if publishAt != nil {
			if err := requireSendableContent(tx, src.PostID); err != nil {
				return err
			}
		}

		for _, chID := range channelIDs {
			target := models.PostTarget{
				PostID:             src.PostID,
				ChannelID:          chID,
				State:              models.StateDraft,
				IsCopy:             true,
				CopiedFromTargetID: &src.ID,
			}
			if publishAt != nil {
				target.State = models.StateScheduled
				at := *publishAt
				target.PublishAt = &at
			}
			if copyAutoDelete && src.AutoDeleteAfter != nil {
				secs := *src.AutoDeleteAfter
				target.AutoDeleteAfter = &secs
				if publishAt != nil {
					at := publishAt.Add(time.Duration(secs) * time.Second)
					target.AutoDeleteAt = &at
				}
			}
			if err := tx.Create(&target).Error; err != nil {
				return err
			}
			created = append(created, target)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// DeleteTarget removes a delivery; deleting the last delivery of a post
// also deletes the post and its content.
func (r *TargetRepository) DeleteTarget(targetID int64) (postDeleted bool, err error) {
	err = r.db.Transaction(func(tx *gorm.DB) error {
		target, err := lockTarget(tx, targetID)
		if err != nil {
			return err
		}

		if err := tx.Where("target_id = ?", targetID).Delete(&models.ReplyTarget{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.PostTarget{}, targetID).Error; err != nil {
			return err
		}

		var remaining int64
		if err := tx.Model(&models.PostTarget{}).Where("post_id = ?", target.PostID).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}

		postDeleted = true
		if err := tx.Where("post_id = ?", target.PostID).Delete(&models.PostMedia{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", target.PostID).Delete(&models.PostButton{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", target.PostID).Delete(&models.PostHiddenPart{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Post{}, target.PostID).Error
	})
	return postDeleted, err
}

// SetReplyForwarded links the delivery as a reply to a forwarded channel
// message given directly by chat and message id.
func (r *TargetRepository) SetReplyForwarded(targetID, replyToChannelID int64, replyToMessageID int) error {
	if _, err := r.GetTarget(targetID); err != nil {
		return err
	}
	reply := models.ReplyTarget{
		TargetID:         targetID,
		ReplyType:        models.ReplyForwarded,
		ReplyToChannelID: replyToChannelID,
		ReplyToMessageID: replyToMessageID,
	}
	return r.db.Save(&reply).Error
}

// SetReplyFromPlan links the delivery as a reply to another delivery that
// must already be sent. The destination and message id are copied now and
// never re-resolved.
func (r *TargetRepository) SetReplyFromPlan(targetID, sourceTargetID int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if _, err := lockTarget(tx, targetID); err != nil {
			return err
		}
		src, err := lockTarget(tx, sourceTargetID)
		if err != nil {
			return err
		}
		if src.State != models.StateSent || src.SentMessageID == nil {
			return fmt.Errorf("source target %d is not published yet: %w", sourceTargetID, ErrValidation)
		}

		reply := models.ReplyTarget{
			TargetID:         targetID,
			ReplyType:        models.ReplyContentPlan,
			ReplyToChannelID: src.ChannelID,
			ReplyToMessageID: *src.SentMessageID,
			SourceTargetID:   &sourceTargetID,
		}
		return tx.Save(&reply).Error
	})
}

// ClearReply removes the reply link, if any.
func (r *TargetRepository) ClearReply(targetID int64) error {
	return r.db.Where("target_id = ?", targetID).Delete(&models.ReplyTarget{}).Error
}

// PickTargetsToPublish selects due scheduled deliveries oldest-first and
// flips them to queued, all in one transaction. Running it again with no
// time advance selects nothing: the state flip is the idempotency guard.
func (r *TargetRepository) PickTargetsToPublish(now time.Time, limit int) ([]models.PostTarget, error) {
	var targets []models.PostTarget
	err := r.db.Transaction(func(tx *gorm.DB) error {
		err := tx.
			Where("state = ?", models.StateScheduled).
			Where("publish_at IS NOT NULL").
			Where("publish_at <= ?", now).
			Order("publish_at ASC, id ASC").
			Limit(limit).
			Find(&targets).Error
		if err != nil {
			return err
		}
		for i := range targets {
			targets[i].State = models.StateQueued
			if err := tx.Model(&models.PostTarget{}).Where("id = ?", targets[i].ID).
				Update("state", models.StateQueued).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return targets, nil
}

// PickQueued selects queued deliveries for dispatch, earliest publish time
// first with unplanned ones ahead (NULLs sort first on ASC).
func (r *TargetRepository) PickQueued(limit int) ([]models.PostTarget, error) {
	var targets []models.PostTarget
	err := r.db.
		Where("state = ?", models.StateQueued).
		Order("publish_at ASC, id ASC").
		Limit(limit).
		Find(&targets).Error
	return targets, err
}

// PickTargetsToAutoDelete selects sent deliveries whose auto-delete time
// has passed and that were not removed yet.
func (r *TargetRepository) PickTargetsToAutoDelete(now time.Time, limit int) ([]models.PostTarget, error) {
	var targets []models.PostTarget
	err := r.db.
		Where("auto_deleted = ?", false).
		Where("auto_delete_at IS NOT NULL").
		Where("auto_delete_at <= ?", now).
		Where("state = ?", models.StateSent).
		Order("auto_delete_at ASC, id ASC").
		Limit(limit).
		Find(&targets).Error
	return targets, err
}

// requireSendableContent rejects planning a post that has neither text nor
// media: such a delivery could only ever fail at dispatch.
func requireSendableContent(tx *gorm.DB, postID int64) error {
	var post models.Post
	result := tx.Select("id", "text").First(&post, postID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return fmt.Errorf("post %d: %w", postID, ErrNotFound)
		}
		return result.Error
	}
	if post.Text != "" {
		return nil
	}

	var count int64
	if err := tx.Model(&models.PostMedia{}).Where("post_id = ?", postID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("post %d has neither text nor media: %w", postID, ErrValidation)
	}
	return nil
}

// lockTarget reads a delivery row for update inside a transaction.
func lockTarget(tx *gorm.DB, targetID int64) (*models.PostTarget, error) {
	var target models.PostTarget
	result := tx.First(&target, targetID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("target %d: %w", targetID, ErrNotFound)
		}
		return nil, result.Error
	}
	return &target, nil
}
