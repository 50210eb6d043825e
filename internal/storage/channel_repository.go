package storage

import (
	"errors"
	"fmt"
	"time"

	"tg-poster/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChannelRepository handles database operations for channels and their admins.
type ChannelRepository struct {
	db *gorm.DB
}

// NewChannelRepository creates a new ChannelRepository
func NewChannelRepository(db *gorm.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

// MigrateTable ensures the channel tables exist
func (r *ChannelRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.Channel{}, &models.ChannelAdmin{})
}

// UpsertChannel creates a channel record or refreshes its metadata.
func (r *ChannelRepository) UpsertChannel(channel *models.Channel) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "username", "is_private", "linked_chat_id", "updated_at"}),
	}).Create(channel).Error
}

// GetChannel retrieves a channel by its Telegram chat id.
func (r *ChannelRepository) GetChannel(channelID int64) (*models.Channel, error) {
	var channel models.Channel
	result := r.db.First(&channel, channelID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("channel %d: %w", channelID, ErrNotFound)
		}
		return nil, result.Error
	}
	return &channel, nil
}

// UpdateBotAdminStatus records whether the bot currently administers the channel.
func (r *ChannelRepository) UpdateBotAdminStatus(channelID int64, isAdmin bool) error {
	now := time.Now()
	return r.db.Model(&models.Channel{}).Where("id = ?", channelID).
		Updates(map[string]interface{}{
			"bot_is_admin":         isAdmin,
			"bot_admin_checked_at": &now,
		}).Error
}

// AddChannelAdmin links a user to a channel, updating status when it exists.
func (r *ChannelRepository) AddChannelAdmin(admin *models.ChannelAdmin) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "verified_at"}),
	}).Create(admin).Error
}

// RemoveChannelAdmin removes a channel admin link.
func (r *ChannelRepository) RemoveChannelAdmin(channelID, userID int64) error {
	return r.db.Where("channel_id = ? AND user_id = ?", channelID, userID).
		Delete(&models.ChannelAdmin{}).Error
}

// HasChannelAccess reports whether the user administers the channel. Any
// admin of a channel can see and manage the channel's deliveries.
func (r *ChannelRepository) HasChannelAccess(userID, channelID int64) (bool, error) {
	var count int64
	err := r.db.Model(&models.ChannelAdmin{}).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RequireChannelAccess returns ErrForbidden when the user has no access.
func (r *ChannelRepository) RequireChannelAccess(userID, channelID int64) error {
	ok, err := r.HasChannelAccess(userID, channelID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %d has no access to channel %d: %w", userID, channelID, ErrForbidden)
	}
	return nil
}

// GetUserChannels lists all channels the user administers.
func (r *ChannelRepository) GetUserChannels(userID int64) ([]models.Channel, error) {
	var channels []models.Channel
	err := r.db.
		Joins("JOIN channel_admins ON channel_admins.channel_id = channels.id").
		Where("channel_admins.user_id = ?", userID).
		Order("channels.title ASC").
		Find(&channels).Error
	return channels, err
}
