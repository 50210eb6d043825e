package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mymmrac/telego"

	"tg-poster/internal/logger"
	"tg-poster/internal/models"
	"tg-poster/internal/storage"
)

// RegisterChannel records a channel the bot was added to and verifies the
// bot's admin rights there.
func RegisterChannel(bot *telego.Bot, channelID int64) (*models.Channel, error) {
	if channelRepository == nil {
		return nil, fmt.Errorf("channel repository is not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	chat, err := bot.GetChat(ctx, &telego.GetChatParams{
		ChatID: telego.ChatID{ID: channelID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get chat info: %w", err)
	}

	channel := &models.Channel{
		ID:        channelID,
		Title:     chat.Title,
		Username:  chat.Username,
		IsPrivate: chat.Username == "",
	}
	if chat.LinkedChatID != 0 {
		channel.LinkedChatID = &chat.LinkedChatID
	}

	isAdmin, err := checkBotIsAdmin(ctx, bot, channelID)
	if err != nil {
		logger.Warningf("Could not verify bot admin rights in chat %d: %v", channelID, err)
	}
	channel.BotIsAdmin = isAdmin
	now := time.Now()
	channel.BotAdminCheckedAt = &now

	if err := channelRepository.UpsertChannel(channel); err != nil {
		return nil, err
	}
	logger.Infof("Registered channel %d (%s), bot admin: %v", channelID, chat.Title, isAdmin)
	return channel, nil
}

// RefreshBotAdminStatus re-checks whether the bot is still an administrator
// of the channel and persists the result.
func RefreshBotAdminStatus(bot *telego.Bot, channelID int64) (bool, error) {
	if channelRepository == nil {
		return false, fmt.Errorf("channel repository is not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	isAdmin, err := checkBotIsAdmin(ctx, bot, channelID)
	if err != nil {
		return false, err
	}
	if err := channelRepository.UpdateBotAdminStatus(channelID, isAdmin); err != nil {
		return false, err
	}
	return isAdmin, nil
}

func checkBotIsAdmin(ctx context.Context, bot *telego.Bot, channelID int64) (bool, error) {
	me, err := bot.GetMe(ctx)
	if err != nil {
		return false, err
	}
	member, err := bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: telego.ChatID{ID: channelID},
		UserID: me.ID,
	})
	if err != nil {
		return false, err
	}
	status := member.MemberStatus()
	return status == telego.MemberStatusAdministrator || status == telego.MemberStatusCreator, nil
}

// GrantChannelAccess records a user as an admin of the channel.
func GrantChannelAccess(channelID, userID int64, status string) error {
	if channelRepository == nil {
		return fmt.Errorf("channel repository is not initialized")
	}
	return channelRepository.AddChannelAdmin(&models.ChannelAdmin{
		ChannelID: channelID,
		UserID:    userID,
		Status:    status,
	})
}

// RevokeChannelAccess removes a user's admin record for the channel.
func RevokeChannelAccess(channelID, userID int64) error {
	if channelRepository == nil {
		return fmt.Errorf("channel repository is not initialized")
	}
	return channelRepository.RemoveChannelAdmin(channelID, userID)
}

// UserChannels lists the channels the user administers.
func UserChannels(userID int64) ([]models.Channel, error) {
	if channelRepository == nil {
		return nil, fmt.Errorf("channel repository is not initialized")
	}
	return channelRepository.GetUserChannels(userID)
}

// requireChannelAccess guards a channel-scoped operation.
func requireChannelAccess(userID, channelID int64) error {
	if channelRepository == nil {
		return fmt.Errorf("channel repository is not initialized")
	}
	return channelRepository.RequireChannelAccess(userID, channelID)
}

// requirePostAccess guards a post-scoped operation: the author always has
// access, otherwise any of the post's destination channels must be
// administered by the user.
func requirePostAccess(userID int64, post *models.Post) error {
	if post.AuthorID == userID {
		return nil
	}
	for _, t := range post.Targets {
		ok, err := channelRepository.HasChannelAccess(userID, t.ChannelID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("user %d has no access to post %d: %w", userID, post.ID, storage.ErrForbidden)
}
