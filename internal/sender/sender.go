package sender

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"

	"tg-poster/internal/models"
)

// SendOptions are the per-delivery flags passed through to the platform.
type SendOptions struct {
	Silent    bool
	Protected bool
	// ReplyTo is the message id to reply to, 0 when the delivery is not a
	// reply. ReplyToChatID is the chat holding that message; 0 means the
	// destination chat itself.
	ReplyTo       int
	ReplyToChatID int64
}

// Sender is the boundary to the messaging platform. The scheduler and the
// renderer only ever talk to this interface; the telego implementation
// below is the production adapter.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string, markup *telego.InlineKeyboardMarkup, opts SendOptions) (int, error)
	SendSingleMedia(ctx context.Context, chatID int64, media models.PostMedia, caption string, captionAbove bool, markup *telego.InlineKeyboardMarkup, opts SendOptions) (int, error)
	SendMediaGroup(ctx context.Context, chatID int64, items []models.PostMedia, caption string, captionAbove bool, opts SendOptions) ([]int, error)
	Pin(ctx context.Context, chatID int64, messageID int) error
	Delete(ctx context.Context, chatID int64, messageID int) error
}

// TelegoSender implements Sender on top of the Telegram Bot API.
type TelegoSender struct {
	bot *telego.Bot
}

// NewTelegoSender creates a TelegoSender
func NewTelegoSender(bot *telego.Bot) *TelegoSender {
	return &TelegoSender{bot: bot}
}

// inlineMarkup avoids storing a typed nil in the ReplyMarkup interface,
// which would serialize as an explicit null.
func inlineMarkup(m *telego.InlineKeyboardMarkup) telego.ReplyMarkup {
	if m == nil {
		return nil
	}
	return m
}

func replyParams(chatID int64, opts SendOptions) *telego.ReplyParameters {
	if opts.ReplyTo == 0 {
		return nil
	}
	replyChat := opts.ReplyToChatID
	if replyChat == 0 {
		replyChat = chatID
	}
	return &telego.ReplyParameters{
		ChatID:    telego.ChatID{ID: replyChat},
		MessageID: opts.ReplyTo,
	}
}

// SendText sends a plain text message.
func (s *TelegoSender) SendText(ctx context.Context, chatID int64, text string, markup *telego.InlineKeyboardMarkup, opts SendOptions) (int, error) {
	msg, err := s.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:              telego.ChatID{ID: chatID},
		Text:                text,
		ReplyMarkup:         inlineMarkup(markup),
		DisableNotification: opts.Silent,
		ProtectContent:      opts.Protected,
		ReplyParameters:     replyParams(chatID, opts),
	})
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// SendSingleMedia sends one media item with the text as caption. Voice and
// document messages cannot place the caption above the media.
func (s *TelegoSender) SendSingleMedia(ctx context.Context, chatID int64, media models.PostMedia, caption string, captionAbove bool, markup *telego.InlineKeyboardMarkup, opts SendOptions) (int, error) {
	file := telego.InputFile{FileID: media.FileID}
	reply := replyParams(chatID, opts)

	var msg *telego.Message
	var err error
	switch media.MediaType {
	case models.MediaPhoto:
		msg, err = s.bot.SendPhoto(ctx, &telego.SendPhotoParams{
			ChatID:                telego.ChatID{ID: chatID},
			Photo:                 file,
			Caption:               caption,
			ShowCaptionAboveMedia: captionAbove,
			ReplyMarkup:           inlineMarkup(markup),
			DisableNotification:   opts.Silent,
			ProtectContent:        opts.Protected,
			ReplyParameters:       reply,
		})
	case models.MediaVideo:
		msg, err = s.bot.SendVideo(ctx, &telego.SendVideoParams{
			ChatID:                telego.ChatID{ID: chatID},
			Video:                 file,
			Caption:               caption,
			ShowCaptionAboveMedia: captionAbove,
			ReplyMarkup:           inlineMarkup(markup),
			DisableNotification:   opts.Silent,
			ProtectContent:        opts.Protected,
			ReplyParameters:       reply,
		})
	case models.MediaGif:
		msg, err = s.bot.SendAnimation(ctx, &telego.SendAnimationParams{
			ChatID:                telego.ChatID{ID: chatID},
			Animation:             file,
			Caption:               caption,
			ShowCaptionAboveMedia: captionAbove,
			ReplyMarkup:           inlineMarkup(markup),
			DisableNotification:   opts.Silent,
			ProtectContent:        opts.Protected,
			ReplyParameters:       reply,
		})
	case models.MediaDocument:
		msg, err = s.bot.SendDocument(ctx, &telego.SendDocumentParams{
			ChatID:              telego.ChatID{ID: chatID},
			Document:            file,
			Caption:             caption,
			ReplyMarkup:         inlineMarkup(markup),
			DisableNotification: opts.Silent,
			ProtectContent:      opts.Protected,
			ReplyParameters:     reply,
		})
	case models.MediaVoice:
		msg, err = s.bot.SendVoice(ctx, &telego.SendVoiceParams{
			ChatID:              telego.ChatID{ID: chatID},
			Voice:               file,
			Caption:             caption,
			ReplyMarkup:         inlineMarkup(markup),
			DisableNotification: opts.Silent,
			ProtectContent:      opts.Protected,
			ReplyParameters:     reply,
		})
	default:
		return 0, fmt.Errorf("unsupported media type: %s", media.MediaType)
	}
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// SendMediaGroup sends 2..10 media items as one grouped message. The
// platform allows a single caption per group, attached to the first item.
func (s *TelegoSender) SendMediaGroup(ctx context.Context, chatID int64, items []models.PostMedia, caption string, captionAbove bool, opts SendOptions) ([]int, error) {
	inputMedia := make([]telego.InputMedia, 0, len(items))
	for i, item := range items {
		itemCaption := ""
		above := false
		if i == 0 {
			itemCaption = caption
			above = captionAbove
		}
		im, err := groupInputMedia(item, itemCaption, above)
		if err != nil {
			return nil, err
		}
		inputMedia = append(inputMedia, im)
	}

	msgs, err := s.bot.SendMediaGroup(ctx, &telego.SendMediaGroupParams{
		ChatID:              telego.ChatID{ID: chatID},
		Media:               inputMedia,
		DisableNotification: opts.Silent,
		ProtectContent:      opts.Protected,
		ReplyParameters:     replyParams(chatID, opts),
	})
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.MessageID)
	}
	return ids, nil
}

func groupInputMedia(item models.PostMedia, caption string, captionAbove bool) (telego.InputMedia, error) {
	file := telego.InputFile{FileID: item.FileID}
	switch item.MediaType {
	case models.MediaPhoto:
		return &telego.InputMediaPhoto{
			Type:                  telego.MediaTypePhoto,
			Media:                 file,
			Caption:               caption,
			ShowCaptionAboveMedia: captionAbove,
		}, nil
	case models.MediaVideo:
		return &telego.InputMediaVideo{
			Type:                  telego.MediaTypeVideo,
			Media:                 file,
			Caption:               caption,
			ShowCaptionAboveMedia: captionAbove,
		}, nil
	case models.MediaGif, models.MediaDocument:
		// Animations cannot join a media group; gifs degrade to documents.
		return &telego.InputMediaDocument{
			Type:    telego.MediaTypeDocument,
			Media:   file,
			Caption: caption,
		}, nil
	default:
		return nil, fmt.Errorf("media type %s cannot be part of a media group", item.MediaType)
	}
}

// Pin pins a message. Callers treat failures as best-effort.
func (s *TelegoSender) Pin(ctx context.Context, chatID int64, messageID int) error {
	return s.bot.PinChatMessage(ctx, &telego.PinChatMessageParams{
		ChatID:              telego.ChatID{ID: chatID},
		MessageID:           messageID,
		DisableNotification: true,
	})
}

// Delete removes a message from the destination chat.
func (s *TelegoSender) Delete(ctx context.Context, chatID int64, messageID int) error {
	return s.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    telego.ChatID{ID: chatID},
		MessageID: messageID,
	})
}

// IsIgnorableDeleteError reports whether a delete failure means the message
// is already gone or cannot be removed; the auto-delete pass tolerates both.
func IsIgnorableDeleteError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "message to delete not found") ||
		strings.Contains(msg, "message can't be deleted")
}
