package sender

import (
	"context"
	"fmt"
	"sort"

	"github.com/mymmrac/telego"

	"tg-poster/internal/logger"
	"tg-poster/internal/models"
)

// DefaultHiddenButtonText labels the gated-continuation button when the
// author did not set a custom label.
const DefaultHiddenButtonText = "Read more"

// zeroWidthSpace carries the inline keyboard of a media group, which cannot
// hold a reply markup itself.
const zeroWidthSpace = "​"

// BuildKeyboard assembles the post's inline keyboard: the URL button grid in
// row/position order, then the gated-continuation button on its own last row.
// Returns nil when the post has neither.
func BuildKeyboard(post *models.Post) *telego.InlineKeyboardMarkup {
	buttons := make([]models.PostButton, len(post.Buttons))
	copy(buttons, post.Buttons)
	sort.Slice(buttons, func(i, j int) bool {
		if buttons[i].Row != buttons[j].Row {
			return buttons[i].Row < buttons[j].Row
		}
		return buttons[i].Position < buttons[j].Position
	})

	var rows [][]telego.InlineKeyboardButton
	lastRow := -1
	for _, b := range buttons {
		btn := telego.InlineKeyboardButton{Text: b.Text, URL: b.URL}
		if len(rows) > 0 && b.Row == lastRow {
			rows[len(rows)-1] = append(rows[len(rows)-1], btn)
			continue
		}
		rows = append(rows, []telego.InlineKeyboardButton{btn})
		lastRow = b.Row
	}

	if post.HiddenPart != nil {
		text := post.HiddenPart.ButtonText
		if text == "" {
			text = DefaultHiddenButtonText
		}
		rows = append(rows, []telego.InlineKeyboardButton{{
			Text:         "🔒 " + text,
			CallbackData: fmt.Sprintf("hidden:%d", post.ID),
		}})
	}

	if len(rows) == 0 {
		return nil
	}
	return &telego.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// CaptionAboveFor reports whether the caption may render above the media for
// this media type. Voice and document messages always caption below.
func CaptionAboveFor(post *models.Post, mediaType models.MediaType) bool {
	if mediaType == models.MediaVoice || mediaType == models.MediaDocument {
		return false
	}
	return post.CaptionAbove()
}

// Publish renders and sends one delivery. The target must arrive with its
// Post (media, buttons, hidden part) and Reply preloaded. It returns every
// platform message id the delivery produced, first id first.
//
// The pin, when requested, is best-effort: a pin failure never fails the
// delivery.
func Publish(ctx context.Context, s Sender, target *models.PostTarget) ([]int, error) {
	post := target.Post
	if post == nil {
		return nil, fmt.Errorf("target %d has no post loaded", target.ID)
	}

	opts := SendOptions{
		Silent:    post.Silent,
		Protected: post.Protected,
	}
	if target.Reply != nil {
		opts.ReplyTo = target.Reply.ReplyToMessageID
		// Cross-chat replies keep the source chat in the reply parameters.
		if target.Reply.ReplyToChannelID != target.ChannelID {
			opts.ReplyToChatID = target.Reply.ReplyToChannelID
		}
	}

	markup := BuildKeyboard(post)

	ids, err := send(ctx, s, target.ChannelID, post, markup, opts)
	if err != nil {
		return nil, err
	}

	if post.Pinned && len(ids) > 0 {
		if pinErr := s.Pin(ctx, target.ChannelID, ids[0]); pinErr != nil {
			logger.Warningf("Failed to pin message %d in chat %d: %v", ids[0], target.ChannelID, pinErr)
		}
	}
	return ids, nil
}

func send(ctx context.Context, s Sender, chatID int64, post *models.Post, markup *telego.InlineKeyboardMarkup, opts SendOptions) ([]int, error) {
	switch len(post.Media) {
	case 0:
		if post.Text == "" {
			return nil, fmt.Errorf("post %d has neither text nor media", post.ID)
		}
		id, err := s.SendText(ctx, chatID, post.Text, markup, opts)
		if err != nil {
			return nil, err
		}
		return []int{id}, nil

	case 1:
		item := post.Media[0]
		id, err := s.SendSingleMedia(ctx, chatID, item, post.Text, CaptionAboveFor(post, item.MediaType), markup, opts)
		if err != nil {
			return nil, err
		}
		return []int{id}, nil

	default:
		ids, err := s.SendMediaGroup(ctx, chatID, post.Media, post.Text, CaptionAboveFor(post, post.Media[0].MediaType), opts)
		if err != nil {
			return nil, err
		}
		// A media group cannot carry a reply markup; the keyboard rides on
		// a follow-up zero-width-space message.
		if markup != nil {
			kbOpts := SendOptions{Silent: true, Protected: opts.Protected}
			kbID, err := s.SendText(ctx, chatID, zeroWidthSpace, markup, kbOpts)
			if err != nil {
				return nil, err
			}
			ids = append(ids, kbID)
		}
		return ids, nil
	}
}
