package sender

import (
	"context"
	"fmt"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-poster/internal/models"
)

type recordedSend struct {
	kind         string
	chatID       int64
	text         string
	captionAbove bool
	mediaCount   int
	markup       *telego.InlineKeyboardMarkup
	opts         SendOptions
}

type recordingSender struct {
	sends     []recordedSend
	pins      []int
	pinErr    error
	nextMsgID int
}

func (r *recordingSender) SendText(_ context.Context, chatID int64, text string, markup *telego.InlineKeyboardMarkup, opts SendOptions) (int, error) {
	r.sends = append(r.sends, recordedSend{kind: "text", chatID: chatID, text: text, markup: markup, opts: opts})
	r.nextMsgID++
	return r.nextMsgID, nil
}

func (r *recordingSender) SendSingleMedia(_ context.Context, chatID int64, media models.PostMedia, caption string, captionAbove bool, markup *telego.InlineKeyboardMarkup, opts SendOptions) (int, error) {
	r.sends = append(r.sends, recordedSend{
		kind: "single:" + string(media.MediaType), chatID: chatID, text: caption,
		captionAbove: captionAbove, markup: markup, opts: opts,
	})
	r.nextMsgID++
	return r.nextMsgID, nil
}

func (r *recordingSender) SendMediaGroup(_ context.Context, chatID int64, items []models.PostMedia, caption string, captionAbove bool, opts SendOptions) ([]int, error) {
	r.sends = append(r.sends, recordedSend{
		kind: "group", chatID: chatID, text: caption,
		captionAbove: captionAbove, mediaCount: len(items), opts: opts,
	})
	ids := make([]int, len(items))
	for i := range ids {
		r.nextMsgID++
		ids[i] = r.nextMsgID
	}
	return ids, nil
}

func (r *recordingSender) Pin(_ context.Context, _ int64, messageID int) error {
	if r.pinErr != nil {
		return r.pinErr
	}
	r.pins = append(r.pins, messageID)
	return nil
}

func (r *recordingSender) Delete(_ context.Context, _ int64, _ int) error { return nil }

func textTarget(text string) *models.PostTarget {
	return &models.PostTarget{
		ID:        1,
		ChannelID: -100,
		State:     models.StateQueued,
		Post:      &models.Post{ID: 10, Text: text},
	}
}

func TestBuildKeyboardGridOrder(t *testing.T) {
	post := &models.Post{
		ID: 1,
		Buttons: []models.PostButton{
			{Text: "c", URL: "https://c", Row: 1, Position: 0},
			{Text: "b", URL: "https://b", Row: 0, Position: 1},
			{Text: "a", URL: "https://a", Row: 0, Position: 0},
		},
	}

	kb := BuildKeyboard(post)
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard, 2)
	require.Len(t, kb.InlineKeyboard[0], 2)
	assert.Equal(t, "a", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "b", kb.InlineKeyboard[0][1].Text)
	assert.Equal(t, "c", kb.InlineKeyboard[1][0].Text)
}

func TestBuildKeyboardHiddenButton(t *testing.T) {
	post := &models.Post{
		ID:         7,
		HiddenPart: &models.PostHiddenPart{SubscriberText: "secret"},
	}

	kb := BuildKeyboard(post)
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard, 1)
	btn := kb.InlineKeyboard[0][0]
	assert.Equal(t, "🔒 "+DefaultHiddenButtonText, btn.Text)
	assert.Equal(t, "hidden:7", btn.CallbackData)

	post.HiddenPart.ButtonText = "More"
	kb = BuildKeyboard(post)
	assert.Equal(t, "🔒 More", kb.InlineKeyboard[0][0].Text)

	// The hidden row always comes after the URL grid.
	post.Buttons = []models.PostButton{{Text: "a", URL: "https://a", Row: 0, Position: 0}}
	kb = BuildKeyboard(post)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, "a", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "hidden:7", kb.InlineKeyboard[1][0].CallbackData)
}

func TestBuildKeyboardEmpty(t *testing.T) {
	assert.Nil(t, BuildKeyboard(&models.Post{ID: 1}))
}

func TestCaptionAboveFor(t *testing.T) {
	post := &models.Post{TextPosition: models.TextPositionTop}
	assert.True(t, CaptionAboveFor(post, models.MediaPhoto))
	assert.True(t, CaptionAboveFor(post, models.MediaVideo))
	assert.True(t, CaptionAboveFor(post, models.MediaGif))
	assert.False(t, CaptionAboveFor(post, models.MediaVoice))
	assert.False(t, CaptionAboveFor(post, models.MediaDocument))

	post.TextPosition = models.TextPositionBottom
	assert.False(t, CaptionAboveFor(post, models.MediaPhoto))
}

func TestPublishTextOnly(t *testing.T) {
	snd := &recordingSender{}
	target := textTarget("plain text")
	target.Post.Silent = true

	ids, err := Publish(context.Background(), snd, target)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	require.Len(t, snd.sends, 1)
	assert.Equal(t, "text", snd.sends[0].kind)
	assert.Equal(t, "plain text", snd.sends[0].text)
	assert.True(t, snd.sends[0].opts.Silent)
	assert.Empty(t, snd.pins)
}

func TestPublishEmptyPostRejected(t *testing.T) {
	snd := &recordingSender{}
	_, err := Publish(context.Background(), snd, textTarget(""))
	assert.Error(t, err)
	assert.Empty(t, snd.sends)
}

func TestPublishSingleMediaCaptionPlacement(t *testing.T) {
	snd := &recordingSender{}
	target := textTarget("caption")
	target.Post.TextPosition = models.TextPositionTop
	target.Post.Media = []models.PostMedia{{MediaType: models.MediaPhoto, FileID: "f1"}}

	ids, err := Publish(context.Background(), snd, target)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	require.Len(t, snd.sends, 1)
	assert.Equal(t, "single:photo", snd.sends[0].kind)
	assert.Equal(t, "caption", snd.sends[0].text)
	assert.True(t, snd.sends[0].captionAbove)

	// Voice never captions above.
	snd = &recordingSender{}
	target.Post.Media = []models.PostMedia{{MediaType: models.MediaVoice, FileID: "v1"}}
	_, err = Publish(context.Background(), snd, target)
	require.NoError(t, err)
	assert.False(t, snd.sends[0].captionAbove)
}

func TestPublishMediaGroupWithKeyboard(t *testing.T) {
	snd := &recordingSender{}
	target := textTarget("group caption")
	target.Post.Media = []models.PostMedia{
		{MediaType: models.MediaPhoto, FileID: "f1"},
		{MediaType: models.MediaVideo, FileID: "f2"},
		{MediaType: models.MediaPhoto, FileID: "f3"},
	}
	target.Post.Buttons = []models.PostButton{{Text: "a", URL: "https://a", Row: 0, Position: 0}}

	ids, err := Publish(context.Background(), snd, target)
	require.NoError(t, err)
	// Three group messages plus the trailing keyboard carrier.
	assert.Len(t, ids, 4)
	require.Len(t, snd.sends, 2)

	group := snd.sends[0]
	assert.Equal(t, "group", group.kind)
	assert.Equal(t, 3, group.mediaCount)
	assert.Equal(t, "group caption", group.text)

	carrier := snd.sends[1]
	assert.Equal(t, "text", carrier.kind)
	assert.Equal(t, zeroWidthSpace, carrier.text)
	require.NotNil(t, carrier.markup)
	assert.True(t, carrier.opts.Silent)
}

func TestPublishMediaGroupWithoutKeyboard(t *testing.T) {
	snd := &recordingSender{}
	target := textTarget("just media")
	target.Post.Media = []models.PostMedia{
		{MediaType: models.MediaPhoto, FileID: "f1"},
		{MediaType: models.MediaPhoto, FileID: "f2"},
	}

	ids, err := Publish(context.Background(), snd, target)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	require.Len(t, snd.sends, 1)
}

func TestPublishPinsBestEffort(t *testing.T) {
	snd := &recordingSender{}
	target := textTarget("pin me")
	target.Post.Pinned = true

	ids, err := Publish(context.Background(), snd, target)
	require.NoError(t, err)
	require.Len(t, snd.pins, 1)
	assert.Equal(t, ids[0], snd.pins[0])

	// A pin failure never fails the delivery.
	snd = &recordingSender{pinErr: fmt.Errorf("no pin rights")}
	_, err = Publish(context.Background(), snd, target)
	assert.NoError(t, err)
}

func TestPublishReplyResolution(t *testing.T) {
	snd := &recordingSender{}
	target := textTarget("reply")
	target.Reply = &models.ReplyTarget{
		TargetID:         target.ID,
		ReplyType:        models.ReplyContentPlan,
		ReplyToChannelID: target.ChannelID,
		ReplyToMessageID: 555,
	}

	_, err := Publish(context.Background(), snd, target)
	require.NoError(t, err)
	assert.Equal(t, 555, snd.sends[0].opts.ReplyTo)
	assert.Zero(t, snd.sends[0].opts.ReplyToChatID)

	// A reply pointing at another chat carries the source chat along.
	snd = &recordingSender{}
	target.Reply.ReplyToChannelID = -999
	_, err = Publish(context.Background(), snd, target)
	require.NoError(t, err)
	assert.Equal(t, 555, snd.sends[0].opts.ReplyTo)
	assert.Equal(t, int64(-999), snd.sends[0].opts.ReplyToChatID)
}

func TestReplyParamsChatSelection(t *testing.T) {
	assert.Nil(t, replyParams(-100, SendOptions{}))

	p := replyParams(-100, SendOptions{ReplyTo: 5})
	require.NotNil(t, p)
	assert.Equal(t, int64(-100), p.ChatID.ID)
	assert.Equal(t, 5, p.MessageID)

	p = replyParams(-100, SendOptions{ReplyTo: 5, ReplyToChatID: -999})
	require.NotNil(t, p)
	assert.Equal(t, int64(-999), p.ChatID.ID)
}

func TestGroupInputMediaKinds(t *testing.T) {
	photo, err := groupInputMedia(models.PostMedia{MediaType: models.MediaPhoto, FileID: "f"}, "cap", true)
	require.NoError(t, err)
	assert.IsType(t, &telego.InputMediaPhoto{}, photo)

	gif, err := groupInputMedia(models.PostMedia{MediaType: models.MediaGif, FileID: "f"}, "", false)
	require.NoError(t, err)
	assert.IsType(t, &telego.InputMediaDocument{}, gif)

	_, err = groupInputMedia(models.PostMedia{MediaType: models.MediaVoice, FileID: "f"}, "", false)
	assert.Error(t, err)
}
