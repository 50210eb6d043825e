package storage

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tg-poster/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&models.Channel{},
		&models.ChannelAdmin{},
		&models.Post{},
		&models.PostMedia{},
		&models.PostButton{},
		&models.PostHiddenPart{},
		&models.PostTarget{},
		&models.ReplyTarget{},
		&models.PostEvent{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedPostWithTarget(t *testing.T, db *gorm.DB, channelID int64) *models.PostTarget {
	t.Helper()
	post := &models.Post{AuthorID: 1, Text: "hello", TextPosition: models.TextPositionBottom}
	require.NoError(t, db.Create(post).Error)
	target := &models.PostTarget{PostID: post.ID, ChannelID: channelID, State: models.StateDraft}
	require.NoError(t, db.Create(target).Error)
	return target
}

func TestScheduleFromDraft(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetRepository(db)
	target := seedPostWithTarget(t, db, -100)

	publishAt := time.Now().Add(time.Hour).Round(time.Second)
	require.NoError(t, repo.Schedule(target.ID, publishAt))

	got, err := repo.GetTarget(target.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateScheduled, got.State)
	require.NotNil(t, got.PublishAt)
	assert.WithinDuration(t, publishAt, *got.PublishAt, time.Second)
	assert.Nil(t, got.AutoDeleteAt)
}

func TestScheduleClearsErrorAndDerivesAutoDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetRepository(db)
	target := seedPostWithTarget(t, db, -100)

	secs := int64(3600)
	require.NoError(t, db.Model(target).Updates(map[string]interface{}{
		"auto_delete_after": secs,
		"last_error":        "previous failure",
	}).Error)

	publishAt := time.Now().Add(time.Hour).Round(time.Second)
	require.NoError(t, repo.Schedule(target.ID, publishAt))

	got, err := repo.GetTarget(target.ID)
	require.NoError(t, err)
	assert.Empty(t, got.LastError)
	require.NotNil(t, got.AutoDeleteAt)
	assert.WithinDuration(t, publishAt.Add(time.Hour), *got.AutoDeleteAt, time.Second)
}

func TestScheduleRejectedAfterSent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetRepository(db)
	target := seedPostWithTarget(t, db, -100)

	require.NoError(t, repo.PublishNow(target.ID, time.Now()))
	require.NoError(t, repo.MarkSent(target.ID, 42, time.Now()))

	err := repo.Schedule(target.ID, time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPublishNowQueuesImmediately(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetRepository(db)
	target := seedPostWithTarget(t, db, -100)

	now := time.Now().Round(time.Second)
	require.NoError(t, repo.PublishNow(target.ID, now))

	got, err := repo.GetTarget(target.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateQueued, got.State)
	require.NotNil(t, got.PublishAt)
	assert.WithinDuration(t, now, *got.PublishAt, time.Second)
}

func TestCancelStates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetRepository(db)

	draft := seedPostWithTarget(t, db, -100)
	require.NoError(t, repo.Cancel(draft.ID))
	got, err := repo.GetTarget(draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCanceled, got.State)

	// A second cancel hits a terminal state.
	assert.ErrorIs(t, repo.Cancel(draft.ID), ErrValidation)

	sent := seedPostWithTarget(t, db, -200)
	require.NoError(t, repo.PublishNow(sent.ID, time.Now()))
	require.NoError(t, repo.MarkSent(sent.ID, 7, time.Now()))
	assert.ErrorIs(t, repo.Cancel(sent.ID), ErrValidation)
}

func TestMarkSentDerivesAutoDeleteFromSendTime(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetRepository(db)
	target := seedPostWithTarget(t, db, -100)

	// Publish-now path: no auto_delete_at was derived before the send.
	secs := int64(60)
	require.NoError(t, db.Model(target).Update("auto_delete_after", secs).Error)
	require.NoError(t, repo.PublishNow(target.ID, time.Now()))

	// PublishNow derived it from publish time; clear to simulate the case
	// where the plan never had a time.
	require.NoError(t, db.Model(target).Update("auto_delete_at", nil).Error)

	sentAt := time.Now().Round(time.Second)
	require.NoError(t, repo.MarkSent(target.ID, 99, sentAt))

	got, err := repo.GetTarget(target.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateSent, got.State)
	require.NotNil(t, got.AutoDeleteAt)
	assert.WithinDuration(t, sentAt.Add(time.Minute), *got.AutoDeleteAt, time.Second)
}

func TestMarkSentKeepsPlannedAutoDeleteTime(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetRepository(db)
	target := seedPostWithTarget(t, db, -100)

	secs := int64(3600)
	require.NoError(t, db.Model(target).Update("auto_delete_after", secs).Error)
	publishAt := time.Now().Add(-time.Minute).Round(time.Second)
	require.NoError(t, repo.Schedule(target.ID, publishAt))
	require.NoError(t, repo.PublishNow(target.ID, publishAt))

	// The send lands a minute after the planned time; the countdown still
	// runs from the plan.
	require.NoError(t, repo.MarkSent(target.ID, 5, time.Now()))

	got, err := repo.GetTarget(target.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AutoDeleteAt)
	assert.WithinDuration(t, publishAt.Add(time.Hour), *got.AutoDeleteAt, time.Second)
}

func TestMarkFailedTruncatesAndStaysFailed(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetRepository(db)
	target := seedPostWithTarget(t, db, -100)
	require.NoError(t, repo.PublishNow(target.ID, time.Now()))

	long := make([]byte, MaxLastErrorLen+500)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, repo.MarkFailed(target.ID, string(long)))

	got, err := repo.GetTarget(target.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, got.State)
	assert.Len(t, got.LastError, MaxLastErrorLen)

	// Failed deliveries never re-enter the queue.
	queued, err := repo.PickQueued(10)
	require.NoError(t, err)
	assert.Empty(t, queued)
	promoted, err := repo.PickTargetsToPublish(time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, promoted)
}

func TestMarkFailedTrimsToRuneBoundary(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetRepository(db)
	target := seedPostWithTarget(t, db, -100)
	require.NoError(t, repo.PublishNow(target.ID, time.Now()))

	// 3-byte runes, so the byte limit falls inside a rune.
	long := strings.Repeat("€", MaxLastErrorLen/3+200)
	require.NoError(t, repo.MarkFailed(target.ID, long))

	got, err := repo.GetTarget(target.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got.LastError), MaxLastErrorLen)
	assert.True(t, utf8.ValidString(got.LastError))
}

func TestMarkAutoDeletedRequiresSent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetRepository(db)
	target := seedPostWithTarget(t, db, -100)

	assert.ErrorIs(t, repo.MarkAutoDeleted(target.ID), ErrValidation)

	require.NoError(t, repo.PublishNow(target.ID, time.Now()))
	require.NoError(t, repo.MarkSent(target.ID, 12, time.Now()))
	require.NoError(t, repo.MarkAutoDeleted(target.ID))

	got, err := repo.GetTarget(target.ID)
	require.NoError(t, err)
	assert.True(t, got.AutoDeleted)
	assert.Equal(t, models.StateSent, got.State)
}

func TestSetAutoDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetRepository(db)
	target := seedPostWithTarget(t, db, -100)

	publishAt := time.Now().Add(time.Hour).Round(time.Second)
	require.NoError(t, repo.Schedule(target.ID, publishAt))

	after := 30 * time.Minute
	require.NoError(t, repo.SetAutoDelete(target.ID, &after))

	got, err := repo.GetTarget(target.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AutoDeleteAfter)
	assert.Equal(t, int64(1800), *got.AutoDeleteAfter)
	require.NotNil(t, got.AutoDeleteAt)
	assert.WithinDuration(t, publishAt.Add(after), *got.AutoDeleteAt, time.Second)

	// Clearing removes both the duration and the derived timestamp.
	require.NoError(t, repo.SetAutoDelete(target.ID, nil))
	got, err = repo.GetTarget(target.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AutoDeleteAfter)
	assert.Nil(t, got.AutoDeleteAt)
	assert.False(t, got.AutoDeleted)
}

func TestSetAutoDeletePrefersSentAt(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetRepository(db)
	target := seedPostWithTarget(t, db, -100)

	publishAt := time.Now().Add(-2 * time.Hour).Round(time.Second)
	require.NoError(t, repo.PublishNow(target.ID, publishAt))
	sentAt := time.Now().Round(time.Second)
	require.NoError(t, repo.MarkSent(target.ID, 3, sentAt))

	after := time.Hour
	require.NoError(t, repo.SetAutoDelete(target.ID, &after))

	got, err := repo.GetTarget(target.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AutoDeleteAt)
	assert.WithinDuration(t, sentAt.Add(after), *got.AutoDeleteAt, time.Second)
}

func TestCopyToChannels(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetRepository(db)
	source := seedPostWithTarget(t, db, -100)

	secs := int64(900)
	require.NoError(t, db.Model(source).Update("auto_delete_after", secs).Error)

	// Without a publish time the copies are drafts.
	drafts, err := repo.CopyToChannels(source.ID, []int64{-200, -300}, nil, false)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	for _, c := range drafts {
		assert.Equal(t, models.StateDraft, c.State)
		assert.True(t, c.IsCopy)
		require.NotNil(t, c.CopiedFromTargetID)
		assert.Equal(t, source.ID, *c.CopiedFromTargetID)
		assert.Nil(t, c.AutoDeleteAfter)
	}

	// With a publish time and auto-delete copy the clones are scheduled.
	publishAt := time.Now().Add(time.Hour).Round(time.Second)
	scheduled, err := repo.CopyToChannels(source.ID, []int64{-400}, &publishAt, true)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	c := scheduled[0]
	assert.Equal(t, models.StateScheduled, c.State)
	require.NotNil(t, c.AutoDeleteAfter)
	assert.Equal(t, secs, *c.AutoDeleteAfter)
	require.NotNil(t, c.AutoDeleteAt)
	assert.WithinDuration(t, publishAt.Add(15*time.Minute), *c.AutoDeleteAt, time.Second)
}

func TestPickTargetsToPublishIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetRepository(db)

	t1 := seedPostWithTarget(t, db, -100)
	t2 := seedPostWithTarget(t, db, -200)
	now := time.Now()
	require.NoError(t, repo.Schedule(t1.ID, now.Add(-2*time.Minute)))
	require.NoError(t, repo.Schedule(t2.ID, now.Add(-time.Minute)))

	picked, err := repo.PickTargetsToPublish(now, 50)
	require.NoError(t, err)
	require.Len(t, picked, 2)
	// Oldest publish time first.
	assert.Equal(t, t1.ID, picked[0].ID)
	assert.Equal(t, t2.ID, picked[1].ID)

	// Nothing new became due, so the second pass finds nothing.
	again, err := repo.PickTargetsToPublish(now, 50)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestPickQueuedUnplannedFirst(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetRepository(db)

	planned := seedPostWithTarget(t, db, -100)
	require.NoError(t, repo.PublishNow(planned.ID, time.Now()))

	// A queued row without a publish time sorts ahead of planned ones.
	unplanned := seedPostWithTarget(t, db, -200)
	require.NoError(t, db.Model(unplanned).Update("state", models.StateQueued).Error)

	queued, err := repo.PickQueued(10)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, unplanned.ID, queued[0].ID)
	assert.Equal(t, planned.ID, queued[1].ID)
}

func TestPickTargetsToAutoDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetRepository(db)
	now := time.Now()

	expired := seedPostWithTarget(t, db, -100)
	require.NoError(t, repo.PublishNow(expired.ID, now.Add(-2*time.Hour)))
	require.NoError(t, repo.MarkSent(expired.ID, 1, now.Add(-2*time.Hour)))
	past := now.Add(-time.Minute)
	require.NoError(t, db.Model(expired).Update("auto_delete_at", past).Error)

	pending := seedPostWithTarget(t, db, -200)
	require.NoError(t, repo.PublishNow(pending.ID, now))
	require.NoError(t, repo.MarkSent(pending.ID, 2, now))
	future := now.Add(time.Hour)
	require.NoError(t, db.Model(pending).Update("auto_delete_at", future).Error)

	picked, err := repo.PickTargetsToAutoDelete(now, 50)
	require.NoError(t, err)
	require.Len(t, picked, 1)
	assert.Equal(t, expired.ID, picked[0].ID)

	require.NoError(t, repo.MarkAutoDeleted(expired.ID))
	picked, err = repo.PickTargetsToAutoDelete(now, 50)
	require.NoError(t, err)
	assert.Empty(t, picked)
}

func TestDeleteTargetRemovesOrphanedPost(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetRepository(db)

	post := &models.Post{AuthorID: 1, Text: "hi"}
	require.NoError(t, db.Create(post).Error)
	a := &models.PostTarget{PostID: post.ID, ChannelID: -100, State: models.StateDraft}
	b := &models.PostTarget{PostID: post.ID, ChannelID: -200, State: models.StateDraft}
	require.NoError(t, db.Create(a).Error)
	require.NoError(t, db.Create(b).Error)

	postDeleted, err := repo.DeleteTarget(a.ID)
	require.NoError(t, err)
	assert.False(t, postDeleted)

	postDeleted, err = repo.DeleteTarget(b.ID)
	require.NoError(t, err)
	assert.True(t, postDeleted)

	var count int64
	require.NoError(t, db.Model(&models.Post{}).Where("id = ?", post.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDuplicateChannelDeliveryRejected(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetRepository(db)
	target := seedPostWithTarget(t, db, -100)

	// A second delivery of the same post to the same channel violates the
	// unique (post_id, channel_id) pair.
	dup := &models.PostTarget{PostID: target.PostID, ChannelID: -100, State: models.StateDraft}
	assert.Error(t, db.Create(dup).Error)

	// Copying onto an already occupied destination fails and creates nothing.
	_, err := repo.CopyToChannels(target.ID, []int64{-100}, nil, false)
	assert.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.PostTarget{}).Where("post_id = ?", target.PostID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPlanningRequiresContent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetRepository(db)

	post := &models.Post{AuthorID: 1}
	require.NoError(t, db.Create(post).Error)
	target := &models.PostTarget{PostID: post.ID, ChannelID: -100, State: models.StateDraft}
	require.NoError(t, db.Create(target).Error)

	// An empty post never reaches the scheduler.
	assert.ErrorIs(t, repo.Schedule(target.ID, time.Now().Add(time.Hour)), ErrValidation)
	assert.ErrorIs(t, repo.PublishNow(target.ID, time.Now()), ErrValidation)
	publishAt := time.Now().Add(time.Hour)
	_, err := repo.CopyToChannels(target.ID, []int64{-200}, &publishAt, false)
	assert.ErrorIs(t, err, ErrValidation)

	// Media alone makes the post sendable.
	require.NoError(t, db.Create(&models.PostMedia{
		PostID: post.ID, MediaType: models.MediaPhoto, FileID: "f",
	}).Error)
	require.NoError(t, repo.Schedule(target.ID, time.Now().Add(time.Hour)))

	got, err := repo.GetTarget(target.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateScheduled, got.State)
}

func TestReplyFromPlanRequiresSentSource(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTargetRepository(db)

	source := seedPostWithTarget(t, db, -100)
	reply := seedPostWithTarget(t, db, -100)

	assert.ErrorIs(t, repo.SetReplyFromPlan(reply.ID, source.ID), ErrValidation)

	require.NoError(t, repo.PublishNow(source.ID, time.Now()))
	require.NoError(t, repo.MarkSent(source.ID, 77, time.Now()))
	require.NoError(t, repo.SetReplyFromPlan(reply.ID, source.ID))

	full, err := repo.GetTargetFull(reply.ID)
	require.NoError(t, err)
	require.NotNil(t, full.Reply)
	assert.Equal(t, models.ReplyContentPlan, full.Reply.ReplyType)
	assert.Equal(t, int64(-100), full.Reply.ReplyToChannelID)
	assert.Equal(t, 77, full.Reply.ReplyToMessageID)
}
