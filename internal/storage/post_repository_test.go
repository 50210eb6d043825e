package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-poster/internal/models"
)

func TestCreatePostWithTargets(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)

	post, err := repo.CreatePostWithTargets(1, []int64{-100, -200}, "announcement")
	require.NoError(t, err)
	require.Len(t, post.Targets, 2)
	for _, target := range post.Targets {
		assert.Equal(t, models.StateDraft, target.State)
	}

	_, err = repo.CreatePostWithTargets(1, nil, "empty")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAddPostMediaLimits(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)
	post, err := repo.CreatePostWithTargets(1, []int64{-100}, "")
	require.NoError(t, err)

	err = repo.AddPostMedia(&models.PostMedia{PostID: post.ID, MediaType: models.MediaPhoto})
	assert.ErrorIs(t, err, ErrValidation) // empty file_id

	err = repo.AddPostMedia(&models.PostMedia{PostID: post.ID, MediaType: "sticker", FileID: "f"})
	assert.ErrorIs(t, err, ErrValidation)

	err = repo.AddPostMedia(&models.PostMedia{
		PostID: post.ID, MediaType: models.MediaVideo, FileID: "f",
		FileSize: models.MaxMediaFileSize + 1,
	})
	assert.ErrorIs(t, err, ErrValidation)

	for i := 0; i < models.MaxMediaPerPost; i++ {
		require.NoError(t, repo.AddPostMedia(&models.PostMedia{
			PostID: post.ID, MediaType: models.MediaPhoto, FileID: "f",
		}))
	}
	err = repo.AddPostMedia(&models.PostMedia{PostID: post.ID, MediaType: models.MediaPhoto, FileID: "f"})
	assert.ErrorIs(t, err, ErrValidation)

	full, err := repo.GetPostFull(post.ID)
	require.NoError(t, err)
	require.Len(t, full.Media, models.MaxMediaPerPost)
	// Items keep insertion order.
	for i, m := range full.Media {
		assert.Equal(t, i, m.OrderIndex)
	}
}

func TestReplacePostButtonsValidation(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)
	post, err := repo.CreatePostWithTargets(1, []int64{-100}, "btns")
	require.NoError(t, err)

	err = repo.ReplacePostButtons(post.ID, []models.PostButton{
		{Text: "a", URL: "https://a", Row: models.MaxButtonRows, Position: 0},
	})
	assert.ErrorIs(t, err, ErrValidation)

	err = repo.ReplacePostButtons(post.ID, []models.PostButton{
		{Text: "a", URL: "https://a", Row: 0, Position: 0},
		{Text: "b", URL: "https://b", Row: 0, Position: 0},
	})
	assert.ErrorIs(t, err, ErrValidation)

	err = repo.ReplacePostButtons(post.ID, []models.PostButton{
		{Text: "", URL: "https://a", Row: 0, Position: 0},
	})
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, repo.ReplacePostButtons(post.ID, []models.PostButton{
		{Text: "b", URL: "https://b", Row: 1, Position: 0},
		{Text: "a", URL: "https://a", Row: 0, Position: 0},
	}))

	full, err := repo.GetPostFull(post.ID)
	require.NoError(t, err)
	require.Len(t, full.Buttons, 2)
	// Preload orders by row then position.
	assert.Equal(t, "a", full.Buttons[0].Text)
	assert.Equal(t, "b", full.Buttons[1].Text)
}

func TestUpdatePostBumpsVersion(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)
	post, err := repo.CreatePostWithTargets(1, []int64{-100}, "v1")
	require.NoError(t, err)

	require.NoError(t, repo.UpdatePostText(post.ID, "v2"))
	silent := true
	require.NoError(t, repo.SetPostFlags(post.ID, PostFlags{Silent: &silent}))

	got, err := repo.GetPost(post.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Text)
	assert.True(t, got.Silent)
	assert.Equal(t, 3, got.Version)

	assert.ErrorIs(t, repo.UpdatePostText(99999, "nope"), ErrNotFound)
}

func TestSetTextPosition(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)
	post, err := repo.CreatePostWithTargets(1, []int64{-100}, "pos")
	require.NoError(t, err)

	assert.ErrorIs(t, repo.SetTextPosition(post.ID, "middle"), ErrValidation)
	require.NoError(t, repo.SetTextPosition(post.ID, models.TextPositionTop))

	got, err := repo.GetPost(post.ID)
	require.NoError(t, err)
	assert.True(t, got.CaptionAbove())
}

func TestDeletePostCascades(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)
	post, err := repo.CreatePostWithTargets(1, []int64{-100}, "gone")
	require.NoError(t, err)
	require.NoError(t, repo.AddPostMedia(&models.PostMedia{
		PostID: post.ID, MediaType: models.MediaPhoto, FileID: "f",
	}))
	require.NoError(t, repo.SetHiddenPart(&models.PostHiddenPart{
		PostID: post.ID, SubscriberText: "secret",
	}))

	require.NoError(t, repo.DeletePost(post.ID))

	_, err = repo.GetPost(post.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	var count int64
	require.NoError(t, db.Model(&models.PostMedia{}).Where("post_id = ?", post.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&models.PostTarget{}).Where("post_id = ?", post.ID).Count(&count).Error)
	assert.Zero(t, count)
}
