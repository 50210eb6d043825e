package service

import (
	"fmt"

	"tg-poster/internal/logger"
	"tg-poster/internal/models"
	"tg-poster/internal/storage"
)

// CreatePost creates a post template with one draft delivery per channel.
// The author must administer every destination channel.
func CreatePost(authorID int64, channelIDs []int64, text string) (*models.Post, error) {
	if postRepository == nil {
		return nil, fmt.Errorf("post repository is not initialized")
	}
	for _, chID := range channelIDs {
		if err := requireChannelAccess(authorID, chID); err != nil {
			return nil, err
		}
	}

	post, err := postRepository.CreatePostWithTargets(authorID, channelIDs, text)
	if err != nil {
		return nil, err
	}
	recordEvent(post.ID, nil, authorID, models.EventCreated, nil)
	logger.Infof("User %d created post %d with %d deliveries", authorID, post.ID, len(post.Targets))
	return post, nil
}

// GetPost loads a post with all content, guarded by access.
func GetPost(userID, postID int64) (*models.Post, error) {
	if postRepository == nil {
		return nil, fmt.Errorf("post repository is not initialized")
	}
	post, err := postRepository.GetPostFull(postID)
	if err != nil {
		return nil, err
	}
	if err := requirePostAccess(userID, post); err != nil {
		return nil, err
	}
	return post, nil
}

// UpdatePostText replaces the post text.
func UpdatePostText(userID, postID int64, text string) error {
	post, err := GetPost(userID, postID)
	if err != nil {
		return err
	}
	if err := postRepository.UpdatePostText(post.ID, text); err != nil {
		return err
	}
	recordEvent(post.ID, nil, userID, models.EventUpdated, nil)
	return nil
}

// SetTextPosition moves the caption above or below the media.
func SetTextPosition(userID, postID int64, position string) error {
	post, err := GetPost(userID, postID)
	if err != nil {
		return err
	}
	if err := postRepository.SetTextPosition(post.ID, position); err != nil {
		return err
	}
	recordEvent(post.ID, nil, userID, models.EventUpdated, nil)
	return nil
}

// SetPostFlags updates presentation flags (silent, pinned, protected, ...).
func SetPostFlags(userID, postID int64, flags storage.PostFlags) error {
	post, err := GetPost(userID, postID)
	if err != nil {
		return err
	}
	if err := postRepository.SetPostFlags(post.ID, flags); err != nil {
		return err
	}
	recordEvent(post.ID, nil, userID, models.EventUpdated, nil)
	return nil
}

// AddPostMedia attaches a media item to the post.
func AddPostMedia(userID int64, media *models.PostMedia) error {
	post, err := GetPost(userID, media.PostID)
	if err != nil {
		return err
	}
	if err := postRepository.AddPostMedia(media); err != nil {
		return err
	}
	recordEvent(post.ID, nil, userID, models.EventUpdated, nil)
	return nil
}

// ClearPostMedia removes all media from the post.
func ClearPostMedia(userID, postID int64) error {
	post, err := GetPost(userID, postID)
	if err != nil {
		return err
	}
	if err := postRepository.ClearPostMedia(post.ID); err != nil {
		return err
	}
	recordEvent(post.ID, nil, userID, models.EventUpdated, nil)
	return nil
}

// ReplacePostButtons swaps the URL button grid.
func ReplacePostButtons(userID, postID int64, buttons []models.PostButton) error {
	post, err := GetPost(userID, postID)
	if err != nil {
		return err
	}
	if err := postRepository.ReplacePostButtons(post.ID, buttons); err != nil {
		return err
	}
	recordEvent(post.ID, nil, userID, models.EventUpdated, nil)
	return nil
}

// SetHiddenPart creates or replaces the gated continuation.
func SetHiddenPart(userID int64, part *models.PostHiddenPart) error {
	post, err := GetPost(userID, part.PostID)
	if err != nil {
		return err
	}
	if err := postRepository.SetHiddenPart(part); err != nil {
		return err
	}
	recordEvent(post.ID, nil, userID, models.EventUpdated, nil)
	return nil
}

// DeleteHiddenPart removes the gated continuation.
func DeleteHiddenPart(userID, postID int64) error {
	post, err := GetPost(userID, postID)
	if err != nil {
		return err
	}
	if err := postRepository.DeleteHiddenPart(post.ID); err != nil {
		return err
	}
	recordEvent(post.ID, nil, userID, models.EventUpdated, nil)
	return nil
}

// DeletePost removes the post and everything attached to it. The event is
// written before the rows disappear.
func DeletePost(userID, postID int64) error {
	post, err := GetPost(userID, postID)
	if err != nil {
		return err
	}
	recordEvent(post.ID, nil, userID, models.EventDeleted, nil)
	if err := postRepository.DeletePost(post.ID); err != nil {
		return err
	}
	logger.Infof("User %d deleted post %d", userID, postID)
	return nil
}

// PostHistory returns the newest audit events of a post.
func PostHistory(userID, postID int64, limit int) ([]models.PostEvent, error) {
	if eventRepository == nil {
		return nil, fmt.Errorf("event repository is not initialized")
	}
	if _, err := GetPost(userID, postID); err != nil {
		return nil, err
	}
	return eventRepository.PostEvents(postID, limit)
}

// recordEvent appends an audit event; logging failures never fail the
// operation itself.
func recordEvent(postID int64, targetID *int64, actorUserID int64, eventType models.PostEventType, payload any) {
	if eventRepository == nil {
		return
	}
	if _, err := eventRepository.LogEvent(postID, targetID, &actorUserID, eventType, payload); err != nil {
		logger.Warningf("Failed to record %s event for post %d: %v", eventType, postID, err)
	}
}
