package service

import (
	"fmt"
	"time"

	"tg-poster/internal/logger"
	"tg-poster/internal/models"
)

// getGuardedTarget loads a delivery and checks channel access.
func getGuardedTarget(userID, targetID int64) (*models.PostTarget, error) {
	if targetRepository == nil {
		return nil, fmt.Errorf("target repository is not initialized")
	}
	target, err := targetRepository.GetTarget(targetID)
	if err != nil {
		return nil, err
	}
	if err := requireChannelAccess(userID, target.ChannelID); err != nil {
		return nil, err
	}
	return target, nil
}

// GetTarget loads a delivery with its post content, guarded by access.
func GetTarget(userID, targetID int64) (*models.PostTarget, error) {
	if _, err := getGuardedTarget(userID, targetID); err != nil {
		return nil, err
	}
	return targetRepository.GetTargetFull(targetID)
}

// ScheduleTarget plans the delivery for publishAt. Scheduling an already
// scheduled delivery records a reschedule.
func ScheduleTarget(userID, targetID int64, publishAt time.Time) error {
	target, err := getGuardedTarget(userID, targetID)
	if err != nil {
		return err
	}

	wasScheduled := target.State == models.StateScheduled
	if err := targetRepository.Schedule(targetID, publishAt); err != nil {
		return err
	}

	eventType := models.EventScheduled
	if wasScheduled {
		eventType = models.EventRescheduled
	}
	recordEvent(target.PostID, &target.ID, userID, eventType, models.ScheduledPayload{PublishAt: publishAt})
	logger.Infof("User %d scheduled delivery %d for %s", userID, targetID, publishAt.Format(time.RFC3339))
	return nil
}

// PublishTargetNow queues the delivery for the next scheduler tick.
func PublishTargetNow(userID, targetID int64) error {
	target, err := getGuardedTarget(userID, targetID)
	if err != nil {
		return err
	}

	now := time.Now()
	if err := targetRepository.PublishNow(targetID, now); err != nil {
		return err
	}
	recordEvent(target.PostID, &target.ID, userID, models.EventScheduled, models.ScheduledPayload{PublishAt: now})
	logger.Infof("User %d queued delivery %d for immediate publication", userID, targetID)
	return nil
}

// CancelTarget stops a pending delivery.
func CancelTarget(userID, targetID int64) error {
	target, err := getGuardedTarget(userID, targetID)
	if err != nil {
		return err
	}
	if err := targetRepository.Cancel(targetID); err != nil {
		return err
	}
	recordEvent(target.PostID, &target.ID, userID, models.EventCanceled, nil)
	logger.Infof("User %d canceled delivery %d", userID, targetID)
	return nil
}

// SetTargetAutoDelete sets or clears the delivery's auto-delete delay.
func SetTargetAutoDelete(userID, targetID int64, after *time.Duration) error {
	target, err := getGuardedTarget(userID, targetID)
	if err != nil {
		return err
	}
	if err := targetRepository.SetAutoDelete(targetID, after); err != nil {
		return err
	}
	recordEvent(target.PostID, &target.ID, userID, models.EventUpdated, nil)
	return nil
}

// CopyTarget clones a delivery onto more channels of the same post. The
// user must administer the source channel and every destination.
func CopyTarget(userID, sourceTargetID int64, channelIDs []int64, publishAt *time.Time, copyAutoDelete bool) ([]models.PostTarget, error) {
	source, err := getGuardedTarget(userID, sourceTargetID)
	if err != nil {
		return nil, err
	}
	for _, chID := range channelIDs {
		if err := requireChannelAccess(userID, chID); err != nil {
			return nil, err
		}
	}

	created, err := targetRepository.CopyToChannels(sourceTargetID, channelIDs, publishAt, copyAutoDelete)
	if err != nil {
		return nil, err
	}
	for i := range created {
		recordEvent(source.PostID, &created[i].ID, userID, models.EventCreated, nil)
		if publishAt != nil {
			recordEvent(source.PostID, &created[i].ID, userID, models.EventScheduled, models.ScheduledPayload{PublishAt: *publishAt})
		}
	}
	logger.Infof("User %d copied delivery %d to %d channels", userID, sourceTargetID, len(created))
	return created, nil
}

// DeleteTarget removes a delivery; removing the last one also removes the
// post.
func DeleteTarget(userID, targetID int64) error {
	target, err := getGuardedTarget(userID, targetID)
	if err != nil {
		return err
	}

	recordEvent(target.PostID, &target.ID, userID, models.EventDeleted, nil)
	postDeleted, err := targetRepository.DeleteTarget(targetID)
	if err != nil {
		return err
	}
	if postDeleted {
		logger.Infof("User %d deleted delivery %d and its orphaned post %d", userID, targetID, target.PostID)
	}
	return nil
}

// SetReplyForwarded makes the delivery a reply to a channel message given
// directly by chat and message id.
func SetReplyForwarded(userID, targetID, replyToChannelID int64, replyToMessageID int) error {
	target, err := getGuardedTarget(userID, targetID)
	if err != nil {
		return err
	}
	if err := targetRepository.SetReplyForwarded(targetID, replyToChannelID, replyToMessageID); err != nil {
		return err
	}
	recordEvent(target.PostID, &target.ID, userID, models.EventUpdated, nil)
	return nil
}

// SetReplyFromPlan makes the delivery a reply to another, already sent
// delivery from the content plan.
func SetReplyFromPlan(userID, targetID, sourceTargetID int64) error {
	target, err := getGuardedTarget(userID, targetID)
	if err != nil {
		return err
	}
	if err := targetRepository.SetReplyFromPlan(targetID, sourceTargetID); err != nil {
		return err
	}
	recordEvent(target.PostID, &target.ID, userID, models.EventUpdated, nil)
	return nil
}

// ClearTargetReply removes the reply link.
func ClearTargetReply(userID, targetID int64) error {
	target, err := getGuardedTarget(userID, targetID)
	if err != nil {
		return err
	}
	if err := targetRepository.ClearReply(targetID); err != nil {
		return err
	}
	recordEvent(target.PostID, &target.ID, userID, models.EventUpdated, nil)
	return nil
}
