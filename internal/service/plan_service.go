package service

import (
	"fmt"
	"time"

	"tg-poster/internal/models"
	"tg-poster/internal/storage"
)

// Content-plan views: what is planned and what went out, per channel and
// per day. All of them are read-only and access-guarded.

// ChannelDayPlan lists pending deliveries of one channel on a given day.
func ChannelDayPlan(userID, channelID int64, day time.Time) ([]storage.DayPlanItem, error) {
	if targetRepository == nil {
		return nil, fmt.Errorf("target repository is not initialized")
	}
	if err := requireChannelAccess(userID, channelID); err != nil {
		return nil, err
	}
	return targetRepository.DayPlanForChannel(channelID, day)
}

// DayOverview lists all deliveries across the user's channels that touch
// the date: pending ones by publish time, sent ones by send time.
func DayOverview(userID int64, day time.Time) ([]models.PostTarget, error) {
	ids, err := userChannelIDs(userID)
	if err != nil {
		return nil, err
	}
	return targetRepository.TargetsForDate(ids, day)
}

// MonthOverview returns, per day of the month, how many deliveries the
// user's channels have.
func MonthOverview(userID int64, year int, month time.Month) (map[int]int, error) {
	ids, err := userChannelIDs(userID)
	if err != nil {
		return nil, err
	}
	return targetRepository.DatesWithPosts(ids, year, month)
}

// UpcomingDays lists every day that still has pending deliveries for the
// user's channels, with counts.
func UpcomingDays(userID int64) ([]storage.DayCount, error) {
	ids, err := userChannelIDs(userID)
	if err != nil {
		return nil, err
	}
	return targetRepository.ScheduledDaysSummary(ids)
}

func userChannelIDs(userID int64) ([]int64, error) {
	if targetRepository == nil {
		return nil, fmt.Errorf("target repository is not initialized")
	}
	channels, err := UserChannels(userID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(channels))
	for _, ch := range channels {
		ids = append(ids, ch.ID)
	}
	return ids, nil
}
