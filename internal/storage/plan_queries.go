package storage

import (
	"time"

	"tg-poster/internal/models"
)

// Read-side content-plan queries. These never mutate state; the calendar UI
// is the only consumer.

// DayPlanItem is one row of a channel's plan for a single day.
type DayPlanItem struct {
	TargetID  int64
	ChannelID int64
	PublishAt time.Time
	State     models.TargetState
}

// DayPlanForChannel lists pending deliveries of a channel on a given day,
// ordered by publish time.
func (r *TargetRepository) DayPlanForChannel(channelID int64, day time.Time) ([]DayPlanItem, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	var items []DayPlanItem
	err := r.db.Model(&models.PostTarget{}).
		Select("id AS target_id, channel_id, publish_at, state").
		Where("channel_id = ?", channelID).
		Where("publish_at IS NOT NULL").
		Where("publish_at >= ? AND publish_at < ?", start, end).
		Where("state IN ?", []models.TargetState{models.StateScheduled, models.StateQueued}).
		Order("publish_at ASC").
		Scan(&items).Error
	return items, err
}

// TargetsForDate lists all deliveries of the given channels that touch the
// date: pending ones by publish time, sent ones by send time.
func (r *TargetRepository) TargetsForDate(channelIDs []int64, day time.Time) ([]models.PostTarget, error) {
	if len(channelIDs) == 0 {
		return nil, nil
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	var targets []models.PostTarget
	err := r.db.
		Where("channel_id IN ?", channelIDs).
		Where(
			r.db.Where("state IN ?", []models.TargetState{models.StateScheduled, models.StateQueued}).
				Where("publish_at >= ? AND publish_at < ?", start, end).
				Or(r.db.Where("state = ?", models.StateSent).
					Where("sent_at >= ? AND sent_at < ?", start, end)),
		).
		Order("COALESCE(publish_at, sent_at) ASC").
		Find(&targets).Error
	return targets, err
}

// DayCount pairs a calendar day with the number of deliveries on it.
type DayCount struct {
	Day   time.Time
	Count int
}

// DatesWithPosts returns, for a month, the days that have pending or sent
// deliveries in the given channels and how many.
func (r *TargetRepository) DatesWithPosts(channelIDs []int64, year int, month time.Month) (map[int]int, error) {
	if len(channelIDs) == 0 {
		return map[int]int{}, nil
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	counts := map[int]int{}

	var pending []models.PostTarget
	err := r.db.
		Where("channel_id IN ?", channelIDs).
		Where("state IN ?", []models.TargetState{models.StateScheduled, models.StateQueued}).
		Where("publish_at >= ? AND publish_at < ?", start, end).
		Find(&pending).Error
	if err != nil {
		return nil, err
	}
	for _, t := range pending {
		counts[t.PublishAt.Day()]++
	}

	var sent []models.PostTarget
	err = r.db.
		Where("channel_id IN ?", channelIDs).
		Where("state = ?", models.StateSent).
		Where("sent_at >= ? AND sent_at < ?", start, end).
		Find(&sent).Error
	if err != nil {
		return nil, err
	}
	for _, t := range sent {
		counts[t.SentAt.Day()]++
	}

	return counts, nil
}

// ScheduledDaysSummary returns every day that still has scheduled or queued
// deliveries for the channels, with per-day counts, ascending.
func (r *TargetRepository) ScheduledDaysSummary(channelIDs []int64) ([]DayCount, error) {
	if len(channelIDs) == 0 {
		return nil, nil
	}

	var targets []models.PostTarget
	err := r.db.
		Where("channel_id IN ?", channelIDs).
		Where("state IN ?", []models.TargetState{models.StateScheduled, models.StateQueued}).
		Where("publish_at IS NOT NULL").
		Order("publish_at ASC").
		Find(&targets).Error
	if err != nil {
		return nil, err
	}

	var days []DayCount
	for _, t := range targets {
		d := t.PublishAt
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
		if n := len(days); n > 0 && days[n-1].Day.Equal(day) {
			days[n-1].Count++
			continue
		}
		days = append(days, DayCount{Day: day, Count: 1})
	}
	return days, nil
}
