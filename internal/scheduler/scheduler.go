package scheduler

import (
	"context"
	"time"

	"tg-poster/internal/config"
	"tg-poster/internal/crash"
	"tg-poster/internal/logger"
	"tg-poster/internal/models"
	"tg-poster/internal/sender"
	"tg-poster/internal/storage"
)

// Defaults used when the config leaves a scheduler setting at zero.
const (
	DefaultTickInterval    = 2 * time.Second
	DefaultPromoteBatch    = 50
	DefaultDispatchBatch   = 20
	DefaultAutoDeleteBatch = 50
)

// Scheduler drives the publication pipeline from a single goroutine. Every
// tick runs three passes: promote due scheduled deliveries to queued,
// dispatch queued deliveries, and remove expired sent deliveries. Each pass
// commits independently, so one failing delivery never blocks the rest.
//
// The scheduler assumes a single running instance; there is no lease or
// distributed lock.
type Scheduler struct {
	targets *storage.TargetRepository
	events  *storage.EventRepository
	sender  sender.Sender

	tick            time.Duration
	promoteBatch    int
	dispatchBatch   int
	autoDeleteBatch int

	now func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Scheduler from the config, filling unset values with the
// defaults above.
func New(targets *storage.TargetRepository, events *storage.EventRepository, snd sender.Sender, cfg config.SchedulerConfig) *Scheduler {
	s := &Scheduler{
		targets:         targets,
		events:          events,
		sender:          snd,
		tick:            time.Duration(cfg.TickInterval) * time.Second,
		promoteBatch:    cfg.PromoteBatch,
		dispatchBatch:   cfg.DispatchBatch,
		autoDeleteBatch: cfg.AutoDeleteBatch,
		now:             time.Now,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
	if s.tick <= 0 {
		s.tick = DefaultTickInterval
	}
	if s.promoteBatch <= 0 {
		s.promoteBatch = DefaultPromoteBatch
	}
	if s.dispatchBatch <= 0 {
		s.dispatchBatch = DefaultDispatchBatch
	}
	if s.autoDeleteBatch <= 0 {
		s.autoDeleteBatch = DefaultAutoDeleteBatch
	}
	return s
}

// Start launches the tick loop.
func (s *Scheduler) Start(ctx context.Context) {
	logger.Infof("Scheduler starting, tick interval %s", s.tick)
	crash.SafeGoroutine("scheduler", func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runTick(ctx)
			}
		}
	})
}

// Stop signals the loop to exit and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
	logger.Infof("Scheduler stopped")
}

// runTick executes the three passes. A panic in any pass is contained to
// this tick.
func (s *Scheduler) runTick(ctx context.Context) {
	defer crash.RecoverWithStack("scheduler-tick")

	now := s.now()
	s.promoteDue(now)
	s.dispatchQueued(ctx)
	s.autoDeleteExpired(ctx, now)
}

// promoteDue flips due scheduled deliveries to queued.
func (s *Scheduler) promoteDue(now time.Time) {
	promoted, err := s.targets.PickTargetsToPublish(now, s.promoteBatch)
	if err != nil {
		logger.Errorf("Failed to promote scheduled deliveries: %v", err)
		return
	}
	if len(promoted) > 0 {
		logger.Infof("Promoted %d deliveries to queue", len(promoted))
	}
}

// dispatchQueued sends queued deliveries one at a time. Each delivery
// commits its own outcome; a failure marks only that delivery failed.
func (s *Scheduler) dispatchQueued(ctx context.Context) {
	queued, err := s.targets.PickQueued(s.dispatchBatch)
	if err != nil {
		logger.Errorf("Failed to pick queued deliveries: %v", err)
		return
	}

	for _, t := range queued {
		s.dispatchOne(ctx, t.ID)
	}
}

func (s *Scheduler) dispatchOne(ctx context.Context, targetID int64) {
	target, err := s.targets.GetTargetFull(targetID)
	if err != nil {
		logger.Errorf("Failed to load delivery %d: %v", targetID, err)
		return
	}
	// The delivery may have been canceled between pick and dispatch.
	if target.State != models.StateQueued {
		return
	}

	ids, err := sender.Publish(ctx, s.sender, target)
	if err != nil {
		logger.Warningf("Delivery %d to chat %d failed: %v", target.ID, target.ChannelID, err)
		if markErr := s.targets.MarkFailed(target.ID, err.Error()); markErr != nil {
			logger.Errorf("Failed to mark delivery %d failed: %v", target.ID, markErr)
			return
		}
		s.logEvent(target, models.EventFailed, models.FailedPayload{Error: err.Error()})
		return
	}

	sentAt := s.now()
	if err := s.targets.MarkSent(target.ID, ids[0], sentAt); err != nil {
		logger.Errorf("Failed to mark delivery %d sent: %v", target.ID, err)
		return
	}
	s.logEvent(target, models.EventSent, models.SentPayload{MessageIDs: ids})
	logger.Infof("Delivered post %d to chat %d as message %d (%d messages)",
		target.PostID, target.ChannelID, ids[0], len(ids))
}

// autoDeleteExpired removes the channel messages of expired sent deliveries.
// Individual delete errors are tolerated; the delivery is still marked
// auto-deleted so it is not retried forever.
func (s *Scheduler) autoDeleteExpired(ctx context.Context, now time.Time) {
	expired, err := s.targets.PickTargetsToAutoDelete(now, s.autoDeleteBatch)
	if err != nil {
		logger.Errorf("Failed to pick deliveries for auto-delete: %v", err)
		return
	}

	for _, t := range expired {
		s.autoDeleteOne(ctx, t)
	}
}

func (s *Scheduler) autoDeleteOne(ctx context.Context, target models.PostTarget) {
	ids, err := s.events.LastSentMessageIDs(target.ID)
	if err != nil {
		logger.Errorf("Failed to recover message ids for delivery %d: %v", target.ID, err)
		ids = nil
	}
	if len(ids) == 0 && target.SentMessageID != nil {
		ids = []int{*target.SentMessageID}
	}

	for _, msgID := range ids {
		if err := s.sender.Delete(ctx, target.ChannelID, msgID); err != nil {
			if sender.IsIgnorableDeleteError(err) {
				continue
			}
			logger.Warningf("Failed to delete message %d in chat %d: %v", msgID, target.ChannelID, err)
		}
	}

	if err := s.targets.MarkAutoDeleted(target.ID); err != nil {
		logger.Errorf("Failed to mark delivery %d auto-deleted: %v", target.ID, err)
		return
	}
	s.logEvent(&target, models.EventAutoDeleted, models.AutoDeletedPayload{MessageIDs: ids})
	logger.Infof("Auto-deleted %d messages of delivery %d in chat %d", len(ids), target.ID, target.ChannelID)
}

// logEvent appends a scheduler-originated event; the actor is the system.
func (s *Scheduler) logEvent(target *models.PostTarget, eventType models.PostEventType, payload any) {
	if _, err := s.events.LogEvent(target.PostID, &target.ID, nil, eventType, payload); err != nil {
		logger.Errorf("Failed to log %s event for delivery %d: %v", eventType, target.ID, err)
	}
}
