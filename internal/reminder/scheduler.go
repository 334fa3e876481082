package reminder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/theLastOfCats/anishelf/internal/metrics"
	"github.com/theLastOfCats/anishelf/internal/model"
)

// Mutator is the list data funnel the scheduler writes through.
type Mutator interface {
	Snapshot() model.ListData
	Mutate(ctx context.Context, fn func(model.ListData) model.ListData) (model.ListData, error)
}

// TrackedSource provides the tracked-media cache used for auto-stop checks.
type TrackedSource interface {
	Tracked(ctx context.Context) (model.TrackedMedia, error)
}

type Scheduler struct {
	lists    Mutator
	tracked  TrackedSource
	interval time.Duration
	log      *slog.Logger

	Now func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(lists Mutator, tracked TrackedSource, interval time.Duration, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Scheduler{lists: lists, tracked: tracked, interval: interval, log: log, Now: time.Now}
}

// Evaluate runs one pass and returns the number of notifications created.
func (s *Scheduler) Evaluate(ctx context.Context) (int, error) {
	now := s.Now()

	var tracked model.TrackedMedia
	if s.tracked != nil {
		t, err := s.tracked.Tracked(ctx)
		if err != nil {
			s.log.Warn("failed to read tracked media for reminders", "error", err)
		}
		tracked = t
	}

	if len(dueReminders(s.lists.Snapshot(), tracked, now)) == 0 {
		return 0, nil
	}

	created := 0
	_, err := s.lists.Mutate(ctx, func(d model.ListData) model.ListData {
		created = 0
		for _, r := range dueReminders(d, tracked, now) {
			n := model.ReminderNotification(NotificationID(r.ID), now.UnixMilli(), model.ReminderPayload{
				ReminderID: r.ID,
				MediaID:    r.MediaID,
				Title:      r.Title,
				Notes:      r.Notes,
			})
			created += d.AppendNotifications(n)
		}
		return d
	})
	if err != nil {
		return 0, err
	}

	if created > 0 {
		metrics.NotificationsCreated.WithLabelValues(string(model.KindReminder)).Add(float64(created))
		s.log.Info("reminders due", "count", created)
	}
	return created, nil
}

// dueReminders lists reminders that are due, not auto-stopped and not
// already represented by a notification.
func dueReminders(d model.ListData, tracked model.TrackedMedia, now time.Time) []model.Reminder {
	existing := make(map[string]struct{}, len(d.Notifications))
	for _, n := range d.Notifications {
		existing[n.ID] = struct{}{}
	}

	var due []model.Reminder
	for _, r := range d.Reminders {
		if _, ok := existing[NotificationID(r.ID)]; ok {
			continue
		}
		if !IsDue(r, now) || Completed(r, d, tracked) {
			continue
		}
		due = append(due, r)
	}
	return due
}

// Start evaluates immediately and then on every interval until Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.tick(ctx)
		for {
			select {
			case <-ticker.C:
				s.tick(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	s.log.Info("reminder scheduler started", "interval", s.interval)
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.Evaluate(ctx); err != nil && ctx.Err() == nil {
		s.log.Warn("reminder evaluation failed", "error", err)
	}
}

// Stop cancels the loop and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
}
