// Package reminder delivers due task reminders on a cron schedule.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"taskbot/internal/domain"
	"taskbot/internal/metrics"
)

const defaultSchedule = "* * * * *" // every minute

// Sender delivers one reminder message to its chat.
type Sender interface {
	Send(ctx context.Context, channel, chatID, content string) error
}

// Service scans for due reminders and pushes them out. A reminder is
// marked sent only after a successful delivery, so a failed send is
// retried on the next scan.
type Service struct {
	store  domain.TaskStore
	sender Sender
	cron   *cron.Cron
	logger *slog.Logger
	now    func() time.Time
}

type ServiceConfig struct {
	Store  domain.TaskStore
	Sender Sender
	// Schedule is a cron expression; empty means every minute.
	Schedule string
	Logger   *slog.Logger
}

func New(cfg ServiceConfig) (*Service, error) {
	s := &Service{
		store:  cfg.Store,
		sender: cfg.Sender,
		cron:   cron.New(),
		logger: cfg.Logger,
		now:    time.Now,
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = defaultSchedule
	}
	if _, err := s.cron.AddFunc(schedule, s.deliverDue); err != nil {
		return nil, fmt.Errorf("reminder schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins the scan schedule. It returns immediately; delivery runs on
// the cron goroutine.
func (s *Service) Start() {
	s.cron.Start()
	s.logger.Info("reminder delivery started")
}

// Stop halts the schedule and waits for a running scan to finish.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Service) deliverDue() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	due, err := s.store.DueReminders(ctx, s.now())
	if err != nil {
		s.logger.Error("reminder scan failed", "error", err)
		return
	}
	for _, rem := range due {
		s.deliver(ctx, rem)
	}
}

func (s *Service) deliver(ctx context.Context, rem domain.Reminder) {
	text := "Reminder!"
	var task *domain.Task
	if t, err := s.store.GetTask(ctx, rem.UserID, rem.TaskID); err == nil {
		task = t
		text = fmt.Sprintf("Reminder: %s", task.Title)
		if task.DueAt != nil && task.DueAt.After(s.now()) {
			text += fmt.Sprintf(" (due %s)", task.DueAt.Format("Mon Jan 2 15:04"))
		}
	}

	if err := s.sender.Send(ctx, rem.Channel, rem.ChatID, text); err != nil {
		s.logger.Warn("reminder delivery failed, will retry next scan",
			"reminder_id", rem.ID, "error", err)
		return
	}
	if err := s.store.MarkReminderSent(ctx, rem.ID); err != nil {
		s.logger.Error("reminder sent but not marked, duplicate possible",
			"reminder_id", rem.ID, "error", err)
		return
	}
	metrics.RemindersFired.Inc()

	if task != nil && task.Recurring && !task.Completed {
		s.rearm(ctx, rem, task.RecurrenceRule)
	}
}

// rearm queues the next occurrence of a recurring task's reminder.
func (s *Service) rearm(ctx context.Context, rem domain.Reminder, rule string) {
	next, ok := nextFireAt(rule, rem.FireAt)
	if !ok {
		s.logger.Warn("unrecognized recurrence rule, not re-arming",
			"task_id", rem.TaskID, "rule", rule)
		return
	}
	err := s.store.CreateReminder(ctx, domain.Reminder{
		ID:      uuid.NewString(),
		TaskID:  rem.TaskID,
		UserID:  rem.UserID,
		Channel: rem.Channel,
		ChatID:  rem.ChatID,
		FireAt:  next,
	})
	if err != nil {
		s.logger.Error("cannot re-arm recurring reminder",
			"task_id", rem.TaskID, "error", err)
	}
}

func nextFireAt(rule string, after time.Time) (time.Time, bool) {
	switch rule {
	case "daily":
		return after.AddDate(0, 0, 1), true
	case "weekdays":
		next := after.AddDate(0, 0, 1)
		for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
			next = next.AddDate(0, 0, 1)
		}
		return next, true
	case "weekly":
		return after.AddDate(0, 0, 7), true
	case "monthly":
		return after.AddDate(0, 1, 0), true
	}
	return time.Time{}, false
}
