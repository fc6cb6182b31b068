package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taskbot/internal/domain"
)

// CalendarGuardrail decides whether deleting a task may also delete a
// calendar event. The rules exist to make remote deletion impossible for
// events the bot did not create and pointless for events already in the
// past; local deletion always goes through.
type CalendarGuardrail struct {
	store  domain.TaskStore
	cal    domain.CalendarService
	logger *slog.Logger
	now    func() time.Time
}

func NewCalendarGuardrail(store domain.TaskStore, cal domain.CalendarService, logger *slog.Logger) *CalendarGuardrail {
	return &CalendarGuardrail{store: store, cal: cal, logger: logger, now: time.Now}
}

// DeleteTask removes a task, deleting its linked calendar event only when
// every rule allows it. The checks run in order and the first one that
// fails downgrades the operation to a local-only delete:
//
//  1. the task must be linked to an event
//  2. the event must have been created by us, not synced from elsewhere
//  3. the event must be in the future
//  4. the event must still exist remotely
//
// It returns whether a remote delete was issued.
func (g *CalendarGuardrail) DeleteTask(ctx context.Context, task domain.Task) (remoteDeleted bool, err error) {
	reason := g.remoteDeleteBlocked(task)
	if reason == "" {
		ev, gerr := g.cal.GetEvent(ctx, task.UserID, task.CalendarEventID)
		switch {
		case errors.Is(gerr, domain.ErrCalendarNotFound):
			reason = "event already gone"
		case gerr != nil:
			// Verification failed; never delete remotely on a guess.
			g.logger.Warn("event lookup failed, keeping remote event",
				"task_id", task.ID, "event_id", task.CalendarEventID, "error", gerr)
			reason = "event lookup failed"
		default:
			if derr := g.cal.DeleteEvent(ctx, task.UserID, ev.ID); derr != nil && !errors.Is(derr, domain.ErrCalendarNotFound) {
				g.logger.Warn("remote delete failed",
					"task_id", task.ID, "event_id", ev.ID, "error", derr)
				reason = "remote delete failed"
			} else {
				remoteDeleted = true
			}
		}
	}

	if err := g.store.DeleteTask(ctx, task.UserID, task.ID); err != nil {
		return remoteDeleted, fmt.Errorf("delete task %s: %w", task.ID, err)
	}

	details := "local only"
	if remoteDeleted {
		details = "calendar event " + task.CalendarEventID + " deleted"
	} else if reason != "" && task.CalendarEventID != "" {
		details = "calendar event kept: " + reason
	}
	if err := g.store.LogAudit(ctx, "task_delete", task.UserID, task.ID, details); err != nil {
		g.logger.Warn("audit log failed", "task_id", task.ID, "error", err)
	}
	return remoteDeleted, nil
}

// remoteDeleteBlocked returns the first rule that forbids touching the
// remote event, or "" when remote deletion may proceed to verification.
func (g *CalendarGuardrail) remoteDeleteBlocked(task domain.Task) string {
	if task.CalendarEventID == "" {
		return "no linked event"
	}
	if !task.AppCreatedEvent {
		return "event not created by us"
	}
	if task.DueAt != nil && task.DueAt.Before(g.now()) {
		return "event in the past"
	}
	return ""
}
