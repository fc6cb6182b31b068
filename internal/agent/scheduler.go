package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskbot/internal/domain"
	"taskbot/internal/metrics"
)

const (
	defaultMeetingMinutes = 30
	meetingCategory       = "Work/Meetings"
)

// MeetingScheduler books meetings against the user's calendar. Calendar
// trouble never loses the meeting: when the calendar is unreachable, not
// connected, or rejects the event, the meeting is still kept as a local
// task and the reply says so.
type MeetingScheduler struct {
	store      domain.TaskStore
	cal        domain.CalendarService
	dispatcher *Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

func NewMeetingScheduler(store domain.TaskStore, cal domain.CalendarService, dispatcher *Dispatcher, logger *slog.Logger) *MeetingScheduler {
	return &MeetingScheduler{store: store, cal: cal, dispatcher: dispatcher, logger: logger, now: time.Now}
}

// Schedule walks one meeting through the booking flow:
//
//	no start time        -> ask for one, persist nothing
//	calendar unavailable -> persist local task, say the calendar was skipped
//	slot busy            -> report conflicts and alternatives, persist nothing
//	slot free            -> create the event, persist the linked task
func (m *MeetingScheduler) Schedule(ctx context.Context, msg domain.InboundMessage, p domain.ParsedTask) error {
	userID := msg.UserKey()

	if p.DueAt == nil {
		return m.reply(ctx, msg,
			fmt.Sprintf("When is %q? Tell me a time and I'll check your calendar.", p.Title))
	}
	start := *p.DueAt
	duration := time.Duration(p.DurationMinutes) * time.Minute
	if duration <= 0 {
		duration = defaultMeetingMinutes * time.Minute
	}

	if !m.cal.Connected(userID) {
		if _, err := m.persistMeeting(ctx, msg, p, start, "", false); err != nil {
			return err
		}
		return m.reply(ctx, msg,
			fmt.Sprintf("Saved %q for %s. Your calendar isn't connected, so I couldn't put it there.",
				p.Title, start.Format("Mon Jan 2 15:04")))
	}

	sum, err := m.cal.CheckAvailability(ctx, userID, start, duration)
	if err != nil {
		// Insufficient permission is the one availability error the user
		// must fix themselves; everything else degrades to a local task.
		if errors.Is(err, domain.ErrCalendarPermission) {
			return m.reply(ctx, msg,
				fmt.Sprintf("I can't check your calendar: %v", err))
		}
		m.logger.Warn("availability check failed, keeping meeting as local task",
			"user", userID, "error", err)
		if _, err := m.persistMeeting(ctx, msg, p, start, "", false); err != nil {
			return err
		}
		return m.reply(ctx, msg,
			fmt.Sprintf("Saved %q for %s, but I couldn't reach your calendar to book it.",
				p.Title, start.Format("Mon Jan 2 15:04")))
	}

	if !sum.Free {
		return m.reply(ctx, msg, formatConflicts(sum, start))
	}

	eventID, err := m.cal.CreateEvent(ctx, userID, domain.CalendarEvent{
		Title:     p.Title,
		Start:     start,
		End:       start.Add(duration),
		Attendees: p.Attendees,
	})
	if err != nil {
		// A free slot either becomes an event plus a linked task, or
		// nothing at all. Persisting the task without its event here would
		// leave it unlinked after the calendar already said yes.
		m.logger.Warn("event creation failed", "user", userID, "error", err)
		return m.reply(ctx, msg, createEventFailureText(p.Title, err))
	}

	if _, err := m.persistMeeting(ctx, msg, p, start, eventID, true); err != nil {
		// The event exists but the task didn't stick; leaving the event is
		// safer than deleting work the user asked for.
		return err
	}
	metrics.MeetingsBooked.Inc()

	text := fmt.Sprintf("Booked %q for %s (%d min).",
		p.Title, start.Format("Mon Jan 2 15:04"), int(duration.Minutes()))
	if len(p.Attendees) > 0 {
		text += " With: " + strings.Join(p.Attendees, ", ")
	}
	return m.reply(ctx, msg, text)
}

func createEventFailureText(title string, err error) string {
	switch {
	case errors.Is(err, domain.ErrCalendarPermission):
		return fmt.Sprintf("I couldn't book %q: your calendar access doesn't allow creating events. Grant write access and try again.", title)
	case errors.Is(err, domain.ErrCalendarTokenExpired):
		return fmt.Sprintf("I couldn't book %q: your calendar login has expired. Reconnect your calendar and try again.", title)
	default:
		return fmt.Sprintf("I couldn't book %q: the calendar rejected the event. Nothing was saved, so please try again.", title)
	}
}

func (m *MeetingScheduler) persistMeeting(ctx context.Context, msg domain.InboundMessage, p domain.ParsedTask, start time.Time, eventID string, appCreated bool) (domain.Task, error) {
	userID := msg.UserKey()
	catID, err := m.store.ResolveCategoryPath(ctx, userID, meetingCategory)
	if err != nil {
		return domain.Task{}, fmt.Errorf("resolve category: %w", err)
	}
	now := m.now()
	task := domain.Task{
		ID:              uuid.NewString(),
		UserID:          userID,
		Title:           p.Title,
		Description:     p.Description,
		Priority:        domain.NormalizePriority(p.Priority),
		CategoryID:      catID,
		DueAt:           &start,
		RemindAt:        p.RemindAt,
		CalendarEventID: eventID,
		AppCreatedEvent: appCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := m.store.CreateTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("create meeting task: %w", err)
	}
	metrics.TasksCreated.Inc()
	return task, nil
}

func (m *MeetingScheduler) reply(ctx context.Context, msg domain.InboundMessage, text string) error {
	if err := m.dispatcher.Send(ctx, msg.Channel, msg.ChatID, text); err != nil {
		m.logger.Error("reply dropped", "user", msg.UserKey(), "error", err)
	}
	return nil
}

