package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"taskbot/internal/domain"
)

func scheduleOne(e *testEnv, p domain.ParsedTask) {
	e.loop.scheduler.now = func() time.Time { return time.Date(2025, 6, 4, 9, 0, 0, 0, time.UTC) }
	if err := e.loop.scheduler.Schedule(context.Background(), inbound("meet"), p); err != nil {
		panic(err)
	}
}

func TestSchedulerBooksFreeSlot(t *testing.T) {
	e := newTestEnv()
	e.cal.connected = true
	e.cal.createID = "ev-77"
	start := time.Date(2025, 6, 5, 10, 0, 0, 0, time.UTC)

	scheduleOne(e, domain.ParsedTask{Title: "Design review", DueAt: &start, Attendees: []string{"ana@x.io"}})

	task := e.store.taskByTitle("Design review")
	if task == nil {
		t.Fatal("meeting task not persisted")
	}
	if task.CalendarEventID != "ev-77" || !task.AppCreatedEvent {
		t.Fatalf("calendar linkage = %q/%v", task.CalendarEventID, task.AppCreatedEvent)
	}
	if !strings.Contains(e.lastReply(), "Booked") || !strings.Contains(e.lastReply(), "ana@x.io") {
		t.Fatalf("reply = %q", e.lastReply())
	}
	// Default duration applies when the model gave none.
	if got := e.cal.created[0].End.Sub(e.cal.created[0].Start); got != 30*time.Minute {
		t.Fatalf("duration = %v", got)
	}
}

func TestSchedulerReportsConflicts(t *testing.T) {
	e := newTestEnv()
	e.cal.connected = true
	start := time.Date(2025, 6, 5, 10, 0, 0, 0, time.UTC)
	e.cal.busy = &domain.ConflictSummary{
		Conflicts: []domain.EventSummary{
			{Title: "Standup", Start: start, End: start.Add(30 * time.Minute)},
		},
		Alternatives: []domain.TimeRange{
			{Start: start.Add(time.Hour), End: start.Add(90 * time.Minute)},
		},
	}

	scheduleOne(e, domain.ParsedTask{Title: "Design review", DueAt: &start})

	if len(e.store.tasks) != 0 {
		t.Fatal("nothing should be persisted for a busy slot")
	}
	if len(e.cal.created) != 0 {
		t.Fatal("no event should be created for a busy slot")
	}
	reply := e.lastReply()
	if !strings.Contains(reply, "Standup") || !strings.Contains(reply, "Free slots") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestSchedulerNoTimeAsks(t *testing.T) {
	e := newTestEnv()
	e.cal.connected = true

	scheduleOne(e, domain.ParsedTask{Title: "Design review"})

	if len(e.store.tasks) != 0 || len(e.cal.created) != 0 {
		t.Fatal("nothing should be persisted without a start time")
	}
	if !strings.Contains(e.lastReply(), "Tell me a time") {
		t.Fatalf("reply = %q", e.lastReply())
	}
}

func TestSchedulerDegradesWhenNotConnected(t *testing.T) {
	e := newTestEnv()
	start := time.Date(2025, 6, 5, 10, 0, 0, 0, time.UTC)

	scheduleOne(e, domain.ParsedTask{Title: "Design review", DueAt: &start})

	task := e.store.taskByTitle("Design review")
	if task == nil {
		t.Fatal("meeting must still be kept as a local task")
	}
	if task.CalendarEventID != "" || task.AppCreatedEvent {
		t.Fatalf("no calendar linkage expected, got %q/%v", task.CalendarEventID, task.AppCreatedEvent)
	}
	if !strings.Contains(e.lastReply(), "isn't connected") {
		t.Fatalf("reply = %q", e.lastReply())
	}
}

func TestSchedulerDegradesOnCalendarError(t *testing.T) {
	e := newTestEnv()
	e.cal.connected = true
	e.cal.availErr = domain.ErrCalendarTokenExpired
	start := time.Date(2025, 6, 5, 10, 0, 0, 0, time.UTC)

	scheduleOne(e, domain.ParsedTask{Title: "Design review", DueAt: &start})

	if e.store.taskByTitle("Design review") == nil {
		t.Fatal("meeting must still be kept as a local task")
	}
	if !strings.Contains(e.lastReply(), "couldn't reach your calendar") {
		t.Fatalf("reply = %q", e.lastReply())
	}
}

func TestSchedulerPermissionErrorIsTerminal(t *testing.T) {
	e := newTestEnv()
	e.cal.connected = true
	e.cal.availErr = domain.ErrCalendarPermission
	start := time.Date(2025, 6, 5, 10, 0, 0, 0, time.UTC)

	scheduleOne(e, domain.ParsedTask{Title: "Design review", DueAt: &start})

	if len(e.store.tasks) != 0 {
		t.Fatal("nothing should be persisted on a permission error")
	}
	if !strings.Contains(e.lastReply(), "insufficient permission") {
		t.Fatalf("reply should carry the underlying error, got %q", e.lastReply())
	}
}

func TestSchedulerCreateFailurePersistsNothing(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"permission", domain.ErrCalendarPermission, "doesn't allow creating events"},
		{"token expired", domain.ErrCalendarTokenExpired, "login has expired"},
		{"other", context.DeadlineExceeded, "rejected the event"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEnv()
			e.cal.connected = true
			e.cal.createErr = tc.err
			start := time.Date(2025, 6, 5, 10, 0, 0, 0, time.UTC)

			scheduleOne(e, domain.ParsedTask{Title: "Design review", DueAt: &start})

			if len(e.store.tasks) != 0 {
				t.Fatal("a free slot either books fully or leaves nothing behind")
			}
			if !strings.Contains(e.lastReply(), tc.want) {
				t.Fatalf("reply = %q, want substring %q", e.lastReply(), tc.want)
			}
		})
	}
}
