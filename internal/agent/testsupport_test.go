package agent

// Shared in-memory fakes for the agent tests. memStore is a scriptable
// TaskStore, fakeCal a scriptable CalendarService, and fakeLLM returns
// canned parses keyed by input fragment.

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"taskbot/internal/domain"
)

type auditEntry struct {
	action, userID, taskID, details string
}

type memStore struct {
	mu        sync.Mutex
	tasks     []domain.Task
	cats      []domain.Category
	reminders []domain.Reminder
	audits    []auditEntry
	seeded    map[string]int
	nextCat   int

	similar     []domain.SimilarTask
	findErr     error
	createErr   error
	findCalls   int
	deleteCalls int
}

func newMemStore() *memStore {
	return &memStore{seeded: make(map[string]int)}
}

func (m *memStore) CreateTask(ctx context.Context, task domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *memStore) GetTask(ctx context.Context, userID, taskID string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].UserID == userID && m.tasks[i].ID == taskID {
			t := m.tasks[i]
			return &t, nil
		}
	}
	return nil, fmt.Errorf("task %s not found", taskID)
}

func (m *memStore) ListOpenTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Task
	for _, t := range m.tasks {
		if t.UserID == userID && !t.Completed {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) ListTasksByCategory(ctx context.Context, userID, categoryID string) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Task
	for _, t := range m.tasks {
		if t.UserID == userID && t.CategoryID == categoryID && !t.Completed {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) CompleteTask(ctx context.Context, userID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].UserID == userID && m.tasks[i].ID == taskID {
			m.tasks[i].Completed = true
			now := time.Now()
			m.tasks[i].CompletedAt = &now
			return nil
		}
	}
	return fmt.Errorf("task %s not found", taskID)
}

func (m *memStore) DeleteTask(ctx context.Context, userID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	for i := range m.tasks {
		if m.tasks[i].UserID == userID && m.tasks[i].ID == taskID {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("task %s not found", taskID)
}

func (m *memStore) UpdateTaskDue(ctx context.Context, userID, taskID string, due time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].UserID == userID && m.tasks[i].ID == taskID {
			m.tasks[i].DueAt = &due
			return nil
		}
	}
	return fmt.Errorf("task %s not found", taskID)
}

func (m *memStore) CountCompletedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if t.UserID == userID && t.Completed && t.CompletedAt != nil && t.CompletedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) FindSimilar(ctx context.Context, userID, title string, threshold float64) ([]domain.SimilarTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.similar, nil
}

func (m *memStore) ResolveCategoryPath(ctx context.Context, userID, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.cats {
		if c.UserID == userID && c.Name == path {
			return c.ID, nil
		}
	}
	m.nextCat++
	id := "cat-" + strconv.Itoa(m.nextCat)
	m.cats = append(m.cats, domain.Category{ID: id, UserID: userID, Name: path})
	return id, nil
}

func (m *memStore) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Category
	for _, c := range m.cats {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) SeedCategories(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeded[userID]++
	return nil
}

func (m *memStore) CreateReminder(ctx context.Context, rem domain.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reminders = append(m.reminders, rem)
	return nil
}

func (m *memStore) DueReminders(ctx context.Context, now time.Time) ([]domain.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Reminder
	for _, r := range m.reminders {
		if !r.Sent && !r.FireAt.After(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) MarkReminderSent(ctx context.Context, reminderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.reminders {
		if m.reminders[i].ID == reminderID {
			m.reminders[i].Sent = true
			return nil
		}
	}
	return fmt.Errorf("reminder %s not found", reminderID)
}

func (m *memStore) LogAudit(ctx context.Context, action, userID, taskID, details string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, auditEntry{action, userID, taskID, details})
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) taskByTitle(title string) *domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].Title == title {
			t := m.tasks[i]
			return &t
		}
	}
	return nil
}

type fakeCal struct {
	mu          sync.Mutex
	connected   bool
	availErr    error
	busy        *domain.ConflictSummary
	createID    string
	createErr   error
	created     []domain.CalendarEvent
	event       *domain.EventSummary
	getErr      error
	deleteErr   error
	getCalls    int
	deleteCalls int
}

func (f *fakeCal) Connected(userID string) bool { return f.connected }

func (f *fakeCal) CheckAvailability(ctx context.Context, userID string, start time.Time, duration time.Duration) (*domain.ConflictSummary, error) {
	if f.availErr != nil {
		return nil, f.availErr
	}
	if f.busy != nil {
		return f.busy, nil
	}
	return &domain.ConflictSummary{Free: true}, nil
}

func (f *fakeCal) CreateEvent(ctx context.Context, userID string, event domain.CalendarEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, event)
	if f.createID == "" {
		return "ev-1", nil
	}
	return f.createID, nil
}

func (f *fakeCal) GetEvent(ctx context.Context, userID, eventID string) (*domain.EventSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.event != nil {
		return f.event, nil
	}
	return &domain.EventSummary{ID: eventID, Title: "event"}, nil
}

func (f *fakeCal) DeleteEvent(ctx context.Context, userID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	return f.deleteErr
}

type fakeLLM struct {
	intent        domain.ClassifiedIntent
	splits        []string
	parsed        map[string]*domain.ParsedTask
	parseErr      error
	date          time.Time
	dateErr       error
	classifyCalls int
}

func (f *fakeLLM) ClassifyIntent(ctx context.Context, text string) domain.ClassifiedIntent {
	f.classifyCalls++
	if f.intent.Kind == domain.IntentUnknown && f.intent.Text == "" {
		return domain.ClassifiedIntent{Kind: domain.IntentUnknown, Text: text}
	}
	return f.intent
}

func (f *fakeLLM) SplitTasks(ctx context.Context, text string) []string {
	if f.splits == nil {
		return []string{text}
	}
	return f.splits
}

func (f *fakeLLM) ParseTask(ctx context.Context, text string, knownCategories []string) (*domain.ParsedTask, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	if p, ok := f.parsed[text]; ok {
		cp := *p
		return &cp, nil
	}
	return &domain.ParsedTask{Title: text}, nil
}

func (f *fakeLLM) ParseDate(ctx context.Context, text string) (time.Time, error) {
	if f.dateErr != nil {
		return time.Time{}, f.dateErr
	}
	return f.date, nil
}

// testEnv bundles a loop with all its fakes, wired the way serve does it.
type testEnv struct {
	loop  *Loop
	store *memStore
	cal   *fakeCal
	llm   *fakeLLM
	tr    *fakeTransport
}

func newTestEnv() *testEnv {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := newMemStore()
	cal := &fakeCal{}
	llm := &fakeLLM{}
	tr := &fakeTransport{name: "telegram"}

	d := NewDispatcher(logger)
	d.sleep = func(time.Duration) {}
	d.Register(tr)

	loop := NewLoop(LoopConfig{
		Store:      st,
		LLM:        llm,
		Calendar:   cal,
		Dispatcher: d,
		Logger:     logger,
	})
	return &testEnv{loop: loop, store: st, cal: cal, llm: llm, tr: tr}
}

func inbound(content string) domain.InboundMessage {
	return domain.InboundMessage{
		Channel:   "telegram",
		ChatID:    "chat-1",
		SenderID:  "user-1",
		MessageID: "in-1",
		Content:   content,
		Timestamp: time.Now(),
	}
}

// handleWait runs one message through the loop and waits for any detached
// background unit by re-acquiring the user gate.
func (e *testEnv) handleWait(content string) {
	msg := inbound(content)
	e.loop.handle(context.Background(), msg)
	release := e.loop.state.Acquire(msg.UserKey())
	release()
}

func (e *testEnv) lastReply() string {
	if len(e.tr.sends) == 0 {
		return ""
	}
	return e.tr.sends[len(e.tr.sends)-1]
}
