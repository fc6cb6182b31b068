package provider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"taskbot/internal/domain"
)

// fakeProvider returns canned content or an error.
type fakeProvider struct {
	content string
	err     error
	calls   int
	lastReq domain.CompletionRequest
}

func (f *fakeProvider) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.CompletionResponse{Content: f.content}, nil
}

func (f *fakeProvider) Name() string                      { return "fake" }
func (f *fakeProvider) Healthy(ctx context.Context) error { return nil }

func newTestNLP(p domain.ChatProvider) *NLP {
	n := NewNLP(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local) }
	return n
}

func TestClassifyIntent(t *testing.T) {
	fake := &fakeProvider{content: `{"intent": "complete_task", "search": "milk"}`}
	n := newTestNLP(fake)

	intent := n.ClassifyIntent(context.Background(), "I finished the milk thing")
	if intent.Kind != domain.IntentComplete {
		t.Fatalf("expected complete intent, got %v", intent.Kind)
	}
	if intent.Search != "milk" {
		t.Fatalf("unexpected search %q", intent.Search)
	}
	if fake.lastReq.Temperature != 0 {
		t.Fatal("intent classification must use temperature 0")
	}
}

func TestClassifyIntentDegradesOnError(t *testing.T) {
	n := newTestNLP(&fakeProvider{err: errors.New("down")})
	intent := n.ClassifyIntent(context.Background(), "whatever")
	if intent.Kind != domain.IntentUnknown {
		t.Fatalf("provider error must degrade to unknown, got %v", intent.Kind)
	}
}

func TestClassifyIntentDegradesOnBadSchema(t *testing.T) {
	n := newTestNLP(&fakeProvider{content: `not json at all`})
	intent := n.ClassifyIntent(context.Background(), "whatever")
	if intent.Kind != domain.IntentUnknown {
		t.Fatalf("bad schema must degrade to unknown, got %v", intent.Kind)
	}
}

func TestSplitTasks(t *testing.T) {
	fake := &fakeProvider{content: `{"tasks": ["buy milk", "call the dentist"]}`}
	n := newTestNLP(fake)

	tasks := n.SplitTasks(context.Background(), "buy milk and call the dentist")
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
}

func TestSplitTasksDegradesToSingle(t *testing.T) {
	n := newTestNLP(&fakeProvider{err: errors.New("down")})
	tasks := n.SplitTasks(context.Background(), "buy milk")
	if len(tasks) != 1 || tasks[0] != "buy milk" {
		t.Fatalf("expected single-task fallback, got %v", tasks)
	}

	n = newTestNLP(&fakeProvider{content: `{"tasks": []}`})
	tasks = n.SplitTasks(context.Background(), "buy milk")
	if len(tasks) != 1 {
		t.Fatalf("empty split must fall back to single, got %v", tasks)
	}
}

func TestParseTask(t *testing.T) {
	fake := &fakeProvider{content: "```json\n" + `{"title": "Buy milk", "priority": "high",
		"category": "Errands", "due_at": "2026-03-06T18:00:00Z"}` + "\n```"}
	n := newTestNLP(fake)

	task, err := n.ParseTask(context.Background(), "buy milk friday", []string{"Errands", "Work"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if task.Title != "Buy milk" || task.Category != "Errands" {
		t.Fatalf("unexpected task %+v", task)
	}
	if task.DueAt == nil || task.DueAt.UTC().Day() != 6 {
		t.Fatalf("due date not parsed: %+v", task.DueAt)
	}
}

func TestParseTaskEmptyTitleIsError(t *testing.T) {
	n := newTestNLP(&fakeProvider{content: `{"title": ""}`})
	if _, err := n.ParseTask(context.Background(), "x", nil); err == nil {
		t.Fatal("empty title must be an error")
	}
}

func TestParseTaskProviderErrorPropagates(t *testing.T) {
	n := newTestNLP(&fakeProvider{err: errors.New("down")})
	if _, err := n.ParseTask(context.Background(), "x", nil); err == nil {
		t.Fatal("provider error must propagate from ParseTask")
	}
}

func TestParseDate(t *testing.T) {
	n := newTestNLP(&fakeProvider{content: `{"timestamp": "2026-03-09T10:00:00Z"}`})
	ts, err := n.ParseDate(context.Background(), "next monday at 10")
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	if ts.UTC().Hour() != 10 {
		t.Fatalf("unexpected timestamp %v", ts)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{`Sure! {"a": "b {nested}"} done.`, `{"a": "b {nested}"}`},
		{`no json here`, ``},
		{`[1, 2]`, `[1, 2]`},
		{`{"s": "escaped \" brace }"}`, `{"s": "escaped \" brace }"}`},
	}
	for _, tt := range tests {
		if got := extractJSON(tt.in); got != tt.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
