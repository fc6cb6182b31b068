package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taskbot/internal/domain"
	"taskbot/internal/metrics"
)

const (
	nlpMaxTokens = 1024

	intentSystemPrompt = `You classify a user's message for a task manager.
Respond with a bare JSON object, nothing else:
{"intent": "add_task|set_reminder|schedule_meeting|complete_task|delete_task|list_tasks|query_tasks|unknown",
 "text": "task description, for add/remind/meeting intents",
 "search": "words identifying an existing task, for complete/delete/query",
 "time_filter": "today|week|overdue or empty"}`

	splitSystemPrompt = `You split a message into independent tasks for a task manager.
Only split genuinely distinct actions. A reminder, deadline, or other
modifier that refers to the same task stays with that task. If in doubt,
do not split. Respond with a bare JSON object, nothing else:
{"tasks": ["first task text", "second task text"]}`

	parseSystemPrompt = `You convert one task description into structured fields.
Respond with a bare JSON object, nothing else:
{"title": "...", "description": "...", "priority": "low|medium|high",
 "category": "...", "subcategory": "...",
 "due_at": "RFC3339 timestamp or empty", "remind_at": "RFC3339 timestamp or empty",
 "recurring": false, "recurrence_rule": "daily|weekdays|weekly|monthly or empty",
 "is_meeting": false, "attendees": [], "duration_minutes": 0}
Pick category from the known list when one fits; otherwise propose a new one.
Resolve relative dates against the current time given in the user message.`

	dateSystemPrompt = `You resolve a natural-language date/time expression.
Respond with a bare JSON object, nothing else:
{"timestamp": "RFC3339 timestamp"}
Resolve relative expressions against the current time given in the user message.`
)

// NLP implements domain.LanguageModel on top of a chat provider. All calls
// use temperature 0 and a closed JSON response schema; malformed output is
// discarded in favor of the documented safe defaults.
type NLP struct {
	provider domain.ChatProvider
	logger   *slog.Logger
	now      func() time.Time
}

func NewNLP(provider domain.ChatProvider, logger *slog.Logger) *NLP {
	return &NLP{provider: provider, logger: logger, now: time.Now}
}

func (n *NLP) complete(ctx context.Context, system, user string) (string, error) {
	start := n.now()
	metrics.LLMRequestsTotal.Inc()
	resp, err := n.provider.Complete(ctx, domain.CompletionRequest{
		Messages: []domain.ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   nlpMaxTokens,
		Temperature: 0,
		JSONMode:    true,
	})
	metrics.LLMLatency.Observe(n.now().Sub(start).Seconds())
	if err != nil {
		return "", err
	}
	raw := extractJSON(resp.Content)
	if raw == "" {
		return "", fmt.Errorf("no JSON in model output")
	}
	return raw, nil
}

// ClassifyIntent never fails: any provider error or schema violation
// degrades to IntentUnknown.
func (n *NLP) ClassifyIntent(ctx context.Context, text string) domain.ClassifiedIntent {
	raw, err := n.complete(ctx, intentSystemPrompt, text)
	if err != nil {
		n.logger.Warn("intent classification failed, treating as unknown", "err", err)
		return domain.ClassifiedIntent{Kind: domain.IntentUnknown, Text: text}
	}

	var out struct {
		Intent     string `json:"intent"`
		Text       string `json:"text"`
		Search     string `json:"search"`
		TimeFilter string `json:"time_filter"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		n.logger.Warn("intent response failed schema validation", "err", err)
		return domain.ClassifiedIntent{Kind: domain.IntentUnknown, Text: text}
	}

	intent := domain.ClassifiedIntent{
		Text:       strings.TrimSpace(out.Text),
		Search:     strings.TrimSpace(out.Search),
		TimeFilter: strings.TrimSpace(out.TimeFilter),
	}
	switch out.Intent {
	case "add_task":
		intent.Kind = domain.IntentAdd
	case "set_reminder":
		intent.Kind = domain.IntentRemind
	case "schedule_meeting":
		intent.Kind = domain.IntentMeet
	case "complete_task":
		intent.Kind = domain.IntentComplete
	case "delete_task":
		intent.Kind = domain.IntentDelete
	case "list_tasks":
		intent.Kind = domain.IntentList
	case "query_tasks":
		intent.Kind = domain.IntentQuery
	default:
		intent.Kind = domain.IntentUnknown
	}
	if intent.Text == "" {
		intent.Text = text
	}
	return intent
}

// SplitTasks degrades to a single-element split on any failure, and drops
// empty fragments from the model output.
func (n *NLP) SplitTasks(ctx context.Context, text string) []string {
	raw, err := n.complete(ctx, splitSystemPrompt, text)
	if err != nil {
		n.logger.Warn("multi-task split failed, treating as single task", "err", err)
		return []string{text}
	}

	var out struct {
		Tasks []string `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		n.logger.Warn("split response failed schema validation", "err", err)
		return []string{text}
	}

	var tasks []string
	for _, t := range out.Tasks {
		if s := strings.TrimSpace(t); s != "" {
			tasks = append(tasks, s)
		}
	}
	if len(tasks) == 0 {
		return []string{text}
	}
	return tasks
}

// parsedTaskWire tolerates the model emitting timestamps in a few common
// layouts rather than strict RFC3339.
type parsedTaskWire struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Priority        string   `json:"priority"`
	Category        string   `json:"category"`
	Subcategory     string   `json:"subcategory"`
	DueAt           string   `json:"due_at"`
	RemindAt        string   `json:"remind_at"`
	Recurring       bool     `json:"recurring"`
	RecurrenceRule  string   `json:"recurrence_rule"`
	IsMeeting       bool     `json:"is_meeting"`
	Attendees       []string `json:"attendees"`
	DurationMinutes int      `json:"duration_minutes"`
}

func (n *NLP) ParseTask(ctx context.Context, text string, knownCategories []string) (*domain.ParsedTask, error) {
	user := fmt.Sprintf("Current time: %s\nKnown categories: %s\nTask: %s",
		n.now().Format(time.RFC3339), strings.Join(knownCategories, ", "), text)

	raw, err := n.complete(ctx, parseSystemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("parse task: %w", err)
	}

	var wire parsedTaskWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("parse task: schema validation: %w", err)
	}

	task := &domain.ParsedTask{
		Title:           strings.TrimSpace(wire.Title),
		Description:     strings.TrimSpace(wire.Description),
		Priority:        wire.Priority,
		Category:        strings.TrimSpace(wire.Category),
		Subcategory:     strings.TrimSpace(wire.Subcategory),
		Recurring:       wire.Recurring,
		RecurrenceRule:  strings.TrimSpace(wire.RecurrenceRule),
		IsMeeting:       wire.IsMeeting,
		Attendees:       wire.Attendees,
		DurationMinutes: wire.DurationMinutes,
	}
	if task.Title == "" {
		return nil, fmt.Errorf("parse task: model returned empty title")
	}
	if t, ok := parseFlexTime(wire.DueAt); ok {
		task.DueAt = &t
	}
	if t, ok := parseFlexTime(wire.RemindAt); ok {
		task.RemindAt = &t
	}
	return task, nil
}

func (n *NLP) ParseDate(ctx context.Context, text string) (time.Time, error) {
	user := fmt.Sprintf("Current time: %s\nExpression: %s", n.now().Format(time.RFC3339), text)
	raw, err := n.complete(ctx, dateSystemPrompt, user)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date: %w", err)
	}

	var out struct {
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return time.Time{}, fmt.Errorf("parse date: schema validation: %w", err)
	}
	t, ok := parseFlexTime(out.Timestamp)
	if !ok {
		return time.Time{}, fmt.Errorf("parse date: unparseable timestamp %q", out.Timestamp)
	}
	return t, nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseFlexTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
