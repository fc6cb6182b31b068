package domain

import "time"

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// NormalizePriority coerces arbitrary model output to a valid priority,
// defaulting to medium.
func NormalizePriority(s string) Priority {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(s)
	}
	return PriorityMedium
}

// ParsedTask is the language model's structured reading of a task
// description. It is untrusted external input: every field is validated
// before use.
type ParsedTask struct {
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Priority        string     `json:"priority,omitempty"`
	Category        string     `json:"category,omitempty"`
	Subcategory     string     `json:"subcategory,omitempty"`
	DueAt           *time.Time `json:"due_at,omitempty"`
	RemindAt        *time.Time `json:"remind_at,omitempty"`
	Recurring       bool       `json:"recurring,omitempty"`
	RecurrenceRule  string     `json:"recurrence_rule,omitempty"`
	IsMeeting       bool       `json:"is_meeting,omitempty"`
	Attendees       []string   `json:"attendees,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
}

// Task is the durable record persisted by the orchestrator.
//
// Invariant: a non-empty CalendarEventID always carries AppCreatedEvent.
// The flag is set only when this system created the event and is the sole
// authority for whether deletion may propagate to the calendar.
type Task struct {
	ID              string
	UserID          string
	Title           string
	Description     string
	Priority        Priority
	CategoryID      string
	DueAt           *time.Time
	RemindAt        *time.Time
	Recurring       bool
	RecurrenceRule  string
	Completed       bool
	CompletedAt     *time.Time
	CalendarEventID string
	AppCreatedEvent bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Category is a node in a user's category tree. ParentID is empty for
// top-level categories.
type Category struct {
	ID       string
	UserID   string
	Name     string
	ParentID string
}

// Reminder is a pending notification for a task.
type Reminder struct {
	ID      string
	TaskID  string
	UserID  string
	Channel string
	ChatID  string
	FireAt  time.Time
	Sent    bool
}

// SimilarTask is a near-duplicate search hit.
type SimilarTask struct {
	Task  Task
	Score float64
}
