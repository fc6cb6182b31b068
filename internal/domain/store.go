package domain

import (
	"context"
	"time"
)

// TaskStore is the persistence surface for tasks, categories, and
// reminders. All operations are single request/response; no transactions
// are assumed across calls, so multi-step flows must tolerate partial
// completion.
type TaskStore interface {
	CreateTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, userID, taskID string) (*Task, error)
	ListOpenTasks(ctx context.Context, userID string) ([]Task, error)
	ListTasksByCategory(ctx context.Context, userID, categoryID string) ([]Task, error)
	CompleteTask(ctx context.Context, userID, taskID string) error
	DeleteTask(ctx context.Context, userID, taskID string) error
	UpdateTaskDue(ctx context.Context, userID, taskID string, due time.Time) error
	CountCompletedSince(ctx context.Context, userID string, since time.Time) (int, error)

	// FindSimilar returns open tasks whose title similarity to title meets
	// or exceeds threshold, best match first.
	FindSimilar(ctx context.Context, userID, title string, threshold float64) ([]SimilarTask, error)

	// ResolveCategoryPath resolves "Category" or "Category/Subcategory" to a
	// category ID, creating any missing nodes along the path.
	ResolveCategoryPath(ctx context.Context, userID, path string) (string, error)
	ListCategories(ctx context.Context, userID string) ([]Category, error)

	// SeedCategories ensures the user's default category tree exists.
	// Idempotent; called lazily on a user's first message per session.
	SeedCategories(ctx context.Context, userID string) error

	CreateReminder(ctx context.Context, rem Reminder) error
	DueReminders(ctx context.Context, now time.Time) ([]Reminder, error)
	MarkReminderSent(ctx context.Context, reminderID string) error

	// LogAudit records an action for the audit trail (calendar deletes,
	// guardrail decisions).
	LogAudit(ctx context.Context, action, userID, taskID, details string) error

	Close() error
}
