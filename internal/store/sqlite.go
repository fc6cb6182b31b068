package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"taskbot/internal/domain"
)

// SQLiteStore implements domain.TaskStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	// SeedPath optionally points at a YAML file with extra category seeds,
	// merged with the builtins on SeedCategories.
	SeedPath string
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS categories (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		name       TEXT NOT NULL,
		parent_id  TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, name, parent_id)
	);
	CREATE INDEX IF NOT EXISTS idx_categories_user ON categories(user_id);

	CREATE TABLE IF NOT EXISTS tasks (
		id                TEXT PRIMARY KEY,
		user_id           TEXT NOT NULL,
		title             TEXT NOT NULL,
		description       TEXT,
		priority          TEXT NOT NULL DEFAULT 'medium',
		category_id       TEXT REFERENCES categories(id),
		due_at            DATETIME,
		remind_at         DATETIME,
		recurrence_rule   TEXT,
		completed         INTEGER NOT NULL DEFAULT 0,
		completed_at      DATETIME,
		calendar_event_id TEXT,
		app_created_event INTEGER NOT NULL DEFAULT 0,
		created_at        DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at        DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id, completed);
	CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(user_id, due_at);

	CREATE TABLE IF NOT EXISTS reminders (
		id         TEXT PRIMARY KEY,
		task_id    TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		user_id    TEXT NOT NULL,
		channel    TEXT NOT NULL,
		chat_id    TEXT NOT NULL,
		fire_at    DATETIME NOT NULL,
		sent       INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(sent, fire_at);

	CREATE TABLE IF NOT EXISTS audit_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		action     TEXT NOT NULL,
		user_id    TEXT,
		task_id    TEXT,
		details    TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_audit_time ON audit_log(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateTask(ctx context.Context, task domain.Task) error {
	now := time.Now()
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, title, description, priority, category_id,
		                    due_at, remind_at, recurrence_rule, completed,
		                    calendar_event_id, app_created_event, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.UserID, task.Title, task.Description, string(task.Priority),
		nullStr(task.CategoryID), nullTime(task.DueAt), nullTime(task.RemindAt),
		nullStr(task.RecurrenceRule), boolInt(task.Completed),
		nullStr(task.CalendarEventID), boolInt(task.AppCreatedEvent),
		task.CreatedAt, task.UpdatedAt,
	)
	return err
}

const taskColumns = `id, user_id, title, description, priority, category_id,
	due_at, remind_at, recurrence_rule, completed, completed_at,
	calendar_event_id, app_created_event, created_at, updated_at`

func (s *SQLiteStore) GetTask(ctx context.Context, userID, taskID string) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`, taskID, userID)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *SQLiteStore) ListOpenTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE user_id = ? AND completed = 0
		 ORDER BY due_at IS NULL, due_at ASC, created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *SQLiteStore) ListTasksByCategory(ctx context.Context, userID, categoryID string) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE user_id = ? AND category_id = ? AND completed = 0
		 ORDER BY created_at DESC`, userID, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *SQLiteStore) CompleteTask(ctx context.Context, userID, taskID string) error {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET completed = 1, completed_at = ?, updated_at = ?
		 WHERE id = ? AND user_id = ? AND completed = 0`, now, now, taskID, userID)
	if err != nil {
		return err
	}
	return requireRow(res, taskID)
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, userID, taskID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND user_id = ?`, taskID, userID)
	if err != nil {
		return err
	}
	return requireRow(res, taskID)
}

func (s *SQLiteStore) UpdateTaskDue(ctx context.Context, userID, taskID string, due time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET due_at = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		due, time.Now(), taskID, userID)
	if err != nil {
		return err
	}
	return requireRow(res, taskID)
}

func (s *SQLiteStore) CountCompletedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE user_id = ? AND completed = 1 AND completed_at >= ?`,
		userID, since).Scan(&n)
	return n, err
}

// FindSimilar loads the user's open task titles and scores them in Go.
// Title sets are small enough per user that this beats maintaining an
// FTS index for fuzzy matching.
func (s *SQLiteStore) FindSimilar(ctx context.Context, userID, title string, threshold float64) ([]domain.SimilarTask, error) {
	tasks, err := s.ListOpenTasks(ctx, userID)
	if err != nil {
		return nil, err
	}

	var hits []domain.SimilarTask
	for _, t := range tasks {
		score := TitleSimilarity(title, t.Title)
		if score >= threshold {
			hits = append(hits, domain.SimilarTask{Task: t, Score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits, nil
}

func (s *SQLiteStore) ResolveCategoryPath(ctx context.Context, userID, path string) (string, error) {
	parts := strings.Split(path, "/")
	parentID := ""
	var id string
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		var err error
		id, err = s.getOrCreateCategory(ctx, userID, name, parentID)
		if err != nil {
			return "", err
		}
		parentID = id
	}
	if id == "" {
		return "", fmt.Errorf("empty category path %q", path)
	}
	return id, nil
}

func (s *SQLiteStore) getOrCreateCategory(ctx context.Context, userID, name, parentID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM categories
		 WHERE user_id = ? AND name = ? COLLATE NOCASE AND COALESCE(parent_id, '') = ?`,
		userID, name, parentID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	id = uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO categories (id, user_id, name, parent_id) VALUES (?, ?, ?, ?)`,
		id, userID, name, nullStr(parentID))
	if err != nil {
		return "", err
	}
	s.logger.Info("category created", "user", userID, "name", name)
	return id, nil
}

func (s *SQLiteStore) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, COALESCE(parent_id, '')
		 FROM categories WHERE user_id = ? ORDER BY parent_id IS NOT NULL, name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.ParentID); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (s *SQLiteStore) CreateReminder(ctx context.Context, rem domain.Reminder) error {
	if rem.ID == "" {
		rem.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (id, task_id, user_id, channel, chat_id, fire_at, sent)
		 VALUES (?, ?, ?, ?, ?, ?, 0)`,
		rem.ID, rem.TaskID, rem.UserID, rem.Channel, rem.ChatID, rem.FireAt)
	return err
}

func (s *SQLiteStore) DueReminders(ctx context.Context, now time.Time) ([]domain.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, user_id, channel, chat_id, fire_at, sent
		 FROM reminders WHERE sent = 0 AND fire_at <= ? ORDER BY fire_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rems []domain.Reminder
	for rows.Next() {
		var r domain.Reminder
		var sent int
		if err := rows.Scan(&r.ID, &r.TaskID, &r.UserID, &r.Channel, &r.ChatID, &r.FireAt, &sent); err != nil {
			return nil, err
		}
		r.Sent = sent != 0
		rems = append(rems, r)
	}
	return rems, rows.Err()
}

func (s *SQLiteStore) MarkReminderSent(ctx context.Context, reminderID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET sent = 1 WHERE id = ?`, reminderID)
	return err
}

func (s *SQLiteStore) LogAudit(ctx context.Context, action, userID, taskID, details string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (action, user_id, task_id, details) VALUES (?, ?, ?, ?)`,
		action, userID, taskID, details)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	var desc, priority, categoryID, recurrence, eventID sql.NullString
	var dueAt, remindAt, completedAt sql.NullTime
	var completed, appCreated int
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &desc, &priority, &categoryID,
		&dueAt, &remindAt, &recurrence, &completed, &completedAt,
		&eventID, &appCreated, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Description = desc.String
	t.Priority = domain.Priority(priority.String)
	t.CategoryID = categoryID.String
	t.RecurrenceRule = recurrence.String
	t.CalendarEventID = eventID.String
	t.Completed = completed != 0
	t.AppCreatedEvent = appCreated != 0
	if dueAt.Valid {
		t.DueAt = &dueAt.Time
	}
	if remindAt.Valid {
		t.RemindAt = &remindAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]domain.Task, error) {
	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func requireRow(res sql.Result, taskID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task %s not found", taskID)
	}
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
