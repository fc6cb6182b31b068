package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskbot/internal/domain"
	"taskbot/internal/metrics"
	"taskbot/internal/store"
)

func (l *Loop) handleList(ctx context.Context, msg domain.InboundMessage, cmd domain.ParsedCommand) {
	user := msg.UserKey()
	tasks, err := l.store.ListOpenTasks(ctx, user)
	if err != nil {
		l.logger.Error("list tasks failed", "user", user, "error", err)
		l.send(ctx, msg, replySomethingBroke)
		return
	}

	tasks = l.filterTasks(ctx, user, tasks, cmd)
	header := "Your open tasks:"
	if cmd.Filter != "" {
		header = fmt.Sprintf("Your %s tasks:", cmd.Filter)
	}

	// The numbered list the user sees is the one later numeric references
	// resolve against.
	l.state.PutTaskList(user, tasks)
	l.send(ctx, msg, formatTaskList(header, tasks))
}

func (l *Loop) filterTasks(ctx context.Context, user string, tasks []domain.Task, cmd domain.ParsedCommand) []domain.Task {
	now := l.now()
	var keep func(domain.Task) bool
	switch strings.ToLower(cmd.Filter) {
	case "", "all":
		keep = func(domain.Task) bool { return true }
	case "today":
		keep = func(t domain.Task) bool {
			return t.DueAt != nil && sameDay(*t.DueAt, now)
		}
	case "week":
		eow := endOfWeek(now)
		keep = func(t domain.Task) bool {
			return t.DueAt != nil && !t.DueAt.After(eow)
		}
	case "overdue":
		keep = func(t domain.Task) bool {
			return t.DueAt != nil && t.DueAt.Before(now)
		}
	default:
		// Treat an unrecognized filter as a category name.
		catID, err := l.categoryID(ctx, user, cmd.Filter)
		if err != nil || catID == "" {
			keep = func(domain.Task) bool { return true }
		} else {
			keep = func(t domain.Task) bool { return t.CategoryID == catID }
		}
	}

	out := tasks[:0]
	for _, t := range tasks {
		if keep(t) && matchesSearch(t, cmd.Search) {
			out = append(out, t)
		}
	}
	return out
}

func (l *Loop) handleDone(ctx context.Context, msg domain.InboundMessage, cmd domain.ParsedCommand) {
	user := msg.UserKey()
	task, err := l.resolveRef(ctx, user, cmd)
	if err != nil {
		l.send(ctx, msg, err.Error())
		return
	}
	if err := l.store.CompleteTask(ctx, user, task.ID); err != nil {
		l.logger.Error("complete task failed", "user", user, "task_id", task.ID, "error", err)
		l.send(ctx, msg, replySomethingBroke)
		return
	}
	l.send(ctx, msg, fmt.Sprintf("Nice, %q is done!", task.Title))
}

func (l *Loop) handleDelete(ctx context.Context, msg domain.InboundMessage, cmd domain.ParsedCommand) {
	user := msg.UserKey()
	task, err := l.resolveRef(ctx, user, cmd)
	if err != nil {
		l.send(ctx, msg, err.Error())
		return
	}
	remoteDeleted, err := l.guardrail.DeleteTask(ctx, *task)
	if err != nil {
		l.logger.Error("delete task failed", "user", user, "task_id", task.ID, "error", err)
		l.send(ctx, msg, replySomethingBroke)
		return
	}
	reply := fmt.Sprintf("Deleted %q.", task.Title)
	if remoteDeleted {
		reply = fmt.Sprintf("Deleted %q and removed it from your calendar.", task.Title)
	}
	l.send(ctx, msg, reply)
}

func (l *Loop) handleMove(ctx context.Context, msg domain.InboundMessage, cmd domain.ParsedCommand) {
	user := msg.UserKey()
	task, err := l.resolveRef(ctx, user, cmd)
	if err != nil {
		l.send(ctx, msg, err.Error())
		return
	}
	due, err := l.llm.ParseDate(ctx, cmd.DateText)
	if err != nil {
		l.send(ctx, msg, fmt.Sprintf("I couldn't figure out when %q is. Try something like \"friday 3pm\".", cmd.DateText))
		return
	}
	if err := l.store.UpdateTaskDue(ctx, user, task.ID, due); err != nil {
		l.logger.Error("move task failed", "user", user, "task_id", task.ID, "error", err)
		l.send(ctx, msg, replySomethingBroke)
		return
	}
	l.send(ctx, msg, fmt.Sprintf("Moved %q to %s.", task.Title, formatDue(due)))
}

func (l *Loop) handleCategories(ctx context.Context, msg domain.InboundMessage) {
	cats, err := l.store.ListCategories(ctx, msg.UserKey())
	if err != nil {
		l.logger.Error("list categories failed", "user", msg.UserKey(), "error", err)
		l.send(ctx, msg, replySomethingBroke)
		return
	}
	l.send(ctx, msg, formatCategories(cats))
}

func (l *Loop) handleVideos(ctx context.Context, msg domain.InboundMessage) {
	user := msg.UserKey()
	catID, err := l.categoryID(ctx, user, store.VideosCategory)
	if err != nil || catID == "" {
		l.send(ctx, msg, "No saved videos yet. Paste a link and I'll keep it for you.")
		return
	}
	tasks, err := l.store.ListTasksByCategory(ctx, user, catID)
	if err != nil {
		l.logger.Error("list videos failed", "user", user, "error", err)
		l.send(ctx, msg, replySomethingBroke)
		return
	}
	l.state.PutTaskList(user, tasks)
	l.send(ctx, msg, formatTaskList("Your saved videos:", tasks))
}

// handleVideoLink files a pasted video URL as a watch-later task under
// Videos/<platform>. It is fully deterministic, so it runs synchronously.
func (l *Loop) handleVideoLink(ctx context.Context, msg domain.InboundMessage, cmd domain.ParsedCommand) {
	user := msg.UserKey()
	catID, err := l.store.ResolveCategoryPath(ctx, user, store.VideosCategory+"/"+cmd.Platform)
	if err != nil {
		l.logger.Error("resolve videos category failed", "user", user, "error", err)
		l.send(ctx, msg, replySomethingBroke)
		return
	}
	now := l.now()
	task := domain.Task{
		ID:          uuid.NewString(),
		UserID:      user,
		Title:       "Watch: " + cmd.URL,
		Description: msg.Content,
		Priority:    domain.PriorityLow,
		CategoryID:  catID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := l.store.CreateTask(ctx, task); err != nil {
		l.logger.Error("save video failed", "user", user, "error", err)
		l.send(ctx, msg, replySomethingBroke)
		return
	}
	metrics.TasksCreated.Inc()
	l.send(ctx, msg, fmt.Sprintf("Saved to your %s videos. Ask for \"videos\" to see them.", cmd.Platform))
}

func (l *Loop) handleSummary(ctx context.Context, msg domain.InboundMessage) {
	user := msg.UserKey()
	now := l.now()

	open, err := l.store.ListOpenTasks(ctx, user)
	if err != nil {
		l.logger.Error("summary failed", "user", user, "error", err)
		l.send(ctx, msg, replySomethingBroke)
		return
	}
	completed, err := l.store.CountCompletedSince(ctx, user, startOfWeek(now))
	if err != nil {
		l.logger.Error("summary failed", "user", user, "error", err)
		l.send(ctx, msg, replySomethingBroke)
		return
	}

	var dueToday, overdue int
	for _, t := range open {
		if t.DueAt == nil {
			continue
		}
		if sameDay(*t.DueAt, now) {
			dueToday++
		} else if t.DueAt.Before(now) {
			overdue++
		}
	}

	var b strings.Builder
	b.WriteString("Your week so far:\n")
	fmt.Fprintf(&b, "- %d open tasks\n", len(open))
	fmt.Fprintf(&b, "- %d due today\n", dueToday)
	fmt.Fprintf(&b, "- %d overdue\n", overdue)
	fmt.Fprintf(&b, "- %d completed this week", completed)
	if completed > 0 {
		b.WriteString(" - keep it up!")
	}
	l.send(ctx, msg, b.String())
}

// resolveRef turns a numeric or search reference into a task. Numeric
// references count into the last list shown to the user; with no cached
// list they count into a fresh open-task list.
func (l *Loop) resolveRef(ctx context.Context, user string, cmd domain.ParsedCommand) (*domain.Task, error) {
	if cmd.Index > 0 {
		list, ok := l.state.CachedTaskList(user)
		if !ok {
			fresh, err := l.store.ListOpenTasks(ctx, user)
			if err != nil {
				return nil, fmt.Errorf("%s", replySomethingBroke)
			}
			list = fresh
		}
		if cmd.Index > len(list) {
			return nil, fmt.Errorf("I only have %d tasks on the list. Try \"list\" to see them.", len(list))
		}
		task := list[cmd.Index-1]
		return &task, nil
	}

	if cmd.Search != "" {
		tasks, err := l.store.ListOpenTasks(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("%s", replySomethingBroke)
		}
		if best := bestMatch(tasks, cmd.Search); best != nil {
			return best, nil
		}
		return nil, fmt.Errorf("I couldn't find a task matching %q.", cmd.Search)
	}
	return nil, fmt.Errorf("%s", replyDidNotUnderstand)
}

func (l *Loop) categoryID(ctx context.Context, user, name string) (string, error) {
	cats, err := l.store.ListCategories(ctx, user)
	if err != nil {
		return "", err
	}
	for _, c := range cats {
		if strings.EqualFold(c.Name, name) {
			return c.ID, nil
		}
	}
	return "", nil
}

func bestMatch(tasks []domain.Task, search string) *domain.Task {
	var best *domain.Task
	var bestScore float64
	for i, t := range tasks {
		score := store.TitleSimilarity(t.Title, search)
		if strings.Contains(strings.ToLower(t.Title), strings.ToLower(search)) && score < 0.5 {
			score = 0.5
		}
		if score > bestScore {
			bestScore = score
			best = &tasks[i]
		}
	}
	if bestScore < 0.3 {
		return nil
	}
	return best
}

func matchesSearch(t domain.Task, search string) bool {
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), strings.ToLower(search)) ||
		store.TitleSimilarity(t.Title, search) >= 0.3
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// startOfWeek is Monday 00:00 local time.
func startOfWeek(now time.Time) time.Time {
	offset := (int(now.Weekday()) + 6) % 7
	d := now.AddDate(0, 0, -offset)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}
