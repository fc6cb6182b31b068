package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"taskbot/internal/domain"
	"taskbot/internal/metrics"
)

const (
	similarityThreshold = 0.5
	defaultCategory     = "Personal"
)

// Orchestrator runs the background unit behind add/remind/meet: split the
// input into task fragments, parse them in parallel, route meetings to the
// scheduler, and persist the rest. It is handed the per-user release func
// and owns it for the lifetime of the unit, so no other message from the
// same user is processed until the unit finishes.
type Orchestrator struct {
	store      domain.TaskStore
	llm        domain.LanguageModel
	scheduler  *MeetingScheduler
	state      *StateStore
	dispatcher *Dispatcher
	logger     *slog.Logger
	now        func() time.Time
	threshold  float64
}

func NewOrchestrator(store domain.TaskStore, llm domain.LanguageModel, scheduler *MeetingScheduler, state *StateStore, dispatcher *Dispatcher, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:      store,
		llm:        llm,
		scheduler:  scheduler,
		state:      state,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
		threshold:  similarityThreshold,
	}
}

// Run executes one background unit. Call it in its own goroutine with a
// context detached from the inbound request; every exit path releases the
// user lock and every failure path tells the user something went wrong.
func (o *Orchestrator) Run(ctx context.Context, msg domain.InboundMessage, kind domain.CommandKind, text string, release func()) {
	defer release()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("background unit panicked",
				"user", msg.UserKey(), "panic", r)
			o.reply(ctx, msg, replySomethingBroke)
		}
	}()

	if err := o.process(ctx, msg, kind, text); err != nil {
		o.logger.Error("background unit failed",
			"user", msg.UserKey(), "kind", kind.String(), "error", err)
		o.reply(ctx, msg, replyProcessingFailed)
	}
}

func (o *Orchestrator) process(ctx context.Context, msg domain.InboundMessage, kind domain.CommandKind, text string) error {
	userID := msg.UserKey()

	fragments := o.llm.SplitTasks(ctx, text)
	cats := o.categoryNames(ctx, userID)

	parsed := make([]*domain.ParsedTask, len(fragments))
	g, gctx := errgroup.WithContext(ctx)
	for i, frag := range fragments {
		i, frag := i, frag
		g.Go(func() error {
			p, err := o.llm.ParseTask(gctx, frag, cats)
			if err != nil {
				return fmt.Errorf("parse %q: %w", frag, err)
			}
			parsed[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, p := range parsed {
		if kind == domain.CmdMeet {
			p.IsMeeting = true
		}
		if kind == domain.CmdRemind && p.RemindAt == nil {
			p.RemindAt = p.DueAt
		}
	}
	if kind == domain.CmdRemind {
		for _, p := range parsed {
			if p.RemindAt == nil {
				return o.reply(ctx, msg,
					fmt.Sprintf("When should I remind you about %q? Try \"remind %s at 5pm\".", p.Title, p.Title))
			}
		}
	}

	// A single non-meeting task gets the near-duplicate check; batches and
	// meetings skip it.
	if len(parsed) == 1 && !parsed[0].IsMeeting {
		return o.createSingle(ctx, msg, *parsed[0])
	}

	var created []domain.Task
	for _, p := range parsed {
		if p.IsMeeting {
			if err := o.scheduler.Schedule(ctx, msg, *p); err != nil {
				return err
			}
			continue
		}
		t, err := o.persist(ctx, msg, *p)
		if err != nil {
			return err
		}
		created = append(created, t)
	}
	if len(created) > 0 {
		return o.reply(ctx, msg, formatCreated(created))
	}
	return nil
}

// createSingle runs the duplicate search and the category resolution in
// parallel, then either persists or parks the task behind a confirmation.
func (o *Orchestrator) createSingle(ctx context.Context, msg domain.InboundMessage, p domain.ParsedTask) error {
	userID := msg.UserKey()

	var (
		dups  []domain.SimilarTask
		catID string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dups, err = o.store.FindSimilar(gctx, userID, p.Title, o.threshold)
		if err != nil {
			return fmt.Errorf("duplicate search: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		catID, err = o.store.ResolveCategoryPath(gctx, userID, categoryPath(p))
		if err != nil {
			return fmt.Errorf("resolve category: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if len(dups) > 0 {
		o.state.SetPending(userID, &PendingConfirmation{
			Task:      p,
			Similar:   dups,
			Channel:   msg.Channel,
			ChatID:    msg.ChatID,
			CreatedAt: o.now(),
		})
		return o.reply(ctx, msg, formatDuplicatePrompt(p.Title, dups))
	}

	t, err := o.persistWithCategory(ctx, msg, p, catID)
	if err != nil {
		return err
	}
	return o.reply(ctx, msg, formatCreated([]domain.Task{t}))
}

// CommitPending persists the exact task that was parked behind a
// confirmation. It runs synchronously on the loop goroutine, under the
// user lock.
func (o *Orchestrator) CommitPending(ctx context.Context, msg domain.InboundMessage, pc *PendingConfirmation) (domain.Task, error) {
	return o.persist(ctx, msg, pc.Task)
}

func (o *Orchestrator) persist(ctx context.Context, msg domain.InboundMessage, p domain.ParsedTask) (domain.Task, error) {
	catID, err := o.store.ResolveCategoryPath(ctx, msg.UserKey(), categoryPath(p))
	if err != nil {
		return domain.Task{}, fmt.Errorf("resolve category: %w", err)
	}
	return o.persistWithCategory(ctx, msg, p, catID)
}

func (o *Orchestrator) persistWithCategory(ctx context.Context, msg domain.InboundMessage, p domain.ParsedTask, catID string) (domain.Task, error) {
	now := o.now()
	due := p.DueAt
	if due == nil {
		d := endOfWeek(now)
		due = &d
	}
	task := domain.Task{
		ID:             uuid.NewString(),
		UserID:         msg.UserKey(),
		Title:          p.Title,
		Description:    p.Description,
		Priority:       domain.NormalizePriority(p.Priority),
		CategoryID:     catID,
		DueAt:          due,
		RemindAt:       p.RemindAt,
		RecurrenceRule: p.RecurrenceRule,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.store.CreateTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("create task: %w", err)
	}
	metrics.TasksCreated.Inc()

	if p.RemindAt != nil {
		rem := domain.Reminder{
			ID:      uuid.NewString(),
			TaskID:  task.ID,
			UserID:  task.UserID,
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			FireAt:  *p.RemindAt,
		}
		if err := o.store.CreateReminder(ctx, rem); err != nil {
			o.logger.Warn("reminder not created",
				"task_id", task.ID, "error", err)
		}
	}
	return task, nil
}

func (o *Orchestrator) categoryNames(ctx context.Context, userID string) []string {
	cats, err := o.store.ListCategories(ctx, userID)
	if err != nil {
		o.logger.Warn("category list unavailable for parsing", "error", err)
		return nil
	}
	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, c.Name)
	}
	return names
}

func (o *Orchestrator) reply(ctx context.Context, msg domain.InboundMessage, text string) error {
	if err := o.dispatcher.Send(ctx, msg.Channel, msg.ChatID, text); err != nil {
		o.logger.Error("reply dropped", "user", msg.UserKey(), "error", err)
	}
	return nil
}

func categoryPath(p domain.ParsedTask) string {
	if p.Category == "" {
		return defaultCategory
	}
	if p.Subcategory != "" {
		return p.Category + "/" + p.Subcategory
	}
	return p.Category
}

// endOfWeek is the default due date for tasks parsed without one: the end
// of the current week, Sunday 23:59 local time.
func endOfWeek(now time.Time) time.Time {
	days := (7 - int(now.Weekday())) % 7
	d := now.AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 0, 0, d.Location())
}
