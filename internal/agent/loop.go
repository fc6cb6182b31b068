package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"taskbot/internal/domain"
	"taskbot/internal/metrics"
)

const defaultConcurrency = 8

// LoopConfig wires the loop's collaborators together.
type LoopConfig struct {
	Bus        domain.MessageBus
	Store      domain.TaskStore
	LLM        domain.LanguageModel
	Calendar   domain.CalendarService
	Dispatcher *Dispatcher
	Logger     *slog.Logger

	// Concurrency bounds how many messages are in flight at once across
	// all users. Per-user ordering is enforced separately by the state
	// store's gate.
	Concurrency int
}

// Loop consumes inbound messages and drives them through echo filtering,
// pending-confirmation resolution, command parsing, and dispatch to either
// a synchronous handler or the fire-and-forget orchestrator.
type Loop struct {
	bus        domain.MessageBus
	store      domain.TaskStore
	llm        domain.LanguageModel
	guardrail  *CalendarGuardrail
	orch       *Orchestrator
	scheduler  *MeetingScheduler
	state      *StateStore
	dispatcher *Dispatcher
	logger     *slog.Logger

	concurrency int
	now         func() time.Time
	wg          sync.WaitGroup
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	state := NewStateStore()
	scheduler := NewMeetingScheduler(cfg.Store, cfg.Calendar, cfg.Dispatcher, cfg.Logger)
	orch := NewOrchestrator(cfg.Store, cfg.LLM, scheduler, state, cfg.Dispatcher, cfg.Logger)
	return &Loop{
		bus:         cfg.Bus,
		store:       cfg.Store,
		llm:         cfg.LLM,
		guardrail:   NewCalendarGuardrail(cfg.Store, cfg.Calendar, cfg.Logger),
		orch:        orch,
		scheduler:   scheduler,
		state:       state,
		dispatcher:  cfg.Dispatcher,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
		now:         time.Now,
	}
}

// Run consumes the bus until ctx is cancelled or the bus closes. It
// returns after all in-flight handlers have finished; detached background
// units are not waited on.
func (l *Loop) Run(ctx context.Context) error {
	msgs := l.bus.Subscribe()
	sem := make(chan struct{}, l.concurrency)

	for {
		select {
		case <-ctx.Done():
			l.wg.Wait()
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				l.wg.Wait()
				return nil
			}
			sem <- struct{}{}
			l.wg.Add(1)
			go func() {
				defer l.wg.Done()
				defer func() { <-sem }()
				l.handle(ctx, msg)
			}()
		}
	}
}

func (l *Loop) handle(ctx context.Context, msg domain.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("message handler panicked",
				"user", msg.UserKey(), "panic", r)
			l.send(ctx, msg, replySomethingBroke)
		}
	}()

	if l.dispatcher.IsEcho(msg) {
		metrics.EchoesDropped.Inc()
		return
	}
	metrics.MessagesTotal.Inc()

	user := msg.UserKey()
	release := l.state.Acquire(user)
	detached := false
	defer func() {
		if !detached {
			release()
		}
	}()

	l.ensureIdentity(ctx, msg)

	// A pending confirmation intercepts whatever comes next. "Yes" commits
	// the parked task, "no" drops it, and anything else drops it and then
	// gets processed normally.
	if pc := l.state.TakePending(user); pc != nil {
		switch classifyConfirmation(msg.Content) {
		case answerYes:
			task, err := l.orch.CommitPending(ctx, msg, pc)
			if err != nil {
				l.logger.Error("pending commit failed", "user", user, "error", err)
				l.send(ctx, msg, replyProcessingFailed)
				return
			}
			l.send(ctx, msg, formatCreated([]domain.Task{task}))
			return
		case answerNo:
			l.send(ctx, msg, replyPendingDiscarded)
			return
		}
	}

	cmd := ParseCommand(msg.Content)
	if cmd.Kind == domain.CmdUnknown {
		cmd = l.classify(ctx, msg.Content)
	}
	l.execute(ctx, msg, cmd, release, &detached)
}

// classify asks the language model for the intent of free-form text and
// maps it onto the same command set the parser produces.
func (l *Loop) classify(ctx context.Context, text string) domain.ParsedCommand {
	intent := l.llm.ClassifyIntent(ctx, text)
	switch intent.Kind {
	case domain.IntentAdd:
		return domain.ParsedCommand{Kind: domain.CmdAdd, Text: intent.Text}
	case domain.IntentRemind:
		return domain.ParsedCommand{Kind: domain.CmdRemind, Text: intent.Text}
	case domain.IntentMeet:
		return domain.ParsedCommand{Kind: domain.CmdMeet, Text: intent.Text}
	case domain.IntentComplete:
		return domain.ParsedCommand{Kind: domain.CmdDone, Search: intent.Search}
	case domain.IntentDelete:
		return domain.ParsedCommand{Kind: domain.CmdDelete, Search: intent.Search}
	case domain.IntentList, domain.IntentQuery:
		return domain.ParsedCommand{Kind: domain.CmdList, Filter: intent.TimeFilter, Search: intent.Search}
	}
	return domain.ParsedCommand{Kind: domain.CmdUnknown, Text: text}
}

func (l *Loop) execute(ctx context.Context, msg domain.InboundMessage, cmd domain.ParsedCommand, release func(), detached *bool) {
	switch cmd.Kind {
	case domain.CmdAdd, domain.CmdRemind, domain.CmdMeet:
		l.send(ctx, msg, replyWorkingOnIt)
		*detached = true
		bg := context.WithoutCancel(ctx)
		go l.orch.Run(bg, msg, cmd.Kind, cmd.Text, release)
	case domain.CmdHelp:
		l.send(ctx, msg, helpText)
	case domain.CmdList:
		l.handleList(ctx, msg, cmd)
	case domain.CmdDone:
		l.handleDone(ctx, msg, cmd)
	case domain.CmdDelete:
		l.handleDelete(ctx, msg, cmd)
	case domain.CmdMove:
		l.handleMove(ctx, msg, cmd)
	case domain.CmdCategories:
		l.handleCategories(ctx, msg)
	case domain.CmdVideos:
		l.handleVideos(ctx, msg)
	case domain.CmdVideoLink:
		l.handleVideoLink(ctx, msg, cmd)
	case domain.CmdSummary:
		l.handleSummary(ctx, msg)
	default:
		l.send(ctx, msg, replyDidNotUnderstand)
	}
}

// ensureIdentity runs once per identity-cache window: it seeds the user's
// default categories so every later operation can assume they exist.
func (l *Loop) ensureIdentity(ctx context.Context, msg domain.InboundMessage) {
	user := msg.UserKey()
	if _, ok := l.state.CachedIdentity(user); ok {
		return
	}
	if err := l.store.SeedCategories(ctx, user); err != nil {
		l.logger.Warn("category seeding failed", "user", user, "error", err)
		return
	}
	l.state.PutIdentity(user, Identity{UserID: user, DisplayName: msg.SenderID})
}

func (l *Loop) send(ctx context.Context, msg domain.InboundMessage, text string) {
	if err := l.dispatcher.Send(ctx, msg.Channel, msg.ChatID, text); err != nil {
		l.logger.Error("reply dropped", "user", msg.UserKey(), "error", err)
	}
}
