package agent

import (
	"fmt"
	"strings"
	"time"

	"taskbot/internal/domain"
)

const helpText = `Here's what I can do:

add <task> - capture one or more tasks ("add buy milk and call the bank")
remind <task> at <time> - capture a task and ping you when it's due
meet <description> - schedule a meeting, checking your calendar first
list [today|week|overdue|<category>] - show your open tasks
done <n> - mark task n from the last list as completed
delete <n> - delete task n (and its calendar event if I created one)
move <n> <date> - reschedule task n
categories - show your category tree
videos - show your saved videos
summary - your week at a glance

You can also just tell me what you need in plain words, or paste a
video link and I'll file it for later.`

const (
	replyDidNotUnderstand = "Sorry, I didn't quite get that. Try \"help\" to see what I can do."
	replyProcessingFailed = "Sorry, I couldn't process that. Mind rephrasing it?"
	replySomethingBroke   = "Something went wrong on my side. Please try again."
	replyWorkingOnIt      = "On it! Give me a moment."
	replyPendingDiscarded = "Okay, I've discarded that one."
)

func formatTaskLine(n int, t domain.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s", n, t.Title)
	if t.Priority == domain.PriorityHigh {
		b.WriteString(" (!)")
	}
	if t.DueAt != nil {
		fmt.Fprintf(&b, " - due %s", formatDue(*t.DueAt))
	}
	return b.String()
}

func formatTaskList(header string, tasks []domain.Task) string {
	if len(tasks) == 0 {
		return "Nothing here. Enjoy the quiet!"
	}
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	for i, t := range tasks {
		b.WriteString(formatTaskLine(i+1, t))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDue(due time.Time) string {
	now := time.Now()
	switch {
	case due.Year() == now.Year() && due.YearDay() == now.YearDay():
		if due.Hour() == 23 && due.Minute() == 59 {
			return "today"
		}
		return "today " + due.Format("15:04")
	case due.Year() == now.Year():
		if due.Hour() == 23 && due.Minute() == 59 {
			return due.Format("Mon Jan 2")
		}
		return due.Format("Mon Jan 2 15:04")
	}
	return due.Format("2006-01-02 15:04")
}

func formatCreated(tasks []domain.Task) string {
	if len(tasks) == 1 {
		t := tasks[0]
		s := fmt.Sprintf("Got it! Added %q", t.Title)
		if t.DueAt != nil {
			s += ", due " + formatDue(*t.DueAt)
		}
		return s + "."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Got it! Added %d tasks:\n", len(tasks))
	for i, t := range tasks {
		b.WriteString(formatTaskLine(i+1, t))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDuplicatePrompt(title string, similar []domain.SimilarTask) string {
	var b strings.Builder
	fmt.Fprintf(&b, "That looks a lot like something you already have:\n")
	for i, s := range similar {
		b.WriteString(formatTaskLine(i+1, s.Task))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Add %q anyway? (yes/no)", title)
	return b.String()
}

func formatConflicts(cs *domain.ConflictSummary, when time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You're busy around %s:\n", when.Format("Mon Jan 2 15:04"))
	for _, ev := range cs.Conflicts {
		fmt.Fprintf(&b, "- %s (%s - %s)\n", ev.Title,
			ev.Start.Format("15:04"), ev.End.Format("15:04"))
	}
	if len(cs.Alternatives) > 0 {
		b.WriteString("Free slots nearby:\n")
		for _, alt := range cs.Alternatives {
			fmt.Fprintf(&b, "- %s\n", alt.Start.Format("Mon Jan 2 15:04"))
		}
	}
	b.WriteString("Tell me a new time and I'll book it.")
	return b.String()
}

func formatCategories(cats []domain.Category) string {
	if len(cats) == 0 {
		return "No categories yet."
	}
	byID := make(map[string]domain.Category, len(cats))
	for _, c := range cats {
		byID[c.ID] = c
	}
	var b strings.Builder
	b.WriteString("Your categories:\n")
	for _, c := range cats {
		if c.ParentID != "" {
			continue
		}
		fmt.Fprintf(&b, "- %s\n", c.Name)
		for _, sub := range cats {
			if sub.ParentID == c.ID {
				fmt.Fprintf(&b, "  - %s\n", sub.Name)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
