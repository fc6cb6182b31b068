package domain

import (
	"context"
	"errors"
	"time"
)

// Closed error set every CalendarService implementation maps provider
// responses onto. Callers branch with errors.Is.
var (
	ErrCalendarPermission   = errors.New("calendar: insufficient permission")
	ErrCalendarNotFound     = errors.New("calendar: not found")
	ErrCalendarTokenExpired = errors.New("calendar: token expired")
	ErrCalendarNotConnected = errors.New("calendar: not connected")
)

// TimeRange is a half-open [Start, End) interval.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// EventSummary describes an existing calendar event, enough to explain a
// conflict to the user.
type EventSummary struct {
	ID    string
	Title string
	Start time.Time
	End   time.Time
}

// ConflictSummary is the result of an availability check: either the slot
// is free, or the overlapping events plus suggested free alternatives.
type ConflictSummary struct {
	Free         bool
	Conflicts    []EventSummary
	Alternatives []TimeRange
}

// CalendarEvent is the payload for event creation.
type CalendarEvent struct {
	Title     string
	Start     time.Time
	End       time.Time
	Attendees []string
}

// CalendarService is the external calendar collaborator. Every method is
// network I/O and fallible; errors are mapped onto the sentinel set above
// where they fit, and wrapped otherwise.
type CalendarService interface {
	Connected(userID string) bool
	CheckAvailability(ctx context.Context, userID string, start time.Time, duration time.Duration) (*ConflictSummary, error)
	CreateEvent(ctx context.Context, userID string, event CalendarEvent) (string, error)
	GetEvent(ctx context.Context, userID, eventID string) (*EventSummary, error)
	DeleteEvent(ctx context.Context, userID, eventID string) error
}
