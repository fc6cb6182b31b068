package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"taskbot/internal/domain"
)

const (
	defaultAPIBase     = "https://www.googleapis.com/calendar/v3"
	defaultCalendarID  = "primary"
	defaultHTTPTimeout = 30 * time.Second
)

// GoogleClient implements domain.CalendarService against the Google
// Calendar REST API. OAuth token exchange happens elsewhere; this client
// only consumes per-user bearer tokens.
type GoogleClient struct {
	apiBase    string
	calendarID string
	client     *http.Client
	logger     *slog.Logger

	mu     sync.RWMutex
	tokens map[string]string // userID -> bearer token
}

type GoogleConfig struct {
	APIBase    string
	CalendarID string
	Tokens     map[string]string
	Logger     *slog.Logger
}

func NewGoogleClient(cfg GoogleConfig) *GoogleClient {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = defaultCalendarID
	}
	tokens := make(map[string]string, len(cfg.Tokens))
	for k, v := range cfg.Tokens {
		tokens[k] = v
	}
	return &GoogleClient{
		apiBase:    cfg.APIBase,
		calendarID: cfg.CalendarID,
		client:     &http.Client{Timeout: defaultHTTPTimeout},
		logger:     cfg.Logger,
		tokens:     tokens,
	}
}

// SetToken installs or replaces a user's bearer token at runtime.
func (g *GoogleClient) SetToken(userID, token string) {
	g.mu.Lock()
	g.tokens[userID] = token
	g.mu.Unlock()
}

func (g *GoogleClient) Connected(userID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.tokens[userID] != ""
}

func (g *GoogleClient) token(userID string) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	tok := g.tokens[userID]
	if tok == "" {
		return "", domain.ErrCalendarNotConnected
	}
	return tok, nil
}

type gcalEvent struct {
	ID        string        `json:"id,omitempty"`
	Summary   string        `json:"summary"`
	Start     gcalEventTime `json:"start"`
	End       gcalEventTime `json:"end"`
	Attendees []gcalAttendee `json:"attendees,omitempty"`
	Status    string        `json:"status,omitempty"`
}

type gcalEventTime struct {
	DateTime time.Time `json:"dateTime"`
}

type gcalAttendee struct {
	Email string `json:"email"`
}

type gcalEventList struct {
	Items []gcalEvent `json:"items"`
}

// CheckAvailability lists events overlapping [start, start+duration) and,
// when the slot is busy, computes nearby free alternatives from the
// surrounding search window.
func (g *GoogleClient) CheckAvailability(ctx context.Context, userID string, start time.Time, duration time.Duration) (*domain.ConflictSummary, error) {
	// Fetch a wide window so alternative slots can be suggested without a
	// second round trip.
	windowStart := start.Add(-searchWindow)
	windowEnd := start.Add(duration + searchWindow)

	events, err := g.listEvents(ctx, userID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	slot := domain.TimeRange{Start: start, End: start.Add(duration)}
	var conflicts []domain.EventSummary
	var busy []domain.TimeRange
	for _, ev := range events {
		r := domain.TimeRange{Start: ev.Start, End: ev.End}
		busy = append(busy, r)
		if overlaps(r, slot) {
			conflicts = append(conflicts, ev)
		}
	}

	if len(conflicts) == 0 {
		return &domain.ConflictSummary{Free: true}, nil
	}

	return &domain.ConflictSummary{
		Free:         false,
		Conflicts:    conflicts,
		Alternatives: suggestAlternatives(slot, busy, maxAlternatives),
	}, nil
}

func (g *GoogleClient) listEvents(ctx context.Context, userID string, from, to time.Time) ([]domain.EventSummary, error) {
	q := url.Values{}
	q.Set("timeMin", from.Format(time.RFC3339))
	q.Set("timeMax", to.Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")

	var list gcalEventList
	path := fmt.Sprintf("/calendars/%s/events?%s", url.PathEscape(g.calendarID), q.Encode())
	if err := g.do(ctx, userID, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}

	var events []domain.EventSummary
	for _, ev := range list.Items {
		if ev.Status == "cancelled" {
			continue
		}
		events = append(events, domain.EventSummary{
			ID:    ev.ID,
			Title: ev.Summary,
			Start: ev.Start.DateTime,
			End:   ev.End.DateTime,
		})
	}
	return events, nil
}

func (g *GoogleClient) CreateEvent(ctx context.Context, userID string, event domain.CalendarEvent) (string, error) {
	body := gcalEvent{
		Summary: event.Title,
		Start:   gcalEventTime{DateTime: event.Start},
		End:     gcalEventTime{DateTime: event.End},
	}
	for _, a := range event.Attendees {
		body.Attendees = append(body.Attendees, gcalAttendee{Email: a})
	}

	var created gcalEvent
	path := fmt.Sprintf("/calendars/%s/events", url.PathEscape(g.calendarID))
	if err := g.do(ctx, userID, http.MethodPost, path, body, &created); err != nil {
		return "", err
	}
	g.logger.Info("calendar event created", "user", userID, "event_id", created.ID, "title", event.Title)
	return created.ID, nil
}

func (g *GoogleClient) GetEvent(ctx context.Context, userID, eventID string) (*domain.EventSummary, error) {
	var ev gcalEvent
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(g.calendarID), url.PathEscape(eventID))
	if err := g.do(ctx, userID, http.MethodGet, path, nil, &ev); err != nil {
		return nil, err
	}
	if ev.Status == "cancelled" {
		return nil, domain.ErrCalendarNotFound
	}
	return &domain.EventSummary{ID: ev.ID, Title: ev.Summary, Start: ev.Start.DateTime, End: ev.End.DateTime}, nil
}

func (g *GoogleClient) DeleteEvent(ctx context.Context, userID, eventID string) error {
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(g.calendarID), url.PathEscape(eventID))
	return g.do(ctx, userID, http.MethodDelete, path, nil, nil)
}

// do executes one API call and maps the response status onto the closed
// calendar error set.
func (g *GoogleClient) do(ctx context.Context, userID, method, path string, body, out any) error {
	token, err := g.token(userID)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.apiBase+path, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("calendar request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.ErrCalendarTokenExpired
	case resp.StatusCode == http.StatusForbidden:
		return domain.ErrCalendarPermission
	case resp.StatusCode == http.StatusNotFound ||
		resp.StatusCode == http.StatusGone:
		return domain.ErrCalendarNotFound
	case resp.StatusCode >= 300:
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("calendar %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func overlaps(a, b domain.TimeRange) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}
