package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskbot/internal/domain"
)

func testClient(t *testing.T, handler http.HandlerFunc) *GoogleClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGoogleClient(GoogleConfig{
		APIBase: srv.URL,
		Tokens:  map[string]string{"u1": "tok"},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestConnected(t *testing.T) {
	g := NewGoogleClient(GoogleConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if g.Connected("nobody") {
		t.Fatal("no token means not connected")
	}
	g.SetToken("u1", "tok")
	if !g.Connected("u1") {
		t.Fatal("token installed, should be connected")
	}
}

func TestNotConnectedError(t *testing.T) {
	g := NewGoogleClient(GoogleConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	_, err := g.CheckAvailability(context.Background(), "u1", time.Now(), time.Hour)
	if !errors.Is(err, domain.ErrCalendarNotConnected) {
		t.Fatalf("expected ErrCalendarNotConnected, got %v", err)
	}
}

func TestCheckAvailabilityFree(t *testing.T) {
	g := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		json.NewEncoder(w).Encode(map[string]any{"items": []any{}})
	})

	sum, err := g.CheckAvailability(context.Background(), "u1", time.Now().Add(24*time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !sum.Free {
		t.Fatal("expected free slot")
	}
}

func TestCheckAvailabilityBusy(t *testing.T) {
	start := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
	g := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gcalEventList{Items: []gcalEvent{{
			ID:      "ev1",
			Summary: "Standup",
			Start:   gcalEventTime{DateTime: start.Add(-15 * time.Minute)},
			End:     gcalEventTime{DateTime: start.Add(45 * time.Minute)},
		}}})
	})

	sum, err := g.CheckAvailability(context.Background(), "u1", start, time.Hour)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if sum.Free {
		t.Fatal("expected busy slot")
	}
	if len(sum.Conflicts) != 1 || sum.Conflicts[0].Title != "Standup" {
		t.Fatalf("unexpected conflicts: %+v", sum.Conflicts)
	}
	if len(sum.Alternatives) == 0 {
		t.Fatal("expected at least one alternative slot")
	}
	for _, alt := range sum.Alternatives {
		if overlaps(alt, domain.TimeRange{Start: start.Add(-15 * time.Minute), End: start.Add(45 * time.Minute)}) {
			t.Fatalf("alternative %v overlaps the busy event", alt)
		}
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrCalendarTokenExpired},
		{http.StatusForbidden, domain.ErrCalendarPermission},
		{http.StatusNotFound, domain.ErrCalendarNotFound},
	}
	for _, tt := range tests {
		g := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		err := g.DeleteEvent(context.Background(), "u1", "ev1")
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: got %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestCreateEvent(t *testing.T) {
	g := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var ev gcalEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if ev.Summary != "Meeting with Sam" {
			t.Errorf("unexpected summary %q", ev.Summary)
		}
		if len(ev.Attendees) != 1 || ev.Attendees[0].Email != "sam@example.com" {
			t.Errorf("unexpected attendees %+v", ev.Attendees)
		}
		ev.ID = "created-1"
		json.NewEncoder(w).Encode(ev)
	})

	start := time.Now().Add(24 * time.Hour)
	id, err := g.CreateEvent(context.Background(), "u1", domain.CalendarEvent{
		Title:     "Meeting with Sam",
		Start:     start,
		End:       start.Add(30 * time.Minute),
		Attendees: []string{"sam@example.com"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "created-1" {
		t.Fatalf("unexpected event id %q", id)
	}
}

func TestGetEventCancelledIsNotFound(t *testing.T) {
	g := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gcalEvent{ID: "ev1", Status: "cancelled"})
	})
	_, err := g.GetEvent(context.Background(), "u1", "ev1")
	if !errors.Is(err, domain.ErrCalendarNotFound) {
		t.Fatalf("cancelled event should map to not found, got %v", err)
	}
}

func TestSuggestAlternativesSkipsPast(t *testing.T) {
	req := domain.TimeRange{Start: time.Now().Add(time.Hour), End: time.Now().Add(2 * time.Hour)}
	alts := suggestAlternatives(req, nil, 3)
	for _, a := range alts {
		if a.Start.Before(time.Now()) {
			t.Fatalf("alternative in the past: %v", a.Start)
		}
	}
	if len(alts) == 0 {
		t.Fatal("expected alternatives for an empty calendar")
	}
}
