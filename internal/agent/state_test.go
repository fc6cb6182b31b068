package agent

import (
	"testing"
	"time"

	"taskbot/internal/domain"
)

func TestAcquireSerializesPerUser(t *testing.T) {
	s := NewStateStore()
	release := s.Acquire("telegram:1")

	done := make(chan struct{})
	go func() {
		r2 := s.Acquire("telegram:1")
		r2()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second acquire succeeded while first still held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second acquire never proceeded after release")
	}
}

func TestAcquireIndependentUsers(t *testing.T) {
	s := NewStateStore()
	r1 := s.Acquire("telegram:1")
	defer r1()

	done := make(chan struct{})
	go func() {
		r2 := s.Acquire("telegram:2")
		r2()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("different user blocked by unrelated lock")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	s := NewStateStore()
	release := s.Acquire("u")
	release()
	release() // must not free a slot it no longer owns

	r2 := s.Acquire("u")
	done := make(chan struct{})
	go func() {
		r3 := s.Acquire("u")
		r3()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("double release broke mutual exclusion")
	case <-time.After(20 * time.Millisecond):
	}
	r2()
	<-done
}

func TestPendingLastWriterWins(t *testing.T) {
	s := NewStateStore()
	s.SetPending("u", &PendingConfirmation{Task: domain.ParsedTask{Title: "first"}})
	s.SetPending("u", &PendingConfirmation{Task: domain.ParsedTask{Title: "second"}})

	pc := s.TakePending("u")
	if pc == nil || pc.Task.Title != "second" {
		t.Fatalf("got %+v, want the newer pending", pc)
	}
	if s.TakePending("u") != nil {
		t.Fatal("TakePending did not consume the slot")
	}
}

func TestCachesExpire(t *testing.T) {
	s := NewStateStore()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.PutIdentity("u", Identity{UserID: "u1", DisplayName: "Ana"})
	s.PutTaskList("u", []domain.Task{{ID: "t1", Title: "milk"}})

	if _, ok := s.CachedIdentity("u"); !ok {
		t.Fatal("identity should be cached")
	}
	if list, ok := s.CachedTaskList("u"); !ok || len(list) != 1 {
		t.Fatal("task list should be cached")
	}

	now = now.Add(identityTTL + time.Second)
	if _, ok := s.CachedIdentity("u"); ok {
		t.Fatal("identity survived past TTL")
	}
	if _, ok := s.CachedTaskList("u"); ok {
		t.Fatal("task list survived past TTL")
	}
}

func TestClassifyConfirmation(t *testing.T) {
	cases := []struct {
		in   string
		want confirmAnswer
	}{
		{"yes", answerYes},
		{"Yes!", answerYes},
		{" OK ", answerYes},
		{"sure", answerYes},
		{"no", answerNo},
		{"Nope.", answerNo},
		{"cancel", answerNo},
		{"add buy milk", answerOther},
		{"yes please do that", answerOther},
	}
	for _, tc := range cases {
		if got := classifyConfirmation(tc.in); got != tc.want {
			t.Errorf("classifyConfirmation(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
