package agent

import (
	"sync"
	"time"

	"taskbot/internal/domain"
)

const (
	identityTTL = 10 * time.Minute
	taskListTTL = 10 * time.Minute
)

// PendingConfirmation holds a fully parsed task waiting for the user to
// confirm or reject it after a near-duplicate was found. Only one pending
// confirmation exists per user; a newer one replaces the older.
type PendingConfirmation struct {
	Task      domain.ParsedTask
	Similar   []domain.SimilarTask
	Channel   string
	ChatID    string
	CreatedAt time.Time
}

// Identity is the resolved store-side identity of a sender, cached so that
// per-user setup (category seeding) runs at most once per TTL window.
type Identity struct {
	UserID      string
	DisplayName string
}

type cachedIdentity struct {
	identity Identity
	expires  time.Time
}

type cachedTaskList struct {
	tasks   []domain.Task
	expires time.Time
}

type userState struct {
	gate     chan struct{}
	pending  *PendingConfirmation
	identity *cachedIdentity
	taskList *cachedTaskList
}

// StateStore keeps all per-user conversational state: the serialization
// gate, the pending confirmation slot, and short-lived caches. All message
// processing for one user funnels through Acquire, so at most one unit of
// work per user runs at a time even when the fire-and-forget path detaches.
type StateStore struct {
	mu    sync.Mutex
	users map[string]*userState
	now   func() time.Time
}

func NewStateStore() *StateStore {
	return &StateStore{users: make(map[string]*userState), now: time.Now}
}

func (s *StateStore) user(key string) *userState {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[key]
	if !ok {
		u = &userState{gate: make(chan struct{}, 1)}
		s.users[key] = u
	}
	return u
}

// Acquire blocks until the per-user gate is free and returns the release
// func. The release is safe to hand off to a background goroutine; callers
// must invoke it exactly once.
func (s *StateStore) Acquire(userKey string) (release func()) {
	u := s.user(userKey)
	u.gate <- struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() { <-u.gate })
	}
}

// SetPending installs a pending confirmation, replacing any previous one.
func (s *StateStore) SetPending(userKey string, pc *PendingConfirmation) {
	u := s.user(userKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	u.pending = pc
}

// TakePending removes and returns the pending confirmation, if any. Any
// message that arrives while a confirmation is pending consumes it, so a
// stale "yes" can never commit a task the user has moved past.
func (s *StateStore) TakePending(userKey string) *PendingConfirmation {
	u := s.user(userKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	pc := u.pending
	u.pending = nil
	return pc
}

// CachedIdentity returns the cached identity if it has not expired.
func (s *StateStore) CachedIdentity(userKey string) (Identity, bool) {
	u := s.user(userKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.identity == nil || s.now().After(u.identity.expires) {
		return Identity{}, false
	}
	return u.identity.identity, true
}

func (s *StateStore) PutIdentity(userKey string, id Identity) {
	u := s.user(userKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	u.identity = &cachedIdentity{identity: id, expires: s.now().Add(identityTTL)}
}

// CachedTaskList returns the last task list shown to the user, used to
// resolve numeric references like "done 2".
func (s *StateStore) CachedTaskList(userKey string) ([]domain.Task, bool) {
	u := s.user(userKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.taskList == nil || s.now().After(u.taskList.expires) {
		return nil, false
	}
	return u.taskList.tasks, true
}

func (s *StateStore) PutTaskList(userKey string, tasks []domain.Task) {
	u := s.user(userKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	u.taskList = &cachedTaskList{tasks: tasks, expires: s.now().Add(taskListTTL)}
}

// confirmation token sets; matching is on the normalized whole message.
var (
	affirmativeTokens = map[string]bool{
		"yes": true, "y": true, "yeah": true, "yep": true, "ok": true,
		"okay": true, "sure": true, "confirm": true, "si": true,
	}
	negativeTokens = map[string]bool{
		"no": true, "n": true, "nope": true, "nah": true, "cancel": true,
	}
)

type confirmAnswer int

const (
	answerOther confirmAnswer = iota
	answerYes
	answerNo
)

func classifyConfirmation(text string) confirmAnswer {
	norm := normalizeToken(text)
	switch {
	case affirmativeTokens[norm]:
		return answerYes
	case negativeTokens[norm]:
		return answerNo
	}
	return answerOther
}

func normalizeToken(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '.', ',', '!', '?':
			continue
		}
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}
