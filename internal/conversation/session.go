package conversation

import (
	"sync"
	"time"
)

// DefaultIdleTimeout is how long a pending flow survives without a new
// message before it is reset, so a stale follow-up question cannot trap an
// unrelated message.
const DefaultIdleTimeout = 30 * time.Minute

// PendingFlow names the multi-step flow a conversation is waiting on.
type PendingFlow string

const (
	// PendingNone means no in-flight multi-step flow.
	PendingNone PendingFlow = "none"
	// PendingFollowup means the next message is read as a yes/no answer to a
	// follow-up question.
	PendingFollowup PendingFlow = "awaiting_followup"
	// PendingRegistration means the next message is read as a registration field.
	PendingRegistration PendingFlow = "awaiting_registration"
)

// SessionState is the per-user flow state owned exclusively by the
// orchestrator and mutated on every turn.
type SessionState struct {
	Language      string
	Name          string // captured during registration, fallback display name
	LastMessageAt time.Time
	Pending       PendingFlow
}

// SessionStore holds per-user session state behind a concurrency-safe map.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]SessionState
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]SessionState)}
}

// Get returns the session for a user. Unknown users yield the zero session
// with Pending set to none.
func (s *SessionStore) Get(userID string) SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if session, ok := s.sessions[userID]; ok {
		return session
	}
	return SessionState{Pending: PendingNone}
}

// Set replaces the session for a user. LastMessageAt never moves backwards:
// an update carrying an older timestamp keeps the previous one.
func (s *SessionStore) Set(userID string, session SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.sessions[userID]; ok && session.LastMessageAt.Before(prev.LastMessageAt) {
		session.LastMessageAt = prev.LastMessageAt
	}
	s.sessions[userID] = session
}

// ResetIfStale forces Pending back to none when the gap since the last
// message meets or exceeds the timeout. It returns the (possibly reset)
// session.
func (s *SessionStore) ResetIfStale(userID string, now time.Time, timeout time.Duration) SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[userID]
	if !ok {
		return SessionState{Pending: PendingNone}
	}
	if !session.LastMessageAt.IsZero() && now.Sub(session.LastMessageAt) >= timeout {
		session.Pending = PendingNone
		s.sessions[userID] = session
	}
	return session
}
