package conversation

import (
	"testing"
	"time"
)

func TestSessionStoreUnknownUser(t *testing.T) {
	s := NewSessionStore()
	session := s.Get("nobody")
	if session.Pending != PendingNone {
		t.Errorf("unknown user should have Pending none, got %q", session.Pending)
	}
	if !session.LastMessageAt.IsZero() {
		t.Error("unknown user should have zero LastMessageAt")
	}
}

func TestSessionStoreSetAndGet(t *testing.T) {
	s := NewSessionStore()
	now := time.Now()
	s.Set("user1", SessionState{Language: "en", LastMessageAt: now, Pending: PendingFollowup})

	session := s.Get("user1")
	if session.Language != "en" {
		t.Errorf("expected language en, got %q", session.Language)
	}
	if session.Pending != PendingFollowup {
		t.Errorf("expected pending followup, got %q", session.Pending)
	}
}

func TestSessionStoreTimestampMonotonic(t *testing.T) {
	s := NewSessionStore()
	later := time.Now()
	earlier := later.Add(-time.Minute)

	s.Set("user1", SessionState{LastMessageAt: later})
	s.Set("user1", SessionState{LastMessageAt: earlier})

	if got := s.Get("user1").LastMessageAt; got.Before(later) {
		t.Errorf("LastMessageAt moved backwards: %v < %v", got, later)
	}
}

func TestResetIfStaleResetsPending(t *testing.T) {
	s := NewSessionStore()
	past := time.Now().Add(-time.Hour)
	s.Set("user1", SessionState{LastMessageAt: past, Pending: PendingFollowup})

	session := s.ResetIfStale("user1", time.Now(), 30*time.Minute)
	if session.Pending != PendingNone {
		t.Errorf("stale session should reset Pending, got %q", session.Pending)
	}
	if s.Get("user1").Pending != PendingNone {
		t.Error("reset should persist in the store")
	}
}

func TestResetIfStaleKeepsFreshSession(t *testing.T) {
	s := NewSessionStore()
	recent := time.Now().Add(-time.Minute)
	s.Set("user1", SessionState{LastMessageAt: recent, Pending: PendingFollowup})

	session := s.ResetIfStale("user1", time.Now(), 30*time.Minute)
	if session.Pending != PendingFollowup {
		t.Errorf("fresh session should keep Pending, got %q", session.Pending)
	}
}
