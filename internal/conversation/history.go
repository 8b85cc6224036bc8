// Package conversation implements the conversation-context and
// turn-orchestration core of asesorbot: bounded per-user history, intent and
// language classification, grounded prompt composition, and the per-user
// reply state machine.
package conversation

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/inmolabs/asesorbot/internal/models"
)

// DefaultHistoryPairs is the default sliding window, measured in interaction
// pairs (one user turn plus one assistant turn). The retention bound is
// 2*DefaultHistoryPairs raw turns.
const DefaultHistoryPairs = 5

// Role labels used when rendering history as a transcript for the model.
// These are display labels for the LLM, not a serialization format.
const (
	labelClient  = "Cliente"
	labelAdvisor = "Asesor"
)

// HistoryStore maintains a bounded ordered log of turns per user. Entries are
// created lazily on first append and live for the process lifetime; unbounded
// growth across distinct users is an accepted limitation.
type HistoryStore struct {
	mu        sync.RWMutex
	histories map[string][]models.Turn
	maxPairs  int
}

// NewHistoryStore creates a history store retaining the given number of
// interaction pairs per user. Non-positive values fall back to the default.
func NewHistoryStore(maxPairs int) *HistoryStore {
	if maxPairs <= 0 {
		maxPairs = DefaultHistoryPairs
	}
	return &HistoryStore{
		histories: make(map[string][]models.Turn),
		maxPairs:  maxPairs,
	}
}

// Append adds one turn to the user's history, trimming the oldest entries
// when the retention bound is exceeded. It never fails.
func (h *HistoryStore) Append(userID string, role models.Role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	turns := append(h.histories[userID], models.Turn{Role: role, Content: content})
	if limit := h.maxPairs * 2; len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	h.histories[userID] = turns

	slog.Debug("HistoryStore.Append: message added", "userID", userID, "historySize", len(turns))
}

// History returns the retained ordered turns for a user. Unknown users yield
// an empty slice, never an error.
func (h *HistoryStore) History(userID string) []models.Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	turns := h.histories[userID]
	out := make([]models.Turn, len(turns))
	copy(out, turns)
	return out
}

// RenderContext produces the contextual prompt block for a turn: the retained
// history rendered as a labeled transcript followed by the current query. An
// empty history returns the query unchanged.
func (h *HistoryStore) RenderContext(userID, currentQuery string) string {
	turns := h.History(userID)
	if len(turns) == 0 {
		return currentQuery
	}

	var b strings.Builder
	b.WriteString("Historial de la conversación:\n")
	for _, t := range turns {
		label := labelClient
		if t.Role == models.RoleAssistant {
			label = labelAdvisor
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nNueva consulta del cliente: ")
	b.WriteString(currentQuery)
	return b.String()
}
