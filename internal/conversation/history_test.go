package conversation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/inmolabs/asesorbot/internal/models"
)

func TestHistoryStoreBound(t *testing.T) {
	h := NewHistoryStore(3)

	for i := 0; i < 7; i++ {
		h.Append("user1", models.RoleUser, fmt.Sprintf("question %d", i))
		h.Append("user1", models.RoleAssistant, fmt.Sprintf("answer %d", i))
	}

	turns := h.History("user1")
	if len(turns) != 6 {
		t.Fatalf("expected 6 retained turns (3 pairs), got %d", len(turns))
	}
	if turns[0].Content != "question 4" {
		t.Errorf("expected oldest retained turn to be 'question 4', got %q", turns[0].Content)
	}
	if turns[5].Content != "answer 6" {
		t.Errorf("expected newest turn to be 'answer 6', got %q", turns[5].Content)
	}
}

func TestHistoryStoreOrderPreserved(t *testing.T) {
	h := NewHistoryStore(5)
	h.Append("user1", models.RoleUser, "first")
	h.Append("user1", models.RoleAssistant, "second")
	h.Append("user1", models.RoleUser, "third")

	turns := h.History("user1")
	want := []string{"first", "second", "third"}
	for i, content := range want {
		if turns[i].Content != content {
			t.Errorf("turn %d: expected %q, got %q", i, content, turns[i].Content)
		}
	}
}

func TestHistoryStoreUnknownUser(t *testing.T) {
	h := NewHistoryStore(5)
	if turns := h.History("nobody"); len(turns) != 0 {
		t.Errorf("expected empty history for unknown user, got %d turns", len(turns))
	}
}

func TestHistoryStoreIsolatedPerUser(t *testing.T) {
	h := NewHistoryStore(5)
	h.Append("user1", models.RoleUser, "hola")
	h.Append("user2", models.RoleUser, "hello")

	if len(h.History("user1")) != 1 || len(h.History("user2")) != 1 {
		t.Fatal("expected one turn per user")
	}
	if h.History("user1")[0].Content == h.History("user2")[0].Content {
		t.Error("histories should not be shared between users")
	}
}

func TestHistoryStoreReturnsCopy(t *testing.T) {
	h := NewHistoryStore(5)
	h.Append("user1", models.RoleUser, "original")

	turns := h.History("user1")
	turns[0].Content = "mutated"

	if h.History("user1")[0].Content != "original" {
		t.Error("mutating the returned slice should not affect stored history")
	}
}

func TestRenderContextEmptyHistory(t *testing.T) {
	h := NewHistoryStore(5)
	query := "¿Tienen casas en Escobedo?"
	if got := h.RenderContext("user1", query); got != query {
		t.Errorf("empty history should return the query unchanged, got %q", got)
	}
}

func TestRenderContextWithHistory(t *testing.T) {
	h := NewHistoryStore(5)
	h.Append("user1", models.RoleUser, "busco casa")
	h.Append("user1", models.RoleAssistant, "¿en qué zona?")

	query := "en Escobedo"
	got := h.RenderContext("user1", query)

	if !strings.Contains(got, "Cliente: busco casa") {
		t.Errorf("rendered context missing user turn: %q", got)
	}
	if !strings.Contains(got, "Asesor: ¿en qué zona?") {
		t.Errorf("rendered context missing assistant turn: %q", got)
	}
	if !strings.HasSuffix(got, query) {
		t.Errorf("rendered context should end with the current query, got %q", got)
	}
}
