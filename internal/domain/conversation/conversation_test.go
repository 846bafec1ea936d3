package conversation

import (
	"testing"
	"time"
)

func TestHistory_AppendKeepsOrder(t *testing.T) {
	h := NewHistory()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.now = func() time.Time { return fixed }

	if _, err := h.Append(RoleUser, "What are the steps for a building permit?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := h.Append(RoleAssistant, "<think>r</think><answer>File with DOB NOW.</answer>"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	turns := h.Turns()
	if len(turns) != 2 || h.Len() != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != RoleUser || turns[1].Role != RoleAssistant {
		t.Errorf("unexpected roles %q, %q", turns[0].Role, turns[1].Role)
	}
	if !turns[0].CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v", turns[0].CreatedAt)
	}
}

func TestHistory_RejectsUnknownRole(t *testing.T) {
	h := NewHistory()
	if _, err := h.Append(Role("system"), "x"); err == nil {
		t.Fatal("expected error")
	}
	if h.Len() != 0 {
		t.Errorf("expected empty history, got %d", h.Len())
	}
}

func TestTurn_Structured(t *testing.T) {
	a := Turn{Role: RoleAssistant, RawContent: "<think>A</think><answer>B</answer>"}
	s := a.Structured()
	if !s.HasReasoning || s.Reasoning != "A" || s.Answer != "B" {
		t.Errorf("unexpected %+v", s)
	}

	u := Turn{Role: RoleUser, RawContent: "<think>not parsed</think>"}
	if got := u.Structured(); got.HasReasoning || got.Answer != u.RawContent {
		t.Errorf("user turn should not be parsed, got %+v", got)
	}
}
