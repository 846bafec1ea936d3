package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/domain"
	"github.com/astro1860/building-review-copliot/internal/domain/chunk"
	"github.com/astro1860/building-review-copliot/internal/domain/conversation"
	"github.com/astro1860/building-review-copliot/internal/domain/document"
	"github.com/astro1860/building-review-copliot/internal/domain/reference"
	"github.com/astro1860/building-review-copliot/internal/usecase/retrieval"
)

// --- Mocks ---

type mockRetriever struct {
	mu     sync.Mutex
	chunks int
	resets int
}

func (m *mockRetriever) Build(context.Context, []document.Source) (retrieval.BuildReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = 3
	return retrieval.BuildReport{Chunks: 3}, nil
}

func (m *mockRetriever) Retrieve(context.Context, string, int) ([]chunk.Chunk, error) {
	return []chunk.Chunk{}, nil
}

func (m *mockRetriever) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = 0
	m.resets++
}

func (m *mockRetriever) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunks
}

func newTestSession(r Retriever) *Session {
	return New(Config{
		DefaultReferences: []string{reference.DefaultURL},
		WelcomeMessage:    DefaultWelcome,
	}, r, zap.NewNop())
}

func TestNew_SeedsDefaults(t *testing.T) {
	s := newTestSession(&mockRetriever{})

	if s.ID() == "" {
		t.Error("expected session id")
	}
	refs := s.References()
	if len(refs) != 1 || refs[0].URL != reference.DefaultURL {
		t.Errorf("expected default reference, got %v", refs)
	}
	hist := s.History()
	if len(hist) != 1 || hist[0].Role != conversation.RoleAssistant || hist[0].RawContent != DefaultWelcome {
		t.Errorf("expected welcome turn, got %v", hist)
	}
}

func TestNew_NoWelcome(t *testing.T) {
	s := New(Config{}, &mockRetriever{}, zap.NewNop())
	if len(s.History()) != 0 {
		t.Errorf("expected empty history, got %v", s.History())
	}
	if len(s.References()) != 0 {
		t.Errorf("expected no references, got %v", s.References())
	}
}

func TestReset_RestoresInitialState(t *testing.T) {
	r := &mockRetriever{}
	s := newTestSession(r)
	ctx := context.Background()

	if _, err := s.AppendTurn(conversation.RoleUser, "Is a permit needed?"); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if err := s.AddReference("https://codelibrary.amlegal.com/codes/newyorkcity"); err != nil {
		t.Fatalf("AddReference: %v", err)
	}
	if _, err := r.Build(ctx, nil); err != nil {
		t.Fatalf("Build: %v", err)
	}

	s.Reset()

	if len(s.History()) != 1 {
		t.Errorf("expected only the welcome turn, got %d turns", len(s.History()))
	}
	if len(s.References()) != 1 {
		t.Errorf("expected default references only, got %v", s.References())
	}
	if r.resets != 1 || s.Retriever().Len() != 0 {
		t.Errorf("expected index emptied, resets=%d len=%d", r.resets, s.Retriever().Len())
	}
}

func TestReset_ReturnsIndependentState(t *testing.T) {
	s := newTestSession(&mockRetriever{})
	before := s.History()
	s.Reset()
	_, _ = s.AppendTurn(conversation.RoleUser, "q")
	if len(before) != 1 {
		t.Errorf("snapshot taken before reset must not change, got %d turns", len(before))
	}
}

func TestReferences_DuplicateAndRemove(t *testing.T) {
	s := newTestSession(&mockRetriever{})

	if err := s.AddReference(reference.DefaultURL); !errors.Is(err, domain.ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
	if len(s.References()) != 1 {
		t.Errorf("duplicate add must leave the list unchanged, got %v", s.References())
	}

	removed, err := s.RemoveReferenceAt(0)
	if err != nil {
		t.Fatalf("RemoveReferenceAt: %v", err)
	}
	if removed.URL != reference.DefaultURL {
		t.Errorf("unexpected removed source %v", removed)
	}
	if _, err := s.RemoveReferenceAt(0); !errors.Is(err, domain.ErrReferenceNotFound) {
		t.Errorf("expected ErrReferenceNotFound, got %v", err)
	}
	if err := s.RemoveReference("https://nope.example"); !errors.Is(err, domain.ErrReferenceNotFound) {
		t.Errorf("expected ErrReferenceNotFound, got %v", err)
	}
}

func TestSession_ConcurrentAppends(t *testing.T) {
	s := New(Config{}, &mockRetriever{}, zap.NewNop())

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.AppendTurn(conversation.RoleUser, "q")
			_ = s.References()
		}()
	}
	wg.Wait()

	if got := len(s.History()); got != 20 {
		t.Errorf("expected 20 turns, got %d", got)
	}
}
