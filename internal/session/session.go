// Package session holds the per-conversation state: history, reference list
// and the document index behind it.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/domain/chunk"
	"github.com/astro1860/building-review-copliot/internal/domain/conversation"
	"github.com/astro1860/building-review-copliot/internal/domain/document"
	"github.com/astro1860/building-review-copliot/internal/domain/reference"
	"github.com/astro1860/building-review-copliot/internal/usecase/retrieval"
)

// DefaultWelcome is the first assistant turn of a fresh session.
const DefaultWelcome = "Hi! I'm the NYC Building Code Copilot. Upload drawings or code excerpts and ask me about compliance."

// Retriever is the index a session builds and queries.
type Retriever interface {
	Build(ctx context.Context, docs []document.Source) (retrieval.BuildReport, error)
	Retrieve(ctx context.Context, question string, k int) ([]chunk.Chunk, error)
	Reset()
	Len() int
}

// Config seeds new and reset sessions.
type Config struct {
	DefaultReferences []string
	WelcomeMessage    string
}

// Session is safe for concurrent use.
type Session struct {
	id        string
	cfg       Config
	retriever Retriever
	logger    *zap.Logger

	mu        sync.RWMutex
	history   *conversation.History
	refs      *reference.List
	createdAt time.Time
}

// New creates a session seeded from cfg. The retriever is owned by the
// session and emptied on Reset.
func New(cfg Config, r Retriever, logger *zap.Logger) *Session {
	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		retriever: r,
		logger:    logger,
	}
	s.seed()
	return s
}

func (s *Session) seed() {
	s.history = conversation.NewHistory()
	s.refs = reference.NewList(s.cfg.DefaultReferences...)
	s.createdAt = time.Now()
	if s.cfg.WelcomeMessage != "" {
		_, _ = s.history.Append(conversation.RoleAssistant, s.cfg.WelcomeMessage)
	}
}

// Reset restores the initial history and references and empties the index.
func (s *Session) Reset() {
	s.mu.Lock()
	s.seed()
	s.mu.Unlock()

	s.retriever.Reset()
	s.logger.Info("Session reset", zap.String("session_id", s.id))
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created or last reset.
func (s *Session) CreatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.createdAt
}

// Retriever returns the session index.
func (s *Session) Retriever() Retriever { return s.retriever }

// AppendTurn records a turn in the history.
func (s *Session) AppendTurn(role conversation.Role, content string) (conversation.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Append(role, content)
}

// History returns a copy of the turns in order.
func (s *Session) History() []conversation.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Turns()
}

// References returns a copy of the reference list in order.
func (s *Session) References() []reference.Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refs.Sources()
}

// AddReference appends url to the reference list.
func (s *Session) AddReference(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs.Add(url)
}

// RemoveReferenceAt deletes the reference at the zero-based position.
func (s *Session) RemoveReferenceAt(position int) (reference.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs.RemoveAt(position)
}

// RemoveReference deletes url from the reference list.
func (s *Session) RemoveReference(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs.Remove(url)
}
