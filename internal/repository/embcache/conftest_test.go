package embcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/db"
	"github.com/astro1860/building-review-copliot/internal/domain"
)

// mockEmbedder returns vec for every text; batch calls record their input.
type mockEmbedder struct {
	vec         []float32
	tokens      int
	err         error
	singleCalls int
	batchTexts  [][]string
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.singleCalls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec, PromptTokens: m.tokens, TotalTokens: m.tokens}, nil
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchTexts = append(m.batchTexts, texts)
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = m.vec
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: m.tokens * len(texts),
		TotalTokens:  m.tokens * len(texts),
	}, nil
}

// memStore is an in-memory store keyed like Redis.
type memStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func newTestCachedEmbedder(t *testing.T, inner *mockEmbedder) (*CachedEmbedder, *memStore) {
	t.Helper()
	ms := newMemStore()
	return New(inner, ms, "text-embedding-3-small", time.Hour, nil, zap.NewNop()), ms
}
