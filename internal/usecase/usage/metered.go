package usage

import (
	"context"

	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/domain"
)

var (
	_ domain.Embedder      = (*MeteredEmbedder)(nil)
	_ domain.BatchEmbedder = (*MeteredEmbedder)(nil)
)

// MeteredEmbedder records the tokens reported by successful provider calls.
// A failure to record is logged and never fails the embedding.
type MeteredEmbedder struct {
	inner  domain.Embedder
	usage  *Service
	logger *zap.Logger
}

// NewMeteredEmbedder wraps inner.
func NewMeteredEmbedder(inner domain.Embedder, usage *Service, logger *zap.Logger) *MeteredEmbedder {
	return &MeteredEmbedder{inner: inner, usage: usage, logger: logger}
}

// Embed vectorizes one text.
func (m *MeteredEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := m.inner.Embed(ctx, text)
	if err != nil {
		return res, err
	}
	m.record(ctx, res.TotalTokens)
	return res, nil
}

// BatchEmbed vectorizes texts, one provider call when inner supports batches.
func (m *MeteredEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	be, ok := m.inner.(domain.BatchEmbedder)
	if !ok {
		// Embed records per text.
		return domain.BatchFallback(ctx, m, texts)
	}
	res, err := be.BatchEmbed(ctx, texts)
	if err != nil {
		return res, err
	}
	m.record(ctx, res.TotalTokens)
	return res, nil
}

func (m *MeteredEmbedder) record(ctx context.Context, tokens int) {
	// Usage must be counted even if the caller has gone away.
	if err := m.usage.Record(context.WithoutCancel(ctx), tokens); err != nil {
		m.logger.Warn("Token usage not recorded", zap.Int("tokens", tokens), zap.Error(err))
	}
}
