package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/domain"
	"github.com/astro1860/building-review-copliot/internal/metrics"
)

var (
	_ domain.Embedder      = (*Embedder)(nil)
	_ domain.BatchEmbedder = (*Embedder)(nil)
)

// batchBackend embeds texts, one vector per text in input order.
type batchBackend interface {
	embed(ctx context.Context, texts []string) ([][]float32, error)
}

type sdkBackend struct {
	model *genai.EmbeddingModel
}

func (b sdkBackend) embed(ctx context.Context, texts []string) ([][]float32, error) {
	batch := b.model.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	res, err := b.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(res.Embeddings))
	for i, e := range res.Embeddings {
		if e != nil {
			out[i] = e.Values
		}
	}
	return out, nil
}

// Embedder embeds text with a Gemini embedding model.
type Embedder struct {
	backend  batchBackend
	health   func(ctx context.Context) error
	model    string
	provider string
	logger   *zap.Logger
}

// NewEmbedder creates a Gemini embedder on an existing client.
func NewEmbedder(client *genai.Client, cfg *Config) *Embedder {
	return &Embedder{
		backend:  sdkBackend{model: client.EmbeddingModel(cfg.Model)},
		health:   func(ctx context.Context) error { return healthCheck(ctx, client) },
		model:    cfg.Model,
		provider: cfg.Provider,
		logger:   cfg.Logger,
	}
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: res.Embeddings[0]}, nil
}

// BatchEmbed embeds all texts in one BatchEmbedContents call. The API does
// not report token usage for embeddings.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()
	vectors, err := e.backend.embed(ctx, texts)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.model, "api_error").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf("gemini embedding: %w: %w", domain.ErrEmbeddingProviderError, err)
	}
	if len(vectors) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.model, "count_mismatch").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf("gemini embedding: %d vectors for %d inputs: %w",
			len(vectors), len(texts), domain.ErrEmbeddingProviderError)
	}
	for i, v := range vectors {
		if len(v) == 0 {
			metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "error").Inc()
			metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.model, "empty_response").Inc()
			return domain.BatchEmbeddingResult{}, fmt.Errorf("gemini embedding: empty vector at %d: %w",
				i, domain.ErrEmbeddingProviderError)
		}
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, e.model).Observe(duration.Seconds())
	e.logger.Debug("Embedded batch", zap.Int("texts", len(texts)), zap.Duration("duration", duration))

	return domain.BatchEmbeddingResult{Embeddings: vectors}, nil
}

// HealthCheck verifies API availability.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if e.health == nil {
		return nil
	}
	return e.health(ctx)
}
