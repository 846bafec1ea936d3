package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/breaker"
	"github.com/astro1860/building-review-copliot/internal/domain"
)

// DefaultMaxAPIBatchSize caps the number of texts sent in one provider request.
const DefaultMaxAPIBatchSize = 256

// InstrumentedEmbedder wraps Embedder with timeouts, a circuit breaker and logging.
// Transport metrics (requests, duration, tokens) are recorded by the provider adapters.
type InstrumentedEmbedder struct {
	inner        domain.Embedder
	provider     string
	model        string
	timeout      time.Duration
	maxBatchSize int
	breaker      *breaker.Breaker
	logger       *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with resilience and observability.
// A nil breaker or zero timeout disables the respective guard.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	timeout time.Duration, cb *breaker.Breaker, logger *zap.Logger,
) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:        inner,
		provider:     provider,
		model:        model,
		timeout:      timeout,
		maxBatchSize: DefaultMaxAPIBatchSize,
		breaker:      cb,
		logger:       logger,
	}
}

// WithMaxBatchSize overrides the sub-batch size. Non-positive values are ignored.
func (p *InstrumentedEmbedder) WithMaxBatchSize(n int) *InstrumentedEmbedder {
	if n > 0 {
		p.maxBatchSize = n
	}
	return p
}

// Embed delegates a single text under the timeout and breaker.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()

	var result domain.EmbeddingResult
	err := p.guard(ctx, func(ctx context.Context) error {
		var err error
		result, err = p.inner.Embed(ctx, text)
		return err
	})
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// BatchEmbed splits texts into sub-batches of at most maxBatchSize and
// delegates each one. Any failing sub-batch fails the whole call.
func (p *InstrumentedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}

	for offset := 0; offset < len(texts); offset += p.maxBatchSize {
		end := min(offset+p.maxBatchSize, len(texts))
		part := texts[offset:end]

		var res domain.BatchEmbeddingResult
		err := p.guard(ctx, func(ctx context.Context) error {
			var err error
			res, err = domain.EmbedAll(ctx, p.inner, part)
			return err
		})
		if err != nil {
			p.logger.Error("Batch embedding request failed",
				zap.String("provider", p.provider),
				zap.String("model", p.model),
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(part)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}

		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}

	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("total_tokens", out.TotalTokens),
	)
	return out, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (p *InstrumentedEmbedder) guard(ctx context.Context, fn func(ctx context.Context) error) error {
	call := func() error {
		callCtx := ctx
		if p.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}
		err := fn(callCtx)
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w: %w", domain.ErrExternalTimeout, domain.ErrEmbeddingProviderError, err)
		}
		if err != nil && !errors.Is(err, domain.ErrEmbeddingProviderError) && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, err)
		}
		return err
	}
	if p.breaker == nil {
		return call()
	}
	return p.breaker.Do(domain.ErrEmbeddingProviderError, call)
}
