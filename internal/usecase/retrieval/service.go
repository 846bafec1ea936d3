package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/chunker"
	"github.com/astro1860/building-review-copliot/internal/domain"
	"github.com/astro1860/building-review-copliot/internal/domain/batch"
	"github.com/astro1860/building-review-copliot/internal/domain/chunk"
	"github.com/astro1860/building-review-copliot/internal/domain/document"
	"github.com/astro1860/building-review-copliot/internal/ingest"
	"github.com/astro1860/building-review-copliot/internal/metrics"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 4

// BuildReport summarises a completed build.
type BuildReport struct {
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Succeeded []string      `json:"succeeded"`
	Failed    []string      `json:"failed"`
	Duration  time.Duration `json:"duration_ns"`
}

// Service builds the vector index from documents and answers similarity queries.
type Service struct {
	index         VectorIndex
	ingestor      ingest.PageIngestor
	splitter      *chunker.Splitter
	docEmbedder   domain.Embedder
	queryEmbedder domain.Embedder
	concurrency   int
	logger        *zap.Logger

	buildMu sync.Mutex
}

// New creates a retrieval service. docEmbedder and queryEmbedder must come
// from the same provider and model; they may differ only by instruction prefix.
func New(
	idx VectorIndex, ing ingest.PageIngestor, splitter *chunker.Splitter,
	docEmbedder, queryEmbedder domain.Embedder, logger *zap.Logger,
) *Service {
	return &Service{
		index:         idx,
		ingestor:      ing,
		splitter:      splitter,
		docEmbedder:   docEmbedder,
		queryEmbedder: queryEmbedder,
		concurrency:   ingest.DefaultConcurrency,
		logger:        logger,
	}
}

// WithConcurrency sets how many documents are decoded in parallel.
func (s *Service) WithConcurrency(n int) *Service {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// Build replaces the index with chunks from docs. Documents that cannot be
// decoded are reported in a *domain.BuildError while the rest are indexed.
// An embedding failure, or a build where no document could be decoded,
// leaves the previous index in place.
func (s *Service) Build(ctx context.Context, docs []document.Source) (BuildReport, error) {
	if len(docs) == 0 {
		return BuildReport{}, fmt.Errorf("build: %w", domain.ErrNoDocuments)
	}

	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	start := time.Now()
	results := ingest.IngestAll(ctx, s.ingestor, docs, s.concurrency)
	if err := ctx.Err(); err != nil {
		return BuildReport{}, fmt.Errorf("build: %w", err)
	}

	var (
		report BuildReport
		failed []*domain.IngestError
		chunks []chunk.Chunk
	)
	report.Documents = len(docs)

	for _, res := range results {
		if !res.OK() {
			failed = append(failed, asIngestError(res))
			report.Failed = append(report.Failed, res.SourceID())
			metrics.BuildDocumentsTotal.WithLabelValues("error").Inc()
			s.logger.Warn("Document skipped",
				zap.String("source", res.SourceID()),
				zap.Error(res.Err()),
			)
			continue
		}

		docChunks, err := s.split(res.SourceID(), res.Pages())
		if err != nil {
			return BuildReport{}, fmt.Errorf("build: split %q: %w", res.SourceID(), err)
		}
		chunks = append(chunks, docChunks...)
		report.Succeeded = append(report.Succeeded, res.SourceID())
		metrics.BuildDocumentsTotal.WithLabelValues("ok").Inc()
	}

	if len(report.Succeeded) == 0 {
		report.Duration = time.Since(start)
		s.logger.Warn("No document decoded, index unchanged",
			zap.Int("documents", report.Documents),
			zap.Int("indexed_chunks", s.index.Len()),
		)
		return report, &domain.BuildError{Failed: failed}
	}

	embedded, err := s.embed(ctx, chunks)
	if err != nil {
		return BuildReport{}, fmt.Errorf("build: %w", err)
	}
	if err := s.index.Rebuild(embedded); err != nil {
		return BuildReport{}, fmt.Errorf("build: rebuild index: %w", err)
	}

	report.Chunks = len(embedded)
	report.Duration = time.Since(start)
	metrics.IndexedChunks.Set(float64(len(embedded)))
	metrics.BuildDuration.Observe(report.Duration.Seconds())

	s.logger.Info("Index built",
		zap.Int("documents", report.Documents),
		zap.Int("failed", len(failed)),
		zap.Int("chunks", report.Chunks),
		zap.Duration("duration", report.Duration),
	)

	if len(failed) > 0 {
		return report, &domain.BuildError{Failed: failed, Succeeded: report.Succeeded}
	}
	return report, nil
}

// Retrieve returns the k chunks most similar to question, best first.
// An empty index yields no chunks and no error; the embedder is not called.
func (s *Service) Retrieve(ctx context.Context, question string, k int) ([]chunk.Chunk, error) {
	if s.index.Len() == 0 {
		metrics.RetrievalsTotal.WithLabelValues("empty_index").Inc()
		s.logger.Warn("Retrieval on empty index, answering without context")
		return []chunk.Chunk{}, nil
	}
	if k <= 0 {
		return []chunk.Chunk{}, nil
	}

	res, err := s.queryEmbedder.Embed(ctx, question)
	if err != nil {
		metrics.RetrievalsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("embed question: %w", providerError(err))
	}

	hits, err := s.index.Search(res.Embedding, k)
	if err != nil {
		metrics.RetrievalsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("search: %w", err)
	}

	out := make([]chunk.Chunk, len(hits))
	for i, h := range hits {
		out[i] = h.Chunk.Chunk
	}
	metrics.RetrievalsTotal.WithLabelValues("grounded").Inc()
	return out, nil
}

// Len reports the number of indexed chunks.
func (s *Service) Len() int { return s.index.Len() }

// Reset empties the index.
func (s *Service) Reset() {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	s.index.Reset()
	metrics.IndexedChunks.Set(0)
}

// split cuts every page of one source. Chunk indices run across pages so a
// source's chunks stay contiguous and ordered.
func (s *Service) split(sourceID string, pages []document.Page) ([]chunk.Chunk, error) {
	var out []chunk.Chunk
	next := 0
	for _, page := range pages {
		meta := map[string]string{
			chunk.MetaSource: sourceID,
			chunk.MetaPage:   strconv.Itoa(page.Index),
		}
		for text := range s.splitter.Split(page.Text) {
			c, err := chunk.New(text, sourceID, next, meta)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
			next++
		}
	}
	return out, nil
}

func (s *Service) embed(ctx context.Context, chunks []chunk.Chunk) ([]chunk.Embedded, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text()
	}

	res, err := domain.EmbedAll(ctx, s.docEmbedder, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", providerError(err))
	}

	out := make([]chunk.Embedded, len(chunks))
	for i, c := range chunks {
		out[i] = chunk.NewEmbedded(c, res.Embeddings[i])
	}
	return out, nil
}

func asIngestError(res batch.Result) *domain.IngestError {
	var ie *domain.IngestError
	if errors.As(res.Err(), &ie) {
		return ie
	}
	return domain.NewIngestError(res.SourceID(), res.Err())
}

// providerError makes sure embedding failures carry ErrEmbeddingProviderError
// unless the caller cancelled.
func providerError(err error) error {
	if errors.Is(err, domain.ErrEmbeddingProviderError) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, err)
}
