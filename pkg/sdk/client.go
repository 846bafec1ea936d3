package copilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/chunker"
	"github.com/astro1860/building-review-copliot/internal/domain"
	"github.com/astro1860/building-review-copliot/internal/domain/document"
	"github.com/astro1860/building-review-copliot/internal/domain/prompt"
	"github.com/astro1860/building-review-copliot/internal/domain/reference"
	"github.com/astro1860/building-review-copliot/internal/domain/response"
	"github.com/astro1860/building-review-copliot/internal/index"
	"github.com/astro1860/building-review-copliot/internal/ingest"
	"github.com/astro1860/building-review-copliot/internal/session"
	openaiTransport "github.com/astro1860/building-review-copliot/internal/transport/openai"
	chatuc "github.com/astro1860/building-review-copliot/internal/usecase/chat"
	healthuc "github.com/astro1860/building-review-copliot/internal/usecase/health"
	"github.com/astro1860/building-review-copliot/internal/usecase/retrieval"
)

// Client is the copilot SDK entry point. It holds one conversation.
type Client struct {
	session *session.Session
	chat    *chatuc.Service
	health  *healthuc.Service
	obs     *observer
}

// New creates a Client. An embedder and a generator are required, either
// directly or through WithOpenAI. New does not contact the providers.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		references: []string{reference.DefaultURL},
		welcome:    session.DefaultWelcome,
		chunkSize:  chunker.DefaultChunkSize,
		overlap:    chunker.DefaultOverlap,
		topK:       retrieval.DefaultTopK,
	}
	for _, o := range opts {
		o.apply(cfg)
	}
	applyOpenAI(cfg)

	if cfg.embedder == nil {
		return nil, errors.New("copilot: embedder required (use WithEmbedder or WithOpenAI)")
	}
	if cfg.generator == nil {
		return nil, errors.New("copilot: generator required (use WithGenerator or WithOpenAI)")
	}

	splitter, err := chunker.New(chunker.WithChunkSize(cfg.chunkSize), chunker.WithOverlap(cfg.overlap))
	if err != nil {
		return nil, fmt.Errorf("copilot: %w", err)
	}
	assembler, err := prompt.New(cfg.instructions)
	if err != nil {
		return nil, fmt.Errorf("copilot: %w", err)
	}
	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	// Internal components log through zap; SDK callers see slog via the observer.
	nop := zap.NewNop()
	emb := &embedderAdapter{inner: cfg.embedder}
	retriever := retrieval.New(index.New(), ingest.New(nop), splitter, emb, emb, nop).
		WithConcurrency(cfg.concurrency)

	sess := session.New(session.Config{
		DefaultReferences: cfg.references,
		WelcomeMessage:    cfg.welcome,
	}, retriever, nop)

	return &Client{
		session: sess,
		chat:    chatuc.New(assembler, &generatorAdapter{inner: cfg.generator}, nop).WithTopK(cfg.topK),
		health:  healthuc.New(nil, healthCheckerOf(cfg.embedder), healthCheckerOf(cfg.generator)),
		obs:     obs,
	}, nil
}

func applyOpenAI(cfg *clientConfig) {
	oc := cfg.openai
	if oc == nil {
		return
	}
	base := openaiTransport.Config{
		APIKey:   oc.APIKey,
		BaseURL:  oc.BaseURL,
		Provider: "openai",
		Logger:   zap.NewNop(),
	}
	if cfg.embedder == nil && oc.EmbeddingModel != "" {
		ec := base
		ec.Model = oc.EmbeddingModel
		cfg.embedder = &domainEmbedder{inner: openaiTransport.NewEmbedder(&ec)}
	}
	if cfg.generator == nil && oc.ChatModel != "" {
		gc := openaiTransport.GeneratorConfig{Config: base, Temperature: oc.Temperature, MaxTokens: oc.MaxTokens}
		gc.Model = oc.ChatModel
		cfg.generator = &domainGenerator{inner: openaiTransport.NewGenerator(&gc)}
	}
}

// SessionID identifies the current conversation.
func (c *Client) SessionID() string { return c.session.ID() }

// Index replaces the document index with docs. Unreadable documents are
// skipped and reported in a *BuildError alongside a valid report.
func (c *Client) Index(ctx context.Context, docs ...Document) (report BuildReport, err error) {
	start := time.Now()
	defer func() { c.obs.observeIndex(ctx, start, report, err) }()

	sources := make([]document.Source, 0, len(docs))
	for _, d := range docs {
		src, err := document.New(d.ID, d.Data)
		if err != nil {
			return BuildReport{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		sources = append(sources, src)
	}

	r, err := c.session.Retriever().Build(ctx, sources)
	return BuildReport{
		Documents: r.Documents,
		Chunks:    r.Chunks,
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
		Duration:  r.Duration,
	}, err
}

// Ask answers question against the indexed documents, or from general
// knowledge when nothing is indexed. onUpdate, if non-nil, sees the parsed
// answer after every fragment; returning an error stops the stream.
func (c *Client) Ask(ctx context.Context, question string, onUpdate func(Response) error) (ans Answer, err error) {
	start := time.Now()
	defer func() { c.obs.observeAsk(ctx, start, ans, err) }()

	var update chatuc.UpdateFunc
	if onUpdate != nil {
		update = func(r response.Response) error { return onUpdate(responseFromDomain(r)) }
	}

	res, err := c.chat.Ask(ctx, c.session, question, update)
	ans = Answer{Response: responseFromDomain(res.Response), Grounded: res.Grounded}
	for _, ch := range res.Context {
		ans.Sources = append(ans.Sources, Source{
			DocumentID: ch.SourceID(),
			Page:       ch.Page(),
			Index:      ch.Index(),
			Text:       ch.Text(),
		})
	}
	return ans, err
}

// References returns the reference websites in order.
func (c *Client) References() []string {
	refs := c.session.References()
	urls := make([]string, len(refs))
	for i, r := range refs {
		urls[i] = r.URL
	}
	return urls
}

// AddReference appends a reference website.
func (c *Client) AddReference(url string) error {
	start := time.Now()
	err := c.session.AddReference(url)
	c.obs.observe(context.Background(), "add_reference", start, err, slog.String("url", url))
	return err
}

// RemoveReference deletes a reference website.
func (c *Client) RemoveReference(url string) error {
	start := time.Now()
	err := c.session.RemoveReference(url)
	c.obs.observe(context.Background(), "remove_reference", start, err, slog.String("url", url))
	return err
}

// History returns the conversation so far.
func (c *Client) History() []Turn {
	turns := c.session.History()
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = Turn{
			Role:      string(t.Role),
			Raw:       t.RawContent,
			Parsed:    responseFromDomain(t.Structured()),
			CreatedAt: t.CreatedAt,
		}
	}
	return out
}

// Reset starts a new conversation: history, references and index return
// to their initial state.
func (c *Client) Reset() {
	start := time.Now()
	c.session.Reset()
	c.obs.observe(context.Background(), "reset", start, nil)
}

// embedderAdapter wraps a public Embedder to satisfy the internal contracts.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

func (a *embedderAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	be, ok := a.inner.(BatchEmbedder)
	if !ok {
		return domain.BatchFallback(ctx, a, texts)
	}
	r, err := be.BatchEmbed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   r.Embeddings,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// generatorAdapter wraps a public Generator. The stream method sets match,
// so streams pass through unchanged.
type generatorAdapter struct {
	inner Generator
}

func (a *generatorAdapter) Stream(ctx context.Context, p string) (domain.FragmentStream, error) {
	s, err := a.inner.Stream(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("stream: %w", err)
	}
	return s, nil
}

// domainEmbedder exposes an internal provider through the public interfaces.
type domainEmbedder struct {
	inner interface {
		domain.BatchEmbedder
		domain.HealthChecker
	}
}

func (d *domainEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	r, err := d.BatchEmbed(ctx, []string{text})
	if err != nil {
		return EmbeddingResult{}, err
	}
	return EmbeddingResult{Embedding: r.Embeddings[0], PromptTokens: r.PromptTokens, TotalTokens: r.TotalTokens}, nil
}

func (d *domainEmbedder) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	r, err := d.inner.BatchEmbed(ctx, texts)
	if err != nil {
		return BatchEmbeddingResult{}, err
	}
	return BatchEmbeddingResult{Embeddings: r.Embeddings, PromptTokens: r.PromptTokens, TotalTokens: r.TotalTokens}, nil
}

func (d *domainEmbedder) HealthCheck(ctx context.Context) error { return d.inner.HealthCheck(ctx) }

type domainGenerator struct {
	inner interface {
		domain.Generator
		HealthCheck(ctx context.Context) error
	}
}

func (d *domainGenerator) Stream(ctx context.Context, p string) (FragmentStream, error) {
	return d.inner.Stream(ctx, p)
}

func (d *domainGenerator) HealthCheck(ctx context.Context) error { return d.inner.HealthCheck(ctx) }
