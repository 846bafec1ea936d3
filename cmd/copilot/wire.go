package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/breaker"
	"github.com/astro1860/building-review-copliot/internal/chunker"
	"github.com/astro1860/building-review-copliot/internal/config"
	"github.com/astro1860/building-review-copliot/internal/db"
	dbRedis "github.com/astro1860/building-review-copliot/internal/db/redis"
	"github.com/astro1860/building-review-copliot/internal/domain"
	"github.com/astro1860/building-review-copliot/internal/domain/prompt"
	"github.com/astro1860/building-review-copliot/internal/index"
	"github.com/astro1860/building-review-copliot/internal/ingest"
	"github.com/astro1860/building-review-copliot/internal/metrics"
	"github.com/astro1860/building-review-copliot/internal/repository/budget"
	"github.com/astro1860/building-review-copliot/internal/repository/embcache"
	"github.com/astro1860/building-review-copliot/internal/session"
	"github.com/astro1860/building-review-copliot/internal/transport/gemini"
	openaiTransport "github.com/astro1860/building-review-copliot/internal/transport/openai"
	chatuc "github.com/astro1860/building-review-copliot/internal/usecase/chat"
	embeddinguc "github.com/astro1860/building-review-copliot/internal/usecase/embedding"
	generationuc "github.com/astro1860/building-review-copliot/internal/usecase/generation"
	healthuc "github.com/astro1860/building-review-copliot/internal/usecase/health"
	"github.com/astro1860/building-review-copliot/internal/usecase/retrieval"
	usageuc "github.com/astro1860/building-review-copliot/internal/usecase/usage"
)

const (
	providerOpenAI = "openai"
	providerGemini = "gemini"
)

// app is the composition root shared by serve and ask.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	store   db.Store
	chat    *chatuc.Service
	session *session.Session
	health  *healthuc.Service
	usage   *usageuc.Service // nil without a cache

	gemini  *genai.Client
	closers []func()
}

// provider is what health checks see of a model backend.
type provider interface {
	HealthCheck(ctx context.Context) error
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger, withCache bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if withCache && cfg.Cache.Driver == "redis" {
		if err := a.connectCache(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	docEmbedder, queryEmbedder, embHealth, err := a.buildEmbedders(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	generator, genHealth, err := a.buildGenerator(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	splitter, err := chunker.New(
		chunker.WithChunkSize(cfg.Chunking.Size),
		chunker.WithOverlap(cfg.Chunking.Overlap),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("chunker: %w", err)
	}

	retriever := retrieval.New(index.New(), ingest.New(logger), splitter, docEmbedder, queryEmbedder, logger).
		WithConcurrency(cfg.Retrieval.IngestConcurrency)

	assembler, err := loadAssembler(cfg.Prompt.InstructionsFile)
	if err != nil {
		a.Close()
		return nil, err
	}

	welcome := cfg.Session.WelcomeMessage
	if welcome == "" {
		welcome = session.DefaultWelcome
	}
	a.session = session.New(session.Config{
		DefaultReferences: cfg.Session.DefaultReferences,
		WelcomeMessage:    welcome,
	}, retriever, logger)

	a.chat = chatuc.New(assembler, generator, logger).WithTopK(cfg.Retrieval.TopK)

	// Pass nil interfaces, not typed nil pointers, for absent components.
	var cache healthuc.CachePinger
	if a.store != nil {
		cache = a.store
	}
	a.health = healthuc.New(cache, embHealth, genHealth)

	logger.Info("Copilot assembled",
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("generation_provider", cfg.Generation.Provider),
		zap.String("generation_model", cfg.Generation.Model),
		zap.String("cache", cfg.Cache.Driver),
		zap.String("session_id", a.session.ID()),
	)
	return a, nil
}

// Close releases provider clients and the cache connection.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) connectCache(ctx context.Context) error {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    a.cfg.Cache.Addrs,
		Username: a.cfg.Cache.Username,
		Password: a.cfg.Cache.Password,
		DB:       a.cfg.Cache.DB,
	})
	if err != nil {
		return fmt.Errorf("embedding cache: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	if err := store.WaitForReady(ctx, time.Duration(a.cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
		return fmt.Errorf("embedding cache not ready: %w", err)
	}
	a.store = store
	a.logger.Info("Connected to embedding cache", zap.Strings("addrs", a.cfg.Cache.Addrs))
	return nil
}

// geminiClient lazily creates one client shared by embedding and generation.
func (a *app) geminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if a.gemini != nil {
		return a.gemini, nil
	}
	client, err := gemini.NewClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	a.gemini = client
	a.closers = append(a.closers, func() { _ = client.Close() })
	return client, nil
}

func (a *app) breakerSettings() breaker.Settings {
	b := a.cfg.Breaker
	return breaker.Settings{
		MaxRequests:  b.MaxRequests,
		Interval:     time.Duration(b.IntervalSec) * time.Second,
		Timeout:      time.Duration(b.TimeoutSec) * time.Second,
		FailureRatio: b.FailureRatio,
		MinRequests:  b.MinRequests,
	}
}

// buildEmbedders assembles the decorator chain:
// provider -> usage meter -> cache -> instrumented (timeout, breaker, metrics) -> instruction prefix.
// Both embedders share one chain so documents and queries live in one vector space.
func (a *app) buildEmbedders(ctx context.Context) (doc, query domain.Embedder, health provider, err error) {
	ec := a.cfg.Embedding

	var base interface {
		domain.Embedder
		provider
	}
	switch ec.Provider {
	case providerOpenAI:
		base = openaiTransport.NewEmbedder(&openaiTransport.Config{
			APIKey:     ec.APIKey,
			BaseURL:    ec.BaseURL,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			Provider:   ec.Provider,
			Logger:     a.logger,
		})
	case providerGemini:
		client, err := a.geminiClient(ctx, ec.APIKey)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("embedding provider: %w", err)
		}
		base = gemini.NewEmbedder(client, &gemini.Config{Model: ec.Model, Provider: ec.Provider, Logger: a.logger})
	default:
		return nil, nil, nil, fmt.Errorf("unknown embedding provider %q", ec.Provider)
	}

	var embedder domain.Embedder = base
	if a.store != nil {
		a.usage = usageuc.New(budget.New(a.store, budget.DefaultDailyTTL, budget.DefaultMonthlyTTL), ec.Provider)
		embedder = usageuc.NewMeteredEmbedder(embedder, a.usage, a.logger)

		ttl := time.Duration(a.cfg.Cache.TTLHours) * time.Hour
		embedder = embcache.New(embedder, a.store, ec.Model, ttl, metrics.EmbeddingCacheTotal, a.logger)
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(
		embedder, ec.Provider, ec.Model,
		time.Duration(ec.TimeoutSec)*time.Second,
		breaker.New("embedding-"+ec.Provider, a.breakerSettings(), a.logger),
		a.logger,
	).WithMaxBatchSize(ec.BatchSize)

	return withInstruction(embedder, ec.DocumentInstruction),
		withInstruction(embedder, ec.QueryInstruction),
		base, nil
}

func withInstruction(e domain.Embedder, instruction string) domain.Embedder {
	if instruction == "" {
		return e
	}
	return domain.NewInstructionEmbedder(e, instruction)
}

func (a *app) buildGenerator(ctx context.Context) (domain.Generator, provider, error) {
	gc := a.cfg.Generation

	var base interface {
		domain.Generator
		provider
	}
	switch gc.Provider {
	case providerOpenAI:
		base = openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
			Config: openaiTransport.Config{
				APIKey:   gc.APIKey,
				BaseURL:  gc.BaseURL,
				Model:    gc.Model,
				Provider: gc.Provider,
				Logger:   a.logger,
			},
			Temperature: gc.Temperature,
			MaxTokens:   gc.MaxTokens,
		})
	case providerGemini:
		client, err := a.geminiClient(ctx, gc.APIKey)
		if err != nil {
			return nil, nil, fmt.Errorf("generation provider: %w", err)
		}
		base = gemini.NewGenerator(client, &gemini.Config{
			Model:           gc.Model,
			Temperature:     gc.Temperature,
			MaxOutputTokens: int32(gc.MaxTokens), //nolint:gosec // validated positive and small
			Provider:        gc.Provider,
			Logger:          a.logger,
		})
	default:
		return nil, nil, fmt.Errorf("unknown generation provider %q", gc.Provider)
	}

	gen := generationuc.NewInstrumentedGenerator(
		base, gc.Provider, gc.Model,
		time.Duration(gc.TimeoutSec)*time.Second,
		breaker.New("generation-"+gc.Provider, a.breakerSettings(), a.logger),
		a.logger,
	)
	return gen, base, nil
}

func loadAssembler(path string) (*prompt.Assembler, error) {
	if path == "" {
		return prompt.New("")
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read prompt instructions: %w", err)
	}
	a, err := prompt.New(string(data))
	if err != nil {
		return nil, fmt.Errorf("prompt instructions %s: %w", path, err)
	}
	return a, nil
}
