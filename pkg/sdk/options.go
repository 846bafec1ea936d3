package copilot

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	embedder  Embedder
	generator Generator
	openai    *OpenAIConfig

	instructions string
	references   []string
	welcome      string

	chunkSize   int
	overlap     int
	topK        int
	concurrency int

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// OpenAIConfig selects OpenAI-compatible models for both embedding and chat.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string // empty: api.openai.com
	EmbeddingModel string
	ChatModel      string
	Temperature    float32
	MaxTokens      int
}

// WithOpenAI uses an OpenAI-compatible API for any provider not set with
// WithEmbedder or WithGenerator.
func WithOpenAI(cfg OpenAIConfig) Option {
	return optionFunc(func(c *clientConfig) {
		c.openai = &cfg
	})
}

// WithEmbedder sets the embedding provider.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithGenerator sets the completion provider.
func WithGenerator(g Generator) Option {
	return optionFunc(func(c *clientConfig) {
		c.generator = g
	})
}

// WithInstructions replaces the built-in persona. The text is a Go template
// that may use {{.References}}.
func WithInstructions(text string) Option {
	return optionFunc(func(c *clientConfig) {
		c.instructions = text
	})
}

// WithReferences sets the initial reference websites, restored on Reset.
// Defaults to the NYC DOB 2022 construction codes page.
func WithReferences(urls ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.references = append([]string{}, urls...)
	})
}

// WithWelcome sets the first assistant turn. Pass "" for none.
func WithWelcome(msg string) Option {
	return optionFunc(func(c *clientConfig) {
		c.welcome = msg
	})
}

// WithChunking sets the chunk size and overlap in characters.
// Defaults: 700 and 50.
func WithChunking(size, overlap int) Option {
	return optionFunc(func(c *clientConfig) {
		c.chunkSize = size
		c.overlap = overlap
	})
}

// WithTopK sets how many chunks ground each answer. Default: 4.
func WithTopK(k int) Option {
	return optionFunc(func(c *clientConfig) {
		c.topK = k
	})
}

// WithIngestConcurrency sets how many documents are decoded in parallel.
func WithIngestConcurrency(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.concurrency = n
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
