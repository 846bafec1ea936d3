package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/domain"
)

var _ domain.Generator = (*Generator)(nil)

// GeneratorConfig holds chat completion settings.
type GeneratorConfig struct {
	Config
	Temperature float32
	MaxTokens   int
}

// Generator streams chat completions from an OpenAI-compatible API.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	user        string
	logger      *zap.Logger
}

// NewGenerator creates a streaming chat completion provider.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	return &Generator{
		client:      newClient(&cfg.Config),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		user:        cfg.User,
		logger:      cfg.Logger,
	}
}

// Stream sends the prompt as a single user message and returns the delta stream.
func (g *Generator) Stream(ctx context.Context, prompt string) (domain.FragmentStream, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		User:        g.user,
		Stream:      true,
	}

	stream, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, parseAPIError(err, "generation", domain.ErrGenerationProviderError)
	}
	return &chatStream{stream: stream}, nil
}

// HealthCheck verifies API availability via ListModels.
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

type chatStream struct {
	stream *openai.ChatCompletionStream
}

// Recv skips chunks that carry no content (role headers, usage trailers).
func (s *chatStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", parseAPIError(err, "generation", domain.ErrGenerationProviderError)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *chatStream) Close() error {
	s.stream.Close()
	return nil
}
