package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"

	"github.com/astro1860/building-review-copliot/internal/domain"
)

var _ domain.Generator = (*Generator)(nil)

// responseIterator is satisfied by *genai.GenerateContentResponseIterator.
type responseIterator interface {
	Next() (*genai.GenerateContentResponse, error)
}

// Generator streams completions from a Gemini model.
type Generator struct {
	open   func(ctx context.Context, prompt string) responseIterator
	health func(ctx context.Context) error
}

// NewGenerator creates a streaming Gemini generator on an existing client.
func NewGenerator(client *genai.Client, cfg *Config) *Generator {
	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(cfg.Temperature)
	if cfg.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(cfg.MaxOutputTokens)
	}
	return &Generator{
		open: func(ctx context.Context, prompt string) responseIterator {
			return model.GenerateContentStream(ctx, genai.Text(prompt))
		},
		health: func(ctx context.Context) error { return healthCheck(ctx, client) },
	}
}

// Stream starts generation. The SDK stream has no Close; cancelling its
// context releases the connection, so the stream owns a derived context.
func (g *Generator) Stream(ctx context.Context, prompt string) (domain.FragmentStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("gemini stream: %w", err)
	}
	streamCtx, cancel := context.WithCancel(ctx)
	return &contentStream{it: g.open(streamCtx, prompt), cancel: cancel}, nil
}

// HealthCheck verifies API availability.
func (g *Generator) HealthCheck(ctx context.Context) error {
	if g.health == nil {
		return nil
	}
	return g.health(ctx)
}

type contentStream struct {
	it     responseIterator
	cancel context.CancelFunc
	done   bool
}

// Recv skips responses that carry no text (safety metadata, usage trailers).
func (s *contentStream) Recv() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		resp, err := s.it.Next()
		if errors.Is(err, iterator.Done) {
			s.done = true
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("gemini stream: %w: %w", domain.ErrGenerationProviderError, err)
		}
		if text := responseText(resp); text != "" {
			return text, nil
		}
	}
}

func (s *contentStream) Close() error {
	s.cancel()
	return nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
