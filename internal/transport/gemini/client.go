// Package gemini adapts Google Generative AI models to the embedding and
// generation contracts.
package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Config holds the Gemini provider settings.
type Config struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	Provider        string
	Logger          *zap.Logger
}

// NewClient connects to the Generative Language API.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}

// healthCheck lists one model to verify credentials and reachability.
func healthCheck(ctx context.Context, client *genai.Client) error {
	it := client.ListModels(ctx)
	if _, err := it.Next(); err != nil && err != iterator.Done {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
