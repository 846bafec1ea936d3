package copilot

import "context"

// Embedder converts text to a vector embedding. Documents and questions are
// embedded by the same Embedder, so they share one vector space.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single call.
// Optional: if the Embedder also implements it, indexing uses it.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token counts.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries one vector per input text, in input order.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// Generator streams a completion for a prompt.
type Generator interface {
	Stream(ctx context.Context, prompt string) (FragmentStream, error)
}

// FragmentStream yields text fragments until io.EOF. Close is always called,
// including when the stream is abandoned early.
type FragmentStream interface {
	Recv() (string, error)
	Close() error
}
