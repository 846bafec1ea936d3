package gemini

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/astro1860/building-review-copliot/internal/domain"
)

// --- Mocks ---

type fakeBackend struct {
	vectors [][]float32
	err     error
	got     []string
}

func (f *fakeBackend) embed(_ context.Context, texts []string) ([][]float32, error) {
	f.got = texts
	return f.vectors, f.err
}

type fakeIterator struct {
	responses []*genai.GenerateContentResponse
	err       error
	pos       int
	ctx       context.Context
}

func (f *fakeIterator) Next() (*genai.GenerateContentResponse, error) {
	if f.pos >= len(f.responses) {
		if f.err != nil {
			return nil, f.err
		}
		return nil, iterator.Done
	}
	r := f.responses[f.pos]
	f.pos++
	return r, nil
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	ps := make([]genai.Part, len(parts))
	for i, p := range parts {
		ps[i] = genai.Text(p)
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: ps}}},
	}
}

func newTestEmbedder(b batchBackend) *Embedder {
	return &Embedder{backend: b, model: "text-embedding-004", provider: "gemini-test", logger: zap.NewNop()}
}

func newTestGenerator(it *fakeIterator) *Generator {
	return &Generator{open: func(ctx context.Context, _ string) responseIterator {
		it.ctx = ctx
		return it
	}}
}

// --- Embedder ---

func TestEmbedder_BatchEmbed(t *testing.T) {
	b := &fakeBackend{vectors: [][]float32{{0.1, 0.2}, {0.3, 0.4}}}
	res, err := newTestEmbedder(b).BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 2 || res.Embeddings[1][0] != 0.3 {
		t.Errorf("unexpected embeddings %v", res.Embeddings)
	}
	if len(b.got) != 2 {
		t.Errorf("expected one batch of 2, got %v", b.got)
	}
}

func TestEmbedder_Embed(t *testing.T) {
	b := &fakeBackend{vectors: [][]float32{{1, 2, 3}}}
	res, err := newTestEmbedder(b).Embed(context.Background(), "egress")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embedding) != 3 {
		t.Errorf("expected 3 dims, got %d", len(res.Embedding))
	}
}

func TestEmbedder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		backend *fakeBackend
	}{
		{"api error", &fakeBackend{err: errors.New("PERMISSION_DENIED")}},
		{"count mismatch", &fakeBackend{vectors: [][]float32{{1}}}},
		{"empty vector", &fakeBackend{vectors: [][]float32{{1}, nil}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestEmbedder(tt.backend).BatchEmbed(context.Background(), []string{"a", "b"})
			if !errors.Is(err, domain.ErrEmbeddingProviderError) {
				t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
			}
		})
	}
}

func TestEmbedder_EmptyInput(t *testing.T) {
	b := &fakeBackend{}
	res, err := newTestEmbedder(b).BatchEmbed(context.Background(), nil)
	if err != nil || res.Embeddings != nil || b.got != nil {
		t.Errorf("expected no call for empty input, got %v / %v", res, err)
	}
}

// --- Generator ---

func TestGenerator_StreamsText(t *testing.T) {
	it := &fakeIterator{responses: []*genai.GenerateContentResponse{
		textResponse("<think>", "zoning"),
		{}, // no candidates
		textResponse("</think><answer>R6</answer>"),
	}}
	s, err := newTestGenerator(it).Stream(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	var got []string
	for {
		frag, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		got = append(got, frag)
	}
	if strings.Join(got, "") != "<think>zoning</think><answer>R6</answer>" {
		t.Errorf("unexpected text %q", strings.Join(got, ""))
	}
	if len(got) != 2 {
		t.Errorf("expected empty response skipped, got %d fragments", len(got))
	}
	if _, err := s.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after end, got %v", err)
	}
}

func TestGenerator_MidStreamError(t *testing.T) {
	it := &fakeIterator{
		responses: []*genai.GenerateContentResponse{textResponse("partial")},
		err:       errors.New("RESOURCE_EXHAUSTED"),
	}
	s, _ := newTestGenerator(it).Stream(context.Background(), "q")
	defer s.Close()

	if _, err := s.Recv(); err != nil {
		t.Fatalf("first Recv: %v", err)
	}
	if _, err := s.Recv(); !errors.Is(err, domain.ErrGenerationProviderError) {
		t.Fatalf("expected ErrGenerationProviderError, got %v", err)
	}
}

func TestGenerator_CloseCancelsContext(t *testing.T) {
	it := &fakeIterator{responses: []*genai.GenerateContentResponse{textResponse("a")}}
	s, _ := newTestGenerator(it).Stream(context.Background(), "q")

	if it.ctx.Err() != nil {
		t.Fatal("context cancelled too early")
	}
	s.Close()
	if it.ctx.Err() == nil {
		t.Error("expected stream context cancelled on Close")
	}
}

func TestGenerator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestGenerator(&fakeIterator{}).Stream(ctx, "q"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestResponseText_IgnoresNonText(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text("a"), genai.Blob{MIMEType: "image/png"}, genai.Text("b")}},
	}}}
	if got := responseText(resp); got != "ab" {
		t.Errorf("expected ab, got %q", got)
	}
	if responseText(nil) != "" {
		t.Error("expected empty text for nil response")
	}
}
