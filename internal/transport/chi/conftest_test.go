package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/chunker"
	"github.com/astro1860/building-review-copliot/internal/domain"
	"github.com/astro1860/building-review-copliot/internal/domain/prompt"
	"github.com/astro1860/building-review-copliot/internal/domain/reference"
	"github.com/astro1860/building-review-copliot/internal/index"
	"github.com/astro1860/building-review-copliot/internal/ingest"
	"github.com/astro1860/building-review-copliot/internal/session"
	chatuc "github.com/astro1860/building-review-copliot/internal/usecase/chat"
	healthuc "github.com/astro1860/building-review-copliot/internal/usecase/health"
	"github.com/astro1860/building-review-copliot/internal/usecase/retrieval"
)

// --- Mocks ---

// keywordEmbedder counts a few topic words so similarity follows topic overlap.
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	lower := strings.ToLower(text)
	vec := []float32{0.01}
	for _, w := range []string{"stair", "sprinkler", "elevator"} {
		vec = append(vec, float32(strings.Count(lower, w)))
	}
	return domain.EmbeddingResult{Embedding: vec}, nil
}

type scriptedStream struct {
	fragments []string
	err       error
	pos       int
}

func (s *scriptedStream) Recv() (string, error) {
	if s.pos >= len(s.fragments) {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	f := s.fragments[s.pos]
	s.pos++
	return f, nil
}

func (s *scriptedStream) Close() error { return nil }

// scriptedGenerator opens a fresh stream over the same script on every call.
type scriptedGenerator struct {
	mu        sync.Mutex
	fragments []string
	streamErr error
	openErr   error
	prompts   []string
}

func (g *scriptedGenerator) Stream(_ context.Context, p string) (domain.FragmentStream, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, p)
	if g.openErr != nil {
		return nil, g.openErr
	}
	return &scriptedStream{fragments: g.fragments, err: g.streamErr}, nil
}

type stubChecker struct{ err error }

func (s stubChecker) HealthCheck(context.Context) error { return s.err }

// --- Helpers ---

var wellFormed = []string{"<think>", "Check BC 1011.2", "</think>", "<answer>", "44 inches", "</answer>"}

type testEnv struct {
	handler http.Handler
	session *session.Session
	gen     *scriptedGenerator
}

func newTestEnv(t *testing.T, gen *scriptedGenerator, checker healthuc.ProviderChecker) *testEnv {
	t.Helper()
	splitter, err := chunker.New(chunker.WithChunkSize(200), chunker.WithOverlap(20))
	if err != nil {
		t.Fatalf("chunker.New: %v", err)
	}
	ret := retrieval.New(index.New(), ingest.New(zap.NewNop()), splitter,
		keywordEmbedder{}, keywordEmbedder{}, zap.NewNop())
	sess := session.New(session.Config{
		DefaultReferences: []string{reference.DefaultURL},
		WelcomeMessage:    session.DefaultWelcome,
	}, ret, zap.NewNop())

	chat := chatuc.New(prompt.MustNew(""), gen, zap.NewNop())
	health := healthuc.New(nil, checker, nil)
	srv := NewServer(chat, sess, health, zap.NewNop()).
		WithExamples([]string{"When is a sprinkler system required?"})

	return &testEnv{handler: NewRouter(srv, zap.NewNop()), session: sess, gen: gen}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = http.NoBody
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) doJSON(t *testing.T, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return e.do(t, method, path, bytes.NewReader(data), "application/json")
}

type upload struct {
	name string
	data []byte
}

func (e *testEnv) upload(t *testing.T, files ...upload) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write(f.data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return e.do(t, http.MethodPost, "/api/v1/documents", &buf, mw.FormDataContentType())
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

type sseEvent struct {
	name string
	data string
}

func parseEvents(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			}
		}
		if ev.name == "" {
			t.Fatalf("malformed event block %q", block)
		}
		events = append(events, ev)
	}
	return events
}

var (
	stairText   = []byte("Exit stairways shall have a width of not less than 44 inches. Stair risers shall be 7 inches maximum.")
	corruptData = []byte{0xff, 0xfe, 0x00, 0x01}
)
