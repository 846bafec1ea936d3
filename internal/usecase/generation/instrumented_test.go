package generation

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/breaker"
	"github.com/astro1860/building-review-copliot/internal/domain"
	"github.com/astro1860/building-review-copliot/internal/metrics"
)

// --- Mocks ---

type mockStream struct {
	fragments []string
	failAfter int
	failErr   error
	block     bool
	ctx       context.Context
	pos       int
	closed    int
}

func (s *mockStream) Recv() (string, error) {
	if s.failErr != nil && s.pos == s.failAfter {
		return "", s.failErr
	}
	if s.pos >= len(s.fragments) {
		if s.block {
			<-s.ctx.Done()
			return "", s.ctx.Err()
		}
		return "", io.EOF
	}
	f := s.fragments[s.pos]
	s.pos++
	return f, nil
}

func (s *mockStream) Close() error {
	s.closed++
	return nil
}

type mockGenerator struct {
	stream  *mockStream
	openErr error
	opened  int
}

func (g *mockGenerator) Stream(ctx context.Context, _ string) (domain.FragmentStream, error) {
	g.opened++
	if g.openErr != nil {
		return nil, g.openErr
	}
	g.stream.ctx = ctx
	return g.stream, nil
}

func drain(s domain.FragmentStream) (string, error) {
	var out string
	for {
		f, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out += f
	}
}

func TestInstrumentedGenerator_CompletedStream(t *testing.T) {
	inner := &mockGenerator{stream: &mockStream{fragments: []string{"<answer>", "ok", "</answer>"}}}
	g := NewInstrumentedGenerator(inner, "p-complete", "m", time.Second, nil, zap.NewNop())

	s, err := g.Stream(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, err := drain(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "<answer>ok</answer>" {
		t.Errorf("unexpected text %q", text)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_ = s.Close()

	if inner.stream.closed != 1 {
		t.Errorf("expected inner closed once, got %d", inner.stream.closed)
	}
	if got := testutil.ToFloat64(metrics.GenerationStreamsTotal.WithLabelValues("p-complete", "m", "completed")); got != 1 {
		t.Errorf("expected 1 completed stream, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.GenerationFragmentsTotal.WithLabelValues("p-complete", "m")); got != 3 {
		t.Errorf("expected 3 fragments, got %v", got)
	}
}

func TestInstrumentedGenerator_AbortedStream(t *testing.T) {
	inner := &mockGenerator{stream: &mockStream{fragments: []string{"a", "b", "c"}}}
	g := NewInstrumentedGenerator(inner, "p-abort", "m", time.Second, nil, zap.NewNop())

	s, err := g.Stream(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Recv(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Close()

	if inner.stream.ctx.Err() == nil {
		t.Error("expected stream context released on close")
	}
	if got := testutil.ToFloat64(metrics.GenerationStreamsTotal.WithLabelValues("p-abort", "m", "aborted")); got != 1 {
		t.Errorf("expected 1 aborted stream, got %v", got)
	}
}

func TestInstrumentedGenerator_MidStreamError(t *testing.T) {
	inner := &mockGenerator{stream: &mockStream{
		fragments: []string{"<think>", "partial"},
		failAfter: 2,
		failErr:   errors.New("connection reset"),
	}}
	g := NewInstrumentedGenerator(inner, "p-err", "m", time.Second, nil, zap.NewNop())

	s, err := g.Stream(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	text, err := drain(s)
	if !errors.Is(err, domain.ErrGenerationProviderError) {
		t.Fatalf("expected ErrGenerationProviderError, got %v", err)
	}
	if text != "<think>partial" {
		t.Errorf("expected partial text kept, got %q", text)
	}
}

func TestInstrumentedGenerator_Timeout(t *testing.T) {
	inner := &mockGenerator{stream: &mockStream{fragments: []string{"slow"}, block: true}}
	g := NewInstrumentedGenerator(inner, "p-timeout", "m", 20*time.Millisecond, nil, zap.NewNop())

	s, err := g.Stream(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	_, err = drain(s)
	if !errors.Is(err, domain.ErrExternalTimeout) {
		t.Fatalf("expected ErrExternalTimeout, got %v", err)
	}
	if !errors.Is(err, domain.ErrGenerationProviderError) {
		t.Errorf("expected ErrGenerationProviderError, got %v", err)
	}
}

func TestInstrumentedGenerator_OpenError(t *testing.T) {
	inner := &mockGenerator{openErr: errors.New("401")}
	g := NewInstrumentedGenerator(inner, "p-open", "m", 0, nil, zap.NewNop())

	_, err := g.Stream(context.Background(), "q")
	if !errors.Is(err, domain.ErrGenerationProviderError) {
		t.Fatalf("expected ErrGenerationProviderError, got %v", err)
	}
}

func TestInstrumentedGenerator_BreakerOpens(t *testing.T) {
	inner := &mockGenerator{openErr: errors.New("503")}
	cb := breaker.New("generation", breaker.Settings{
		MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureRatio: 0.5, MinRequests: 2,
	}, zap.NewNop())
	g := NewInstrumentedGenerator(inner, "p-cb", "m", 0, cb, zap.NewNop())

	for range 2 {
		_, _ = g.Stream(context.Background(), "q")
	}
	_, err := g.Stream(context.Background(), "q")
	if !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if inner.opened != 2 {
		t.Errorf("expected 2 provider calls, got %d", inner.opened)
	}
}
