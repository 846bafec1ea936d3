package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/breaker"
	"github.com/astro1860/building-review-copliot/internal/domain"
	"github.com/astro1860/building-review-copliot/internal/metrics"
)

// Stream outcomes recorded in GenerationStreamsTotal.
const (
	statusCompleted = "completed"
	statusAborted   = "aborted"
	statusError     = "error"
)

// InstrumentedGenerator bounds every stream with a deadline, guards stream
// opening with a circuit breaker and records stream metrics.
type InstrumentedGenerator struct {
	inner    domain.Generator
	provider string
	model    string
	timeout  time.Duration
	breaker  *breaker.Breaker
	logger   *zap.Logger
	now      func() time.Time
}

// NewInstrumentedGenerator wraps a generator. A nil breaker or zero timeout
// disables the respective guard.
func NewInstrumentedGenerator(
	inner domain.Generator, provider, model string,
	timeout time.Duration, cb *breaker.Breaker, logger *zap.Logger,
) *InstrumentedGenerator {
	return &InstrumentedGenerator{
		inner:    inner,
		provider: provider,
		model:    model,
		timeout:  timeout,
		breaker:  cb,
		logger:   logger,
		now:      time.Now,
	}
}

// Stream opens the inner stream. The deadline covers the whole stream and is
// released by Close.
func (g *InstrumentedGenerator) Stream(ctx context.Context, prompt string) (domain.FragmentStream, error) {
	streamCtx, cancel := ctx, context.CancelFunc(func() {})
	if g.timeout > 0 {
		streamCtx, cancel = context.WithTimeout(ctx, g.timeout)
	}

	var inner domain.FragmentStream
	open := func() error {
		var err error
		inner, err = g.inner.Stream(streamCtx, prompt)
		return g.classify(streamCtx, err)
	}

	var err error
	if g.breaker != nil {
		err = g.breaker.Do(domain.ErrGenerationProviderError, open)
	} else {
		err = open()
	}
	if err != nil {
		cancel()
		metrics.GenerationStreamsTotal.WithLabelValues(g.provider, g.model, statusError).Inc()
		metrics.GenerationErrorsTotal.WithLabelValues(g.provider, g.model, errorType(err)).Inc()
		g.logger.Error("Generation stream failed to open",
			zap.String("provider", g.provider),
			zap.String("model", g.model),
			zap.Int("prompt_chars", len(prompt)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("open stream: %w", err)
	}

	return &instrumentedStream{
		gen:    g,
		inner:  inner,
		ctx:    streamCtx,
		cancel: cancel,
		start:  g.now(),
	}, nil
}

// HealthCheck forwards to the inner generator when it supports health checks.
func (g *InstrumentedGenerator) HealthCheck(ctx context.Context) error {
	if hc, ok := g.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// classify tags deadline overruns and unclassified failures with domain sentinels.
func (g *InstrumentedGenerator) classify(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %w", domain.ErrExternalTimeout, domain.ErrGenerationProviderError, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrGenerationProviderError) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrGenerationProviderError, err)
}

func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, domain.ErrExternalTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "api_error"
	}
}

type instrumentedStream struct {
	gen    *InstrumentedGenerator
	inner  domain.FragmentStream
	ctx    context.Context
	cancel context.CancelFunc
	start  time.Time

	fragments int
	status    string
	closeOnce sync.Once
	closeErr  error
}

func (s *instrumentedStream) Recv() (string, error) {
	frag, err := s.inner.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.status = statusCompleted
			return "", io.EOF
		}
		err = s.gen.classify(s.ctx, err)
		if s.status == "" {
			s.status = statusError
			metrics.GenerationErrorsTotal.WithLabelValues(s.gen.provider, s.gen.model, errorType(err)).Inc()
		}
		return "", err
	}

	if s.fragments == 0 {
		metrics.GenerationFirstFragmentSeconds.WithLabelValues(s.gen.provider, s.gen.model).
			Observe(s.gen.now().Sub(s.start).Seconds())
	}
	s.fragments++
	metrics.GenerationFragmentsTotal.WithLabelValues(s.gen.provider, s.gen.model).Inc()
	return frag, nil
}

// Close releases the inner stream and the deadline. Safe to call more than once.
func (s *instrumentedStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.inner.Close()
		s.cancel()

		status := s.status
		if status == "" {
			status = statusAborted
		}
		duration := s.gen.now().Sub(s.start)
		metrics.GenerationStreamsTotal.WithLabelValues(s.gen.provider, s.gen.model, status).Inc()
		metrics.GenerationStreamDuration.WithLabelValues(s.gen.provider, s.gen.model).Observe(duration.Seconds())

		s.gen.logger.Debug("Generation stream closed",
			zap.String("provider", s.gen.provider),
			zap.String("model", s.gen.model),
			zap.String("status", status),
			zap.Int("fragments", s.fragments),
			zap.Duration("duration", duration),
		)
	})
	return s.closeErr
}
