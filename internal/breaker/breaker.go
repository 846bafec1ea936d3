// Package breaker guards provider calls with a circuit breaker.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/domain"
)

// Settings control when the breaker opens and how it recovers.
type Settings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultSettings trip after 60% failures over at least 3 calls.
func DefaultSettings() Settings {
	return Settings{
		MaxRequests:  5,
		Interval:     10 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.6,
		MinRequests:  3,
	}
}

// Breaker wraps gobreaker for error-only calls.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a breaker. A nil logger disables state-change logs.
func New(name string, s Settings, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests || counts.Requests == 0 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Caller cancellation says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})}
}

// Do runs fn through the breaker. Rejections surface as domain.ErrCircuitOpen
// joined with sentinel so callers still see the provider error kind.
func (b *Breaker) Do(sentinel error, fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w: %w", b.cb.Name(), domain.ErrCircuitOpen, sentinel)
	}
	return err
}

// State reports the current breaker state ("closed", "half-open", "open").
func (b *Breaker) State() string {
	return b.cb.State().String()
}
