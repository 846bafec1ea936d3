package usage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/astro1860/building-review-copliot/internal/domain"
	"github.com/astro1860/building-review-copliot/internal/logger"
)

// Period selects the reporting window.
type Period string

const (
	// PeriodDay is the current UTC day.
	PeriodDay Period = "day"
	// PeriodMonth is the current UTC month.
	PeriodMonth Period = "month"
)

// ParsePeriod accepts "day" and "month". Empty means day.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodDay:
		return PeriodDay, nil
	case PeriodMonth:
		return PeriodMonth, nil
	default:
		return "", fmt.Errorf("usage period %q (want day or month): %w", s, domain.ErrInvalidArgument)
	}
}

// Report is the embedding token consumption of one provider in a period.
type Report struct {
	Provider string    `json:"provider"`
	Period   Period    `json:"period"`
	Start    time.Time `json:"period_start"`
	End      time.Time `json:"period_end"`
	Tokens   int64     `json:"tokens"`
}

// Service records and reports embedding token usage.
type Service struct {
	counter  TokenCounter
	provider string
	now      func() time.Time
}

// New creates a Service that attributes tokens to provider.
func New(counter TokenCounter, provider string) *Service {
	return &Service{counter: counter, provider: provider, now: time.Now}
}

// Record adds tokens to the current buckets. Non-positive counts are ignored.
func (s *Service) Record(ctx context.Context, tokens int) error {
	if tokens <= 0 {
		return nil
	}
	if err := s.counter.Add(ctx, s.provider, int64(tokens), s.now()); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Report returns usage for the period containing now.
func (s *Service) Report(ctx context.Context, period Period) (Report, error) {
	now := s.now().UTC()
	r := Report{Provider: s.provider, Period: period}

	var err error
	switch period {
	case PeriodDay:
		r.Start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		r.End = r.Start.AddDate(0, 0, 1)
		r.Tokens, err = s.counter.Daily(ctx, s.provider, now)
	case PeriodMonth:
		r.Start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		r.End = r.Start.AddDate(0, 1, 0)
		r.Tokens, err = s.counter.Monthly(ctx, s.provider, now)
	default:
		return Report{}, fmt.Errorf("usage period %q: %w", period, domain.ErrInvalidArgument)
	}
	if err != nil {
		logger.FromContext(ctx).Warn("Usage report failed", zap.String("period", string(period)), zap.Error(err))
		return Report{}, fmt.Errorf("usage report: %w", err)
	}
	return r, nil
}
