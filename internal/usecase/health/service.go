package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates every component failed.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names reported in Report.Checks.
const (
	ComponentCache      = "cache"
	ComponentEmbedding  = "embedding"
	ComponentGeneration = "generation"
)

// DefaultCheckTimeout bounds each component check.
const DefaultCheckTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Service coordinates health checks.
type Service struct {
	cache      CachePinger
	embedding  ProviderChecker
	generation ProviderChecker
	timeout    time.Duration
}

// New creates a Service. Any component can be nil and is then not reported.
func New(cache CachePinger, embedding, generation ProviderChecker) *Service {
	return &Service{
		cache:      cache,
		embedding:  embedding,
		generation: generation,
		timeout:    DefaultCheckTimeout,
	}
}

// Check runs all component checks concurrently.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	var mu sync.Mutex
	var g errgroup.Group

	run := func(name string, fn func(context.Context) error) {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			res := CheckOK
			if err := fn(cctx); err != nil {
				res = CheckError
			}
			mu.Lock()
			checks[name] = res
			mu.Unlock()
			return nil
		})
	}

	if s.cache != nil {
		run(ComponentCache, s.cache.Ping)
	}
	if s.embedding != nil {
		run(ComponentEmbedding, s.embedding.HealthCheck)
	}
	if s.generation != nil {
		run(ComponentGeneration, s.generation.HealthCheck)
	}
	_ = g.Wait()

	return Report{Status: aggregate(checks), Checks: checks}
}

func aggregate(checks map[string]CheckResult) Status {
	failed := 0
	for _, v := range checks {
		if v == CheckError {
			failed++
		}
	}
	switch {
	case failed == 0:
		return Healthy
	case failed == len(checks):
		return Unhealthy
	default:
		return Degraded
	}
}
