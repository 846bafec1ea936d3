package copilot

import (
	"context"

	healthuc "github.com/astro1860/building-review-copliot/internal/usecase/health"
)

// HealthStatus represents the aggregated provider health.
type HealthStatus struct {
	Status string            // "ok", "degraded", "error"
	Checks map[string]string // component → "ok"/"error"
}

// Health checks the providers that expose HealthCheck(ctx) error.
// Providers without it are not reported.
func (c *Client) Health(ctx context.Context) HealthStatus {
	report := c.health.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{
		Status: string(report.Status),
		Checks: checks,
	}
}

// healthCheckerOf returns v as a checker, or a nil interface when v has no
// HealthCheck method.
func healthCheckerOf(v any) healthuc.ProviderChecker {
	if hc, ok := v.(healthuc.ProviderChecker); ok {
		return hc
	}
	return nil
}
