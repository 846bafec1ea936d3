package usage

import (
	"context"
	"time"
)

// TokenCounter persists token counts in UTC day and month buckets.
type TokenCounter interface {
	Add(ctx context.Context, provider string, tokens int64, at time.Time) error
	Daily(ctx context.Context, provider string, at time.Time) (int64, error)
	Monthly(ctx context.Context, provider string, at time.Time) (int64, error)
}
