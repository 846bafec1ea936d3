package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/astro1860/building-review-copliot/internal/db"
)

const keyPrefix = "copilot:usage:"

// Recommended counter lifetimes: a day key outlives its day, a month key its month.
const (
	DefaultDailyTTL   = 48 * time.Hour
	DefaultMonthlyTTL = 62 * 24 * time.Hour
)

type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store keeps per-provider token counters in day and month buckets (UTC).
type Store struct {
	store    store
	dailyTTL time.Duration
	monthTTL time.Duration
}

// New creates a token counter store.
func New(s store, dailyTTL, monthTTL time.Duration) *Store {
	return &Store{
		store:    s,
		dailyTTL: dailyTTL,
		monthTTL: monthTTL,
	}
}

// DailyKey is the counter key for provider on the UTC day of at.
func DailyKey(provider string, at time.Time) string {
	return keyPrefix + provider + ":daily:" + at.UTC().Format(time.DateOnly)
}

// MonthlyKey is the counter key for provider in the UTC month of at.
func MonthlyKey(provider string, at time.Time) string {
	return keyPrefix + provider + ":monthly:" + at.UTC().Format("2006-01")
}

// Add counts tokens in both the day and the month bucket of at.
func (s *Store) Add(ctx context.Context, provider string, tokens int64, at time.Time) error {
	if err := s.incr(ctx, DailyKey(provider, at), tokens, s.dailyTTL); err != nil {
		return err
	}
	return s.incr(ctx, MonthlyKey(provider, at), tokens, s.monthTTL)
}

// Daily returns tokens counted on the UTC day of at.
func (s *Store) Daily(ctx context.Context, provider string, at time.Time) (int64, error) {
	return s.get(ctx, DailyKey(provider, at))
}

// Monthly returns tokens counted in the UTC month of at.
func (s *Store) Monthly(ctx context.Context, provider string, at time.Time) (int64, error) {
	return s.get(ctx, MonthlyKey(provider, at))
}

func (s *Store) incr(ctx context.Context, key string, val int64, ttl time.Duration) error {
	if err := s.store.IncrBy(ctx, key, val); err != nil {
		return fmt.Errorf("budget INCRBY %s: %w", key, err)
	}

	// NX keeps the first expiry, so repeated adds never extend a bucket.
	if err := s.store.Expire(ctx, key, ttl, true); err != nil {
		return fmt.Errorf("budget EXPIRE %s: %w", key, err)
	}
	return nil
}

// get returns 0 for a missing key.
func (s *Store) get(ctx context.Context, key string) (int64, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("budget GET %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget GET %s parse: %w", key, err)
	}
	return val, nil
}
