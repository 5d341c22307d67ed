// Package store implements the knowledge-point repository: it orchestrates
// mutations against a pluggable storage driver and serves every read through
// the category cache layer.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/lexipoint/lexipoint/internal/errors"
	"github.com/lexipoint/lexipoint/internal/metrics"
	"github.com/lexipoint/lexipoint/internal/profile"
	"github.com/lexipoint/lexipoint/plugin/review"
	"github.com/lexipoint/lexipoint/store/cache"
)

const (
	// backendAttempts bounds the retries of a driver call that failed with a
	// retryable backend error.
	backendAttempts = 3
	// backendBackoff is the initial backoff between backend retries; it
	// doubles per attempt.
	backendBackoff = 50 * time.Millisecond
	// conflictAttempts bounds the re-fetch-and-retry cycles after an
	// optimistic-lock conflict.
	conflictAttempts = 5
)

// Store provides access to knowledge points for all call paths. One instance
// per process; the cache layer behind it is the single source of truth for
// cached reads.
type Store struct {
	profile *profile.Profile
	driver  Driver

	reviewConfig review.Config

	caches *cache.Layer
}

// New creates a store with the profile's review tuning and the default cache
// policies.
func New(driver Driver, profile *profile.Profile) *Store {
	return NewWithConfig(driver, profile, reviewConfigFor(profile), cache.DefaultLayerConfig())
}

// reviewConfigFor applies the profile's tuning overrides to the shipped
// defaults. Zero overrides keep the defaults.
func reviewConfigFor(profile *profile.Profile) review.Config {
	config := review.DefaultConfig()
	if profile.ReviewPenalty > 0 {
		config.IncorrectPenalty = profile.ReviewPenalty
	}
	if profile.ReviewShortInterval > 0 {
		config.ShortInterval = profile.ReviewShortInterval
	}
	if profile.ReviewMaxInterval > 0 {
		config.MaxInterval = profile.ReviewMaxInterval
	}
	return config
}

// NewWithConfig creates a store with custom review tuning and cache policies.
func NewWithConfig(driver Driver, profile *profile.Profile, reviewConfig review.Config, cacheConfig cache.LayerConfig) *Store {
	return &Store{
		driver:       driver,
		profile:      profile,
		reviewConfig: reviewConfig,
		caches:       cache.NewLayer(cacheConfig),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	if err := s.caches.Close(); err != nil {
		return err
	}
	return s.driver.Close()
}

// withBackendRetry runs fn, retrying a bounded number of times with doubling
// backoff when the driver reports a retryable backend failure. Validation,
// not-found and conflict errors pass through untouched.
func withBackendRetry[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	backoff := backendBackoff

	var lastErr error
	for attempt := 0; attempt < backendAttempts; attempt++ {
		if attempt > 0 {
			metrics.Global().RecordBackendRetry()
			slog.Warn("retrying backend operation", "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return zero, errors.BackendUnavailable("backend deadline exceeded", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		if !errors.IsCode(err, errors.ErrCodeBackendUnavailable) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}
