package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lexipoint/lexipoint/internal/metrics"
)

// Category names one cached concern. Every read path of the store belongs to
// exactly one category; mutations invalidate whole categories.
type Category string

const (
	// CategoryKnowledgePoints caches single-point reads.
	CategoryKnowledgePoints Category = "knowledge_points"
	// CategoryReviewCandidates caches the due-review queue.
	CategoryReviewCandidates Category = "review_candidates"
	// CategorySearchResults caches keyword search results.
	CategorySearchResults Category = "search_results"
	// CategoryStatistics caches aggregate statistics.
	CategoryStatistics Category = "statistics"
)

// LayerConfig holds the per-category TTL policies. The values are tuning
// parameters, not invariants.
type LayerConfig struct {
	KnowledgePointTTL   time.Duration
	ReviewCandidatesTTL time.Duration
	SearchResultsTTL    time.Duration
	StatisticsTTL       time.Duration

	CleanupInterval time.Duration
	MaxItems        int
}

// DefaultLayerConfig returns the shipped TTL policies.
func DefaultLayerConfig() LayerConfig {
	return LayerConfig{
		KnowledgePointTTL:   300 * time.Second,
		ReviewCandidatesTTL: 120 * time.Second,
		SearchResultsTTL:    180 * time.Second,
		StatisticsTTL:       60 * time.Second,

		CleanupInterval: time.Minute,
		MaxItems:        1000,
	}
}

// Layer is the single shared cache store, organized into named categories
// with their own TTLs. One instance per process; it behaves identically from
// every goroutine that reaches it.
type Layer struct {
	caches map[Category]*Cache
	group  singleflight.Group
}

// NewLayer creates the cache layer with one cache per category.
func NewLayer(config LayerConfig) *Layer {
	newCache := func(category Category, ttl time.Duration) *Cache {
		return New(Config{
			DefaultTTL:      ttl,
			CleanupInterval: config.CleanupInterval,
			MaxItems:        config.MaxItems,
			OnEviction: func(string, any) {
				metrics.Global().RecordEviction(string(category))
			},
		})
	}

	return &Layer{
		caches: map[Category]*Cache{
			CategoryKnowledgePoints:  newCache(CategoryKnowledgePoints, config.KnowledgePointTTL),
			CategoryReviewCandidates: newCache(CategoryReviewCandidates, config.ReviewCandidatesTTL),
			CategorySearchResults:    newCache(CategorySearchResults, config.SearchResultsTTL),
			CategoryStatistics:       newCache(CategoryStatistics, config.StatisticsTTL),
		},
	}
}

// GetOrCompute returns the cached value for (category, key) when it is still
// fresh. On a miss or expiry it invokes compute exactly once, even under
// concurrent callers for the same key, stores the result with a fresh expiry
// and returns it. Errors from compute are returned and never cached.
func (l *Layer) GetOrCompute(ctx context.Context, category Category, key string, compute func(ctx context.Context) (any, error)) (any, error) {
	c := l.caches[category]
	if c == nil {
		// Unknown category: no cache to consult, compute directly.
		return compute(ctx)
	}

	if value, ok := c.Get(ctx, key); ok {
		metrics.Global().RecordCacheHit(string(category))
		return value, nil
	}
	metrics.Global().RecordCacheMiss(string(category))

	value, err, _ := l.group.Do(string(category)+"\x00"+key, func() (any, error) {
		// A concurrent caller may have stored the value while this caller
		// waited for the flight slot.
		if value, ok := c.Get(ctx, key); ok {
			return value, nil
		}

		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, value)
		return value, nil
	})
	return value, err
}

// Invalidate clears every key of a category. Category-wide invalidation is
// the default consistency policy after a mutation.
func (l *Layer) Invalidate(ctx context.Context, categories ...Category) {
	for _, category := range categories {
		if c := l.caches[category]; c != nil {
			c.Clear(ctx)
		}
	}
}

// InvalidateKey removes a single key from a category.
func (l *Layer) InvalidateKey(ctx context.Context, category Category, key string) {
	if c := l.caches[category]; c != nil {
		c.Delete(ctx, key)
		l.group.Forget(string(category) + "\x00" + key)
	}
}

// Close stops every category cache.
func (l *Layer) Close() error {
	for _, c := range l.caches {
		if err := c.Close(); err != nil {
			return err
		}
	}
	return nil
}
