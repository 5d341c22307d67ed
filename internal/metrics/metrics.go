// Package metrics collects lightweight in-process counters for the cache
// layer and the mutation path.
package metrics

import (
	"sync"
	"sync/atomic"
)

// Metrics aggregates engine counters. All methods are safe for concurrent
// use.
type Metrics struct {
	mu sync.Mutex

	// Per cache category counters.
	categoryMetrics map[string]*CategoryMetrics

	// Mutation path counters.
	conflictRetries atomic.Int64
	backendRetries  atomic.Int64
}

// CategoryMetrics holds the counters of one cache category.
type CategoryMetrics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewMetrics creates an empty metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		categoryMetrics: make(map[string]*CategoryMetrics),
	}
}

// Global metrics instance.
var globalMetrics = NewMetrics()

// Global returns the process-wide metrics instance.
func Global() *Metrics {
	return globalMetrics
}

// RecordCacheHit records a cache hit for a category.
func (m *Metrics) RecordCacheHit(category string) {
	m.getCategoryMetrics(category).hits.Add(1)
}

// RecordCacheMiss records a cache miss for a category.
func (m *Metrics) RecordCacheMiss(category string) {
	m.getCategoryMetrics(category).misses.Add(1)
}

// RecordEviction records an evicted entry for a category.
func (m *Metrics) RecordEviction(category string) {
	m.getCategoryMetrics(category).evictions.Add(1)
}

// RecordConflictRetry records one re-fetch cycle after a version conflict.
func (m *Metrics) RecordConflictRetry() {
	m.conflictRetries.Add(1)
}

// RecordBackendRetry records one retry of a failed backend call.
func (m *Metrics) RecordBackendRetry() {
	m.backendRetries.Add(1)
}

func (m *Metrics) getCategoryMetrics(category string) *CategoryMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	cm, ok := m.categoryMetrics[category]
	if !ok {
		cm = &CategoryMetrics{}
		m.categoryMetrics[category] = cm
	}
	return cm
}

// Reset resets all counters (useful for testing).
func (m *Metrics) Reset() {
	m.conflictRetries.Store(0)
	m.backendRetries.Store(0)

	m.mu.Lock()
	m.categoryMetrics = make(map[string]*CategoryMetrics)
	m.mu.Unlock()
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	categories := make(map[string]*CategorySnapshot, len(m.categoryMetrics))
	for category, cm := range m.categoryMetrics {
		categories[category] = &CategorySnapshot{
			Hits:      cm.hits.Load(),
			Misses:    cm.misses.Load(),
			Evictions: cm.evictions.Load(),
		}
	}

	return &Snapshot{
		Categories:      categories,
		ConflictRetries: m.conflictRetries.Load(),
		BackendRetries:  m.backendRetries.Load(),
	}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Categories      map[string]*CategorySnapshot
	ConflictRetries int64
	BackendRetries  int64
}

// CategorySnapshot is a point-in-time copy of one category's counters.
type CategorySnapshot struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns the hit ratio, 0 when nothing was recorded.
func (c *CategorySnapshot) HitRate() float64 {
	total := c.Hits + c.Misses
	if total == 0 {
		return 0
	}
	return float64(c.Hits) / float64(total)
}
