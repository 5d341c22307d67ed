package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayer_GetOrCompute_SingleComputeWithinTTL(t *testing.T) {
	ctx := context.Background()
	layer := NewLayer(DefaultLayerConfig())
	defer layer.Close()

	var calls atomic.Int32
	compute := func(context.Context) (any, error) {
		calls.Add(1)
		return "stats", nil
	}

	first, err := layer.GetOrCompute(ctx, CategoryStatistics, "all", compute)
	require.NoError(t, err)
	assert.Equal(t, "stats", first)

	second, err := layer.GetOrCompute(ctx, CategoryStatistics, "all", compute)
	require.NoError(t, err)
	assert.Equal(t, "stats", second)

	assert.EqualValues(t, 1, calls.Load(), "compute must run once inside the TTL window")
}

func TestLayer_GetOrCompute_RecomputesAfterExpiry(t *testing.T) {
	ctx := context.Background()
	config := DefaultLayerConfig()
	config.StatisticsTTL = 20 * time.Millisecond
	layer := NewLayer(config)
	defer layer.Close()

	var calls atomic.Int32
	compute := func(context.Context) (any, error) {
		calls.Add(1)
		return calls.Load(), nil
	}

	_, err := layer.GetOrCompute(ctx, CategoryStatistics, "all", compute)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	value, err := layer.GetOrCompute(ctx, CategoryStatistics, "all", compute)
	require.NoError(t, err)
	assert.EqualValues(t, int32(2), value)
	assert.EqualValues(t, 2, calls.Load())
}

func TestLayer_GetOrCompute_ConcurrentCallersShareOneFlight(t *testing.T) {
	ctx := context.Background()
	layer := NewLayer(DefaultLayerConfig())
	defer layer.Close()

	var calls atomic.Int32
	compute := func(context.Context) (any, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return "shared", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := layer.GetOrCompute(ctx, CategoryReviewCandidates, "queue", compute)
			assert.NoError(t, err)
			assert.Equal(t, "shared", value)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load(), "concurrent misses must share a single compute")
}

func TestLayer_GetOrCompute_ErrorNotCached(t *testing.T) {
	ctx := context.Background()
	layer := NewLayer(DefaultLayerConfig())
	defer layer.Close()

	var calls atomic.Int32
	fail := func(context.Context) (any, error) {
		calls.Add(1)
		return nil, assert.AnError
	}

	_, err := layer.GetOrCompute(ctx, CategorySearchResults, "kw", fail)
	assert.Error(t, err)

	// A failed compute must not fabricate a cached value.
	_, err = layer.GetOrCompute(ctx, CategorySearchResults, "kw", fail)
	assert.Error(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestLayer_Invalidate_ForcesRecompute(t *testing.T) {
	ctx := context.Background()
	layer := NewLayer(DefaultLayerConfig())
	defer layer.Close()

	var calls atomic.Int32
	compute := func(context.Context) (any, error) {
		calls.Add(1)
		return calls.Load(), nil
	}

	_, err := layer.GetOrCompute(ctx, CategoryKnowledgePoints, "uid-1", compute)
	require.NoError(t, err)

	layer.Invalidate(ctx, CategoryKnowledgePoints, CategoryStatistics)

	value, err := layer.GetOrCompute(ctx, CategoryKnowledgePoints, "uid-1", compute)
	require.NoError(t, err)
	assert.EqualValues(t, int32(2), value)
}

func TestLayer_Invalidate_LeavesOtherCategoriesAlone(t *testing.T) {
	ctx := context.Background()
	layer := NewLayer(DefaultLayerConfig())
	defer layer.Close()

	var calls atomic.Int32
	compute := func(context.Context) (any, error) {
		calls.Add(1)
		return "v", nil
	}

	_, err := layer.GetOrCompute(ctx, CategorySearchResults, "kw", compute)
	require.NoError(t, err)

	layer.Invalidate(ctx, CategoryStatistics)

	_, err = layer.GetOrCompute(ctx, CategorySearchResults, "kw", compute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestLayer_InvalidateKey(t *testing.T) {
	ctx := context.Background()
	layer := NewLayer(DefaultLayerConfig())
	defer layer.Close()

	var calls atomic.Int32
	compute := func(context.Context) (any, error) {
		calls.Add(1)
		return "v", nil
	}

	_, err := layer.GetOrCompute(ctx, CategoryKnowledgePoints, "uid-1", compute)
	require.NoError(t, err)
	_, err = layer.GetOrCompute(ctx, CategoryKnowledgePoints, "uid-2", compute)
	require.NoError(t, err)

	layer.InvalidateKey(ctx, CategoryKnowledgePoints, "uid-1")

	_, err = layer.GetOrCompute(ctx, CategoryKnowledgePoints, "uid-2", compute)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load(), "uid-2 stays cached")

	_, err = layer.GetOrCompute(ctx, CategoryKnowledgePoints, "uid-1", compute)
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load(), "uid-1 recomputes")
}

func TestLayer_UnknownCategoryComputesDirectly(t *testing.T) {
	ctx := context.Background()
	layer := NewLayer(DefaultLayerConfig())
	defer layer.Close()

	var calls atomic.Int32
	compute := func(context.Context) (any, error) {
		calls.Add(1)
		return "v", nil
	}

	for i := 0; i < 3; i++ {
		_, err := layer.GetOrCompute(ctx, Category("unknown"), "k", compute)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, calls.Load())
}
