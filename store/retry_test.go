package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engineerrors "github.com/lexipoint/lexipoint/internal/errors"
	"github.com/lexipoint/lexipoint/internal/metrics"
	"github.com/lexipoint/lexipoint/internal/profile"
	"github.com/lexipoint/lexipoint/plugin/review"
	"github.com/lexipoint/lexipoint/store"
	"github.com/lexipoint/lexipoint/store/cache"
	"github.com/lexipoint/lexipoint/store/db"
)

// flakyDriver wraps a real driver and injects failures into the list and
// update paths before delegating.
type flakyDriver struct {
	store.Driver

	listFailures   int
	updateFailures int
	listErr        error

	listCalls   int
	updateCalls int
}

func (d *flakyDriver) ListKnowledgePoints(ctx context.Context, find *store.FindKnowledgePoint) ([]*store.KnowledgePoint, error) {
	d.listCalls++
	if d.listErr != nil {
		return nil, d.listErr
	}
	if d.listFailures > 0 {
		d.listFailures--
		return nil, engineerrors.BackendUnavailable("storage offline", nil)
	}
	return d.Driver.ListKnowledgePoints(ctx, find)
}

func (d *flakyDriver) UpdateKnowledgePoint(ctx context.Context, update *store.UpdateKnowledgePoint) (*store.KnowledgePoint, error) {
	d.updateCalls++
	if d.updateFailures > 0 {
		d.updateFailures--
		return nil, engineerrors.BackendUnavailable("storage offline", nil)
	}
	return d.Driver.UpdateKnowledgePoint(ctx, update)
}

func newFlakyStore(t *testing.T) (*store.Store, *flakyDriver) {
	t.Helper()

	testProfile := &profile.Profile{
		Mode:   "demo",
		Data:   t.TempDir(),
		Driver: "file",
	}
	require.NoError(t, testProfile.Validate())

	driver, err := db.NewDriver(testProfile)
	require.NoError(t, err)

	flaky := &flakyDriver{Driver: driver}
	testStore := store.NewWithConfig(flaky, testProfile, review.DefaultConfig(), cache.DefaultLayerConfig())
	t.Cleanup(func() {
		_ = testStore.Close()
	})
	return testStore, flaky
}

func TestBackendRetryRecovers(t *testing.T) {
	ctx := context.Background()
	testStore, flaky := newFlakyStore(t)

	created, err := testStore.CreateKnowledgePoint(ctx, sampleCreate())
	require.NoError(t, err)

	before := metrics.Global().Snapshot().BackendRetries

	// Two transient failures stay inside the retry budget of three attempts.
	flaky.listFailures = 2
	flaky.listCalls = 0
	point, err := testStore.GetKnowledgePoint(ctx, created.UID)
	require.NoError(t, err)
	assert.Equal(t, created.UID, point.UID)
	assert.Equal(t, 3, flaky.listCalls)
	assert.Equal(t, before+2, metrics.Global().Snapshot().BackendRetries)
}

func TestBackendRetryExhausted(t *testing.T) {
	ctx := context.Background()
	testStore, flaky := newFlakyStore(t)

	created, err := testStore.CreateKnowledgePoint(ctx, sampleCreate())
	require.NoError(t, err)

	// One more failure than the budget allows surfaces the last error.
	flaky.listFailures = 3
	flaky.listCalls = 0
	_, err = testStore.GetKnowledgePoint(ctx, created.UID)
	require.Error(t, err)
	assert.True(t, engineerrors.IsCode(err, engineerrors.ErrCodeBackendUnavailable))
	assert.Equal(t, 3, flaky.listCalls)
}

func TestBackendRetryPassesThroughNonRetryable(t *testing.T) {
	ctx := context.Background()
	testStore, flaky := newFlakyStore(t)

	created, err := testStore.CreateKnowledgePoint(ctx, sampleCreate())
	require.NoError(t, err)

	flaky.listErr = engineerrors.InvalidArgument("malformed filter")
	flaky.listCalls = 0
	_, err = testStore.GetKnowledgePoint(ctx, created.UID)
	require.Error(t, err)
	assert.True(t, engineerrors.IsCode(err, engineerrors.ErrCodeInvalidArgument))
	assert.Equal(t, 1, flaky.listCalls)
}

func TestRecordOutcomeRetriesTransientFailure(t *testing.T) {
	ctx := context.Background()
	testStore, flaky := newFlakyStore(t)

	created, err := testStore.CreateKnowledgePoint(ctx, sampleCreate())
	require.NoError(t, err)

	// The first write attempt fails after the driver reported the point at
	// version 1; the retry must apply the outcome exactly once.
	flaky.updateFailures = 1
	updated, err := testStore.RecordOutcome(ctx, created.UID, &store.Outcome{
		Correct:       false,
		Sentence:      "He ___ home late.",
		LearnerAnswer: "go",
		CorrectAnswer: "goes",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, flaky.updateCalls)
	assert.EqualValues(t, 2, updated.Version)
	assert.EqualValues(t, 2, updated.MistakeCount)

	records, err := testStore.ListVersionRecords(ctx, created.UID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
