package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engineerrors "github.com/lexipoint/lexipoint/internal/errors"
	"github.com/lexipoint/lexipoint/internal/profile"
	"github.com/lexipoint/lexipoint/plugin/classifier"
	"github.com/lexipoint/lexipoint/store"
	"github.com/lexipoint/lexipoint/store/db/file"
)

func newTestProfile(t *testing.T) *profile.Profile {
	t.Helper()
	return &profile.Profile{
		Mode:   "demo",
		Data:   t.TempDir(),
		Driver: "file",
		DSN:    filepath.Join(t.TempDir(), "engine.json"),
	}
}

func newTestDriver(t *testing.T) store.Driver {
	t.Helper()
	driver, err := file.NewDriver(newTestProfile(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = driver.Close()
	})
	return driver
}

func samplePoint() (*store.KnowledgePoint, *store.OriginalError, *store.VersionRecord) {
	now := time.Now().Unix()
	point := &store.KnowledgePoint{
		UID:            "test-uid",
		Version:        1,
		KeyPoint:       "past tense of irregular verbs",
		Category:       classifier.CategorySystematic,
		Subtype:        "inflection",
		OriginalPhrase: "goed",
		Correction:     "went",
		MistakeCount:   1,
		CreatedTs:      now,
		LastSeenTs:     now,
		UpdatedTs:      now,
		Tags:           []string{"grammar"},
	}
	originalError := &store.OriginalError{
		Sentence:      "Yesterday she ___ to the market.",
		LearnerAnswer: "goed",
		CorrectAnswer: "went",
		CreatedTs:     now,
	}
	record := &store.VersionRecord{
		VersionNumber:  1,
		ChangedFields:  []string{"created"},
		PreviousValues: map[string]string{},
		ChangedTs:      now,
	}
	return point, originalError, record
}

func TestCreateAndList(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)

	point, originalError, record := samplePoint()
	created, err := driver.CreateKnowledgePoint(ctx, point, originalError, record)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	uid := "test-uid"
	list, err := driver.ListKnowledgePoints(ctx, &store.FindKnowledgePoint{UID: &uid})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
	assert.Equal(t, []string{"grammar"}, list[0].Tags)

	stored, err := driver.GetOriginalError(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "goed", stored.LearnerAnswer)

	records, err := driver.ListVersionRecords(ctx, &store.FindVersionRecord{PointID: &created.ID})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.EqualValues(t, 1, records[0].VersionNumber)
}

func TestUpdateVersionGuard(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)

	point, originalError, record := samplePoint()
	created, err := driver.CreateKnowledgePoint(ctx, point, originalError, record)
	require.NoError(t, err)

	keyPoint := "updated key point"
	now := time.Now().Unix()
	update := &store.UpdateKnowledgePoint{
		ID:              created.ID,
		ExpectedVersion: created.Version,
		KeyPoint:        &keyPoint,
		UpdatedTs:       now,
		Record: &store.VersionRecord{
			VersionNumber:  2,
			ChangedFields:  []string{"key_point"},
			PreviousValues: map[string]string{"key_point": created.KeyPoint},
			ChangedTs:      now,
		},
	}
	updated, err := driver.UpdateKnowledgePoint(ctx, update)
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated.Version)
	assert.Equal(t, keyPoint, updated.KeyPoint)

	// Replaying the same expected version must be rejected.
	_, err = driver.UpdateKnowledgePoint(ctx, update)
	require.Error(t, err)
	assert.True(t, engineerrors.IsCode(err, engineerrors.ErrCodeConflict))

	// Unknown IDs are not conflicts.
	update.ID = created.ID + 99
	_, err = driver.UpdateKnowledgePoint(ctx, update)
	require.Error(t, err)
	assert.True(t, engineerrors.IsCode(err, engineerrors.ErrCodeNotFound))
}

func TestUpdateClearsDeletionOnRestore(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)

	point, originalError, record := samplePoint()
	created, err := driver.CreateKnowledgePoint(ctx, point, originalError, record)
	require.NoError(t, err)

	now := time.Now().Unix()
	deleted := true
	reason := "obsolete"
	updated, err := driver.UpdateKnowledgePoint(ctx, &store.UpdateKnowledgePoint{
		ID:              created.ID,
		ExpectedVersion: 1,
		IsDeleted:       &deleted,
		DeletedTs:       &now,
		DeletedReason:   &reason,
		UpdatedTs:       now,
		Record:          &store.VersionRecord{VersionNumber: 2, ChangedTs: now},
	})
	require.NoError(t, err)
	assert.True(t, updated.IsDeleted)
	require.NotNil(t, updated.DeletedTs)

	restored := false
	updated, err = driver.UpdateKnowledgePoint(ctx, &store.UpdateKnowledgePoint{
		ID:              created.ID,
		ExpectedVersion: 2,
		IsDeleted:       &restored,
		UpdatedTs:       now,
		Record:          &store.VersionRecord{VersionNumber: 3, ChangedTs: now},
	})
	require.NoError(t, err)
	assert.False(t, updated.IsDeleted)
	assert.Nil(t, updated.DeletedTs)
	assert.Empty(t, updated.DeletedReason)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	testProfile := newTestProfile(t)

	driver, err := file.NewDriver(testProfile)
	require.NoError(t, err)

	point, originalError, record := samplePoint()
	created, err := driver.CreateKnowledgePoint(ctx, point, originalError, record)
	require.NoError(t, err)
	require.NoError(t, driver.Close())

	reopened, err := file.NewDriver(testProfile)
	require.NoError(t, err)
	defer reopened.Close()

	list, err := reopened.ListKnowledgePoints(ctx, &store.FindKnowledgePoint{ID: &created.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.KeyPoint, list[0].KeyPoint)

	// ID assignment continues past the reopened document.
	second, secondError, secondRecord := samplePoint()
	second.UID = "second-uid"
	recreated, err := reopened.CreateKnowledgePoint(ctx, second, secondError, secondRecord)
	require.NoError(t, err)
	assert.Greater(t, recreated.ID, created.ID)
}

func TestPurgeRemovesAggregate(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)

	point, originalError, record := samplePoint()
	created, err := driver.CreateKnowledgePoint(ctx, point, originalError, record)
	require.NoError(t, err)

	require.NoError(t, driver.PurgeKnowledgePoint(ctx, created.ID))

	list, err := driver.ListKnowledgePoints(ctx, &store.FindKnowledgePoint{ID: &created.ID})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = driver.GetOriginalError(ctx, created.ID)
	require.Error(t, err)
	assert.True(t, engineerrors.IsCode(err, engineerrors.ErrCodeNotFound))

	err = driver.PurgeKnowledgePoint(ctx, created.ID)
	require.Error(t, err)
	assert.True(t, engineerrors.IsCode(err, engineerrors.ErrCodeNotFound))
}

func TestFailedPersistLeavesDocumentUntouched(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	driver, err := file.NewDriver(&profile.Profile{
		Mode:   "demo",
		Data:   dir,
		Driver: "file",
		DSN:    filepath.Join(dir, "engine.json"),
	})
	require.NoError(t, err)
	defer driver.Close()

	point, originalError, record := samplePoint()
	created, err := driver.CreateKnowledgePoint(ctx, point, originalError, record)
	require.NoError(t, err)

	// Remove the data directory so the temp-file write fails.
	require.NoError(t, os.RemoveAll(dir))

	now := time.Now().Unix()
	mistakes := created.MistakeCount + 1
	update := &store.UpdateKnowledgePoint{
		ID:              created.ID,
		ExpectedVersion: created.Version,
		MistakeCount:    &mistakes,
		UpdatedTs:       now,
		Record: &store.VersionRecord{
			VersionNumber: 2,
			ChangedFields: []string{"mistake_count"},
			ChangedTs:     now,
		},
	}
	_, err = driver.UpdateKnowledgePoint(ctx, update)
	require.Error(t, err)
	assert.True(t, engineerrors.IsCode(err, engineerrors.ErrCodeBackendUnavailable))

	// The failed write must not leak into the live document.
	list, err := driver.ListKnowledgePoints(ctx, &store.FindKnowledgePoint{ID: &created.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.EqualValues(t, 1, list[0].Version)
	assert.EqualValues(t, 1, list[0].MistakeCount)

	records, err := driver.ListVersionRecords(ctx, &store.FindVersionRecord{PointID: &created.ID})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	// A failed create must not append the point or advance ID assignment.
	second, secondError, secondRecord := samplePoint()
	second.UID = "second-uid"
	_, err = driver.CreateKnowledgePoint(ctx, second, secondError, secondRecord)
	require.Error(t, err)
	assert.True(t, engineerrors.IsCode(err, engineerrors.ErrCodeBackendUnavailable))

	all, err := driver.ListKnowledgePoints(ctx, &store.FindKnowledgePoint{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// A failed purge keeps the point.
	err = driver.PurgeKnowledgePoint(ctx, created.ID)
	require.Error(t, err)
	assert.True(t, engineerrors.IsCode(err, engineerrors.ErrCodeBackendUnavailable))
	all, err = driver.ListKnowledgePoints(ctx, &store.FindKnowledgePoint{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// Once the backend is reachable again, retrying the same update applies
	// the outcome exactly once.
	require.NoError(t, os.MkdirAll(dir, 0o755))
	updated, err := driver.UpdateKnowledgePoint(ctx, update)
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated.Version)
	assert.EqualValues(t, 2, updated.MistakeCount)

	// ID assignment was discarded along with the failed writes: the second
	// aggregate follows the first one plus the retried update's record.
	recreated, err := driver.CreateKnowledgePoint(ctx, second, secondError, secondRecord)
	require.NoError(t, err)
	assert.Equal(t, created.ID+4, recreated.ID)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)

	point, originalError, record := samplePoint()
	created, err := driver.CreateKnowledgePoint(ctx, point, originalError, record)
	require.NoError(t, err)

	// Keyword matches are case-insensitive over the text fields and tags.
	for _, keyword := range []string{"IRREGULAR", "goed", "went", "grammar"} {
		kw := keyword
		list, err := driver.ListKnowledgePoints(ctx, &store.FindKnowledgePoint{Keyword: &kw})
		require.NoError(t, err)
		assert.Len(t, list, 1, "keyword %q", keyword)
	}

	kw := "no match"
	list, err := driver.ListKnowledgePoints(ctx, &store.FindKnowledgePoint{Keyword: &kw})
	require.NoError(t, err)
	assert.Empty(t, list)

	// Due filtering: no next_review_ts means never due.
	now := time.Now().Unix()
	list, err = driver.ListKnowledgePoints(ctx, &store.FindKnowledgePoint{DueBefore: &now})
	require.NoError(t, err)
	assert.Empty(t, list)

	past := now - 60
	updateTs := now
	deletedList, err := driver.UpdateKnowledgePoint(ctx, &store.UpdateKnowledgePoint{
		ID:              created.ID,
		ExpectedVersion: 1,
		NextReviewTs:    &past,
		UpdatedTs:       updateTs,
		Record:          &store.VersionRecord{VersionNumber: 2, ChangedTs: updateTs},
	})
	require.NoError(t, err)
	require.NotNil(t, deletedList.NextReviewTs)

	list, err = driver.ListKnowledgePoints(ctx, &store.FindKnowledgePoint{DueBefore: &now})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
