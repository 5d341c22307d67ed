package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexipoint/lexipoint/store"
)

func TestVersionHistoryFullLifecycle(t *testing.T) {
	ctx := context.Background()
	testStore := newTestStore(t)

	point, err := testStore.CreateKnowledgePoint(ctx, sampleCreate())
	require.NoError(t, err)

	// v2: review outcome
	_, err = testStore.RecordOutcome(ctx, point.UID, &store.Outcome{
		Sentence: "He ___ jogging at dawn.",
		Correct:  true,
	})
	require.NoError(t, err)

	// v3: explicit edit
	explanation := "he/she/it takes the -s form"
	_, err = testStore.UpdateKnowledgePoint(ctx, point.UID, &store.KnowledgePointPatch{
		Explanation: &explanation,
	})
	require.NoError(t, err)

	// v4: delete, v5: restore
	_, err = testStore.SoftDeleteKnowledgePoint(ctx, point.UID, "rework")
	require.NoError(t, err)
	_, err = testStore.RestoreKnowledgePoint(ctx, point.UID)
	require.NoError(t, err)

	// v6: another outcome after restore
	_, err = testStore.RecordOutcome(ctx, point.UID, &store.Outcome{
		Sentence: "She ___ shopping on Fridays.",
	})
	require.NoError(t, err)

	records, err := testStore.ListVersionRecords(ctx, point.UID)
	require.NoError(t, err)
	require.Len(t, records, 6)

	// Numbers stay gapless and strictly increasing across the whole
	// lifecycle, delete/restore included.
	for i, record := range records {
		assert.EqualValues(t, i+1, record.VersionNumber)
		if i > 0 {
			assert.GreaterOrEqual(t, record.ChangedTs, records[i-1].ChangedTs)
		}
	}

	assert.Equal(t, []string{"created"}, records[0].ChangedFields)
	assert.Contains(t, records[1].ChangedFields, "mastery_level")
	assert.Contains(t, records[1].ChangedFields, "correct_count")
	assert.Equal(t, []string{"explanation"}, records[2].ChangedFields)
	assert.Contains(t, records[3].ChangedFields, "is_deleted")
	assert.Contains(t, records[4].ChangedFields, "is_deleted")
	assert.Contains(t, records[5].ChangedFields, "mistake_count")

	// Previous values record what was overwritten.
	assert.Equal(t, "present simple verbs take -s with he/she/it", records[2].PreviousValues["explanation"])
	assert.Equal(t, "false", records[3].PreviousValues["is_deleted"])
	assert.Equal(t, "true", records[4].PreviousValues["is_deleted"])

	final, err := testStore.GetKnowledgePoint(ctx, point.UID)
	require.NoError(t, err)
	assert.EqualValues(t, 6, final.Version, "the point's version tracks the highest record")
}

func TestListVersionRecordsUnknownPoint(t *testing.T) {
	ctx := context.Background()
	testStore := newTestStore(t)

	_, err := testStore.ListVersionRecords(ctx, "missing-uid")
	require.Error(t, err)
}
