package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	engineerrors "github.com/lexipoint/lexipoint/internal/errors"
	"github.com/lexipoint/lexipoint/plugin/classifier"
	"github.com/lexipoint/lexipoint/store"
)

const knowledgePointColumns = `
	id, uid, version, key_point, category, subtype, explanation,
	original_phrase, correction, mastery_level, mistake_count, correct_count,
	created_ts, last_seen_ts, next_review_ts, updated_ts,
	is_deleted, deleted_ts, deleted_reason, tags, custom_notes, metadata`

func (d *DB) CreateKnowledgePoint(ctx context.Context, create *store.KnowledgePoint, originalError *store.OriginalError, record *store.VersionRecord) (*store.KnowledgePoint, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, engineerrors.BackendUnavailable("failed to begin transaction", err)
	}
	defer tx.Rollback()

	fields := []string{
		"uid", "version", "key_point", "category", "subtype", "explanation",
		"original_phrase", "correction", "mastery_level", "mistake_count", "correct_count",
		"created_ts", "last_seen_ts", "next_review_ts", "updated_ts",
		"is_deleted", "deleted_reason", "tags", "custom_notes", "metadata",
	}
	placeholderValues := []any{
		create.UID, create.Version, create.KeyPoint, string(create.Category), create.Subtype, create.Explanation,
		create.OriginalPhrase, create.Correction, create.MasteryLevel, create.MistakeCount, create.CorrectCount,
		create.CreatedTs, create.LastSeenTs, nullableInt64(create.NextReviewTs), create.UpdatedTs,
		create.IsDeleted, create.DeletedReason, marshalJSON(create.Tags), create.CustomNotes, marshalJSON(create.Metadata),
	}

	stmt := `INSERT INTO knowledge_point (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(placeholderValues)) + `)
		RETURNING id`
	if err := tx.QueryRowContext(ctx, stmt, placeholderValues...).Scan(&create.ID); err != nil {
		return nil, engineerrors.BackendUnavailable("failed to create knowledge point", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO original_error (point_id, sentence, learner_answer, correct_answer, created_ts)
		VALUES (`+placeholders(5)+`)`,
		create.ID, originalError.Sentence, originalError.LearnerAnswer, originalError.CorrectAnswer, originalError.CreatedTs,
	); err != nil {
		return nil, engineerrors.BackendUnavailable("failed to create original error", err)
	}

	if err := insertVersionRecord(ctx, tx, create.ID, record); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, engineerrors.BackendUnavailable("failed to commit transaction", err)
	}
	return create, nil
}

func (d *DB) ListKnowledgePoints(ctx context.Context, find *store.FindKnowledgePoint) ([]*store.KnowledgePoint, error) {
	where, args := []string{"TRUE"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *v)
	}
	if find.ExcludeDeleted {
		where = append(where, "is_deleted = FALSE")
	}
	if v := find.DueBefore; v != nil {
		where, args = append(where, "next_review_ts IS NOT NULL AND next_review_ts <= "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Keyword; v != nil {
		pattern := "%" + strings.ToLower(*v) + "%"
		clauses := []string{}
		for _, column := range []string{"key_point", "explanation", "original_phrase", "correction", "tags"} {
			clauses = append(clauses, "LOWER("+column+") LIKE "+placeholder(len(args)+1))
			args = append(args, pattern)
		}
		where = append(where, "("+strings.Join(clauses, " OR ")+")")
	}

	query := `SELECT ` + knowledgePointColumns + `
		FROM knowledge_point
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id ASC`
	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, engineerrors.BackendUnavailable("failed to query knowledge points", err)
	}
	defer rows.Close()

	list := make([]*store.KnowledgePoint, 0)
	for rows.Next() {
		point, err := scanKnowledgePoint(rows)
		if err != nil {
			return nil, engineerrors.BackendUnavailable("failed to scan knowledge point", err)
		}
		list = append(list, point)
	}
	if err := rows.Err(); err != nil {
		return nil, engineerrors.BackendUnavailable("failed to iterate knowledge points", err)
	}
	return list, nil
}

func (d *DB) UpdateKnowledgePoint(ctx context.Context, update *store.UpdateKnowledgePoint) (*store.KnowledgePoint, error) {
	if update.Record == nil {
		return nil, engineerrors.InvalidArgument("update requires a version record")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, engineerrors.BackendUnavailable("failed to begin transaction", err)
	}
	defer tx.Rollback()

	set, args := []string{}, []any{}
	if v := update.KeyPoint; v != nil {
		set, args = append(set, "key_point = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Category; v != nil {
		set, args = append(set, "category = "+placeholder(len(args)+1)), append(args, string(*v))
	}
	if v := update.Subtype; v != nil {
		set, args = append(set, "subtype = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Explanation; v != nil {
		set, args = append(set, "explanation = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.OriginalPhrase; v != nil {
		set, args = append(set, "original_phrase = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Correction; v != nil {
		set, args = append(set, "correction = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.MasteryLevel; v != nil {
		set, args = append(set, "mastery_level = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.MistakeCount; v != nil {
		set, args = append(set, "mistake_count = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.CorrectCount; v != nil {
		set, args = append(set, "correct_count = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.LastSeenTs; v != nil {
		set, args = append(set, "last_seen_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.NextReviewTs; v != nil {
		set, args = append(set, "next_review_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.IsDeleted; v != nil {
		set, args = append(set, "is_deleted = "+placeholder(len(args)+1)), append(args, *v)
		if *v {
			set, args = append(set, "deleted_ts = "+placeholder(len(args)+1)), append(args, nullableInt64(update.DeletedTs))
			if update.DeletedReason != nil {
				set, args = append(set, "deleted_reason = "+placeholder(len(args)+1)), append(args, *update.DeletedReason)
			}
		} else {
			set = append(set, "deleted_ts = NULL", "deleted_reason = ''")
		}
	}
	if v := update.Tags; v != nil {
		set, args = append(set, "tags = "+placeholder(len(args)+1)), append(args, marshalJSON(*v))
	}
	if v := update.CustomNotes; v != nil {
		set, args = append(set, "custom_notes = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Metadata; v != nil {
		set, args = append(set, "metadata = "+placeholder(len(args)+1)), append(args, marshalJSON(*v))
	}
	set, args = append(set, "version = "+placeholder(len(args)+1)), append(args, update.Record.VersionNumber)
	set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, update.UpdatedTs)

	stmt := `UPDATE knowledge_point SET ` + strings.Join(set, ", ") + `
		WHERE id = ` + placeholder(len(args)+1) + ` AND version = ` + placeholder(len(args)+2)
	args = append(args, update.ID, update.ExpectedVersion)

	result, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, engineerrors.BackendUnavailable("failed to update knowledge point", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, engineerrors.BackendUnavailable("failed to read affected rows", err)
	}
	if affected == 0 {
		// The version guard rejected the write. Distinguish a stale version
		// from a missing row.
		var current int32
		err := tx.QueryRowContext(ctx, "SELECT version FROM knowledge_point WHERE id = $1", update.ID).Scan(&current)
		if err == sql.ErrNoRows {
			return nil, engineerrors.NotFound("knowledge point %d not found", update.ID)
		}
		if err != nil {
			return nil, engineerrors.BackendUnavailable("failed to read current version", err)
		}
		return nil, engineerrors.Conflict("knowledge point %d is at version %d, expected %d", update.ID, current, update.ExpectedVersion)
	}

	if example := update.Example; example != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO review_example (point_id, sentence, learner_answer, correct_answer, correct, created_ts)
			VALUES (`+placeholders(6)+`)`,
			update.ID, example.Sentence, example.LearnerAnswer, example.CorrectAnswer, example.Correct, example.CreatedTs,
		); err != nil {
			return nil, engineerrors.BackendUnavailable("failed to create review example", err)
		}
	}

	if err := insertVersionRecord(ctx, tx, update.ID, update.Record); err != nil {
		return nil, err
	}

	point, err := scanKnowledgePoint(tx.QueryRowContext(ctx, `SELECT `+knowledgePointColumns+` FROM knowledge_point WHERE id = $1`, update.ID))
	if err != nil {
		return nil, engineerrors.BackendUnavailable("failed to read updated knowledge point", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, engineerrors.BackendUnavailable("failed to commit transaction", err)
	}
	return point, nil
}

func (d *DB) PurgeKnowledgePoint(ctx context.Context, id int32) error {
	result, err := d.db.ExecContext(ctx, "DELETE FROM knowledge_point WHERE id = $1", id)
	if err != nil {
		return engineerrors.BackendUnavailable("failed to purge knowledge point", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return engineerrors.BackendUnavailable("failed to read affected rows", err)
	}
	if affected == 0 {
		return engineerrors.NotFound("knowledge point %d not found", id)
	}
	return nil
}

func (d *DB) GetOriginalError(ctx context.Context, pointID int32) (*store.OriginalError, error) {
	originalError := &store.OriginalError{}
	err := d.db.QueryRowContext(ctx, `
		SELECT id, point_id, sentence, learner_answer, correct_answer, created_ts
		FROM original_error
		WHERE point_id = $1`, pointID,
	).Scan(
		&originalError.ID,
		&originalError.PointID,
		&originalError.Sentence,
		&originalError.LearnerAnswer,
		&originalError.CorrectAnswer,
		&originalError.CreatedTs,
	)
	if err == sql.ErrNoRows {
		return nil, engineerrors.NotFound("original error for point %d not found", pointID)
	}
	if err != nil {
		return nil, engineerrors.BackendUnavailable("failed to query original error", err)
	}
	return originalError, nil
}

func (d *DB) ListReviewExamples(ctx context.Context, find *store.FindReviewExample) ([]*store.ReviewExample, error) {
	where, args := []string{"TRUE"}, []any{}
	if v := find.PointID; v != nil {
		where, args = append(where, "point_id = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT id, point_id, sentence, learner_answer, correct_answer, correct, created_ts
		FROM review_example
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id ASC`
	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, engineerrors.BackendUnavailable("failed to query review examples", err)
	}
	defer rows.Close()

	list := make([]*store.ReviewExample, 0)
	for rows.Next() {
		example := &store.ReviewExample{}
		if err := rows.Scan(
			&example.ID,
			&example.PointID,
			&example.Sentence,
			&example.LearnerAnswer,
			&example.CorrectAnswer,
			&example.Correct,
			&example.CreatedTs,
		); err != nil {
			return nil, engineerrors.BackendUnavailable("failed to scan review example", err)
		}
		list = append(list, example)
	}
	if err := rows.Err(); err != nil {
		return nil, engineerrors.BackendUnavailable("failed to iterate review examples", err)
	}
	return list, nil
}

func (d *DB) ListVersionRecords(ctx context.Context, find *store.FindVersionRecord) ([]*store.VersionRecord, error) {
	where, args := []string{"TRUE"}, []any{}
	if v := find.PointID; v != nil {
		where, args = append(where, "point_id = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT id, point_id, version_number, changed_fields, previous_values, changed_ts
		FROM version_record
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY version_number ASC`
	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, engineerrors.BackendUnavailable("failed to query version records", err)
	}
	defer rows.Close()

	list := make([]*store.VersionRecord, 0)
	for rows.Next() {
		record := &store.VersionRecord{}
		var changedFields, previousValues string
		if err := rows.Scan(
			&record.ID,
			&record.PointID,
			&record.VersionNumber,
			&changedFields,
			&previousValues,
			&record.ChangedTs,
		); err != nil {
			return nil, engineerrors.BackendUnavailable("failed to scan version record", err)
		}
		record.ChangedFields = unmarshalStringSlice(changedFields)
		record.PreviousValues = unmarshalStringMap(previousValues)
		list = append(list, record)
	}
	if err := rows.Err(); err != nil {
		return nil, engineerrors.BackendUnavailable("failed to iterate version records", err)
	}
	return list, nil
}

func insertVersionRecord(ctx context.Context, tx *sql.Tx, pointID int32, record *store.VersionRecord) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO version_record (point_id, version_number, changed_fields, previous_values, changed_ts)
		VALUES (`+placeholders(5)+`)`,
		pointID, record.VersionNumber, marshalJSON(record.ChangedFields), marshalJSON(record.PreviousValues), record.ChangedTs,
	); err != nil {
		return engineerrors.BackendUnavailable("failed to create version record", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKnowledgePoint(row rowScanner) (*store.KnowledgePoint, error) {
	point := &store.KnowledgePoint{}
	var category, tags, metadata string
	var nextReviewTs, deletedTs sql.NullInt64

	if err := row.Scan(
		&point.ID,
		&point.UID,
		&point.Version,
		&point.KeyPoint,
		&category,
		&point.Subtype,
		&point.Explanation,
		&point.OriginalPhrase,
		&point.Correction,
		&point.MasteryLevel,
		&point.MistakeCount,
		&point.CorrectCount,
		&point.CreatedTs,
		&point.LastSeenTs,
		&nextReviewTs,
		&point.UpdatedTs,
		&point.IsDeleted,
		&deletedTs,
		&point.DeletedReason,
		&tags,
		&point.CustomNotes,
		&metadata,
	); err != nil {
		return nil, err
	}

	point.Category = classifier.Category(category)
	if nextReviewTs.Valid {
		point.NextReviewTs = &nextReviewTs.Int64
	}
	if deletedTs.Valid {
		point.DeletedTs = &deletedTs.Int64
	}
	point.Tags = unmarshalStringSlice(tags)
	point.Metadata = unmarshalStringMap(metadata)
	return point, nil
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
