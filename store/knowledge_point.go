package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/lexipoint/lexipoint/internal/errors"
	"github.com/lexipoint/lexipoint/internal/metrics"
	"github.com/lexipoint/lexipoint/plugin/classifier"
	"github.com/lexipoint/lexipoint/plugin/review"
	"github.com/lexipoint/lexipoint/store/cache"
)

// KnowledgePoint is the aggregate root: one recurring learner mistake, its
// classification and mastery progress.
type KnowledgePoint struct {
	ID  int32
	UID string
	// Version equals the highest version_number of the point's history and
	// guards every mutation (optimistic lock).
	Version int32

	KeyPoint       string
	Category       classifier.Category
	Subtype        string
	Explanation    string
	OriginalPhrase string
	Correction     string

	MasteryLevel float64
	MistakeCount int32
	CorrectCount int32

	CreatedTs    int64
	LastSeenTs   int64
	NextReviewTs *int64 // nil until the first review is scheduled
	UpdatedTs    int64

	IsDeleted     bool
	DeletedTs     *int64
	DeletedReason string

	Tags        []string
	CustomNotes string
	Metadata    map[string]string
}

// FindKnowledgePoint is the find condition for knowledge points.
type FindKnowledgePoint struct {
	ID  *int32
	UID *string

	// ExcludeDeleted drops soft-deleted points from the result.
	ExcludeDeleted bool
	// DueBefore keeps only points whose next review is scheduled and not
	// after the given timestamp.
	DueBefore *int64
	// Keyword matches key point, explanation, original phrase, correction
	// and tags, case-insensitively.
	Keyword *string

	Limit *int
}

// UpdateKnowledgePoint is the driver-level field diff for one mutation. The
// version record, the optional review example and the field updates commit in
// one transaction or not at all.
type UpdateKnowledgePoint struct {
	ID int32
	// ExpectedVersion is the version the mutation was computed from. The
	// driver rejects the update with a CONFLICT error when the stored
	// version differs.
	ExpectedVersion int32

	KeyPoint       *string
	Category       *classifier.Category
	Subtype        *string
	Explanation    *string
	OriginalPhrase *string
	Correction     *string

	MasteryLevel *float64
	MistakeCount *int32
	CorrectCount *int32

	LastSeenTs   *int64
	NextReviewTs *int64
	UpdatedTs    int64

	// Setting IsDeleted to false also clears DeletedTs and DeletedReason.
	IsDeleted     *bool
	DeletedTs     *int64
	DeletedReason *string

	Tags        *[]string
	CustomNotes *string
	Metadata    *map[string]string

	// Example, when set, is appended in the same transaction.
	Example *ReviewExample
	// Record is the version record of this mutation. Required.
	Record *VersionRecord
}

// CreateKnowledgePoint is the input for creating a point from a graded
// mistake.
type CreateKnowledgePoint struct {
	KeyPoint    string
	Explanation string

	// The originating mistake, immutable after creation.
	Sentence      string
	LearnerAnswer string
	CorrectAnswer string
	// Acceptable marks an answer that was not wrong, only improvable.
	Acceptable bool
	// CategoryHint is an optional classification from the grading
	// collaborator; invalid hints fall back to rule-based classification.
	CategoryHint string

	Tags        []string
	CustomNotes string
	Metadata    map[string]string
}

// KnowledgePointPatch is an explicit edit of descriptive fields. Validation
// is all-or-nothing: one bad field rejects the whole patch.
type KnowledgePointPatch struct {
	KeyPoint       *string
	Category       *classifier.Category
	Subtype        *string
	Explanation    *string
	OriginalPhrase *string
	Correction     *string
	MasteryLevel   *float64
	Tags           *[]string
	CustomNotes    *string
	Metadata       *map[string]string
}

// CreateKnowledgePoint validates and classifies a graded mistake and stores
// the new point with its original error and version record #1.
func (s *Store) CreateKnowledgePoint(ctx context.Context, create *CreateKnowledgePoint) (*KnowledgePoint, error) {
	if strings.TrimSpace(create.KeyPoint) == "" {
		return nil, errors.InvalidArgument("key_point is required")
	}
	if strings.TrimSpace(create.LearnerAnswer) == "" || strings.TrimSpace(create.CorrectAnswer) == "" {
		return nil, errors.InvalidArgument("learner_answer and correct_answer are required")
	}

	category, subtype := classifier.Classify(classifier.Mistake{
		Sentence:      create.Sentence,
		LearnerAnswer: create.LearnerAnswer,
		CorrectAnswer: create.CorrectAnswer,
		Acceptable:    create.Acceptable,
	}, create.CategoryHint)

	now := time.Now().Unix()
	point := &KnowledgePoint{
		UID:            shortuuid.New(),
		Version:        1,
		KeyPoint:       create.KeyPoint,
		Category:       category,
		Subtype:        subtype,
		Explanation:    create.Explanation,
		OriginalPhrase: create.LearnerAnswer,
		Correction:     create.CorrectAnswer,
		MasteryLevel:   0,
		MistakeCount:   1,
		CreatedTs:      now,
		LastSeenTs:     now,
		UpdatedTs:      now,
		Tags:           create.Tags,
		CustomNotes:    create.CustomNotes,
		Metadata:       create.Metadata,
	}
	originalError := &OriginalError{
		Sentence:      create.Sentence,
		LearnerAnswer: create.LearnerAnswer,
		CorrectAnswer: create.CorrectAnswer,
		CreatedTs:     now,
	}
	record := &VersionRecord{
		VersionNumber:  1,
		ChangedFields:  []string{"created"},
		PreviousValues: map[string]string{},
		ChangedTs:      now,
	}

	created, err := withBackendRetry(ctx, func(ctx context.Context) (*KnowledgePoint, error) {
		return s.driver.CreateKnowledgePoint(ctx, point, originalError, record)
	})
	if err != nil {
		return nil, err
	}

	s.caches.Invalidate(ctx, cache.CategoryKnowledgePoints, cache.CategorySearchResults, cache.CategoryStatistics)
	return created, nil
}

// Outcome is one subsequent review attempt of a knowledge point.
type Outcome struct {
	Sentence      string
	LearnerAnswer string
	CorrectAnswer string
	Correct       bool
}

// RecordOutcome appends the review example, recomputes mastery and the next
// review time and appends the version record, all atomically. Concurrent
// outcomes on the same point are serialized by the optimistic version check;
// neither increment is lost.
func (s *Store) RecordOutcome(ctx context.Context, uid string, outcome *Outcome) (*KnowledgePoint, error) {
	if strings.TrimSpace(outcome.Sentence) == "" {
		return nil, errors.InvalidArgument("sentence is required")
	}

	updated, err := s.mutate(ctx, uid, func(point *KnowledgePoint) (*UpdateKnowledgePoint, error) {
		if point.IsDeleted {
			return nil, errors.NotFound("knowledge point %s is deleted", uid)
		}

		now := time.Now()
		nowTs := now.Unix()

		mastery := s.reviewConfig.UpdateMastery(point.MasteryLevel, outcome.Correct, point.Category)
		nextReview := s.reviewConfig.NextReview(mastery, now).Unix()

		diff := newFieldDiff()
		diff.setFloat("mastery_level", point.MasteryLevel, mastery)
		diff.setInt64("last_seen", point.LastSeenTs, nowTs)
		diff.setNullableInt64("next_review", point.NextReviewTs, nextReview)

		update := &UpdateKnowledgePoint{
			ID:              point.ID,
			ExpectedVersion: point.Version,
			MasteryLevel:    &mastery,
			LastSeenTs:      &nowTs,
			NextReviewTs:    &nextReview,
			UpdatedTs:       nowTs,
			Example: &ReviewExample{
				PointID:       point.ID,
				Sentence:      outcome.Sentence,
				LearnerAnswer: outcome.LearnerAnswer,
				CorrectAnswer: outcome.CorrectAnswer,
				Correct:       outcome.Correct,
				CreatedTs:     nowTs,
			},
		}
		if outcome.Correct {
			count := point.CorrectCount + 1
			update.CorrectCount = &count
			diff.setInt32("correct_count", point.CorrectCount, count)
		} else {
			count := point.MistakeCount + 1
			update.MistakeCount = &count
			diff.setInt32("mistake_count", point.MistakeCount, count)
		}
		update.Record = diff.record(point.Version+1, nowTs)
		return update, nil
	})
	if err != nil {
		return nil, err
	}

	s.caches.Invalidate(ctx, cache.CategoryKnowledgePoints, cache.CategoryReviewCandidates, cache.CategoryStatistics)
	return updated, nil
}

// UpdateKnowledgePoint applies an explicit edit. A version record is appended
// only when at least one field actually changed.
func (s *Store) UpdateKnowledgePoint(ctx context.Context, uid string, patch *KnowledgePointPatch) (*KnowledgePoint, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}

	updated, err := s.mutate(ctx, uid, func(point *KnowledgePoint) (*UpdateKnowledgePoint, error) {
		if point.IsDeleted {
			return nil, errors.NotFound("knowledge point %s is deleted", uid)
		}

		nowTs := time.Now().Unix()
		diff := newFieldDiff()
		update := &UpdateKnowledgePoint{
			ID:              point.ID,
			ExpectedVersion: point.Version,
			UpdatedTs:       nowTs,
		}

		if v := patch.KeyPoint; v != nil && *v != point.KeyPoint {
			update.KeyPoint = v
			diff.setString("key_point", point.KeyPoint, *v)
		}
		if v := patch.Category; v != nil && *v != point.Category {
			update.Category = v
			diff.setString("category", string(point.Category), string(*v))
		}
		if v := patch.Subtype; v != nil && *v != point.Subtype {
			update.Subtype = v
			diff.setString("subtype", point.Subtype, *v)
		}
		if v := patch.Explanation; v != nil && *v != point.Explanation {
			update.Explanation = v
			diff.setString("explanation", point.Explanation, *v)
		}
		if v := patch.OriginalPhrase; v != nil && *v != point.OriginalPhrase {
			update.OriginalPhrase = v
			diff.setString("original_phrase", point.OriginalPhrase, *v)
		}
		if v := patch.Correction; v != nil && *v != point.Correction {
			update.Correction = v
			diff.setString("correction", point.Correction, *v)
		}
		if v := patch.MasteryLevel; v != nil && *v != point.MasteryLevel {
			update.MasteryLevel = v
			diff.setFloat("mastery_level", point.MasteryLevel, *v)
		}
		if v := patch.Tags; v != nil && !equalTags(*v, point.Tags) {
			update.Tags = v
			diff.setJSON("tags", point.Tags)
		}
		if v := patch.CustomNotes; v != nil && *v != point.CustomNotes {
			update.CustomNotes = v
			diff.setString("custom_notes", point.CustomNotes, *v)
		}
		if v := patch.Metadata; v != nil && !equalMetadata(*v, point.Metadata) {
			update.Metadata = v
			diff.setJSON("metadata", point.Metadata)
		}

		if diff.empty() {
			// Nothing changed: no version record, no write.
			return nil, nil
		}
		update.Record = diff.record(point.Version+1, nowTs)
		return update, nil
	})
	if err != nil {
		return nil, err
	}

	s.caches.Invalidate(ctx, cache.CategoryKnowledgePoints, cache.CategorySearchResults, cache.CategoryStatistics)
	return updated, nil
}

// SoftDeleteKnowledgePoint marks a point deleted. Reversible via restore.
// Returns false when the point was already deleted.
func (s *Store) SoftDeleteKnowledgePoint(ctx context.Context, uid string, reason string) (bool, error) {
	transitioned := false
	_, err := s.mutate(ctx, uid, func(point *KnowledgePoint) (*UpdateKnowledgePoint, error) {
		if point.IsDeleted {
			return nil, nil
		}
		transitioned = true

		nowTs := time.Now().Unix()
		deleted := true
		diff := newFieldDiff()
		diff.setBool("is_deleted", point.IsDeleted, deleted)
		diff.setString("deleted_reason", point.DeletedReason, reason)

		return &UpdateKnowledgePoint{
			ID:              point.ID,
			ExpectedVersion: point.Version,
			UpdatedTs:       nowTs,
			IsDeleted:       &deleted,
			DeletedTs:       &nowTs,
			DeletedReason:   &reason,
			Record:          diff.record(point.Version+1, nowTs),
		}, nil
	})
	if err != nil {
		return false, err
	}
	if transitioned {
		s.caches.Invalidate(ctx, cache.CategoryKnowledgePoints, cache.CategoryReviewCandidates, cache.CategorySearchResults, cache.CategoryStatistics)
	}
	return transitioned, nil
}

// RestoreKnowledgePoint reverses a soft delete. Returns false when the point
// was not deleted.
func (s *Store) RestoreKnowledgePoint(ctx context.Context, uid string) (bool, error) {
	transitioned := false
	_, err := s.mutate(ctx, uid, func(point *KnowledgePoint) (*UpdateKnowledgePoint, error) {
		if !point.IsDeleted {
			return nil, nil
		}
		transitioned = true

		nowTs := time.Now().Unix()
		deleted := false
		diff := newFieldDiff()
		diff.setBool("is_deleted", point.IsDeleted, deleted)
		diff.setString("deleted_reason", point.DeletedReason, "")

		return &UpdateKnowledgePoint{
			ID:              point.ID,
			ExpectedVersion: point.Version,
			UpdatedTs:       nowTs,
			IsDeleted:       &deleted,
			Record:          diff.record(point.Version+1, nowTs),
		}, nil
	})
	if err != nil {
		return false, err
	}
	if transitioned {
		s.caches.Invalidate(ctx, cache.CategoryKnowledgePoints, cache.CategoryReviewCandidates, cache.CategorySearchResults, cache.CategoryStatistics)
	}
	return transitioned, nil
}

// PurgeKnowledgePoint physically removes an already soft-deleted point and
// everything it owns. Administrative operation, outside the normal lifecycle.
func (s *Store) PurgeKnowledgePoint(ctx context.Context, uid string) error {
	point, err := s.findFresh(ctx, uid)
	if err != nil {
		return err
	}
	if !point.IsDeleted {
		return errors.InvalidArgument("knowledge point %s must be soft-deleted before purge", uid)
	}

	if _, err := withBackendRetry(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.driver.PurgeKnowledgePoint(ctx, point.ID)
	}); err != nil {
		return err
	}

	s.caches.Invalidate(ctx, cache.CategoryKnowledgePoints, cache.CategoryReviewCandidates, cache.CategorySearchResults, cache.CategoryStatistics)
	return nil
}

// GetKnowledgePoint returns one point by UID, soft-deleted points included.
func (s *Store) GetKnowledgePoint(ctx context.Context, uid string) (*KnowledgePoint, error) {
	value, err := s.caches.GetOrCompute(ctx, cache.CategoryKnowledgePoints, "point:"+uid, func(ctx context.Context) (any, error) {
		point, err := s.findFresh(ctx, uid)
		if err != nil {
			return nil, err
		}
		return point, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*KnowledgePoint), nil
}

// FindDueForReview returns the due queue: points whose next review is not in
// the future, soft-deleted excluded, weakest first.
func (s *Store) FindDueForReview(ctx context.Context, limit int) ([]*KnowledgePoint, error) {
	key := fmt.Sprintf("due:%d", limit)
	value, err := s.caches.GetOrCompute(ctx, cache.CategoryReviewCandidates, key, func(ctx context.Context) (any, error) {
		now := time.Now().Unix()
		points, err := withBackendRetry(ctx, func(ctx context.Context) ([]*KnowledgePoint, error) {
			return s.driver.ListKnowledgePoints(ctx, &FindKnowledgePoint{
				ExcludeDeleted: true,
				DueBefore:      &now,
			})
		})
		if err != nil {
			return nil, err
		}

		// The ordering lives here, not in the drivers, so every backend
		// produces the identical queue.
		sort.SliceStable(points, func(i, j int) bool {
			return review.CompareDue(queueEntry(points[i]), queueEntry(points[j])) < 0
		})
		if limit > 0 && len(points) > limit {
			points = points[:limit]
		}
		return points, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]*KnowledgePoint), nil
}

// SearchKnowledgePoints returns non-deleted points matching the keyword.
func (s *Store) SearchKnowledgePoints(ctx context.Context, keyword string) ([]*KnowledgePoint, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, errors.InvalidArgument("keyword is required")
	}

	key := "kw:" + strings.ToLower(keyword)
	value, err := s.caches.GetOrCompute(ctx, cache.CategorySearchResults, key, func(ctx context.Context) (any, error) {
		points, err := withBackendRetry(ctx, func(ctx context.Context) ([]*KnowledgePoint, error) {
			return s.driver.ListKnowledgePoints(ctx, &FindKnowledgePoint{
				ExcludeDeleted: true,
				Keyword:        &keyword,
			})
		})
		if err != nil {
			return nil, err
		}

		// Newest first, UID as the reproducible tie breaker.
		sort.SliceStable(points, func(i, j int) bool {
			if points[i].CreatedTs != points[j].CreatedTs {
				return points[i].CreatedTs > points[j].CreatedTs
			}
			return points[i].UID < points[j].UID
		})
		return points, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]*KnowledgePoint), nil
}

func queueEntry(point *KnowledgePoint) review.QueueEntry {
	entry := review.QueueEntry{
		Mastery:      point.MasteryLevel,
		MistakeCount: int(point.MistakeCount),
	}
	if point.NextReviewTs != nil {
		entry.NextReview = *point.NextReviewTs
	}
	return entry
}

// findFresh reads one point directly from the driver, bypassing the cache.
// Every mutation starts from a fresh read.
func (s *Store) findFresh(ctx context.Context, uid string) (*KnowledgePoint, error) {
	points, err := withBackendRetry(ctx, func(ctx context.Context) ([]*KnowledgePoint, error) {
		return s.driver.ListKnowledgePoints(ctx, &FindKnowledgePoint{UID: &uid})
	})
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, errors.NotFound("knowledge point %s not found", uid)
	}
	return points[0], nil
}

// mutate runs the fetch-build-update cycle for one point, retrying a bounded
// number of times when a concurrent writer advanced the version first. A nil
// update from build means nothing to do. Mutations on distinct points never
// contend with each other.
func (s *Store) mutate(ctx context.Context, uid string, build func(point *KnowledgePoint) (*UpdateKnowledgePoint, error)) (*KnowledgePoint, error) {
	var lastErr error
	for attempt := 0; attempt < conflictAttempts; attempt++ {
		point, err := s.findFresh(ctx, uid)
		if err != nil {
			return nil, err
		}

		update, err := build(point)
		if err != nil {
			return nil, err
		}
		if update == nil {
			return point, nil
		}

		updated, err := withBackendRetry(ctx, func(ctx context.Context) (*KnowledgePoint, error) {
			return s.driver.UpdateKnowledgePoint(ctx, update)
		})
		if err == nil {
			return updated, nil
		}
		if !errors.IsCode(err, errors.ErrCodeConflict) {
			return nil, err
		}
		metrics.Global().RecordConflictRetry()
		lastErr = err
	}
	return nil, lastErr
}

func (p *KnowledgePointPatch) validate() error {
	if v := p.KeyPoint; v != nil && strings.TrimSpace(*v) == "" {
		return errors.InvalidArgument("key_point must not be empty")
	}
	if v := p.Category; v != nil && !v.IsValid() {
		return errors.InvalidArgument("unknown category %q", string(*v))
	}
	if v := p.MasteryLevel; v != nil && (*v < 0 || *v > 1) {
		return errors.InvalidArgument("mastery_level %f out of range [0,1]", *v)
	}
	return nil
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalMetadata(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
