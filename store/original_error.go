package store

import (
	"context"

	"github.com/lexipoint/lexipoint/store/cache"
)

// OriginalError is the mistake that originated a knowledge point: the
// sentence, the learner's answer and the correct answer. Exactly one per
// point, immutable after creation.
type OriginalError struct {
	ID      int32
	PointID int32

	Sentence      string
	LearnerAnswer string
	CorrectAnswer string
	CreatedTs     int64
}

// KnowledgePointDetail bundles a point with its originating error and review
// history for detail reads.
type KnowledgePointDetail struct {
	Point         *KnowledgePoint
	OriginalError *OriginalError
	Examples      []*ReviewExample
}

// GetKnowledgePointDetail returns a point together with its original error
// and review examples, served through the knowledge point cache.
func (s *Store) GetKnowledgePointDetail(ctx context.Context, uid string) (*KnowledgePointDetail, error) {
	value, err := s.caches.GetOrCompute(ctx, cache.CategoryKnowledgePoints, "detail:"+uid, func(ctx context.Context) (any, error) {
		point, err := s.findFresh(ctx, uid)
		if err != nil {
			return nil, err
		}

		originalError, err := withBackendRetry(ctx, func(ctx context.Context) (*OriginalError, error) {
			return s.driver.GetOriginalError(ctx, point.ID)
		})
		if err != nil {
			return nil, err
		}

		examples, err := withBackendRetry(ctx, func(ctx context.Context) ([]*ReviewExample, error) {
			return s.driver.ListReviewExamples(ctx, &FindReviewExample{PointID: &point.ID})
		})
		if err != nil {
			return nil, err
		}

		return &KnowledgePointDetail{
			Point:         point,
			OriginalError: originalError,
			Examples:      examples,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*KnowledgePointDetail), nil
}
