package store

import (
	"context"
)

// ReviewExample is one subsequent review attempt of a knowledge point. The
// list only grows: entries are never edited or removed.
type ReviewExample struct {
	ID      int32
	PointID int32

	Sentence      string
	LearnerAnswer string
	CorrectAnswer string
	Correct       bool
	CreatedTs     int64
}

// FindReviewExample is the find condition for review examples.
type FindReviewExample struct {
	PointID *int32
	Limit   *int
}

// ListReviewExamples returns a point's review attempts, oldest first.
func (s *Store) ListReviewExamples(ctx context.Context, uid string) ([]*ReviewExample, error) {
	point, err := s.findFresh(ctx, uid)
	if err != nil {
		return nil, err
	}
	return withBackendRetry(ctx, func(ctx context.Context) ([]*ReviewExample, error) {
		return s.driver.ListReviewExamples(ctx, &FindReviewExample{PointID: &point.ID})
	})
}
