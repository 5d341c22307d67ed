package store

import (
	"context"
	"time"

	"github.com/lexipoint/lexipoint/plugin/classifier"
	"github.com/lexipoint/lexipoint/plugin/review"
	"github.com/lexipoint/lexipoint/store/cache"
)

// Statistics are the aggregate numbers over all non-deleted knowledge points.
type Statistics struct {
	TotalPoints   int                         `json:"total_points"`
	ByCategory    map[classifier.Category]int `json:"by_category"`
	DueCount      int                         `json:"due_count"`
	MasteredCount int                         `json:"mastered_count"`

	AverageMastery float64 `json:"average_mastery"`
	TotalMistakes  int64   `json:"total_mistakes"`
	TotalCorrect   int64   `json:"total_correct"`
}

// GetStatistics computes the aggregate statistics, served through the
// statistics cache. Mastered means at or above the high mastery threshold.
func (s *Store) GetStatistics(ctx context.Context) (*Statistics, error) {
	value, err := s.caches.GetOrCompute(ctx, cache.CategoryStatistics, "all", func(ctx context.Context) (any, error) {
		points, err := withBackendRetry(ctx, func(ctx context.Context) ([]*KnowledgePoint, error) {
			return s.driver.ListKnowledgePoints(ctx, &FindKnowledgePoint{ExcludeDeleted: true})
		})
		if err != nil {
			return nil, err
		}

		now := time.Now()
		stats := &Statistics{
			TotalPoints: len(points),
			ByCategory:  make(map[classifier.Category]int),
		}

		var masterySum float64
		for _, point := range points {
			stats.ByCategory[point.Category]++
			masterySum += point.MasteryLevel
			stats.TotalMistakes += int64(point.MistakeCount)
			stats.TotalCorrect += int64(point.CorrectCount)

			if review.IsDue(point.NextReviewTs, now) {
				stats.DueCount++
			}
			if point.MasteryLevel >= s.reviewConfig.HighMasteryThreshold {
				stats.MasteredCount++
			}
		}
		if len(points) > 0 {
			stats.AverageMastery = masterySum / float64(len(points))
		}
		return stats, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Statistics), nil
}
