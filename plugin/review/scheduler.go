package review

import (
	"time"
)

// NextReview maps a mastery level into its interval bucket and returns the
// next review timestamp relative to now.
func (c Config) NextReview(mastery float64, now time.Time) time.Time {
	switch {
	case mastery < c.LowMasteryThreshold:
		return now.Add(c.ShortInterval)
	case mastery < c.MediumMasteryThreshold:
		return now.Add(c.MediumInterval)
	case mastery < c.HighMasteryThreshold:
		return now.Add(c.LongInterval)
	default:
		return now.Add(c.MaxInterval)
	}
}

// IsDue reports whether a point with the given next review timestamp is due.
// A nil timestamp means the first review was never scheduled; such points are
// not due.
func IsDue(nextReview *int64, now time.Time) bool {
	return nextReview != nil && *nextReview <= now.Unix()
}

// CompareDue orders two due-queue entries: next_review ascending, ties broken
// by mastery ascending (weakest first), further ties by mistake_count
// descending. Returns a negative value when a sorts before b, positive when
// after, zero when equal. Used with a stable sort so the ordering is
// reproducible for identical input sets.
func CompareDue(a, b QueueEntry) int {
	switch {
	case a.NextReview != b.NextReview:
		if a.NextReview < b.NextReview {
			return -1
		}
		return 1
	case a.Mastery != b.Mastery:
		if a.Mastery < b.Mastery {
			return -1
		}
		return 1
	case a.MistakeCount != b.MistakeCount:
		if a.MistakeCount > b.MistakeCount {
			return -1
		}
		return 1
	default:
		return 0
	}
}
