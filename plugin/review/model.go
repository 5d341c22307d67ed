// Package review provides the mastery scoring and spaced repetition
// scheduling for knowledge points.
package review

import (
	"time"
)

// Config contains the product-tuning parameters for mastery scoring and
// review scheduling. All values are overridable; the defaults below are the
// shipped tuning, not algorithmic requirements.
type Config struct {
	// Mastery increments applied on a correct outcome, per category.
	SystematicIncrement  float64
	IsolatedIncrement    float64
	OtherIncrement       float64
	EnhancementIncrement float64

	// IncorrectPenalty is subtracted on an incorrect outcome regardless of
	// category.
	IncorrectPenalty float64

	// Bucket boundaries on mastery_level, ascending.
	LowMasteryThreshold    float64 // below: very low mastery
	MediumMasteryThreshold float64 // below: low-to-medium mastery
	HighMasteryThreshold   float64 // below: medium-to-high; at or above: high

	// Review intervals for the four buckets, shortest first.
	ShortInterval  time.Duration
	MediumInterval time.Duration
	LongInterval   time.Duration
	MaxInterval    time.Duration
}

// DefaultConfig returns the shipped tuning.
func DefaultConfig() Config {
	return Config{
		SystematicIncrement:  0.25,
		IsolatedIncrement:    0.20,
		OtherIncrement:       0.15,
		EnhancementIncrement: 0.10,
		IncorrectPenalty:     0.10,

		LowMasteryThreshold:    0.3,
		MediumMasteryThreshold: 0.6,
		HighMasteryThreshold:   0.85,

		ShortInterval:  24 * time.Hour,
		MediumInterval: 3 * 24 * time.Hour,
		LongInterval:   7 * 24 * time.Hour,
		MaxInterval:    21 * 24 * time.Hour,
	}
}

// QueueEntry is the ordering key of one knowledge point in the due queue.
type QueueEntry struct {
	NextReview   int64 // unix seconds
	Mastery      float64
	MistakeCount int
}
