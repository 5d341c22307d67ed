package review

import (
	"github.com/lexipoint/lexipoint/plugin/classifier"
)

// UpdateMastery returns the mastery level after one review outcome.
// The result is always clamped to [0, 1].
func (c Config) UpdateMastery(current float64, correct bool, category classifier.Category) float64 {
	if !correct {
		return clamp(current - c.IncorrectPenalty)
	}

	var increment float64
	switch category {
	case classifier.CategorySystematic:
		increment = c.SystematicIncrement
	case classifier.CategoryIsolated:
		increment = c.IsolatedIncrement
	case classifier.CategoryEnhancement:
		increment = c.EnhancementIncrement
	default:
		increment = c.OtherIncrement
	}
	return clamp(current + increment)
}

func clamp(mastery float64) float64 {
	if mastery < 0 {
		return 0
	}
	if mastery > 1 {
		return 1
	}
	return mastery
}
