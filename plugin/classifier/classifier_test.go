package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_GrammarSignature(t *testing.T) {
	tests := []struct {
		name    string
		mistake Mistake
		subtype string
	}{
		{
			name: "article",
			mistake: Mistake{
				Sentence:      "I saw ___ elephant.",
				LearnerAnswer: "a elephant",
				CorrectAnswer: "an elephant",
			},
			subtype: "article",
		},
		{
			name: "be-verb agreement",
			mistake: Mistake{
				Sentence:      "They ___ happy.",
				LearnerAnswer: "they is happy",
				CorrectAnswer: "they are happy",
			},
			subtype: "be-verb",
		},
		{
			name: "preposition",
			mistake: Mistake{
				Sentence:      "I arrived ___ Monday.",
				LearnerAnswer: "arrived in monday",
				CorrectAnswer: "arrived on monday",
			},
			subtype: "preposition",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category, subtype := Classify(tt.mistake, "")
			assert.Equal(t, CategorySystematic, category)
			assert.Equal(t, tt.subtype, subtype)
		})
	}
}

func TestClassify_SingleSubstitutionIsIsolated(t *testing.T) {
	category, subtype := Classify(Mistake{
		LearnerAnswer: "make a photo",
		CorrectAnswer: "take a photo",
	}, "")

	assert.Equal(t, CategoryIsolated, category)
	assert.Equal(t, "word-choice", subtype)
}

func TestClassify_AcceptableIsEnhancement(t *testing.T) {
	category, subtype := Classify(Mistake{
		LearnerAnswer: "very good",
		CorrectAnswer: "excellent",
		Acceptable:    true,
	}, "")

	assert.Equal(t, CategoryEnhancement, category)
	assert.Equal(t, "style", subtype)
}

func TestClassify_UnmatchedFallsBackToOther(t *testing.T) {
	category, _ := Classify(Mistake{
		LearnerAnswer: "alpha beta gamma",
		CorrectAnswer: "delta kappa zeta",
	}, "")

	assert.Equal(t, CategoryOther, category)
}

func TestClassify_IdenticalAnswersAreOther(t *testing.T) {
	category, subtype := Classify(Mistake{
		LearnerAnswer: "same answer",
		CorrectAnswer: "same answer",
	}, "")

	assert.Equal(t, CategoryOther, category)
	assert.Equal(t, "unclassified", subtype)
}

func TestClassify_HintWins(t *testing.T) {
	category, _ := Classify(Mistake{
		LearnerAnswer: "make a photo",
		CorrectAnswer: "take a photo",
	}, "systematic")

	assert.Equal(t, CategorySystematic, category)
}

func TestClassify_InvalidHintFallsBackToRule(t *testing.T) {
	category, _ := Classify(Mistake{
		LearnerAnswer: "make a photo",
		CorrectAnswer: "take a photo",
	}, "bogus-category")

	assert.Equal(t, CategoryIsolated, category)
}

func TestClassify_Deterministic(t *testing.T) {
	mistake := Mistake{
		LearnerAnswer: "they is happy",
		CorrectAnswer: "they are happy",
	}

	firstCategory, firstSubtype := Classify(mistake, "")
	for i := 0; i < 10; i++ {
		category, subtype := Classify(mistake, "")
		assert.Equal(t, firstCategory, category)
		assert.Equal(t, firstSubtype, subtype)
	}
}

func TestCategory_IsValid(t *testing.T) {
	for _, c := range AllCategories {
		assert.True(t, c.IsValid())
	}
	assert.False(t, Category("bogus").IsValid())
	assert.False(t, Category("").IsValid())
}
