// Package classifier maps a learner mistake to a category and subtype.
package classifier

import (
	"log/slog"
	"regexp"
	"strings"
)

// Category classifies how a knowledge point was missed.
type Category string

const (
	// CategorySystematic marks a recurring grammar-rule violation.
	CategorySystematic Category = "systematic"
	// CategoryIsolated marks a single lexical or collocation substitution.
	CategoryIsolated Category = "isolated"
	// CategoryEnhancement marks an acceptable answer that could read better.
	CategoryEnhancement Category = "enhancement"
	// CategoryOther marks everything the rules cannot place.
	CategoryOther Category = "other"
)

// AllCategories lists every valid category.
var AllCategories = []Category{CategorySystematic, CategoryIsolated, CategoryEnhancement, CategoryOther}

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	switch c {
	case CategorySystematic, CategoryIsolated, CategoryEnhancement, CategoryOther:
		return true
	}
	return false
}

// Mistake describes the mismatch between a learner's answer and the correct
// answer, as handed over by the grading collaborator.
type Mistake struct {
	Sentence      string
	LearnerAnswer string
	CorrectAnswer string
	// Acceptable is set by the grader when the learner's answer was not wrong,
	// only improvable.
	Acceptable bool
}

// grammarSignatures match the rule-level patterns that indicate a systematic
// error: tense, agreement, article and preposition slips show up as a change
// in a closed-class word or a verb inflection.
var grammarSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(a|an|the)\b`),
	regexp.MustCompile(`(?i)\b(is|are|was|were|be|been|being|am)\b`),
	regexp.MustCompile(`(?i)\b(has|have|had|do|does|did)\b`),
	regexp.MustCompile(`(?i)\b(in|on|at|to|for|of|with|by|from)\b`),
	regexp.MustCompile(`(?i)(ed|ing|s|es)$`),
}

// subtype labels paired with the signature at the same index.
var signatureSubtypes = []string{
	"article",
	"be-verb",
	"auxiliary",
	"preposition",
	"inflection",
}

// Classify maps a mistake to (category, subtype). Deterministic for identical
// input: no randomness, no hidden state.
//
// A category hint from the external collaborator is respected unless it names
// an unknown category, in which case the rule-based result is used and the
// violation is logged as a recoverable data-quality event.
func Classify(mistake Mistake, hint string) (Category, string) {
	category, subtype := classify(mistake)

	if hint == "" {
		return category, subtype
	}
	hinted := Category(strings.ToLower(strings.TrimSpace(hint)))
	if !hinted.IsValid() {
		slog.Warn("ignoring invalid category hint",
			"hint", hint,
			"fallback", string(category))
		return category, subtype
	}
	return hinted, subtype
}

func classify(mistake Mistake) (Category, string) {
	if mistake.Acceptable {
		return CategoryEnhancement, "style"
	}

	learner := tokenize(mistake.LearnerAnswer)
	correct := tokenize(mistake.CorrectAnswer)

	missing, extra := diffTokens(learner, correct)
	if len(missing) == 0 && len(extra) == 0 {
		// No token-level difference the rules can see.
		return CategoryOther, "unclassified"
	}

	// Grammar-rule signature match on any changed token wins.
	for _, token := range append(append([]string{}, missing...), extra...) {
		for i, signature := range grammarSignatures {
			if signature.MatchString(token) {
				return CategorySystematic, signatureSubtypes[i]
			}
		}
	}

	// One word swapped for another is a lexical slip.
	if len(missing) <= 1 && len(extra) <= 1 {
		return CategoryIsolated, "word-choice"
	}

	return CategoryOther, "unclassified"
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(s)))
}

// diffTokens returns the tokens the learner is missing from the correct
// answer and the extra tokens the learner added, in input order, so the
// result is reproducible.
func diffTokens(learner, correct []string) (missing, extra []string) {
	learnerSet := make(map[string]int, len(learner))
	for _, t := range learner {
		learnerSet[t]++
	}
	correctSet := make(map[string]int, len(correct))
	for _, t := range correct {
		correctSet[t]++
	}

	for _, t := range correct {
		if learnerSet[t] == 0 {
			missing = append(missing, t)
		} else {
			learnerSet[t]--
		}
	}
	for _, t := range learner {
		if correctSet[t] == 0 {
			extra = append(extra, t)
		} else {
			correctSet[t]--
		}
	}
	return missing, extra
}
