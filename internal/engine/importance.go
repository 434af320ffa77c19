package engine

import (
	"regexp"
	"strings"

	"github.com/engramlabs/engram/pkg/types"
)

// Base importance weight per memory type. Instructions and facts carry the
// most weight; ambient context the least.
var typeWeights = map[types.MemoryType]float64{
	types.MemoryInstruction: 0.9,
	types.MemoryFact:        0.8,
	types.MemoryPreference:  0.75,
	types.MemoryEmotional:   0.7,
	types.MemoryExperience:  0.6,
	types.MemoryGeneral:     0.5,
	types.MemoryContext:     0.4,
}

// Specificity signals. Every distinct match contributes +0.05; repeating
// the same literal does not. Accumulation is unbounded, the final clamp
// bounds the score.
var specificityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(19|20)\d{2}\b`),                                        // 4-digit year
	regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}([/-]\d{2,4})?\b`),                    // short date
	regexp.MustCompile(`\s[A-Z][a-z]+`),                                           // capitalized word mid-sentence
	regexp.MustCompile(`(?i)\b\d+\s+(minute|hour|day|week|month|year|decade)s?\b`), // duration phrase
}

// ScoreImportance computes the initial importance score for a memory from
// its content and classified type. The result is always in [0.1, 1.0].
func ScoreImportance(content string, memoryType types.MemoryType) float64 {
	score, ok := typeWeights[memoryType]
	if !ok {
		score = typeWeights[types.MemoryGeneral]
	}

	words := len(strings.Fields(content))
	if words > 50 {
		score += 0.1
	} else if words < 10 {
		score -= 0.1
	}

	for _, pattern := range specificityPatterns {
		seen := make(map[string]struct{})
		for _, match := range pattern.FindAllString(content, -1) {
			seen[match] = struct{}{}
		}
		score += 0.05 * float64(len(seen))
	}

	if strings.Contains(content, "?") {
		score += 0.05
	}

	return clampImportance(score)
}

// clampImportance bounds a score to the valid importance range [0.1, 1.0].
func clampImportance(score float64) float64 {
	if score < 0.1 {
		return 0.1
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
