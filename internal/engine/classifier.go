package engine

import (
	"regexp"

	"github.com/engramlabs/engram/pkg/types"
)

// Lexical cues for each memory type. Precedence when several families match:
// preference > fact > emotional > instruction > experience > general. The
// ordering matters because the classified type selects the base importance
// weight.
var (
	preferencePattern = regexp.MustCompile(`(?i)\b(i (really |absolutely )?(love|like|enjoy|prefer|hate|dislike|adore|can't stand|cannot stand)|my favou?rite|i'?d rather)\b`)

	factPattern = regexp.MustCompile(`(?i)\b(i am|i'?m|my name is|i work|i live|i was born|i speak|i own|my (wife|husband|partner|son|daughter|dog|cat|job|birthday) is)\b`)

	emotionalPattern = regexp.MustCompile(`(?i)\b(i feel|i felt|feeling|makes me|made me|happy|sad|angry|anxious|excited|scared|worried|frustrated|proud|grateful)\b`)

	instructionPattern = regexp.MustCompile(`(?i)\b(please|always|never|remember to|make sure|don'?t|do not|you should|from now on|stop)\b`)

	experiencePattern = regexp.MustCompile(`(?i)\b(i went|i visited|i tried|i met|i saw|i attended|we went|we did|yesterday|last (week|month|year|night)|when i was)\b`)
)

// ClassifyMemoryType assigns a memory type from lexical cues in the content.
// Pure and total; content with no matching cue is classified as general.
func ClassifyMemoryType(content string) types.MemoryType {
	switch {
	case preferencePattern.MatchString(content):
		return types.MemoryPreference
	case factPattern.MatchString(content):
		return types.MemoryFact
	case emotionalPattern.MatchString(content):
		return types.MemoryEmotional
	case instructionPattern.MatchString(content):
		return types.MemoryInstruction
	case experiencePattern.MatchString(content):
		return types.MemoryExperience
	default:
		return types.MemoryGeneral
	}
}
