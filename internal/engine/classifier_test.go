package engine_test

import (
	"testing"

	"github.com/engramlabs/engram/internal/engine"
	"github.com/engramlabs/engram/pkg/types"
)

func TestClassifyMemoryType(t *testing.T) {
	cases := []struct {
		content string
		want    types.MemoryType
	}{
		{"I love jazz", types.MemoryPreference},
		{"I really enjoy long walks on the beach", types.MemoryPreference},
		{"My favorite color is blue", types.MemoryPreference},
		{"I am a nurse", types.MemoryFact},
		{"My name is Alex", types.MemoryFact},
		{"I live in Lisbon", types.MemoryFact},
		{"I feel anxious about the move", types.MemoryEmotional},
		{"That concert made me so happy", types.MemoryEmotional},
		{"Please always answer in French", types.MemoryInstruction},
		{"Never mention my ex again", types.MemoryInstruction},
		{"Remember to keep responses short", types.MemoryInstruction},
		{"I went to the mountains last weekend", types.MemoryExperience},
		{"Yesterday we tried the new restaurant downtown", types.MemoryExperience},
		{"The weather is nice", types.MemoryGeneral},
		{"Coffee shops tend to be crowded on weekends", types.MemoryGeneral},
	}

	for _, tc := range cases {
		t.Run(tc.content, func(t *testing.T) {
			if got := engine.ClassifyMemoryType(tc.content); got != tc.want {
				t.Errorf("ClassifyMemoryType(%q) = %q, want %q", tc.content, got, tc.want)
			}
		})
	}
}

// Preference cues outrank every other family, so a sentence that is both a
// preference and a fact classifies as preference.
func TestClassifyPrecedence(t *testing.T) {
	got := engine.ClassifyMemoryType("I love jazz and I am a musician")
	if got != types.MemoryPreference {
		t.Errorf("expected preference to win precedence, got %q", got)
	}

	got = engine.ClassifyMemoryType("I am a nurse and I feel tired")
	if got != types.MemoryFact {
		t.Errorf("expected fact to outrank emotional, got %q", got)
	}
}

func TestClassifyIsTotal(t *testing.T) {
	for _, content := range []string{"", "xyzzy", "42", "..."} {
		got := engine.ClassifyMemoryType(content)
		if !types.IsValidMemoryType(got) {
			t.Errorf("ClassifyMemoryType(%q) returned invalid type %q", content, got)
		}
	}
}
