// Package phase holds the session phase machine and system prompt rendering.
package phase

import (
	"strings"

	"github.com/coregx/ahocorasick"
)

type Phase string

const (
	Intro      Phase = "intro"
	Guide      Phase = "guide"
	Reflection Phase = "reflection"
	Wrap       Phase = "wrap"
)

// ReflectAfterTurns is the number of prior user turns in guide that forces reflection.
const ReflectAfterTurns = 6

// ClosureKeywords move a guide session into reflection when the user text contains one.
var ClosureKeywords = []string{
	"정리", "결론", "오늘 배운", "깨달", "요약",
	"summary", "summarize", "conclusion", "what i learned today",
	"realized", "realised", "wrap-up", "wrap up",
}

var closureMatcher = mustBuildMatcher(ClosureKeywords)

func mustBuildMatcher(keywords []string) *ahocorasick.Automaton {
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	ac, err := ahocorasick.NewBuilder().
		AddStrings(lowered).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		panic("phase: build closure matcher: " + err.Error())
	}
	return ac
}

// Parse maps a stored phase to a Phase. Empty means intro; unknown values pass through.
func Parse(stored string) Phase {
	stored = strings.TrimSpace(stored)
	if stored == "" {
		return Intro
	}
	return Phase(stored)
}

// HasClosureKeyword reports whether text asks to wrap up.
func HasClosureKeyword(text string) bool {
	if text == "" {
		return false
	}
	return len(closureMatcher.FindAllOverlapping([]byte(strings.ToLower(text)))) > 0
}

// BeforeGeneration applies the pre-generation transition. Only guide can move,
// and only to reflection.
func BeforeGeneration(current Phase, priorUserTurns int, text string) (Phase, bool) {
	if current != Guide {
		return current, false
	}
	if priorUserTurns >= ReflectAfterTurns || HasClosureKeyword(text) {
		return Reflection, true
	}
	return current, false
}

// AfterGeneration returns the phase to persist once a reply has completed.
// stored is the raw value read before the turn; effective is the phase used for the prompt.
func AfterGeneration(stored string, effective Phase) (Phase, bool) {
	s := strings.TrimSpace(stored)
	switch {
	case effective == Intro && (s == "" || Phase(s) == Intro):
		return Guide, true
	case effective == Reflection:
		return Wrap, true
	}
	return effective, false
}
