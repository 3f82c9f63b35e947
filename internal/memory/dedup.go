package memory

import (
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"

	"tutorgate/internal/vector"
)

const (
	// DefaultRatioThreshold is the sequence-similarity ratio at which two texts are duplicates.
	DefaultRatioThreshold = 0.92
	// DefaultScoreThreshold is the top vector similarity at which a candidate is a duplicate.
	DefaultScoreThreshold = 0.90

	// containment only counts when the shorter text is at least this many runes
	minContainmentLen = 12
)

var quoteStripper = strings.NewReplacer(`"`, "", "'", "", "`", "")

// Normalize strips quote characters, lowercases and collapses whitespace.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = quoteStripper.Replace(s)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

// IsTextDuplicate reports whether candidate duplicates any entry in existing.
// A threshold <= 0 uses DefaultRatioThreshold.
func IsTextDuplicate(candidate string, existing []string, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultRatioThreshold
	}
	c := Normalize(candidate)
	cRunes := splitRunes(c)
	for _, e := range existing {
		en := Normalize(e)
		if c == en {
			return true
		}
		if strings.Contains(en, c) || strings.Contains(c, en) {
			if min(utf8.RuneCountInString(c), utf8.RuneCountInString(en)) >= minContainmentLen {
				return true
			}
		}
		if similarity(cRunes, splitRunes(en)) >= threshold {
			return true
		}
	}
	return false
}

// IsVectorDuplicate looks only at the top match.
func IsVectorDuplicate(matches []vector.Match, threshold float32) bool {
	if len(matches) == 0 {
		return false
	}
	return IsScoreDuplicate(matches[0].Score, threshold)
}

// IsScoreDuplicate is the pure threshold decision. A threshold <= 0 uses DefaultScoreThreshold.
func IsScoreDuplicate(score, threshold float32) bool {
	if threshold <= 0 {
		threshold = DefaultScoreThreshold
	}
	return score >= threshold
}

// similarity is the Ratcliff/Obershelp ratio over runes.
func similarity(a, b []string) float64 {
	return difflib.NewMatcher(a, b).Ratio()
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
