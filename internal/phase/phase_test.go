package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	assert.Equal(t, Intro, Parse(""))
	assert.Equal(t, Intro, Parse("  "))
	assert.Equal(t, Guide, Parse("guide"))
}

func TestBeforeGenerationTurnCount(t *testing.T) {
	got, changed := BeforeGeneration(Guide, 6, "tell me more")
	assert.True(t, changed)
	assert.Equal(t, Reflection, got)

	got, changed = BeforeGeneration(Guide, 5, "tell me more")
	assert.False(t, changed)
	assert.Equal(t, Guide, got)
}

func TestBeforeGenerationKeyword(t *testing.T) {
	for _, text := range []string{
		"오늘 배운 걸 정리해줘",
		"Can you SUMMARIZE this?",
		"I think I realised something",
		"let's wrap up",
	} {
		got, changed := BeforeGeneration(Guide, 0, text)
		assert.True(t, changed, text)
		assert.Equal(t, Reflection, got, text)
	}
}

func TestBeforeGenerationOnlyFromGuide(t *testing.T) {
	for _, p := range []Phase{Intro, Reflection, Wrap} {
		got, changed := BeforeGeneration(p, 10, "summary please")
		assert.False(t, changed)
		assert.Equal(t, p, got)
	}
}

func TestAfterGeneration(t *testing.T) {
	cases := []struct {
		stored    string
		effective Phase
		want      Phase
		changed   bool
	}{
		{"", Intro, Guide, true},
		{"intro", Intro, Guide, true},
		{"guide", Reflection, Wrap, true},
		{"guide", Guide, Guide, false},
		{"wrap", Wrap, Wrap, false},
	}
	for _, tc := range cases {
		got, changed := AfterGeneration(tc.stored, tc.effective)
		assert.Equal(t, tc.want, got, "stored=%q effective=%s", tc.stored, tc.effective)
		assert.Equal(t, tc.changed, changed)
	}
}

func TestHasClosureKeyword(t *testing.T) {
	assert.False(t, HasClosureKeyword(""))
	assert.False(t, HasClosureKeyword("what is a rabbit?"))
	assert.True(t, HasClosureKeyword("결론은 뭐야"))
}
