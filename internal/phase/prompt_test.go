package phase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"tutorgate/internal/models"
)

func baseInput() PromptInput {
	return PromptInput{
		Character: models.Character{ID: "char_a", Name: "Momo", PersonaPrompt: "A gentle rabbit."},
		Scenario: models.Scenario{
			ID: "scn_qa", Name: "Sharing", ScenarioPrompt: "Ask about sharing toys.",
			Story: "Two brothers and one ball.", Outline: "Learn to share.", Goal: "Value sharing",
		},
		Phase:    Intro,
		Language: "Korean",
	}
}

func TestBuildSystemPromptSections(t *testing.T) {
	in := baseInput()
	got := BuildSystemPrompt(in)

	assert.Contains(t, got, "- Name: Momo")
	assert.Contains(t, got, "- Persona: A gentle rabbit.")
	assert.Contains(t, got, "- Title: Sharing")
	assert.Contains(t, got, "Reply in Korean.")
	assert.Contains(t, got, "Ask about sharing toys.")
	assert.Contains(t, got, "[Current phase: INTRO]")
	assert.NotContains(t, got, "[User Profile]")
	assert.NotContains(t, got, "[Personal Memory]")
}

func TestBuildSystemPromptProfileAndMemories(t *testing.T) {
	in := baseInput()
	in.Phase = Guide
	in.Profile = &models.Profile{Tone: "playful", AgeBand: "7-9"}
	in.Memories = []string{"Has a younger brother", "Likes soccer"}
	got := BuildSystemPrompt(in)

	profile := strings.Index(got, "[User Profile]\n- tone: playful\n- age_band: 7-9")
	memory := strings.Index(got, "[Personal Memory]\n- Has a younger brother\n- Likes soccer")
	block := strings.Index(got, "[Current phase: GUIDE]")
	assert.True(t, profile > 0 && memory > profile && block > memory, got)
	assert.NotContains(t, got, "- goal:")
}

func TestBuildSystemPromptEmptyProfileOmitted(t *testing.T) {
	in := baseInput()
	in.Profile = &models.Profile{}
	assert.NotContains(t, BuildSystemPrompt(in), "[User Profile]")
}

func TestBuildSystemPromptPhaseBlocks(t *testing.T) {
	in := baseInput()
	for p, marker := range map[Phase]string{
		Intro:          "[Current phase: INTRO]",
		Guide:          "[Current phase: GUIDE]",
		Reflection:     "[Current phase: REFLECTION]",
		Wrap:           "[Current phase: WRAP]",
		Phase("bogus"): "[Current phase: GUIDE]",
	} {
		in.Phase = p
		got := BuildSystemPrompt(in)
		assert.True(t, strings.HasSuffix(got, phaseBlock(p)), "phase %s", p)
		assert.Contains(t, got, marker)
	}
}
