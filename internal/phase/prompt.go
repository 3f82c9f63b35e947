package phase

import (
	"fmt"
	"strings"

	"tutorgate/internal/models"
)

// PromptInput is everything the system prompt depends on.
type PromptInput struct {
	Character models.Character
	Scenario  models.Scenario
	Phase     Phase
	Profile   *models.Profile
	Memories  []string
	Language  string
}

const introBlock = `[Current phase: INTRO]
Follow this output format exactly, in this order.

Output format:
1) [Overview] explain the scenario simply in 3 to 5 short sentences
2) [Today's goal] one sentence
3) [Question] exactly one question for the child (one sentence)

Notes:
- Ask only one question.
- Do not give the answer yet; let the child think it through.`

const guideBlock = `[Current phase: GUIDE]
- Lead with questions and empathy in the character's persona.
- Summarize the child's answer in one sentence, then ask exactly one next question.
- Steer the child toward discovering the value behind the goal (sharing, caring, kindness) by themselves.`

const reflectionBlock = `[Current phase: REFLECTION]
Follow this output format exactly.

Output format:
1) [Today's insight] one or two values the child discovered, in 2 to 3 simple lines
2) [Try tomorrow] one small action the child can take in real life
3) [Question] one question asking how the child felt today

Notes:
- Do not lecture; start from what the child said.
- Ask only one question.`

const wrapBlock = `[Current phase: WRAP]
Close briefly.
- Two-line recap of today's conversation
- One line of praise
- One line offering to continue with another story next time`

// BuildSystemPrompt renders the system prompt for one turn.
func BuildSystemPrompt(in PromptInput) string {
	cname := firstNonEmpty(in.Character.Name, in.Character.ID, "Character")
	sname := firstNonEmpty(in.Scenario.Name, in.Scenario.ID, "Scenario")
	lang := firstNonEmpty(in.Language, "English")

	var b strings.Builder
	b.WriteString("You are a conversational learning guide who helps children.\n\n")

	b.WriteString("[Character]\n")
	fmt.Fprintf(&b, "- Name: %s\n", cname)
	fmt.Fprintf(&b, "- Persona: %s\n\n", in.Character.PersonaPrompt)

	b.WriteString("[Scenario]\n")
	fmt.Fprintf(&b, "- Title: %s\n", sname)
	fmt.Fprintf(&b, "- Story (reference): %s\n", in.Scenario.Story)
	fmt.Fprintf(&b, "- Outline (explain to the user): %s\n", in.Scenario.Outline)
	fmt.Fprintf(&b, "- Learning goal: %s\n\n", in.Scenario.Goal)

	b.WriteString("[Common rules]\n")
	fmt.Fprintf(&b, "- Reply in %s.\n", lang)
	b.WriteString("- Ask only one question per turn.\n")
	b.WriteString("- Respect the child's answers; never judge or blame.\n")
	b.WriteString("- Keep replies short.\n")
	b.WriteString("- If the user drifts off topic, gently steer back to the scenario goal.\n\n")

	b.WriteString("[Scenario flow rules]\n")
	b.WriteString(strings.TrimSpace(in.Scenario.ScenarioPrompt))

	if lines := profileLines(in.Profile); len(lines) > 0 {
		b.WriteString("\n\n[User Profile]\n")
		b.WriteString(strings.Join(lines, "\n"))
	}

	if len(in.Memories) > 0 {
		b.WriteString("\n\n[Personal Memory]")
		for _, m := range in.Memories {
			b.WriteString("\n- ")
			b.WriteString(m)
		}
	}

	b.WriteString("\n\n")
	b.WriteString(phaseBlock(in.Phase))
	return b.String()
}

func phaseBlock(p Phase) string {
	switch p {
	case Intro:
		return introBlock
	case Reflection:
		return reflectionBlock
	case Wrap:
		return wrapBlock
	default:
		return guideBlock
	}
}

func profileLines(p *models.Profile) []string {
	if p == nil {
		return nil
	}
	var lines []string
	for _, kv := range [][2]string{
		{"tone", p.Tone},
		{"goal", p.Goal},
		{"expertise", p.Expertise},
		{"age_band", p.AgeBand},
	} {
		if v := strings.TrimSpace(kv[1]); v != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", kv[0], v))
		}
	}
	return lines
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
