package store

import (
	"context"
	"fmt"

	"tutorgate/internal/models"
)

var seedCharacters = []models.Character{
	{
		ID:   "char_a",
		Name: "Character A",
		PersonaPrompt: "You are Character A. You speak concisely and politely. " +
			"You act as a coach who helps the user reach their goal. " +
			"When you do not know something you say so, and you mark guesses as guesses.",
		IsActive: true,
	},
	{
		ID:   "char_b",
		Name: "Character B",
		PersonaPrompt: "You are Character B. You speak warmly and with empathy. " +
			"You put the user's feelings first and check context with short questions.",
		IsActive: true,
	},
}

var seedScenarios = []models.Scenario{
	{
		ID:             "scn_qa",
		Name:           "Basic Q&A",
		ScenarioPrompt: "Answer the user's questions accurately and briefly. Ask at most one follow-up question when needed.",
		FirstMessage:   "Hello. What can I help you with?",
		IsActive:       true,
	},
	{
		ID:             "scn_coach",
		Name:           "Coaching",
		ScenarioPrompt: "Confirm the user's goal, then break it into steps they can act on.",
		FirstMessage:   "Hello. Which goal shall we sort out together today?",
		Goal:           "Leave the session with one concrete next step.",
		IsActive:       true,
	},
}

// CatalogWriter accepts catalog rows. *Service and *catalog.Cache both
// satisfy it; seeding through the cache keeps its layers fresh.
type CatalogWriter interface {
	UpsertCharacter(ctx context.Context, c models.Character) error
	UpsertScenario(ctx context.Context, sc models.Scenario) error
}

// SeedCatalog upserts the minimum catalog needed to open a session.
func SeedCatalog(ctx context.Context, w CatalogWriter) error {
	for _, c := range seedCharacters {
		if err := w.UpsertCharacter(ctx, c); err != nil {
			return fmt.Errorf("seed character %s: %w", c.ID, err)
		}
	}
	for _, sc := range seedScenarios {
		if err := w.UpsertScenario(ctx, sc); err != nil {
			return fmt.Errorf("seed scenario %s: %w", sc.ID, err)
		}
	}
	return nil
}
