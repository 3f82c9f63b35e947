package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tutorgate/internal/models"
)

// ListCharacters returns active characters ordered by id.
func (s *Service) ListCharacters(ctx context.Context) ([]models.Character, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, persona_prompt, is_active FROM characters WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	var out []models.Character
	for rows.Next() {
		var c models.Character
		if err := rows.Scan(&c.ID, &c.Name, &c.PersonaPrompt, &c.IsActive); err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCharacter returns sql.ErrNoRows when missing.
func (s *Service) GetCharacter(ctx context.Context, id string) (*models.Character, error) {
	var c models.Character
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, persona_prompt, is_active FROM characters WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.PersonaPrompt, &c.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get character: %w", err)
	}
	return &c, nil
}

// UpsertCharacter inserts or replaces a character.
func (s *Service) UpsertCharacter(ctx context.Context, c models.Character) error {
	found, err := s.exists(ctx, "characters", c.ID)
	if err != nil {
		return err
	}
	if found {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE characters SET name = ?, persona_prompt = ?, is_active = ? WHERE id = ?`,
			c.Name, c.PersonaPrompt, c.IsActive, c.ID,
		); err != nil {
			return fmt.Errorf("update character: %w", err)
		}
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO characters (id, name, persona_prompt, is_active) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.PersonaPrompt, c.IsActive,
	); err != nil {
		return fmt.Errorf("insert character: %w", err)
	}
	return nil
}

const scenarioColumns = `id, name, scenario_prompt, first_message, story, outline, goal, is_active`

func scanScenario(row rowScanner) (*models.Scenario, error) {
	var sc models.Scenario
	if err := row.Scan(&sc.ID, &sc.Name, &sc.ScenarioPrompt, &sc.FirstMessage, &sc.Story, &sc.Outline, &sc.Goal, &sc.IsActive); err != nil {
		return nil, err
	}
	return &sc, nil
}

// ListScenarios returns active scenarios ordered by id.
func (s *Service) ListScenarios(ctx context.Context) ([]models.Scenario, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scenarioColumns+` FROM scenarios WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close()

	var out []models.Scenario
	for rows.Next() {
		sc, err := scanScenario(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

// GetScenario returns sql.ErrNoRows when missing.
func (s *Service) GetScenario(ctx context.Context, id string) (*models.Scenario, error) {
	sc, err := scanScenario(s.db.QueryRowContext(ctx,
		`SELECT `+scenarioColumns+` FROM scenarios WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get scenario: %w", err)
	}
	return sc, nil
}

// UpsertScenario inserts or replaces a scenario.
func (s *Service) UpsertScenario(ctx context.Context, sc models.Scenario) error {
	found, err := s.exists(ctx, "scenarios", sc.ID)
	if err != nil {
		return err
	}
	if found {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE scenarios SET name = ?, scenario_prompt = ?, first_message = ?, story = ?, outline = ?, goal = ?, is_active = ?
			 WHERE id = ?`,
			sc.Name, sc.ScenarioPrompt, sc.FirstMessage, sc.Story, sc.Outline, sc.Goal, sc.IsActive, sc.ID,
		); err != nil {
			return fmt.Errorf("update scenario: %w", err)
		}
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO scenarios (`+scenarioColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.Name, sc.ScenarioPrompt, sc.FirstMessage, sc.Story, sc.Outline, sc.Goal, sc.IsActive,
	); err != nil {
		return fmt.Errorf("insert scenario: %w", err)
	}
	return nil
}

// exists is only called with the fixed catalog table names above.
func (s *Service) exists(ctx context.Context, table, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup %s: %w", table, err)
	}
	return n > 0, nil
}
