package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tutorgate/internal/models"
)

const sessionColumns = `id, user_id, character_id, scenario_id, phase, status, created_at, updated_at, ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		sess    models.Session
		userID  sql.NullString
		endedAt sql.NullTime
	)
	if err := row.Scan(&sess.ID, &userID, &sess.CharacterID, &sess.ScenarioID, &sess.Phase, &sess.Status,
		&sess.CreatedAt, &sess.UpdatedAt, &endedAt); err != nil {
		return nil, err
	}
	sess.UserID = userID.String
	if endedAt.Valid {
		t := endedAt.Time
		sess.EndedAt = &t
	}
	return &sess, nil
}

// CreateSession opens an active session in the intro phase. userID may be empty.
func (s *Service) CreateSession(ctx context.Context, userID, characterID, scenarioID string) (*models.Session, error) {
	if characterID == "" || scenarioID == "" {
		return nil, errors.New("character_id and scenario_id are required")
	}
	now := time.Now().UTC()
	sess := &models.Session{
		ID:          NewID(),
		UserID:      userID,
		CharacterID: characterID,
		ScenarioID:  scenarioID,
		Phase:       "intro",
		Status:      models.SessionActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, character_id, scenario_id, phase, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, nullString(userID), characterID, scenarioID, sess.Phase, sess.Status, now, now,
	); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// GetSession returns sql.ErrNoRows for unknown ids.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns a user's sessions, most recently active first.
func (s *Service) ListSessions(ctx context.Context, userID string, limit int) ([]models.Session, error) {
	limit = clampLimit(limit, 50, 200)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? ORDER BY updated_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// UpdatePhase stores the session phase.
func (s *Service) UpdatePhase(ctx context.Context, sessionID, phase string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET phase = ?, updated_at = ? WHERE id = ?`,
		phase, time.Now().UTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("update session phase: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// EndSession marks the session ended. Ending twice returns ErrSessionEnded.
func (s *Service) EndSession(ctx context.Context, sessionID string) (*models.Session, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == models.SessionEnded {
		return sess, ErrSessionEnded
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, ended_at = ?, updated_at = ? WHERE id = ?`,
		models.SessionEnded, now, now, sessionID,
	); err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}
	sess.Status = models.SessionEnded
	sess.EndedAt = &now
	sess.UpdatedAt = now
	return sess, nil
}
