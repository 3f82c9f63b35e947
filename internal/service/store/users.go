package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tutorgate/internal/models"
)

// CreateUser inserts a user with an already hashed password.
func (s *Service) CreateUser(ctx context.Context, userID, passwordHash string) (*models.User, error) {
	if _, err := s.GetUser(ctx, userID); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, password_hash, created_at) VALUES (?, ?, ?)`,
		userID, passwordHash, now,
	); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &models.User{ID: userID, PasswordHash: passwordHash, CreatedAt: now}, nil
}

// GetUser returns sql.ErrNoRows when the user is unknown.
func (s *Service) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash, tone, goal, expertise, age_band, created_at FROM users WHERE id = ?`,
		userID,
	).Scan(&u.ID, &u.PasswordHash, &u.Profile.Tone, &u.Profile.Goal, &u.Profile.Expertise, &u.Profile.AgeBand, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetProfile returns an empty profile for unknown users.
func (s *Service) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Profile{}, nil
		}
		return models.Profile{}, err
	}
	return u.Profile, nil
}

// UpsertProfile writes profile fields, creating a credential-less user when missing.
// Nil fields keep their stored value.
func (s *Service) UpsertProfile(ctx context.Context, userID string, tone, goal, expertise, ageBand *string) (*models.User, error) {
	existing, err := s.GetUser(ctx, userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if existing == nil {
		existing = &models.User{ID: userID, CreatedAt: time.Now().UTC()}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO users (id, password_hash, created_at) VALUES (?, '', ?)`,
			userID, existing.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("create profile user: %w", err)
		}
	}
	apply := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	p := &existing.Profile
	apply(&p.Tone, tone)
	apply(&p.Goal, goal)
	apply(&p.Expertise, expertise)
	apply(&p.AgeBand, ageBand)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET tone = ?, goal = ?, expertise = ?, age_band = ? WHERE id = ?`,
		p.Tone, p.Goal, p.Expertise, p.AgeBand, userID,
	); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return existing, nil
}

// DeleteUser removes the user; sessions, messages and tokens cascade.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("user rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_items WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete memory items: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete user: %w", err)
	}
	return nil
}
