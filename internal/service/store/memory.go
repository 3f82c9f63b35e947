package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tutorgate/internal/models"
)

const memoryColumns = `id, user_id, session_id, kind, text, source, vector_id, importance, created_at`

func scanMemoryItem(row rowScanner) (*models.MemoryItem, error) {
	var (
		item      models.MemoryItem
		sessionID sql.NullString
		vectorID  sql.NullString
	)
	if err := row.Scan(&item.ID, &item.UserID, &sessionID, &item.Kind, &item.Text, &item.Source,
		&vectorID, &item.Importance, &item.CreatedAt); err != nil {
		return nil, err
	}
	item.SessionID = sessionID.String
	item.VectorID = vectorID.String
	return &item, nil
}

// InsertMemoryItems writes all items in one transaction. Missing ids and
// timestamps are filled in place.
func (s *Service) InsertMemoryItems(ctx context.Context, items []models.MemoryItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO memory_items (`+memoryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare memory insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range items {
		it := &items[i]
		if it.ID == "" {
			it.ID = NewID()
		}
		if it.Source == "" {
			it.Source = models.MemorySourceChat
		}
		if it.CreatedAt.IsZero() {
			it.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx, it.ID, it.UserID, nullString(it.SessionID), it.Kind, it.Text,
			it.Source, nullString(it.VectorID), it.Importance, it.CreatedAt); err != nil {
			return fmt.Errorf("insert memory item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit memory items: %w", err)
	}
	return nil
}

// RecentMemoryTexts returns up to limit memory texts for the user, newest first.
func (s *Service) RecentMemoryTexts(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT text FROM memory_items WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list memory texts: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan memory text: %w", err)
		}
		texts = append(texts, t)
	}
	return texts, rows.Err()
}

// ListMemoryItems returns the user's memory rows, newest first.
func (s *Service) ListMemoryItems(ctx context.Context, userID string, limit int) ([]models.MemoryItem, error) {
	limit = clampLimit(limit, 100, 1000)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memory_items WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list memory items: %w", err)
	}
	defer rows.Close()

	var items []models.MemoryItem
	for rows.Next() {
		item, err := scanMemoryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// GetMemoryItem returns sql.ErrNoRows when missing.
func (s *Service) GetMemoryItem(ctx context.Context, id string) (*models.MemoryItem, error) {
	item, err := scanMemoryItem(s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memory_items WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get memory item: %w", err)
	}
	return item, nil
}

// DeleteMemoryItem removes one row; sql.ErrNoRows when it was already gone.
func (s *Service) DeleteMemoryItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete memory item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("memory rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
