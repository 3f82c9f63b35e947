package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tutorgate/internal/models"
)

// AddMessage appends a transcript entry and touches the session.
func (s *Service) AddMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	now := time.Now().UTC()
	msg.ID = NewID()
	msg.CreatedAt = now
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, user_id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, nullString(msg.UserID), msg.Role, msg.Content, now,
	); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, now, msg.SessionID); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	return &msg, nil
}

// ListMessages returns the transcript in chronological order.
// A positive limit keeps the most recent messages.
func (s *Service) ListMessages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	limit = clampLimit(limit, 200, 1000)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, user_id, role, content, created_at FROM (
			SELECT id, session_id, user_id, role, content, created_at FROM messages
			WHERE session_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
		) recent ORDER BY created_at ASC, id ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m := new(models.Message)
		var userID sql.NullString
		if err := rows.Scan(&m.ID, &m.SessionID, &userID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.UserID = userID.String
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CountMessages counts a session's messages with the given role.
func (s *Service) CountMessages(ctx context.Context, sessionID string, role models.Role) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ? AND role = ?`, sessionID, role,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
