package models

import "time"

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// Session is one conversation bound to a character and a scenario.
type Session struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id,omitempty"`
	CharacterID string        `json:"character_id"`
	ScenarioID  string        `json:"scenario_id"`
	Phase       string        `json:"phase"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`
}

// HasUser reports whether the session belongs to a signed-in user.
func (s *Session) HasUser() bool {
	return s != nil && s.UserID != ""
}
