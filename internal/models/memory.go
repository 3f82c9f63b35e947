package models

import "time"

const MemorySourceChat = "chat"

// MemoryCandidate is an extracted fact that has not been filtered yet.
type MemoryCandidate struct {
	Kind       string `json:"kind"`
	Text       string `json:"text"`
	Importance int    `json:"importance"`
	TTLDays    int    `json:"ttl_days"`
}

// MemoryItem is the structured-store row for a saved memory.
type MemoryItem struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	SessionID  string    `json:"session_id,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Text       string    `json:"text"`
	Source     string    `json:"source"`
	VectorID   string    `json:"vector_id,omitempty"`
	Importance int       `json:"importance"`
	CreatedAt  time.Time `json:"created_at"`
}
