package store

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrSessionEnded = errors.New("session already ended")
)

// Service persists users, sessions, transcripts, catalog rows and memory items.
type Service struct {
	db *sql.DB
}

// NewService builds a store on an opened and migrated database.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// DB exposes the underlying handle for packages that share it (auth tokens).
func (s *Service) DB() *sql.DB {
	return s.db
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a ULID. IDs minted by one process sort in creation order.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
