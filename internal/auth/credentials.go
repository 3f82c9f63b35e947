package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"tutorgate/internal/models"
	"tutorgate/internal/service/store"
)

const minPasswordLen = 4

var (
	idPattern       = regexp.MustCompile(`^[A-Za-z]+$`)
	passwordPattern = regexp.MustCompile(`^[0-9]+$`)
)

var (
	ErrInvalidID          = errors.New("id may contain only letters (A-Z, a-z)")
	ErrInvalidPassword    = errors.New("password may contain only digits (0-9)")
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d digits", minPasswordLen)
	ErrInvalidCredentials = errors.New("invalid id or password")
	ErrUserExists         = store.ErrUserExists
)

// UserStore is the user table, normally *store.Service.
type UserStore interface {
	CreateUser(ctx context.Context, userID, passwordHash string) (*models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// ValidateCredentials checks the id and password format.
func ValidateCredentials(userID, password string) error {
	if userID == "" || !idPattern.MatchString(userID) {
		return ErrInvalidID
	}
	if password == "" || !passwordPattern.MatchString(password) {
		return ErrInvalidPassword
	}
	if len(password) < minPasswordLen {
		return ErrPasswordTooShort
	}
	return nil
}

// IsValidationError reports whether err came from ValidateCredentials.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidID) || errors.Is(err, ErrInvalidPassword) || errors.Is(err, ErrPasswordTooShort)
}

// Signup registers a user. The id is used as the user id as-is.
func (s *Service) Signup(ctx context.Context, userID, password string) (*models.User, error) {
	userID = strings.TrimSpace(userID)
	password = strings.TrimSpace(password)
	if err := ValidateCredentials(userID, password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return s.users.CreateUser(ctx, userID, string(hash))
}

// Login checks the password and issues a bearer token.
func (s *Service) Login(ctx context.Context, userID, password string) (*models.User, string, error) {
	userID = strings.TrimSpace(userID)
	password = strings.TrimSpace(password)
	if err := ValidateCredentials(userID, password); err != nil {
		return nil, "", err
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	// admin-created users have no password and cannot log in
	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.IssueToken(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}
