// Package storage provides local persistence for the signed-in session and
// the last known reading set.
package storage

import (
	"context"
	"time"

	"github.com/jwulff/bptrack/internal/bloodpressure"
)

// Store is the interface for persistent storage.
type Store interface {
	// Session
	SaveSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context) (*Session, error)
	DeleteSession(ctx context.Context) error

	// Reading cache, keyed by owner (the user the readings belong to)
	SaveReadings(ctx context.Context, owner string, readings []bloodpressure.Reading) error
	GetReadings(ctx context.Context, owner string) (*CachedReadings, error)

	// Lifecycle
	Close() error
}

// Session is the signed-in user and their bearer token.
type Session struct {
	Token   string      `json:"token"`
	User    SessionUser `json:"user"`
	SavedAt time.Time   `json:"saved_at"`
}

// SessionUser is the part of the user profile kept between runs.
type SessionUser struct {
	ID          int64              `json:"id"`
	FullName    string             `json:"full_name"`
	Email       string             `json:"email,omitempty"`
	PhoneNumber string             `json:"phone_number,omitempty"`
	Role        bloodpressure.Role `json:"role"`
	DateOfBirth *time.Time         `json:"date_of_birth,omitempty"`
}

// NewSession creates a session record.
func NewSession(token string, user SessionUser) *Session {
	return &Session{
		Token:   token,
		User:    user,
		SavedAt: time.Now(),
	}
}

// Person returns the session user as a Person.
func (u SessionUser) Person() bloodpressure.Person {
	return bloodpressure.Person{
		FullName:    u.FullName,
		Role:        u.Role,
		DateOfBirth: u.DateOfBirth,
	}
}

// CachedReadings is a stored reading set.
type CachedReadings struct {
	Owner    string                  `json:"owner"`
	Readings []bloodpressure.Reading `json:"readings"`
	SavedAt  time.Time               `json:"saved_at"`
}

// SessionKey identifies the single stored session in error messages.
const SessionKey = "current"

// ErrNotFound is returned when a record is not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e ErrNotFound) Error() string {
	return e.Resource + " not found: " + e.ID
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	_, ok := err.(ErrNotFound)
	return ok
}
