// Package session carries the acting user of one invocation.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"logguard/internal/state"

	"github.com/google/uuid"
)

// ErrForbidden is returned when the acting user lacks a required role
var ErrForbidden = errors.New("forbidden")

// UserFinder resolves a user by id or username
type UserFinder interface {
	FindUser(ctx context.Context, idOrName string) (*state.User, error)
}

// Session is built once per invocation and passed to every operation that records an actor
type Session struct {
	UserID   *uint
	Username string
	Role     string
	RunID    string
}

// Anonymous returns a session without a user
func Anonymous() *Session {
	return &Session{RunID: uuid.NewString()}
}

// Resolve builds a session for who (id or username). An empty who gives an anonymous session.
func Resolve(ctx context.Context, users UserFinder, who string) (*Session, error) {
	who = strings.TrimSpace(who)
	if who == "" {
		return Anonymous(), nil
	}
	u, err := users.FindUser(ctx, who)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve acting user %q: %w", who, err)
	}
	return ForUser(u), nil
}

// ForUser returns a session acting as u
func ForUser(u *state.User) *Session {
	s := &Session{UserID: &u.ID, Username: u.Username, RunID: uuid.NewString()}
	if u.Role != nil {
		s.Role = u.Role.Name
	}
	return s
}

// ActorID is the user id to record, nil for anonymous sessions
func (s *Session) ActorID() *uint {
	if s == nil {
		return nil
	}
	return s.UserID
}

func (s *Session) String() string {
	if s == nil || s.UserID == nil {
		return "anonymous"
	}
	return s.Username
}

// RequireRole fails unless the acting user holds role
func (s *Session) RequireRole(role string) error {
	if s == nil || s.UserID == nil {
		return fmt.Errorf("%w: %s role required, run with -as <user>", ErrForbidden, role)
	}
	if !strings.EqualFold(s.Role, role) {
		return fmt.Errorf("%w: %s role required, %s has %q", ErrForbidden, role, s.Username, s.Role)
	}
	return nil
}
