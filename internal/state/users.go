package state

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 6

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", Invalidf("password must be at least %d characters", minPasswordLen)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		// passwords over 72 bytes
		return "", Invalidf("cannot hash password: %v", err)
	}
	return string(h), nil
}

func (s *Store) CreateUser(ctx context.Context, username, password string, roleID *uint) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, Invalidf("username is required")
	}
	if _, err := strconv.ParseUint(username, 10, 64); err == nil {
		return nil, Invalidf("username %q must not be numeric", username)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{Username: username, PasswordHash: hash, RoleID: roleID}
	if err := s.conn(ctx).Create(u).Error; err != nil {
		return nil, wrap("failed to create user "+username, err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.conn(ctx).Preload("Role").Order("id").Find(&users).Error; err != nil {
		return nil, wrap("failed to list users", err)
	}
	return users, nil
}

func (s *Store) GetUser(ctx context.Context, id uint) (*User, error) {
	var u User
	if err := s.conn(ctx).Preload("Role").First(&u, id).Error; err != nil {
		return nil, wrap("failed to get user", err)
	}
	return &u, nil
}

// FindUser resolves a numeric id or a username
func (s *Store) FindUser(ctx context.Context, idOrName string) (*User, error) {
	idOrName = strings.TrimSpace(idOrName)
	if id, err := strconv.ParseUint(idOrName, 10, 64); err == nil {
		return s.GetUser(ctx, uint(id))
	}
	var u User
	if err := s.conn(ctx).Preload("Role").Where("username = ?", idOrName).First(&u).Error; err != nil {
		return nil, wrap("failed to find user "+idOrName, err)
	}
	return &u, nil
}

// UserUpdate holds the optional fields of a user update
type UserUpdate struct {
	Username  *string
	Password  *string
	RoleID    *uint
	ClearRole bool
}

// UpdateUser applies the set fields and returns the user before and after
func (s *Store) UpdateUser(ctx context.Context, id uint, upd UserUpdate) (before, after *User, err error) {
	before, err = s.GetUser(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	fields := map[string]any{}
	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		if name == "" {
			return nil, nil, Invalidf("username must not be empty")
		}
		fields["username"] = name
	}
	if upd.Password != nil {
		hash, err := hashPassword(*upd.Password)
		if err != nil {
			return nil, nil, err
		}
		fields["password_hash"] = hash
	}
	switch {
	case upd.ClearRole:
		fields["role_id"] = nil
	case upd.RoleID != nil:
		fields["role_id"] = *upd.RoleID
	}
	if len(fields) == 0 {
		return nil, nil, Invalidf("nothing to update")
	}

	if err := s.conn(ctx).Model(&User{ID: id}).Updates(fields).Error; err != nil {
		return nil, nil, wrap("failed to update user", err)
	}
	after, err = s.GetUser(ctx, id)
	return before, after, err
}

func (s *Store) DeleteUser(ctx context.Context, id uint) (*User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.conn(ctx).Delete(&User{}, id).Error; err != nil {
		return nil, wrap("failed to delete user", err)
	}
	return u, nil
}

// CheckPassword verifies a password against the stored hash
func (s *Store) CheckPassword(ctx context.Context, username, password string) (*User, error) {
	u, err := s.FindUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, Invalidf("wrong password for %s", username)
		}
		return nil, wrap("failed to check password", err)
	}
	return u, nil
}
