package state

import (
	"context"
	"strings"
)

func (s *Store) CreateRole(ctx context.Context, name, description string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, Invalidf("role name is required")
	}
	r := &Role{Name: name, Description: description}
	if err := s.conn(ctx).Create(r).Error; err != nil {
		return nil, wrap("failed to create role "+name, err)
	}
	return r, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	if err := s.conn(ctx).Order("id").Find(&roles).Error; err != nil {
		return nil, wrap("failed to list roles", err)
	}
	return roles, nil
}

func (s *Store) GetRole(ctx context.Context, id uint) (*Role, error) {
	var r Role
	if err := s.conn(ctx).First(&r, id).Error; err != nil {
		return nil, wrap("failed to get role", err)
	}
	return &r, nil
}

// FindRole looks a role up by name, case-insensitively
func (s *Store) FindRole(ctx context.Context, name string) (*Role, error) {
	var r Role
	err := s.conn(ctx).Where("LOWER(name) = LOWER(?)", strings.TrimSpace(name)).First(&r).Error
	if err != nil {
		return nil, wrap("failed to find role "+name, err)
	}
	return &r, nil
}

// DeleteRole removes a role. Users holding it are left without a role.
func (s *Store) DeleteRole(ctx context.Context, id uint) (*Role, error) {
	r, err := s.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.conn(ctx).Delete(&Role{}, id).Error; err != nil {
		return nil, wrap("failed to delete role", err)
	}
	return r, nil
}
