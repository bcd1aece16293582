package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"logguard/internal/classify"
	"logguard/internal/types"
)

// CreateAttackType adds an attack type. An empty category is derived from the name.
func (s *Store) CreateAttackType(ctx context.Context, name, description string, cat types.CIACategory, sev types.Severity) (*AttackType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, Invalidf("attack type name is required")
	}
	if _, err := strconv.ParseUint(name, 10, 64); err == nil {
		return nil, Invalidf("attack type name %q must not be numeric", name)
	}
	if _, err := s.FindAttackType(ctx, name); err == nil {
		return nil, wrap("failed to create attack type "+name, ErrConstraint)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if cat == "" {
		cat = classify.Category(classify.EventTypeFor(name))
	}
	if sev == "" {
		sev = classify.DefaultSeverity(cat)
	}
	if !sev.Valid() {
		return nil, Invalidf("unknown severity %q", sev)
	}

	at := &AttackType{Name: name, Description: description, Category: cat, DefaultSeverity: sev}
	if err := s.conn(ctx).Create(at).Error; err != nil {
		return nil, wrap("failed to create attack type "+name, err)
	}
	return at, nil
}

func (s *Store) ListAttackTypes(ctx context.Context) ([]AttackType, error) {
	var out []AttackType
	if err := s.conn(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, wrap("failed to list attack types", err)
	}
	return out, nil
}

func (s *Store) GetAttackType(ctx context.Context, id uint) (*AttackType, error) {
	var at AttackType
	if err := s.conn(ctx).First(&at, id).Error; err != nil {
		return nil, wrap("failed to get attack type", err)
	}
	return &at, nil
}

// FindAttackType resolves a numeric id or a case-insensitive name
func (s *Store) FindAttackType(ctx context.Context, idOrName string) (*AttackType, error) {
	idOrName = strings.TrimSpace(idOrName)
	if id, err := strconv.ParseUint(idOrName, 10, 64); err == nil {
		return s.GetAttackType(ctx, uint(id))
	}
	var at AttackType
	if err := s.conn(ctx).Where("LOWER(name) = LOWER(?)", idOrName).First(&at).Error; err != nil {
		return nil, wrap("failed to find attack type "+idOrName, err)
	}
	return &at, nil
}

// AttackTypeUpdate holds the optional fields of an attack type update
type AttackTypeUpdate struct {
	Name            *string
	Description     *string
	Category        *types.CIACategory
	DefaultSeverity *types.Severity
}

func (s *Store) UpdateAttackType(ctx context.Context, id uint, upd AttackTypeUpdate) (before, after *AttackType, err error) {
	before, err = s.GetAttackType(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	fields := map[string]any{}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, nil, Invalidf("attack type name must not be empty")
		}
		if other, err := s.FindAttackType(ctx, name); err == nil && other.ID != id {
			return nil, nil, wrap("failed to rename attack type", ErrConstraint)
		}
		fields["name"] = name
	}
	if upd.Description != nil {
		fields["description"] = *upd.Description
	}
	if upd.Category != nil {
		fields["cia_category"] = *upd.Category
	}
	if upd.DefaultSeverity != nil {
		if !upd.DefaultSeverity.Valid() {
			return nil, nil, Invalidf("unknown severity %q", *upd.DefaultSeverity)
		}
		fields["default_severity"] = *upd.DefaultSeverity
	}
	if len(fields) == 0 {
		return nil, nil, Invalidf("nothing to update")
	}

	if err := s.conn(ctx).Model(&AttackType{ID: id}).Updates(fields).Error; err != nil {
		return nil, nil, wrap("failed to update attack type", err)
	}
	after, err = s.GetAttackType(ctx, id)
	return before, after, err
}

// DeleteAttackType fails with ErrReferential while logs or patterns reference it
func (s *Store) DeleteAttackType(ctx context.Context, id uint) (*AttackType, error) {
	at, err := s.GetAttackType(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, ref := range []struct {
		model any
		what  string
	}{{&LogEntry{}, "log"}, {&AttackPattern{}, "pattern"}} {
		var n int64
		if err := s.conn(ctx).Model(ref.model).Where("attack_type_id = ?", id).Count(&n).Error; err != nil {
			return nil, wrap("failed to delete attack type "+at.Name, err)
		}
		if n > 0 {
			return nil, fmt.Errorf("attack type %s is used by %d %s row(s): %w", at.Name, n, ref.what, ErrReferential)
		}
	}
	if err := s.conn(ctx).Delete(&AttackType{}, id).Error; err != nil {
		return nil, wrap("failed to delete attack type "+at.Name, err)
	}
	return at, nil
}
