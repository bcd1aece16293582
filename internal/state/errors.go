package state

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// Error kinds. Every error returned by the store wraps exactly one of these.
var (
	ErrValidation   = errors.New("validation error")
	ErrReferential  = errors.New("referential error")
	ErrConnectivity = errors.New("connectivity error")
	ErrConstraint   = errors.New("constraint violation")
	ErrNotFound     = errors.New("not found")
)

// Invalidf builds a validation error
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// wrap classifies a storage error for op. nil stays nil.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrValidation, ErrReferential, ErrConnectivity, ErrConstraint, ErrNotFound} {
		if errors.Is(err, kind) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		var ptr *sqlite3.Error
		if errors.As(err, &ptr) && ptr != nil {
			sqlErr = *ptr
		}
	}
	switch {
	case sqlErr.ExtendedCode == sqlite3.ErrConstraintForeignKey, isRestrictViolation(sqlErr):
		return fmt.Errorf("%s: %w: %w", op, ErrReferential, err)
	case sqlErr.Code == sqlite3.ErrConstraint:
		return fmt.Errorf("%s: %w: %w", op, ErrConstraint, err)
	case sqlErr.Code == sqlite3.ErrCantOpen, sqlErr.Code == sqlite3.ErrNotADB, sqlErr.Code == sqlite3.ErrIoErr:
		return fmt.Errorf("%s: %w: %w", op, ErrConnectivity, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isRestrictViolation reports a deferred or ON DELETE RESTRICT foreign key failure,
// which SQLite raises as a trigger constraint rather than a foreign key one.
func isRestrictViolation(e sqlite3.Error) bool {
	return e.Code == sqlite3.ErrConstraint &&
		(e.ExtendedCode == sqlite3.ErrConstraintTrigger || strings.Contains(e.Error(), "FOREIGN KEY constraint failed"))
}
