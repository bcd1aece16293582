package state

import (
	"context"

	"logguard/internal/types"

	"gorm.io/datatypes"
)

// NewSnapshotValue wraps a snapshot for the audit columns. nil is stored as JSON null.
func NewSnapshotValue(s *types.Snapshot) datatypes.JSONType[*types.Snapshot] {
	return datatypes.NewJSONType(s)
}

func (s *Store) RecordAudit(ctx context.Context, e *AuditEntry) error {
	if e.Action == "" || e.Entity == "" {
		return Invalidf("audit entry needs an action and an entity")
	}
	for _, snap := range []*types.Snapshot{e.OldValue.Data(), e.NewValue.Data()} {
		if snap == nil {
			continue
		}
		if err := snap.Validate(); err != nil {
			return Invalidf("audit snapshot: %v", err)
		}
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	return wrap("failed to record audit entry", s.conn(ctx).Create(e).Error)
}

// ListAudit returns the most recent entries first
func (s *Store) ListAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	q := s.conn(ctx).Order("timestamp DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []AuditEntry
	if err := q.Find(&out).Error; err != nil {
		return nil, wrap("failed to list audit entries", err)
	}
	return out, nil
}
