package state

import "logguard/internal/types"

// Snapshot methods return the audited view of each entity. A nil receiver gives nil.

func (r *Role) Snapshot() *types.Snapshot {
	if r == nil {
		return nil
	}
	return &types.Snapshot{Kind: types.SnapshotRole, Role: &types.RoleSnapshot{Name: r.Name, Description: r.Description}}
}

func (u *User) Snapshot() *types.Snapshot {
	if u == nil {
		return nil
	}
	return &types.Snapshot{Kind: types.SnapshotUser, User: &types.UserSnapshot{Username: u.Username, RoleID: u.RoleID}}
}

func (a *AttackType) Snapshot() *types.Snapshot {
	if a == nil {
		return nil
	}
	return &types.Snapshot{Kind: types.SnapshotAttackType, AttackType: &types.AttackTypeSnapshot{
		Name:            a.Name,
		Description:     a.Description,
		Category:        a.Category,
		DefaultSeverity: a.DefaultSeverity,
	}}
}

func (e *LogEntry) Snapshot() *types.Snapshot {
	if e == nil {
		return nil
	}
	return &types.Snapshot{Kind: types.SnapshotLog, Log: &types.LogSnapshot{
		SourceIP:        e.SourceIP,
		Status:          e.Status,
		IsResolved:      e.IsResolved,
		IsFalsePositive: e.IsFalsePositive,
		Notes:           e.ResolutionNotes,
	}}
}

func (p *AttackPattern) Snapshot() *types.Snapshot {
	if p == nil {
		return nil
	}
	return &types.Snapshot{Kind: types.SnapshotPattern, Pattern: &types.PatternSnapshot{
		SourceIP:     p.SourceIP,
		AttackTypeID: p.AttackTypeID,
		Severity:     p.Severity,
		EventCount:   p.EventCount,
		IsActive:     p.IsActive,
	}}
}

func (a *Alert) Snapshot() *types.Snapshot {
	if a == nil {
		return nil
	}
	return &types.Snapshot{Kind: types.SnapshotAlert, Alert: &types.AlertSnapshot{
		AlertType:      a.AlertType,
		Severity:       a.Severity,
		IsAcknowledged: a.IsAcknowledged,
	}}
}
