package dashboard

import (
	"context"
	"time"

	"logguard/internal/state"
)

// EventStore defines the read side of storage the API serves
type EventStore interface {
	ListPatterns(ctx context.Context, activeOnly bool) ([]state.AttackPattern, error)
	ListAlerts(ctx context.Context, unacknowledgedOnly bool, limit int) ([]state.Alert, error)
	SearchLogs(ctx context.Context, f state.LogFilter) ([]state.LogEntry, error)
	FindAttackType(ctx context.Context, idOrName string) (*state.AttackType, error)
	DatabaseStats(ctx context.Context) (state.DBStats, error)
	CIAStatistics(ctx context.Context, since time.Time) ([]state.CIAStat, int64, error)
	TopAttackers(ctx context.Context, since time.Time, limit int) ([]state.Attacker, error)
}

// Stats represents dashboard statistics
type Stats struct {
	Database     state.DBStats    `json:"database"`
	Since        time.Time        `json:"since"`
	TotalEvents  int64            `json:"total_events"`
	Categories   []state.CIAStat  `json:"categories"`
	TopAttackers []state.Attacker `json:"top_attackers"`
}

// collectStats gathers the stats view for events since the given time
func collectStats(ctx context.Context, store EventStore, since time.Time, top int) (*Stats, error) {
	db, err := store.DatabaseStats(ctx)
	if err != nil {
		return nil, err
	}
	cats, total, err := store.CIAStatistics(ctx, since)
	if err != nil {
		return nil, err
	}
	attackers, err := store.TopAttackers(ctx, since, top)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Database:     db,
		Since:        since,
		TotalEvents:  total,
		Categories:   cats,
		TopAttackers: attackers,
	}, nil
}
