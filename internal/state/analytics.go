package state

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"logguard/internal/types"

	"github.com/mattn/go-sqlite3"
)

// parseDBTime parses a timestamp returned by an aggregate, which the driver hands back as text
func parseDBTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	for _, layout := range append([]string{time.RFC3339Nano}, sqlite3.SQLiteTimestampFormats...) {
		if t, err := time.Parse(layout, ns.String); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", ns.String)
}

// AttackSummary is the per attack type total
type AttackSummary struct {
	AttackTypeID uint      `json:"attack_type_id"`
	Name         string    `json:"name"`
	Total        int64     `json:"total"`
	LastSeen     time.Time `json:"last_seen"`
}

func (s *Store) Summary(ctx context.Context) ([]AttackSummary, error) {
	var rows []struct {
		ID       uint
		Name     string
		Total    int64
		LastSeen sql.NullString
	}
	err := s.conn(ctx).Table("attack_types AS at").
		Select("at.id, at.name, COUNT(l.id) AS total, MAX(l.timestamp) AS last_seen").
		Joins("LEFT JOIN log_entries l ON l.attack_type_id = at.id").
		Group("at.id, at.name").
		Order("total DESC, at.name").
		Scan(&rows).Error
	if err != nil {
		return nil, wrap("failed to summarise logs", err)
	}

	out := make([]AttackSummary, 0, len(rows))
	for _, r := range rows {
		last, err := parseDBTime(r.LastSeen)
		if err != nil {
			return nil, wrap("failed to summarise logs", err)
		}
		out = append(out, AttackSummary{AttackTypeID: r.ID, Name: r.Name, Total: r.Total, LastSeen: last})
	}
	return out, nil
}

// CIAStat is the share of one CIA category among logs
type CIAStat struct {
	Category     types.CIACategory `json:"category"`
	Count        int64             `json:"count"`
	Percentage   float64           `json:"percentage"`
	UniqueIPs    int64             `json:"unique_ips"`
	HighSeverity int64             `json:"high_severity"`
}

// CIAStatistics breaks down non-false-positive logs since the given time by CIA category
func (s *Store) CIAStatistics(ctx context.Context, since time.Time) ([]CIAStat, int64, error) {
	var rows []CIAStat
	err := s.conn(ctx).Model(&LogEntry{}).
		Select(fmt.Sprintf(
			"cia_category AS category, COUNT(*) AS count, COUNT(DISTINCT source_ip) AS unique_ips, "+
				"SUM(CASE WHEN %s >= %d THEN 1 ELSE 0 END) AS high_severity",
			severityRankSQL("severity"), types.SeverityHigh.Rank())).
		Where("is_false_positive = ? AND timestamp >= ?", false, since.UTC()).
		Group("cia_category").
		Order("count DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, 0, wrap("failed to compute CIA statistics", err)
	}

	var total int64
	for _, r := range rows {
		total += r.Count
	}
	for i := range rows {
		if total > 0 {
			rows[i].Percentage = math.Round(float64(rows[i].Count)/float64(total)*10000) / 100
		}
	}
	return rows, total, nil
}

// Attacker is one source IP ranked by event volume
type Attacker struct {
	SourceIP    string         `json:"source_ip"`
	Events      int64          `json:"events"`
	EventTypes  int64          `json:"event_types"`
	MaxSeverity types.Severity `json:"max_severity"`
	LastSeen    time.Time      `json:"last_seen"`
}

// TopAttackers ranks source IPs by non-false-positive events since the given time
func (s *Store) TopAttackers(ctx context.Context, since time.Time, limit int) ([]Attacker, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []struct {
		SourceIP string
		Events   int64
		Types    int64
		MaxRank  int
		LastSeen sql.NullString
	}
	err := s.conn(ctx).Model(&LogEntry{}).
		Select(fmt.Sprintf(
			"source_ip, COUNT(*) AS events, COUNT(DISTINCT event_type) AS types, MAX(%s) AS max_rank, MAX(timestamp) AS last_seen",
			severityRankSQL("severity"))).
		Where("is_false_positive = ? AND timestamp >= ?", false, since.UTC()).
		Group("source_ip").
		Order("events DESC, source_ip").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, wrap("failed to rank attackers", err)
	}

	out := make([]Attacker, 0, len(rows))
	for _, r := range rows {
		last, err := parseDBTime(r.LastSeen)
		if err != nil {
			return nil, wrap("failed to rank attackers", err)
		}
		a := Attacker{SourceIP: r.SourceIP, Events: r.Events, EventTypes: r.Types, LastSeen: last}
		for _, sev := range types.Severities {
			if sev.Rank() == r.MaxRank {
				a.MaxSeverity = sev
			}
		}
		out = append(out, a)
	}
	return out, nil
}

// DBStats is the headline view of the database
type DBStats struct {
	TotalLogs            int64 `json:"total_logs"`
	UnacknowledgedAlerts int64 `json:"unacknowledged_alerts"`
	ActivePatterns       int64 `json:"active_patterns"`
	UnresolvedSerious    int64 `json:"unresolved_medium_or_higher"`
}

func (s *Store) DatabaseStats(ctx context.Context) (DBStats, error) {
	var st DBStats
	db := s.conn(ctx)
	if err := db.Model(&LogEntry{}).Count(&st.TotalLogs).Error; err != nil {
		return st, wrap("failed to count logs", err)
	}
	if err := db.Model(&Alert{}).Where("is_acknowledged = ?", false).Count(&st.UnacknowledgedAlerts).Error; err != nil {
		return st, wrap("failed to count alerts", err)
	}
	if err := db.Model(&AttackPattern{}).Where("is_active = ?", true).Count(&st.ActivePatterns).Error; err != nil {
		return st, wrap("failed to count patterns", err)
	}
	err := db.Model(&LogEntry{}).
		Where("is_resolved = ? AND is_false_positive = ?", false, false).
		Where(severityRankSQL("severity")+" >= ?", types.SeverityMedium.Rank()).
		Count(&st.UnresolvedSerious).Error
	if err != nil {
		return st, wrap("failed to count unresolved logs", err)
	}
	return st, nil
}
