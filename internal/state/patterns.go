package state

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"logguard/internal/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// severityRankSQL mirrors types.Severity.Rank as a SQL expression over col
func severityRankSQL(col string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "(CASE LOWER(%s)", col)
	for _, sev := range types.Severities {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", sev, sev.Rank())
	}
	b.WriteString(" ELSE 0 END)")
	return b.String()
}

// Observation is what one detection pass saw for a (source IP, attack type)
type Observation struct {
	SourceIP     string
	AttackTypeID uint
	Category     types.CIACategory
	Severity     types.Severity
	Count        int64
	FirstSeen    time.Time
	LastSeen     time.Time
}

// UpsertResult is the pattern after the upsert and what it looked like before
type UpsertResult struct {
	Pattern  *AttackPattern
	Previous *AttackPattern // nil when the pattern was created
}

// Created reports whether the upsert inserted a new pattern
func (r UpsertResult) Created() bool { return r.Previous == nil }

// Escalated reports whether the stored severity rank rose, or an inactive pattern reopened
func (r UpsertResult) Escalated() bool {
	if r.Previous == nil {
		return false
	}
	return r.Pattern.Severity.Rank() > r.Previous.Severity.Rank() || !r.Previous.IsActive
}

// UpsertPattern atomically inserts or merges an observation: event_count is
// incremented, last_seen only moves forward and severity is never downgraded.
func (s *Store) UpsertPattern(ctx context.Context, obs Observation) (UpsertResult, error) {
	if _, err := netip.ParseAddr(obs.SourceIP); err != nil {
		return UpsertResult{}, Invalidf("invalid source IP %q", obs.SourceIP)
	}
	if obs.Count <= 0 {
		return UpsertResult{}, Invalidf("observation count must be positive, got %d", obs.Count)
	}
	sev, err := types.ParseSeverity(string(obs.Severity))
	if err != nil {
		return UpsertResult{}, Invalidf("%v", err)
	}
	if obs.LastSeen.Before(obs.FirstSeen) {
		return UpsertResult{}, Invalidf("last seen %s before first seen %s", obs.LastSeen, obs.FirstSeen)
	}

	var res UpsertResult
	err = s.Transaction(ctx, func(tx *Store) error {
		prev, err := tx.GetPattern(ctx, obs.SourceIP, obs.AttackTypeID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		default:
			res.Previous = prev
		}

		p := AttackPattern{
			AttackTypeID: obs.AttackTypeID,
			SourceIP:     obs.SourceIP,
			Category:     obs.Category,
			Severity:     sev,
			EventCount:   obs.Count,
			FirstSeen:    obs.FirstSeen.UTC(),
			LastSeen:     obs.LastSeen.UTC(),
			IsActive:     true,
		}
		err = tx.conn(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "source_ip"}, {Name: "attack_type_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"event_count": gorm.Expr("attack_patterns.event_count + excluded.event_count"),
				"first_seen":  gorm.Expr("MIN(attack_patterns.first_seen, excluded.first_seen)"),
				"last_seen":   gorm.Expr("MAX(attack_patterns.last_seen, excluded.last_seen)"),
				"severity": gorm.Expr(fmt.Sprintf(
					"CASE WHEN %s > %s THEN excluded.severity ELSE attack_patterns.severity END",
					severityRankSQL("excluded.severity"), severityRankSQL("attack_patterns.severity"))),
				"is_active":  true,
				"updated_at": tx.now(),
			}),
		}).Create(&p).Error
		if err != nil {
			return wrap("failed to upsert pattern", err)
		}

		res.Pattern, err = tx.GetPattern(ctx, obs.SourceIP, obs.AttackTypeID)
		return err
	})
	return res, err
}

func (s *Store) GetPattern(ctx context.Context, sourceIP string, attackTypeID uint) (*AttackPattern, error) {
	var p AttackPattern
	err := s.conn(ctx).Preload("AttackType").
		Where("source_ip = ? AND attack_type_id = ?", sourceIP, attackTypeID).
		First(&p).Error
	if err != nil {
		return nil, wrap("failed to get pattern", err)
	}
	return &p, nil
}

func (s *Store) GetPatternByID(ctx context.Context, id uint) (*AttackPattern, error) {
	var p AttackPattern
	if err := s.conn(ctx).Preload("AttackType").First(&p, id).Error; err != nil {
		return nil, wrap("failed to get pattern", err)
	}
	return &p, nil
}

// ListPatterns returns patterns by severity then recency
func (s *Store) ListPatterns(ctx context.Context, activeOnly bool) ([]AttackPattern, error) {
	q := s.conn(ctx).Preload("AttackType")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var out []AttackPattern
	err := q.Order(severityRankSQL("severity") + " DESC").Order("last_seen DESC").Find(&out).Error
	if err != nil {
		return nil, wrap("failed to list patterns", err)
	}
	return out, nil
}

// DeactivatePattern closes the incident a pattern represents
func (s *Store) DeactivatePattern(ctx context.Context, id uint, notes string) (before, after *AttackPattern, err error) {
	before, err = s.GetPatternByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	fields := map[string]any{"is_active": false, "updated_at": s.now()}
	if notes != "" {
		fields["notes"] = notes
	}
	if err := s.conn(ctx).Model(&AttackPattern{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return nil, nil, wrap("failed to deactivate pattern", err)
	}
	after, err = s.GetPatternByID(ctx, id)
	return before, after, err
}
