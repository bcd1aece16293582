package state

import (
	"context"
	"net/netip"
	"strings"
	"time"

	"logguard/internal/classify"
	"logguard/internal/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	insertBatchSize = 100
	markChunkSize   = 500
)

// NewPayload wraps a parsed payload for storage
func NewPayload(p types.ParsedData) datatypes.JSONType[types.ParsedData] {
	return datatypes.NewJSONType(p)
}

// prepareLog fills defaults and rejects rows that must not be written
func prepareLog(e *LogEntry) error {
	e.SourceIP = strings.TrimSpace(e.SourceIP)
	addr, err := netip.ParseAddr(e.SourceIP)
	if err != nil {
		return Invalidf("invalid source IP %q", e.SourceIP)
	}
	e.SourceIP = addr.String()
	if e.DestinationIP != nil {
		dst, err := netip.ParseAddr(strings.TrimSpace(*e.DestinationIP))
		if err != nil {
			return Invalidf("invalid destination IP %q", *e.DestinationIP)
		}
		d := dst.String()
		e.DestinationIP = &d
	}
	if err := e.ParsedData.Data().Validate(); err != nil {
		return Invalidf("parsed data: %v", err)
	}

	if e.Timestamp.IsZero() {
		return Invalidf("timestamp is required")
	}
	e.Timestamp = e.Timestamp.UTC()
	if e.Source == "" {
		e.Source = "manual"
	}
	if e.EventType == "" {
		e.EventType = "unknown"
	}
	if e.Category == "" {
		e.Category = classify.Category(e.EventType)
	}
	if e.Severity == "" {
		e.Severity = classify.DefaultSeverity(e.Category)
	}
	sev, err := types.ParseSeverity(string(e.Severity))
	if err != nil {
		return Invalidf("%v", err)
	}
	e.Severity = sev
	if e.Status == "" {
		e.Status = types.StatusDetected
	}
	if _, err := types.ParseLogStatus(string(e.Status)); err != nil {
		return Invalidf("%v", err)
	}
	return nil
}

func (s *Store) InsertLog(ctx context.Context, e *LogEntry) error {
	if err := prepareLog(e); err != nil {
		return err
	}
	return wrap("failed to insert log", s.conn(ctx).Create(e).Error)
}

// InsertLogs writes all entries in one transaction. Either every row is stored or none.
func (s *Store) InsertLogs(ctx context.Context, entries []LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for i := range entries {
		if err := prepareLog(&entries[i]); err != nil {
			return err
		}
	}
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(entries, insertBatchSize).Error
	})
	return wrap("failed to insert logs", err)
}

func (s *Store) GetLog(ctx context.Context, id uint) (*LogEntry, error) {
	var e LogEntry
	if err := s.conn(ctx).Preload("AttackType").First(&e, id).Error; err != nil {
		return nil, wrap("failed to get log", err)
	}
	return &e, nil
}

// LogFilter narrows SearchLogs. Zero values match everything.
type LogFilter struct {
	Source         string
	EventType      string
	Category       types.CIACategory
	Severity       types.Severity
	MinSeverity    types.Severity
	SourceIP       string
	AttackTypeID   *uint
	Status         types.LogStatus
	From, To       time.Time
	UnresolvedOnly bool
	Limit          int
}

func (f LogFilter) apply(q *gorm.DB) *gorm.DB {
	if f.Source != "" {
		q = q.Where("source = ?", f.Source)
	}
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.Category != "" {
		q = q.Where("cia_category = ?", f.Category)
	}
	if f.Severity != "" {
		q = q.Where("LOWER(severity) = LOWER(?)", f.Severity)
	}
	if f.MinSeverity != "" {
		q = q.Where(severityRankSQL("severity")+" >= ?", f.MinSeverity.Rank())
	}
	if f.SourceIP != "" {
		q = q.Where("source_ip = ?", f.SourceIP)
	}
	if f.AttackTypeID != nil {
		q = q.Where("attack_type_id = ?", *f.AttackTypeID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if !f.From.IsZero() {
		q = q.Where("timestamp >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("timestamp <= ?", f.To.UTC())
	}
	if f.UnresolvedOnly {
		q = q.Where("is_resolved = ?", false)
	}
	return q
}

// SearchLogs returns matching rows, newest first. The source IP filter is
// canonicalised the way stored addresses are.
func (s *Store) SearchLogs(ctx context.Context, f LogFilter) ([]LogEntry, error) {
	if f.SourceIP != "" {
		addr, err := netip.ParseAddr(strings.TrimSpace(f.SourceIP))
		if err != nil {
			return nil, Invalidf("invalid source IP filter %q", f.SourceIP)
		}
		f.SourceIP = addr.String()
	}
	q := f.apply(s.conn(ctx).Model(&LogEntry{}).Preload("AttackType"))
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []LogEntry
	if err := q.Order("timestamp DESC, id DESC").Find(&out).Error; err != nil {
		return nil, wrap("failed to search logs", err)
	}
	return out, nil
}

// PendingLogs returns rows not yet counted by a detection pass: status detected,
// not a false positive, timestamp >= since, oldest first.
func (s *Store) PendingLogs(ctx context.Context, since time.Time, attackTypeID uint, sourceIP string) ([]LogEntry, error) {
	q := s.conn(ctx).
		Select("id", "timestamp", "source_ip", "attack_type_id", "severity", "cia_category").
		Where("attack_type_id = ? AND status = ? AND is_false_positive = ? AND timestamp >= ?",
			attackTypeID, types.StatusDetected, false, since.UTC())
	if sourceIP != "" {
		q = q.Where("source_ip = ?", sourceIP)
	}
	var out []LogEntry
	if err := q.Order("timestamp, id").Find(&out).Error; err != nil {
		return nil, wrap("failed to read pending logs", err)
	}
	return out, nil
}

// MarkCounted moves still-pending rows to investigating and reports how many moved.
// Ids are updated in chunks to stay under SQLite's bound variable limit.
func (s *Store) MarkCounted(ctx context.Context, ids []uint) (int64, error) {
	var moved int64
	for start := 0; start < len(ids); start += markChunkSize {
		end := min(start+markChunkSize, len(ids))
		res := s.conn(ctx).Model(&LogEntry{}).
			Where("id IN ? AND status = ?", ids[start:end], types.StatusDetected).
			Update("status", types.StatusInvestigating)
		if res.Error != nil {
			return moved, wrap("failed to mark logs counted", res.Error)
		}
		moved += res.RowsAffected
	}
	return moved, nil
}

// UpdateLogStatus sets the status of one row and returns it before and after
func (s *Store) UpdateLogStatus(ctx context.Context, id uint, status types.LogStatus) (before, after *LogEntry, err error) {
	if _, err := types.ParseLogStatus(string(status)); err != nil {
		return nil, nil, Invalidf("%v", err)
	}
	return s.updateLog(ctx, id, map[string]any{"status": status})
}

// MarkFalsePositive flags a row so detection never counts it again
func (s *Store) MarkFalsePositive(ctx context.Context, id uint, by *uint, notes string) (before, after *LogEntry, err error) {
	fields := map[string]any{"is_false_positive": true}
	if notes != "" {
		fields["resolution_notes"] = notes
	}
	if by != nil {
		fields["resolved_by"] = *by
	}
	return s.updateLog(ctx, id, fields)
}

func (s *Store) ResolveLog(ctx context.Context, id uint, by *uint, notes string) (before, after *LogEntry, err error) {
	fields := map[string]any{
		"is_resolved":      true,
		"resolved_at":      s.now(),
		"resolution_notes": notes,
	}
	if by != nil {
		fields["resolved_by"] = *by
	}
	return s.updateLog(ctx, id, fields)
}

func (s *Store) updateLog(ctx context.Context, id uint, fields map[string]any) (before, after *LogEntry, err error) {
	before, err = s.GetLog(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.conn(ctx).Model(&LogEntry{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return nil, nil, wrap("failed to update log", err)
	}
	after, err = s.GetLog(ctx, id)
	return before, after, err
}

func (s *Store) DeleteLog(ctx context.Context, id uint) (*LogEntry, error) {
	e, err := s.GetLog(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.conn(ctx).Delete(&LogEntry{}, id).Error; err != nil {
		return nil, wrap("failed to delete log", err)
	}
	return e, nil
}

// CleanupResolved deletes resolved rows older than before
func (s *Store) CleanupResolved(ctx context.Context, before time.Time) (int64, error) {
	res := s.conn(ctx).
		Where("is_resolved = ? AND timestamp < ?", true, before.UTC()).
		Delete(&LogEntry{})
	return res.RowsAffected, wrap("failed to clean up resolved logs", res.Error)
}
