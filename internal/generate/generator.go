// Package generate writes synthetic flood-style log rows for one source.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"logguard/internal/audit"
	"logguard/internal/classify"
	"logguard/internal/metrics"
	"logguard/internal/session"
	"logguard/internal/state"
	"logguard/internal/types"

	"github.com/google/uuid"
)

// MaxCount bounds a single generator run
const MaxCount = 1_000_000

// Request describes one generator run
type Request struct {
	SourceIP   string
	Count      int
	AttackType string // id or name
	ActingUser string // id or username
}

// Result summarises what was written
type Result struct {
	BatchID    string
	SourceIP   string
	AttackType string
	Rows       int
	First      time.Time
	Last       time.Time
}

type Generator struct {
	store    *state.Store
	audit    *audit.Logger
	interval time.Duration
	now      func() time.Time
}

// NewGenerator creates a generator spacing rows by interval. 0 gives identical timestamps.
func NewGenerator(store *state.Store, auditLog *audit.Logger, interval time.Duration) *Generator {
	return &Generator{
		store:    store,
		audit:    auditLog,
		interval: interval,
		now:      time.Now,
	}
}

// SetClock replaces the clock used for timestamps
func (g *Generator) SetClock(now func() time.Time) { g.now = now }

func (g *Generator) validate(req Request) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(req.SourceIP))
	if err != nil {
		return netip.Addr{}, state.Invalidf("invalid IP address %q", req.SourceIP)
	}
	if req.Count <= 0 {
		return netip.Addr{}, state.Invalidf("count must be positive, got %d", req.Count)
	}
	if req.Count > MaxCount {
		return netip.Addr{}, state.Invalidf("count %d exceeds the limit of %d", req.Count, MaxCount)
	}
	if strings.TrimSpace(req.AttackType) == "" {
		return netip.Addr{}, state.Invalidf("attack type is required")
	}
	if strings.TrimSpace(req.ActingUser) == "" {
		return netip.Addr{}, state.Invalidf("acting user is required")
	}
	if g.interval < 0 {
		return netip.Addr{}, state.Invalidf("interval must not be negative")
	}
	return addr, nil
}

// referential turns a missing lookup target into a referential error
func referential(what, ref string, err error) error {
	if errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("%s %q does not exist: %w", what, ref, state.ErrReferential)
	}
	return err
}

// Generate inserts exactly req.Count rows with non-decreasing timestamps ending now.
// Nothing is written unless every row is.
func (g *Generator) Generate(ctx context.Context, sess *session.Session, req Request) (*Result, error) {
	addr, err := g.validate(req)
	if err != nil {
		return nil, err
	}

	at, err := g.store.FindAttackType(ctx, req.AttackType)
	if err != nil {
		return nil, referential("attack type", req.AttackType, err)
	}
	user, err := g.store.FindUser(ctx, req.ActingUser)
	if err != nil {
		return nil, referential("user", req.ActingUser, err)
	}

	batchID := uuid.NewString()
	eventType := classify.EventTypeFor(at.Name)
	category := at.Category
	if category == "" {
		category = classify.Category(eventType)
	}
	severity := at.DefaultSeverity
	if !severity.Valid() {
		severity = classify.DefaultSeverity(category)
	}

	end := g.now().UTC()
	ip := addr.String()
	entries := make([]state.LogEntry, req.Count)
	for i := range entries {
		ts := end.Add(-time.Duration(req.Count-1-i) * g.interval)
		details := fmt.Sprintf("auto-generated %s hit #%d", at.Name, i+1)
		entries[i] = state.LogEntry{
			Timestamp:    ts,
			Source:       "generator",
			SourceIP:     ip,
			EventType:    eventType,
			AttackTypeID: &at.ID,
			Category:     category,
			Severity:     severity,
			Status:       types.StatusDetected,
			RawLog:       fmt.Sprintf("%s %s %s", ts.Format(time.RFC3339Nano), ip, details),
			ParsedData: state.NewPayload(types.ParsedData{
				Kind:      types.PayloadGenerated,
				Generated: &types.GeneratedPayload{BatchID: batchID, Sequence: i + 1, Details: details},
			}),
			CreatedBy: &user.ID,
		}
	}

	res := &Result{
		BatchID:    batchID,
		SourceIP:   ip,
		AttackType: at.Name,
		Rows:       req.Count,
		First:      entries[0].Timestamp,
		Last:       entries[len(entries)-1].Timestamp,
	}

	err = g.store.Transaction(ctx, func(tx *state.Store) error {
		if err := tx.InsertLogs(ctx, entries); err != nil {
			return err
		}
		snap := &types.Snapshot{Kind: types.SnapshotBatch, Batch: &types.BatchSnapshot{
			BatchID:  batchID,
			SourceIP: ip,
			Rows:     req.Count,
			From:     res.First,
			To:       res.Last,
		}}
		return g.audit.With(tx).Record(ctx, sess, "generate", "log_batch", entries[0].ID, nil, snap)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate logs: %w", err)
	}

	metrics.LogsGenerated.WithLabelValues(at.Name).Add(float64(req.Count))
	slog.Info("generated logs", "ip", ip, "attack_type", at.Name, "rows", req.Count, "batch", batchID, "user", user.Username)
	return res, nil
}
