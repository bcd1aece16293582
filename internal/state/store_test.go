package state

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"logguard/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), time.Second)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func attackType(t *testing.T, s *Store, name string) *AttackType {
	t.Helper()
	at, err := s.FindAttackType(context.Background(), name)
	if err != nil {
		t.Fatalf("attack type %s not seeded: %v", name, err)
	}
	return at
}

func manualLog(ip string, atID uint, ts time.Time) LogEntry {
	id := atID
	return LogEntry{
		Timestamp:    ts,
		SourceIP:     ip,
		EventType:    "ddos",
		AttackTypeID: &id,
		ParsedData: NewPayload(types.ParsedData{
			Kind:   types.PayloadManual,
			Manual: &types.ManualPayload{Details: "test"},
		}),
	}
}

func TestOpenSeedsOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seed.db")

	for i := 0; i < 2; i++ {
		s, err := Open(ctx, path, time.Second)
		if err != nil {
			t.Fatalf("Open #%d failed: %v", i+1, err)
		}
		roles, err := s.ListRoles(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(roles) != 3 {
			t.Errorf("Expected 3 seeded roles, got %d", len(roles))
		}
		ats, err := s.ListAttackTypes(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(ats) != len(seedAttackTypes) {
			t.Errorf("Expected %d attack types, got %d", len(seedAttackTypes), len(ats))
		}
		s.Close()
	}
}

func TestOpenUnreachable(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "x.db"), time.Second)
	if !errors.Is(err, ErrConnectivity) {
		t.Errorf("Expected connectivity error, got %v", err)
	}
}

func TestFindAttackTypeCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	at, err := s.FindAttackType(ctx, "ddos")
	if err != nil {
		t.Fatalf("FindAttackType failed: %v", err)
	}
	if at.Name != "DDoS" {
		t.Errorf("Expected DDoS, got %s", at.Name)
	}
	if at.Category != types.CategoryAvailability || at.DefaultSeverity != types.SeverityMedium {
		t.Errorf("Expected Availability/medium, got %s/%s", at.Category, at.DefaultSeverity)
	}

	byID, err := s.FindAttackType(ctx, fmt.Sprint(at.ID))
	if err != nil || byID.ID != at.ID {
		t.Errorf("Expected lookup by id to find %d, got %v (%v)", at.ID, byID, err)
	}

	if _, err := s.FindAttackType(ctx, "Nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
	if _, err := s.CreateAttackType(ctx, "BRUTE FORCE", "", "", ""); !errors.Is(err, ErrConstraint) {
		t.Errorf("Expected duplicate name to be a constraint violation, got %v", err)
	}
}

func TestDeleteRoleNullsUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	role, err := s.CreateRole(ctx, "responder", "")
	if err != nil {
		t.Fatal(err)
	}
	u, err := s.CreateUser(ctx, "alice", "secret123", &role.ID)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.DeleteRole(ctx, role.ID); err != nil {
		t.Fatalf("DeleteRole failed: %v", err)
	}

	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.RoleID != nil {
		t.Errorf("Expected role to be cleared, got %d", *got.RoleID)
	}
}

func TestUserErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "bob", "secret123", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateUser(ctx, "bob", "secret123", nil); !errors.Is(err, ErrConstraint) {
		t.Errorf("Expected constraint violation, got %v", err)
	}
	missing := uint(999)
	if _, err := s.CreateUser(ctx, "carol", "secret123", &missing); !errors.Is(err, ErrReferential) {
		t.Errorf("Expected referential error, got %v", err)
	}
	if _, err := s.CreateUser(ctx, "dave", "123", nil); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}

	if _, err := s.CheckPassword(ctx, "bob", "secret123"); err != nil {
		t.Errorf("Expected password to match, got %v", err)
	}
	if _, err := s.CheckPassword(ctx, "bob", "wrong-one"); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected mismatch, got %v", err)
	}
}

func TestInsertLogsAllOrNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ddos := attackType(t, s, "DDoS")
	now := time.Now()

	bad := []LogEntry{manualLog("203.0.113.5", ddos.ID, now), manualLog("not-an-ip", ddos.ID, now)}
	if err := s.InsertLogs(ctx, bad); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}

	dangling := []LogEntry{manualLog("203.0.113.5", ddos.ID, now), manualLog("203.0.113.6", 999, now)}
	if err := s.InsertLogs(ctx, dangling); !errors.Is(err, ErrReferential) {
		t.Errorf("Expected referential error, got %v", err)
	}

	logs, err := s.SearchLogs(ctx, LogFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 0 {
		t.Errorf("Expected no rows after failed inserts, got %d", len(logs))
	}
}

func TestDeleteAttackTypeRestricted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ddos := attackType(t, s, "DDoS")

	if err := s.InsertLogs(ctx, []LogEntry{manualLog("203.0.113.5", ddos.ID, time.Now())}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DeleteAttackType(ctx, ddos.ID); !errors.Is(err, ErrReferential) {
		t.Errorf("Expected referential error, got %v", err)
	}

	scan := attackType(t, s, "Port Scan")
	now := time.Now()
	_, err := s.UpsertPattern(ctx, Observation{
		SourceIP: "203.0.113.6", AttackTypeID: scan.ID, Category: types.CategoryConfidentiality,
		Severity: types.SeverityLow, Count: 1, FirstSeen: now, LastSeen: now,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.DeleteAttackType(ctx, scan.ID); !errors.Is(err, ErrReferential) {
		t.Errorf("Expected referential error for a type used by a pattern, got %v", err)
	}

	unused := attackType(t, s, "Malware")
	if _, err := s.DeleteAttackType(ctx, unused.ID); err != nil {
		t.Errorf("Expected unused attack type to be deletable, got %v", err)
	}
}

func TestRestrictViolationIsReferential(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ddos := attackType(t, s, "DDoS")
	if err := s.InsertLogs(ctx, []LogEntry{manualLog("203.0.113.5", ddos.ID, time.Now())}); err != nil {
		t.Fatal(err)
	}

	// bypass the reference check to hit the database's own RESTRICT
	err := wrap("delete", s.conn(ctx).Delete(&AttackType{}, ddos.ID).Error)
	if !errors.Is(err, ErrReferential) {
		t.Errorf("Expected RESTRICT failure to be referential, got %v", err)
	}

	missing := uint(9999)
	bad := manualLog("203.0.113.5", missing, time.Now())
	if err := s.InsertLog(ctx, &bad); !errors.Is(err, ErrReferential) {
		t.Errorf("Expected missing foreign key to be referential, got %v", err)
	}

	dup := s.conn(ctx).Create(&Role{Name: "admin"}).Error
	if err := wrap("create", dup); !errors.Is(err, ErrConstraint) {
		t.Errorf("Expected duplicate name to stay a constraint error, got %v", err)
	}
}

func TestMarkCountedManyIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ddos := attackType(t, s, "DDoS")

	const n = 33000
	entries := make([]LogEntry, n)
	ts := time.Now().Add(-time.Minute)
	for i := range entries {
		entries[i] = manualLog("203.0.113.8", ddos.ID, ts)
	}
	if err := s.InsertLogs(ctx, entries); err != nil {
		t.Fatal(err)
	}
	ids := make([]uint, n)
	for i, e := range entries {
		ids[i] = e.ID
	}

	moved, err := s.MarkCounted(ctx, ids)
	if err != nil {
		t.Fatalf("MarkCounted over %d ids failed: %v", n, err)
	}
	if moved != n {
		t.Errorf("Expected %d rows moved, got %d", n, moved)
	}
	if moved, err := s.MarkCounted(ctx, ids); err != nil || moved != 0 {
		t.Errorf("Expected a second pass to move nothing, got %d, %v", moved, err)
	}
}

func TestUpsertPatternSeverityNeverDowngraded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ddos := attackType(t, s, "DDoS")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	steps := []struct {
		sev   types.Severity
		want  types.Severity
		count int64
	}{
		{types.SeverityMedium, types.SeverityMedium, 10},
		{types.SeverityHigh, types.SeverityHigh, 5},
		{types.SeverityLow, types.SeverityHigh, 3},
	}

	var total int64
	for i, step := range steps {
		ts := base.Add(time.Duration(i) * time.Minute)
		res, err := s.UpsertPattern(ctx, Observation{
			SourceIP:     "198.51.100.7",
			AttackTypeID: ddos.ID,
			Category:     types.CategoryAvailability,
			Severity:     step.sev,
			Count:        step.count,
			FirstSeen:    ts,
			LastSeen:     ts,
		})
		if err != nil {
			t.Fatalf("upsert %d failed: %v", i, err)
		}
		total += step.count

		if res.Pattern.Severity != step.want {
			t.Errorf("step %d: expected severity %s, got %s", i, step.want, res.Pattern.Severity)
		}
		if res.Pattern.EventCount != total {
			t.Errorf("step %d: expected event_count %d, got %d", i, total, res.Pattern.EventCount)
		}
		if !res.Pattern.LastSeen.Equal(ts) {
			t.Errorf("step %d: expected last_seen %v, got %v", i, ts, res.Pattern.LastSeen)
		}
		if !res.Pattern.FirstSeen.Equal(base) {
			t.Errorf("step %d: expected first_seen to stay %v, got %v", i, base, res.Pattern.FirstSeen)
		}
		if i == 0 && !res.Created() {
			t.Error("Expected first upsert to create the pattern")
		}
		if i == 1 && !res.Escalated() {
			t.Error("Expected medium -> high to escalate")
		}
		if i == 2 && res.Escalated() {
			t.Error("Expected low observation not to escalate")
		}
	}

	patterns, err := s.ListPatterns(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(patterns) != 1 {
		t.Errorf("Expected one pattern, got %d", len(patterns))
	}
}

func TestUpsertPatternLastSeenOnlyMovesForward(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ddos := attackType(t, s, "DDoS")
	late := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	early := late.Add(-time.Hour)

	for _, ts := range []time.Time{late, early} {
		_, err := s.UpsertPattern(ctx, Observation{
			SourceIP: "198.51.100.7", AttackTypeID: ddos.ID, Severity: types.SeverityLow,
			Count: 1, FirstSeen: ts, LastSeen: ts,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	p, err := s.GetPattern(ctx, "198.51.100.7", ddos.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !p.LastSeen.Equal(late) || !p.FirstSeen.Equal(early) {
		t.Errorf("Expected window %v..%v, got %v..%v", early, late, p.FirstSeen, p.LastSeen)
	}
}

func TestResolveAndCleanup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ddos := attackType(t, s, "DDoS")
	old := time.Now().Add(-100 * 24 * time.Hour)

	entries := []LogEntry{manualLog("203.0.113.5", ddos.ID, old), manualLog("203.0.113.5", ddos.ID, old)}
	if err := s.InsertLogs(ctx, entries); err != nil {
		t.Fatal(err)
	}

	_, after, err := s.ResolveLog(ctx, entries[0].ID, nil, "handled")
	if err != nil {
		t.Fatalf("ResolveLog failed: %v", err)
	}
	if !after.IsResolved || after.ResolvedAt == nil {
		t.Error("Expected log to be resolved with a timestamp")
	}

	n, err := s.CleanupResolved(ctx, time.Now().Add(-90*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Expected 1 row cleaned up, got %d", n)
	}
	if _, err := s.GetLog(ctx, entries[1].ID); err != nil {
		t.Errorf("Expected unresolved row to survive, got %v", err)
	}
}

func TestAnalytics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ddos := attackType(t, s, "DDoS")
	now := time.Now().UTC().Truncate(time.Second)

	var entries []LogEntry
	for i := 0; i < 3; i++ {
		entries = append(entries, manualLog("203.0.113.5", ddos.ID, now.Add(time.Duration(i)*time.Second)))
	}
	entries = append(entries, manualLog("203.0.113.9", ddos.ID, now))
	if err := s.InsertLogs(ctx, entries); err != nil {
		t.Fatal(err)
	}

	summary, err := s.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary[0].Name != "DDoS" || summary[0].Total != 4 {
		t.Errorf("Expected DDoS first with 4 logs, got %+v", summary[0])
	}
	if !summary[0].LastSeen.Equal(now.Add(2 * time.Second)) {
		t.Errorf("Expected last seen %v, got %v", now.Add(2*time.Second), summary[0].LastSeen)
	}

	top, err := s.TopAttackers(ctx, now.Add(-time.Hour), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 || top[0].SourceIP != "203.0.113.5" || top[0].Events != 3 {
		t.Errorf("Expected 203.0.113.5 with 3 events first, got %+v", top)
	}
	if top[0].MaxSeverity != types.SeverityMedium {
		t.Errorf("Expected medium max severity, got %s", top[0].MaxSeverity)
	}

	stats, total, err := s.CIAStatistics(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if total != 4 || len(stats) != 1 || stats[0].Category != types.CategoryAvailability || stats[0].Percentage != 100 {
		t.Errorf("Expected all four logs as Availability, got %+v (total %d)", stats, total)
	}
	if stats[0].UniqueIPs != 2 {
		t.Errorf("Expected 2 unique IPs, got %d", stats[0].UniqueIPs)
	}

	db, err := s.DatabaseStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if db.TotalLogs != 4 || db.UnresolvedSerious != 4 {
		t.Errorf("Unexpected database stats: %+v", db)
	}
}
