package generate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"logguard/internal/audit"
	"logguard/internal/session"
	"logguard/internal/state"
	"logguard/internal/types"
)

func setup(t *testing.T) (*state.Store, *Generator) {
	t.Helper()
	ctx := context.Background()
	store, err := state.Open(ctx, filepath.Join(t.TempDir(), "gen.db"), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	if _, err := store.CreateUser(ctx, "analyst1", "secret123", nil); err != nil {
		t.Fatal(err)
	}
	return store, NewGenerator(store, audit.NewLogger(store, ""), 10*time.Millisecond)
}

func TestGenerateWritesExactlyNOrderedRows(t *testing.T) {
	store, gen := setup(t)
	ctx := context.Background()
	fixed := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	gen.SetClock(func() time.Time { return fixed })

	for _, n := range []int{1, 7, 250} {
		ip := "192.0.2.10"
		if n == 250 {
			ip = "192.0.2.250"
		}
		res, err := gen.Generate(ctx, session.Anonymous(), Request{SourceIP: ip, Count: n, AttackType: "brute force", ActingUser: "analyst1"})
		if err != nil {
			t.Fatalf("Generate(%d) failed: %v", n, err)
		}
		if res.Rows != n || !res.Last.Equal(fixed) {
			t.Errorf("Unexpected result %+v", res)
		}

		logs, err := store.SearchLogs(ctx, state.LogFilter{SourceIP: ip})
		if err != nil {
			t.Fatal(err)
		}
		batch := logs[:0]
		for _, l := range logs {
			if l.ParsedData.Data().Generated.BatchID == res.BatchID {
				batch = append(batch, l)
			}
		}
		if len(batch) != n {
			t.Fatalf("Expected %d rows in batch, got %d", n, len(batch))
		}

		// SearchLogs is newest first; sequence must fall as timestamps fall
		for i := 1; i < len(batch); i++ {
			if batch[i].Timestamp.After(batch[i-1].Timestamp) {
				t.Errorf("Timestamps not ordered at %d: %v after %v", i, batch[i].Timestamp, batch[i-1].Timestamp)
			}
			if batch[i].ParsedData.Data().Generated.Sequence > batch[i-1].ParsedData.Data().Generated.Sequence {
				t.Errorf("Sequence not ordered at %d", i)
			}
		}
		for _, l := range batch {
			if l.Status != types.StatusDetected || l.EventType != "brute_force" || l.Severity != types.SeverityHigh {
				t.Errorf("Unexpected row %+v", l)
				break
			}
		}
	}
}

func TestGenerateZeroIntervalGivesEqualTimestamps(t *testing.T) {
	store, _ := setup(t)
	ctx := context.Background()
	gen := NewGenerator(store, audit.NewLogger(store, ""), 0)

	res, err := gen.Generate(ctx, session.Anonymous(), Request{SourceIP: "2001:db8::1", Count: 5, AttackType: "DDoS", ActingUser: "analyst1"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.First.Equal(res.Last) {
		t.Errorf("Expected identical timestamps, got %v..%v", res.First, res.Last)
	}
	if res.SourceIP != "2001:db8::1" {
		t.Errorf("Expected canonical IPv6, got %s", res.SourceIP)
	}
}

func TestGenerateValidation(t *testing.T) {
	store, gen := setup(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"bad ip", Request{SourceIP: "999.1.1.1", Count: 1, AttackType: "DDoS", ActingUser: "analyst1"}, state.ErrValidation},
		{"zero count", Request{SourceIP: "192.0.2.1", Count: 0, AttackType: "DDoS", ActingUser: "analyst1"}, state.ErrValidation},
		{"negative count", Request{SourceIP: "192.0.2.1", Count: -3, AttackType: "DDoS", ActingUser: "analyst1"}, state.ErrValidation},
		{"unknown attack", Request{SourceIP: "192.0.2.1", Count: 1, AttackType: "Teleport", ActingUser: "analyst1"}, state.ErrReferential},
		{"unknown attack id", Request{SourceIP: "192.0.2.1", Count: 1, AttackType: "999", ActingUser: "analyst1"}, state.ErrReferential},
		{"unknown user", Request{SourceIP: "192.0.2.1", Count: 1, AttackType: "DDoS", ActingUser: "ghost"}, state.ErrReferential},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := gen.Generate(ctx, session.Anonymous(), tc.req); !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}

	logs, err := store.SearchLogs(ctx, state.LogFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 0 {
		t.Errorf("Expected nothing written, got %d rows", len(logs))
	}
}

func TestGenerateRecordsAudit(t *testing.T) {
	store, gen := setup(t)
	ctx := context.Background()

	if _, err := gen.Generate(ctx, session.Anonymous(), Request{SourceIP: "192.0.2.1", Count: 3, AttackType: "DoS", ActingUser: "analyst1"}); err != nil {
		t.Fatal(err)
	}
	entries, err := store.ListAudit(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Entity != "log_batch" {
		t.Fatalf("Expected one log_batch audit entry, got %+v", entries)
	}
	if b := entries[0].NewValue.Data().Batch; b == nil || b.Rows != 3 {
		t.Errorf("Expected batch snapshot with 3 rows, got %+v", b)
	}
}
