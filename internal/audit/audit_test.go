package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"logguard/internal/session"
	"logguard/internal/state"
)

func TestRecordWritesTableAndMirror(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store, err := state.Open(ctx, filepath.Join(dir, "audit.db"), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	user, err := store.CreateUser(ctx, "auditor", "secret123", nil)
	if err != nil {
		t.Fatal(err)
	}
	sess := session.ForUser(user)

	mirror := filepath.Join(dir, "audit.jsonl")
	logger := NewLogger(store, mirror)

	role, err := store.CreateRole(ctx, "responder", "on call")
	if err != nil {
		t.Fatal(err)
	}
	if err := logger.Record(ctx, sess, "create", "role", role.ID, nil, role.Snapshot()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries, err := store.ListAudit(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 audit entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ActorID == nil || *e.ActorID != user.ID || e.RunID != sess.RunID {
		t.Errorf("Unexpected actor/run on entry: %+v", e)
	}
	if e.OldValue.Data() != nil {
		t.Error("Expected no old value on create")
	}
	if nv := e.NewValue.Data(); nv == nil || nv.Role == nil || nv.Role.Name != "responder" {
		t.Errorf("Expected role snapshot, got %+v", nv)
	}

	f, err := os.Open(mirror)
	if err != nil {
		t.Fatalf("Expected mirror file: %v", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("Expected one mirrored line")
	}
	var got map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &got); err != nil {
		t.Fatalf("Mirror line is not JSON: %v", err)
	}
	if got["actor"] != "auditor" || got["entity"] != "role" {
		t.Errorf("Unexpected mirror line: %v", got)
	}
}

func TestRecordRejectsMismatchedSnapshot(t *testing.T) {
	ctx := context.Background()
	store, err := state.Open(ctx, filepath.Join(t.TempDir(), "audit.db"), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	bad := (&state.Role{Name: "x"}).Snapshot()
	bad.Kind = "user"
	if err := NewLogger(store, "").Record(ctx, session.Anonymous(), "create", "role", 1, nil, bad); err == nil {
		t.Error("Expected invalid snapshot to be rejected")
	}
}
