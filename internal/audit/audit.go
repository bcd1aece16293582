package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"logguard/internal/session"
	"logguard/internal/state"
	"logguard/internal/types"
)

// Recorder persists audit entries. *state.Store and stores bound to a transaction both qualify.
type Recorder interface {
	RecordAudit(ctx context.Context, e *state.AuditEntry) error
}

// Logger records mutations in audit_log and optionally mirrors them as JSON lines
type Logger struct {
	mu       *sync.Mutex
	filePath string
	rec      Recorder
}

// NewLogger creates a new audit logger. An empty filePath disables the mirror.
func NewLogger(rec Recorder, filePath string) *Logger {
	return &Logger{
		mu:       &sync.Mutex{},
		filePath: filePath,
		rec:      rec,
	}
}

// With returns a logger writing through rec, typically a store bound to a transaction
func (l *Logger) With(rec Recorder) *Logger {
	c := *l
	c.rec = rec
	return &c
}

// Record writes one audit entry for a change to entity/id made in sess
func (l *Logger) Record(ctx context.Context, sess *session.Session, action, entity string, id uint, oldVal, newVal *types.Snapshot) error {
	e := &state.AuditEntry{
		ActorID:  sess.ActorID(),
		Action:   action,
		Entity:   entity,
		EntityID: id,
		OldValue: state.NewSnapshotValue(oldVal),
		NewValue: state.NewSnapshotValue(newVal),
	}
	if sess != nil {
		e.RunID = sess.RunID
	}
	if err := l.rec.RecordAudit(ctx, e); err != nil {
		return err
	}
	if l.filePath == "" {
		return nil
	}
	return l.mirror(e, sess.String())
}

type line struct {
	*state.AuditEntry
	Actor string `json:"actor"`
}

// mirror appends the entry to the JSON-lines file in a thread-safe manner
func (l *Logger) mirror(e *state.AuditEntry, actor string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(line{AuditEntry: e, Actor: actor}); err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	return nil
}
