// Package ingest reads log sources, parses them and stores the security-relevant lines.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"logguard/internal/audit"
	"logguard/internal/classify"
	"logguard/internal/metrics"
	"logguard/internal/parser"
	"logguard/internal/session"
	"logguard/internal/state"
	"logguard/internal/types"

	"github.com/google/uuid"
)

const (
	defaultBatchSize = 500
	flushInterval    = 2 * time.Second
)

// Report counts what one ingestion did
type Report struct {
	Lines      int                     `json:"lines"`
	Parsed     int                     `json:"parsed"`
	Skipped    int                     `json:"skipped"`
	Inserted   int                     `json:"inserted"`
	Batches    int                     `json:"batches"`
	Categories []classify.CategoryStat `json:"categories"`
}

// Runner pulls lines from an Ingester and writes mapped rows in batches
type Runner struct {
	store     *state.Store
	audit     *audit.Logger
	mapper    *Mapper
	batchSize int
}

func NewRunner(store *state.Store, auditLog *audit.Logger) *Runner {
	return &Runner{
		store:     store,
		audit:     auditLog,
		mapper:    NewMapper(store),
		batchSize: defaultBatchSize,
	}
}

// Run consumes src until it is exhausted or ctx is cancelled. Cancellation is
// a normal stop: pending rows are flushed and the report returned.
func (r *Runner) Run(ctx context.Context, sess *session.Session, src Ingester, p parser.Parser, format string) (*Report, error) {
	lines, err := src.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer src.Stop()

	rep := &Report{}
	var pending []state.LogEntry
	var categories []types.CIACategory

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		// a cancelled ctx must not lose rows already read
		if err := r.write(context.WithoutCancel(ctx), sess, pending, format); err != nil {
			return err
		}
		for _, e := range pending {
			categories = append(categories, e.Category)
		}
		rep.Inserted += len(pending)
		rep.Batches++
		pending = pending[:0]
		return nil
	}

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ticker.C:
			if err := flush(); err != nil {
				return rep, err
			}
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			rep.Lines++
			evt := p.Parse(line.Content)
			if evt != nil {
				rep.Parsed++
			}
			entry, err := r.mapper.Map(ctx, evt, line, sess.ActorID())
			if err != nil {
				return rep, err
			}
			if entry == nil {
				rep.Skipped++
				continue
			}
			pending = append(pending, *entry)
			if len(pending) >= r.batchSize {
				if err := flush(); err != nil {
					return rep, err
				}
			}
		}
	}

	if err := flush(); err != nil {
		return rep, err
	}
	rep.Categories = classify.Statistics(categories)
	slog.Info("ingestion finished", "format", format, "lines", rep.Lines, "inserted", rep.Inserted, "skipped", rep.Skipped)
	return rep, nil
}

// write stores one batch with its audit entry
func (r *Runner) write(ctx context.Context, sess *session.Session, entries []state.LogEntry, format string) error {
	batchID := uuid.NewString()
	err := r.store.Transaction(ctx, func(tx *state.Store) error {
		if err := tx.InsertLogs(ctx, entries); err != nil {
			return err
		}
		snap := &types.Snapshot{Kind: types.SnapshotBatch, Batch: &types.BatchSnapshot{
			BatchID: batchID,
			Rows:    len(entries),
			From:    entries[0].Timestamp,
			To:      entries[len(entries)-1].Timestamp,
		}}
		return r.audit.With(tx).Record(ctx, sess, "ingest", "log_batch", entries[0].ID, nil, snap)
	})
	if err != nil {
		return fmt.Errorf("failed to store ingested batch: %w", err)
	}
	metrics.LogsIngested.WithLabelValues(format).Add(float64(len(entries)))
	return nil
}
