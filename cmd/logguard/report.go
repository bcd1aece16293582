package main

import (
	"context"
	"fmt"
	"time"

	"logguard/internal/audit"
	"logguard/internal/export"
	"logguard/internal/state"
	"logguard/internal/types"

	"github.com/google/uuid"
)

func summaryCommand(ctx context.Context, args []string) error {
	fs, g := newFlagSet("summary", "")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	rows, err := a.store.Summary(ctx)
	if err != nil {
		return err
	}
	t := newTable("ATTACK TYPE", "TOTAL", "LAST SEEN")
	for _, r := range rows {
		last := "never"
		if !r.LastSeen.IsZero() {
			last = fmtTime(r.LastSeen) + " (" + ago(r.LastSeen) + ")"
		}
		t.row(r.Name, count(r.Total), last)
	}
	t.flush()
	return nil
}

func statsCommand(ctx context.Context, args []string) error {
	fs, g := newFlagSet("stats", "")
	days := fs.Int("days", 7, "Look back this many days")
	top := fs.Int("top", 10, "Number of top attackers")
	asJSON := fs.Bool("json", false, "Print as JSON")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	if *days <= 0 || *top <= 0 {
		return state.Invalidf("-days and -top must be positive")
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	since := time.Now().UTC().AddDate(0, 0, -*days)
	db, err := a.store.DatabaseStats(ctx)
	if err != nil {
		return err
	}
	cia, total, err := a.store.CIAStatistics(ctx, since)
	if err != nil {
		return err
	}
	attackers, err := a.store.TopAttackers(ctx, since, *top)
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(map[string]any{
			"database":      db,
			"since":         since,
			"total_events":  total,
			"categories":    cia,
			"top_attackers": attackers,
		})
	}

	fmt.Printf("Logs: %s  Active patterns: %s  Unacknowledged alerts: %s  Unresolved (medium+): %s\n\n",
		count(db.TotalLogs), count(db.ActivePatterns), count(db.UnacknowledgedAlerts), count(db.UnresolvedSerious))

	fmt.Printf("CIA breakdown since %s (%s events)\n", fmtTime(since), count(total))
	t := newTable("CATEGORY", "EVENTS", "SHARE", "UNIQUE IPS", "HIGH+")
	for _, c := range cia {
		t.row(c.Category, count(c.Count), fmt.Sprintf("%.2f%%", c.Percentage), count(c.UniqueIPs), count(c.HighSeverity))
	}
	t.flush()

	fmt.Printf("\nTop attackers\n")
	t = newTable("SOURCE IP", "EVENTS", "EVENT TYPES", "MAX SEVERITY", "LAST SEEN")
	for _, at := range attackers {
		t.row(at.SourceIP, count(at.Events), at.EventTypes, at.MaxSeverity, ago(at.LastSeen))
	}
	t.flush()
	return nil
}

func exportCommand(ctx context.Context, args []string) error {
	fs, g := newFlagSet("export", "")
	table := fs.String("table", "logs", "Table to export: logs or patterns")
	out := fs.String("out", "", "Output file (default <table>_<timestamp>.csv in export.dir)")
	all := fs.Bool("all", false, "patterns: include inactive patterns")
	sf := addSearchFlags(fs, 0)
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	if *table != "logs" && *table != "patterns" {
		return state.Invalidf("-table must be logs or patterns, got %q", *table)
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	ex, err := export.NewExporter(a.store, a.cfg.Export.Dir, a.cfg.Export.Delimiter)
	if err != nil {
		return err
	}
	var res *export.Result
	if *table == "patterns" {
		res, err = ex.Patterns(ctx, !*all, *out)
	} else {
		lf, ferr := sf.filter(ctx, a.store)
		if ferr != nil {
			return ferr
		}
		res, err = ex.Logs(ctx, lf, *out)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Exported %s %s row(s) to %s\n", count(res.Rows), *table, res.Path)
	return nil
}

func cleanupCommand(ctx context.Context, args []string) error {
	fs, g := newFlagSet("cleanup", "")
	days := fs.Int("days", 0, "Delete resolved logs older than this many days (default retention.days)")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	if *days < 0 {
		return state.Invalidf("-days must be positive")
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.sess.RequireRole("admin"); err != nil {
		return err
	}

	keep := a.cfg.Retention.Days
	if *days > 0 {
		keep = *days
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -keep)

	var deleted int64
	err = a.mutate(ctx, func(tx *state.Store, rec *audit.Logger) error {
		n, err := tx.CleanupResolved(ctx, cutoff)
		if err != nil {
			return err
		}
		deleted = n
		if n == 0 {
			return nil
		}
		snap := &types.Snapshot{Kind: types.SnapshotBatch, Batch: &types.BatchSnapshot{
			BatchID: uuid.NewString(),
			Rows:    int(n),
			To:      cutoff,
		}}
		return rec.Record(ctx, a.sess, "cleanup", "log_batch", 0, snap, nil)
	})
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %s resolved log(s) older than %s\n", count(deleted), fmtTime(cutoff))
	return nil
}

func auditCommand(ctx context.Context, args []string) error {
	fs, g := newFlagSet("audit", "")
	limit := fs.Int("limit", 50, "Maximum rows")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := a.store.ListAudit(ctx, *limit)
	if err != nil {
		return err
	}
	t := newTable("ID", "TIME", "ACTOR", "ACTION", "ENTITY", "ENTITY ID", "RUN")
	for _, e := range entries {
		actor := "anonymous"
		if e.ActorID != nil {
			actor = fmt.Sprintf("#%d", *e.ActorID)
		}
		t.row(e.ID, fmtTime(e.Timestamp), actor, e.Action, e.Entity, e.EntityID, orDash(e.RunID))
	}
	t.flush()
	return nil
}
