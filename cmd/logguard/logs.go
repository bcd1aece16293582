package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"logguard/internal/audit"
	"logguard/internal/classify"
	"logguard/internal/state"
	"logguard/internal/types"
)

func logsCommand(ctx context.Context, args []string) error {
	return dispatch(ctx, "logs", subcommands{
		"list":           logsList,
		"show":           logsShow,
		"create":         logsCreate,
		"search":         logsSearch,
		"status":         logsStatus,
		"false-positive": logsFalsePositive,
		"resolve":        logsResolve,
		"delete":         logsDelete,
	}, args)
}

func printLogs(logs []state.LogEntry) {
	t := newTable("ID", "TIMESTAMP", "SOURCE IP", "ATTACK", "EVENT", "CATEGORY", "SEVERITY", "STATUS", "DETAILS")
	for _, l := range logs {
		attack := "-"
		if l.AttackType != nil {
			attack = l.AttackType.Name
		}
		status := string(l.Status)
		switch {
		case l.IsFalsePositive:
			status += " (false positive)"
		case l.IsResolved:
			status += " (resolved)"
		}
		t.row(l.ID, fmtTime(l.Timestamp), l.SourceIP, attack, l.EventType, l.Category, l.Severity, status, l.ParsedData.Data().Details())
	}
	t.flush()
}

func logsList(ctx context.Context, args []string) error {
	fs, g := newFlagSet("logs list", "")
	limit := fs.Int("limit", 50, "Maximum rows")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	logs, err := a.store.SearchLogs(ctx, state.LogFilter{Limit: *limit})
	if err != nil {
		return err
	}
	printLogs(logs)
	return nil
}

func logsShow(ctx context.Context, args []string) error {
	fs, g := newFlagSet("logs show", "<id>")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	id, err := parseID("log", fs.Arg(0))
	if err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	l, err := a.store.GetLog(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(l)
}

// searchFlags registers the log filter flags shared by search and export
type searchFlags struct {
	source, eventType, category, severity, minSeverity string
	ip, attackType, status, from, to                   string
	unresolved                                         bool
	limit                                              int
}

func addSearchFlags(fs *flag.FlagSet, defaultLimit int) *searchFlags {
	f := &searchFlags{}
	fs.StringVar(&f.source, "source", "", "Log source")
	fs.StringVar(&f.eventType, "event-type", "", "Event type")
	fs.StringVar(&f.category, "category", "", "CIA category")
	fs.StringVar(&f.severity, "severity", "", "Exact severity")
	fs.StringVar(&f.minSeverity, "min-severity", "", "Minimum severity")
	fs.StringVar(&f.ip, "ip", "", "Source IP")
	fs.StringVar(&f.attackType, "attack-type", "", "Attack type id or name")
	fs.StringVar(&f.status, "status", "", "Status (detected, investigating, blocked)")
	fs.StringVar(&f.from, "from", "", "Earliest timestamp (RFC3339 or 2006-01-02)")
	fs.StringVar(&f.to, "to", "", "Latest timestamp (RFC3339 or 2006-01-02)")
	fs.BoolVar(&f.unresolved, "unresolved", false, "Only unresolved rows")
	fs.IntVar(&f.limit, "limit", defaultLimit, "Maximum rows (0 for all)")
	return f
}

// attackRef resolves an attack type by id or name; a missing one is a referential error
func attackRef(ctx context.Context, store *state.Store, ref string) (*state.AttackType, error) {
	at, err := store.FindAttackType(ctx, ref)
	if errors.Is(err, state.ErrNotFound) {
		return nil, fmt.Errorf("attack type %q does not exist: %w", ref, state.ErrReferential)
	}
	return at, err
}

func parseTime(flagName, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, state.Invalidf("-%s: cannot parse time %q", flagName, raw)
}

func (f *searchFlags) filter(ctx context.Context, store *state.Store) (state.LogFilter, error) {
	lf := state.LogFilter{
		Source:         f.source,
		EventType:      f.eventType,
		SourceIP:       f.ip,
		UnresolvedOnly: f.unresolved,
		Limit:          f.limit,
	}
	var err error
	if f.category != "" {
		if lf.Category, err = types.ParseCategory(f.category); err != nil {
			return lf, state.Invalidf("%v", err)
		}
	}
	if f.severity != "" {
		if lf.Severity, err = types.ParseSeverity(f.severity); err != nil {
			return lf, state.Invalidf("%v", err)
		}
	}
	if f.minSeverity != "" {
		if lf.MinSeverity, err = types.ParseSeverity(f.minSeverity); err != nil {
			return lf, state.Invalidf("%v", err)
		}
	}
	if f.status != "" {
		if lf.Status, err = types.ParseLogStatus(f.status); err != nil {
			return lf, state.Invalidf("%v", err)
		}
	}
	if lf.From, err = parseTime("from", f.from); err != nil {
		return lf, err
	}
	if lf.To, err = parseTime("to", f.to); err != nil {
		return lf, err
	}
	if f.attackType != "" {
		at, err := attackRef(ctx, store, f.attackType)
		if err != nil {
			return lf, err
		}
		lf.AttackTypeID = &at.ID
	}
	return lf, nil
}

func logsSearch(ctx context.Context, args []string) error {
	fs, g := newFlagSet("logs search", "")
	sf := addSearchFlags(fs, 100)
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	lf, err := sf.filter(ctx, a.store)
	if err != nil {
		return err
	}
	logs, err := a.store.SearchLogs(ctx, lf)
	if err != nil {
		return err
	}
	printLogs(logs)
	fmt.Printf("\n%s row(s)\n", count(len(logs)))
	return nil
}

func logsCreate(ctx context.Context, args []string) error {
	fs, g := newFlagSet("logs create", "")
	ip := fs.String("ip", "", "Source IP (required)")
	dest := fs.String("dest", "", "Destination IP")
	attackType := fs.String("attack-type", "", "Attack type id or name")
	eventType := fs.String("event-type", "", "Event type (derived from the attack type when empty)")
	severity := fs.String("severity", "", "Severity (derived from the category when empty)")
	source := fs.String("source", "manual", "Log source")
	details := fs.String("details", "", "Free-text details")
	username := fs.String("username", "", "Affected username")
	resource := fs.String("resource", "", "Affected resource")
	at := fs.String("at", "", "Timestamp (default now)")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	ts, err := parseTime("at", *at)
	if err != nil {
		return err
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	e := &state.LogEntry{
		Timestamp:        ts,
		Source:           *source,
		SourceIP:         *ip,
		EventType:        *eventType,
		RawLog:           *details,
		Username:         *username,
		ResourceAffected: *resource,
		CreatedBy:        a.sess.ActorID(),
		ParsedData: state.NewPayload(types.ParsedData{
			Kind:   types.PayloadManual,
			Manual: &types.ManualPayload{Details: *details},
		}),
	}
	if *dest != "" {
		e.DestinationIP = dest
	}
	if *severity != "" {
		if e.Severity, err = types.ParseSeverity(*severity); err != nil {
			return state.Invalidf("%v", err)
		}
	}
	if *attackType != "" {
		t, err := attackRef(ctx, a.store, *attackType)
		if err != nil {
			return err
		}
		e.AttackTypeID = &t.ID
		e.Category = t.Category
		if e.EventType == "" {
			e.EventType = classify.EventTypeFor(t.Name)
		}
		if e.Severity == "" {
			e.Severity = t.DefaultSeverity
		}
	}

	err = a.mutate(ctx, func(tx *state.Store, rec *audit.Logger) error {
		if err := tx.InsertLog(ctx, e); err != nil {
			return err
		}
		return rec.Record(ctx, a.sess, "create", "log", e.ID, nil, e.Snapshot())
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created log #%d (%s, %s)\n", e.ID, e.Category, e.Severity)
	return nil
}

// updateLog applies fn to log <id> in a transaction and audits the change
func updateLog(ctx context.Context, name string, args []string, extra func(fs *flag.FlagSet) func(tx *state.Store, a *app, id uint) (before, after *state.LogEntry, err error)) error {
	fs, g := newFlagSet("logs "+name, "<id>")
	apply := extra(fs)
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	id, err := parseID("log", fs.Arg(0))
	if err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var updated *state.LogEntry
	err = a.mutate(ctx, func(tx *state.Store, rec *audit.Logger) error {
		before, after, err := apply(tx, a, id)
		if err != nil {
			return err
		}
		updated = after
		return rec.Record(ctx, a.sess, name, "log", id, before.Snapshot(), after.Snapshot())
	})
	if err != nil {
		return err
	}
	fmt.Printf("Log #%d: status %s, resolved %t, false positive %t\n", updated.ID, updated.Status, updated.IsResolved, updated.IsFalsePositive)
	return nil
}

func logsStatus(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return state.Invalidf("usage: logguard logs status <id> <detected|investigating|blocked>")
	}
	// status is the trailing positional argument
	rest, status := args[:len(args)-1], args[len(args)-1]
	st, err := types.ParseLogStatus(status)
	if err != nil {
		return state.Invalidf("%v", err)
	}
	return updateLog(ctx, "status", rest, func(fs *flag.FlagSet) func(*state.Store, *app, uint) (*state.LogEntry, *state.LogEntry, error) {
		return func(tx *state.Store, _ *app, id uint) (*state.LogEntry, *state.LogEntry, error) {
			return tx.UpdateLogStatus(ctx, id, st)
		}
	})
}

func logsFalsePositive(ctx context.Context, args []string) error {
	return updateLog(ctx, "false-positive", args, func(fs *flag.FlagSet) func(*state.Store, *app, uint) (*state.LogEntry, *state.LogEntry, error) {
		notes := fs.String("notes", "", "Why the row is a false positive")
		return func(tx *state.Store, a *app, id uint) (*state.LogEntry, *state.LogEntry, error) {
			return tx.MarkFalsePositive(ctx, id, a.sess.ActorID(), *notes)
		}
	})
}

func logsResolve(ctx context.Context, args []string) error {
	return updateLog(ctx, "resolve", args, func(fs *flag.FlagSet) func(*state.Store, *app, uint) (*state.LogEntry, *state.LogEntry, error) {
		notes := fs.String("notes", "", "Resolution notes")
		return func(tx *state.Store, a *app, id uint) (*state.LogEntry, *state.LogEntry, error) {
			return tx.ResolveLog(ctx, id, a.sess.ActorID(), *notes)
		}
	})
}

func logsDelete(ctx context.Context, args []string) error {
	fs, g := newFlagSet("logs delete", "<id>")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	id, err := parseID("log", fs.Arg(0))
	if err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.sess.RequireRole("admin"); err != nil {
		return err
	}

	err = a.mutate(ctx, func(tx *state.Store, rec *audit.Logger) error {
		deleted, err := tx.DeleteLog(ctx, id)
		if err != nil {
			return err
		}
		return rec.Record(ctx, a.sess, "delete", "log", id, deleted.Snapshot(), nil)
	})
	if err != nil {
		return err
	}
	fmt.Printf("Deleted log #%d\n", id)
	return nil
}

func patternsCommand(ctx context.Context, args []string) error {
	return dispatch(ctx, "patterns", subcommands{
		"list":       patternsList,
		"deactivate": patternsDeactivate,
	}, args)
}

func patternsList(ctx context.Context, args []string) error {
	fs, g := newFlagSet("patterns list", "")
	all := fs.Bool("all", false, "Include inactive patterns")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	patterns, err := a.store.ListPatterns(ctx, !*all)
	if err != nil {
		return err
	}
	t := newTable("ID", "SOURCE IP", "ATTACK", "CATEGORY", "SEVERITY", "EVENTS", "FIRST SEEN", "LAST SEEN", "ACTIVE")
	for _, p := range patterns {
		attack := fmt.Sprint(p.AttackTypeID)
		if p.AttackType != nil {
			attack = p.AttackType.Name
		}
		t.row(p.ID, p.SourceIP, attack, p.Category, p.Severity, count(p.EventCount), fmtTime(p.FirstSeen), ago(p.LastSeen), p.IsActive)
	}
	t.flush()
	return nil
}

func patternsDeactivate(ctx context.Context, args []string) error {
	fs, g := newFlagSet("patterns deactivate", "<id>")
	notes := fs.String("notes", "", "Closing notes")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	id, err := parseID("pattern", fs.Arg(0))
	if err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	err = a.mutate(ctx, func(tx *state.Store, rec *audit.Logger) error {
		before, after, err := tx.DeactivatePattern(ctx, id, *notes)
		if err != nil {
			return err
		}
		return rec.Record(ctx, a.sess, "deactivate", "pattern", id, before.Snapshot(), after.Snapshot())
	})
	if err != nil {
		return err
	}
	fmt.Printf("Deactivated pattern #%d\n", id)
	return nil
}

func alertsCommand(ctx context.Context, args []string) error {
	return dispatch(ctx, "alerts", subcommands{
		"list": alertsList,
		"ack":  alertsAck,
	}, args)
}

func alertsList(ctx context.Context, args []string) error {
	fs, g := newFlagSet("alerts list", "")
	all := fs.Bool("all", false, "Include acknowledged alerts")
	limit := fs.Int("limit", 50, "Maximum rows (0 for all)")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	alerts, err := a.store.ListAlerts(ctx, !*all, *limit)
	if err != nil {
		return err
	}
	t := newTable("ID", "CREATED", "TYPE", "SEVERITY", "SOURCE IP", "TITLE", "ACK")
	for _, al := range alerts {
		t.row(al.ID, ago(al.CreatedAt), al.AlertType, al.Severity, orDash(al.SourceIP), al.Title, al.IsAcknowledged)
	}
	t.flush()
	return nil
}

func alertsAck(ctx context.Context, args []string) error {
	fs, g := newFlagSet("alerts ack", "<id>")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	id, err := parseID("alert", fs.Arg(0))
	if err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	err = a.mutate(ctx, func(tx *state.Store, rec *audit.Logger) error {
		before, after, err := tx.AcknowledgeAlert(ctx, id, a.sess.ActorID())
		if err != nil {
			return err
		}
		if before.IsAcknowledged {
			return nil
		}
		return rec.Record(ctx, a.sess, "acknowledge", "alert", id, before.Snapshot(), after.Snapshot())
	})
	if err != nil {
		return err
	}
	fmt.Printf("Acknowledged alert #%d\n", id)
	return nil
}
