package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"logguard/internal/audit"
	"logguard/internal/detect"
	"logguard/internal/explain"
	"logguard/internal/generate"
	"logguard/internal/state"
)

func initCommand(ctx context.Context, args []string) error {
	fs, g := newFlagSet("init", "")
	adminUser := fs.String("admin-user", "", "Create an admin user with this name")
	adminPassword := fs.String("admin-password", "", "Password for -admin-user")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	if (*adminUser == "") != (*adminPassword == "") {
		return state.Invalidf("-admin-user and -admin-password go together")
	}

	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if *adminUser != "" {
		role, err := a.store.FindRole(ctx, "admin")
		if err != nil {
			return err
		}
		err = a.mutate(ctx, func(tx *state.Store, rec *audit.Logger) error {
			u, err := tx.CreateUser(ctx, *adminUser, *adminPassword, &role.ID)
			if err != nil {
				return err
			}
			return rec.Record(ctx, a.sess, "create", "user", u.ID, nil, u.Snapshot())
		})
		if err != nil {
			return err
		}
		fmt.Printf("Created admin user %s\n", sanitize(*adminUser))
	}
	fmt.Printf("Database ready at %s\n", a.cfg.Database.Path)
	return nil
}

func generateCommand(ctx context.Context, args []string) error {
	fs, g := newFlagSet("generate", "<ip> <count> <attack-type> <user>")
	interval := fs.Duration("interval", 0, "Spacing between generated rows, 0 for identical timestamps (default generator.interval)")
	if err := parse(fs, args, 4); err != nil {
		return err
	}
	n, err := strconv.Atoi(fs.Arg(1))
	if err != nil {
		return state.Invalidf("count must be an integer, got %q", fs.Arg(1))
	}

	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	spacing := *a.cfg.Generator.Interval
	if flagSet(fs, "interval") {
		spacing = *interval
	}
	if span := spacing * time.Duration(max(n-1, 0)); a.cfg.Detection.Window > 0 && span > a.cfg.Detection.Window {
		slog.Warn("generated rows span more than the detection window; older rows will fall outside it",
			"span", span, "window", a.cfg.Detection.Window)
	}
	gen := generate.NewGenerator(a.store, a.audit, spacing)
	res, err := gen.Generate(ctx, a.sess, generate.Request{
		SourceIP:   fs.Arg(0),
		Count:      n,
		AttackType: fs.Arg(2),
		ActingUser: fs.Arg(3),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Inserted %s %s log rows for %s\n", count(res.Rows), sanitize(res.AttackType), res.SourceIP)
	fmt.Printf("Batch:  %s\n", res.BatchID)
	fmt.Printf("Range:  %s .. %s\n", res.First.Format(time.RFC3339Nano), res.Last.Format(time.RFC3339Nano))
	return nil
}

func detectCommand(ctx context.Context, args []string) error {
	fs, g := newFlagSet("detect", "")
	window := fs.Duration("window", 0, "Counting window for every attack type (overrides config)")
	threshold := fs.Int("threshold", 0, "Hits per window for every attack type (overrides config)")
	attackType := fs.String("attack-type", "", "Only scan this attack type (id or name)")
	ip := fs.String("ip", "", "Only scan this source IP")
	asJSON := fs.Bool("json", false, "Print the report as JSON")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	if *window < 0 || *threshold < 0 {
		return state.Invalidf("-window and -threshold must be positive")
	}

	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	client := &http.Client{Timeout: a.cfg.Explain.Timeout}
	explainer := explain.New(a.cfg.Explain.Mode, a.cfg.Explain.URL, a.cfg.Explain.Model, client)
	engine, err := detect.NewEngine(a.store, a.audit, explainer, detect.ApplyOverrides(a.cfg.Detection, *window, *threshold))
	if err != nil {
		return err
	}

	rep, err := engine.Run(ctx, a.sess, detect.Options{AttackType: *attackType, SourceIP: *ip})
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(rep)
	}
	printReport(rep)
	return nil
}

func printReport(rep *detect.Report) {
	fmt.Printf("Detection run %s at %s\n", rep.RunID, fmtTime(rep.At))
	fmt.Printf("Scanned %s pending rows in %d groups (%d below threshold, %d allowlisted)\n",
		count(rep.PendingRows), rep.Groups, rep.BelowThreshold, rep.Allowlisted)
	if len(rep.Classifications) == 0 {
		fmt.Println("No active attack sources.")
		return
	}

	fmt.Println()
	t := newTable("SOURCE IP", "ATTACK", "HITS", "WINDOW", "THRESHOLD", "OBSERVED", "STORED", "EVENTS", "PATTERN", "ALERT")
	for _, c := range rep.Classifications {
		pattern := fmt.Sprintf("#%d", c.PatternID)
		if c.NewPattern {
			pattern += " (new)"
		}
		alert := "-"
		if c.AlertID != 0 {
			alert = fmt.Sprintf("#%d", c.AlertID)
		}
		t.row(c.SourceIP, c.AttackType, c.Hits, c.Window, c.Threshold, c.ObservedSeverity, c.StoredSeverity, count(c.EventCount), pattern, alert)
	}
	t.flush()
}
