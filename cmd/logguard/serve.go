package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"logguard/internal/dashboard"
	"logguard/internal/ingest"
	"logguard/internal/parser"
	"logguard/internal/state"
)

func serveCommand(ctx context.Context, args []string) error {
	fs, g := newFlagSet("serve", "")
	addr := fs.String("addr", "", "Listen address (default dashboard.addr)")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	listen := a.cfg.Dashboard.Addr
	if *addr != "" {
		listen = *addr
	}
	return dashboard.NewServer(a.store, listen).Start(ctx)
}

func ingestCommand(ctx context.Context, args []string) error {
	fs, g := newFlagSet("ingest", "[file]")
	format := fs.String("format", "ssh", "Line format: "+strings.Join(parser.Formats, ", "))
	follow := fs.Bool("follow", false, "Keep reading as the source grows, until interrupted")
	journal := fs.Bool("journal", false, "Read sshd, sudo and mysqld entries from journalctl instead of a file")
	asJSON := fs.Bool("json", false, "Print the report as JSON")
	if err := parse(fs, args, -1); err != nil {
		return err
	}

	var src ingest.Ingester
	switch {
	case *journal && fs.NArg() == 0:
		src = ingest.NewJournalReader(*follow, ingest.DefaultIdentifiers...)
		if !flagSet(fs, "format") {
			*format = "journal"
		}
	case !*journal && fs.NArg() == 1:
		src = ingest.NewFileTailer(fs.Arg(0), *follow)
	default:
		fs.Usage()
		return state.Invalidf("ingest: give exactly one file, or -journal without a file")
	}
	p, err := parser.New(*format)
	if err != nil {
		return state.Invalidf("%v", err)
	}

	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	rep, err := ingest.NewRunner(a.store, a.audit).Run(ctx, a.sess, src, p, *format)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(rep)
	}
	fmt.Printf("Read %s line(s): %s parsed, %s stored in %d batch(es), %s skipped\n",
		count(rep.Lines), count(rep.Parsed), count(rep.Inserted), rep.Batches, count(rep.Skipped))
	if len(rep.Categories) > 0 {
		t := newTable("CATEGORY", "EVENTS", "SHARE")
		for _, c := range rep.Categories {
			t.row(c.Category, count(c.Count), fmt.Sprintf("%.2f%%", c.Percentage))
		}
		t.flush()
	}
	return nil
}

// flagSet reports whether name was given on the command line
func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
