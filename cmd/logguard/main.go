package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"logguard/internal/audit"
	"logguard/internal/config"
	"logguard/internal/metrics"
	"logguard/internal/session"
	"logguard/internal/state"
	"logguard/internal/types"
)

// Exit codes by error kind
const (
	exitOK           = 0
	exitFailure      = 1
	exitValidation   = 2
	exitReferential  = 3
	exitConnectivity = 4
)

type command struct {
	run   func(ctx context.Context, args []string) error
	usage string
}

var commands = map[string]command{
	"init":     {initCommand, "Create the schema and seed data, optionally an admin user"},
	"generate": {generateCommand, "Write N synthetic log rows: generate <ip> <count> <attack-type> <user>"},
	"detect":   {detectCommand, "Classify sources over the threshold and upsert attack patterns"},
	"users":    {usersCommand, "Manage users (list, create, update, delete)"},
	"roles":    {rolesCommand, "Manage roles (list, create, delete)"},
	"attacks":  {attacksCommand, "Manage attack types (list, create, update, delete)"},
	"logs":     {logsCommand, "Manage log entries (list, show, create, search, status, false-positive, resolve, delete)"},
	"patterns": {patternsCommand, "List or deactivate attack patterns"},
	"alerts":   {alertsCommand, "List or acknowledge alerts"},
	"summary":  {summaryCommand, "Totals and last seen per attack type"},
	"stats":    {statsCommand, "CIA statistics, top attackers and database stats"},
	"export":   {exportCommand, "Export logs or patterns as CSV"},
	"ingest":   {ingestCommand, "Parse a log file or the journal into log entries"},
	"cleanup":  {cleanupCommand, "Delete resolved logs older than the retention period"},
	"audit":    {auditCommand, "List recent audit entries"},
	"serve":    {serveCommand, "Serve the read-only JSON API"},
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitValidation)
	}

	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage()
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		printUsage()
		os.Exit(exitValidation)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.run(ctx, os.Args[2:])
	stop()
	os.Exit(exitCode(err))
}

func printUsage() {
	fmt.Println("Usage: logguard <command> [flags] [args]")
	fmt.Println("Commands:")
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Printf("  %-9s %s\n", n, commands[n].usage)
	}
	fmt.Println("\nEvery command accepts -config <file> and -as <user>.")
}

// exitCode reports err on stderr and maps its kind to the process exit code
func exitCode(err error) int {
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	fmt.Fprintf(os.Stderr, "logguard: %v\n", err)
	switch {
	case errors.Is(err, state.ErrValidation):
		return exitValidation
	case errors.Is(err, state.ErrReferential):
		return exitReferential
	case errors.Is(err, state.ErrConnectivity):
		return exitConnectivity
	}
	return exitFailure
}

// globals are the flags shared by every command
type globals struct {
	config string
	as     string
}

func newFlagSet(name, args string) (*flag.FlagSet, *globals) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	g := &globals{}
	fs.StringVar(&g.config, "config", "", "Path to config file (default logguard.yml or $"+config.EnvConfig+")")
	fs.StringVar(&g.as, "as", "", "Acting user, id or username (default $"+config.EnvUser+")")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: logguard %s [flags] %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs, g
}

// parse parses flags and checks the number of positional arguments
func parse(fs *flag.FlagSet, args []string, want int) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return state.Invalidf("%v", err)
	}
	if want >= 0 && fs.NArg() != want {
		fs.Usage()
		return state.Invalidf("%s: expected %d argument(s), got %d", fs.Name(), want, fs.NArg())
	}
	return nil
}

func parseID(what, raw string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, state.Invalidf("invalid %s id %q", what, raw)
	}
	return uint(id), nil
}

// app is the per-invocation environment: config, one store connection, audit logger and session
type app struct {
	cfg   *types.Config
	store *state.Store
	audit *audit.Logger
	sess  *session.Session
}

// loadConfig reads the config file. A missing default file falls back to defaults.
func (g *globals) loadConfig() (*types.Config, error) {
	path, explicit := config.ResolvePath(g.config)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, state.Invalidf("%v", err)
	}
	return cfg, nil
}

func (g *globals) open(ctx context.Context) (*app, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Logging.Level, cfg.Logging.Format)

	store, err := state.Open(ctx, cfg.Database.Path, cfg.Database.BusyTimeout)
	if err != nil {
		return nil, err
	}

	who := g.as
	if who == "" {
		who = os.Getenv(config.EnvUser)
	}
	sess, err := session.Resolve(ctx, store, who)
	if err != nil {
		store.Close()
		if errors.Is(err, state.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", state.ErrReferential, err)
		}
		return nil, err
	}

	return &app{
		cfg:   cfg,
		store: store,
		audit: audit.NewLogger(store, cfg.Output.AuditLogPath),
		sess:  sess,
	}, nil
}

// close writes the metrics textfile and closes the store
func (a *app) close() {
	if err := metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		slog.Warn("failed to write metrics textfile", "path", a.cfg.Metrics.Textfile, "error", err)
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("failed to close database", "error", err)
	}
}

// mutate runs fn in one transaction with an audit logger bound to it
func (a *app) mutate(ctx context.Context, fn func(tx *state.Store, rec *audit.Logger) error) error {
	return a.store.Transaction(ctx, func(tx *state.Store) error {
		return fn(tx, a.audit.With(tx))
	})
}

func setupLogging(level, format string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// sanitize strips control characters (except newline) to prevent terminal injection
func sanitize(s string) string {
	var builder strings.Builder
	for _, r := range s {
		// Allow printable characters, newline, and tab
		if r >= 32 || r == '\n' || r == '\t' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
