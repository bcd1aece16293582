// Package export writes log entries and attack patterns as CSV files.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"logguard/internal/state"
)

// Tables that can be exported
const (
	TableLogs     = "logs"
	TablePatterns = "patterns"
)

// Source is the read side of the store used by exports
type Source interface {
	SearchLogs(ctx context.Context, f state.LogFilter) ([]state.LogEntry, error)
	ListPatterns(ctx context.Context, activeOnly bool) ([]state.AttackPattern, error)
}

// Exporter writes CSV files into dir
type Exporter struct {
	src       Source
	dir       string
	delimiter rune
	now       func() time.Time
}

// NewExporter validates the delimiter: one character, not a quote or line break
func NewExporter(src Source, dir, delimiter string) (*Exporter, error) {
	if delimiter == "" {
		delimiter = ","
	}
	r, size := utf8.DecodeRuneInString(delimiter)
	if size != len(delimiter) || r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return nil, state.Invalidf("invalid CSV delimiter %q", delimiter)
	}
	if dir == "" {
		dir = "."
	}
	return &Exporter{src: src, dir: dir, delimiter: r, now: time.Now}, nil
}

// Result describes one written file
type Result struct {
	Path string
	Rows int
}

// Path returns where name is written, defaulting to <table>_<timestamp>.csv.
// The .csv extension is enforced.
func (e *Exporter) Path(table, name string) string {
	if name == "" {
		name = fmt.Sprintf("%s_%s", table, e.now().UTC().Format("20060102_150405"))
	}
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		name += ".csv"
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(e.dir, name)
}

// Logs exports log entries matching f
func (e *Exporter) Logs(ctx context.Context, f state.LogFilter, name string) (*Result, error) {
	logs, err := e.src.SearchLogs(ctx, f)
	if err != nil {
		return nil, err
	}
	header := []string{"id", "timestamp", "source", "source_ip", "destination_ip", "event_type",
		"attack_type", "cia_category", "severity", "status", "username", "details",
		"is_resolved", "is_false_positive"}
	rows := make([][]string, 0, len(logs))
	for _, l := range logs {
		attack := ""
		if l.AttackType != nil {
			attack = l.AttackType.Name
		}
		dst := ""
		if l.DestinationIP != nil {
			dst = *l.DestinationIP
		}
		rows = append(rows, []string{
			strconv.FormatUint(uint64(l.ID), 10),
			l.Timestamp.UTC().Format(time.RFC3339Nano),
			l.Source,
			l.SourceIP,
			dst,
			l.EventType,
			attack,
			string(l.Category),
			string(l.Severity),
			string(l.Status),
			l.Username,
			l.ParsedData.Data().Details(),
			strconv.FormatBool(l.IsResolved),
			strconv.FormatBool(l.IsFalsePositive),
		})
	}
	return e.write(e.Path(TableLogs, name), header, rows)
}

// Patterns exports attack patterns, optionally only active ones
func (e *Exporter) Patterns(ctx context.Context, activeOnly bool, name string) (*Result, error) {
	patterns, err := e.src.ListPatterns(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	header := []string{"id", "source_ip", "attack_type", "cia_category", "severity",
		"event_count", "first_seen", "last_seen", "is_active"}
	rows := make([][]string, 0, len(patterns))
	for _, p := range patterns {
		attack := strconv.FormatUint(uint64(p.AttackTypeID), 10)
		if p.AttackType != nil {
			attack = p.AttackType.Name
		}
		rows = append(rows, []string{
			strconv.FormatUint(uint64(p.ID), 10),
			p.SourceIP,
			attack,
			string(p.Category),
			string(p.Severity),
			strconv.FormatInt(p.EventCount, 10),
			p.FirstSeen.UTC().Format(time.RFC3339Nano),
			p.LastSeen.UTC().Format(time.RFC3339Nano),
			strconv.FormatBool(p.IsActive),
		})
	}
	return e.write(e.Path(TablePatterns, name), header, rows)
}

func (e *Exporter) write(path string, header []string, rows [][]string) (*Result, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = e.delimiter
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s: %w", path, err)
	}
	return &Result{Path: path, Rows: len(rows)}, nil
}
