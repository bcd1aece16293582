package export

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"logguard/internal/state"
	"logguard/internal/types"
)

type fakeSource struct {
	logs     []state.LogEntry
	patterns []state.AttackPattern
	filter   state.LogFilter
	active   bool
}

func (f *fakeSource) SearchLogs(_ context.Context, filter state.LogFilter) ([]state.LogEntry, error) {
	f.filter = filter
	return f.logs, nil
}

func (f *fakeSource) ListPatterns(_ context.Context, activeOnly bool) ([]state.AttackPattern, error) {
	f.active = activeOnly
	return f.patterns, nil
}

func readCSV(t *testing.T, path string, comma rune) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.Comma = comma
	records, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return records
}

func TestExportLogs(t *testing.T) {
	ts := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	src := &fakeSource{logs: []state.LogEntry{{
		ID:         7,
		Timestamp:  ts,
		Source:     "generator",
		SourceIP:   "203.0.113.5",
		EventType:  "ddos",
		AttackType: &state.AttackType{Name: "DDoS"},
		Category:   types.CategoryAvailability,
		Severity:   types.SeverityMedium,
		Status:     types.StatusDetected,
		ParsedData: state.NewPayload(types.ParsedData{Kind: types.PayloadManual, Manual: &types.ManualPayload{Details: "a; b, c"}}),
	}}}
	dir := t.TempDir()
	e, err := NewExporter(src, dir, ";")
	if err != nil {
		t.Fatal(err)
	}

	res, err := e.Logs(context.Background(), state.LogFilter{SourceIP: "203.0.113.5"}, "ddos")
	if err != nil {
		t.Fatalf("Logs failed: %v", err)
	}
	if res.Path != filepath.Join(dir, "ddos.csv") || res.Rows != 1 {
		t.Errorf("Unexpected result %+v", res)
	}
	if src.filter.SourceIP != "203.0.113.5" {
		t.Errorf("Filter not passed through: %+v", src.filter)
	}

	records := readCSV(t, res.Path, ';')
	if len(records) != 2 {
		t.Fatalf("Expected header and one row, got %d records", len(records))
	}
	if records[0][0] != "id" || records[1][0] != "7" || records[1][6] != "DDoS" || records[1][11] != "a; b, c" {
		t.Errorf("Unexpected records %v", records)
	}
	if records[1][1] != "2026-05-01T09:30:00Z" {
		t.Errorf("Unexpected timestamp %q", records[1][1])
	}
}

func TestExportPatterns(t *testing.T) {
	src := &fakeSource{patterns: []state.AttackPattern{{ID: 1, SourceIP: "203.0.113.5", AttackTypeID: 2, EventCount: 50, IsActive: true, Severity: types.SeverityCritical}}}
	dir := t.TempDir()
	e, err := NewExporter(src, dir, "")
	if err != nil {
		t.Fatal(err)
	}
	e.now = func() time.Time { return time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC) }

	res, err := e.Patterns(context.Background(), true, "")
	if err != nil {
		t.Fatalf("Patterns failed: %v", err)
	}
	if filepath.Base(res.Path) != "patterns_20260501_093000.csv" {
		t.Errorf("Unexpected default name %s", res.Path)
	}
	if !src.active {
		t.Error("Expected activeOnly to be passed through")
	}
	records := readCSV(t, res.Path, ',')
	if records[1][2] != "2" || records[1][5] != "50" || records[1][8] != "true" {
		t.Errorf("Unexpected records %v", records)
	}
}

func TestPathEnforcesExtension(t *testing.T) {
	e, err := NewExporter(&fakeSource{}, "out", ",")
	if err != nil {
		t.Fatal(err)
	}
	tests := map[string]string{
		"report":     filepath.Join("out", "report.csv"),
		"report.CSV": filepath.Join("out", "report.CSV"),
		"report.txt": filepath.Join("out", "report.txt.csv"),
		"/tmp/x":     "/tmp/x.csv",
	}
	for in, want := range tests {
		if got := e.Path(TableLogs, in); got != want {
			t.Errorf("Path(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInvalidDelimiter(t *testing.T) {
	for _, d := range []string{"\"", "\n", ";;"} {
		if _, err := NewExporter(&fakeSource{}, "", d); !errors.Is(err, state.ErrValidation) {
			t.Errorf("Expected validation error for %q, got %v", d, err)
		}
	}
}
