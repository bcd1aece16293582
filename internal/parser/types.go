package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Event types produced by the parsers
const (
	TypeLoginFailed  = "login_failed"
	TypeLoginSuccess = "login_success"
	TypeHTTPRequest  = "http_request"
	TypeSudoFailed   = "priv_escalation_fail"
)

// ParsedEvent represents a normalized detected action from a log
type ParsedEvent struct {
	Timestamp time.Time // zero when the line carries no parseable time
	Source    string    // "ssh", "nginx", "mysql", "syslog_sudo"
	Type      string    // one of the Type* constants
	IP        string    // empty for local events
	User      string
	Raw       string

	// HTTP specific
	Method     string
	URL        string
	StatusCode int
	UserAgent  string
}

// Parser defines the interface for log parsers
type Parser interface {
	Parse(line string) *ParsedEvent
}

// Formats accepted by New
var Formats = []string{"ssh", "http", "syslog", "journal"}

// Multi tries each parser in order and returns the first match
type Multi []Parser

func (m Multi) Parse(line string) *ParsedEvent {
	for _, p := range m {
		if evt := p.Parse(line); evt != nil {
			return evt
		}
	}
	return nil
}

// New returns the parser for a format name
func New(format string) (Parser, error) {
	switch strings.ToLower(format) {
	case "ssh":
		return NewSSHParser(), nil
	case "http", "nginx", "apache":
		return NewHTTPParser(strings.ToLower(format)), nil
	case "syslog":
		return NewSyslogParser(), nil
	case "journal":
		return Multi{NewSSHParser(), NewSyslogParser()}, nil
	}
	return nil, fmt.Errorf("unknown log format %q (want one of %s)", format, strings.Join(Formats, ", "))
}

var (
	// Jan  2 15:04:05 host prog[pid]: ...
	reBSDStamp = regexp.MustCompile(`^([A-Z][a-z]{2} [ \d]\d \d{2}:\d{2}:\d{2}) `)
	// 2026-01-02T15:04:05.123456+00:00 host prog[pid]: ...
	reISOStamp = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\S+) `)
)

// syslogTime reads the timestamp prefix of a syslog line. BSD stamps carry no
// year, so the year of now is used, stepping back one year for stamps in the future.
func syslogTime(line string, now time.Time) time.Time {
	if m := reISOStamp.FindStringSubmatch(line); m != nil {
		if t, err := time.Parse(time.RFC3339Nano, m[1]); err == nil {
			return t.UTC()
		}
	}
	if m := reBSDStamp.FindStringSubmatch(line); m != nil {
		t, err := time.ParseInLocation("Jan _2 15:04:05", m[1], now.Location())
		if err != nil {
			return time.Time{}
		}
		t = t.AddDate(now.Year(), 0, 0)
		if t.After(now.Add(24 * time.Hour)) {
			t = t.AddDate(-1, 0, 0)
		}
		return t.UTC()
	}
	return time.Time{}
}
