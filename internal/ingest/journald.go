package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"
)

// JournalEntry represents the JSON structure from journalctl
type JournalEntry struct {
	Timestamp        string `json:"__REALTIME_TIMESTAMP"` // Microseconds as string
	Message          string `json:"MESSAGE"`
	SyslogIdentifier string `json:"SYSLOG_IDENTIFIER"`
	PID              string `json:"_PID"`
	UID              string `json:"_UID"`  // User ID
	Comm             string `json:"_COMM"` // Command Name (e.g. sshd)
}

// DefaultIdentifiers are the syslog identifiers the parsers understand
var DefaultIdentifiers = []string{"sshd", "sudo", "mysqld"}

// JournalReader reads the systemd journal via CLI
type JournalReader struct {
	follow      bool
	identifiers []string
	cmd         *exec.Cmd
}

// NewJournalReader reads entries for identifiers (all when empty). Without
// follow it stops at the end of the journal.
func NewJournalReader(follow bool, identifiers ...string) *JournalReader {
	return &JournalReader{follow: follow, identifiers: identifiers}
}

func (j *JournalReader) args() []string {
	args := []string{"-o", "json", "--no-pager"}
	if j.follow {
		args = append(args, "-f")
	}
	for _, id := range j.identifiers {
		args = append(args, "-t", id)
	}
	return args
}

func (j *JournalReader) Start(ctx context.Context) (<-chan LogLine, error) {
	cmd := exec.CommandContext(ctx, "journalctl", j.args()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to pipe journalctl: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("journalctl not found (not a systemd system?)")
		}
		return nil, fmt.Errorf("failed to start journalctl: %w", err)
	}
	j.cmd = cmd

	out := make(chan LogLine)

	go func() {
		defer close(out)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line, ok := parseJournalLine(scanner.Bytes())
			if !ok {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}

		// If scanner stops, command might have died
		_ = cmd.Wait()
	}()

	return out, nil
}

// parseJournalLine converts one journalctl JSON record into a syslog-like line
func parseJournalLine(raw []byte) (LogLine, bool) {
	var entry JournalEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// Malformed line (maybe partial), skip
		return LogLine{}, false
	}

	// SSHD must be root (UID 0); anything else is "logger -t sshd" from a user
	if entry.SyslogIdentifier == "sshd" && entry.UID != "0" {
		slog.Warn("dropped spoofed sshd journal entry", "uid", entry.UID, "pid", entry.PID)
		return LogLine{}, false
	}

	ts := time.Now().UTC()
	if usec, err := strconv.ParseInt(entry.Timestamp, 10, 64); err == nil {
		ts = time.UnixMicro(usec).UTC()
	}

	// Format: "Processname[PID]: Message" to mimic syslog for existing parsers
	return LogLine{
		Source:    "journald",
		Timestamp: ts,
		Content:   fmt.Sprintf("%s[%s]: %s", entry.SyslogIdentifier, entry.PID, entry.Message),
	}, true
}

func (j *JournalReader) Stop() error {
	if j.cmd != nil && j.cmd.Process != nil {
		return j.cmd.Process.Kill()
	}
	return nil
}
