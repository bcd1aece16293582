package parser

import (
	"testing"
	"time"
)

func TestSSHParser_Parse_Failed(t *testing.T) {
	parser := NewSSHParser()

	line := "Failed password for invalid user admin from 192.168.1.100 port 52944 ssh2"
	evt := parser.Parse(line)

	if evt == nil {
		t.Fatal("Expected parsed event, got nil")
	}
	if evt.Type != TypeLoginFailed {
		t.Errorf("Expected type 'login_failed', got '%s'", evt.Type)
	}
	if evt.User != "admin" {
		t.Errorf("Expected user 'admin', got '%s'", evt.User)
	}
	if evt.IP != "192.168.1.100" {
		t.Errorf("Expected IP '192.168.1.100', got '%s'", evt.IP)
	}
	if !evt.Timestamp.IsZero() {
		t.Errorf("Expected no timestamp without a syslog header, got %v", evt.Timestamp)
	}
}

func TestSSHParser_Parse_Accepted(t *testing.T) {
	parser := NewSSHParser()

	line := "Accepted password for root from 10.0.0.5 port 22 ssh2"
	evt := parser.Parse(line)

	if evt == nil {
		t.Fatal("Expected parsed event, got nil")
	}
	if evt.Type != TypeLoginSuccess {
		t.Errorf("Expected type 'login_success', got '%s'", evt.Type)
	}
	if evt.User != "root" {
		t.Errorf("Expected user 'root', got '%s'", evt.User)
	}
}

func TestSSHParser_Parse_Invalid(t *testing.T) {
	parser := NewSSHParser()

	if evt := parser.Parse("This is not an SSH log line"); evt != nil {
		t.Error("Expected nil for invalid line, got event")
	}
}

func TestSSHParser_SyslogTimestamp(t *testing.T) {
	parser := NewSSHParser()
	parser.now = func() time.Time { return time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC) }

	evt := parser.Parse("Mar  9 23:59:58 web1 sshd[811]: Failed password for root from 203.0.113.5 port 4711 ssh2")
	if evt == nil {
		t.Fatal("Expected parsed event, got nil")
	}
	want := time.Date(2026, 3, 9, 23, 59, 58, 0, time.UTC)
	if !evt.Timestamp.Equal(want) {
		t.Errorf("Expected %v, got %v", want, evt.Timestamp)
	}

	// December stamps read in January belong to the previous year
	parser.now = func() time.Time { return time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC) }
	evt = parser.Parse("Dec 31 23:59:00 web1 sshd[811]: Failed password for root from 203.0.113.5 port 4711 ssh2")
	if evt.Timestamp.Year() != 2025 {
		t.Errorf("Expected year 2025, got %v", evt.Timestamp)
	}

	evt = parser.Parse("2026-03-09T10:00:00.5+02:00 web1 sshd[811]: Failed password for root from 203.0.113.5 port 4711 ssh2")
	if !evt.Timestamp.Equal(time.Date(2026, 3, 9, 8, 0, 0, 500_000_000, time.UTC)) {
		t.Errorf("Unexpected ISO timestamp %v", evt.Timestamp)
	}
}

func TestHTTPParser_Parse(t *testing.T) {
	parser := NewHTTPParser("nginx")

	line := `198.51.100.4 - - [10/Mar/2026:13:55:36 +0100] "GET /wp-login.php HTTP/1.1" 404 153 "-" "sqlmap/1.7"`
	evt := parser.Parse(line)
	if evt == nil {
		t.Fatal("Expected parsed event, got nil")
	}
	if evt.StatusCode != 404 || evt.URL != "/wp-login.php" || evt.Method != "GET" {
		t.Errorf("Unexpected event %+v", evt)
	}
	if evt.UserAgent != "sqlmap/1.7" || evt.Source != "nginx" {
		t.Errorf("Unexpected UA/source %q/%q", evt.UserAgent, evt.Source)
	}
	if !evt.Timestamp.Equal(time.Date(2026, 3, 10, 12, 55, 36, 0, time.UTC)) {
		t.Errorf("Unexpected timestamp %v", evt.Timestamp)
	}

	if parser.Parse("garbage") != nil {
		t.Error("Expected nil for non-CLF line")
	}
}

func TestSyslogParser_Parse(t *testing.T) {
	parser := NewSyslogParser()

	evt := parser.Parse("Access denied for user 'root'@'192.0.2.33' (using password: YES)")
	if evt == nil || evt.Source != "mysql" || evt.IP != "192.0.2.33" || evt.User != "root" {
		t.Errorf("Unexpected mysql event %+v", evt)
	}

	evt = parser.Parse("Mar  9 10:00:00 web1 sudo: pam_unix(sudo:auth): authentication failure; logname=bob uid=1000 euid=0 tty=/dev/pts/0 ruser=bob rhost=  user=bob")
	if evt == nil || evt.Type != TypeSudoFailed || evt.User != "bob" || evt.IP != "" {
		t.Errorf("Unexpected sudo event %+v", evt)
	}

	if parser.Parse("kernel: eth0 link up") != nil {
		t.Error("Expected nil for unrelated line")
	}
}

func TestNew(t *testing.T) {
	for _, f := range Formats {
		if _, err := New(f); err != nil {
			t.Errorf("New(%q) failed: %v", f, err)
		}
	}
	if _, err := New("csv"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestMulti_FirstMatchWins(t *testing.T) {
	p, err := New("journal")
	if err != nil {
		t.Fatal(err)
	}

	evt := p.Parse("sshd[811]: Failed password for root from 203.0.113.5 port 4711 ssh2")
	if evt == nil || evt.Source != "ssh" {
		t.Errorf("Expected ssh event, got %+v", evt)
	}
	evt = p.Parse("sudo[90]: pam_unix(sudo:auth): authentication failure; logname=bob user=bob")
	if evt == nil || evt.Source != "syslog_sudo" {
		t.Errorf("Expected sudo event, got %+v", evt)
	}
	if p.Parse("systemd[1]: Started cron.") != nil {
		t.Error("Expected nil for unrelated line")
	}
}
