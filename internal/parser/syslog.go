package parser

import (
	"regexp"
	"strings"
	"time"
)

// SyslogParser parses generic system logs
type SyslogParser struct {
	reSudo  *regexp.Regexp
	reMySQL *regexp.Regexp
	now     func() time.Time
}

func NewSyslogParser() *SyslogParser {
	return &SyslogParser{
		// sudo: pam_unix(sudo:auth): authentication failure; logname= user=root host= ...
		reSudo: regexp.MustCompile(`sudo:auth.*authentication failure;.*\buser=(\S+)`),
		// MySQL: Access denied for user 'root'@'1.2.3.4'
		reMySQL: regexp.MustCompile(`Access denied for user '([^']+)'@'([^']+)'`),
		now:     time.Now,
	}
}

func (p *SyslogParser) Parse(line string) *ParsedEvent {
	ts := syslogTime(line, p.now())

	if matches := p.reMySQL.FindStringSubmatch(line); len(matches) > 2 {
		return &ParsedEvent{
			Timestamp: ts,
			Source:    "mysql",
			Type:      TypeLoginFailed,
			User:      matches[1],
			IP:        matches[2],
			Raw:       line,
		}
	}

	if strings.Contains(line, "sudo") {
		if matches := p.reSudo.FindStringSubmatch(line); len(matches) > 1 {
			return &ParsedEvent{
				Timestamp: ts,
				Source:    "syslog_sudo",
				Type:      TypeSudoFailed,
				User:      matches[1],
				Raw:       line,
			}
		}
	}

	return nil
}
