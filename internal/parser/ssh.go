package parser

import (
	"regexp"
	"time"
)

// SSHParser extracts events from sshd logs
type SSHParser struct {
	reFailed        *regexp.Regexp
	reFailedInvalid *regexp.Regexp
	reAccepted      *regexp.Regexp
	now             func() time.Time
}

// NewSSHParser creates a new SSH log parser
func NewSSHParser() *SSHParser {
	return &SSHParser{
		// Failed password for invalid user root from 1.2.3.4 ...
		reFailedInvalid: regexp.MustCompile(`Failed (?:password|publickey) for invalid user (\S+) from (\S+)`),
		// Failed password for root from 1.2.3.4 ...
		reFailed: regexp.MustCompile(`Failed (?:password|publickey) for (\S+) from (\S+)`),
		// Accepted password for root from 1.2.3.4 ...
		reAccepted: regexp.MustCompile(`Accepted \w+ for (\S+) from (\S+)`),
		now:        time.Now,
	}
}

// Parse implements the Parser interface
func (p *SSHParser) Parse(line string) *ParsedEvent {
	evt := &ParsedEvent{
		Timestamp: syslogTime(line, p.now()),
		Source:    "ssh",
		Raw:       line,
	}

	// "invalid user" first, it is the more specific form
	for _, re := range []*regexp.Regexp{p.reFailedInvalid, p.reFailed} {
		if matches := re.FindStringSubmatch(line); len(matches) > 2 {
			evt.Type = TypeLoginFailed
			evt.User = matches[1]
			evt.IP = matches[2]
			return evt
		}
	}

	if matches := p.reAccepted.FindStringSubmatch(line); len(matches) > 2 {
		evt.Type = TypeLoginSuccess
		evt.User = matches[1]
		evt.IP = matches[2]
		return evt
	}

	return nil
}
