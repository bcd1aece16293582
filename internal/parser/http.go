package parser

import (
	"regexp"
	"strconv"
	"time"
)

const clfTime = "02/Jan/2006:15:04:05 -0700"

// HTTPParser parses Nginx/Apache Combined Log Format
// Format: 1.2.3.4 - user [01/Jan/2026:12:00:00 +0000] "GET /path HTTP/1.1" 200 123 "-" "UserAgent"
type HTTPParser struct {
	re     *regexp.Regexp
	source string
}

func NewHTTPParser(sourceLabel string) *HTTPParser {
	if sourceLabel == "" || sourceLabel == "http" {
		sourceLabel = "web_server"
	}
	return &HTTPParser{
		// IP, user, time, method, URL, proto, status, size, referer, UA
		re:     regexp.MustCompile(`^(\S+) \S+ (\S+) \[([^\]]+)\] "(\S+) (\S+) ([^"]+)" (\d{3}) (\d+|-) "([^"]*)" "([^"]*)"`),
		source: sourceLabel,
	}
}

func (p *HTTPParser) Parse(line string) *ParsedEvent {
	matches := p.re.FindStringSubmatch(line)
	if matches == nil {
		return nil
	}

	statusCode, err := strconv.Atoi(matches[7])
	if err != nil {
		return nil
	}
	evt := &ParsedEvent{
		Source:     p.source,
		Type:       TypeHTTPRequest,
		IP:         matches[1],
		Method:     matches[4],
		URL:        matches[5],
		StatusCode: statusCode,
		UserAgent:  matches[10],
		Raw:        line,
	}
	if user := matches[2]; user != "-" {
		evt.User = user
	}
	if ts, err := time.Parse(clfTime, matches[3]); err == nil {
		evt.Timestamp = ts.UTC()
	}
	return evt
}
