package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"logguard/internal/classify"
	"logguard/internal/parser"
	"logguard/internal/state"
	"logguard/internal/types"
)

// Attack types assigned to parsed events
const (
	AttackBruteForce   = "Brute Force"
	AttackPrivEsc      = "Privilege Escalation"
	AttackWebScan      = "Web Scan"
	AttackUnauthorized = "Unauthorized Access"
)

// localIP stands in for events without a remote address, such as sudo
const localIP = "127.0.0.1"

// AttackTypeFinder resolves an attack type by id or name
type AttackTypeFinder interface {
	FindAttackType(ctx context.Context, idOrName string) (*state.AttackType, error)
}

// Mapper turns parsed events into log entries. Events that are not
// security-relevant map to nil.
type Mapper struct {
	finder AttackTypeFinder
	cache  map[string]*state.AttackType
	now    func() time.Time
}

func NewMapper(finder AttackTypeFinder) *Mapper {
	return &Mapper{
		finder: finder,
		cache:  make(map[string]*state.AttackType),
		now:    time.Now,
	}
}

type mapping struct {
	attack    string
	eventType string
	payload   types.ParsedData
	resource  string
}

func classifyEvent(evt *parser.ParsedEvent) *mapping {
	switch evt.Type {
	case parser.TypeLoginFailed:
		return &mapping{
			attack:    AttackBruteForce,
			eventType: "auth_failure",
			resource:  evt.Source,
			payload: types.ParsedData{Kind: types.PayloadAuth, Auth: &types.AuthPayload{
				Service: evt.Source,
				User:    evt.User,
				Outcome: "failed",
			}},
		}
	case parser.TypeSudoFailed:
		return &mapping{
			attack:    AttackPrivEsc,
			eventType: "sudo_abuse",
			resource:  "sudo",
			payload: types.ParsedData{Kind: types.PayloadSyslog, Syslog: &types.SyslogPayload{
				Program: "sudo",
				User:    evt.User,
			}},
		}
	case parser.TypeHTTPRequest:
		m := &mapping{
			resource: evt.URL,
			payload: types.ParsedData{Kind: types.PayloadHTTP, HTTP: &types.HTTPPayload{
				Method:     evt.Method,
				URL:        evt.URL,
				StatusCode: evt.StatusCode,
				UserAgent:  evt.UserAgent,
			}},
		}
		switch evt.StatusCode {
		case 404:
			m.attack, m.eventType = AttackWebScan, "web_scan"
		case 401:
			m.attack, m.eventType = AttackUnauthorized, "access_denied"
		case 403:
			m.attack, m.eventType = AttackUnauthorized, "access_forbidden"
		default:
			return nil
		}
		return m
	}
	return nil
}

// sourceAddr normalizes the event address. Host names other than localhost are rejected.
func sourceAddr(ip string) (string, bool) {
	ip = strings.TrimSpace(ip)
	switch ip {
	case "", "local", "localhost":
		return localIP, true
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}

func (m *Mapper) attackType(ctx context.Context, name string) (*state.AttackType, error) {
	if at, ok := m.cache[name]; ok {
		return at, nil
	}
	at, err := m.finder.FindAttackType(ctx, name)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, fmt.Errorf("attack type %q is not seeded: %w", name, state.ErrReferential)
		}
		return nil, err
	}
	m.cache[name] = at
	return at, nil
}

// Map builds the log entry for evt read from line. A nil entry means the event is skipped.
func (m *Mapper) Map(ctx context.Context, evt *parser.ParsedEvent, line LogLine, createdBy *uint) (*state.LogEntry, error) {
	if evt == nil {
		return nil, nil
	}
	mp := classifyEvent(evt)
	if mp == nil {
		return nil, nil
	}
	ip, ok := sourceAddr(evt.IP)
	if !ok {
		return nil, nil
	}
	at, err := m.attackType(ctx, mp.attack)
	if err != nil {
		return nil, err
	}

	ts := evt.Timestamp
	if ts.IsZero() {
		ts = line.Timestamp
	}
	if ts.IsZero() {
		ts = m.now()
	}
	severity := at.DefaultSeverity
	if !severity.Valid() {
		severity = classify.DefaultSeverity(at.Category)
	}

	return &state.LogEntry{
		Timestamp:        ts.UTC(),
		Source:           evt.Source,
		SourceIP:         ip,
		EventType:        mp.eventType,
		AttackTypeID:     &at.ID,
		Category:         classify.Category(mp.eventType),
		Severity:         severity,
		Status:           types.StatusDetected,
		RawLog:           evt.Raw,
		ParsedData:       state.NewPayload(mp.payload),
		Username:         evt.User,
		ResourceAffected: mp.resource,
		CreatedBy:        createdBy,
	}, nil
}
