package types

import (
	"errors"
	"fmt"
	"time"
)

// PayloadKind tags which variant of ParsedData is populated
type PayloadKind string

const (
	PayloadGenerated PayloadKind = "generated"
	PayloadAuth      PayloadKind = "auth"
	PayloadHTTP      PayloadKind = "http"
	PayloadSyslog    PayloadKind = "syslog"
	PayloadManual    PayloadKind = "manual"
)

// ParsedData is the structured payload of a log entry. Exactly one variant
// matching Kind is set.
type ParsedData struct {
	Kind      PayloadKind       `json:"kind"`
	Generated *GeneratedPayload `json:"generated,omitempty"`
	Auth      *AuthPayload      `json:"auth,omitempty"`
	HTTP      *HTTPPayload      `json:"http,omitempty"`
	Syslog    *SyslogPayload    `json:"syslog,omitempty"`
	Manual    *ManualPayload    `json:"manual,omitempty"`
}

type GeneratedPayload struct {
	BatchID  string `json:"batch_id"`
	Sequence int    `json:"sequence"`
	Details  string `json:"details"`
}

type AuthPayload struct {
	Service string `json:"service"` // ssh, mysql
	User    string `json:"user"`
	Outcome string `json:"outcome"` // failed, accepted
}

type HTTPPayload struct {
	Method     string `json:"method"`
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	UserAgent  string `json:"user_agent"`
}

type SyslogPayload struct {
	Program string `json:"program"`
	User    string `json:"user"`
}

type ManualPayload struct {
	Details string `json:"details"`
}

// Validate checks that only the variant named by Kind is present
func (p ParsedData) Validate() error {
	set := map[PayloadKind]bool{
		PayloadGenerated: p.Generated != nil,
		PayloadAuth:      p.Auth != nil,
		PayloadHTTP:      p.HTTP != nil,
		PayloadSyslog:    p.Syslog != nil,
		PayloadManual:    p.Manual != nil,
	}
	present, ok := set[p.Kind]
	if !ok {
		return fmt.Errorf("unknown payload kind %q", p.Kind)
	}
	if !present {
		return fmt.Errorf("payload kind %q has no %s variant", p.Kind, p.Kind)
	}
	for kind, isSet := range set {
		if isSet && kind != p.Kind {
			return fmt.Errorf("payload kind %q also carries a %s variant", p.Kind, kind)
		}
	}
	return nil
}

// Details returns a one-line description of the payload
func (p ParsedData) Details() string {
	switch p.Kind {
	case PayloadGenerated:
		return p.Generated.Details
	case PayloadAuth:
		return fmt.Sprintf("%s login %s for %s", p.Auth.Service, p.Auth.Outcome, p.Auth.User)
	case PayloadHTTP:
		return fmt.Sprintf("%s %s -> %d", p.HTTP.Method, p.HTTP.URL, p.HTTP.StatusCode)
	case PayloadSyslog:
		return fmt.Sprintf("%s failure for %s", p.Syslog.Program, p.Syslog.User)
	case PayloadManual:
		return p.Manual.Details
	}
	return ""
}

// SnapshotKind tags which entity a Snapshot describes
type SnapshotKind string

const (
	SnapshotUser       SnapshotKind = "user"
	SnapshotRole       SnapshotKind = "role"
	SnapshotAttackType SnapshotKind = "attack_type"
	SnapshotLog        SnapshotKind = "log"
	SnapshotPattern    SnapshotKind = "pattern"
	SnapshotAlert      SnapshotKind = "alert"
	SnapshotBatch      SnapshotKind = "batch"
)

// Snapshot is the audited state of one entity before or after a change
type Snapshot struct {
	Kind       SnapshotKind        `json:"kind"`
	User       *UserSnapshot       `json:"user,omitempty"`
	Role       *RoleSnapshot       `json:"role,omitempty"`
	AttackType *AttackTypeSnapshot `json:"attack_type,omitempty"`
	Log        *LogSnapshot        `json:"log,omitempty"`
	Pattern    *PatternSnapshot    `json:"pattern,omitempty"`
	Alert      *AlertSnapshot      `json:"alert,omitempty"`
	Batch      *BatchSnapshot      `json:"batch,omitempty"`
}

type UserSnapshot struct {
	Username string `json:"username"`
	RoleID   *uint  `json:"role_id"`
}

type RoleSnapshot struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type AttackTypeSnapshot struct {
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Category        CIACategory `json:"cia_category"`
	DefaultSeverity Severity    `json:"default_severity"`
}

type LogSnapshot struct {
	SourceIP        string    `json:"source_ip"`
	Status          LogStatus `json:"status"`
	IsResolved      bool      `json:"is_resolved"`
	IsFalsePositive bool      `json:"is_false_positive"`
	Notes           string    `json:"notes,omitempty"`
}

type PatternSnapshot struct {
	SourceIP     string   `json:"source_ip"`
	AttackTypeID uint     `json:"attack_type_id"`
	Severity     Severity `json:"severity"`
	EventCount   int64    `json:"event_count"`
	IsActive     bool     `json:"is_active"`
}

type AlertSnapshot struct {
	AlertType      string   `json:"alert_type"`
	Severity       Severity `json:"severity"`
	IsAcknowledged bool     `json:"is_acknowledged"`
}

// BatchSnapshot describes a multi-row write such as a generator run
type BatchSnapshot struct {
	BatchID  string    `json:"batch_id"`
	SourceIP string    `json:"source_ip"`
	Rows     int       `json:"rows"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
}

var errEmptySnapshot = errors.New("snapshot has no variant")

func (s Snapshot) Validate() error {
	var n int
	var match bool
	check := func(kind SnapshotKind, isSet bool) {
		if isSet {
			n++
			if kind == s.Kind {
				match = true
			}
		}
	}
	check(SnapshotUser, s.User != nil)
	check(SnapshotRole, s.Role != nil)
	check(SnapshotAttackType, s.AttackType != nil)
	check(SnapshotLog, s.Log != nil)
	check(SnapshotPattern, s.Pattern != nil)
	check(SnapshotAlert, s.Alert != nil)
	check(SnapshotBatch, s.Batch != nil)
	if n == 0 {
		return errEmptySnapshot
	}
	if n > 1 || !match {
		return fmt.Errorf("snapshot kind %q does not match its variant", s.Kind)
	}
	return nil
}
