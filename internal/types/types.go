package types

import (
	"fmt"
	"strings"
	"time"
)

// Severity defines how serious a log entry, pattern or alert is
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity from lowest to highest
var Severities = []Severity{SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank orders severities: critical > high > medium > low > info. Unknown values rank 0.
func (s Severity) Rank() int {
	switch Severity(strings.ToLower(string(s))) {
	case SeverityInfo:
		return 1
	case SeverityLow:
		return 2
	case SeverityMedium:
		return 3
	case SeverityHigh:
		return 4
	case SeverityCritical:
		return 5
	}
	return 0
}

func (s Severity) Valid() bool { return s.Rank() > 0 }

// ParseSeverity accepts any casing ("Medium", "HIGH") and returns the canonical value
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// MaxSeverity returns the higher of a and b. Ties keep a.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// CIACategory is the Confidentiality/Integrity/Availability impact of an event
type CIACategory string

const (
	CategoryConfidentiality CIACategory = "Confidentiality"
	CategoryIntegrity       CIACategory = "Integrity"
	CategoryAvailability    CIACategory = "Availability"
	CategoryNone            CIACategory = "None"
	CategoryUnknown         CIACategory = "Unknown"
)

// Categories in reporting order
var Categories = []CIACategory{CategoryConfidentiality, CategoryIntegrity, CategoryAvailability, CategoryUnknown, CategoryNone}

func ParseCategory(s string) (CIACategory, error) {
	for _, c := range Categories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown CIA category %q", s)
}

// LogStatus tracks whether a log row has been folded into a pattern
type LogStatus string

const (
	StatusDetected      LogStatus = "detected"
	StatusInvestigating LogStatus = "investigating"
	StatusBlocked       LogStatus = "blocked"
)

func ParseLogStatus(s string) (LogStatus, error) {
	switch st := LogStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusDetected, StatusInvestigating, StatusBlocked:
		return st, nil
	}
	return "", fmt.Errorf("unknown log status %q", s)
}

// Classification is one source classified as an active attacker by a detection pass
type Classification struct {
	SourceIP         string        `json:"source_ip"`
	AttackTypeID     uint          `json:"attack_type_id"`
	AttackType       string        `json:"attack_type"`
	Category         CIACategory   `json:"cia_category"`
	Hits             int           `json:"hits"`
	Window           time.Duration `json:"window"`
	Threshold        int           `json:"threshold"`
	FirstSeen        time.Time     `json:"first_seen"`
	LastSeen         time.Time     `json:"last_seen"`
	ObservedSeverity Severity      `json:"observed_severity"`
	StoredSeverity   Severity      `json:"stored_severity"`
	EventCount       int64         `json:"event_count"`
	PatternID        uint          `json:"pattern_id"`
	NewPattern       bool          `json:"new_pattern"`
	AlertID          uint          `json:"alert_id,omitempty"`
}

// DetectionRule overrides the default window/threshold for one attack type
type DetectionRule struct {
	AttackType string        `yaml:"attack_type"`
	Window     time.Duration `yaml:"window"`
	Threshold  int           `yaml:"threshold"`
}

// DetectionConfig holds the explicit counting window and threshold
type DetectionConfig struct {
	Window    time.Duration   `yaml:"window"`    // e.g. 5m
	Threshold int             `yaml:"threshold"` // hits per window, inclusive
	Allowlist []string        `yaml:"allowlist"` // IPs never classified
	Rules     []DetectionRule `yaml:"rules"`
}

// Config represents the application configuration
type Config struct {
	Database struct {
		Path        string        `yaml:"path"`
		BusyTimeout time.Duration `yaml:"busy_timeout"`
	} `yaml:"database"`

	Detection DetectionConfig `yaml:"detection"`

	Explain struct {
		Mode    string        `yaml:"mode"`  // template, llm
		URL     string        `yaml:"url"`   // Ollama generate endpoint
		Model   string        `yaml:"model"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"explain"`

	Generator struct {
		Interval *time.Duration `yaml:"interval"` // spacing between generated rows; 0s gives identical timestamps
	} `yaml:"generator"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text, json
	} `yaml:"logging"`

	Output struct {
		AuditLogPath string `yaml:"audit_log_path"` // optional JSON-lines mirror of audit_log
	} `yaml:"output"`

	Metrics struct {
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`

	Dashboard struct {
		Addr string `yaml:"addr"`
	} `yaml:"dashboard"`

	Export struct {
		Dir       string `yaml:"dir"`
		Delimiter string `yaml:"delimiter"`
	} `yaml:"export"`

	Retention struct {
		Days int `yaml:"days"`
	} `yaml:"retention"`
}
