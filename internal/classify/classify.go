// Package classify maps event types onto the CIA triad and default severities.
package classify

import (
	"math"
	"strings"
	"unicode"

	"logguard/internal/types"
)

var rules = map[string]types.CIACategory{
	// network and intrusion
	"unauthorized_access": types.CategoryConfidentiality,
	"dos_attack":          types.CategoryAvailability,
	"dos":                 types.CategoryAvailability,
	"ddos":                types.CategoryAvailability,
	"bruteforce":          types.CategoryConfidentiality,
	"brute_force":         types.CategoryConfidentiality,
	"port_scan":           types.CategoryConfidentiality,
	"intrusion":           types.CategoryConfidentiality,
	"malware":             types.CategoryIntegrity,
	"exploit_attempt":     types.CategoryIntegrity,
	"sql_injection":       types.CategoryIntegrity,
	"web_scan":            types.CategoryConfidentiality,

	// web traffic
	"auth_failure":        types.CategoryConfidentiality,
	"access_denied":       types.CategoryConfidentiality,
	"access_forbidden":    types.CategoryConfidentiality,
	"data_exfiltration":   types.CategoryConfidentiality,
	"suspicious_request":  types.CategoryIntegrity,
	"service_unavailable": types.CategoryAvailability,
	"connection_timeout":  types.CategoryAvailability,
	"normal_access":       types.CategoryNone,

	// file shares
	"file_unauthorized_access": types.CategoryConfidentiality,
	"file_modification":        types.CategoryIntegrity,
	"file_deletion":            types.CategoryIntegrity,
	"share_access_denied":      types.CategoryConfidentiality,
	"sensitive_share_access":   types.CategoryConfidentiality,
	"sensitive_file_access":    types.CategoryConfidentiality,
	"permission_change":        types.CategoryIntegrity,
	"connection_failure":       types.CategoryAvailability,
	"share_access":             types.CategoryNone,
	"file_access":              types.CategoryNone,
	"file_close":               types.CategoryNone,

	// system
	"privilege_escalation": types.CategoryIntegrity,
	"sudo_abuse":           types.CategoryIntegrity,
	"unauthorized_login":   types.CategoryConfidentiality,
	"user_addition":        types.CategoryIntegrity,
	"system_modification":  types.CategoryIntegrity,
	"config_change":        types.CategoryIntegrity,
	"kernel_panic":         types.CategoryAvailability,
	"service_crash":        types.CategoryAvailability,
	"service_restart":      types.CategoryAvailability,
	"system_shutdown":      types.CategoryAvailability,
	"data_modification":    types.CategoryIntegrity,
	"service_disruption":   types.CategoryAvailability,

	// network protocols
	"http_plaintext_credentials": types.CategoryConfidentiality,
	"http_large_upload":          types.CategoryConfidentiality,
	"http_unencrypted":           types.CategoryConfidentiality,
	"https_encrypted":            types.CategoryNone,
	"telnet_plaintext":           types.CategoryConfidentiality,
	"telnet_activity":            types.CategoryNone,
	"ssh_encrypted":              types.CategoryNone,
	"dns_tunneling_suspected":    types.CategoryConfidentiality,
	"dns_query":                  types.CategoryNone,
	"icmp_suspected_dos":         types.CategoryAvailability,
	"icmp":                       types.CategoryNone,
	"large_payload":              types.CategoryConfidentiality,
	"dos_related":                types.CategoryAvailability,
	"mitm_attack":                types.CategoryConfidentiality,
	"protocol_violation":         types.CategoryIntegrity,
	"bandwidth_exhaustion":       types.CategoryAvailability,
	"unknown":                    types.CategoryUnknown,
}

// Category returns the CIA category of an event type, Unknown when there is no rule
func Category(eventType string) types.CIACategory {
	if c, ok := rules[strings.ToLower(strings.TrimSpace(eventType))]; ok {
		return c
	}
	return types.CategoryUnknown
}

// DefaultSeverity is the severity assigned to a single event of the given category
func DefaultSeverity(c types.CIACategory) types.Severity {
	switch c {
	case types.CategoryConfidentiality, types.CategoryIntegrity:
		return types.SeverityHigh
	case types.CategoryAvailability:
		return types.SeverityMedium
	case types.CategoryNone:
		return types.SeverityInfo
	}
	return types.SeverityLow
}

// EventTypeFor turns an attack type name into an event type: "Brute Force" -> "brute_force"
func EventTypeFor(attackType string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(attackType) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

// CategoryStat is the share of one CIA category in a set of entries
type CategoryStat struct {
	Category   types.CIACategory `json:"category"`
	Count      int               `json:"count"`
	Percentage float64           `json:"percentage"`
}

// Statistics counts categories and their percentage (two decimals) of len(categories)
func Statistics(categories []types.CIACategory) []CategoryStat {
	counts := make(map[types.CIACategory]int, len(types.Categories))
	total := len(categories)
	for _, c := range categories {
		if !known(c) {
			c = types.CategoryUnknown
		}
		counts[c]++
	}

	stats := make([]CategoryStat, 0, len(types.Categories))
	for _, c := range types.Categories {
		st := CategoryStat{Category: c, Count: counts[c]}
		if total > 0 {
			st.Percentage = math.Round(float64(st.Count)/float64(total)*10000) / 100
		}
		stats = append(stats, st)
	}
	return stats
}

func known(c types.CIACategory) bool {
	for _, k := range types.Categories {
		if k == c {
			return true
		}
	}
	return false
}
