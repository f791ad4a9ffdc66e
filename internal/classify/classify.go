// Package classify assigns a category and a severity to finalized entries
// for downstream storage and reporting. Classification is a deterministic
// function of entry attributes: it only annotates and never touches
// identity-relevant fields.
package classify

import (
	"strings"

	"github.com/secwebscan/secwebscan/internal/capability"
	"github.com/secwebscan/secwebscan/internal/config"
)

// Severity levels, in increasing order of concern.
const (
	SeverityInfo     = "info"
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// CategoryDefault is the catch-all category for capabilities without a
// specific grouping. Categories only order downstream display.
const CategoryDefault = "General Info"

// categories maps known capabilities to their report grouping.
var categories = map[string]string{
	"nmap":    "Network",
	"snmp":    "Network",
	"nikto":   "Web",
	"nuclei":  "Vulnerabilities",
	"dig":     "DNS",
	"tlscert": "TLS",
}

// knownSeverities guards severities copied from tool output.
var knownSeverities = map[string]bool{
	SeverityInfo:     true,
	SeverityLow:      true,
	SeverityMedium:   true,
	SeverityHigh:     true,
	SeverityCritical: true,
}

// plaintextServices are services whose open port alone warrants attention.
var plaintextServices = map[string]bool{
	"telnet": true,
	"ftp":    true,
	"rlogin": true,
	"rsh":    true,
}

// severityRules holds the per-capability severity functions. Absence of a
// matching rule defaults to info.
var severityRules = map[string]func(e capability.Entry) string{
	"nmap": func(e capability.Entry) string {
		if e.Field("state") == "open" && plaintextServices[e.Field("service_name")] {
			return SeverityMedium
		}
		return SeverityInfo
	},
	"nuclei": func(e capability.Entry) string {
		if s := strings.ToLower(e.Field("severity")); knownSeverities[s] {
			return s
		}
		return SeverityInfo
	},
	"nikto": func(e capability.Entry) string {
		if !strings.EqualFold(e.Field("references"), "-") && e.Field("references") != "" {
			return SeverityLow
		}
		return SeverityInfo
	},
	"tlscert": func(e capability.Entry) string {
		if e.Field("self_signed") == "true" {
			return SeverityLow
		}
		return SeverityInfo
	},
	"snmp": func(e capability.Entry) string {
		if e.Field("community") == "public" {
			return SeverityLow
		}
		return SeverityInfo
	},
}

// Category returns the report grouping for a capability. A manifest override
// wins; unknown capabilities fall into the catch-all.
func Category(run *config.Run, name string) string {
	if run != nil {
		if cc := run.Capability(name); cc != nil && cc.Category != "" {
			return cc.Category
		}
	}
	if cat, ok := categories[name]; ok {
		return cat
	}
	return CategoryDefault
}

// Severity returns the severity for one entry.
func Severity(e capability.Entry) string {
	if rule, ok := severityRules[e.Capability]; ok {
		return rule(e)
	}
	return SeverityInfo
}

// Annotate sets Category and Severity on every entry and returns the same
// slice for chaining.
func Annotate(run *config.Run, entries []capability.Entry) []capability.Entry {
	for i := range entries {
		entries[i].Category = Category(run, entries[i].Capability)
		entries[i].Severity = Severity(entries[i])
	}
	return entries
}
