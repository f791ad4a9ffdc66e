// Package nikto integrates the nikto web server scanner. Nikto runs once
// per (target type, protocol) combination and its JSON output frequently
// contains unescaped control characters and backslashes, so parsing repairs
// the byte stream before decoding instead of rejecting the artifact.
// Per-variant findings are inherently distinct and are never merged.
package nikto

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/secwebscan/secwebscan/internal/capability"
	"github.com/secwebscan/secwebscan/internal/config"
	"github.com/secwebscan/secwebscan/internal/errors"
	"github.com/secwebscan/secwebscan/internal/logging"
)

const name = "nikto"

// Capability implements the nikto integration.
type Capability struct{}

// New returns the nikto capability.
func New() *Capability {
	return &Capability{}
}

// Name implements capability.Capability.
func (c *Capability) Name() string { return name }

// Plan creates one task per (target type, protocol) variant declared in the
// selected level. Variants whose target type is absent are skipped.
func (c *Capability) Plan(run *config.Run) ([]capability.Task, error) {
	cc := run.Capability(name)
	if cc == nil {
		return nil, nil
	}
	lvl := cc.SelectedLevel()

	var tasks []capability.Task
	plan := func(target, targetType string, protocols map[string]config.ProtocolConfig) {
		if target == "" {
			if len(protocols) > 0 {
				logging.Info("Target not configured for variant, skipping",
					"capability", name, "target_type", targetType)
			}
			return
		}
		for _, proto := range []string{"http", "https"} {
			pc, ok := protocols[proto]
			if !ok || pc.Flags == "" {
				continue
			}
			source := targetType + "_" + proto
			tasks = append(tasks, capability.Task{
				Capability: name,
				Target:     target,
				Source:     source,
				Command: fmt.Sprintf("nikto -h %s %s -Format json -o %s",
					target, buildArgs(pc), capability.OutputPlaceholder),
				OutputExt: ".json",
				Tool:      cc.BinaryName(),
				Install:   cc.Install,
			})
		}
	}

	plan(run.IP, "ip", lvl.IP)
	plan(run.Domain, "domain", lvl.Domain)

	return tasks, nil
}

// buildArgs assembles the variant's flag string from its protocol config.
func buildArgs(pc config.ProtocolConfig) string {
	var parts []string
	if pc.Tuning != "" {
		parts = append(parts, "-Tuning "+pc.Tuning)
	}
	if pc.Flags != "" {
		parts = append(parts, pc.Flags)
	}
	if len(pc.Ports) > 0 {
		ports := make([]string, len(pc.Ports))
		for i, p := range pc.Ports {
			ports[i] = strconv.Itoa(p)
		}
		parts = append(parts, "-p "+strings.Join(ports, ","))
	}
	return strings.Join(parts, " ")
}

// validEscapeChars are the characters that may follow a backslash in a
// JSON string literal.
const validEscapeChars = `"\/bfnrtu`

// repairJSON escapes stray backslashes and bare control characters that
// would otherwise break the decoder for the entire artifact. Nikto copies
// response bodies into string values verbatim, so the repair only touches
// bytes inside string literals; structural whitespace stays untouched.
func repairJSON(raw string) string {
	var b strings.Builder
	b.Grow(len(raw) + 16)

	inString := false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		switch c {
		case '"':
			inString = false
			b.WriteByte(c)
		case '\\':
			if i+1 < len(raw) && strings.IndexByte(validEscapeChars, raw[i+1]) >= 0 {
				// Valid escape sequence; keep both bytes so an escaped
				// quote does not end the string.
				b.WriteByte(c)
				i++
				b.WriteByte(raw[i])
			} else {
				b.WriteString(`\\`)
			}
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// niktoReport mirrors the artifact's document shape.
type niktoReport struct {
	Host            string `json:"host"`
	IP              string `json:"ip"`
	Vulnerabilities []struct {
		URL        string `json:"url"`
		Method     string `json:"method"`
		Msg        string `json:"msg"`
		ID         string `json:"id"`
		References string `json:"references"`
	} `json:"vulnerabilities"`
}

// Parse decodes a nikto JSON artifact into one entry per reported finding.
func (c *Capability) Parse(path, source string) ([]capability.Entry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // artifact path is runner-allocated
	if err != nil {
		return nil, errors.ErrParseFailed(name, source, err)
	}

	repaired := repairJSON(strings.TrimSpace(string(data)))

	var reports []niktoReport
	if err := json.Unmarshal([]byte(repaired), &reports); err != nil {
		// Some nikto builds emit a single object instead of a list.
		var single niktoReport
		if err2 := json.Unmarshal([]byte(repaired), &single); err2 != nil {
			return nil, errors.ErrParseFailed(name, source, err)
		}
		reports = []niktoReport{single}
	}

	var entries []capability.Entry
	for _, report := range reports {
		target := report.Host
		if target == "" {
			target = report.IP
		}
		for _, v := range report.Vulnerabilities {
			entries = append(entries, capability.Entry{
				Capability: name,
				Target:     target,
				Source:     source,
				Fields: map[string]string{
					"url":        orDash(v.URL),
					"method":     orDash(v.Method),
					"msg":        orDash(v.Msg),
					"id":         orDash(v.ID),
					"references": orDash(v.References),
				},
			})
		}
	}

	return entries, nil
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

// ImportantFields implements capability.Capability. A finding with no
// message carries no information.
func (c *Capability) ImportantFields() []string {
	return []string{"msg"}
}

// MergeKey implements capability.Capability. Nikto never merges, so no
// entry has a usable merge identity.
func (c *Capability) MergeKey(capability.Entry) (capability.Key, bool) {
	return nil, false
}

// ShouldMerge implements capability.Capability. Findings differ per
// protocol and target type even when they describe the same page.
func (c *Capability) ShouldMerge() bool { return false }

// Summary implements capability.Capability.
func (c *Capability) Summary(entries []capability.Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.Field("msg"))
	}
	return strings.Join(parts, " | ")
}

// ColumnOrder implements capability.Capability.
func (c *Capability) ColumnOrder() []string {
	return []string{"source", "url", "method", "msg", "id", "references"}
}

// WideFields implements capability.Capability.
func (c *Capability) WideFields() []string {
	return []string{"url", "msg", "references"}
}
