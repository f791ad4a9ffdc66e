// Package nuclei integrates the nuclei template scanner. Output is JSONL,
// one finding per line; lines that fail to decode are skipped individually
// so one corrupt line cannot discard the artifact. The same template match
// observed over HTTP and HTTPS restates one finding, so entries merge
// across variants.
package nuclei

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/secwebscan/secwebscan/internal/capability"
	"github.com/secwebscan/secwebscan/internal/config"
	"github.com/secwebscan/secwebscan/internal/errors"
	"github.com/secwebscan/secwebscan/internal/logging"
)

const name = "nuclei"

// Findings can embed response dumps; cap the line scanner accordingly.
const maxLineBytes = 4 * 1024 * 1024

// Capability implements the nuclei integration.
type Capability struct{}

// New returns the nuclei capability.
func New() *Capability {
	return &Capability{}
}

// Name implements capability.Capability.
func (c *Capability) Name() string { return name }

// Plan creates one task per protocol scheme against the domain. Nuclei is
// a virtual-host scanner; without a domain it has nothing to do.
func (c *Capability) Plan(run *config.Run) ([]capability.Task, error) {
	cc := run.Capability(name)
	if cc == nil {
		return nil, nil
	}
	if run.Domain == "" {
		logging.Info("Capability requires a domain target, skipping", "capability", name)
		return nil, nil
	}
	lvl := cc.SelectedLevel()

	var tasks []capability.Task
	for _, proto := range []string{"http", "https"} {
		if _, ok := lvl.Domain[proto]; !ok {
			continue
		}
		tasks = append(tasks, capability.Task{
			Capability: name,
			Target:     run.Domain,
			Source:     "domain_" + proto,
			Command: fmt.Sprintf("nuclei -u %s://%s %s -jsonl -o %s",
				proto, run.Domain, lvl.Args, capability.OutputPlaceholder),
			OutputExt: ".jsonl",
			Tool:      cc.BinaryName(),
			Install:   cc.Install,
		})
	}
	return tasks, nil
}

// finding mirrors one JSONL line of nuclei output.
type finding struct {
	TemplateID string `json:"template-id"`
	Info       struct {
		Name     string `json:"name"`
		Severity string `json:"severity"`
	} `json:"info"`
	Type      string `json:"type"`
	Host      string `json:"host"`
	MatchedAt string `json:"matched-at"`
}

// Parse decodes a JSONL artifact into one entry per finding.
func (c *Capability) Parse(path, source string) ([]capability.Entry, error) {
	f, err := os.Open(path) //nolint:gosec // artifact path is runner-allocated
	if err != nil {
		return nil, errors.ErrParseFailed(name, source, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var entries []capability.Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var fd finding
		if err := json.Unmarshal([]byte(line), &fd); err != nil {
			logging.Warn("Skipping undecodable nuclei line",
				"capability", name, "source", source, "error", err)
			continue
		}

		entries = append(entries, capability.Entry{
			Capability: name,
			Target:     fd.Host,
			Source:     source,
			Fields: map[string]string{
				"template_id": orDash(fd.TemplateID),
				"name":        orDash(fd.Info.Name),
				"severity":    orDash(strings.ToLower(fd.Info.Severity)),
				"type":        orDash(fd.Type),
				"host":        orDash(fd.Host),
				"matched_at":  orDash(fd.MatchedAt),
			},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.ErrParseFailed(name, source, err)
	}

	return entries, nil
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

// ImportantFields implements capability.Capability.
func (c *Capability) ImportantFields() []string {
	return []string{"template_id", "name", "severity", "matched_at"}
}

// TemplateKey identifies a template match for merging across schemes.
type TemplateKey struct {
	TemplateID string
	MatchedAt  string
}

// IsMergeKey implements capability.Key.
func (TemplateKey) IsMergeKey() {}

// MergeKey implements capability.Capability.
func (c *Capability) MergeKey(e capability.Entry) (capability.Key, bool) {
	return TemplateKey{
		TemplateID: e.Field("template_id"),
		MatchedAt:  e.Field("matched_at"),
	}, true
}

// ShouldMerge implements capability.Capability.
func (c *Capability) ShouldMerge() bool { return true }

// Summary implements capability.Capability.
func (c *Capability) Summary(entries []capability.Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s - %s", e.Field("template_id"), e.Field("name")))
	}
	return strings.Join(parts, " | ")
}

// ColumnOrder implements capability.Capability.
func (c *Capability) ColumnOrder() []string {
	return []string{"source", "template_id", "name", "severity", "type", "host", "matched_at"}
}

// WideFields implements capability.Capability.
func (c *Capability) WideFields() []string {
	return []string{"name", "matched_at"}
}
