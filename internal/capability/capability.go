// Package capability defines the plug-in surface every integrated scan tool
// implements: task planning per target variant, artifact normalization into
// canonical entries, and the merge identity used by reconciliation.
// Implementations are resolved through a static registry built at startup.
package capability

import (
	"sort"
	"strings"

	"github.com/secwebscan/secwebscan/internal/config"
)

// SourceSeparator joins the variant labels that observed a finding. Merged
// entries carry the sorted union of their labels, e.g. "domain_http+ip".
const SourceSeparator = "+"

// Entry is one canonical finding extracted from an artifact. The semantic
// attribute set is capability-defined; Fields holds it keyed by attribute
// name. Entries are mutable until reconciliation completes and are treated
// as immutable afterwards.
type Entry struct {
	Capability string
	Target     string
	Source     string
	Fields     map[string]string

	// Set by the classifier after reconciliation
	Category string
	Severity string
}

// Field returns an attribute value, or "-" when the attribute is absent.
func (e Entry) Field(name string) string {
	if v, ok := e.Fields[name]; ok {
		return v
	}
	return "-"
}

// SourceSet returns the entry's source labels as a slice, splitting a
// combined label back into its parts.
func (e Entry) SourceSet() []string {
	if e.Source == "" {
		return nil
	}
	return strings.Split(e.Source, SourceSeparator)
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	fields := make(map[string]string, len(e.Fields))
	for k, v := range e.Fields {
		fields[k] = v
	}
	clone := e
	clone.Fields = fields
	return clone
}

// CombineSources merges two source labels into the sorted, deduplicated
// union joined by SourceSeparator. Combining is order-independent and
// idempotent, so re-merging an already merged entry is a no-op.
func CombineSources(a, b string) string {
	seen := make(map[string]bool)
	var labels []string
	for _, s := range append(strings.Split(a, SourceSeparator), strings.Split(b, SourceSeparator)...) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		labels = append(labels, s)
	}
	sort.Strings(labels)
	return strings.Join(labels, SourceSeparator)
}

// Key is the capability-defined projection of an entry's identity
// attributes. Concrete key types are comparable structs with value
// semantics, one variant per capability; there is no generic default.
type Key interface {
	IsMergeKey()
}

// Capability is implemented once per integrated tool. Parse must be a pure
// function of artifact content and must degrade gracefully on malformed
// bytes instead of failing the whole artifact where possible; a returned
// error fails only the owning task.
type Capability interface {
	// Name is the manifest identity of the capability.
	Name() string

	// Plan expands the capability into zero or more concrete tasks, one per
	// applicable target variant. Variants whose required target type is
	// absent are skipped, not errors.
	Plan(run *config.Run) ([]Task, error)

	// Parse normalizes one artifact into canonical entries tagged with the
	// given source label.
	Parse(path, source string) ([]Entry, error)

	// ImportantFields lists the attributes that decide whether an entry
	// carries real information and whether two entries genuinely conflict.
	ImportantFields() []string

	// MergeKey projects an entry onto its merge identity. ok is false when
	// the entry has no usable identity and must be passed through unmerged.
	MergeKey(e Entry) (key Key, ok bool)

	// ShouldMerge reports whether duplicate findings across target variants
	// are meaningfully combinable for this capability.
	ShouldMerge() bool

	// Summary renders a one-line digest of a finalized entry list.
	Summary(entries []Entry) string

	// ColumnOrder lists the attribute display order for reports.
	ColumnOrder() []string

	// WideFields lists the free-text attributes that need wide rendering;
	// those not in ImportantFields are concatenated on merge instead of
	// overwritten.
	WideFields() []string
}

// FreeTextFields returns the attributes of c whose diverging values are
// concatenated during a merge: wide fields that are not important fields.
func FreeTextFields(c Capability) []string {
	important := make(map[string]bool)
	for _, f := range c.ImportantFields() {
		important[f] = true
	}
	var free []string
	for _, f := range c.WideFields() {
		if !important[f] {
			free = append(free, f)
		}
	}
	return free
}
