// Package reconcile merges normalized entry lists collected from one
// capability's multiple target variants into a single deduplicated,
// provenance-tagged list. Attribute-identical findings observed from
// different variants collapse into one entry carrying the union of their
// source labels; findings that share a merge key but differ in an important
// field are genuine conflicts and both survive.
package reconcile

import (
	"strings"

	"github.com/secwebscan/secwebscan/internal/capability"
	"github.com/secwebscan/secwebscan/internal/logging"
	"github.com/secwebscan/secwebscan/internal/metrics"
)

// textSeparator joins concatenated free-text segments.
const textSeparator = "; "

// emptyValues are the value spellings treated as "no information". An entry
// whose important fields are all empty is dropped before merging.
var emptyValues = map[string]bool{
	"":     true,
	"-":    true,
	"0":    true,
	"null": true,
	"none": true,
}

// IsEmptyValue reports whether a field value carries no information.
func IsEmptyValue(v string) bool {
	return emptyValues[strings.ToLower(strings.TrimSpace(v))]
}

// isEmptyEntry reports whether every important field of the entry is empty.
func isEmptyEntry(c capability.Capability, e capability.Entry) bool {
	for _, f := range c.ImportantFields() {
		if !IsEmptyValue(e.Field(f)) {
			return false
		}
	}
	return true
}

// FilterEmpty drops entries that fail every important field. Filtering is
// idempotent: filtering a filtered list changes nothing.
func FilterEmpty(c capability.Capability, entries []capability.Entry) []capability.Entry {
	kept := make([]capability.Entry, 0, len(entries))
	for _, e := range entries {
		if isEmptyEntry(c, e) {
			logging.Debug("Dropping empty entry",
				"capability", c.Name(),
				"source", e.Source)
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// conflictKey augments a merge key with the source label of a conflicting
// entry so both sides of a conflict survive as distinct entries. Nested
// augmentation keeps repeat conflicts from the same source distinct too.
type conflictKey struct {
	base   capability.Key
	source string
}

// IsMergeKey implements capability.Key.
func (conflictKey) IsMergeKey() {}

// passKey keys entries that have no usable merge identity; each one passes
// through unmerged.
type passKey struct {
	n int
}

// IsMergeKey implements capability.Key.
func (passKey) IsMergeKey() {}

// Merge reconciles the per-variant entry lists of one capability. Input
// lists are flattened in order, empty entries are discarded, and - when the
// capability merges across variants - duplicate findings are combined:
// source labels become the sorted union and diverging free-text attributes
// are concatenated rather than overwritten. Output order is insertion order
// (first seen wins), and Merge(Merge(L)) == Merge(L).
func Merge(c capability.Capability, lists ...[]capability.Entry) []capability.Entry {
	var flat []capability.Entry
	for _, list := range lists {
		flat = append(flat, FilterEmpty(c, list)...)
	}

	if !c.ShouldMerge() {
		return flat
	}

	important := c.ImportantFields()
	freeText := capability.FreeTextFields(c)

	out := make([]capability.Entry, 0, len(flat))
	index := make(map[capability.Key]int, len(flat))
	passN := 0

	for _, e := range flat {
		key, ok := c.MergeKey(e)
		if !ok {
			key = passKey{n: passN}
			passN++
		}

		for {
			i, found := index[key]
			if !found {
				index[key] = len(out)
				out = append(out, e.Clone())
				break
			}

			if fieldsMatch(&out[i], &e, important) {
				out[i].Source = capability.CombineSources(out[i].Source, e.Source)
				for _, f := range freeText {
					if out[i].Field(f) != e.Field(f) {
						out[i].Fields[f] = combineText(out[i].Field(f), e.Field(f))
					}
				}
				metrics.EntryMerged(c.Name())
				break
			}

			// Same identity, differing evidence: keep both rather than
			// silently losing one side.
			logging.Warn("Conflicting entries share a merge key",
				"capability", c.Name(),
				"source_existing", out[i].Source,
				"source_new", e.Source)
			metrics.ConflictDetected(c.Name())
			key = conflictKey{base: key, source: e.Source}
		}
	}

	return out
}

// fieldsMatch compares every important field of two entries, treating the
// empty-value spellings as equivalent to each other.
func fieldsMatch(a, b *capability.Entry, important []string) bool {
	for _, f := range important {
		va, vb := a.Field(f), b.Field(f)
		if IsEmptyValue(va) && IsEmptyValue(vb) {
			continue
		}
		if va != vb {
			return false
		}
	}
	return true
}

// combineText concatenates two free-text values and re-normalizes the
// result: segments are trimmed, empty segments dropped, duplicates removed
// in first-seen order. No diagnostic text is lost in a merge.
func combineText(a, b string) string {
	seen := make(map[string]bool)
	var segments []string
	for _, raw := range append(strings.Split(a, textSeparator), strings.Split(b, textSeparator)...) {
		s := strings.TrimSpace(raw)
		if IsEmptyValue(s) || seen[s] {
			continue
		}
		seen[s] = true
		segments = append(segments, s)
	}
	if len(segments) == 0 {
		return "-"
	}
	return strings.Join(segments, textSeparator)
}
