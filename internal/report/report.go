// Package report renders finalized entries for humans. Two formats are
// supported: terminal tables and a markdown document. Both group findings
// by category, then by capability, with columns in the capability's declared
// display order plus the assigned severity.
package report

import (
	"sort"

	"github.com/secwebscan/secwebscan/internal/capability"
)

// Section is one capability's finalized entries within a category.
type Section struct {
	Capability capability.Capability
	Entries    []capability.Entry
}

// Group is one report category with its sections.
type Group struct {
	Category string
	Sections []Section
}

// BuildGroups arranges entries into display order: categories sorted by
// name, capabilities in registry order within each. Entries keep their
// reconciliation order.
func BuildGroups(registry *capability.Registry, entries []capability.Entry) []Group {
	byCategory := make(map[string]map[string][]capability.Entry)
	for _, e := range entries {
		if byCategory[e.Category] == nil {
			byCategory[e.Category] = make(map[string][]capability.Entry)
		}
		byCategory[e.Category][e.Capability] = append(byCategory[e.Category][e.Capability], e)
	}

	categories := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	var groups []Group
	for _, cat := range categories {
		g := Group{Category: cat}
		for _, c := range registry.All() {
			if ents := byCategory[cat][c.Name()]; len(ents) > 0 {
				g.Sections = append(g.Sections, Section{Capability: c, Entries: ents})
			}
		}
		if len(g.Sections) > 0 {
			groups = append(groups, g)
		}
	}
	return groups
}

// columns returns the display columns for a section: the capability's
// declared order followed by the severity.
func columns(c capability.Capability) []string {
	return append(append([]string{}, c.ColumnOrder()...), "severity")
}

// row renders one entry against the column list. The source column comes
// from the entry itself, not its attribute map.
func row(cols []string, e capability.Entry) []string {
	out := make([]string, len(cols))
	for i, col := range cols {
		switch col {
		case "source":
			out[i] = e.Source
		case "severity":
			out[i] = e.Severity
		default:
			out[i] = e.Field(col)
		}
	}
	return out
}
