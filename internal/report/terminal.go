package report

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/secwebscan/secwebscan/internal/capability"
)

const wideFieldLimit = 60

// RenderTerminal writes the grouped findings as plain tables. Wide free-text
// attributes are truncated to keep rows on one screen; the markdown report
// carries them in full.
func RenderTerminal(w io.Writer, registry *capability.Registry, target string, entries []capability.Entry) error {
	fmt.Fprintf(w, "Scan results for %s (%d findings)\n", target, len(entries))

	for _, g := range BuildGroups(registry, entries) {
		fmt.Fprintf(w, "\n=== %s ===\n", g.Category)

		for _, s := range g.Sections {
			fmt.Fprintf(w, "\n[%s] %d finding(s)\n", s.Capability.Name(), len(s.Entries))

			wide := make(map[string]bool)
			for _, f := range s.Capability.WideFields() {
				wide[f] = true
			}

			cols := columns(s.Capability)
			table := tablewriter.NewWriter(w)

			header := make([]any, len(cols))
			for i, col := range cols {
				header[i] = col
			}
			table.Header(header...)

			for _, e := range s.Entries {
				cells := row(cols, e)
				for i, col := range cols {
					if wide[col] {
						cells[i] = truncate(cells[i], wideFieldLimit)
					}
				}
				if err := table.Append(cells); err != nil {
					return fmt.Errorf("rendering %s table: %w", s.Capability.Name(), err)
				}
			}
			if err := table.Render(); err != nil {
				return fmt.Errorf("rendering %s table: %w", s.Capability.Name(), err)
			}
		}
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
