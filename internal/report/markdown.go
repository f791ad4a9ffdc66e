package report

import (
	"fmt"
	"io"
	"time"

	"github.com/nao1215/markdown"

	"github.com/secwebscan/secwebscan/internal/capability"
)

// RenderMarkdown writes the grouped findings as one markdown document:
// a summary table, then a section per category with one table per
// capability.
func RenderMarkdown(w io.Writer, registry *capability.Registry, target string, entries []capability.Entry) error {
	md := markdown.NewMarkdown(w)

	md.H1("Scan Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Target", "`" + target + "`"},
			{"Generated", time.Now().UTC().Format("2006-01-02 15:04:05 MST")},
			{"Findings", fmt.Sprintf("%d", len(entries))},
		},
	})
	md.PlainText("")

	writeSeveritySummary(md, entries)

	for _, g := range BuildGroups(registry, entries) {
		md.H2(g.Category)
		md.PlainText("")

		for _, s := range g.Sections {
			md.H3(fmt.Sprintf("%s (%d)", s.Capability.Name(), len(s.Entries)))
			md.PlainText("")

			cols := columns(s.Capability)
			rows := make([][]string, len(s.Entries))
			for i, e := range s.Entries {
				rows[i] = row(cols, e)
			}
			md.Table(markdown.TableSet{
				Header: cols,
				Rows:   rows,
			})
			md.PlainText("")
		}
	}

	return md.Build()
}

// writeSeveritySummary renders the severity counts, highest first.
func writeSeveritySummary(md *markdown.Markdown, entries []capability.Entry) {
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.Severity]++
	}

	var rows [][]string
	for _, sev := range []string{"critical", "high", "medium", "low", "info"} {
		if counts[sev] > 0 {
			rows = append(rows, []string{sev, fmt.Sprintf("%d", counts[sev])})
		}
	}
	if len(rows) == 0 {
		return
	}

	md.H2("Severity Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Severity", "Count"},
		Rows:   rows,
	})
	md.PlainText("")
}
