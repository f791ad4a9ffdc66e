package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/secwebscan/secwebscan/internal/capability"
	"github.com/secwebscan/secwebscan/internal/collect"
	"github.com/secwebscan/secwebscan/internal/store"
)

var reportTarget string

// reportCmd renders previously stored results without re-running anything.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render stored results for a target",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		target := reportTarget
		if target == "" {
			target = cfg.Run().PrimaryTarget()
		}

		st, err := connectStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = st.Close()
		}()

		results, err := st.QueryResults(cmd.Context(), store.Filter{Target: target})
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Printf("No stored results for %s\n", target)
			return nil
		}

		entries := make([]capability.Entry, 0, len(results))
		for _, r := range results {
			e, err := collect.RowEntry(r)
			if err != nil {
				fmt.Fprintf(os.Stderr, "skipping undecodable row %d: %v\n", r.ID, err)
				continue
			}
			entries = append(entries, e)
		}

		registry := buildRegistry()
		return renderReports(cfg, registry, target, entries)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportTarget, "target", "", "target to report on (defaults to the configured target)")

	rootCmd.AddCommand(reportCmd)
}
