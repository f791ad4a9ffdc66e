package cli

import (
	"github.com/spf13/cobra"

	"github.com/secwebscan/secwebscan/internal/scan"
	"github.com/secwebscan/secwebscan/internal/store"
)

var (
	collectIndexPath string
	collectNoStore   bool
)

// collectCmd parses a previously written artifact index, reconciles the
// findings, persists them, and renders the configured reports.
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Parse, reconcile, and persist scan artifacts",
	Long: `Collect re-parses the artifacts named by the index document, merges
duplicate findings across target variants, classifies them, and replaces the
target's stored results in one transaction. Artifacts are removed afterwards
unless retention is configured.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		indexPath := cfg.Scan.IndexPath
		if collectIndexPath != "" {
			indexPath = collectIndexPath
		}
		idx, err := scan.ReadIndex(indexPath)
		if err != nil {
			return err
		}

		var st *store.Store
		if !collectNoStore {
			st, err = connectStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = st.Close()
			}()
		}

		return runCollectPhase(cmd.Context(), cfg, buildRegistry(), st, idx)
	},
}

func init() {
	collectCmd.Flags().StringVar(&collectIndexPath, "index", "", "artifact index path (overrides config)")
	collectCmd.Flags().BoolVar(&collectNoStore, "no-store", false, "skip persistence, render reports only")

	rootCmd.AddCommand(collectCmd)
}
