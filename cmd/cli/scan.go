package cli

import (
	"github.com/spf13/cobra"

	"github.com/secwebscan/secwebscan/internal/config"
)

var (
	scanTargetIP      string
	scanTargetDomain  string
	scanTargetNetwork string
)

// scanCmd dispatches all capability tasks and writes the artifact index.
// Collection is a separate step so artifacts can be re-parsed without
// re-running the tools.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run all enabled capabilities against the target",
	Long: `Scan expands every enabled capability into its per-variant tasks, runs
them concurrently, and writes the artifact index. Individual task failures
are reported and do not abort the run. Use 'collect' afterwards to parse,
reconcile, and persist the artifacts.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfigWith(applyTargetFlags)
		if err != nil {
			return err
		}

		_, err = runScanPhase(cmd.Context(), cfg, buildRegistry())
		return err
	},
}

// runCmd performs a full pass: scan, collect, report.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan, collect, and report in one pass",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfigWith(applyTargetFlags)
		if err != nil {
			return err
		}

		st, err := connectStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = st.Close()
		}()

		return runPipeline(cmd.Context(), cfg, buildRegistry(), st)
	},
}

// applyTargetFlags layers command-line target overrides onto the config.
func applyTargetFlags(cfg *config.Config) {
	if scanTargetIP != "" {
		cfg.Scan.TargetIP = scanTargetIP
	}
	if scanTargetDomain != "" {
		cfg.Scan.TargetDomain = scanTargetDomain
	}
	if scanTargetNetwork != "" {
		cfg.Scan.TargetNetwork = scanTargetNetwork
	}
}

func init() {
	for _, cmd := range []*cobra.Command{scanCmd, runCmd} {
		cmd.Flags().StringVar(&scanTargetIP, "ip", "", "target IP address (overrides config)")
		cmd.Flags().StringVar(&scanTargetDomain, "domain", "", "target domain (overrides config)")
		cmd.Flags().StringVar(&scanTargetNetwork, "network", "", "target network in CIDR notation (overrides config)")
	}

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(runCmd)
}
