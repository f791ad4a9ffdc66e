package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/secwebscan/secwebscan/internal/api"
	"github.com/secwebscan/secwebscan/internal/logging"
	"github.com/secwebscan/secwebscan/internal/scheduler"
)

// daemonCmd runs secwebscan as a long-lived process: the API server exposes
// stored results and metrics, and the scheduler re-runs the pipeline on the
// configured cron expression.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the API server and scheduled scans",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.API.Enabled && !cfg.Scheduler.Enabled {
			return fmt.Errorf("daemon mode needs api.enabled or scheduler.enabled set")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := connectStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = st.Close()
		}()

		registry := buildRegistry()
		g, ctx := errgroup.WithContext(ctx)

		if cfg.API.Enabled {
			server := api.New(cfg.API, st)
			g.Go(func() error {
				return server.Start(ctx)
			})
		}

		if cfg.Scheduler.Enabled {
			sched, err := scheduler.New(cfg.Scheduler.Cron, func(runCtx context.Context) error {
				return runPipeline(runCtx, cfg, registry, st)
			})
			if err != nil {
				return err
			}
			g.Go(func() error {
				sched.Start(ctx)
				return nil
			})
		}

		logging.Info("Daemon started",
			"api", cfg.API.Enabled,
			"scheduler", cfg.Scheduler.Enabled)

		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
