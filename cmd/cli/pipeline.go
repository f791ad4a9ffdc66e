package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/secwebscan/secwebscan/internal/capability"
	"github.com/secwebscan/secwebscan/internal/collect"
	"github.com/secwebscan/secwebscan/internal/config"
	"github.com/secwebscan/secwebscan/internal/logging"
	"github.com/secwebscan/secwebscan/internal/report"
	"github.com/secwebscan/secwebscan/internal/scan"
	"github.com/secwebscan/secwebscan/internal/store"
)

const reportDirPerm = 0750

// runScanPhase dispatches all tasks and writes the artifact index. Task
// failures are logged and summarized; only a fatal config problem errors.
func runScanPhase(ctx context.Context, cfg *config.Config, registry *capability.Registry) (*scan.Index, error) {
	runner, err := scan.NewExecRunner(cfg.Scan.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("preparing work directory: %w", err)
	}

	dispatcher := scan.NewDispatcher(registry, runner, cfg.Runner)
	result, err := dispatcher.Run(ctx, cfg.Run())
	if err != nil {
		return nil, err
	}

	for _, f := range result.Failures {
		fmt.Fprintf(os.Stderr, "task failed: %s/%s: %v\n", f.Capability, f.Source, f.Err)
	}

	if err := result.Index.WriteFile(cfg.Scan.IndexPath); err != nil {
		return nil, fmt.Errorf("writing artifact index: %w", err)
	}

	fmt.Printf("Scan finished: %d artifact(s), %d failure(s), index at %s\n",
		len(result.Index.Paths), len(result.Failures), cfg.Scan.IndexPath)
	return result.Index, nil
}

// runCollectPhase parses, reconciles, persists, and renders one index.
func runCollectPhase(
	ctx context.Context,
	cfg *config.Config,
	registry *capability.Registry,
	st *store.Store,
	idx *scan.Index,
) error {
	collector := collect.New(registry, st, cfg.Scan.KeepArtifacts)
	run := cfg.Run()

	outcome, err := collector.Collect(ctx, run, idx)
	if err != nil {
		return err
	}
	for _, f := range outcome.Failures {
		fmt.Fprintf(os.Stderr, "parse failed: %s/%s: %v\n", f.Capability, f.Source, f.Err)
	}

	return renderReports(cfg, registry, run.PrimaryTarget(), outcome.Entries)
}

// runPipeline is one full scan-and-collect pass, shared by the run command
// and the daemon scheduler.
func runPipeline(ctx context.Context, cfg *config.Config, registry *capability.Registry, st *store.Store) error {
	idx, err := runScanPhase(ctx, cfg, registry)
	if err != nil {
		return err
	}
	return runCollectPhase(ctx, cfg, registry, st, idx)
}

// renderReports writes every configured report format. Terminal output goes
// to stdout; file formats land under the report directory.
func renderReports(cfg *config.Config, registry *capability.Registry, target string, entries []capability.Entry) error {
	for _, format := range cfg.Scan.ReportFormats {
		switch format {
		case "terminal":
			if err := report.RenderTerminal(os.Stdout, registry, target, entries); err != nil {
				return fmt.Errorf("rendering terminal report: %w", err)
			}
		case "markdown":
			path, err := writeMarkdownReport(cfg.Scan.ReportDir, registry, target, entries)
			if err != nil {
				return err
			}
			fmt.Printf("Markdown report written to %s\n", path)
		default:
			logging.Warn("Unknown report format, skipping", "format", format)
		}
	}
	return nil
}

func writeMarkdownReport(dir string, registry *capability.Registry, target string, entries []capability.Entry) (string, error) {
	if err := os.MkdirAll(dir, reportDirPerm); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}

	name := fmt.Sprintf("secwebscan_%s.md", strings.ReplaceAll(target, "/", "_"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path) //nolint:gosec // path is derived from operator config
	if err != nil {
		return "", fmt.Errorf("creating report file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err := report.RenderMarkdown(f, registry, target, entries); err != nil {
		return "", fmt.Errorf("rendering markdown report: %w", err)
	}
	return path, nil
}

// connectStore opens and migrates the result store.
func connectStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	st, err := store.Connect(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
