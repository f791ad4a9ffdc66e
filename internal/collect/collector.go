// Package collect turns a scan run's artifact index into persisted results.
// Every artifact is re-parsed through its capability's normalizer, merged
// across target variants, classified, and written to the store in one
// transactional swap per target. Parse failures are isolated per artifact;
// a corrupt file costs its own findings and nothing else.
package collect

import (
	"context"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/secwebscan/secwebscan/internal/capability"
	"github.com/secwebscan/secwebscan/internal/classify"
	"github.com/secwebscan/secwebscan/internal/config"
	"github.com/secwebscan/secwebscan/internal/logging"
	"github.com/secwebscan/secwebscan/internal/metrics"
	"github.com/secwebscan/secwebscan/internal/reconcile"
	"github.com/secwebscan/secwebscan/internal/scan"
	"github.com/secwebscan/secwebscan/internal/store"
)

// parseConcurrency bounds parallel artifact parsing.
const parseConcurrency = 4

// ParseFailure records one artifact that could not be normalized.
type ParseFailure struct {
	Capability string
	Source     string
	Path       string
	Err        error
}

// Outcome is the result of one collection pass.
type Outcome struct {
	Entries  []capability.Entry
	Failures []ParseFailure
}

// Collector drives the parse-merge-classify-persist pipeline.
type Collector struct {
	registry      *capability.Registry
	store         *store.Store
	keepArtifacts bool
}

// New creates a collector. A nil store skips persistence, which the
// report-only path uses.
func New(registry *capability.Registry, st *store.Store, keepArtifacts bool) *Collector {
	return &Collector{
		registry:      registry,
		store:         st,
		keepArtifacts: keepArtifacts,
	}
}

// Collect parses every indexed artifact, reconciles per capability, and
// persists the classified entries. Artifacts are deleted after a successful
// commit unless retention is configured; a failed commit always leaves them
// in place for a retry.
func (c *Collector) Collect(ctx context.Context, run *config.Run, idx *scan.Index) (*Outcome, error) {
	outcome := &Outcome{}
	byCap := idx.ByCapability()

	for _, cp := range c.registry.All() {
		artifacts := byCap[cp.Name()]
		if len(artifacts) == 0 {
			continue
		}

		lists, failures := c.parseAll(ctx, cp, artifacts)
		outcome.Failures = append(outcome.Failures, failures...)

		merged := reconcile.Merge(cp, lists...)
		if len(merged) == 0 {
			logging.Info("No findings after reconciliation", "capability", cp.Name())
			continue
		}

		logging.InfoTask("Capability reconciled", cp.Name(), "",
			"entries", len(merged),
			"summary", cp.Summary(merged))
		outcome.Entries = append(outcome.Entries, merged...)
	}

	classify.Annotate(run, outcome.Entries)

	if c.store != nil {
		if err := c.persist(ctx, run, outcome.Entries); err != nil {
			return outcome, err
		}
	}

	if !c.keepArtifacts {
		c.removeArtifacts(idx)
	}

	return outcome, nil
}

// parseAll normalizes each artifact of one capability concurrently. Each
// artifact yields its own entry list so reconciliation sees per-variant
// input.
func (c *Collector) parseAll(
	ctx context.Context,
	cp capability.Capability,
	artifacts []capability.Artifact,
) (lists [][]capability.Entry, failures []ParseFailure) {
	var mu sync.Mutex
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(parseConcurrency)

	for _, a := range artifacts {
		g.Go(func() error {
			entries, err := cp.Parse(a.Path, a.Source)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logging.ErrorTask("Artifact parse failed", a.Capability, a.Source, err,
					"path", a.Path)
				failures = append(failures, ParseFailure{
					Capability: a.Capability,
					Source:     a.Source,
					Path:       a.Path,
					Err:        err,
				})
				return nil
			}
			lists = append(lists, entries)
			return nil
		})
	}
	_ = g.Wait()

	return lists, failures
}

// persist writes all entries for the run's target in one transactional swap.
func (c *Collector) persist(ctx context.Context, run *config.Run, entries []capability.Entry) error {
	target := run.PrimaryTarget()

	rows := make([]store.Result, 0, len(entries))
	perCapability := make(map[string]int)
	for _, e := range entries {
		row, err := NewRow(target, e)
		if err != nil {
			logging.ErrorStore("Skipping unencodable entry", err,
				"capability", e.Capability)
			continue
		}
		rows = append(rows, row)
		perCapability[e.Capability]++
	}

	if err := c.store.ReplaceResults(ctx, target, rows); err != nil {
		return err
	}
	for name, n := range perCapability {
		metrics.EntriesPersisted(name, n)
	}
	return nil
}

// removeArtifacts deletes collected artifact files. Removal failures are
// logged and ignored; stale temp files are not worth failing a run over.
func (c *Collector) removeArtifacts(idx *scan.Index) {
	for _, a := range idx.Paths {
		if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
			logging.Warn("Could not remove artifact",
				"path", a.Path, "error", err)
		}
	}
}
