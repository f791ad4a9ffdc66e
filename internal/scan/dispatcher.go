package scan

import (
	"context"
	"sync"
	"time"

	"github.com/secwebscan/secwebscan/internal/capability"
	"github.com/secwebscan/secwebscan/internal/config"
	"github.com/secwebscan/secwebscan/internal/errors"
	"github.com/secwebscan/secwebscan/internal/logging"
	"github.com/secwebscan/secwebscan/internal/metrics"
	"github.com/secwebscan/secwebscan/internal/workers"
)

// TaskFailure records one failed task for the run summary. Failures are
// isolated: they are reported here, never raised.
type TaskFailure struct {
	Capability string
	Source     string
	Err        error
}

// RunResult is the outcome of one dispatched run: the artifact index of all
// successful tasks and the failure log of everything else.
type RunResult struct {
	Index    *Index
	Failures []TaskFailure
	Elapsed  time.Duration
}

// Dispatcher expands the capability manifest into per-variant tasks and
// executes them concurrently. A failure in one task never cancels or delays
// its siblings; the only fatal condition is a run config with no scannable
// target, which is rejected before any task is planned.
type Dispatcher struct {
	registry *capability.Registry
	runner   Runner
	cfg      config.RunnerConfig
}

// NewDispatcher creates a dispatcher over the given registry and runner.
func NewDispatcher(registry *capability.Registry, runner Runner, cfg config.RunnerConfig) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		runner:   runner,
		cfg:      cfg,
	}
}

// taskJob adapts one task to the worker pool's Job interface, capturing the
// produced artifact for collection after the pool drains.
type taskJob struct {
	task    capability.Task
	runner  Runner
	timeout time.Duration

	mu       sync.Mutex
	artifact capability.Artifact
	ok       bool
	duration time.Duration
}

// Execute implements workers.Job.
func (j *taskJob) Execute(ctx context.Context) error {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	metrics.TaskStarted()
	start := time.Now()

	artifact, err := j.runner.Run(ctx, j.task)
	elapsed := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.TaskCompleted(j.task.Capability, status, elapsed)

	j.mu.Lock()
	j.duration = elapsed
	if err == nil {
		j.artifact = artifact
		j.ok = true
	}
	j.mu.Unlock()
	return err
}

// ID implements workers.Job.
func (j *taskJob) ID() string { return j.task.ID() }

// Type implements workers.Job.
func (j *taskJob) Type() string { return "scan" }

// Run plans and executes all tasks for the run. It always returns a
// RunResult with a usable index - even when every task failed - so callers
// can treat an empty result set as a valid outcome.
func (d *Dispatcher) Run(ctx context.Context, run *config.Run) (*RunResult, error) {
	if run.IP == "" && run.Domain == "" {
		return nil, errors.ErrNoTarget()
	}

	start := time.Now()
	jobs, failures := d.plan(run)

	if len(jobs) > 0 {
		failures = append(failures, d.execute(ctx, jobs)...)
	}

	result := &RunResult{
		Index:    d.buildIndex(jobs),
		Failures: failures,
		Elapsed:  time.Since(start),
	}

	status := "success"
	if len(failures) > 0 {
		status = "partial"
	}
	metrics.RunCompleted(status, result.Elapsed)

	logging.Info("Scan run completed",
		"tasks", len(jobs),
		"artifacts", len(result.Index.Paths),
		"failures", len(failures),
		"elapsed", result.Elapsed)

	return result, nil
}

// plan expands every enabled capability into its applicable variant tasks.
// Disabled capabilities and variants whose required target type is absent
// are skipped with an info log; a capability whose planner errors is
// recorded as a failure and its siblings proceed.
func (d *Dispatcher) plan(run *config.Run) (jobs []*taskJob, failures []TaskFailure) {
	for _, c := range d.registry.All() {
		cc := run.Capability(c.Name())
		if cc == nil || !cc.Enabled {
			logging.Info("Capability disabled, skipping", "capability", c.Name())
			continue
		}
		if cc.IPRequired && run.IP == "" {
			logging.Info("Capability requires an IP target, skipping", "capability", c.Name())
			continue
		}
		if cc.VHostRequired && run.Domain == "" {
			logging.Info("Capability requires a domain target, skipping", "capability", c.Name())
			continue
		}

		tasks, err := c.Plan(run)
		if err != nil {
			logging.ErrorTask("Capability planning failed", c.Name(), "", err)
			failures = append(failures, TaskFailure{Capability: c.Name(), Err: err})
			continue
		}
		if len(tasks) == 0 {
			logging.Info("No applicable target variant, skipping", "capability", c.Name())
			continue
		}

		for _, t := range tasks {
			jobs = append(jobs, &taskJob{
				task:    t,
				runner:  d.runner,
				timeout: d.cfg.TaskTimeout,
			})
		}
	}
	return jobs, failures
}

// execute runs all jobs on the worker pool and gathers every result before
// returning, mirroring the all-complete-before-merge contract.
func (d *Dispatcher) execute(ctx context.Context, jobs []*taskJob) []TaskFailure {
	byID := make(map[string]*taskJob, len(jobs))

	pool := workers.New(workers.Config{
		Size:            d.cfg.PoolSize,
		QueueSize:       len(jobs),
		MaxRetries:      d.cfg.MaxRetries,
		RetryDelay:      d.cfg.RetryDelay,
		ShutdownTimeout: d.shutdownTimeout(),
		RateLimit:       d.cfg.RateLimit,
	})
	pool.Start()

	submitted := 0
	var failures []TaskFailure
	for _, j := range jobs {
		byID[j.ID()] = j
		if err := pool.Submit(j); err != nil {
			failures = append(failures, TaskFailure{
				Capability: j.task.Capability,
				Source:     j.task.Source,
				Err:        err,
			})
			continue
		}
		submitted++
	}

	results := pool.Results()
	go func() {
		// Close the results channel once all workers drain the queue.
		_ = pool.Shutdown()
	}()

	received := 0
	for res := range results {
		received++
		if res.Error != nil {
			j := byID[res.JobID]
			failures = append(failures, TaskFailure{
				Capability: j.task.Capability,
				Source:     j.task.Source,
				Err:        res.Error,
			})
			logging.ErrorTask("Scan task failed", j.task.Capability, j.task.Source, res.Error,
				"duration", res.Duration,
				"retries", res.Retries)
		}
		if received == submitted {
			break
		}
	}

	return failures
}

// buildIndex assembles the artifact index from successful jobs, summing
// per-capability durations. Failed jobs contribute neither a path nor
// duration, so the durations mean time spent producing artifacts.
func (d *Dispatcher) buildIndex(jobs []*taskJob) *Index {
	idx := &Index{
		Paths:     []capability.Artifact{},
		Durations: []Duration{},
	}

	durations := make(map[string]time.Duration)
	var order []string
	for _, j := range jobs {
		j.mu.Lock()
		ok := j.ok
		artifact := j.artifact
		duration := j.duration
		j.mu.Unlock()
		if !ok {
			continue
		}

		if _, seen := durations[j.task.Capability]; !seen {
			order = append(order, j.task.Capability)
		}
		durations[j.task.Capability] += duration
		idx.Paths = append(idx.Paths, artifact)
	}
	for _, name := range order {
		idx.Durations = append(idx.Durations, Duration{
			Plugin:  name,
			Seconds: durations[name].Seconds(),
		})
	}
	return idx
}

// shutdownTimeout bounds how long the pool drain may take. Without a
// per-task deadline a hung tool would stall the run indefinitely, so a
// generous cap applies even then.
func (d *Dispatcher) shutdownTimeout() time.Duration {
	if d.cfg.TaskTimeout > 0 {
		return d.cfg.TaskTimeout + time.Minute
	}
	return 24 * time.Hour
}
