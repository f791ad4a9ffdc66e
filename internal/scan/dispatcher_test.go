package scan

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secwebscan/secwebscan/internal/capability"
	"github.com/secwebscan/secwebscan/internal/config"
	"github.com/secwebscan/secwebscan/internal/errors"
)

// fakeCapability plans a fixed task list.
type fakeCapability struct {
	name    string
	tasks   []capability.Task
	planErr error
}

func (f *fakeCapability) Name() string { return f.name }

func (f *fakeCapability) Plan(*config.Run) ([]capability.Task, error) {
	return f.tasks, f.planErr
}

func (f *fakeCapability) Parse(string, string) ([]capability.Entry, error) { return nil, nil }
func (f *fakeCapability) ImportantFields() []string                        { return nil }
func (f *fakeCapability) MergeKey(capability.Entry) (capability.Key, bool) { return nil, false }
func (f *fakeCapability) ShouldMerge() bool                                { return false }
func (f *fakeCapability) Summary([]capability.Entry) string                { return "" }
func (f *fakeCapability) ColumnOrder() []string                            { return nil }
func (f *fakeCapability) WideFields() []string                             { return nil }

// fakeRunner succeeds or fails per task source.
type fakeRunner struct {
	failSources map[string]bool
}

func (r *fakeRunner) Run(_ context.Context, task capability.Task) (capability.Artifact, error) {
	if r.failSources[task.Source] {
		return capability.Artifact{}, errors.ErrToolExecution(task.Capability, task.Source, "boom", fmt.Errorf("exit 1"))
	}
	return capability.Artifact{
		Capability: task.Capability,
		Source:     task.Source,
		Path:       "/tmp/" + task.ID(),
	}, nil
}

func task(cap, source string) capability.Task {
	return capability.Task{Capability: cap, Source: source, Command: "true"}
}

func runConfig(names ...string) *config.Run {
	cfg := config.Default()
	cfg.Scan.TargetIP = "192.0.2.10"
	cfg.Scan.TargetDomain = "example.com"
	for _, n := range names {
		cfg.Capabilities = append(cfg.Capabilities, &config.CapabilityConfig{
			Name:    n,
			Enabled: true,
		})
	}
	return cfg.Run()
}

func runnerConfig() config.RunnerConfig {
	return config.RunnerConfig{
		PoolSize:    4,
		TaskTimeout: time.Minute,
	}
}

func TestDispatcherRun(t *testing.T) {
	t.Run("successful tasks land in the index", func(t *testing.T) {
		registry := capability.NewRegistry(
			&fakeCapability{name: "alpha", tasks: []capability.Task{
				task("alpha", "ip"),
				task("alpha", "domain"),
			}},
		)
		d := NewDispatcher(registry, &fakeRunner{}, runnerConfig())

		result, err := d.Run(context.Background(), runConfig("alpha"))
		require.NoError(t, err)

		assert.Len(t, result.Index.Paths, 2)
		assert.Empty(t, result.Failures)
		require.Len(t, result.Index.Durations, 1)
		assert.Equal(t, "alpha", result.Index.Durations[0].Plugin)
	})

	t.Run("task failures are isolated", func(t *testing.T) {
		registry := capability.NewRegistry(
			&fakeCapability{name: "alpha", tasks: []capability.Task{task("alpha", "ip")}},
			&fakeCapability{name: "beta", tasks: []capability.Task{task("beta", "ip")}},
		)
		d := NewDispatcher(registry, &failByCapability{fail: "beta"}, runnerConfig())

		result, err := d.Run(context.Background(), runConfig("alpha", "beta"))
		require.NoError(t, err)

		assert.Len(t, result.Index.Paths, 1)
		require.Len(t, result.Failures, 1)
		assert.Equal(t, "beta", result.Failures[0].Capability)
		assert.True(t, errors.IsCode(result.Failures[0].Err, errors.CodeToolExecution))
	})

	t.Run("disabled capability plans nothing", func(t *testing.T) {
		planned := &fakeCapability{name: "alpha", tasks: []capability.Task{task("alpha", "ip")}}
		registry := capability.NewRegistry(planned)
		d := NewDispatcher(registry, &fakeRunner{}, runnerConfig())

		cfg := config.Default()
		cfg.Scan.TargetIP = "192.0.2.10"
		cfg.Capabilities = []*config.CapabilityConfig{{Name: "alpha", Enabled: false}}

		result, err := d.Run(context.Background(), cfg.Run())
		require.NoError(t, err)

		assert.Empty(t, result.Index.Paths)
		assert.Empty(t, result.Failures)
	})

	t.Run("ip-required capability skipped without an IP", func(t *testing.T) {
		planned := &fakeCapability{name: "alpha", tasks: []capability.Task{task("alpha", "ip")}}
		registry := capability.NewRegistry(planned)
		d := NewDispatcher(registry, &fakeRunner{}, runnerConfig())

		cfg := config.Default()
		cfg.Scan.TargetDomain = "example.com"
		cfg.Capabilities = []*config.CapabilityConfig{{
			Name:       "alpha",
			Enabled:    true,
			IPRequired: true,
		}}

		result, err := d.Run(context.Background(), cfg.Run())
		require.NoError(t, err)

		// Skipped, not failed: a missing target type is not an error.
		assert.Empty(t, result.Index.Paths)
		assert.Empty(t, result.Failures)
	})

	t.Run("vhost-required capability skipped without a domain", func(t *testing.T) {
		planned := &fakeCapability{name: "alpha", tasks: []capability.Task{task("alpha", "domain")}}
		registry := capability.NewRegistry(planned)
		d := NewDispatcher(registry, &fakeRunner{}, runnerConfig())

		cfg := config.Default()
		cfg.Scan.TargetIP = "192.0.2.10"
		cfg.Capabilities = []*config.CapabilityConfig{{
			Name:          "alpha",
			Enabled:       true,
			VHostRequired: true,
		}}

		result, err := d.Run(context.Background(), cfg.Run())
		require.NoError(t, err)

		assert.Empty(t, result.Index.Paths)
		assert.Empty(t, result.Failures)
	})

	t.Run("failed tasks contribute no index duration", func(t *testing.T) {
		registry := capability.NewRegistry(
			&fakeCapability{name: "alpha", tasks: []capability.Task{task("alpha", "ip")}},
			&fakeCapability{name: "beta", tasks: []capability.Task{task("beta", "ip")}},
		)
		d := NewDispatcher(registry, &failByCapability{fail: "beta"}, runnerConfig())

		result, err := d.Run(context.Background(), runConfig("alpha", "beta"))
		require.NoError(t, err)

		require.Len(t, result.Index.Durations, 1)
		assert.Equal(t, "alpha", result.Index.Durations[0].Plugin)
	})

	t.Run("planner error fails only its capability", func(t *testing.T) {
		registry := capability.NewRegistry(
			&fakeCapability{name: "alpha", planErr: fmt.Errorf("bad manifest")},
			&fakeCapability{name: "beta", tasks: []capability.Task{task("beta", "ip")}},
		)
		d := NewDispatcher(registry, &fakeRunner{}, runnerConfig())

		result, err := d.Run(context.Background(), runConfig("alpha", "beta"))
		require.NoError(t, err)

		assert.Len(t, result.Index.Paths, 1)
		require.Len(t, result.Failures, 1)
		assert.Equal(t, "alpha", result.Failures[0].Capability)
	})

	t.Run("no target is fatal", func(t *testing.T) {
		registry := capability.NewRegistry(&fakeCapability{name: "alpha"})
		d := NewDispatcher(registry, &fakeRunner{}, runnerConfig())

		run := &config.Run{}
		_, err := d.Run(context.Background(), run)

		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeNoTarget))
		assert.True(t, errors.IsFatal(err))
	})
}

// failByCapability fails every task of one capability.
type failByCapability struct {
	fail string
}

func (r *failByCapability) Run(_ context.Context, task capability.Task) (capability.Artifact, error) {
	if task.Capability == r.fail {
		return capability.Artifact{}, errors.ErrToolExecution(task.Capability, task.Source, "boom", fmt.Errorf("exit 1"))
	}
	return capability.Artifact{
		Capability: task.Capability,
		Source:     task.Source,
		Path:       "/tmp/" + task.ID(),
	}, nil
}
