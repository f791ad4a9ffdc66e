package scan

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secwebscan/secwebscan/internal/capability"
	"github.com/secwebscan/secwebscan/internal/errors"
)

func newTestRunner(t *testing.T) *ExecRunner {
	t.Helper()
	runner, err := NewExecRunner(t.TempDir())
	require.NoError(t, err)
	return runner
}

func TestExecRunnerInProcessTask(t *testing.T) {
	runner := newTestRunner(t)

	t.Run("artifact written by task body succeeds", func(t *testing.T) {
		task := capability.Task{
			Capability: "fake",
			Source:     "domain_dns",
			OutputExt:  ".json",
			Run: func(_ context.Context, outputPath string) error {
				return os.WriteFile(outputPath, []byte(`[{"ok":true}]`), 0600)
			},
		}

		artifact, err := runner.Run(context.Background(), task)
		require.NoError(t, err)

		assert.Equal(t, "fake", artifact.Capability)
		assert.Equal(t, "domain_dns", artifact.Source)
		assert.FileExists(t, artifact.Path)
	})

	t.Run("body error becomes a tool execution failure", func(t *testing.T) {
		task := capability.Task{
			Capability: "fake",
			Source:     "ip",
			Run: func(context.Context, string) error {
				return fmt.Errorf("unreachable")
			},
		}

		_, err := runner.Run(context.Background(), task)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeToolExecution))
	})

	t.Run("missing artifact is an empty artifact failure", func(t *testing.T) {
		task := capability.Task{
			Capability: "fake",
			Source:     "ip",
			Run: func(context.Context, string) error {
				return nil
			},
		}

		_, err := runner.Run(context.Background(), task)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeEmptyArtifact))
	})
}

func TestExecRunnerCommandTask(t *testing.T) {
	runner := newTestRunner(t)

	t.Run("output placeholder resolves and artifact survives", func(t *testing.T) {
		task := capability.Task{
			Capability: "fake",
			Source:     "ip",
			Command:    "printf data > " + capability.OutputPlaceholder,
			OutputExt:  ".out",
		}

		artifact, err := runner.Run(context.Background(), task)
		require.NoError(t, err)

		data, err := os.ReadFile(artifact.Path)
		require.NoError(t, err)
		assert.Equal(t, "data", string(data))
	})

	t.Run("non-zero exit is a tool execution failure", func(t *testing.T) {
		task := capability.Task{
			Capability: "fake",
			Source:     "ip",
			Command:    "exit 1",
		}

		_, err := runner.Run(context.Background(), task)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeToolExecution))
	})

	t.Run("clean exit without output is an empty artifact failure", func(t *testing.T) {
		task := capability.Task{
			Capability: "fake",
			Source:     "ip",
			Command:    "true",
		}

		_, err := runner.Run(context.Background(), task)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeEmptyArtifact))
	})

	t.Run("zero-byte artifact is an empty artifact failure", func(t *testing.T) {
		task := capability.Task{
			Capability: "fake",
			Source:     "ip",
			Command:    "touch " + capability.OutputPlaceholder,
		}

		_, err := runner.Run(context.Background(), task)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeEmptyArtifact))
	})
}

func TestArtifactPathsAreUnique(t *testing.T) {
	runner := newTestRunner(t)
	task := capability.Task{Capability: "nmap", Source: "ip", OutputExt: ".xml"}

	a := runner.artifactPath(task)
	b := runner.artifactPath(task)

	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "nmap_ip_")
	assert.Contains(t, a, ".xml")
}
