// Package scan contains the task dispatcher and tool invocation layer: it
// expands the capability manifest into concrete per-variant tasks, executes
// them concurrently through the worker pool, and produces the artifact index
// handed to the persistence collaborator.
package scan

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/secwebscan/secwebscan/internal/capability"
	"github.com/secwebscan/secwebscan/internal/errors"
	"github.com/secwebscan/secwebscan/internal/logging"
)

const artifactDirPerm = 0750

// Runner executes one task and produces its artifact.
type Runner interface {
	Run(ctx context.Context, task capability.Task) (capability.Artifact, error)
}

// ExecRunner runs tasks as OS child processes (or via a task's in-process
// body), writing each artifact to a collision-free path under WorkDir. The
// artifact namespace is shared across concurrent tasks; uniqueness comes
// from the capability+source+suffix naming, so no locking is needed.
type ExecRunner struct {
	workDir string
}

// NewExecRunner creates a runner writing artifacts under workDir. An empty
// workDir allocates a fresh directory under the OS temp dir.
func NewExecRunner(workDir string) (*ExecRunner, error) {
	if workDir == "" {
		dir, err := os.MkdirTemp("", "secwebscan-")
		if err != nil {
			return nil, fmt.Errorf("allocating artifact directory: %w", err)
		}
		return &ExecRunner{workDir: dir}, nil
	}
	if err := os.MkdirAll(workDir, artifactDirPerm); err != nil {
		return nil, fmt.Errorf("creating artifact directory %s: %w", workDir, err)
	}
	return &ExecRunner{workDir: workDir}, nil
}

// WorkDir returns the directory artifacts are written to.
func (r *ExecRunner) WorkDir() string {
	return r.workDir
}

// Run executes one task. The tool exiting non-zero is a task failure; so is
// an exit code of zero with a missing or empty artifact, since external
// tools may exit cleanly without writing results.
func (r *ExecRunner) Run(ctx context.Context, task capability.Task) (capability.Artifact, error) {
	outputPath := r.artifactPath(task)
	artifact := capability.Artifact{
		Capability: task.Capability,
		Source:     task.Source,
		Path:       outputPath,
	}

	if task.Run != nil {
		if err := task.Run(ctx, outputPath); err != nil {
			return artifact, errors.WrapTaskError(errors.CodeToolExecution,
				"Tool execution failed", task.Capability, task.Source, err)
		}
	} else {
		if err := r.ensureInstalled(ctx, task); err != nil {
			return artifact, err
		}
		if err := r.execute(ctx, task, outputPath); err != nil {
			return artifact, err
		}
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		return artifact, errors.ErrEmptyArtifact(task.Capability, task.Source)
	}

	return artifact, nil
}

// artifactPath allocates a uniquely named output path scoped to the task's
// capability and variant, avoiding collisions between concurrent
// invocations of the same capability.
func (r *ExecRunner) artifactPath(task capability.Task) string {
	suffix := uuid.NewString()[:8]
	ext := task.OutputExt
	if ext == "" {
		ext = ".out"
	}
	name := fmt.Sprintf("%s_%s_%s%s", task.Capability, task.Source, suffix, ext)
	return filepath.Join(r.workDir, name)
}

// ensureInstalled checks that the task's tool is on PATH and runs the
// declared install steps when it is not, escalating with sudo if the
// current process is unprivileged. A failed step aborts the task only.
func (r *ExecRunner) ensureInstalled(ctx context.Context, task capability.Task) error {
	if task.Tool == "" {
		return nil
	}
	if _, err := exec.LookPath(task.Tool); err == nil {
		return nil
	}
	if len(task.Install) == 0 {
		logging.Warn("Tool not found and no install steps declared",
			"capability", task.Capability,
			"tool", task.Tool)
		return nil
	}

	logging.InfoTask("Installing tool", task.Capability, task.Source, "tool", task.Tool)

	for _, step := range task.Install {
		command := step
		if os.Geteuid() != 0 {
			command = "sudo " + command
		}

		logging.InfoTask("Running install step", task.Capability, task.Source, "command", command)

		var stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return errors.ErrInstallFailed(task.Capability, step, err).WithStderr(stderr.String())
		}
	}

	logging.InfoTask("Tool installed", task.Capability, task.Source, "tool", task.Tool)
	return nil
}

// execute runs the task's resolved command line, capturing stdout and
// stderr for the audit log.
func (r *ExecRunner) execute(ctx context.Context, task capability.Task, outputPath string) error {
	command := strings.ReplaceAll(task.Command, capability.OutputPlaceholder, outputPath)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	// Audit trail: exact command line plus captured output, regardless of
	// outcome.
	logging.InfoTask("Tool invocation", task.Capability, task.Source,
		"command", command,
		"stdout", strings.TrimSpace(stdout.String()),
		"stderr", strings.TrimSpace(stderr.String()))

	if err != nil {
		return errors.ErrToolExecution(task.Capability, task.Source, stderr.String(), err)
	}
	return nil
}
