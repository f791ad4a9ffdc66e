package capability

import "context"

// OutputPlaceholder is replaced with the allocated artifact path in a task's
// command line before execution.
const OutputPlaceholder = "{output}"

// RunnerFunc is an in-process task body. Capabilities that do their own
// collection (DNS lookups, SNMP gets) supply one instead of a command line;
// it must write its findings to outputPath.
type RunnerFunc func(ctx context.Context, outputPath string) error

// Task is one concrete scan invocation: a capability run against one target
// variant. Tasks are created by planners and consumed exactly once by the
// runner; they are never persisted.
type Task struct {
	// Capability that planned this task
	Capability string

	// Target value the tool is pointed at
	Target string

	// Variant label recorded in every entry this task produces
	Source string

	// Resolved shell command with OutputPlaceholder for the artifact path;
	// empty when Run is set
	Command string

	// Filename extension for the artifact ('.xml', '.json')
	OutputExt string

	// Binary checked on PATH before execution; empty skips the check
	Tool string

	// Install steps run in order when Tool is missing from PATH
	Install []string

	// In-process task body; overrides Command when non-nil
	Run RunnerFunc
}

// ID returns the task's capability/variant identity used in logs and the
// worker pool.
func (t Task) ID() string {
	return t.Capability + "_" + t.Source
}

// Artifact is the raw output of one task: a filesystem path plus the
// capability and source label that produced it.
type Artifact struct {
	Capability string `json:"plugin"`
	Path       string `json:"path"`
	Source     string `json:"source"`
}
