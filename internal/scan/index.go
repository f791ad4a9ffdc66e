package scan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/secwebscan/secwebscan/internal/capability"
)

const (
	indexDirPerm  = 0750
	indexFilePerm = 0600
)

// Index is the hand-off document between the scan core and the persistence
// collaborator: one artifact record per successful task plus the total
// duration spent in each capability. It is always written, even when every
// task failed; an empty path list is a valid outcome.
type Index struct {
	Paths     []capability.Artifact `json:"paths"`
	Durations []Duration            `json:"durations"`
}

// Duration records the accumulated task time of one capability in seconds.
type Duration struct {
	Plugin  string  `json:"plugin"`
	Seconds float64 `json:"duration"`
}

// WriteFile serializes the index as indented JSON at path, creating parent
// directories as needed.
func (idx *Index) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), indexDirPerm); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	if err := os.WriteFile(path, data, indexFilePerm); err != nil {
		return fmt.Errorf("writing index %s: %w", path, err)
	}
	return nil
}

// ReadIndex loads an index document from disk.
func ReadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("reading index %s: %w", path, err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decoding index %s: %w", path, err)
	}
	return &idx, nil
}

// ByCapability groups the index's artifacts by capability name, preserving
// their order within each group.
func (idx *Index) ByCapability() map[string][]capability.Artifact {
	groups := make(map[string][]capability.Artifact)
	for _, a := range idx.Paths {
		groups[a.Capability] = append(groups[a.Capability], a)
	}
	return groups
}
