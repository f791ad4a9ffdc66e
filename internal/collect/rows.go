package collect

import (
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx/types"

	"github.com/secwebscan/secwebscan/internal/capability"
	"github.com/secwebscan/secwebscan/internal/store"
)

// rowData is the JSONB payload shape of a result row.
type rowData struct {
	Source string            `json:"source"`
	Fields map[string]string `json:"fields"`
}

// NewRow converts one finalized entry into its persisted row form.
func NewRow(target string, e capability.Entry) (store.Result, error) {
	data, err := json.Marshal(rowData{
		Source: e.Source,
		Fields: e.Fields,
	})
	if err != nil {
		return store.Result{}, fmt.Errorf("encoding result data: %w", err)
	}
	return store.Result{
		Target:   target,
		Module:   e.Capability,
		Category: e.Category,
		Severity: e.Severity,
		Data:     types.JSONText(data),
	}, nil
}

// RowEntry reconstructs the canonical entry held in a row.
func RowEntry(r store.Result) (capability.Entry, error) {
	var data rowData
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return capability.Entry{}, fmt.Errorf("decoding result data: %w", err)
	}
	return capability.Entry{
		Capability: r.Module,
		Target:     r.Target,
		Source:     data.Source,
		Fields:     data.Fields,
		Category:   r.Category,
		Severity:   r.Severity,
	}, nil
}
