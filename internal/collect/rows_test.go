package collect

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secwebscan/secwebscan/internal/capability"
	"github.com/secwebscan/secwebscan/internal/scan"
	"github.com/secwebscan/secwebscan/internal/store"
)

func sampleEntry() capability.Entry {
	return capability.Entry{
		Capability: "nmap",
		Target:     "192.0.2.10",
		Source:     "domain_http+ip",
		Fields: map[string]string{
			"port":         "22",
			"service_name": "ssh",
		},
		Category: "Network",
		Severity: "info",
	}
}

func TestNewRow(t *testing.T) {
	row, err := NewRow("example.com", sampleEntry())
	require.NoError(t, err)

	assert.Equal(t, "example.com", row.Target)
	assert.Equal(t, "nmap", row.Module)
	assert.Equal(t, "Network", row.Category)
	assert.Equal(t, "info", row.Severity)
	assert.Contains(t, string(row.Data), `"source":"domain_http+ip"`)
	assert.Contains(t, string(row.Data), `"port":"22"`)
}

func TestRowEntryRoundTrip(t *testing.T) {
	row, err := NewRow("example.com", sampleEntry())
	require.NoError(t, err)

	e, err := RowEntry(row)
	require.NoError(t, err)

	assert.Equal(t, "nmap", e.Capability)
	assert.Equal(t, "domain_http+ip", e.Source)
	assert.Equal(t, "ssh", e.Field("service_name"))
	assert.Equal(t, "Network", e.Category)
	assert.Equal(t, "info", e.Severity)
}

func TestRowEntryRejectsCorruptData(t *testing.T) {
	_, err := RowEntry(store.Result{Data: []byte("{{{{")})
	assert.Error(t, err)
}

func TestCollectPersistsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	st := store.NewFromDB(sqlx.NewDb(db, "sqlmock"))

	dir := t.TempDir()
	registry := capability.NewRegistry(&lineCapability{name: "portscan"})
	idx := &scan.Index{Paths: []capability.Artifact{
		{Capability: "portscan", Source: "ip", Path: writeArtifact(t, dir, "ip.txt", "22\n80\n")},
	}}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM scan_results").
		WithArgs("example.com").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO scan_results").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO scan_results").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	outcome, err := New(registry, st, true).Collect(context.Background(), testRun(), idx)
	require.NoError(t, err)
	assert.Len(t, outcome.Entries, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
