package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secwebscan/secwebscan/internal/errors"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	return NewFromDB(sqlx.NewDb(db, "sqlmock")), mock
}

func sampleRow() Result {
	return Result{
		Target:   "example.com",
		Module:   "nmap",
		Category: "Network",
		Severity: "info",
		Data:     types.JSONText(`{"source":"domain_http+ip","fields":{"port":"22"}}`),
	}
}

func TestMigrate(t *testing.T) {
	st, mock := newMockStore(t)

	for range schema {
		mock.ExpectExec("CREATE (TABLE|INDEX)").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceResults(t *testing.T) {
	t.Run("purges then inserts in one transaction", func(t *testing.T) {
		st, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM scan_results").
			WithArgs("example.com").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("INSERT INTO scan_results").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := st.ReplaceResults(context.Background(), "example.com", []Result{sampleRow()})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		st, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM scan_results").
			WithArgs("example.com").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO scan_results").
			WillReturnError(fmt.Errorf("boom"))
		mock.ExpectRollback()

		err := st.ReplaceResults(context.Background(), "example.com", []Result{sampleRow()})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeStoreQuery))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestQueryResults(t *testing.T) {
	columns := []string{"id", "target", "module", "category", "severity", "data", "created_at"}

	t.Run("filters narrow the query", func(t *testing.T) {
		st, mock := newMockStore(t)

		mock.ExpectQuery(`(?s)SELECT .+ FROM scan_results WHERE`).
			WithArgs("example.com", "nmap", defaultQueryLimit).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(1, "example.com", "nmap", "Network", "info",
					[]byte(`{"source":"ip","fields":{"port":"22"}}`), time.Now()))

		results, err := st.QueryResults(context.Background(), Filter{
			Target: "example.com",
			Module: "nmap",
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "nmap", results[0].Module)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no filters uses the default limit", func(t *testing.T) {
		st, mock := newMockStore(t)

		mock.ExpectQuery(`(?s)SELECT .+ FROM scan_results WHERE`).
			WithArgs(defaultQueryLimit).
			WillReturnRows(sqlmock.NewRows(columns))

		results, err := st.QueryResults(context.Background(), Filter{})
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSanitize(t *testing.T) {
	t.Run("connection-class postgres errors surface as connection failures", func(t *testing.T) {
		err := sanitize("query results", &pq.Error{Code: "08006"})
		assert.True(t, errors.IsCode(err, errors.CodeStoreConnection))
	})

	t.Run("other errors become query failures with the operation", func(t *testing.T) {
		err := sanitize("insert result", fmt.Errorf("syntax error at or near"))
		require.True(t, errors.IsCode(err, errors.CodeStoreQuery))
		assert.Contains(t, err.Error(), "insert result")
		assert.NotContains(t, err.Error(), "syntax error")
	})

	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, sanitize("noop", nil))
	})
}
