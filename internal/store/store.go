// Package store persists reconciled scan results in PostgreSQL. It owns the
// connection pool, the schema migration, and the result row model. Rows are
// append-only within a run; a new run for the same target replaces the
// previous rows transactionally.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/secwebscan/secwebscan/internal/errors"
	"github.com/secwebscan/secwebscan/internal/logging"
)

const (
	defaultPostgresPort    = 5432
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

// Config holds database configuration.
type Config struct {
	Host            string        `yaml:"host" json:"host" validate:"required"`
	Port            int           `yaml:"port" json:"port" validate:"min=1,max=65535"`
	Database        string        `yaml:"database" json:"database" validate:"required"`
	Username        string        `yaml:"username" json:"username" validate:"required"`
	Password        string        `yaml:"password" json:"password"`
	SSLMode         string        `yaml:"ssl_mode" json:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// DefaultConfig returns the default database configuration. Database name
// and username must be explicitly configured.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            defaultPostgresPort,
		SSLMode:         "disable",
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
		ConnMaxIdleTime: defaultConnMaxIdleTime,
	}
}

// Store wraps sqlx.DB with result persistence operations.
type Store struct {
	*sqlx.DB
}

// Connect establishes a PostgreSQL connection and configures the pool.
// Returned errors never carry the DSN, so credentials cannot leak into logs.
func Connect(ctx context.Context, cfg *Config) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database,
		cfg.Username, cfg.Password, cfg.SSLMode,
	)

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.ErrStoreConnection(err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	logging.InfoStore("Connected to database",
		"host", cfg.Host, "database", cfg.Database)

	return &Store{DB: db}, nil
}

// NewFromDB wraps an existing connection. Used by tests running against a
// mock driver.
func NewFromDB(db *sqlx.DB) *Store {
	return &Store{DB: db}
}

// schema is the result table DDL. Migrations run on every startup and are
// idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS scan_results (
		id         BIGSERIAL PRIMARY KEY,
		target     TEXT        NOT NULL,
		module     TEXT        NOT NULL,
		category   TEXT        NOT NULL,
		severity   TEXT        NOT NULL,
		data       JSONB       NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scan_results_target ON scan_results (target)`,
	`CREATE INDEX IF NOT EXISTS idx_scan_results_module ON scan_results (module)`,
	`CREATE INDEX IF NOT EXISTS idx_scan_results_severity ON scan_results (severity)`,
}

// Migrate applies the schema.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.ExecContext(ctx, stmt); err != nil {
			return sanitize("migrate", err)
		}
	}
	logging.InfoStore("Schema migration complete")
	return nil
}

// Result is one persisted finding row. Data carries the finding's attribute
// map plus its source label as JSONB; internal/collect owns the conversion
// between rows and canonical entries.
type Result struct {
	ID        int64          `db:"id" json:"id"`
	Target    string         `db:"target" json:"target"`
	Module    string         `db:"module" json:"module"`
	Category  string         `db:"category" json:"category"`
	Severity  string         `db:"severity" json:"severity"`
	Data      types.JSONText `db:"data" json:"data"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

const insertResult = `
	INSERT INTO scan_results (target, module, category, severity, data)
	VALUES (:target, :module, :category, :severity, :data)`

// ReplaceResults atomically swaps the stored rows for a target: previous
// rows are purged and the new set inserted in one transaction, so readers
// never observe a half-written run.
func (s *Store) ReplaceResults(ctx context.Context, target string, results []Result) error {
	tx, err := s.BeginTxx(ctx, nil)
	if err != nil {
		return sanitize("replace results", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM scan_results WHERE target = $1`, target); err != nil {
		return sanitize("purge results", err)
	}

	for i := range results {
		if _, err := tx.NamedExecContext(ctx, insertResult, &results[i]); err != nil {
			return sanitize("insert result", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return sanitize("commit results", err)
	}

	logging.InfoStore("Results stored",
		"target", target, "rows", len(results))
	return nil
}

// Filter narrows a result query. Zero values match everything.
type Filter struct {
	Target   string
	Module   string
	Category string
	Severity string
	Limit    int
}

const defaultQueryLimit = 500

// QueryResults returns stored rows matching the filter, newest first.
func (s *Store) QueryResults(ctx context.Context, f Filter) ([]Result, error) {
	query := `SELECT id, target, module, category, severity, data, created_at
		FROM scan_results WHERE 1=1`
	var args []interface{}

	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		query += fmt.Sprintf(" AND %s = $%d", column, len(args))
	}
	add("target", f.Target)
	add("module", f.Module)
	add("category", f.Category)
	add("severity", f.Severity)

	limit := f.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	var results []Result
	if err := s.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, sanitize("query results", err)
	}
	return results, nil
}

// Ping verifies connectivity for health checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.PingContext(ctx); err != nil {
		return errors.ErrStoreConnection(err)
	}
	return nil
}

// sanitize classifies a database error without exposing SQL internals.
// Connection-class PostgreSQL errors become connection failures; everything
// else is a query failure carrying only the operation name.
func sanitize(operation string, err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return errors.ErrStoreQuery(operation, err)
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "57P01", "08000", "08003", "08006":
			return errors.ErrStoreConnection(err)
		}
	}
	return errors.ErrStoreQuery(operation, err)
}
