// Package db records run history: one row per run, the node transitions of
// each run, and every verification. SQLite is the default store; Postgres is
// supported for shared history.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect identifies the SQL flavour behind a DB.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB wraps the database connection.
type DB struct {
	conn    *sql.DB
	dialect Dialect
	dsn     string
}

// Open opens or creates the SQLite database at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &DB{conn: conn, dialect: DialectSQLite, dsn: path}, nil
}

// OpenPostgres connects to Postgres through the pgx database/sql driver.
func OpenPostgres(dsn string) (*DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{conn: conn, dialect: DialectPostgres, dsn: dsn}, nil
}

// OpenDriver opens the history store named by a config driver. A relative
// SQLite path is resolved against projectRoot and its directory created.
func OpenDriver(driver, dsn, projectRoot string) (*DB, error) {
	switch driver {
	case "", string(DialectSQLite):
		path := dsn
		if path != ":memory:" && !filepath.IsAbs(path) {
			path = filepath.Join(projectRoot, filepath.FromSlash(path))
		}
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create directory for %s: %w", path, err)
			}
		}
		return Open(path)
	case string(DialectPostgres):
		return OpenPostgres(dsn)
	}
	return nil, fmt.Errorf("unsupported history driver %q", driver)
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for advanced queries.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Dialect reports which SQL flavour is in use.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// rebind rewrites ? placeholders to $n for Postgres.
// Rebind rewrites ? placeholders for the connection's dialect.
func (d *DB) Rebind(query string) string {
	return d.rebind(query)
}

func (d *DB) rebind(query string) string {
	if d.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d *DB) exec(query string, args ...any) (sql.Result, error) {
	return d.conn.Exec(d.rebind(query), args...)
}

func (d *DB) query(query string, args ...any) (*sql.Rows, error) {
	return d.conn.Query(d.rebind(query), args...)
}

func (d *DB) queryRow(query string, args ...any) *sql.Row {
	return d.conn.QueryRow(d.rebind(query), args...)
}

// schemaV1 lists the statements of the first schema version. {{id}} is the
// dialect's auto-increment primary key type.
var schemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS runs (
    id             TEXT PRIMARY KEY,
    project_root   TEXT NOT NULL,
    description    TEXT NOT NULL,
    task_kind      TEXT,
    status         TEXT NOT NULL CHECK(status IN ('running','done','escalated','aborted')),
    iterations     INTEGER NOT NULL DEFAULT 0,
    max_iterations INTEGER NOT NULL,
    summary        TEXT,
    started_at     TEXT NOT NULL,
    finished_at    TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS pipeline_events (
    id          {{id}},
    run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    event       TEXT NOT NULL,
    node        TEXT,
    iteration   INTEGER,
    detail      TEXT,
    timestamp   TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_pipeline_run ON pipeline_events(run_id, id)`,
	`CREATE TABLE IF NOT EXISTS verify_runs (
    id          {{id}},
    run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    iteration   INTEGER NOT NULL,
    command     TEXT NOT NULL,
    succeeded   BOOLEAN NOT NULL,
    environment BOOLEAN NOT NULL DEFAULT FALSE,
    exit_code   INTEGER,
    duration_ms INTEGER,
    summary     TEXT,
    detail      TEXT,
    timestamp   TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_verify_run ON verify_runs(run_id, iteration)`,
}

func (d *DB) idType() string {
	if d.dialect == DialectPostgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// Migrate applies the database schema.
func (d *DB) Migrate() error {
	var count int
	err := d.queryRow("SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schemaV1 {
		if _, err := tx.Exec(strings.ReplaceAll(stmt, "{{id}}", d.idType())); err != nil {
			return fmt.Errorf("apply schema v1: %w", err)
		}
	}
	if _, err := tx.Exec(d.rebind("INSERT INTO schema_version (version, applied_at) VALUES (1, ?)"), now()); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Reset drops all tables and re-applies the schema.
func (d *DB) Reset() error {
	tables := []string{"verify_runs", "pipeline_events", "runs", "schema_version"}
	for _, t := range tables {
		if _, err := d.conn.Exec("DROP TABLE IF EXISTS " + t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return d.Migrate()
}
