package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for arbor's elaboration tables.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
-- Run tables

CREATE TABLE IF NOT EXISTS runs (
  id               INTEGER PRIMARY KEY,
  design_hash      TEXT NOT NULL,
  evaluator        TEXT,
  tops             TEXT,
  started_at       TIMESTAMP,
  instance_count   INTEGER DEFAULT 0,
  diagnostic_count INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  run_id          INTEGER NOT NULL REFERENCES runs(id),
  path            TEXT NOT NULL,
  format          TEXT NOT NULL,
  hash            TEXT,
  node_count      INTEGER,
  UNIQUE (run_id, path)
);

-- Tree tables

CREATE TABLE IF NOT EXISTS instances (
  id              INTEGER PRIMARY KEY,
  run_id          INTEGER NOT NULL REFERENCES runs(id),
  parent_id       INTEGER REFERENCES instances(id),
  name            TEXT NOT NULL,
  path            TEXT NOT NULL,
  def_name        TEXT,
  kind            TEXT NOT NULL,
  depth           INTEGER NOT NULL,
  ordinal         INTEGER NOT NULL,
  file_path       TEXT,
  line            INTEGER,
  col             INTEGER,
  config          TEXT,
  bound_from      TEXT
);

CREATE TABLE IF NOT EXISTS parameters (
  id              INTEGER PRIMARY KEY,
  instance_id     INTEGER NOT NULL REFERENCES instances(id),
  name            TEXT NOT NULL,
  source          TEXT NOT NULL,
  value           TEXT,
  expr            TEXT,
  evaluated       BOOLEAN DEFAULT FALSE,
  is_type         BOOLEAN DEFAULT FALSE,
  overridden      BOOLEAN DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS nets (
  id              INTEGER PRIMARY KEY,
  instance_id     INTEGER NOT NULL REFERENCES instances(id),
  name            TEXT NOT NULL,
  net_type        TEXT,
  implicit        BOOLEAN DEFAULT FALSE,
  is_array        BOOLEAN DEFAULT FALSE,
  line            INTEGER,
  col             INTEGER
);

CREATE TABLE IF NOT EXISTS variables (
  id              INTEGER PRIMARY KEY,
  instance_id     INTEGER NOT NULL REFERENCES instances(id),
  name            TEXT NOT NULL,
  type            TEXT,
  is_array        BOOLEAN DEFAULT FALSE,
  line            INTEGER,
  col             INTEGER
);

CREATE TABLE IF NOT EXISTS ports (
  id              INTEGER PRIMARY KEY,
  instance_id     INTEGER NOT NULL REFERENCES instances(id),
  name            TEXT NOT NULL,
  direction       TEXT,
  ordinal         INTEGER NOT NULL,
  high_expr       TEXT,
  low_net_id      INTEGER REFERENCES nets(id),
  unconnected     BOOLEAN DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS references_ (
  id              INTEGER PRIMARY KEY,
  instance_id     INTEGER NOT NULL REFERENCES instances(id),
  name            TEXT NOT NULL,
  file_path       TEXT,
  line            INTEGER,
  col             INTEGER,
  target_kind     TEXT,
  target_name     TEXT,
  target_scope    TEXT,
  target_net_id   INTEGER REFERENCES nets(id),
  target_variable_id INTEGER REFERENCES variables(id),
  as_parameter    BOOLEAN DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS port_connections (
  id              INTEGER PRIMARY KEY,
  port_id         INTEGER NOT NULL REFERENCES ports(id),
  reference_id    INTEGER NOT NULL REFERENCES references_(id)
);

CREATE TABLE IF NOT EXISTS package_references (
  id              INTEGER PRIMARY KEY,
  run_id          INTEGER NOT NULL REFERENCES runs(id),
  package         TEXT NOT NULL,
  name            TEXT NOT NULL,
  file_path       TEXT,
  line            INTEGER,
  col             INTEGER,
  target_kind     TEXT,
  target_name     TEXT,
  target_scope    TEXT,
  as_parameter    BOOLEAN DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS diagnostics (
  id              INTEGER PRIMARY KEY,
  run_id          INTEGER NOT NULL REFERENCES runs(id),
  kind            TEXT NOT NULL,
  category        TEXT NOT NULL,
  severity        TEXT NOT NULL,
  message         TEXT,
  file_path       TEXT,
  line            INTEGER,
  col             INTEGER,
  secondary       TEXT
);

-- Indexes

CREATE INDEX IF NOT EXISTS idx_files_run ON files(run_id);
CREATE INDEX IF NOT EXISTS idx_instances_run ON instances(run_id);
CREATE INDEX IF NOT EXISTS idx_package_references_run ON package_references(run_id, package);
CREATE INDEX IF NOT EXISTS idx_instances_parent ON instances(parent_id);
CREATE INDEX IF NOT EXISTS idx_instances_path ON instances(run_id, path);
CREATE INDEX IF NOT EXISTS idx_instances_def ON instances(run_id, def_name);
CREATE INDEX IF NOT EXISTS idx_parameters_instance ON parameters(instance_id);
CREATE INDEX IF NOT EXISTS idx_nets_instance ON nets(instance_id);
CREATE INDEX IF NOT EXISTS idx_variables_instance ON variables(instance_id);
CREATE INDEX IF NOT EXISTS idx_ports_instance ON ports(instance_id);
CREATE INDEX IF NOT EXISTS idx_ports_low_net ON ports(low_net_id);
CREATE INDEX IF NOT EXISTS idx_references_instance ON references_(instance_id);
CREATE INDEX IF NOT EXISTS idx_references_name ON references_(name);
CREATE INDEX IF NOT EXISTS idx_references_net ON references_(target_net_id);
CREATE INDEX IF NOT EXISTS idx_port_connections_port ON port_connections(port_id);
CREATE INDEX IF NOT EXISTS idx_port_connections_ref ON port_connections(reference_id);
CREATE INDEX IF NOT EXISTS idx_diagnostics_run ON diagnostics(run_id);
CREATE INDEX IF NOT EXISTS idx_diagnostics_kind ON diagnostics(kind);
`

// DeleteRun transactionally removes a run and everything persisted under
// it. Deletes in reverse-dependency order to respect FK constraints.
func (s *Store) DeleteRun(runID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	const byInstance = "instance_id IN (SELECT id FROM instances WHERE run_id = ?)"
	for _, q := range []string{
		"DELETE FROM port_connections WHERE port_id IN (SELECT id FROM ports WHERE " + byInstance + ")",
		"DELETE FROM references_ WHERE " + byInstance,
		"DELETE FROM ports WHERE " + byInstance,
		"DELETE FROM nets WHERE " + byInstance,
		"DELETE FROM variables WHERE " + byInstance,
		"DELETE FROM parameters WHERE " + byInstance,
	} {
		if _, err := tx.Exec(q, runID); err != nil {
			return fmt.Errorf("delete instance data: %w", err)
		}
	}

	// Children before parents: parent_id references instances(id).
	if _, err := tx.Exec("UPDATE instances SET parent_id = NULL WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("detach instances: %w", err)
	}
	for _, q := range []string{
		"DELETE FROM instances WHERE run_id = ?",
		"DELETE FROM diagnostics WHERE run_id = ?",
		"DELETE FROM package_references WHERE run_id = ?",
		"DELETE FROM files WHERE run_id = ?",
		"DELETE FROM runs WHERE id = ?",
	} {
		if _, err := tx.Exec(q, runID); err != nil {
			return fmt.Errorf("delete run data: %w", err)
		}
	}
	return tx.Commit()
}

// PruneRuns deletes every run except the newest keep.
func (s *Store) PruneRuns(keep int) error {
	rows, err := s.db.Query("SELECT id FROM runs ORDER BY id DESC LIMIT -1 OFFSET ?", keep)
	if err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}
	for _, id := range ids {
		if err := s.DeleteRun(id); err != nil {
			return fmt.Errorf("prune run %d: %w", id, err)
		}
	}
	return nil
}
