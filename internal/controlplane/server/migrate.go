package server

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func (s *Server) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`
CREATE TABLE IF NOT EXISTS templates (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  current_version INTEGER NOT NULL DEFAULT 1,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS template_versions (
  template_id TEXT NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
  version INTEGER NOT NULL,
  schema_json TEXT NOT NULL,
  comment TEXT,
  created_at TEXT NOT NULL,
  PRIMARY KEY (template_id, version)
);`,
		`
CREATE TABLE IF NOT EXISTS datasets (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  record_count INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS dataset_records (
  dataset_id TEXT NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
  idx INTEGER NOT NULL,
  data_json TEXT NOT NULL,
  PRIMARY KEY (dataset_id, idx)
);`,
		`
CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  job_id INTEGER,
  template_id TEXT NOT NULL,
  dataset_id TEXT,
  record_idx INTEGER NOT NULL DEFAULT 0,
  filename TEXT NOT NULL,
  path TEXT NOT NULL,
  pages INTEGER NOT NULL,
  bytes INTEGER NOT NULL,
  created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_job ON documents(job_id);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at);`,
		`
CREATE TABLE IF NOT EXISTS smtp_configs (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  host TEXT NOT NULL,
  port INTEGER NOT NULL,
  username TEXT NOT NULL DEFAULT '',
  password_enc TEXT NOT NULL DEFAULT '',
  from_addr TEXT NOT NULL,
  encryption TEXT NOT NULL DEFAULT 'starttls',
  updated_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS job_runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  job_name TEXT NOT NULL,
  template_id TEXT,
  dataset_id TEXT,
  started_at TEXT NOT NULL,
  finished_at TEXT,
  ok INTEGER,
  error TEXT,
  meta TEXT
);`,
		`CREATE INDEX IF NOT EXISTS idx_job_runs_started ON job_runs(started_at DESC);`,
		`
CREATE TABLE IF NOT EXISTS audit_log (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  action TEXT NOT NULL,
  entity TEXT NOT NULL,
  entity_id TEXT,
  detail TEXT,
  ts TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_ts ON audit_log(ts DESC);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// Older databases may predate the comment column.
	if err := s.ensureColumn(ctx, "template_versions", "comment", "TEXT"); err != nil {
		return err
	}
	return nil
}

func (s *Server) ensureColumn(ctx context.Context, table, column, typ string) error {
	ok, err := s.hasColumn(ctx, table, column)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s;`, table, column, typ))
	if err != nil {
		return fmt.Errorf("migrate add %s.%s: %w", table, column, err)
	}
	return nil
}

func (s *Server) hasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s);`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, typ string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
