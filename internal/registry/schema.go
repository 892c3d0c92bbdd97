// Package registry provides the SQLite-backed mirror of section document
// metadata, with soft-delete semantics for joins and reporting.
package registry

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS section_documents (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	hash_id       TEXT NOT NULL UNIQUE,
	category      TEXT NOT NULL DEFAULT '',
	original_name TEXT NOT NULL DEFAULT '',
	stored_name   TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	relative_path TEXT NOT NULL,
	uploaded_at   TEXT NOT NULL DEFAULT '',
	deleted_at    TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_section_documents_relative_path
	ON section_documents(relative_path) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_section_documents_category ON section_documents(category);
CREATE INDEX IF NOT EXISTS idx_section_documents_uploaded ON section_documents(uploaded_at);
`

// Registry wraps a sql.DB with document-registry operations.
type Registry struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) the SQLite database at path and applies the
// schema. The pool keeps no idle connections, so every statement runs on
// a short-lived connection and the file is free for backup and restore
// between statements. The default rollback journal is kept (no WAL) so a
// snapshot is always a single file.
func Open(path string) (*Registry, error) {
	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("registry: open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(0)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: apply schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: init fts: %w", err)
	}
	return &Registry{conn: conn, path: path}, nil
}

// Path returns the database file path this registry was opened on.
func (r *Registry) Path() string { return r.path }

// Ping verifies the database file is reachable.
func (r *Registry) Ping() error { return r.conn.Ping() }

// Close closes the underlying database handle.
func (r *Registry) Close() error {
	return r.conn.Close()
}
