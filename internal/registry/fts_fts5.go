//go:build sqlite_fts5

package registry

import (
	"database/sql"
	"strings"

	"github.com/arisezione/librosoci/internal/models"
)

// initFTS creates the FTS5 mirror of the searchable columns and rebuilds
// it from the live table. Rebuilding on every open keeps databases written
// by non-FTS builds, or swapped in by a restore, searchable.
func initFTS(conn *sql.DB) error {
	if _, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS section_documents_fts USING fts5(
			hash_id UNINDEXED,
			original_name,
			description,
			category,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`); err != nil {
		return err
	}
	if _, err := conn.Exec(`DELETE FROM section_documents_fts`); err != nil {
		return err
	}
	_, err := conn.Exec(`
		INSERT INTO section_documents_fts (hash_id, original_name, description, category)
		SELECT hash_id, original_name, description, category
		FROM section_documents
		WHERE deleted_at IS NULL
	`)
	return err
}

// ftsUpsert mirrors one row into the FTS table. Best effort: a failed
// mirror write only degrades search until the next open rebuilds it.
func ftsUpsert(conn *sql.DB, d models.StoredDocument) {
	_, _ = conn.Exec(`DELETE FROM section_documents_fts WHERE hash_id = ?`, d.Token)
	_, _ = conn.Exec(`
		INSERT INTO section_documents_fts (hash_id, original_name, description, category)
		VALUES (?, ?, ?, ?)
	`, d.Token, d.OriginalName, d.Description, d.Category)
}

// Search performs an FTS5 full-text search over name, description, and
// category. Soft-deleted rows are filtered by the join; their mirror rows
// disappear at the next open.
func (r *Registry) Search(query string, limit int) ([]models.StoredDocument, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.conn.Query(`
		SELECT s.id, s.hash_id, s.category, s.original_name, s.stored_name,
		       s.description, s.relative_path, s.uploaded_at, s.deleted_at
		FROM section_documents_fts f
		JOIN section_documents s ON s.hash_id = f.hash_id
		WHERE section_documents_fts MATCH ? AND s.deleted_at IS NULL
		ORDER BY rank
		LIMIT ?
	`, strings.TrimSpace(query), limit)
	if err != nil {
		return nil, wrapErr("search", err)
	}
	defer rows.Close()

	var out []models.StoredDocument
	for rows.Next() {
		d, err := scanDoc(rows)
		if err != nil {
			return nil, wrapErr("search scan", err)
		}
		out = append(out, d)
	}
	return out, wrapErr("search rows", rows.Err())
}
