//go:build !sqlite_fts5

package registry

import (
	"database/sql"
	"strings"

	"github.com/arisezione/librosoci/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; Search scans the live table with LIKE.
	return nil
}

func ftsUpsert(_ *sql.DB, _ models.StoredDocument) {}

// Search returns active rows whose name, description, or category matches
// the query (case-insensitive substring).
func (r *Registry) Search(query string, limit int) ([]models.StoredDocument, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	rows, err := r.conn.Query(`
		SELECT `+docColumns+` FROM section_documents
		WHERE deleted_at IS NULL AND (
			lower(original_name) LIKE ? OR lower(description) LIKE ? OR lower(category) LIKE ?
		)
		ORDER BY uploaded_at DESC, id DESC LIMIT ?
	`, pattern, pattern, pattern, limit)
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
