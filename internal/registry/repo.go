package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/arisezione/librosoci/internal/apperr"
	"github.com/arisezione/librosoci/internal/models"
)

// wrapErr maps driver failures onto the error taxonomy: a vanished table
// (e.g. the file was swapped by a restore from an old backup while this
// handle was open) becomes ErrSchemaNotReady, a unique-constraint hit
// becomes ErrConflict.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("registry: %s: %w", op, apperr.ErrSchemaNotReady)
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("registry: %s: %v: %w", op, err, apperr.ErrConflict)
	}
	return fmt.Errorf("registry: %s: %w", op, err)
}

const docColumns = `id, hash_id, category, original_name, stored_name, description, relative_path, uploaded_at, deleted_at`

func scanDoc(row interface{ Scan(...any) error }) (models.StoredDocument, error) {
	var d models.StoredDocument
	var deleted sql.NullString
	err := row.Scan(&d.ID, &d.Token, &d.Category, &d.OriginalName, &d.StoredName,
		&d.Description, &d.RelativePath, &d.UploadedAt, &deleted)
	if err != nil {
		return models.StoredDocument{}, err
	}
	if deleted.Valid {
		d.DeletedAt = deleted.String
	}
	return d, nil
}

// Insert stores a new active document row and fills in its ID.
func (r *Registry) Insert(d *models.StoredDocument) error {
	res, err := r.conn.Exec(`
		INSERT INTO section_documents
			(hash_id, category, original_name, stored_name, description, relative_path, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, d.Token, d.Category, d.OriginalName, d.StoredName, d.Description, d.RelativePath, d.UploadedAt)
	if err != nil {
		return wrapErr("insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapErr("insert id", err)
	}
	d.ID = id
	ftsUpsert(r.conn, *d)
	return nil
}

// GetByToken returns the row with the given token, deleted or not.
func (r *Registry) GetByToken(token string) (models.StoredDocument, error) {
	row := r.conn.QueryRow(`SELECT `+docColumns+` FROM section_documents WHERE hash_id = ?`, token)
	d, err := scanDoc(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StoredDocument{}, fmt.Errorf("registry: token %s: %w", token, apperr.ErrNotFound)
	}
	if err != nil {
		return models.StoredDocument{}, wrapErr("get by token", err)
	}
	return d, nil
}

// GetByRelativePath returns the newest active row recorded at rel.
func (r *Registry) GetByRelativePath(rel string) (models.StoredDocument, error) {
	row := r.conn.QueryRow(`
		SELECT `+docColumns+` FROM section_documents
		WHERE relative_path = ? AND deleted_at IS NULL
		ORDER BY id DESC LIMIT 1
	`, rel)
	d, err := scanDoc(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StoredDocument{}, fmt.Errorf("registry: path %s: %w", rel, apperr.ErrNotFound)
	}
	if err != nil {
		return models.StoredDocument{}, wrapErr("get by path", err)
	}
	return d, nil
}

// List returns document rows, newest first. Soft-deleted rows are included
// only when includeDeleted is set.
func (r *Registry) List(includeDeleted bool) ([]models.StoredDocument, error) {
	query := `SELECT ` + docColumns + ` FROM section_documents`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY uploaded_at DESC, id DESC`

	rows, err := r.conn.Query(query)
	if err != nil {
		return nil, wrapErr("list", err)
	}
	defer rows.Close()

	var out []models.StoredDocument
	for rows.Next() {
		d, err := scanDoc(rows)
		if err != nil {
			return nil, wrapErr("list scan", err)
		}
		out = append(out, d)
	}
	return out, wrapErr("list rows", rows.Err())
}

// Update rewrites every mutable field of the row identified by d.ID,
// the token included: the reconciler re-adopts a file's stem token when
// a row drifted, so hash_id is mutable here even though normal edits
// never change it.
func (r *Registry) Update(d models.StoredDocument) error {
	res, err := r.conn.Exec(`
		UPDATE section_documents
		SET hash_id = ?, category = ?, original_name = ?, stored_name = ?, description = ?,
			relative_path = ?, uploaded_at = ?
		WHERE id = ?
	`, d.Token, d.Category, d.OriginalName, d.StoredName, d.Description, d.RelativePath, d.UploadedAt, d.ID)
	if err != nil {
		return wrapErr("update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("update affected", err)
	}
	if n == 0 {
		return fmt.Errorf("registry: id %d: %w", d.ID, apperr.ErrNotFound)
	}
	ftsUpsert(r.conn, d)
	return nil
}

// SoftDelete stamps deleted_at on an active row. Deleting an already
// deleted row is a no-op reported as NotFound.
func (r *Registry) SoftDelete(id int64) error {
	res, err := r.conn.Exec(`
		UPDATE section_documents SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL
	`, models.NowStamp(), id)
	if err != nil {
		return wrapErr("soft delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("soft delete affected", err)
	}
	if n == 0 {
		return fmt.Errorf("registry: id %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// ActiveCount returns the number of non-deleted rows.
func (r *Registry) ActiveCount() (int, error) {
	var n int
	err := r.conn.QueryRow(`SELECT COUNT(*) FROM section_documents WHERE deleted_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, wrapErr("count", err)
	}
	return n, nil
}
