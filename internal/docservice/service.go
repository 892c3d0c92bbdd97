// Package docservice coordinates the document store, the SQL registry, and
// the backup engines behind the user-level operations: archive a document,
// list and edit the catalog, delete, reconcile, back up and restore.
package docservice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arisezione/librosoci/internal/apperr"
	"github.com/arisezione/librosoci/internal/backup"
	"github.com/arisezione/librosoci/internal/docstore"
	"github.com/arisezione/librosoci/internal/integrity"
	"github.com/arisezione/librosoci/internal/models"
	"github.com/arisezione/librosoci/internal/reconcile"
	"github.com/arisezione/librosoci/internal/registry"
)

// EventFunc is called after a successful mutation. kind is one of
// "created", "updated", "deleted", "backup", "restored".
type EventFunc func(kind, ref string)

// Deps are the collaborators a Service needs.
type Deps struct {
	Store      *docstore.Store
	Registry   *registry.Registry
	Backups    *backup.Engine
	Reconciler *reconcile.Reconciler
	DBPath     string
	DataDir    string
	Logger     *slog.Logger
}

// Service exposes the application-level document and maintenance operations.
type Service struct {
	store   *docstore.Store
	reg     *registry.Registry
	engine  *backup.Engine
	rec     *reconcile.Reconciler
	dbPath  string
	dataDir string
	logger  *slog.Logger
	notify  EventFunc
}

func NewService(d Deps) *Service {
	return &Service{
		store:   d.Store,
		reg:     d.Registry,
		engine:  d.Backups,
		rec:     d.Reconciler,
		dbPath:  d.DBPath,
		dataDir: d.DataDir,
		logger:  d.Logger.With(slog.String("component", "docservice")),
	}
}

// OnEvent registers a callback invoked after successful mutations. Pass nil
// to disable.
func (s *Service) OnEvent(cb EventFunc) { s.notify = cb }

func (s *Service) emit(kind, ref string) {
	if s.notify != nil {
		s.notify(kind, ref)
	}
}

// AddRequest describes a document to bring under management.
type AddRequest struct {
	// SourcePath is the file to copy into the store.
	SourcePath string
	// OriginalName is the user-facing name to record; defaults to the base
	// name of SourcePath.
	OriginalName string
	Category     string
	Description  string
}

// AddDocument copies the source file into the category directory under a
// fresh token name and records it in the metadata file and the registry.
// If the registry insert fails, the copied file and the metadata entry are
// removed again so no half-registered document remains.
func (s *Service) AddDocument(_ context.Context, req AddRequest) (models.StoredDocument, error) {
	category := s.store.NormalizeCategory(req.Category)
	dir, err := s.store.CategoryDir(category)
	if err != nil {
		return models.StoredDocument{}, err
	}

	abs, storedName, err := s.store.Archive(req.SourcePath, dir)
	if err != nil {
		return models.StoredDocument{}, err
	}
	rel, err := s.store.Rel(abs)
	if err != nil {
		_ = os.Remove(abs)
		return models.StoredDocument{}, err
	}

	originalName := strings.TrimSpace(req.OriginalName)
	if originalName == "" {
		originalName = filepath.Base(req.SourcePath)
	}
	doc := models.StoredDocument{
		Token:        strings.TrimSuffix(storedName, filepath.Ext(storedName)),
		Category:     category,
		OriginalName: originalName,
		StoredName:   storedName,
		Description:  strings.TrimSpace(req.Description),
		RelativePath: rel,
		UploadedAt:   models.NowStamp(),
	}

	if err := s.saveMetadataEntry(doc); err != nil {
		s.logger.Warn("metadata save failed", slog.String("error", err.Error()))
	}
	if err := s.reg.Insert(&doc); err != nil {
		_ = os.Remove(abs)
		if metaErr := s.store.RemoveMetadataByPath(rel); metaErr != nil {
			s.logger.Warn("metadata rollback failed", slog.String("error", metaErr.Error()))
		}
		return models.StoredDocument{}, fmt.Errorf("register document: %w", err)
	}

	s.refreshCategoryIndex(category)
	s.logger.Info("document archived",
		slog.String("token", doc.Token),
		slog.String("category", category),
		slog.String("path", rel))
	s.emit("created", doc.Token)
	return doc, nil
}

// AddUpload stages an uploaded stream in a temporary file and archives it
// like AddDocument, recording filename as the original name.
func (s *Service) AddUpload(ctx context.Context, filename string, r io.Reader, category, description string) (models.StoredDocument, error) {
	tmp, err := os.CreateTemp("", "librosoci-upload-*"+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return models.StoredDocument{}, fmt.Errorf("stage upload: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return models.StoredDocument{}, fmt.Errorf("stage upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return models.StoredDocument{}, fmt.Errorf("stage upload: %w", err)
	}

	return s.AddDocument(ctx, AddRequest{
		SourcePath:   tmpPath,
		OriginalName: filepath.Base(filename),
		Category:     category,
		Description:  description,
	})
}

// ListDocuments returns every active document with its current filesystem
// state, sorted by category and stored name. Rows whose file is gone are
// kept and flagged missing. Legacy documents not yet in the registry are
// backfilled first, best effort.
func (s *Service) ListDocuments(ctx context.Context) ([]models.DocumentInfo, error) {
	if err := s.store.EnsureStructure(); err != nil {
		return nil, err
	}
	if err := s.rec.Backfill(ctx); err != nil {
		s.logger.Warn("backfill failed", slog.String("error", err.Error()))
	}

	rows, err := s.reg.List(false)
	if err != nil {
		return nil, err
	}
	infos := make([]models.DocumentInfo, 0, len(rows))
	for _, row := range rows {
		infos = append(infos, s.describe(row))
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Category != infos[j].Category {
			return infos[i].Category < infos[j].Category
		}
		return strings.ToLower(infos[i].StoredName) < strings.ToLower(infos[j].StoredName)
	})
	return infos, nil
}

// GetDocument returns one active document with its filesystem state.
func (s *Service) GetDocument(_ context.Context, token string) (models.DocumentInfo, error) {
	row, err := s.activeRow(token)
	if err != nil {
		return models.DocumentInfo{}, err
	}
	return s.describe(row), nil
}

// ResolvePath returns the absolute path of a document's file for download.
// The path must resolve under the storage root and exist.
func (s *Service) ResolvePath(_ context.Context, token string) (string, error) {
	row, err := s.activeRow(token)
	if err != nil {
		return "", err
	}
	abs := s.store.Resolve(row.RelativePath)
	if abs == "" || !s.store.Within(abs) {
		return "", fmt.Errorf("recorded path escapes storage root: %w", apperr.ErrNotFound)
	}
	info, statErr := os.Stat(abs)
	if statErr != nil || !info.Mode().IsRegular() {
		return "", apperr.ErrNotFound
	}
	return abs, nil
}

// UpdateDocument edits a document's category and description. A category
// change moves the physical file into the new category directory, keeping
// its stored name when free and numbering it otherwise.
func (s *Service) UpdateDocument(_ context.Context, token, category, description string) (models.StoredDocument, error) {
	row, err := s.activeRow(token)
	if err != nil {
		return models.StoredDocument{}, err
	}
	abs := s.store.Resolve(row.RelativePath)
	info, statErr := os.Stat(abs)
	if statErr != nil || !info.Mode().IsRegular() {
		return models.StoredDocument{}, apperr.ErrNotFound
	}

	normalized := s.store.NormalizeCategory(category)
	oldCategory := row.Category

	next := row
	next.Description = strings.TrimSpace(description)
	next.Category = normalized

	if normalized != oldCategory {
		targetDir, dirErr := s.store.CategoryDir(normalized)
		if dirErr != nil {
			return models.StoredDocument{}, dirErr
		}
		destName := row.StoredName
		if destName == "" {
			destName = filepath.Base(abs)
		}
		if _, lstatErr := os.Lstat(filepath.Join(targetDir, destName)); lstatErr == nil {
			ext := filepath.Ext(destName)
			destName = docstore.VariantName(targetDir, strings.TrimSuffix(destName, ext), ext)
		}
		dest := filepath.Join(targetDir, destName)
		if err := os.Rename(abs, dest); err != nil {
			return models.StoredDocument{}, fmt.Errorf("move document: %w", err)
		}
		rel, relErr := s.store.Rel(dest)
		if relErr != nil {
			return models.StoredDocument{}, relErr
		}
		next.StoredName = destName
		next.RelativePath = rel
	}

	if err := s.reg.Update(next); err != nil {
		return models.StoredDocument{}, err
	}
	if err := s.saveMetadataEntry(next); err != nil {
		s.logger.Warn("metadata save failed", slog.String("error", err.Error()))
	}

	s.refreshCategoryIndex(normalized)
	if normalized != oldCategory {
		s.refreshCategoryIndex(oldCategory)
	}
	s.logger.Info("document updated",
		slog.String("token", next.Token),
		slog.String("category", normalized))
	s.emit("updated", next.Token)
	return next, nil
}

// DeleteDocument soft-deletes the registry row, removes the file and its
// metadata entry, and refreshes the category listing. A file that is
// already gone does not fail the deletion.
func (s *Service) DeleteDocument(_ context.Context, token string) error {
	row, err := s.activeRow(token)
	if err != nil {
		return err
	}
	if err := s.reg.SoftDelete(row.ID); err != nil {
		s.logger.Warn("soft delete failed", slog.String("token", token), slog.String("error", err.Error()))
	}

	abs := s.store.Resolve(row.RelativePath)
	if abs != "" && s.store.Within(abs) {
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove document file: %w", err)
		}
	}
	if err := s.store.RemoveMetadataByPath(row.RelativePath); err != nil {
		s.logger.Warn("metadata removal failed", slog.String("error", err.Error()))
	}

	s.refreshCategoryIndex(row.Category)
	s.logger.Info("document deleted", slog.String("token", token))
	s.emit("deleted", token)
	return nil
}

// SearchDocuments matches name, description, and category case-insensitively.
func (s *Service) SearchDocuments(_ context.Context, query string, limit int) ([]models.StoredDocument, error) {
	return s.reg.Search(query, limit)
}

// RefreshIndexFiles regenerates the per-category text listings from the
// registry, backfilling legacy documents first.
func (s *Service) RefreshIndexFiles(ctx context.Context) error {
	if err := s.store.EnsureStructure(); err != nil {
		return err
	}
	if err := s.rec.Backfill(ctx); err != nil {
		s.logger.Warn("backfill failed", slog.String("error", err.Error()))
	}
	rows, err := s.reg.List(false)
	if err != nil {
		return err
	}
	for _, category := range s.store.Categories() {
		if err := s.store.WriteCategoryIndex(category, rows); err != nil {
			return err
		}
	}
	return nil
}

// Reconcile runs one registry/filesystem reconciliation pass.
func (s *Service) Reconcile(ctx context.Context, opts reconcile.Options) (reconcile.Report, error) {
	report, err := s.rec.Run(ctx, opts)
	if err != nil {
		return report, err
	}
	if !opts.DryRun && (report.Updated > 0 || report.Imported > 0) {
		if err := s.RefreshIndexFiles(ctx); err != nil {
			s.logger.Warn("index refresh after reconcile failed", slog.String("error", err.Error()))
		}
		s.emit("updated", "")
	}
	return report, nil
}

// Backup snapshots the database when its content changed since the last
// snapshot, or unconditionally with force.
func (s *Service) Backup(_ context.Context, force bool) (string, error) {
	path, err := s.engine.Backup(s.dbPath, force)
	if err != nil {
		return "", err
	}
	s.emit("backup", filepath.Base(path))
	return path, nil
}

// FullBackup produces a zip archive of the data directory plus a consistent
// database snapshot.
func (s *Service) FullBackup(_ context.Context) (string, error) {
	path, err := s.engine.FullBackup(s.dataDir, s.dbPath)
	if err != nil {
		return "", err
	}
	s.emit("backup", filepath.Base(path))
	return path, nil
}

// Restore replaces the live database with a validated backup file. On
// success the registry may have changed arbitrarily, so the category
// listings are refreshed.
func (s *Service) Restore(ctx context.Context, backupPath string, safety bool) (string, error) {
	msg, err := s.engine.Restore(backupPath, s.dbPath, safety)
	if err != nil {
		return msg, err
	}
	if err := s.RefreshIndexFiles(ctx); err != nil {
		s.logger.Warn("index refresh after restore failed", slog.String("error", err.Error()))
	}
	s.emit("restored", filepath.Base(backupPath))
	return msg, nil
}

// ListBackups returns the snapshots in the backup directory, newest first.
func (s *Service) ListBackups(_ context.Context) ([]models.Snapshot, error) {
	return s.engine.List()
}

// VerifyDatabase reports whether the live database passes its integrity
// check, with the failure reason when it does not.
func (s *Service) VerifyDatabase(_ context.Context) (bool, string) {
	return integrity.Check(s.dbPath)
}

// activeRow fetches a registry row by token and rejects deleted ones.
func (s *Service) activeRow(token string) (models.StoredDocument, error) {
	row, err := s.reg.GetByToken(strings.TrimSpace(token))
	if err != nil {
		return models.StoredDocument{}, err
	}
	if row.DeletedAt != "" {
		return models.StoredDocument{}, apperr.ErrNotFound
	}
	return row, nil
}

func (s *Service) describe(row models.StoredDocument) models.DocumentInfo {
	info := models.DocumentInfo{StoredDocument: row}
	abs := s.store.Resolve(row.RelativePath)
	st, err := os.Stat(abs)
	if err != nil || !st.Mode().IsRegular() {
		info.Missing = true
		return info
	}
	info.Size = st.Size()
	info.ModTime = st.ModTime().Format(models.TimeLayout)
	return info
}

// saveMetadataEntry upserts one document in the metadata file.
func (s *Service) saveMetadataEntry(doc models.StoredDocument) error {
	meta, err := s.store.LoadMetadata()
	if err != nil {
		return err
	}
	meta[doc.Token] = doc
	return s.store.SaveMetadata(meta)
}

// refreshCategoryIndex rewrites one category listing, best effort.
func (s *Service) refreshCategoryIndex(category string) {
	rows, err := s.reg.List(false)
	if err != nil {
		s.logger.Warn("index refresh failed", slog.String("category", category), slog.String("error", err.Error()))
		return
	}
	if err := s.store.WriteCategoryIndex(category, rows); err != nil {
		s.logger.Warn("index refresh failed", slog.String("category", category), slog.String("error", err.Error()))
	}
}
