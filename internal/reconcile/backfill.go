package reconcile

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/arisezione/librosoci/internal/docstore"
	"github.com/arisezione/librosoci/internal/models"
)

// Backfill seeds the registry from installations that predate it: first
// from the metadata file, then from files found directly in the category
// directories. Rows that already exist are left alone and individual
// failures are logged, never fatal.
func (r *Reconciler) Backfill(ctx context.Context) error {
	if err := r.store.EnsureStructure(); err != nil {
		return err
	}

	insert := func(doc models.StoredDocument) {
		if doc.Token == "" || doc.RelativePath == "" {
			return
		}
		if _, err := r.reg.GetByRelativePath(doc.RelativePath); err == nil {
			return
		}
		if err := r.reg.Insert(&doc); err != nil {
			r.logger.Debug("backfill: insert skipped",
				slog.String("path", doc.RelativePath),
				slog.String("error", err.Error()))
		}
	}

	meta, err := r.store.LoadMetadata()
	if err != nil {
		r.logger.Warn("backfill: metadata unreadable", slog.String("error", err.Error()))
	}
	for token, entry := range meta {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel := strings.TrimSpace(entry.RelativePath)
		if rel == "" {
			continue
		}
		abs := r.store.Resolve(rel)
		info, statErr := os.Stat(abs)
		if statErr != nil || !info.Mode().IsRegular() {
			continue
		}

		doc := models.StoredDocument{
			Token:        token,
			Category:     entry.Category,
			OriginalName: entry.OriginalName,
			StoredName:   entry.StoredName,
			Description:  entry.Description,
			RelativePath: rel,
			UploadedAt:   entry.UploadedAt,
		}
		if doc.Category == "" {
			doc.Category = r.store.CategoryFromDir(filepath.Dir(abs))
		}
		if doc.OriginalName == "" {
			doc.OriginalName = info.Name()
		}
		if doc.StoredName == "" {
			doc.StoredName = info.Name()
		}
		if doc.UploadedAt == "" {
			doc.UploadedAt = info.ModTime().Format(models.TimeLayout)
		}
		insert(doc)
	}

	for _, category := range r.store.Categories() {
		if err := ctx.Err(); err != nil {
			return err
		}
		dir, dirErr := r.store.CategoryDir(category)
		if dirErr != nil {
			continue
		}
		entries, readErr := os.ReadDir(dir)
		if readErr != nil {
			continue
		}
		for _, ent := range entries {
			if ent.IsDir() || !ent.Type().IsRegular() || docstore.IsIndexArtifact(ent.Name()) {
				continue
			}
			rel, relErr := r.store.Rel(filepath.Join(dir, ent.Name()))
			if relErr != nil {
				continue
			}
			info, infoErr := ent.Info()
			if infoErr != nil {
				continue
			}
			insert(models.StoredDocument{
				Token:        r.guessToken(ent.Name()),
				Category:     category,
				OriginalName: ent.Name(),
				StoredName:   ent.Name(),
				RelativePath: rel,
				UploadedAt:   info.ModTime().Format(models.TimeLayout),
			})
		}
	}
	return nil
}

// guessToken derives a token for a legacy file that was archived before the
// registry existed. Long stems keep their leading characters as identity,
// short ones get a fresh random token.
func (r *Reconciler) guessToken(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	n := r.store.TokenLength()
	switch {
	case len(stem) >= n:
		return stem[:n]
	case len(stem) >= docstore.DefaultTokenLength:
		return stem[:docstore.DefaultTokenLength]
	}
	tok, err := docstore.NewToken(n)
	if err != nil {
		return ""
	}
	return tok
}
