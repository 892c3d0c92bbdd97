package docstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arisezione/librosoci/internal/models"
)

// baseCategories is the built-in category set, in the display order used by
// the desktop app. Each maps 1:1 onto a subdirectory of the root.
var baseCategories = []string{
	"Verbali CD",
	"Bilanci",
	"Regolamenti",
	"Modulistica",
	"Documenti ARI",
	"Quote ARI",
	"Altro",
}

// FallbackCategory absorbs values outside the category set.
const FallbackCategory = "Altro"

// IndexFileName is the regenerated per-category listing. It is derived
// output, never an input to reconciliation.
const IndexFileName = "elenco_documenti.txt"

// MetadataFileName is the JSON metadata index at the root.
const MetadataFileName = "metadata.json"

// Categories returns the category set in display order.
func (s *Store) Categories() []string {
	out := make([]string, len(s.categories))
	copy(out, s.categories)
	return out
}

// NormalizeCategory maps value onto the closed category set. Empty values
// take the first category; unknown values fall back to FallbackCategory.
func (s *Store) NormalizeCategory(value string) string {
	candidate := strings.TrimSpace(value)
	if candidate == "" {
		return s.categories[0]
	}
	for _, c := range s.categories {
		if strings.EqualFold(c, candidate) {
			return c
		}
	}
	return FallbackCategory
}

// Slug returns the directory name for a category label.
func Slug(label string) string {
	slug := strings.Join(strings.Fields(strings.ToLower(label)), "_")
	if slug == "" {
		return "misc"
	}
	return slug
}

// CategoryDir returns the absolute directory for a category, creating it
// if needed.
func (s *Store) CategoryDir(category string) (string, error) {
	dir := filepath.Join(s.root, Slug(s.NormalizeCategory(category)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("docstore: create category dir: %w", err)
	}
	return dir, nil
}

// CategoryFromDir maps a directory name back onto its category label.
func (s *Store) CategoryFromDir(dir string) string {
	slug := strings.ToLower(filepath.Base(dir))
	for _, c := range s.categories {
		if Slug(c) == slug {
			return c
		}
	}
	return s.categories[0]
}

// EnsureStructure creates the root and every category directory.
func (s *Store) EnsureStructure() error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("docstore: create root: %w", err)
	}
	for _, c := range s.categories {
		if _, err := s.CategoryDir(c); err != nil {
			return err
		}
	}
	return nil
}

// IsIndexArtifact reports whether name is one of the files the store itself
// maintains inside the tree, which reconciliation must skip.
func IsIndexArtifact(name string) bool {
	return name == IndexFileName || name == MetadataFileName
}

// WriteCategoryIndex regenerates the elenco_documenti.txt listing for one
// category from the given documents. Entries from other categories are
// ignored so callers can pass an unfiltered list.
func (s *Store) WriteCategoryIndex(category string, docs []models.StoredDocument) error {
	normalized := s.NormalizeCategory(category)
	dir, err := s.CategoryDir(normalized)
	if err != nil {
		return err
	}

	lines := []string{
		fmt.Sprintf("Elenco documenti sezione - categoria '%s'", normalized),
		"Nome file\tDescrizione\tCategoria\tPercorso relativo",
	}
	for _, doc := range docs {
		if doc.Category != normalized || doc.DeletedAt != "" {
			continue
		}
		abs := s.Resolve(doc.RelativePath)
		if abs == "" {
			continue
		}
		if info, err := os.Stat(abs); err != nil || info.IsDir() {
			continue
		}
		rel := doc.RelativePath
		if r, err := s.Rel(abs); err == nil {
			rel = r
		}
		name := doc.OriginalName
		if name == "" {
			name = doc.StoredName
		}
		if name == "" {
			name = filepath.Base(abs)
		}
		lines = append(lines, fmt.Sprintf("%s\t%s\t%s\t%s", name, doc.Description, normalized, rel))
	}
	if len(lines) == 2 {
		lines = append(lines, "(Nessun documento presente)")
	}

	path := filepath.Join(dir, IndexFileName)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("docstore: write category index: %w", err)
	}
	return nil
}
