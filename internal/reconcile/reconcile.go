// Package reconcile re-aligns the document registry with the files that are
// actually on disk. A pass walks every active registry row, locates its file
// (following moves and renames), rewrites stale rows, reports rows whose file
// is gone, and optionally imports untracked files it finds in the category
// directories.
package reconcile

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/arisezione/librosoci/internal/docstore"
	"github.com/arisezione/librosoci/internal/models"
	"github.com/arisezione/librosoci/internal/registry"
)

// Options selects the optional phases of a reconciliation pass.
type Options struct {
	// DryRun records every planned change in the report without touching
	// the registry.
	DryRun bool
	// ImportOrphans registers files found in category directories that no
	// active row points at.
	ImportOrphans bool
	// Backfill first seeds the registry from the metadata file and the
	// disk tree, for installations that predate the registry.
	Backfill bool
	// PruneMissing soft-deletes rows whose recorded path is absolute and
	// outside the store root. Rows pointing inside the root are never
	// pruned, only reported, so a temporarily unmounted file survives.
	PruneMissing bool
}

// FieldSet is the subset of registry columns a pass may rewrite. The
// original name of a document is user-facing and never touched.
type FieldSet struct {
	Token        string `json:"token"`
	StoredName   string `json:"stored_name"`
	RelativePath string `json:"relative_path"`
	Category     string `json:"category"`
}

// Change records a row rewrite, or a planned one in dry-run mode.
type Change struct {
	ID   int64    `json:"id"`
	From FieldSet `json:"from"`
	To   FieldSet `json:"to"`
}

// MissingEntry records a row whose file could not be located.
type MissingEntry struct {
	ID           int64  `json:"id"`
	Token        string `json:"token"`
	StoredName   string `json:"stored_name"`
	RelativePath string `json:"relative_path"`
}

// ImportedEntry records a file registered by the orphan-import phase.
type ImportedEntry struct {
	RelativePath string `json:"relative_path"`
	StoredName   string `json:"stored_name"`
}

// Details carries the per-row outcome lists backing the report counters.
type Details struct {
	Updated  []Change        `json:"updated"`
	Missing  []MissingEntry  `json:"missing"`
	Imported []ImportedEntry `json:"imported"`
	Errors   []string        `json:"errors"`
}

// Report summarizes one reconciliation pass. Counters always equal the
// length of the matching Details list.
type Report struct {
	Root     string  `json:"root"`
	DryRun   bool    `json:"dry_run"`
	Scanned  int     `json:"scanned"`
	Updated  int     `json:"updated"`
	Missing  int     `json:"missing"`
	Imported int     `json:"imported"`
	Details  Details `json:"details"`
}

// Reconciler binds a document store to the registry it must mirror.
type Reconciler struct {
	store  *docstore.Store
	reg    *registry.Registry
	logger *slog.Logger
}

func New(store *docstore.Store, reg *registry.Registry, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		reg:    reg,
		logger: logger.With(slog.String("component", "reconcile")),
	}
}

// Run performs one reconciliation pass. Per-row failures are collected in
// the report's error list; only structural failures (unreadable registry,
// uncreatable root) abort the pass.
func (r *Reconciler) Run(ctx context.Context, opts Options) (Report, error) {
	report := Report{
		Root:   r.store.Root(),
		DryRun: opts.DryRun,
		Details: Details{
			Updated:  []Change{},
			Missing:  []MissingEntry{},
			Imported: []ImportedEntry{},
			Errors:   []string{},
		},
	}

	if err := r.store.EnsureStructure(); err != nil {
		return report, err
	}
	if opts.Backfill && !opts.DryRun {
		if err := r.Backfill(ctx); err != nil {
			report.Details.Errors = append(report.Details.Errors, fmt.Sprintf("backfill: %v", err))
		}
	}

	rows, err := r.reg.List(false)
	if err != nil {
		return report, err
	}
	report.Scanned = len(rows)

	// Tokens already in use, to keep rewrites from stealing one.
	taken := make(map[string]bool, len(rows))
	// Relative paths owned by a row, so orphan import skips them. Paths a
	// row is relinked to during this pass count as owned too.
	owned := make(map[string]bool, len(rows))
	for _, row := range rows {
		if tok := foldToken(row.Token); tok != "" {
			taken[tok] = true
		}
		if row.RelativePath != "" {
			owned[row.RelativePath] = true
		}
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		found := r.locate(row)
		if found == "" {
			if opts.PruneMissing && !opts.DryRun && r.recordedOutsideRoot(row) {
				if err := r.reg.SoftDelete(row.ID); err != nil {
					report.Details.Errors = append(report.Details.Errors,
						fmt.Sprintf("prune_missing id=%d: %v", row.ID, err))
				}
			}
			report.Details.Missing = append(report.Details.Missing, MissingEntry{
				ID:           row.ID,
				Token:        row.Token,
				StoredName:   row.StoredName,
				RelativePath: row.RelativePath,
			})
			continue
		}

		rel, relErr := r.store.Rel(found)
		if relErr != nil {
			report.Details.Errors = append(report.Details.Errors,
				fmt.Sprintf("id=%d: %v", row.ID, relErr))
			continue
		}
		owned[rel] = true

		next, changed := r.plan(row, found, rel, taken)
		if !changed {
			continue
		}
		report.Details.Updated = append(report.Details.Updated, Change{
			ID:   row.ID,
			From: fieldsOf(row),
			To:   fieldsOf(next),
		})
		if opts.DryRun {
			continue
		}
		if err := r.reg.Update(next); err != nil {
			report.Details.Errors = append(report.Details.Errors,
				fmt.Sprintf("id=%d: %v", row.ID, err))
			continue
		}
		if tok := foldToken(next.Token); tok != "" {
			taken[tok] = true
		}
		r.logger.Debug("row relinked",
			slog.Int64("id", row.ID),
			slog.String("path", rel))
	}

	if opts.ImportOrphans {
		r.importOrphans(ctx, &report, owned, opts.DryRun)
	}

	report.Updated = len(report.Details.Updated)
	report.Missing = len(report.Details.Missing)
	report.Imported = len(report.Details.Imported)

	r.logger.Info("pass finished",
		slog.Bool("dry_run", report.DryRun),
		slog.Int("scanned", report.Scanned),
		slog.Int("updated", report.Updated),
		slog.Int("missing", report.Missing),
		slog.Int("imported", report.Imported),
		slog.Int("errors", len(report.Details.Errors)))
	return report, nil
}

// locate finds the file backing a row. It tries the recorded path first,
// then the category directory with the stored name, and finally a whole-tree
// search by stored name or token. The tree search only counts when exactly
// one file matches.
func (r *Reconciler) locate(row models.StoredDocument) string {
	if recorded := strings.TrimSpace(row.RelativePath); recorded != "" {
		cand := r.store.Resolve(recorded)
		if isRegularFile(cand) && r.store.Within(cand) {
			return cand
		}
	}

	if row.StoredName != "" && row.Category != "" {
		if dir, err := r.store.CategoryDir(row.Category); err == nil {
			cand := filepath.Join(dir, row.StoredName)
			if isRegularFile(cand) {
				return cand
			}
		}
	}

	var targets []string
	if row.StoredName != "" {
		targets = append(targets, strings.ToLower(row.StoredName))
	}
	if tok := foldToken(row.Token); tok != "" {
		targets = append(targets, tok)
	}
	if len(targets) == 0 {
		return ""
	}

	var matches []string
	_ = filepath.WalkDir(r.store.Root(), func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := d.Name()
		if docstore.IsIndexArtifact(name) {
			return nil
		}
		nameL := strings.ToLower(name)
		stemL := strings.TrimSuffix(nameL, filepath.Ext(nameL))
		for _, t := range targets {
			if nameL == t || stemL == t {
				matches = append(matches, path)
				break
			}
		}
		if len(matches) > 1 {
			return fs.SkipAll
		}
		return nil
	})
	if len(matches) == 1 {
		return matches[0]
	}
	return ""
}

// plan computes the row as it should look for a file found at rel. The
// token is refreshed only when the file stem is itself token-shaped and,
// unless it already belongs to this row, not in use by another row.
func (r *Reconciler) plan(row models.StoredDocument, found, rel string, taken map[string]bool) (models.StoredDocument, bool) {
	base := filepath.Base(found)
	inferred := r.store.CategoryFromDir(filepath.Dir(found))

	next := row
	next.StoredName = base
	next.RelativePath = rel
	if inferred != "" {
		next.Category = inferred
	}

	newTok := r.tokenFromStem(base)
	if newTok != "" {
		next.Token = newTok
	}

	changed := next.StoredName != row.StoredName ||
		next.RelativePath != row.RelativePath ||
		(inferred != "" && inferred != row.Category)
	if newTok != "" && newTok != foldToken(row.Token) && !taken[newTok] {
		changed = true
	}
	return next, changed
}

// tokenFromStem returns the lowercased file stem when it is a valid token
// at the configured length or the legacy default length.
func (r *Reconciler) tokenFromStem(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	for _, n := range r.tokenLengths() {
		if docstore.IsToken(stem, n) {
			return strings.ToLower(strings.TrimSpace(stem))
		}
	}
	return ""
}

func (r *Reconciler) tokenLengths() []int {
	lengths := []int{r.store.TokenLength()}
	if lengths[0] != docstore.DefaultTokenLength {
		lengths = append(lengths, docstore.DefaultTokenLength)
	}
	return lengths
}

// recordedOutsideRoot reports whether the row's recorded path is absolute
// and does not resolve under the store root.
func (r *Reconciler) recordedOutsideRoot(row models.StoredDocument) bool {
	recorded := strings.TrimSpace(row.RelativePath)
	return recorded != "" && filepath.IsAbs(recorded) && !r.store.Within(recorded)
}

// importOrphans registers files sitting in category directories that no row
// owns. Only the top level of each category directory is considered.
func (r *Reconciler) importOrphans(ctx context.Context, report *Report, owned map[string]bool, dryRun bool) {
	for _, category := range r.store.Categories() {
		if err := ctx.Err(); err != nil {
			return
		}
		dir, err := r.store.CategoryDir(category)
		if err != nil {
			report.Details.Errors = append(report.Details.Errors,
				fmt.Sprintf("import %s: %v", category, err))
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, ent := range entries {
			if ent.IsDir() || !ent.Type().IsRegular() || docstore.IsIndexArtifact(ent.Name()) {
				continue
			}
			path := filepath.Join(dir, ent.Name())
			rel, relErr := r.store.Rel(path)
			if relErr != nil || owned[rel] {
				continue
			}
			info, infoErr := ent.Info()
			if infoErr != nil {
				continue
			}

			tok := r.importToken(ent.Name())
			if tok == "" {
				report.Details.Errors = append(report.Details.Errors,
					fmt.Sprintf("import %s: no token", rel))
				continue
			}
			report.Details.Imported = append(report.Details.Imported, ImportedEntry{
				RelativePath: rel,
				StoredName:   ent.Name(),
			})
			owned[rel] = true
			if dryRun {
				continue
			}

			stamp := info.ModTime().Format(models.TimeLayout)
			doc := models.StoredDocument{
				Token:        tok,
				Category:     category,
				OriginalName: ent.Name(),
				StoredName:   ent.Name(),
				RelativePath: rel,
				UploadedAt:   stamp,
			}
			if err := r.reg.Insert(&doc); err != nil {
				report.Details.Errors = append(report.Details.Errors,
					fmt.Sprintf("import %s: %v", rel, err))
				continue
			}
			r.logger.Debug("orphan imported",
				slog.String("path", rel),
				slog.String("token", tok))
		}
	}
}

// importToken reuses a token-shaped stem prefix so a re-imported file keeps
// its identity, and mints a fresh token otherwise.
func (r *Reconciler) importToken(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	n := r.store.TokenLength()
	if len(stem) >= n && docstore.IsToken(stem[:n], n) {
		return strings.ToLower(stem[:n])
	}
	tok, err := docstore.NewToken(n)
	if err != nil {
		return ""
	}
	return tok
}

func fieldsOf(d models.StoredDocument) FieldSet {
	return FieldSet{
		Token:        d.Token,
		StoredName:   d.StoredName,
		RelativePath: d.RelativePath,
		Category:     d.Category,
	}
}

func foldToken(tok string) string {
	return strings.ToLower(strings.TrimSpace(tok))
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
