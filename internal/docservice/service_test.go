package docservice

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arisezione/librosoci/internal/apperr"
	"github.com/arisezione/librosoci/internal/backup"
	"github.com/arisezione/librosoci/internal/docstore"
	"github.com/arisezione/librosoci/internal/reconcile"
	"github.com/arisezione/librosoci/internal/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testService(t *testing.T) (*Service, *docstore.Store, *registry.Registry) {
	t.Helper()
	base := t.TempDir()
	dataDir := filepath.Join(base, "data")

	store, err := docstore.Open(docstore.Config{Root: filepath.Join(dataDir, "section_docs")})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.EnsureStructure(); err != nil {
		t.Fatal(err)
	}

	dbPath := filepath.Join(dataDir, "soci.db")
	reg, err := registry.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reg.Close() })

	logger := testLogger()
	svc := NewService(Deps{
		Store:      store,
		Registry:   reg,
		Backups:    backup.NewEngine(filepath.Join(base, "backups"), 5, logger),
		Reconciler: reconcile.New(store, reg, logger),
		DBPath:     dbPath,
		DataDir:    dataDir,
		Logger:     logger,
	})
	return svc, store, reg
}

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readIndex(t *testing.T, store *docstore.Store, category string) string {
	t.Helper()
	dir, err := store.CategoryDir(category)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, docstore.IndexFileName))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestAddDocumentArchivesAndRegisters(t *testing.T) {
	svc, store, reg := testService(t)

	src := writeSource(t, "bilancio 2025.pdf", "contenuto bilancio")
	doc, err := svc.AddDocument(context.Background(), AddRequest{
		SourcePath:  src,
		Category:    "Bilanci",
		Description: "Bilancio consuntivo",
	})
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}

	if doc.OriginalName != "bilancio 2025.pdf" {
		t.Errorf("OriginalName = %q", doc.OriginalName)
	}
	if !docstore.IsToken(doc.Token, store.TokenLength()) {
		t.Errorf("token %q is not a %d-char hex token", doc.Token, store.TokenLength())
	}
	if doc.StoredName != doc.Token+".pdf" {
		t.Errorf("StoredName = %q", doc.StoredName)
	}

	abs := store.Resolve(doc.RelativePath)
	data, err := os.ReadFile(abs)
	if err != nil {
		t.Fatalf("archived file unreadable: %v", err)
	}
	if string(data) != "contenuto bilancio" {
		t.Errorf("archived content = %q", data)
	}

	row, err := reg.GetByToken(doc.Token)
	if err != nil {
		t.Fatalf("row not registered: %v", err)
	}
	if row.Description != "Bilancio consuntivo" {
		t.Errorf("Description = %q", row.Description)
	}

	meta, err := store.LoadMetadata()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := meta[doc.Token]; !ok {
		t.Error("metadata entry missing")
	}

	index := readIndex(t, store, "Bilanci")
	if !strings.Contains(index, doc.StoredName) {
		t.Errorf("index does not list the document:\n%s", index)
	}
}

func TestAddUploadRecordsClientFilename(t *testing.T) {
	svc, store, _ := testService(t)

	doc, err := svc.AddUpload(context.Background(), "Verbale CD marzo.PDF",
		strings.NewReader("verbale"), "Verbali CD", "")
	if err != nil {
		t.Fatalf("AddUpload: %v", err)
	}
	if doc.OriginalName != "Verbale CD marzo.PDF" {
		t.Errorf("OriginalName = %q", doc.OriginalName)
	}
	if !strings.HasSuffix(doc.StoredName, ".pdf") {
		t.Errorf("StoredName = %q, want lowercased extension", doc.StoredName)
	}
	data, err := os.ReadFile(store.Resolve(doc.RelativePath))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "verbale" {
		t.Errorf("stored content = %q", data)
	}
}

func TestAddDocumentRollsBackOnRegistryFailure(t *testing.T) {
	svc, store, reg := testService(t)
	reg.Close()

	src := writeSource(t, "doc.pdf", "x")
	if _, err := svc.AddDocument(context.Background(), AddRequest{SourcePath: src, Category: "Altro"}); err == nil {
		t.Fatal("AddDocument succeeded against a closed registry")
	}

	dir, err := store.CategoryDir("Altro")
	if err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, ent := range entries {
		if !docstore.IsIndexArtifact(ent.Name()) {
			t.Errorf("orphaned file left behind: %s", ent.Name())
		}
	}
	meta, err := store.LoadMetadata()
	if err != nil {
		t.Fatal(err)
	}
	if len(meta) != 0 {
		t.Errorf("metadata entries left behind: %v", meta)
	}
}

func TestListDocumentsFlagsMissing(t *testing.T) {
	svc, store, _ := testService(t)
	ctx := context.Background()

	kept, err := svc.AddDocument(ctx, AddRequest{SourcePath: writeSource(t, "a.pdf", "a"), Category: "Bilanci"})
	if err != nil {
		t.Fatal(err)
	}
	lost, err := svc.AddDocument(ctx, AddRequest{SourcePath: writeSource(t, "b.pdf", "b"), Category: "Bilanci"})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(store.Resolve(lost.RelativePath)); err != nil {
		t.Fatal(err)
	}

	infos, err := svc.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("len = %d, want 2", len(infos))
	}
	byToken := map[string]bool{}
	for _, info := range infos {
		byToken[info.Token] = info.Missing
	}
	if byToken[kept.Token] {
		t.Error("intact document flagged missing")
	}
	if !byToken[lost.Token] {
		t.Error("removed document not flagged missing")
	}
}

func TestGetDocumentAndResolvePath(t *testing.T) {
	svc, store, _ := testService(t)
	ctx := context.Background()

	doc, err := svc.AddDocument(ctx, AddRequest{SourcePath: writeSource(t, "x.pdf", "x"), Category: "Modulistica"})
	if err != nil {
		t.Fatal(err)
	}

	info, err := svc.GetDocument(ctx, doc.Token)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if info.Missing || info.Size != 1 {
		t.Errorf("info = %+v", info)
	}

	abs, err := svc.ResolvePath(ctx, doc.Token)
	if err != nil {
		t.Fatalf("ResolvePath: %v", err)
	}
	if !store.Within(abs) {
		t.Errorf("resolved path %q escapes root", abs)
	}

	if _, err := svc.GetDocument(ctx, "ffffffffff"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown token err = %v, want ErrNotFound", err)
	}
}

func TestUpdateDocumentDescription(t *testing.T) {
	svc, store, reg := testService(t)
	ctx := context.Background()

	doc, err := svc.AddDocument(ctx, AddRequest{SourcePath: writeSource(t, "x.pdf", "x"), Category: "Regolamenti", Description: "prima"})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.UpdateDocument(ctx, doc.Token, "Regolamenti", "dopo")
	if err != nil {
		t.Fatalf("UpdateDocument: %v", err)
	}
	if updated.Description != "dopo" || updated.RelativePath != doc.RelativePath {
		t.Errorf("updated = %+v", updated)
	}

	row, err := reg.GetByToken(doc.Token)
	if err != nil {
		t.Fatal(err)
	}
	if row.Description != "dopo" {
		t.Errorf("registry description = %q", row.Description)
	}
	meta, err := store.LoadMetadata()
	if err != nil {
		t.Fatal(err)
	}
	if meta[doc.Token].Description != "dopo" {
		t.Errorf("metadata description = %q", meta[doc.Token].Description)
	}
}

func TestUpdateDocumentMovesAcrossCategories(t *testing.T) {
	svc, store, _ := testService(t)
	ctx := context.Background()

	doc, err := svc.AddDocument(ctx, AddRequest{SourcePath: writeSource(t, "x.pdf", "sposta"), Category: "Bilanci"})
	if err != nil {
		t.Fatal(err)
	}
	oldAbs := store.Resolve(doc.RelativePath)

	updated, err := svc.UpdateDocument(ctx, doc.Token, "Altro", "spostato")
	if err != nil {
		t.Fatalf("UpdateDocument: %v", err)
	}
	if updated.Category != "Altro" {
		t.Errorf("Category = %q", updated.Category)
	}
	if updated.StoredName != doc.StoredName {
		t.Errorf("StoredName changed on free move: %q", updated.StoredName)
	}
	if updated.RelativePath != "altro/"+doc.StoredName {
		t.Errorf("RelativePath = %q", updated.RelativePath)
	}

	if _, err := os.Stat(oldAbs); !os.IsNotExist(err) {
		t.Error("file still present in old category")
	}
	data, err := os.ReadFile(store.Resolve(updated.RelativePath))
	if err != nil {
		t.Fatalf("moved file unreadable: %v", err)
	}
	if string(data) != "sposta" {
		t.Errorf("moved content = %q", data)
	}

	if idx := readIndex(t, store, "Bilanci"); !strings.Contains(idx, "(Nessun documento presente)") {
		t.Errorf("old category index not emptied:\n%s", idx)
	}
	if idx := readIndex(t, store, "Altro"); !strings.Contains(idx, updated.StoredName) {
		t.Errorf("new category index does not list the document:\n%s", idx)
	}
}

func TestUpdateDocumentMoveNumbersCollidingName(t *testing.T) {
	svc, store, _ := testService(t)
	ctx := context.Background()

	doc, err := svc.AddDocument(ctx, AddRequest{SourcePath: writeSource(t, "x.pdf", "x"), Category: "Bilanci"})
	if err != nil {
		t.Fatal(err)
	}
	altroDir, err := store.CategoryDir("Altro")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(altroDir, doc.StoredName), []byte("already there"), 0o644); err != nil {
		t.Fatal(err)
	}

	updated, err := svc.UpdateDocument(ctx, doc.Token, "Altro", "")
	if err != nil {
		t.Fatalf("UpdateDocument: %v", err)
	}
	want := doc.Token + "_2.pdf"
	if updated.StoredName != want {
		t.Errorf("StoredName = %q, want %q", updated.StoredName, want)
	}
	if _, err := os.Stat(store.Resolve(updated.RelativePath)); err != nil {
		t.Errorf("moved file missing: %v", err)
	}
}

func TestDeleteDocument(t *testing.T) {
	svc, store, reg := testService(t)
	ctx := context.Background()

	doc, err := svc.AddDocument(ctx, AddRequest{SourcePath: writeSource(t, "x.pdf", "x"), Category: "Quote ARI"})
	if err != nil {
		t.Fatal(err)
	}
	abs := store.Resolve(doc.RelativePath)

	if err := svc.DeleteDocument(ctx, doc.Token); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	if _, err := os.Stat(abs); !os.IsNotExist(err) {
		t.Error("file not removed")
	}
	row, err := reg.GetByToken(doc.Token)
	if err != nil {
		t.Fatal(err)
	}
	if row.DeletedAt == "" {
		t.Error("row not soft-deleted")
	}
	meta, err := store.LoadMetadata()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := meta[doc.Token]; ok {
		t.Error("metadata entry not removed")
	}
	if idx := readIndex(t, store, "Quote ARI"); !strings.Contains(idx, "(Nessun documento presente)") {
		t.Errorf("index not emptied:\n%s", idx)
	}

	if err := svc.DeleteDocument(ctx, doc.Token); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestDeleteDocumentToleratesMissingFile(t *testing.T) {
	svc, store, reg := testService(t)
	ctx := context.Background()

	doc, err := svc.AddDocument(ctx, AddRequest{SourcePath: writeSource(t, "x.pdf", "x"), Category: "Altro"})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(store.Resolve(doc.RelativePath)); err != nil {
		t.Fatal(err)
	}

	if err := svc.DeleteDocument(ctx, doc.Token); err != nil {
		t.Fatalf("DeleteDocument with missing file: %v", err)
	}
	row, err := reg.GetByToken(doc.Token)
	if err != nil {
		t.Fatal(err)
	}
	if row.DeletedAt == "" {
		t.Error("row not soft-deleted")
	}
}

func TestSearchDocuments(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.AddDocument(ctx, AddRequest{SourcePath: writeSource(t, "a.pdf", "a"), Category: "Bilanci", Description: "Bilancio consuntivo 2024"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddDocument(ctx, AddRequest{SourcePath: writeSource(t, "b.pdf", "b"), Category: "Altro", Description: "Volantino fiera"}); err != nil {
		t.Fatal(err)
	}

	hits, err := svc.SearchDocuments(ctx, "CONSUNTIVO", 10)
	if err != nil {
		t.Fatalf("SearchDocuments: %v", err)
	}
	if len(hits) != 1 || hits[0].Description != "Bilancio consuntivo 2024" {
		t.Errorf("hits = %+v", hits)
	}
}

func TestRefreshIndexFiles(t *testing.T) {
	svc, store, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.AddDocument(ctx, AddRequest{SourcePath: writeSource(t, "a.pdf", "a"), Category: "Bilanci"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.RefreshIndexFiles(ctx); err != nil {
		t.Fatalf("RefreshIndexFiles: %v", err)
	}
	for _, category := range store.Categories() {
		idx := readIndex(t, store, category)
		if !strings.Contains(idx, "Elenco documenti sezione") {
			t.Errorf("index for %q lacks header:\n%s", category, idx)
		}
	}
}

func TestReconcileRefreshesIndexesAfterChanges(t *testing.T) {
	svc, store, _ := testService(t)
	ctx := context.Background()

	dir, err := store.CategoryDir("Altro")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "fuorilista.pdf"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := svc.Reconcile(ctx, reconcile.Options{ImportOrphans: true})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.Imported != 1 {
		t.Fatalf("Imported = %d", report.Imported)
	}
	if idx := readIndex(t, store, "Altro"); !strings.Contains(idx, "fuorilista.pdf") {
		t.Errorf("index not refreshed after import:\n%s", idx)
	}
}

func TestBackupAndRestoreRoundTrip(t *testing.T) {
	svc, _, reg := testService(t)
	ctx := context.Background()

	doc, err := svc.AddDocument(ctx, AddRequest{SourcePath: writeSource(t, "x.pdf", "x"), Category: "Bilanci", Description: "prima"})
	if err != nil {
		t.Fatal(err)
	}

	snap, err := svc.Backup(ctx, true)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	if _, err := svc.UpdateDocument(ctx, doc.Token, "Bilanci", "dopo"); err != nil {
		t.Fatal(err)
	}

	msg, err := svc.Restore(ctx, snap, false)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !strings.Contains(msg, filepath.Base(snap)) {
		t.Errorf("message = %q", msg)
	}

	row, err := reg.GetByToken(doc.Token)
	if err != nil {
		t.Fatal(err)
	}
	if row.Description != "prima" {
		t.Errorf("Description after restore = %q, want the pre-backup value", row.Description)
	}

	ok, reason := svc.VerifyDatabase(ctx)
	if !ok {
		t.Errorf("restored database fails integrity check: %s", reason)
	}
}

func TestRestoreMissingBackup(t *testing.T) {
	svc, _, _ := testService(t)
	if _, err := svc.Restore(context.Background(), filepath.Join(t.TempDir(), "nope.db"), false); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestEventCallback(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()

	var kinds []string
	svc.OnEvent(func(kind, ref string) { kinds = append(kinds, kind) })

	doc, err := svc.AddDocument(ctx, AddRequest{SourcePath: writeSource(t, "x.pdf", "x"), Category: "Altro"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.UpdateDocument(ctx, doc.Token, "Altro", "desc"); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteDocument(ctx, doc.Token); err != nil {
		t.Fatal(err)
	}

	want := []string{"created", "updated", "deleted"}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("kinds[%d] = %q, want %q", i, kinds[i], want[i])
		}
	}
}
