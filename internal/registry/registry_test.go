package registry

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/arisezione/librosoci/internal/apperr"
	"github.com/arisezione/librosoci/internal/models"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "soci.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func sampleDoc(token, rel string) models.StoredDocument {
	return models.StoredDocument{
		Token:        token,
		Category:     "Bilanci",
		OriginalName: "bilancio.pdf",
		StoredName:   token + ".pdf",
		Description:  "Consuntivo 2024",
		RelativePath: rel,
		UploadedAt:   "2024-04-01T09:00:00",
	}
}

func TestInsertAndGetByToken(t *testing.T) {
	r := testRegistry(t)
	d := sampleDoc("abcdef0123", "bilanci/abcdef0123.pdf")
	if err := r.Insert(&d); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if d.ID == 0 {
		t.Error("ID not filled after insert")
	}

	got, err := r.GetByToken("abcdef0123")
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if got != d {
		t.Errorf("row mismatch: got %+v want %+v", got, d)
	}
}

func TestGetByTokenNotFound(t *testing.T) {
	r := testRegistry(t)
	_, err := r.GetByToken("ffffffffff")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDuplicateTokenConflicts(t *testing.T) {
	r := testRegistry(t)
	d1 := sampleDoc("abcdef0123", "bilanci/a.pdf")
	if err := r.Insert(&d1); err != nil {
		t.Fatal(err)
	}
	d2 := sampleDoc("abcdef0123", "bilanci/b.pdf")
	if err := r.Insert(&d2); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestRelativePathUniqueOnlyWhileActive(t *testing.T) {
	r := testRegistry(t)
	d1 := sampleDoc("aaaa000001", "bilanci/shared.pdf")
	if err := r.Insert(&d1); err != nil {
		t.Fatal(err)
	}

	d2 := sampleDoc("bbbb000002", "bilanci/shared.pdf")
	if err := r.Insert(&d2); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("active duplicate path: err = %v, want ErrConflict", err)
	}

	if err := r.SoftDelete(d1.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	// The path is free again once the old row is soft-deleted.
	if err := r.Insert(&d2); err != nil {
		t.Fatalf("insert after soft delete: %v", err)
	}
}

func TestSoftDelete(t *testing.T) {
	r := testRegistry(t)
	d := sampleDoc("abcdef0123", "bilanci/x.pdf")
	if err := r.Insert(&d); err != nil {
		t.Fatal(err)
	}
	if err := r.SoftDelete(d.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	got, err := r.GetByToken(d.Token)
	if err != nil {
		t.Fatalf("GetByToken after delete: %v", err)
	}
	if got.DeletedAt == "" {
		t.Error("DeletedAt not stamped")
	}

	if err := r.SoftDelete(d.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second SoftDelete err = %v, want ErrNotFound", err)
	}
}

func TestListFiltersDeleted(t *testing.T) {
	r := testRegistry(t)
	d1 := sampleDoc("aaaa000001", "bilanci/a.pdf")
	d2 := sampleDoc("bbbb000002", "bilanci/b.pdf")
	for _, d := range []*models.StoredDocument{&d1, &d2} {
		if err := r.Insert(d); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.SoftDelete(d1.ID); err != nil {
		t.Fatal(err)
	}

	active, err := r.List(false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(active) != 1 || active[0].Token != d2.Token {
		t.Errorf("active = %+v, want only %s", active, d2.Token)
	}

	all, err := r.List(true)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all = %d rows, want 2", len(all))
	}
}

func TestGetByRelativePathActiveOnly(t *testing.T) {
	r := testRegistry(t)
	d := sampleDoc("aaaa000001", "altro/doc.pdf")
	if err := r.Insert(&d); err != nil {
		t.Fatal(err)
	}
	if err := r.SoftDelete(d.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetByRelativePath("altro/doc.pdf"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound for deleted path", err)
	}

	d2 := sampleDoc("bbbb000002", "altro/doc.pdf")
	if err := r.Insert(&d2); err != nil {
		t.Fatal(err)
	}
	got, err := r.GetByRelativePath("altro/doc.pdf")
	if err != nil {
		t.Fatalf("GetByRelativePath: %v", err)
	}
	if got.Token != d2.Token {
		t.Errorf("token = %s, want %s", got.Token, d2.Token)
	}
}

func TestUpdate(t *testing.T) {
	r := testRegistry(t)
	d := sampleDoc("abcdef0123", "bilanci/x.pdf")
	if err := r.Insert(&d); err != nil {
		t.Fatal(err)
	}

	d.Category = "Altro"
	d.Description = "spostato"
	d.RelativePath = "altro/abcdef0123.pdf"
	if err := r.Update(d); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := r.GetByToken(d.Token)
	if err != nil {
		t.Fatal(err)
	}
	if got.Category != "Altro" || got.RelativePath != "altro/abcdef0123.pdf" {
		t.Errorf("update not applied: %+v", got)
	}

	missing := d
	missing.ID = 99999
	if err := r.Update(missing); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSearch(t *testing.T) {
	r := testRegistry(t)
	a := sampleDoc("aaaa000001", "bilanci/a.pdf")
	a.OriginalName = "Bilancio Consuntivo.pdf"
	b := sampleDoc("bbbb000002", "altro/b.pdf")
	b.Category = "Altro"
	b.OriginalName = "circolare.pdf"
	b.Description = "Circolare quote"
	for _, d := range []*models.StoredDocument{&a, &b} {
		if err := r.Insert(d); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := r.Search("CONSUNTIVO", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Token != a.Token {
		t.Errorf("hits = %+v", hits)
	}

	hits, err = r.Search("quote", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Token != b.Token {
		t.Errorf("hits = %+v", hits)
	}
}

func TestMissingTableIsSchemaNotReady(t *testing.T) {
	r := testRegistry(t)
	if _, err := r.conn.Exec(`DROP TABLE section_documents`); err != nil {
		t.Fatal(err)
	}
	_, err := r.List(false)
	if !errors.Is(err, apperr.ErrSchemaNotReady) {
		t.Errorf("err = %v, want ErrSchemaNotReady", err)
	}
}

func TestActiveCount(t *testing.T) {
	r := testRegistry(t)
	d := sampleDoc("abcdef0123", "bilanci/x.pdf")
	if err := r.Insert(&d); err != nil {
		t.Fatal(err)
	}
	n, err := r.ActiveCount()
	if err != nil {
		t.Fatalf("ActiveCount: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}
