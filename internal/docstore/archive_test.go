package docstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arisezione/librosoci/internal/apperr"
)

func TestArchiveCopiesAndKeepsModTime(t *testing.T) {
	s := tempStore(t)
	src := filepath.Join(t.TempDir(), "verbale marzo.pdf")
	if err := os.WriteFile(src, []byte("%PDF-1.4 fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Date(2024, 3, 15, 10, 30, 0, 0, time.Local)
	if err := os.Chtimes(src, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	dir, err := s.CategoryDir("Verbali CD")
	if err != nil {
		t.Fatal(err)
	}
	abs, stored, err := s.Archive(src, dir)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if filepath.Dir(abs) != dir {
		t.Errorf("dest dir = %s, want %s", filepath.Dir(abs), dir)
	}
	if filepath.Base(abs) != stored {
		t.Errorf("stored name %q does not match dest %q", stored, abs)
	}

	got, err := os.ReadFile(abs)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(got) != "%PDF-1.4 fake" {
		t.Errorf("content = %q", got)
	}
	info, err := os.Stat(abs)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), mtime)
	}
}

func TestArchiveMissingSource(t *testing.T) {
	s := tempStore(t)
	_, _, err := s.Archive(filepath.Join(t.TempDir(), "nope.pdf"), s.Root())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestArchiveDirectorySource(t *testing.T) {
	s := tempStore(t)
	_, _, err := s.Archive(t.TempDir(), s.Root())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestArchiveIdenticalContentYieldsDistinctCopies(t *testing.T) {
	s := tempStore(t)
	src := filepath.Join(t.TempDir(), "quota.pdf")
	if err := os.WriteFile(src, []byte("same bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	dir, err := s.CategoryDir("Quote ARI")
	if err != nil {
		t.Fatal(err)
	}

	names := make(map[string]struct{})
	for i := 0; i < 3; i++ {
		_, stored, err := s.Archive(src, dir)
		if err != nil {
			t.Fatalf("Archive #%d: %v", i, err)
		}
		names[stored] = struct{}{}
	}
	if len(names) != 3 {
		t.Errorf("got %d distinct stored names, want 3", len(names))
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d files in category dir, want 3", len(entries))
	}
}
