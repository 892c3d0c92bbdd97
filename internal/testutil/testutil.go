// Package testutil provides shared test helpers for setting up document stores and registries.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/arisezione/librosoci/internal/docstore"
	"github.com/arisezione/librosoci/internal/registry"
)

// TestRegistry opens a throwaway registry database that is automatically cleaned up.
func TestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Open(filepath.Join(t.TempDir(), "soci.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reg.Close() })
	return reg
}

// TestStore creates a temporary section document root with the standard
// category layout already in place.
func TestStore(t *testing.T) (string, *docstore.Store) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "section_docs")
	store, err := docstore.Open(docstore.Config{Root: root})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.EnsureStructure(); err != nil {
		t.Fatal(err)
	}
	return root, store
}
