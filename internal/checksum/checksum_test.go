package checksum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSumKnownVector(t *testing.T) {
	got := Sum([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("Sum(abc) = %s, want %s", got, want)
	}
}

func TestFileMatchesSum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.bin")
	data := []byte(strings.Repeat("soci", 5000))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if got, want := File(path), Sum(data); got != want {
		t.Errorf("File = %s, want %s", got, want)
	}
}

func TestFileEmptyOnMissing(t *testing.T) {
	if got := File(filepath.Join(t.TempDir(), "nope.db")); got != "" {
		t.Errorf("File on missing path = %q, want empty", got)
	}
}

func TestFileEmptyInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := File(path); got != want {
		t.Errorf("File(empty) = %s, want %s", got, want)
	}
}
