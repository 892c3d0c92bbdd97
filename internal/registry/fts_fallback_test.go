//go:build !sqlite_fts5

package registry

import "testing"

func TestSearchSubstring(t *testing.T) {
	r := testRegistry(t)
	d := sampleDoc("abcdef0123", "bilanci/abcdef0123.pdf")
	d.OriginalName = "Bilancio Consuntivo.pdf"
	if err := r.Insert(&d); err != nil {
		t.Fatal(err)
	}

	// The LIKE fallback matches inside words too.
	hits, err := r.Search("onsuntiv", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Token != d.Token {
		t.Errorf("hits = %+v", hits)
	}
}
