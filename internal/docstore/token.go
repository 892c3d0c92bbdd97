package docstore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// NewToken returns a random lowercase hex token of exactly n characters.
func NewToken(n int) (string, error) {
	if n <= 0 {
		n = DefaultTokenLength
	}
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("docstore: generate token: %w", err)
	}
	return hex.EncodeToString(buf)[:n], nil
}

// IsToken reports whether value is a hex string of exactly n characters.
func IsToken(value string, n int) bool {
	value = strings.TrimSpace(value)
	if len(value) != n {
		return false
	}
	for _, ch := range value {
		switch {
		case ch >= '0' && ch <= '9':
		case ch >= 'a' && ch <= 'f':
		case ch >= 'A' && ch <= 'F':
		default:
			return false
		}
	}
	return true
}

// VariantName returns "<base><ext>" when free in dir, otherwise the first
// free "<base>_2<ext>", "<base>_3<ext>" and so on. Used when a move across
// category directories collides with a file already there.
func VariantName(dir, base, ext string) string {
	candidate := base + ext
	for counter := 2; ; counter++ {
		if _, err := os.Lstat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d%s", base, counter, ext)
	}
}

// UniqueName returns "<token><ext>" with no collision among the files
// already in dir, creating dir if needed. The extension is lowercased.
// Collisions only trigger regeneration; with the configured entropy they
// are a safety net, not an expected path.
func (s *Store) UniqueName(dir, ext string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("docstore: create target dir: %w", err)
	}
	ext = strings.ToLower(ext)
	for {
		token, err := NewToken(s.tokenLen)
		if err != nil {
			return "", err
		}
		candidate := token + ext
		if _, err := os.Lstat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate, nil
		}
	}
}
