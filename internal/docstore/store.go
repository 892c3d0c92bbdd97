// Package docstore manages the section document tree: the category
// directory layout, token-named archive copies, and the JSON metadata
// index kept next to them.
package docstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultTokenLength is the hex-token length used when none is configured.
const DefaultTokenLength = 10

// Config carries everything a Store needs; no ambient globals.
type Config struct {
	// Root is the section document root directory.
	Root string
	// TokenLength is the hex length of generated filename stems.
	TokenLength int
	// ExtraCategories extends the built-in category set.
	ExtraCategories []string
}

// Store is a handle on one managed document root.
type Store struct {
	root       string // absolute
	tokenLen   int
	categories []string
}

// Open returns a Store rooted at cfg.Root, creating the directory if needed.
func Open(cfg Config) (*Store, error) {
	abs, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("docstore: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("docstore: create root: %w", err)
	}
	tokenLen := cfg.TokenLength
	if tokenLen <= 0 {
		tokenLen = DefaultTokenLength
	}
	cats := make([]string, 0, len(baseCategories)+len(cfg.ExtraCategories))
	cats = append(cats, baseCategories...)
	for _, c := range cfg.ExtraCategories {
		c = strings.TrimSpace(c)
		if c != "" && !containsFold(cats, c) {
			cats = append(cats, c)
		}
	}
	return &Store{root: abs, tokenLen: tokenLen, categories: cats}, nil
}

// Root returns the absolute document root.
func (s *Store) Root() string { return s.root }

// TokenLength returns the configured hex-token length.
func (s *Store) TokenLength() int { return s.tokenLen }

// Within reports whether path resolves under the store root.
func (s *Store) Within(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return abs == s.root || strings.HasPrefix(abs, s.root+string(os.PathSeparator))
}

// Rel returns the slash-separated path relative to the root, or an error if
// it escapes it. Recorded paths always use forward slashes so metadata stays
// portable across platforms.
func (s *Store) Rel(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("docstore: resolve path: %w", err)
	}
	if !s.Within(abs) {
		return "", fmt.Errorf("docstore: path outside root: %s", path)
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", fmt.Errorf("docstore: relativize: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

// Resolve maps a recorded path onto an absolute one: relative paths resolve
// under the root, absolute paths pass through. The result may not exist.
func (s *Store) Resolve(recorded string) string {
	if recorded == "" {
		return ""
	}
	if filepath.IsAbs(recorded) {
		return filepath.Clean(recorded)
	}
	return filepath.Join(s.root, filepath.FromSlash(recorded))
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}
