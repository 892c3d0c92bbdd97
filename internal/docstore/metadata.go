package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arisezione/librosoci/internal/models"
)

const metadataSchemaVersion = 1

type metadataEnvelope struct {
	SchemaVersion int                               `json:"schema_version"`
	Documents     map[string]models.StoredDocument `json:"documents"`
}

// MetadataPath returns the absolute path of the JSON metadata index.
func (s *Store) MetadataPath() string {
	return filepath.Join(s.root, MetadataFileName)
}

// LoadMetadata reads the metadata index keyed by token. A missing file is
// an empty map with a nil error; an unparseable file yields an empty map
// plus the error so callers can log and proceed. Legacy files that store
// the map at the root (no "documents" envelope) are accepted and
// normalized on load; the legacy shape is never written back. Entries
// that are not JSON objects are skipped.
func (s *Store) LoadMetadata() (map[string]models.StoredDocument, error) {
	out := make(map[string]models.StoredDocument)

	data, err := os.ReadFile(s.MetadataPath())
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("docstore: read metadata: %w", err)
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return out, fmt.Errorf("docstore: parse metadata: %w", err)
	}

	entries := root
	if raw, ok := root["documents"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(raw, &inner); err == nil && inner != nil {
			entries = inner
		}
	}

	for token, raw := range entries {
		var doc models.StoredDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		if doc.Token == "" {
			doc.Token = token
		}
		out[token] = doc
	}
	return out, nil
}

// SaveMetadata atomically rewrites the metadata index in the versioned
// envelope form: temp file in the same directory, fsync, rename.
func (s *Store) SaveMetadata(docs map[string]models.StoredDocument) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("docstore: create root: %w", err)
	}
	payload, err := json.MarshalIndent(metadataEnvelope{
		SchemaVersion: metadataSchemaVersion,
		Documents:     docs,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("docstore: encode metadata: %w", err)
	}

	tmp, err := os.CreateTemp(s.root, ".metadata-tmp-*")
	if err != nil {
		return fmt.Errorf("docstore: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(payload); err != nil {
		return fmt.Errorf("docstore: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("docstore: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("docstore: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.MetadataPath()); err != nil {
		return fmt.Errorf("docstore: rename: %w", err)
	}
	success = true
	return nil
}

// RemoveMetadataByPath drops every metadata entry recorded at rel and saves
// the index when something changed.
func (s *Store) RemoveMetadataByPath(rel string) error {
	docs, err := s.LoadMetadata()
	if err != nil {
		return err
	}
	changed := false
	for token, doc := range docs {
		if doc.RelativePath == rel {
			delete(docs, token)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.SaveMetadata(docs)
}
