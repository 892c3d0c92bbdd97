// Package models defines the domain types for Libro Soci storage.
package models

import "time"

// TimeLayout is the second-resolution local timestamp format stored in the
// registry, the metadata file, and backup manifests.
const TimeLayout = "2006-01-02T15:04:05"

// NowStamp returns the current local time in TimeLayout form.
func NowStamp() string {
	return time.Now().Format(TimeLayout)
}

// StoredDocument is one archived section document, as recorded both in the
// JSON metadata file and in the SQL registry. Token is the hex id that
// forms the stored filename stem.
type StoredDocument struct {
	ID           int64  `json:"-"`
	Token        string `json:"token"`
	Category     string `json:"category"`
	OriginalName string `json:"original_name"`
	StoredName   string `json:"stored_name"`
	Description  string `json:"description"`
	RelativePath string `json:"relative_path"`
	UploadedAt   string `json:"uploaded_at"`
	DeletedAt    string `json:"deleted_at,omitempty"`
}

// DocumentInfo pairs a registry record with what the filesystem currently
// reports for it. Missing is true when the recorded path resolves to no file.
type DocumentInfo struct {
	StoredDocument
	Size    int64  `json:"size"`
	ModTime string `json:"mod_time,omitempty"`
	Missing bool   `json:"missing"`
}
