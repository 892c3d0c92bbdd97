package api

import (
	"github.com/arisezione/librosoci/internal/models"
	"github.com/arisezione/librosoci/internal/reconcile"
)

// UpdateDocumentRequest is the request body for editing a document.
type UpdateDocumentRequest struct {
	Category    string `json:"category" example:"Bilanci" validate:"required"`
	Description string `json:"description" example:"Bilancio consuntivo 2025"`
}

// RestoreRequest is the request body for restoring a database backup.
// SafetyCopy defaults to true when omitted.
type RestoreRequest struct {
	Path       string `json:"path" example:"/data/backups/soci_backup_2025-06-01_12-00-00.db" validate:"required"`
	SafetyCopy *bool  `json:"safety_copy,omitempty" example:"true"`
}

// ReconcileRequest selects which reconciliation phases to run.
type ReconcileRequest struct {
	DryRun        bool `json:"dry_run" example:"false"`
	ImportOrphans bool `json:"import_orphans" example:"true"`
	Backfill      bool `json:"backfill" example:"false"`
	PruneMissing  bool `json:"prune_missing" example:"false"`
}

// DocumentDetail is the full document response type (aliased from the domain layer).
type DocumentDetail = models.DocumentInfo

// DocumentListResponse wraps catalog listings.
type DocumentListResponse struct {
	Documents []DocumentDetail `json:"documents" validate:"required"`
	Total     int              `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []models.StoredDocument `json:"results" validate:"required"`
}

// BackupResponse is returned after a backup attempt. Skipped is true when
// the database content had not changed and no snapshot was written.
type BackupResponse struct {
	File    string `json:"file,omitempty" example:"soci_backup_2025-06-01_12-00-00.db"`
	Path    string `json:"path,omitempty" example:"/data/backups/soci_backup_2025-06-01_12-00-00.db"`
	Skipped bool   `json:"skipped" example:"false"`
	Reason  string `json:"reason,omitempty" example:"no changes detected"`
}

// RestoreResponse is returned after a successful restore.
type RestoreResponse struct {
	Message string `json:"message" example:"Successfully restored from soci_backup_2025-06-01_12-00-00.db" validate:"required"`
}

// VerifyResponse reports the live database integrity state.
type VerifyResponse struct {
	OK     bool   `json:"ok" example:"true" validate:"required"`
	Detail string `json:"detail,omitempty" example:"file is not a database"`
}

// BackupListResponse wraps the snapshot inventory.
type BackupListResponse struct {
	Backups []models.Snapshot `json:"backups" validate:"required"`
}

// ReconcileReport is the reconciliation outcome (aliased from the domain layer).
type ReconcileReport = reconcile.Report
