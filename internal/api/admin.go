package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/arisezione/librosoci/internal/backup"
	"github.com/arisezione/librosoci/internal/reconcile"
)

// RunBackup handles POST /api/admin/backup.
//
//	@Summary		Snapshot the database if it changed since the last backup
//	@Tags			admin
//	@Produce		json
//	@Param			force	query		bool	false	"Back up even when unchanged"
//	@Success		200		{object}	BackupResponse	"Skipped, no changes"
//	@Success		201		{object}	BackupResponse	"Snapshot written"
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/backup [post]
func (h *Handler) RunBackup(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	path, err := h.svc.Backup(r.Context(), force)
	if err != nil {
		if errors.Is(err, backup.ErrUnchanged) {
			writeJSON(w, http.StatusOK, BackupResponse{Skipped: true, Reason: err.Error()})
			return
		}
		h.adminError(w, "backup failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, BackupResponse{File: filepath.Base(path), Path: path})
}

// RunFullBackup handles POST /api/admin/full-backup.
//
//	@Summary		Archive the data directory and a database snapshot as a zip
//	@Tags			admin
//	@Produce		json
//	@Success		201	{object}	BackupResponse
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/full-backup [post]
func (h *Handler) RunFullBackup(w http.ResponseWriter, r *http.Request) {
	path, err := h.svc.FullBackup(r.Context())
	if err != nil {
		h.adminError(w, "full backup failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, BackupResponse{File: filepath.Base(path), Path: path})
}

// ListBackups handles GET /api/admin/backups.
//
//	@Summary		List database snapshots, newest first
//	@Tags			admin
//	@Produce		json
//	@Success		200	{object}	BackupListResponse
//	@Security		BearerAuth
//	@Router			/admin/backups [get]
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.svc.ListBackups(r.Context())
	if err != nil {
		slog.Error("list backups failed", slog.String("error", err.Error()))
		writeJSON(w, statusFor(err), errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"backups": snapshots,
	})
}

// RunRestore handles POST /api/admin/restore.
//
//	@Summary		Replace the live database with a validated backup
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RestoreRequest	true	"Backup to restore"
//	@Success		200		{object}	RestoreResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/restore [post]
func (h *Handler) RunRestore(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req RestoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	safety := true
	if req.SafetyCopy != nil {
		safety = *req.SafetyCopy
	}

	msg, err := h.svc.Restore(r.Context(), req.Path, safety)
	if err != nil {
		h.adminError(w, "restore failed", err)
		return
	}
	writeJSON(w, http.StatusOK, RestoreResponse{Message: msg})
}

// VerifyDatabase handles GET /api/admin/verify.
//
//	@Summary		Run the database integrity check
//	@Tags			admin
//	@Produce		json
//	@Success		200	{object}	VerifyResponse
//	@Security		BearerAuth
//	@Router			/admin/verify [get]
func (h *Handler) VerifyDatabase(w http.ResponseWriter, r *http.Request) {
	ok, detail := h.svc.VerifyDatabase(r.Context())
	resp := VerifyResponse{OK: ok}
	if !ok {
		resp.Detail = detail
	}
	writeJSON(w, http.StatusOK, resp)
}

// RunReconcile handles POST /api/admin/reconcile.
//
//	@Summary		Re-align the registry with the files on disk
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ReconcileRequest	false	"Phases to run"
//	@Success		200		{object}	ReconcileReport
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/reconcile [post]
func (h *Handler) RunReconcile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ReconcileRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}
	}

	report, err := h.svc.Reconcile(r.Context(), reconcile.Options{
		DryRun:        req.DryRun,
		ImportOrphans: req.ImportOrphans,
		Backfill:      req.Backfill,
		PruneMissing:  req.PruneMissing,
	})
	if err != nil {
		slog.Error("reconcile failed", slog.String("error", err.Error()))
		writeJSON(w, statusFor(err), errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// adminError writes a backup or restore failure. The engine messages
// are user-facing, so non-internal statuses carry them through.
func (h *Handler) adminError(w http.ResponseWriter, logMsg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(logMsg, slog.String("error", err.Error()))
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}
