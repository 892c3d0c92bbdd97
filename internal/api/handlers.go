package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/arisezione/librosoci/internal/apperr"
	"github.com/arisezione/librosoci/internal/docservice"
	"github.com/go-chi/chi/v5"
)

const maxUploadBytes = 50 << 20 // 50 MB

// Handler holds API route handlers.
type Handler struct {
	svc *docservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *docservice.Service) *Handler {
	return &Handler{svc: svc}
}

// docToken extracts the document token from the URL.
func docToken(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "token"))
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List the document catalog with optional category filtering
//	@Tags			documents
//	@Produce		json
//	@Param			category	query		string	false	"Filter by category"
//	@Success		200			{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))

	items, err := h.svc.ListDocuments(r.Context())
	if err != nil {
		slog.Error("list documents failed", slog.String("error", err.Error()))
		writeJSON(w, statusFor(err), errorBody("internal error"))
		return
	}
	if category != "" {
		filtered := items[:0]
		for _, item := range items {
			if strings.EqualFold(item.Category, category) {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": items,
		"total":     len(items),
	})
}

// UploadDocument handles POST /api/documents (multipart/form-data).
//
//	@Summary		Archive an uploaded file as a new document
//	@Tags			documents
//	@Accept			mpfd
//	@Produce		json
//	@Param			file		formData	file	true	"Document file"
//	@Param			category	formData	string	false	"Category label"
//	@Param			description	formData	string	false	"Free-form description"
//	@Success		201	{object}	models.StoredDocument
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [post]
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid filename"))
		return
	}

	doc, err := h.svc.AddUpload(r.Context(), filename, file,
		r.FormValue("category"), r.FormValue("description"))
	if err != nil {
		slog.Error("upload document failed",
			slog.String("filename", filename),
			slog.String("error", err.Error()))
		writeJSON(w, statusFor(err), errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// GetDocument handles GET /api/documents/{token}.
//
//	@Summary		Get a single document by token
//	@Tags			documents
//	@Produce		json
//	@Param			token	path		string	true	"Document token"
//	@Success		200		{object}	DocumentDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{token} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	token := docToken(r)
	if token == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("token is required"))
		return
	}
	doc, err := h.svc.GetDocument(r.Context(), token)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get document failed", slog.String("token", token), slog.String("error", err.Error()))
			writeJSON(w, statusFor(err), errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DownloadDocument handles GET /api/documents/{token}/file.
//
//	@Summary		Download the stored file of a document
//	@Tags			documents
//	@Produce		octet-stream
//	@Param			token	path	string	true	"Document token"
//	@Success		200		"File content"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{token}/file [get]
func (h *Handler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	token := docToken(r)
	if token == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("token is required"))
		return
	}
	doc, err := h.svc.GetDocument(r.Context(), token)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("download document failed", slog.String("token", token), slog.String("error", err.Error()))
			writeJSON(w, statusFor(err), errorBody("internal error"))
		}
		return
	}
	abs, err := h.svc.ResolvePath(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("file not found on disk"))
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(doc.OriginalName))
	http.ServeFile(w, r, abs)
}

// UpdateDocument handles PUT /api/documents/{token}.
//
//	@Summary		Edit a document's category and description
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			token	path		string					true	"Document token"
//	@Param			body	body		UpdateDocumentRequest	true	"New category and description"
//	@Success		200		{object}	models.StoredDocument
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{token} [put]
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	token := docToken(r)
	if token == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("token is required"))
		return
	}
	var req UpdateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	doc, err := h.svc.UpdateDocument(r.Context(), token, req.Category, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrConflict):
			writeJSON(w, http.StatusConflict, errorBody("conflicting document"))
		default:
			slog.Error("update document failed", slog.String("token", token), slog.String("error", err.Error()))
			writeJSON(w, statusFor(err), errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument handles DELETE /api/documents/{token}.
//
//	@Summary		Delete a document and its stored file
//	@Tags			documents
//	@Param			token	path	string	true	"Document token"
//	@Success		204		"Document deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{token} [delete]
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	token := docToken(r)
	if token == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("token is required"))
		return
	}
	if err := h.svc.DeleteDocument(r.Context(), token); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		slog.Error("delete document failed", slog.String("token", token), slog.String("error", err.Error()))
		writeJSON(w, statusFor(err), errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/documents/search.
//
//	@Summary		Search documents by name, description, or category
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.SearchDocuments(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, statusFor(err), errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}
