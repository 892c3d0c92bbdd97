package api

import (
	"net/http"

	"github.com/arisezione/librosoci/internal/docservice"
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *docservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Document catalog.
	r.Get("/documents", h.ListDocuments)
	r.Post("/documents", h.UploadDocument)
	r.Get("/documents/search", h.Search)
	r.Get("/documents/{token}", h.GetDocument)
	r.Get("/documents/{token}/file", h.DownloadDocument)
	r.Put("/documents/{token}", h.UpdateDocument)
	r.Delete("/documents/{token}", h.DeleteDocument)

	// Backup and registry maintenance.
	r.Route("/admin", func(r chi.Router) {
		r.Post("/backup", h.RunBackup)
		r.Post("/full-backup", h.RunFullBackup)
		r.Get("/backups", h.ListBackups)
		r.Post("/restore", h.RunRestore)
		r.Get("/verify", h.VerifyDatabase)
		r.Post("/reconcile", h.RunReconcile)
	})

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
