package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/formvault/formvault/internal/core/domain"
	"github.com/formvault/formvault/internal/core/ports"
	"github.com/formvault/formvault/internal/core/usecase"
	"github.com/formvault/formvault/internal/infrastructure/cache"
	"github.com/formvault/formvault/internal/infrastructure/resilience"
)

// DocumentUploader is the slice of the ingest use case the router
// needs.
type DocumentUploader interface {
	Upload(ctx context.Context, filename string, body io.Reader) (*domain.Document, error)
}

type Router struct {
	uploader   DocumentUploader
	repo       ports.DocumentRepository
	files      ports.ObjectStorage
	catalogs   ports.CatalogStore
	cache      *cache.Cache
	errorStats *resilience.ErrorStats
	breaker    *resilience.Breaker
	processing *usecase.ProcessingStats
}

func NewRouter(
	uploader DocumentUploader,
	repo ports.DocumentRepository,
	files ports.ObjectStorage,
	catalogs ports.CatalogStore,
	analysisCache *cache.Cache,
	errorStats *resilience.ErrorStats,
	breaker *resilience.Breaker,
	processing *usecase.ProcessingStats,
) *Router {
	return &Router{
		uploader:   uploader,
		repo:       repo,
		files:      files,
		catalogs:   catalogs,
		cache:      analysisCache,
		errorStats: errorStats,
		breaker:    breaker,
		processing: processing,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/stats", rt.stats)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.documentSubtree)
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// stats exposes the operational snapshots: cache counters, error
// history, breaker state and run totals.
func (rt *Router) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	payload := map[string]any{
		"circuit_breaker_open": rt.breaker != nil && rt.breaker.Open(),
	}
	if rt.cache != nil {
		payload["cache"] = rt.cache.Stats()
	}
	if rt.errorStats != nil {
		payload["errors"] = rt.errorStats.Snapshot()
	}
	if rt.processing != nil {
		payload["processing"] = rt.processing.Snapshot()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.uploader.Upload(r.Context(), fileHeader.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

// documentSubtree serves /v1/documents/{id},
// /v1/documents/{id}/catalog and /v1/documents/{id}/file.
func (rt *Router) documentSubtree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	switch sub {
	case "":
		doc, err := rt.repo.GetByID(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case "catalog":
		rt.documentCatalog(w, r, id)
	case "file":
		rt.documentFile(w, r, id)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

// documentCatalog prefers the in-memory cache and falls back to the
// persisted catalog file.
func (rt *Router) documentCatalog(w http.ResponseWriter, r *http.Request, id string) {
	if rt.cache != nil {
		if entry, ok := rt.cache.Get(id); ok {
			writeJSON(w, http.StatusOK, entry)
			return
		}
	}
	entry, err := rt.catalogs.LoadCatalog(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// documentFile streams the stored source document back to the caller.
func (rt *Router) documentFile(w http.ResponseWriter, r *http.Request, id string) {
	doc, err := rt.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	reader, err := rt.files.Open(r.Context(), doc.StoragePath)
	if err != nil {
		writeError(w, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
