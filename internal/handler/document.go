package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"loom/internal/httputil"
	"loom/internal/service"
)

// DocumentHandler handles document HTTP requests
type DocumentHandler struct {
	documents *service.DocumentService
	logger    *slog.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documents *service.DocumentService, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		logger:    logger,
	}
}

// HealthCheck returns service health status
// GET /health
func (h *DocumentHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateDocument creates a document in a project
// POST /api/projects/{id}/documents
func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	tc, err := tenantFrom(r)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	projectID := r.PathValue("id")
	if projectID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "project ID is required")
		return
	}

	var req service.CreateDocumentRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ProjectID = projectID

	doc, err := h.documents.CreateDocument(r.Context(), tc, &req)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, doc)
}

// ListDocuments lists a project's documents
// GET /api/projects/{id}/documents
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	tc, err := tenantFrom(r)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	projectID := r.PathValue("id")
	if projectID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "project ID is required")
		return
	}

	docs, err := h.documents.ListDocuments(r.Context(), tc, projectID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, docs)
}

// SearchDocuments runs semantic search within a project
// GET /api/projects/{id}/documents/search?q=...&types=...&limit=...
func (h *DocumentHandler) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	tc, err := tenantFrom(r)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	projectID := r.PathValue("id")
	if projectID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "project ID is required")
		return
	}

	req := service.SearchDocumentsRequest{
		ProjectID: projectID,
		Query:     r.URL.Query().Get("q"),
	}
	if types := r.URL.Query().Get("types"); types != "" {
		req.Types = strings.Split(types, ",")
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		req.Limit = n
	}

	results, err := h.documents.SearchDocuments(r.Context(), tc, &req)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, results)
}

// GetDocument retrieves a document by ID
// GET /api/projects/{id}/documents/{docID}
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	tc, err := tenantFrom(r)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	projectID, docID := r.PathValue("id"), r.PathValue("docID")
	if projectID == "" || docID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "project and document IDs are required")
		return
	}

	doc, err := h.documents.GetDocument(r.Context(), tc, projectID, docID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, doc)
}

// UpdateDocument updates a document
// PATCH /api/projects/{id}/documents/{docID}
func (h *DocumentHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	tc, err := tenantFrom(r)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	projectID, docID := r.PathValue("id"), r.PathValue("docID")
	if projectID == "" || docID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "project and document IDs are required")
		return
	}

	var req service.UpdateDocumentRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := h.documents.UpdateDocument(r.Context(), tc, projectID, docID, &req)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, doc)
}

// DeleteDocument deletes a document
// DELETE /api/projects/{id}/documents/{docID}
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	tc, err := tenantFrom(r)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	projectID, docID := r.PathValue("id"), r.PathValue("docID")
	if projectID == "" || docID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "project and document IDs are required")
		return
	}

	if err := h.documents.DeleteDocument(r.Context(), tc, projectID, docID); err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
