package handler

import (
	"log/slog"
	"net/http"

	"loom/internal/httputil"
	"loom/internal/service"
)

// ProjectTypeHandler handles project type and AI template HTTP requests
type ProjectTypeHandler struct {
	catalog *service.ProjectTypeService
	logger  *slog.Logger
}

// NewProjectTypeHandler creates a new project type handler
func NewProjectTypeHandler(catalog *service.ProjectTypeService, logger *slog.Logger) *ProjectTypeHandler {
	return &ProjectTypeHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// CreateProjectType creates a catalog entry
// POST /api/project-types
func (h *ProjectTypeHandler) CreateProjectType(w http.ResponseWriter, r *http.Request) {
	tc, err := tenantFrom(r)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	var req service.CreateProjectTypeRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pt, err := h.catalog.CreateProjectType(r.Context(), tc, &req)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, pt)
}

// GetProjectType retrieves a catalog entry
// GET /api/project-types/{id}
func (h *ProjectTypeHandler) GetProjectType(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, "project type ID is required")
		return
	}

	pt, err := h.catalog.GetProjectType(r.Context(), id)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, pt)
}

// UpdateProjectType replaces a catalog entry's schema and workflow
// PUT /api/project-types/{id}
func (h *ProjectTypeHandler) UpdateProjectType(w http.ResponseWriter, r *http.Request) {
	tc, err := tenantFrom(r)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, "project type ID is required")
		return
	}

	var req service.CreateProjectTypeRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pt, err := h.catalog.UpdateProjectType(r.Context(), tc, id, &req)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, pt)
}

// CreateTemplate creates an AI template
// POST /api/ai-templates
func (h *ProjectTypeHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	tc, err := tenantFrom(r)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	var req service.CreateTemplateRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tpl, err := h.catalog.CreateTemplate(r.Context(), tc, &req)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, tpl)
}

// DeleteTemplate deletes an AI template unless a workflow references it
// DELETE /api/ai-templates/{id}
func (h *ProjectTypeHandler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	tc, err := tenantFrom(r)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, "template ID is required")
		return
	}

	if err := h.catalog.DeleteTemplate(r.Context(), tc, id); err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
