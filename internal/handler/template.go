package handler

import (
	"log/slog"
	"net/http"

	"figmant/internal/domain/models/analysis"
	analysisSvc "figmant/internal/domain/services/analysis"
	"figmant/internal/httputil"
)

// TemplateHandler serves the template catalog and the owner panel writes
type TemplateHandler struct {
	templateService analysisSvc.TemplateService
	logger          *slog.Logger
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(templateService analysisSvc.TemplateService, logger *slog.Logger) *TemplateHandler {
	return &TemplateHandler{
		templateService: templateService,
		logger:          logger,
	}
}

// ListTemplates
// GET /api/templates?category=:category
func (h *TemplateHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templateService.List(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, templates)
}

// GetTemplate
// GET /api/templates/{id}
func (h *TemplateHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Template ID")
	if !ok {
		return
	}

	tmpl, err := h.templateService.Get(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, tmpl)
}

// CreateTemplate is owner only.
// POST /api/templates
// Returns 201 if created, 409 with the existing template on a title clash
func (h *TemplateHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req analysisSvc.TemplateRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.UserID = httputil.GetUserID(r)

	tmpl, err := h.templateService.Create(r.Context(), &req)
	if err != nil {
		HandleCreateConflict(w, err, func(id string) (*analysis.Template, error) {
			return h.templateService.Get(r.Context(), id)
		})
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, tmpl)
}

// UpdateTemplate replaces a stored template. Owner only.
// PATCH /api/templates/{id}
func (h *TemplateHandler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Template ID")
	if !ok {
		return
	}

	var req analysisSvc.TemplateRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.UserID = httputil.GetUserID(r)

	tmpl, err := h.templateService.Update(r.Context(), id, &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, tmpl)
}

// DeleteTemplate is owner only.
// DELETE /api/templates/{id}
func (h *TemplateHandler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Template ID")
	if !ok {
		return
	}

	if err := h.templateService.Delete(r.Context(), id); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
