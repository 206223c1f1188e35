package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"figmant/internal/config"
	"figmant/internal/domain"
	"figmant/internal/domain/models/analysis"
	analysisSvc "figmant/internal/domain/services/analysis"
	"figmant/internal/httputil"
	"figmant/internal/service/analysis/chatstate"
	"figmant/internal/service/analysis/dispatch"
	"figmant/internal/service/analysis/ingest"
	"figmant/internal/service/analysis/workspace"
)

// multipartOverhead is the allowance for multipart framing around an upload
const multipartOverhead = 1 << 20

// WorkspaceHandler exposes the composer and dispatch of a loaded session
type WorkspaceHandler struct {
	workspace       *workspace.Workspace
	pipeline        *ingest.Pipeline
	dispatcher      *dispatch.Dispatcher
	templateService analysisSvc.TemplateService
	logger          *slog.Logger
}

// NewWorkspaceHandler creates a new workspace handler
func NewWorkspaceHandler(
	ws *workspace.Workspace,
	pipeline *ingest.Pipeline,
	dispatcher *dispatch.Dispatcher,
	templateService analysisSvc.TemplateService,
	logger *slog.Logger,
) *WorkspaceHandler {
	return &WorkspaceHandler{
		workspace:       ws,
		pipeline:        pipeline,
		dispatcher:      dispatcher,
		templateService: templateService,
		logger:          logger,
	}
}

// state resolves the {id} session of the caller, answering the error itself
func (h *WorkspaceHandler) state(w http.ResponseWriter, r *http.Request) (*chatstate.State, bool) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return nil, false
	}
	st, err := h.workspace.State(r.Context(), sessionID, httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return nil, false
	}
	return st, true
}

// GetState returns the draft, attachments, messages and selected template
// GET /api/sessions/{id}/state
func (h *WorkspaceHandler) GetState(w http.ResponseWriter, r *http.Request) {
	st, ok := h.state(w, r)
	if !ok {
		return
	}
	httputil.RespondJSON(w, http.StatusOK, st.Snapshot())
}

// SetDraftRequest replaces the composer text
type SetDraftRequest struct {
	Message string `json:"message"`
}

// SetDraft
// PUT /api/sessions/{id}/draft
func (h *WorkspaceHandler) SetDraft(w http.ResponseWriter, r *http.Request) {
	st, ok := h.state(w, r)
	if !ok {
		return
	}

	var req SetDraftRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if utf8.RuneCountInString(req.Message) > config.MaxDraftLength {
		handleError(w, domain.NewValidationError("message must be at most %d characters", config.MaxDraftLength))
		return
	}

	st.SetMessage(req.Message)
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"message": st.Message()})
}

// SelectTemplateRequest selects a template by id; null or "" clears it
type SelectTemplateRequest struct {
	TemplateID httputil.OptionalString `json:"template_id"`
}

// SelectTemplate sets the active template. An id that is not in the catalog
// clears the selection.
// PUT /api/sessions/{id}/template
func (h *WorkspaceHandler) SelectTemplate(w http.ResponseWriter, r *http.Request) {
	st, ok := h.state(w, r)
	if !ok {
		return
	}

	var req SelectTemplateRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !req.TemplateID.Present {
		httputil.RespondError(w, http.StatusBadRequest, "template_id is required")
		return
	}

	var selected *analysis.Template
	if req.TemplateID.Value == nil || *req.TemplateID.Value == "" {
		selected = st.SelectTemplate("", nil)
	} else {
		catalog, err := h.templateService.List(r.Context(), "")
		if err != nil {
			handleError(w, err)
			return
		}
		selected = st.SelectTemplate(*req.TemplateID.Value, catalog)
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]*analysis.Template{"template": selected})
}

// UploadAttachment ingests a multipart file. The attachment is returned in
// its pending status; upload continues in the background.
// POST /api/sessions/{id}/attachments
func (h *WorkspaceHandler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	st, ok := h.state(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxUploadBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handleError(w, err)
			return
		}
		httputil.RespondError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	attachment, _, err := h.pipeline.IngestFile(st, ingest.UploadedFile{
		Filename: header.Filename,
		Content:  file,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusAccepted, attachment)
}

// AddURLRequest attaches a website for screenshot capture
type AddURLRequest struct {
	URL string `json:"url"`
}

// AddURL
// POST /api/sessions/{id}/attachments/url
func (h *WorkspaceHandler) AddURL(w http.ResponseWriter, r *http.Request) {
	st, ok := h.state(w, r)
	if !ok {
		return
	}

	var req AddURLRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	attachment, _, err := h.pipeline.IngestURL(st, req.URL)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusAccepted, attachment)
}

// RemoveAttachment drops an attachment from the composer. In-flight
// ingestion for it finishes without effect.
// DELETE /api/sessions/{id}/attachments/{attachmentID}
func (h *WorkspaceHandler) RemoveAttachment(w http.ResponseWriter, r *http.Request) {
	st, ok := h.state(w, r)
	if !ok {
		return
	}
	attachmentID, ok := PathParam(w, r, "attachmentID", "Attachment ID")
	if !ok {
		return
	}

	if !st.RemoveAttachment(attachmentID) {
		handleError(w, domain.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Send dispatches the composer contents. Returns the user message; the
// assistant reply appears in the state when the analysis finishes.
// POST /api/sessions/{id}/send
func (h *WorkspaceHandler) Send(w http.ResponseWriter, r *http.Request) {
	st, ok := h.state(w, r)
	if !ok {
		return
	}

	d, err := h.dispatcher.Send(r.Context(), st)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusAccepted, d.UserMessage)
}
