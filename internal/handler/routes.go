package handler

import "net/http"

// Router groups the API handlers
type Router struct {
	Sessions  *SessionHandler
	Workspace *WorkspaceHandler
	Templates *TemplateHandler
}

// Register adds every API route to mux
func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", HealthCheck)

	// Session registry
	mux.HandleFunc("POST /api/sessions", rt.Sessions.CreateSession)
	mux.HandleFunc("GET /api/sessions", rt.Sessions.ListSessions)
	mux.HandleFunc("GET /api/sessions/active", rt.Sessions.GetActiveSession)
	mux.HandleFunc("GET /api/sessions/{id}", rt.Sessions.GetSession)
	mux.HandleFunc("PATCH /api/sessions/{id}", rt.Sessions.RenameSession)
	mux.HandleFunc("POST /api/sessions/{id}/switch", rt.Sessions.SwitchSession)
	mux.HandleFunc("GET /api/sessions/{id}/messages", rt.Sessions.ListMessages)

	// Composer and dispatch
	mux.HandleFunc("GET /api/sessions/{id}/state", rt.Workspace.GetState)
	mux.HandleFunc("PUT /api/sessions/{id}/draft", rt.Workspace.SetDraft)
	mux.HandleFunc("PUT /api/sessions/{id}/template", rt.Workspace.SelectTemplate)
	mux.HandleFunc("POST /api/sessions/{id}/attachments", rt.Workspace.UploadAttachment)
	mux.HandleFunc("POST /api/sessions/{id}/attachments/url", rt.Workspace.AddURL)
	mux.HandleFunc("DELETE /api/sessions/{id}/attachments/{attachmentID}", rt.Workspace.RemoveAttachment)
	mux.HandleFunc("POST /api/sessions/{id}/send", rt.Workspace.Send)

	// Template catalog; writes are owner only
	mux.HandleFunc("GET /api/templates", rt.Templates.ListTemplates)
	mux.HandleFunc("GET /api/templates/{id}", rt.Templates.GetTemplate)
	mux.HandleFunc("POST /api/templates", rt.Templates.CreateTemplate)
	mux.HandleFunc("PATCH /api/templates/{id}", rt.Templates.UpdateTemplate)
	mux.HandleFunc("DELETE /api/templates/{id}", rt.Templates.DeleteTemplate)
}
