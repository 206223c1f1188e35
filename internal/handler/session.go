package handler

import (
	"log/slog"
	"net/http"

	"figmant/internal/domain/models/analysis"
	analysisSvc "figmant/internal/domain/services/analysis"
	"figmant/internal/httputil"
	"figmant/internal/service/analysis/chatstate"
	"figmant/internal/service/analysis/workspace"
)

// SessionHandler handles the session registry endpoints
type SessionHandler struct {
	sessionService analysisSvc.SessionService
	workspace      *workspace.Workspace
	logger         *slog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionService analysisSvc.SessionService, ws *workspace.Workspace, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		workspace:      ws,
		logger:         logger,
	}
}

// CreateSession creates a session and makes it active
// POST /api/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req analysisSvc.CreateSessionRequest
	if r.ContentLength != 0 {
		if err := httputil.ParseJSON(w, r, &req); err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	req.UserID = httputil.GetUserID(r)

	session, err := h.sessionService.Create(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, session)
}

// ListSessions returns the user's sessions, most recent activity first
// GET /api/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessionService.List(r.Context(), httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, sessions)
}

// GetActiveSession returns the user's active session
// GET /api/sessions/active
func (h *SessionHandler) GetActiveSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionService.Active(r.Context(), httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, session)
}

// GetSession
// GET /api/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}

	session, err := h.sessionService.Get(r.Context(), sessionID, httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, session)
}

// RenameSession
// PATCH /api/sessions/{id}
func (h *SessionHandler) RenameSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}

	var req analysisSvc.RenameSessionRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.sessionService.Rename(r.Context(), sessionID, httputil.GetUserID(r), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, session)
}

// SwitchSessionResponse is the active session with its loaded chat state
type SwitchSessionResponse struct {
	Session *analysis.Session  `json:"session"`
	State   chatstate.Snapshot `json:"state"`
}

// SwitchSession makes the session active and returns its chat state
// POST /api/sessions/{id}/switch
func (h *SessionHandler) SwitchSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}
	userID := httputil.GetUserID(r)

	session, err := h.sessionService.Switch(r.Context(), sessionID, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	st, err := h.workspace.State(r.Context(), sessionID, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, SwitchSessionResponse{Session: session, State: st.Snapshot()})
}

// ListMessages returns the persisted history of a session
// GET /api/sessions/{id}/messages
func (h *SessionHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}

	messages, err := h.sessionService.History(r.Context(), sessionID, httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, messages)
}
