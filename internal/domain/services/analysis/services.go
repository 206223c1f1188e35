package analysis

import (
	"context"

	"figmant/internal/domain/models/analysis"
)

// SessionService manages the session registry
type SessionService interface {
	// Create creates a session and makes it the user's active session
	Create(ctx context.Context, req *CreateSessionRequest) (*analysis.Session, error)

	Get(ctx context.Context, sessionID, userID string) (*analysis.Session, error)

	// List returns the user's sessions, most recent activity first
	List(ctx context.Context, userID string) ([]analysis.Session, error)

	Rename(ctx context.Context, sessionID, userID string, req *RenameSessionRequest) (*analysis.Session, error)

	// Switch marks the session active and loads its history into the workspace
	Switch(ctx context.Context, sessionID, userID string) (*analysis.Session, error)

	// Active returns the user's active session, or domain.ErrNotFound when none is marked
	Active(ctx context.Context, userID string) (*analysis.Session, error)

	// History returns the persisted messages in insertion order
	History(ctx context.Context, sessionID, userID string) ([]analysis.Message, error)
}

// TemplateService exposes the template catalog and the owner-only management
type TemplateService interface {
	List(ctx context.Context, category string) ([]analysis.Template, error)
	Get(ctx context.Context, id string) (*analysis.Template, error)
	Create(ctx context.Context, req *TemplateRequest) (*analysis.Template, error)
	Update(ctx context.Context, id string, req *TemplateRequest) (*analysis.Template, error)
	Delete(ctx context.Context, id string) error
}

// CreateSessionRequest is the DTO for creating a session
type CreateSessionRequest struct {
	UserID string `json:"-"`
	Name   string `json:"name"`
}

// RenameSessionRequest is the DTO for renaming a session
type RenameSessionRequest struct {
	Name string `json:"name"`
}

// TemplateRequest is the DTO for creating or replacing a template
type TemplateRequest struct {
	Title            string                     `json:"title"`
	Category         string                     `json:"category"`
	Description      string                     `json:"description"`
	Prompt           string                     `json:"prompt"`
	ContextualFields []analysis.ContextualField `json:"contextual_fields"`
	UserID           string                     `json:"-"`
}
