package analysis

import (
	"context"
	"time"

	"figmant/internal/domain/models/analysis"
)

// SessionRepository defines data access for chat sessions
type SessionRepository interface {
	// Create inserts a session and fills in its ID
	Create(ctx context.Context, session *analysis.Session) error

	// Get retrieves a session scoped to its owner.
	// Returns domain.ErrNotFound if missing or owned by someone else
	Get(ctx context.Context, sessionID, userID string) (*analysis.Session, error)

	// ListByUser returns the user's sessions, most recent activity first.
	// Returns an empty slice if none exist
	ListByUser(ctx context.Context, userID string) ([]analysis.Session, error)

	// Rename updates the display name
	Rename(ctx context.Context, sessionID, userID, name string) error

	// SetActive marks sessionID as the only active session of the user
	SetActive(ctx context.Context, sessionID, userID string) error

	// Touch bumps last_activity
	Touch(ctx context.Context, sessionID string, at time.Time) error
}
