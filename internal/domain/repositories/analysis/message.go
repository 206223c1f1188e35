package analysis

import (
	"context"

	"figmant/internal/domain/models/analysis"
)

// MessageRepository persists the append-only message history of a session
type MessageRepository interface {
	// Append stores a message. Messages are never updated or reordered
	Append(ctx context.Context, msg *analysis.Message) error

	// ListBySession returns the history in insertion order
	ListBySession(ctx context.Context, sessionID string) ([]analysis.Message, error)
}
