package analysis

import (
	"time"
)

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageMetadata is only set on assistant messages
type MessageMetadata struct {
	Confidence   *float64 `json:"confidence,omitempty"`
	TokensUsed   int      `json:"tokens_used,omitempty"`
	AnalysisType string   `json:"analysis_type,omitempty"`
	Error        bool     `json:"error,omitempty"`
}

// Message is one turn of an analysis chat. Messages are immutable once
// appended to a session.
type Message struct {
	ID          string           `json:"id" db:"id"`
	SessionID   string           `json:"session_id" db:"session_id"`
	Role        Role             `json:"role" db:"role"`
	Content     string           `json:"content" db:"content"`
	Attachments []Attachment     `json:"attachments,omitempty" db:"attachments"`
	Metadata    *MessageMetadata `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
}

// IsError reports whether the message records a failed analysis
func (m *Message) IsError() bool {
	return m.Metadata != nil && m.Metadata.Error
}
